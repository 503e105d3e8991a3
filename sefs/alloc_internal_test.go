package sefs

import (
	"testing"

	"github.com/KarpelesLab/vfscore/dev"
	"github.com/stretchr/testify/require"
)

// TestAllocBlockGrowsAcrossGroups exercises allocBlock directly (bypassing
// Create's per-inode backing-file overhead) to check that exhausting one
// freemap group extends the metadata file with another, per spec.md §4.H's
// alloc_block.
func TestAllocBlockGrowsAcrossGroups(t *testing.T) {
	storage := dev.NewMemStorage(false)
	f, err := Create(storage, minBlockSize, PolicyError)
	require.NoError(t, err)

	bpg := blocksPerGroup(minBlockSize)
	var last uint32
	for i := 0; i < bpg; i++ {
		id, err := f.allocBlock()
		require.NoError(t, err)
		last = id
	}

	require.EqualValues(t, 2, f.sb.Groups)
	require.Greater(t, int(last), groupStart(1, minBlockSize))

	f.freeBlock(last)
	require.EqualValues(t, 2, f.sb.Groups)
}

package dev_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore/dev"
	"github.com/stretchr/testify/require"
)

func TestBlockCacheReadWriteRoundTrip(t *testing.T) {
	bd := dev.NewMemBlockDevice(12) // 4096-byte blocks
	bc := dev.NewBlockCache(bd, 2)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, bc.WriteAt(5, payload))

	out := make([]byte, 4096)
	require.NoError(t, bc.ReadAt(5, out))
	require.Equal(t, payload, out)
}

func TestBlockCacheEvictsAndWritesBackDirty(t *testing.T) {
	bd := dev.NewMemBlockDevice(12)
	bc := dev.NewBlockCache(bd, 1) // single slot forces eviction on every new id

	a := make([]byte, 4096)
	a[0] = 0xAA
	b := make([]byte, 4096)
	b[0] = 0xBB

	require.NoError(t, bc.WriteAt(1, a))
	require.NoError(t, bc.WriteAt(2, b)) // evicts block 1, must write it back first

	raw := make([]byte, 4096)
	require.NoError(t, bd.ReadAt(1, raw))
	require.Equal(t, byte(0xAA), raw[0])
}

func TestBlockCacheSyncClearsDirty(t *testing.T) {
	bd := dev.NewMemBlockDevice(12)
	bc := dev.NewBlockCache(bd, 4)

	buf := make([]byte, 4096)
	buf[0] = 7
	require.NoError(t, bc.WriteAt(9, buf))
	require.NoError(t, bc.Sync())

	raw := make([]byte, 4096)
	require.NoError(t, bd.ReadAt(9, raw))
	require.Equal(t, byte(7), raw[0])
}

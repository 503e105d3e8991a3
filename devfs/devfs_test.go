package devfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/devfs"
	"github.com/stretchr/testify/require"
)

func TestNullDevice(t *testing.T) {
	fs := devfs.New()
	null, err := fs.RootInode().Find("null")
	require.NoError(t, err)

	n, err := null.WriteAt(0, []byte("discarded"))
	require.NoError(t, err)
	require.Equal(t, 9, n)

	buf := make([]byte, 10)
	n, err = null.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestZeroDevice(t *testing.T) {
	fs := devfs.New()
	zero, err := fs.RootInode().Find("zero")
	require.NoError(t, err)

	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := zero.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	for _, b := range buf {
		require.Zero(t, b)
	}
}

func TestCreateUnsupported(t *testing.T) {
	fs := devfs.New()
	_, err := fs.RootInode().Create("x", vfs.TypeFile, 0o644)
	require.ErrorIs(t, err, vfs.ErrNotSupported)
}

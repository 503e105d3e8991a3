package fuseadapter

import (
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/stretchr/testify/require"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/ramfs"
)

func TestErrnoForMapsTaxonomy(t *testing.T) {
	require.Equal(t, fs.OK, errnoFor(nil))
	require.Equal(t, syscall.ENOENT, errnoFor(vfs.ErrEntryNotFound))
	require.Equal(t, syscall.EEXIST, errnoFor(vfs.ErrEntryExist))
	require.Equal(t, syscall.ENOTDIR, errnoFor(vfs.ErrNotDir))
	require.Equal(t, syscall.EISDIR, errnoFor(vfs.ErrIsDir))
	require.Equal(t, syscall.ENOTEMPTY, errnoFor(vfs.ErrDirNotEmpty))
	require.Equal(t, syscall.EXDEV, errnoFor(vfs.ErrNotSameFs))
	require.Equal(t, syscall.ENOSPC, errnoFor(vfs.ErrNoDeviceSpace))
	require.Equal(t, syscall.EBUSY, errnoFor(vfs.ErrBusy))
	require.Equal(t, syscall.ENOSYS, errnoFor(vfs.ErrNotSupported))
}

func TestModeForMapsFileTypes(t *testing.T) {
	require.EqualValues(t, syscall.S_IFDIR, modeFor(vfs.TypeDir))
	require.EqualValues(t, syscall.S_IFLNK, modeFor(vfs.TypeSymLink))
	require.EqualValues(t, syscall.S_IFREG, modeFor(vfs.TypeFile))
}

func TestDirStreamWalksEntries(t *testing.T) {
	r := ramfs.New()
	root := r.RootInode()
	_, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	_, err = root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	ds := &dirStream{ino: root}
	names := map[string]bool{}
	for ds.HasNext() {
		entry, errno := ds.Next()
		require.Equal(t, fs.OK, errno)
		names[entry.Name] = true
	}
	require.True(t, names["."])
	require.True(t, names[".."])
	require.True(t, names["file1"])
	require.True(t, names["dir1"])
}

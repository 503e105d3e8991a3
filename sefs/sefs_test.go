package sefs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/dev"
	"github.com/KarpelesLab/vfscore/sefs"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T, integrity bool) *sefs.FS {
	t.Helper()
	storage := dev.NewMemStorage(integrity)
	f, err := sefs.Create(storage, sefs.DefaultBlockSize, sefs.PolicyError)
	require.NoError(t, err)
	return f
}

func TestCreateRootDirHasDotEntries(t *testing.T) {
	f := newFS(t, false)
	root := f.RootInode()

	md, err := root.Metadata()
	require.NoError(t, err)
	require.Equal(t, vfs.TypeDir, md.Type)
	require.EqualValues(t, 2, md.NLinks)
	require.EqualValues(t, 2, md.Size) // entry count: "." and ".."

	dot, err := root.Find(".")
	require.NoError(t, err)
	dotMd, _ := dot.Metadata()
	require.Equal(t, md.Inode, dotMd.Inode)

	dotdot, err := root.Find("..")
	require.NoError(t, err)
	dotdotMd, _ := dotdot.Metadata()
	require.Equal(t, md.Inode, dotdotMd.Inode)
}

func TestCreateFileAndReadWrite(t *testing.T) {
	f := newFS(t, false)
	root := f.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	data := []byte("hello sefs")
	n, err := file1.WriteAt(0, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	out := make([]byte, len(data))
	n, err = file1.ReadAt(0, out)
	require.NoError(t, err)
	require.Equal(t, data, out[:n])

	md, err := file1.Metadata()
	require.NoError(t, err)
	require.EqualValues(t, len(data), md.Size)
}

func TestUnlinkRemovesEntry(t *testing.T) {
	storage := dev.NewMemStorage(false)
	f, err := sefs.Create(storage, sefs.DefaultBlockSize, sefs.PolicyError)
	require.NoError(t, err)
	root := f.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	_, err = file1.WriteAt(0, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, root.Unlink("file1"))
	_, err = root.Find("file1")
	require.ErrorIs(t, err, vfs.ErrEntryNotFound)
}

func TestIntegrityModeRoundTrip(t *testing.T) {
	storage := dev.NewMemStorage(true)
	f, err := sefs.Create(storage, sefs.DefaultBlockSize, sefs.PolicyError)
	require.NoError(t, err)
	root := f.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	_, err = file1.WriteAt(0, []byte("trusted"))
	require.NoError(t, err)
	require.NoError(t, file1.SyncAll())
	require.NoError(t, f.Sync())

	reopened, err := sefs.Open(storage, sefs.DefaultBlockSize, sefs.PolicyError)
	require.NoError(t, err)
	_, err = reopened.RootInode().Find("file1")
	require.NoError(t, err)
}

func TestMoveAcrossDirectoriesUpdatesDotDot(t *testing.T) {
	f := newFS(t, false)
	root := f.RootInode()

	dir1, err := root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	dir2, err := root.Create("dir2", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	_, err = dir1.Create("child", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	require.NoError(t, root.Move("dir1", dir2, "dir1_moved"))

	moved, err := dir2.Find("dir1_moved")
	require.NoError(t, err)
	parent, err := moved.Find("..")
	require.NoError(t, err)
	parentMd, _ := parent.Metadata()
	dir2Md, _ := dir2.Metadata()
	require.Equal(t, dir2Md.Inode, parentMd.Inode)
}

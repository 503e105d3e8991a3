//go:build linux

package hostfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/hostfs"
	"github.com/stretchr/testify/require"
)

func TestCreateReadWriteFile(t *testing.T) {
	fs, err := hostfs.New(t.TempDir())
	require.NoError(t, err)
	root := fs.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	data := []byte("hello hostfs")
	n, err := file1.WriteAt(0, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	out := make([]byte, len(data))
	n, err = file1.ReadAt(0, out)
	require.NoError(t, err)
	require.Equal(t, data, out[:n])

	md, err := file1.Metadata()
	require.NoError(t, err)
	require.Equal(t, vfs.TypeFile, md.Type)
	require.EqualValues(t, len(data), md.Size)
}

func TestMkdirAndListing(t *testing.T) {
	fs, err := hostfs.New(t.TempDir())
	require.NoError(t, err)
	root := fs.RootInode()

	_, err = root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	names := []string{}
	for i := 0; ; i++ {
		name, err := root.GetEntry(i)
		if err != nil {
			break
		}
		names = append(names, name)
	}
	require.Contains(t, names, ".")
	require.Contains(t, names, "..")
	require.Contains(t, names, "dir1")
}

func TestSymlinkRoundTrip(t *testing.T) {
	fs, err := hostfs.New(t.TempDir())
	require.NoError(t, err)
	root := fs.RootInode()

	_, err = root.Create("target", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	link, err := root.Create("link", vfs.TypeSymLink, 0o777)
	require.NoError(t, err)
	_, err = link.WriteAt(0, []byte("target"))
	require.NoError(t, err)

	resolved, err := vfs.LookupFollow(fs, "link", 4)
	require.NoError(t, err)
	md, err := resolved.Metadata()
	require.NoError(t, err)
	require.Equal(t, vfs.TypeFile, md.Type)
}

func TestUnlinkNonEmptyDirFails(t *testing.T) {
	fs, err := hostfs.New(t.TempDir())
	require.NoError(t, err)
	root := fs.RootInode()

	_, err = root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	dir1, err := root.Find("dir1")
	require.NoError(t, err)
	_, err = dir1.Create("f", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	err = root.Unlink("dir1")
	require.ErrorIs(t, err, vfs.ErrDirNotEmpty)
}

func TestMoveRenamesFile(t *testing.T) {
	fs, err := hostfs.New(t.TempDir())
	require.NoError(t, err)
	root := fs.RootInode()

	_, err = root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	require.NoError(t, root.Move("file1", root, "file2"))
	_, err = root.Find("file1")
	require.ErrorIs(t, err, vfs.ErrEntryNotFound)
	_, err = root.Find("file2")
	require.NoError(t, err)
}

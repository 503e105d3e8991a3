package ramfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/ramfs"
	"github.com/stretchr/testify/require"
)

func TestRootDotDot(t *testing.T) {
	fs := ramfs.New()
	root := fs.RootInode()

	self, err := root.Find(".")
	require.NoError(t, err)
	require.Equal(t, root, self)

	parent, err := root.Find("..")
	require.NoError(t, err)
	require.Equal(t, root, parent)
}

func TestCreateIncrementsParentNLinks(t *testing.T) {
	fs := ramfs.New()
	root := fs.RootInode()

	md, err := root.Metadata()
	require.NoError(t, err)
	require.EqualValues(t, 2, md.NLinks)

	dir1, err := root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	md, _ = root.Metadata()
	require.EqualValues(t, 3, md.NLinks)

	cmd, _ := dir1.Metadata()
	require.EqualValues(t, 2, cmd.NLinks)
}

func TestUnlinkNonEmptyDirFails(t *testing.T) {
	fs := ramfs.New()
	root := fs.RootInode()
	dir1, err := root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	_, err = dir1.Create("f", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	err = root.Unlink("dir1")
	require.ErrorIs(t, err, vfs.ErrDirNotEmpty)
}

// TestScenarioS3 implements spec.md §8 S3: rename/move across directories.
func TestScenarioS3(t *testing.T) {
	fs := ramfs.New()
	root := fs.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	_, err = root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	require.NoError(t, root.Move("dir1", root, "dir_1"))

	dir1, err := root.Find("dir_1")
	require.NoError(t, err)
	require.NoError(t, dir1.Link("file1_", file1))

	fmd, _ := file1.Metadata()
	require.EqualValues(t, 2, fmd.NLinks)

	dir2, err := root.Create("dir2", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	require.NoError(t, root.Move("file1", dir2, "file__1"))
	require.NoError(t, root.Move("dir_1", dir2, "dir__1"))

	rmd, _ := root.Metadata()
	require.EqualValues(t, 3, rmd.NLinks) // ".", "..", "dir2"
	d2md, _ := dir2.Metadata()
	require.EqualValues(t, 3, d2md.NLinks) // ".", "..", "dir__1"
	fmd, _ = file1.Metadata()
	require.EqualValues(t, 2, fmd.NLinks)
}

func TestGetEntryMatchesFind(t *testing.T) {
	fs := ramfs.New()
	root := fs.RootInode()
	child, err := root.Create("a", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	for i := 0; ; i++ {
		name, err := root.GetEntry(i)
		if err != nil {
			break
		}
		if name == "." || name == ".." {
			continue
		}
		found, err := root.Find(name)
		require.NoError(t, err)
		require.Equal(t, child, found)
	}
}

package sfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/dev"
	"github.com/KarpelesLab/vfscore/sfs"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T, capacity uint64) (*sfs.FS, *dev.MemBlockDevice) {
	t.Helper()
	bd := dev.NewMemBlockDevice(12) // 4096-byte blocks
	f, err := sfs.Create(bd, capacity)
	require.NoError(t, err)
	return f, bd
}

// TestScenarioS1 implements spec.md §8 S1.
func TestScenarioS1(t *testing.T) {
	f, _ := newFS(t, 32*4096)
	root := f.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o777)
	require.NoError(t, err)

	md, err := file1.Metadata()
	require.NoError(t, err)
	require.EqualValues(t, 5, md.Inode)
	require.EqualValues(t, 0, md.Size)
	require.Equal(t, vfs.TypeFile, md.Type)
	require.EqualValues(t, 0o777, md.Mode)
	require.EqualValues(t, 0, md.Blocks)
	require.EqualValues(t, 1, md.NLinks)
	require.EqualValues(t, 4096, md.BlkSize)
}

// TestScenarioS2 implements spec.md §8 S2.
func TestScenarioS2(t *testing.T) {
	f, _ := newFS(t, 32*4096)
	root := f.RootInode()
	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	require.NoError(t, file1.Resize(0x1234))

	md, err := file1.Metadata()
	require.NoError(t, err)
	require.EqualValues(t, 0x1234, md.Size)

	buf := make([]byte, 0x1250)
	n, err := file1.ReadAt(0, buf)
	require.NoError(t, err)
	require.Equal(t, 0x1234, n)
	for i := 0; i < n; i++ {
		require.Zero(t, buf[i])
	}
}

// TestScenarioS3 implements spec.md §8 S3.
func TestScenarioS3(t *testing.T) {
	f, _ := newFS(t, 64*4096)
	root := f.RootInode()

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
	require.EqualValues(t, 3, rmd.NLinks)
	d2md, _ := dir2.Metadata()
	require.EqualValues(t, 3, d2md.NLinks)
	fmd, _ = file1.Metadata()
	require.EqualValues(t, 2, fmd.NLinks)

	// dir__1/.. must now resolve to dir2.
	dir11, err := dir2.Find("dir__1")
	require.NoError(t, err)
	parent, err := dir11.Find("..")
	require.NoError(t, err)
	parentMd, _ := parent.Metadata()
	dir2Md, _ := dir2.Metadata()
	require.Equal(t, dir2Md.Inode, parentMd.Inode)
}

// TestScenarioS4 implements spec.md §8 S4.
func TestScenarioS4(t *testing.T) {
	f, _ := newFS(t, 32*4096)
	root := f.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	link1, err := root.Create("link1", vfs.TypeSymLink, 0o777)
	require.NoError(t, err)
	_, err = link1.WriteAt(0, []byte("file1"))
	require.NoError(t, err)

	link2, err := root.Create("link2", vfs.TypeSymLink, 0o777)
	require.NoError(t, err)
	_, err = link2.WriteAt(0, []byte("link1"))
	require.NoError(t, err)

	link3, err := root.Create("link3", vfs.TypeSymLink, 0o777)
	require.NoError(t, err)
	_, err = link3.WriteAt(0, []byte("/link2"))
	require.NoError(t, err)

	resolved, err := vfs.LookupFollow(f, "link3", 3)
	require.NoError(t, err)
	resolvedMd, _ := resolved.Metadata()
	file1Md, _ := file1.Metadata()
	require.Equal(t, file1Md.Inode, resolvedMd.Inode)

	self, err := vfs.LookupFollow(f, "link3", 0)
	require.NoError(t, err)
	selfMd, _ := self.Metadata()
	link3Md, _ := link3.Metadata()
	require.Equal(t, link3Md.Inode, selfMd.Inode)
}

func TestSyncReopenPreservesRootListing(t *testing.T) {
	bd := dev.NewMemBlockDevice(12)
	f, err := sfs.Create(bd, 32*4096)
	require.NoError(t, err)
	root := f.RootInode()

	_, err = root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	_, err = root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	reopened, err := sfs.Open(bd)
	require.NoError(t, err)
	_, err = reopened.RootInode().Find("file1")
	require.NoError(t, err)
	_, err = reopened.RootInode().Find("dir1")
	require.NoError(t, err)
}

func TestFreeMapDiscipline(t *testing.T) {
	bd := dev.NewMemBlockDevice(12)
	f, err := sfs.Create(bd, 32*4096)
	require.NoError(t, err)
	root := f.RootInode()

	info0, _ := f.Info()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	require.NoError(t, file1.Resize(4096 * 20))
	require.NoError(t, root.Unlink("file1"))

	info1, _ := f.Info()
	require.Equal(t, info0.FreeBlocks, info1.FreeBlocks)
}

func TestUnlinkNonEmptyDirFails(t *testing.T) {
	f, _ := newFS(t, 32*4096)
	root := f.RootInode()
	dir1, err := root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	_, err = dir1.Create("f", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	err = root.Unlink("dir1")
	require.ErrorIs(t, err, vfs.ErrDirNotEmpty)
}

func TestReadWriteRoundTrip(t *testing.T) {
	f, _ := newFS(t, 64*4096)
	root := f.RootInode()
	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := file1.WriteAt(1000, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	out := make([]byte, len(data))
	n, err = file1.ReadAt(1000, out)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, out)
}

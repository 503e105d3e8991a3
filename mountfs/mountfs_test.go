package mountfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/mountfs"
	"github.com/KarpelesLab/vfscore/ramfs"
	"github.com/stretchr/testify/require"
)

func TestMountAndLookupCrossesIntoSubFs(t *testing.T) {
	outer := mountfs.New(ramfs.New())
	root := outer.RootInode()

	mntInode, err := root.Create("mnt", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	inner := ramfs.New()
	_, err = inner.RootInode().Create("hello", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	require.NoError(t, mntInode.(*mountfs.Inode).Mount(inner))

	// looking up "mnt" again must land on the sub-FS's root.
	looked, err := root.Find("mnt")
	require.NoError(t, err)

	child, err := looked.Find("hello")
	require.NoError(t, err)
	md, err := child.Metadata()
	require.NoError(t, err)
	require.Equal(t, vfs.TypeFile, md.Type)

	// the outer root must NOT see "hello" directly.
	_, err = root.Find("hello")
	require.ErrorIs(t, err, vfs.ErrEntryNotFound)
}

func TestDotDotCrossesOutOfMount(t *testing.T) {
	outer := mountfs.New(ramfs.New())
	root := outer.RootInode()

	mntInode, err := root.Create("mnt", vfs.TypeDir, 0o755)
	require.NoError(t, err)

	inner := ramfs.New()
	require.NoError(t, mntInode.(*mountfs.Inode).Mount(inner))

	mnt, err := root.Find("mnt")
	require.NoError(t, err)

	// the sub-FS's root has no parent of its own: ".." must climb back
	// out into the outer MountFS, landing on the mount point's parent.
	parent, err := mnt.Find("..")
	require.NoError(t, err)

	pmd, err := parent.Metadata()
	require.NoError(t, err)
	rmd, err := root.Metadata()
	require.NoError(t, err)
	require.Equal(t, rmd.Inode, pmd.Inode)
}

func TestDotDotAtGlobalRootYieldsSelf(t *testing.T) {
	outer := mountfs.New(ramfs.New())
	root := outer.RootInode()

	parent, err := root.Find("..")
	require.NoError(t, err)

	pmd, err := parent.Metadata()
	require.NoError(t, err)
	rmd, err := root.Metadata()
	require.NoError(t, err)
	require.Equal(t, rmd.Inode, pmd.Inode)
}

// S6 (Busy mount): given MountFS(RamFS) with /mnt, after mnt.mount(RamFS),
// root.unlink("mnt") fails with Busy.
func TestUnlinkMountedInodeFailsBusy(t *testing.T) {
	outer := mountfs.New(ramfs.New())
	root := outer.RootInode()

	mntInode, err := root.Create("mnt", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	require.NoError(t, mntInode.(*mountfs.Inode).Mount(ramfs.New()))

	err = root.Unlink("mnt")
	require.ErrorIs(t, err, vfs.ErrBusy)
}

func TestSyncRecursesIntoSubMounts(t *testing.T) {
	inner := ramfs.New()
	outer := mountfs.New(inner)
	root := outer.RootInode()

	mntInode, err := root.Create("mnt", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	require.NoError(t, mntInode.(*mountfs.Inode).Mount(ramfs.New()))

	require.NoError(t, outer.Sync())
}

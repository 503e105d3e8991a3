package unionfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/ramfs"
	"github.com/KarpelesLab/vfscore/unionfs"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir vfs.Inode, name, data string) {
	t.Helper()
	f, err := dir.Create(name, vfs.TypeFile, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(0, []byte(data))
	require.NoError(t, err)
}

func readAll(t *testing.T, ino vfs.Inode) string {
	t.Helper()
	md, err := ino.Metadata()
	require.NoError(t, err)
	buf := make([]byte, md.Size)
	n, err := ino.ReadAt(0, buf)
	require.NoError(t, err)
	return string(buf[:n])
}

// S5 (UnionFS whiteout). Given container {file1(data="container"),
// file2("container")} and image {file1("image"), file3("image"),
// dir/file4("image")}: union.lookup("file1").read() == "container";
// union.unlink("file1") hides both copies; container.lookup(".wh.file1")
// now exists; image.lookup("file1") is untouched.
func TestScenarioS5Whiteout(t *testing.T) {
	container := ramfs.New()
	writeFile(t, container.RootInode(), "file1", "container")
	writeFile(t, container.RootInode(), "file2", "container")

	image := ramfs.New()
	writeFile(t, image.RootInode(), "file1", "image")
	writeFile(t, image.RootInode(), "file3", "image")
	imgDir, err := image.RootInode().Create("dir", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	writeFile(t, imgDir, "file4", "image")

	union := unionfs.New(container, image)
	root := union.RootInode()

	file1, err := root.Find("file1")
	require.NoError(t, err)
	require.Equal(t, "container", readAll(t, file1))

	require.NoError(t, root.Unlink("file1"))

	_, err = root.Find("file1")
	require.ErrorIs(t, err, vfs.ErrEntryNotFound)

	_, err = container.RootInode().Find(".wh.file1")
	require.NoError(t, err)

	imgFile1, err := image.RootInode().Find("file1")
	require.NoError(t, err)
	require.Equal(t, "image", readAll(t, imgFile1))
}

func TestMergedListingAndLowerBranchVisible(t *testing.T) {
	container := ramfs.New()
	writeFile(t, container.RootInode(), "file2", "container")

	image := ramfs.New()
	writeFile(t, image.RootInode(), "file1", "image")
	writeFile(t, image.RootInode(), "file3", "image")

	union := unionfs.New(container, image)
	root := union.RootInode()

	names := []string{}
	for i := 0; ; i++ {
		name, err := root.GetEntry(i)
		if err != nil {
			break
		}
		names = append(names, name)
	}
	require.Contains(t, names, "file1")
	require.Contains(t, names, "file2")
	require.Contains(t, names, "file3")

	f1, err := root.Find("file1")
	require.NoError(t, err)
	require.Equal(t, "image", readAll(t, f1))
}

func TestWriteToLowerBranchFileCopiesOnWrite(t *testing.T) {
	container := ramfs.New()
	image := ramfs.New()
	writeFile(t, image.RootInode(), "file1", "image-data")

	union := unionfs.New(container, image)
	root := union.RootInode()

	f1, err := root.Find("file1")
	require.NoError(t, err)
	_, err = f1.WriteAt(0, []byte("CONTAINER-DATA"))
	require.NoError(t, err)

	// the container now has its own materialized copy.
	cf, err := container.RootInode().Find("file1")
	require.NoError(t, err)
	require.Equal(t, "CONTAINER-DATA", readAll(t, cf))

	// the lower image is untouched.
	imf, err := image.RootInode().Find("file1")
	require.NoError(t, err)
	require.Equal(t, "image-data", readAll(t, imf))
}

func TestCreateExistingNameFails(t *testing.T) {
	container := ramfs.New()
	image := ramfs.New()
	writeFile(t, image.RootInode(), "file1", "image-data")

	union := unionfs.New(container, image)
	root := union.RootInode()

	_, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.ErrorIs(t, err, vfs.ErrEntryExist)
}

func TestMoveMaterializesAndWhitesOutSource(t *testing.T) {
	container := ramfs.New()
	image := ramfs.New()
	writeFile(t, image.RootInode(), "file1", "image-data")

	union := unionfs.New(container, image)
	root := union.RootInode()

	require.NoError(t, root.Move("file1", root, "file2"))

	_, err := root.Find("file1")
	require.ErrorIs(t, err, vfs.ErrEntryNotFound)

	f2, err := root.Find("file2")
	require.NoError(t, err)
	require.Equal(t, "image-data", readAll(t, f2))

	_, err = container.RootInode().Find(".wh.file1")
	require.NoError(t, err)
}

package sfs_test

import (
	"testing"

	"github.com/KarpelesLab/vfscore"
	"github.com/stretchr/testify/require"
)

func TestCheckOKOnFreshFS(t *testing.T) {
	f, _ := newFS(t, 64*4096)
	root := f.RootInode()

	_, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	dir1, err := root.Create("dir1", vfs.TypeDir, 0o755)
	require.NoError(t, err)
	_, err = dir1.Create("file2", vfs.TypeFile, 0o644)
	require.NoError(t, err)

	report, err := f.Check()
	require.NoError(t, err)
	require.True(t, report.OK(), "unexpected bitmap mismatches: %v", report.BitmapMismatches)
}

func TestCheckOKAfterResizeAndUnlink(t *testing.T) {
	f, _ := newFS(t, 64*4096)
	root := f.RootInode()

	file1, err := root.Create("file1", vfs.TypeFile, 0o644)
	require.NoError(t, err)
	require.NoError(t, file1.Resize(4096*5))
	require.NoError(t, root.Unlink("file1"))

	report, err := f.Check()
	require.NoError(t, err)
	require.True(t, report.OK(), "unexpected bitmap mismatches: %v", report.BitmapMismatches)
}

// Package mountfs overlays arbitrary file systems at inodes of a host file
// system (spec.md §4.I), rewriting lookup so it crosses mount boundaries
// correctly, including "..".
package mountfs

import (
	"sync"

	"github.com/KarpelesLab/vfscore"
)

// FS is one level of the mount tree: an inner FileSystem plus every
// sub-MountFS installed at one of its inodes.
type FS struct {
	inner vfs.FileSystem

	parentMount *FS    // the outer MountFS this FS is mounted into, nil at the global root
	parentInode *Inode // the inode in parentMount this FS is mounted at

	mu     sync.Mutex
	mounts map[uint64]*FS // inner inode id -> sub-MountFS rooted there
}

// New wraps inner as the global root of a mount tree.
func New(inner vfs.FileSystem) *FS {
	return &FS{inner: inner, mounts: make(map[uint64]*FS)}
}

func (f *FS) RootInode() vfs.Inode {
	base, inner := overlay(f, f.inner.RootInode())
	return &Inode{mfs: base, inner: inner}
}

// Sync syncs the inner FS and every registered sub-MountFS recursively.
func (f *FS) Sync() error {
	if err := f.inner.Sync(); err != nil {
		return err
	}

	f.mu.Lock()
	subs := make([]*FS, 0, len(f.mounts))
	for _, s := range f.mounts {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		if err := s.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) Info() (vfs.FsInfo, error) { return f.inner.Info() }

var _ vfs.FileSystem = (*FS)(nil)

// Package unionfs stacks file systems copy-on-write (spec.md §4.J): branch
// 0 is the read-write "container", branches 1..n are read-only "images"
// searched in order underneath it.
package unionfs

import "github.com/KarpelesLab/vfscore"

const whiteoutPrefix = ".wh."

func whiteoutName(name string) string { return whiteoutPrefix + name }

// pathHash is the stable virtual-path inode identity of spec.md §4.J: a
// multiply-by-33 hash over the path's name bytes, independent of which
// branch (if any) a path component resolves to.
func pathHash(path []string) uint64 {
	h := uint64(5381)
	for _, comp := range path {
		for _, c := range []byte(comp) {
			h = h*33 + uint64(c)
		}
		h = h*33 + '/'
	}
	return h
}

// FS is an ordered stack of branches; branches[0] is the container.
type FS struct {
	branches []vfs.FileSystem
}

// New builds a union over container (read-write) and images (read-only,
// searched in the given order underneath the container).
func New(container vfs.FileSystem, images ...vfs.FileSystem) *FS {
	return &FS{branches: append([]vfs.FileSystem{container}, images...)}
}

func (f *FS) RootInode() vfs.Inode {
	ino, err := resolvePath(f, nil)
	if err != nil {
		// the root always resolves: branch 0's root always exists.
		panic("unionfs: root did not resolve: " + err.Error())
	}
	return ino
}

func (f *FS) Sync() error {
	for _, b := range f.branches {
		if err := b.Sync(); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) Info() (vfs.FsInfo, error) { return f.branches[0].Info() }

var _ vfs.FileSystem = (*FS)(nil)

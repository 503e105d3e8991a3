// Package hostfs is a pass-through FileSystem over a host directory
// (spec.md §4.K): every vfs.Inode operation is translated to the matching
// os/unix call against a real path below the configured root.
package hostfs

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/KarpelesLab/vfscore"
)

// FS roots a vfs.FileSystem at a host directory.
type FS struct {
	root string
	mu   sync.Mutex
}

// New opens root (which must already exist and be a directory) as a FS.
func New(root string) (*FS, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, wrapErr(err)
	}
	if !info.IsDir() {
		return nil, vfs.ErrNotDir
	}
	return &FS{root: root}, nil
}

func (f *FS) RootInode() vfs.Inode { return &Inode{fs: f, rel: "."} }

func (f *FS) Sync() error { return nil }

func (f *FS) Info() (vfs.FsInfo, error) { return statfsInfo(f.root) }

// Inode is a host path relative to its FS's root.
type Inode struct {
	fs  *FS
	rel string
}

func (n *Inode) Fs() vfs.FileSystem { return n.fs }

func (n *Inode) fullPath() string { return filepath.Join(n.fs.root, n.rel) }

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return vfs.ErrEntryNotFound
	case os.IsExist(err):
		return vfs.ErrEntryExist
	case os.IsPermission(err):
		return vfs.ErrDeviceError
	default:
		return vfs.ErrDeviceError
	}
}

func (n *Inode) Metadata() (vfs.Metadata, error) {
	return lstatMetadata(n.fullPath())
}

func (n *Inode) SetMetadata(md vfs.Metadata) error {
	path := n.fullPath()
	if md.Mode != 0 {
		if err := os.Chmod(path, os.FileMode(md.Mode&0o7777)); err != nil {
			return wrapErr(err)
		}
	}
	if !md.MTime.IsZero() {
		if err := os.Chtimes(path, md.ATime, md.MTime); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (n *Inode) ReadAt(off uint64, buf []byte) (int, error) {
	md, err := n.Metadata()
	if err == nil && md.Type == vfs.TypeDir {
		return 0, vfs.ErrIsDir
	}
	if err == nil && md.Type == vfs.TypeSymLink {
		target, err := os.Readlink(n.fullPath())
		if err != nil {
			return 0, wrapErr(err)
		}
		if off >= uint64(len(target)) {
			return 0, nil
		}
		return copy(buf, target[off:]), nil
	}

	f, err := os.Open(n.fullPath())
	if err != nil {
		return 0, wrapErr(err)
	}
	defer f.Close()
	nRead, err := f.ReadAt(buf, int64(off))
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return nRead, wrapErr(err)
	}
	return nRead, nil
}

func (n *Inode) WriteAt(off uint64, buf []byte) (int, error) {
	md, err := n.Metadata()
	if err == nil && md.Type == vfs.TypeDir {
		return 0, vfs.ErrIsDir
	}
	if err == nil && md.Type == vfs.TypeSymLink {
		// host symlinks are created with their final target in one shot;
		// the vfs write_at contract instead supplies the target after
		// create(), so the first write replaces the link atomically.
		target := string(buf)
		path := n.fullPath()
		_ = os.Remove(path)
		if err := os.Symlink(target, path); err != nil {
			return 0, wrapErr(err)
		}
		return len(buf), nil
	}

	f, err := os.OpenFile(n.fullPath(), os.O_WRONLY, 0)
	if err != nil {
		return 0, wrapErr(err)
	}
	defer f.Close()
	nWritten, err := f.WriteAt(buf, int64(off))
	if err != nil {
		return nWritten, wrapErr(err)
	}
	return nWritten, nil
}

func (n *Inode) Poll() (vfs.PollStatus, error) {
	return vfs.PollStatus{Read: true, Write: true}, nil
}

func (n *Inode) SyncAll() error { return n.syncFile() }
func (n *Inode) SyncData() error { return n.syncFile() }

func (n *Inode) syncFile() error {
	f, err := os.OpenFile(n.fullPath(), os.O_RDONLY, 0)
	if err != nil {
		return wrapErr(err)
	}
	defer f.Close()
	return wrapErr(f.Sync())
}

func (n *Inode) Resize(newSize uint64) error {
	md, err := n.Metadata()
	if err != nil {
		return err
	}
	if md.Type == vfs.TypeDir {
		return vfs.ErrIsDir
	}
	if md.Type != vfs.TypeFile {
		return vfs.ErrNotFile
	}
	return wrapErr(os.Truncate(n.fullPath(), int64(newSize)))
}

func (n *Inode) childPath(name string) string {
	return filepath.Join(n.rel, name)
}

func (n *Inode) Find(name string) (vfs.Inode, error) {
	md, err := lstatMetadata(n.fullPath())
	if err != nil {
		return nil, err
	}
	if md.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	switch name {
	case ".":
		return n, nil
	case "..":
		return &Inode{fs: n.fs, rel: filepath.Dir(n.rel)}, nil
	}

	child := &Inode{fs: n.fs, rel: n.childPath(name)}
	if _, err := lstatMetadata(child.fullPath()); err != nil {
		return nil, err
	}
	return child, nil
}

func (n *Inode) GetEntry(i int) (string, error) {
	switch i {
	case 0:
		return ".", nil
	case 1:
		return "..", nil
	}
	entries, err := os.ReadDir(n.fullPath())
	if err != nil {
		return "", wrapErr(err)
	}
	idx := i - 2
	if idx < 0 || idx >= len(entries) {
		return "", vfs.ErrEntryNotFound
	}
	return entries[idx].Name(), nil
}

func (n *Inode) Create(name string, typ vfs.FileType, mode uint32) (vfs.Inode, error) {
	path := n.childPath(name)
	full := n.fs.rootedPath(path)

	switch typ {
	case vfs.TypeDir:
		if err := os.Mkdir(full, os.FileMode(mode&0o7777)); err != nil {
			return nil, wrapErr(err)
		}
	case vfs.TypeSymLink:
		// created pointing at a dangling placeholder path; the caller's
		// first write_at installs the real target (see WriteAt).
		tmp := full + ".sefs-placeholder"
		if err := os.Symlink(tmp, full); err != nil {
			return nil, wrapErr(err)
		}
	default:
		f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(mode&0o7777))
		if err != nil {
			return nil, wrapErr(err)
		}
		f.Close()
	}
	return &Inode{fs: n.fs, rel: path}, nil
}

func (n *Inode) Link(name string, target vfs.Inode) error {
	other, ok := target.(*Inode)
	if !ok || other.fs != n.fs {
		return vfs.ErrNotSameFs
	}
	md, err := other.Metadata()
	if err != nil {
		return err
	}
	if md.Type == vfs.TypeDir {
		return vfs.ErrIsDir
	}
	return wrapErr(os.Link(other.fullPath(), n.fs.rootedPath(n.childPath(name))))
}

func (n *Inode) Unlink(name string) error {
	path := n.fs.rootedPath(n.childPath(name))
	err := os.Remove(path)
	if err != nil {
		if pe, ok := err.(*os.PathError); ok && isNotEmpty(pe.Err) {
			return vfs.ErrDirNotEmpty
		}
		return wrapErr(err)
	}
	return nil
}

func (n *Inode) Move(oldName string, targetDir vfs.Inode, newName string) error {
	dst, ok := targetDir.(*Inode)
	if !ok || dst.fs != n.fs {
		return vfs.ErrNotSameFs
	}
	oldPath := n.fs.rootedPath(n.childPath(oldName))
	newPath := n.fs.rootedPath(dst.childPath(newName))
	return wrapErr(os.Rename(oldPath, newPath))
}

func (n *Inode) IoControl(cmd uint32, data []byte) ([]byte, error) {
	return nil, vfs.ErrNotSupported
}

func (f *FS) rootedPath(rel string) string { return filepath.Join(f.root, rel) }

var _ vfs.Inode = (*Inode)(nil)
var _ vfs.FileSystem = (*FS)(nil)

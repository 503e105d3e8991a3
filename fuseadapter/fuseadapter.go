// Package fuseadapter bridges a vfs.FileSystem to hanwen/go-fuse's node
// API, the FUSE bindings named as an external collaborator in spec.md §1.
package fuseadapter

import (
	"context"
	"errors"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/KarpelesLab/vfscore"
)

// Node wraps a single vfs.Inode as a FUSE node.
type Node struct {
	fs.Inode
	vfsIno vfs.Inode
}

var (
	_ fs.InodeEmbedder = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeReadlinker = (*Node)(nil)
)

// Mount exposes filesystem at mountpoint using go-fuse's high-level node API.
func Mount(mountpoint string, filesystem vfs.FileSystem, opts *fs.Options) (*fuse.Server, error) {
	root := &Node{vfsIno: filesystem.RootInode()}
	return fs.Mount(mountpoint, root, opts)
}

func modeFor(t vfs.FileType) uint32 {
	switch t {
	case vfs.TypeDir:
		return syscall.S_IFDIR
	case vfs.TypeSymLink:
		return syscall.S_IFLNK
	case vfs.TypeCharDevice:
		return syscall.S_IFCHR
	case vfs.TypeBlockDevice:
		return syscall.S_IFBLK
	default:
		return syscall.S_IFREG
	}
}

func fillAttr(out *fuse.Attr, md vfs.Metadata) {
	out.Ino = md.Inode
	out.Size = md.Size
	out.Mode = modeFor(md.Type) | (md.Mode & 0o7777)
	out.Nlink = md.NLinks
	out.Uid = md.UID
	out.Gid = md.GID
	out.Blksize = md.BlkSize
	out.SetTimes(&md.ATime, &md.MTime, &md.CTime)
}

// errnoFor maps the closed vfs.Error taxonomy onto the nearest POSIX errno,
// since FUSE has no concept of the taxonomy itself.
func errnoFor(err error) syscall.Errno {
	switch {
	case err == nil:
		return fs.OK
	case errors.Is(err, vfs.ErrEntryNotFound):
		return syscall.ENOENT
	case errors.Is(err, vfs.ErrEntryExist):
		return syscall.EEXIST
	case errors.Is(err, vfs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, vfs.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, vfs.ErrNotFile):
		return syscall.EINVAL
	case errors.Is(err, vfs.ErrDirNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, vfs.ErrNotSameFs):
		return syscall.EXDEV
	case errors.Is(err, vfs.ErrNoDeviceSpace):
		return syscall.ENOSPC
	case errors.Is(err, vfs.ErrBusy):
		return syscall.EBUSY
	case errors.Is(err, vfs.ErrNotSupported):
		return syscall.ENOSYS
	case errors.Is(err, vfs.ErrInvalidParam):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.vfsIno.Find(name)
	if err != nil {
		return nil, errnoFor(err)
	}
	md, err := child.Metadata()
	if err != nil {
		return nil, errnoFor(err)
	}
	fillAttr(&out.Attr, md)
	stable := fs.StableAttr{Mode: modeFor(md.Type), Ino: md.Inode}
	return n.NewInode(ctx, &Node{vfsIno: child}, stable), fs.OK
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	md, err := n.vfsIno.Metadata()
	if err != nil {
		return errnoFor(err)
	}
	fillAttr(&out.Attr, md)
	return fs.OK
}

type dirStream struct {
	ino vfs.Inode
	idx int
}

func (d *dirStream) HasNext() bool {
	_, err := d.ino.GetEntry(d.idx)
	return err == nil
}

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	name, err := d.ino.GetEntry(d.idx)
	if err != nil {
		return fuse.DirEntry{}, errnoFor(err)
	}
	d.idx++

	child, err := d.ino.Find(name)
	if err != nil {
		return fuse.DirEntry{}, errnoFor(err)
	}
	md, err := child.Metadata()
	if err != nil {
		return fuse.DirEntry{}, errnoFor(err)
	}
	return fuse.DirEntry{Name: name, Ino: md.Inode, Mode: modeFor(md.Type)}, fs.OK
}

func (d *dirStream) Close() {}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return &dirStream{ino: n.vfsIno}, fs.OK
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	nRead, err := n.vfsIno.ReadAt(uint64(off), dest)
	if err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:nRead]), fs.OK
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.vfsIno.WriteAt(uint64(off), data)
	if err != nil {
		return 0, errnoFor(err)
	}
	return uint32(written), fs.OK
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child, err := n.vfsIno.Create(name, vfs.TypeFile, mode)
	if err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	md, err := child.Metadata()
	if err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	fillAttr(&out.Attr, md)
	stable := fs.StableAttr{Mode: modeFor(md.Type), Ino: md.Inode}
	return n.NewInode(ctx, &Node{vfsIno: child}, stable), nil, 0, fs.OK
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child, err := n.vfsIno.Create(name, vfs.TypeDir, mode)
	if err != nil {
		return nil, errnoFor(err)
	}
	md, err := child.Metadata()
	if err != nil {
		return nil, errnoFor(err)
	}
	fillAttr(&out.Attr, md)
	stable := fs.StableAttr{Mode: modeFor(md.Type), Ino: md.Inode}
	return n.NewInode(ctx, &Node{vfsIno: child}, stable), fs.OK
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.vfsIno.Unlink(name))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.vfsIno.Unlink(name))
}

func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dst, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	return errnoFor(n.vfsIno.Move(name, dst.vfsIno, newName))
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	buf := make([]byte, 4096)
	nRead, err := n.vfsIno.ReadAt(0, buf)
	if err != nil {
		return nil, errnoFor(err)
	}
	return buf[:nRead], fs.OK
}

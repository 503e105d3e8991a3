package mountfs

import "github.com/KarpelesLab/vfscore"

// Inode is an inner vfs.Inode together with the MountFS level it is being
// viewed through; crossing a mount point changes both fields.
type Inode struct {
	mfs   *FS
	inner vfs.Inode
}

func (n *Inode) Fs() vfs.FileSystem { return n.mfs }

// overlay resolves (f, inner) to the effective inode a caller should see:
// if f has a sub-MountFS registered at inner's id, substitute that
// sub-MountFS's root, repeating in case mounts are stacked.
func overlay(f *FS, inner vfs.Inode) (*FS, vfs.Inode) {
	for {
		md, err := inner.Metadata()
		if err != nil {
			return f, inner
		}
		f.mu.Lock()
		sub, ok := f.mounts[md.Inode]
		f.mu.Unlock()
		if !ok {
			return f, inner
		}
		f = sub
		inner = sub.inner.RootInode()
	}
}

// Mount installs fsHere at this inode, so that future lookups landing on
// this inode are redirected to fsHere's root.
func (n *Inode) Mount(fsHere vfs.FileSystem) error {
	md, err := n.inner.Metadata()
	if err != nil {
		return err
	}
	sub := &FS{inner: fsHere, parentMount: n.mfs, parentInode: n, mounts: make(map[uint64]*FS)}

	n.mfs.mu.Lock()
	n.mfs.mounts[md.Inode] = sub
	n.mfs.mu.Unlock()
	return nil
}

func (n *Inode) isMountRoot() bool {
	rootMd, err := n.mfs.inner.RootInode().Metadata()
	if err != nil {
		return false
	}
	selfMd, err := n.inner.Metadata()
	if err != nil {
		return false
	}
	return rootMd.Inode == selfMd.Inode
}

func (n *Inode) Find(name string) (vfs.Inode, error) {
	if name == "." {
		return n, nil
	}
	if name == ".." {
		return n.rawParent()
	}

	baseFS, baseInner := overlay(n.mfs, n.inner)
	next, err := baseInner.Find(name)
	if err != nil {
		return nil, err
	}
	newFS, newInner := overlay(baseFS, next)
	return &Inode{mfs: newFS, inner: newInner}, nil
}

// rawParent resolves "..", crossing out of a mount when n sits at the root
// of its own MountFS level. It must not overlay n itself first: n.mfs's
// parentInode (when n is a mount's root) is deliberately the raw,
// not-yet-overlaid mount-point inode, so that the parent lookup happens in
// the outer FS rather than bouncing straight back into this same mount.
func (n *Inode) rawParent() (vfs.Inode, error) {
	if n.isMountRoot() {
		if n.mfs.parentMount == nil {
			// global root: ".." of / is /
			return n, nil
		}
		return n.mfs.parentInode.rawParent()
	}

	next, err := n.inner.Find("..")
	if err != nil {
		return nil, err
	}
	newFS, newInner := overlay(n.mfs, next)
	return &Inode{mfs: newFS, inner: newInner}, nil
}

func (n *Inode) GetEntry(i int) (string, error) {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.GetEntry(i)
}

func (n *Inode) Metadata() (vfs.Metadata, error) {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.Metadata()
}

func (n *Inode) SetMetadata(md vfs.Metadata) error {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.SetMetadata(md)
}

func (n *Inode) ReadAt(off uint64, buf []byte) (int, error) {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.ReadAt(off, buf)
}

func (n *Inode) WriteAt(off uint64, buf []byte) (int, error) {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.WriteAt(off, buf)
}

func (n *Inode) Poll() (vfs.PollStatus, error) {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.Poll()
}

func (n *Inode) SyncAll() error {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.SyncAll()
}

func (n *Inode) SyncData() error {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.SyncData()
}

func (n *Inode) Resize(newSize uint64) error {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.Resize(newSize)
}

func (n *Inode) IoControl(cmd uint32, data []byte) ([]byte, error) {
	_, baseInner := overlay(n.mfs, n.inner)
	return baseInner.IoControl(cmd, data)
}

func (n *Inode) Create(name string, typ vfs.FileType, mode uint32) (vfs.Inode, error) {
	baseFS, baseInner := overlay(n.mfs, n.inner)
	child, err := baseInner.Create(name, typ, mode)
	if err != nil {
		return nil, err
	}
	newFS, newInner := overlay(baseFS, child)
	return &Inode{mfs: newFS, inner: newInner}, nil
}

func (n *Inode) Link(name string, target vfs.Inode) error {
	other, ok := target.(*Inode)
	if !ok {
		return vfs.ErrNotSameFs
	}
	baseFS, baseInner := overlay(n.mfs, n.inner)
	otherFS, otherInner := overlay(other.mfs, other.inner)
	if baseFS != otherFS {
		return vfs.ErrNotSameFs
	}
	return baseInner.Link(name, otherInner)
}

// Unlink rejects with ErrBusy when name names an inode that has a
// sub-MountFS registered at it.
func (n *Inode) Unlink(name string) error {
	baseFS, baseInner := overlay(n.mfs, n.inner)
	target, err := baseInner.Find(name)
	if err != nil {
		return err
	}
	md, err := target.Metadata()
	if err != nil {
		return err
	}

	baseFS.mu.Lock()
	_, mounted := baseFS.mounts[md.Inode]
	baseFS.mu.Unlock()
	if mounted {
		return vfs.ErrBusy
	}
	return baseInner.Unlink(name)
}

func (n *Inode) Move(oldName string, targetDir vfs.Inode, newName string) error {
	dst, ok := targetDir.(*Inode)
	if !ok {
		return vfs.ErrNotSameFs
	}
	baseFS, baseInner := overlay(n.mfs, n.inner)
	dstFS, dstInner := overlay(dst.mfs, dst.inner)
	if baseFS != dstFS {
		return vfs.ErrNotSameFs
	}
	return baseInner.Move(oldName, dstInner, newName)
}

var _ vfs.Inode = (*Inode)(nil)

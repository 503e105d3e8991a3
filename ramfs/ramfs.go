// Package ramfs is the in-memory reference implementation of the vfs
// contract: every invariant of spec.md §3 is enforced here first, and this
// package is used as the canonical oracle in tests for the on-disk engines.
package ramfs

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KarpelesLab/vfscore"
)

type dirEntry struct {
	name  string
	inode *Inode
}

// Inode is a RamFS node: metadata plus either a byte buffer (files,
// symlinks) or an ordered entry list (directories). Parent and self are
// plain pointers rather than owning references; RamFS's directory entry
// list is what keeps a child alive, exactly as spec.md §4.E/§9 describe.
type Inode struct {
	fs *FS
	id uint64

	mu sync.RWMutex

	typ    vfs.FileType
	mode   uint32
	uid    uint32
	gid    uint32
	nlinks uint32
	rdev   vfs.DevicePair

	atime, mtime, ctime time.Time

	data     []byte     // files, symlinks
	children []dirEntry // directories, in creation order (index 0 is first real entry)

	parent *Inode
}

// FS is the in-memory FileSystem.
type FS struct {
	root   *Inode
	nextID uint64

	mu sync.Mutex // protects the global id counter only
}

// New creates an empty RamFS with just a root directory.
func New() *FS {
	fs := &FS{}
	root := &Inode{fs: fs, typ: vfs.TypeDir, mode: 0o755, nlinks: 2}
	root.parent = root
	now := time.Now()
	root.atime, root.mtime, root.ctime = now, now, now
	root.id = fs.allocID()
	fs.root = root
	return fs
}

func (f *FS) allocID() uint64 {
	return atomic.AddUint64(&f.nextID, 1)
}

func (f *FS) RootInode() vfs.Inode { return f.root }

func (f *FS) Sync() error { return nil }

func (f *FS) Info() (vfs.FsInfo, error) {
	return vfs.FsInfo{BlockSize: 4096, MaxNameLen: 255}, nil
}

func (n *Inode) Fs() vfs.FileSystem { return n.fs }

func (n *Inode) Metadata() (vfs.Metadata, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	size := uint64(len(n.data))
	if n.typ == vfs.TypeDir {
		size = uint64(len(n.children) + 2)
	}

	return vfs.Metadata{
		Inode:   n.id,
		Size:    size,
		Mode:    n.mode,
		Type:    n.typ,
		NLinks:  n.nlinks,
		UID:     n.uid,
		GID:     n.gid,
		BlkSize: 4096,
		Blocks:  (size + 4095) / 4096,
		ATime:   n.atime,
		MTime:   n.mtime,
		CTime:   n.ctime,
		RDev:    n.rdev,
	}, nil
}

func (n *Inode) SetMetadata(md vfs.Metadata) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = md.Mode
	n.uid = md.UID
	n.gid = md.GID
	if !md.MTime.IsZero() {
		n.mtime = md.MTime
	}
	if !md.ATime.IsZero() {
		n.atime = md.ATime
	}
	return nil
}

func (n *Inode) ReadAt(off uint64, buf []byte) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.typ == vfs.TypeDir {
		return 0, vfs.ErrIsDir
	}
	if off >= uint64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[off:]), nil
}

func (n *Inode) WriteAt(off uint64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.typ == vfs.TypeDir {
		return 0, vfs.ErrIsDir
	}
	end := off + uint64(len(buf))
	if end > uint64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:end], buf)
	n.mtime = time.Now()
	return len(buf), nil
}

func (n *Inode) Poll() (vfs.PollStatus, error) {
	return vfs.PollStatus{Read: true, Write: true}, nil
}

func (n *Inode) SyncAll() error { return nil }
func (n *Inode) SyncData() error { return nil }

func (n *Inode) Resize(newSize uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.typ == vfs.TypeDir {
		return vfs.ErrIsDir
	}
	if n.typ != vfs.TypeFile {
		return vfs.ErrNotFile
	}
	if newSize <= uint64(len(n.data)) {
		n.data = n.data[:newSize]
		return nil
	}
	grown := make([]byte, newSize)
	copy(grown, n.data)
	n.data = grown
	return nil
}

func (n *Inode) findLocked(name string) (*Inode, error) {
	switch name {
	case ".":
		return n, nil
	case "..":
		return n.parent, nil
	}
	for _, e := range n.children {
		if e.name == name {
			return e.inode, nil
		}
	}
	return nil, vfs.ErrEntryNotFound
}

func (n *Inode) Find(name string) (vfs.Inode, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.typ != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}
	child, err := n.findLocked(name)
	if err != nil {
		return nil, err
	}
	return child, nil
}

func (n *Inode) GetEntry(i int) (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.typ != vfs.TypeDir {
		return "", vfs.ErrNotDir
	}
	switch i {
	case 0:
		return ".", nil
	case 1:
		return "..", nil
	}
	idx := i - 2
	if idx < 0 || idx >= len(n.children) {
		return "", vfs.ErrEntryNotFound
	}
	return n.children[idx].name, nil
}

func (n *Inode) Create(name string, typ vfs.FileType, mode uint32) (vfs.Inode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.typ != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}
	if _, err := n.findLocked(name); err == nil {
		return nil, vfs.ErrEntryExist
	}

	now := time.Now()
	child := &Inode{
		fs:     n.fs,
		id:     n.fs.allocID(),
		typ:    typ,
		mode:   mode,
		parent: n,
		atime:  now, mtime: now, ctime: now,
	}
	if typ == vfs.TypeDir {
		child.nlinks = 2
		n.nlinks++
	} else {
		child.nlinks = 1
	}

	n.children = append(n.children, dirEntry{name: name, inode: child})
	return child, nil
}

func (n *Inode) Link(name string, target vfs.Inode) error {
	other, ok := target.(*Inode)
	if !ok || other.fs != n.fs {
		return vfs.ErrNotSameFs
	}

	first, second := n, other
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	if first != second {
		second.mu.Lock()
	}
	defer first.mu.Unlock()
	if first != second {
		defer second.mu.Unlock()
	}

	if n.typ != vfs.TypeDir {
		return vfs.ErrNotDir
	}
	if other.typ == vfs.TypeDir {
		return vfs.ErrIsDir
	}
	if _, err := n.findLocked(name); err == nil {
		return vfs.ErrEntryExist
	}

	n.children = append(n.children, dirEntry{name: name, inode: other})
	other.nlinks++
	return nil
}

func (n *Inode) Unlink(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.typ != vfs.TypeDir {
		return vfs.ErrNotDir
	}
	idx := -1
	for i, e := range n.children {
		if e.name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return vfs.ErrEntryNotFound
	}
	target := n.children[idx].inode

	if target.typ == vfs.TypeDir {
		target.mu.RLock()
		empty := len(target.children) == 0
		target.mu.RUnlock()
		if !empty {
			return vfs.ErrDirNotEmpty
		}
	}

	n.children = append(n.children[:idx], n.children[idx+1:]...)

	target.mu.Lock()
	target.nlinks--
	if target.typ == vfs.TypeDir {
		n.nlinks--
	}
	target.mu.Unlock()
	return nil
}

func (n *Inode) Move(oldName string, targetDir vfs.Inode, newName string) error {
	dst, ok := targetDir.(*Inode)
	if !ok || dst.fs != n.fs {
		return vfs.ErrNotSameFs
	}

	first, second := n, dst
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	if first != second {
		second.mu.Lock()
	}
	defer first.mu.Unlock()
	if first != second {
		defer second.mu.Unlock()
	}

	if n.typ != vfs.TypeDir || dst.typ != vfs.TypeDir {
		return vfs.ErrNotDir
	}

	idx := -1
	for i, e := range n.children {
		if e.name == oldName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return vfs.ErrEntryNotFound
	}

	if _, err := dst.findLocked(newName); err == nil {
		return vfs.ErrEntryExist
	}

	moved := n.children[idx]
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	moved.name = newName
	dst.children = append(dst.children, moved)

	if moved.inode.typ == vfs.TypeDir {
		moved.inode.parent = dst
		if dst != n {
			n.nlinks--
			dst.nlinks++
		}
	}
	return nil
}

func (n *Inode) IoControl(cmd uint32, data []byte) ([]byte, error) {
	return nil, vfs.ErrNotSupported
}

// Names returns "." and ".." followed by the directory's other entry names
// sorted alphabetically, not in listing order (test helper).
func (n *Inode) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.children)+2)
	out = append(out, ".", "..")
	for _, e := range n.children {
		out = append(out, e.name)
	}
	sort.Strings(out[2:])
	return out
}

var _ vfs.Inode = (*Inode)(nil)
var _ vfs.FileSystem = (*FS)(nil)

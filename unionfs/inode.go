package unionfs

import (
	"strings"
	"sync"

	"github.com/KarpelesLab/vfscore"
)

// branchState is one branch's resolution of an Inode's virtual path: either
// the real inode the path reached (distance 0), or how many trailing path
// components that branch failed to resolve.
type branchState struct {
	inode    vfs.Inode
	distance int
}

// Inode is a virtual path plus its per-branch resolution.
type Inode struct {
	fs   *FS
	path []string

	mu       sync.RWMutex
	branches []branchState
	listCache []string
}

func (n *Inode) Fs() vfs.FileSystem { return n.fs }

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}

// resolvePath walks every branch from its own root along path, independently.
func resolvePath(f *FS, path []string) (*Inode, error) {
	branches := make([]branchState, len(f.branches))
	exists := len(path) == 0

	for bi, bfs := range f.branches {
		cur := bfs.RootInode()
		dist := 0
		resolved := true
		for i, comp := range path {
			next, err := cur.Find(comp)
			if err != nil {
				dist = len(path) - i
				resolved = false
				break
			}
			cur = next
		}
		if resolved {
			branches[bi] = branchState{inode: cur, distance: 0}
			exists = true
		} else {
			branches[bi] = branchState{distance: dist}
		}
	}

	if !exists {
		return nil, vfs.ErrEntryNotFound
	}
	return &Inode{fs: f, path: clonePath(path), branches: branches}, nil
}

// topmost returns the first branch (container first) that fully resolved.
func (n *Inode) topmost() (vfs.Inode, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, b := range n.branches {
		if b.distance == 0 {
			return b.inode, nil
		}
	}
	return nil, vfs.ErrEntryNotFound
}

func (n *Inode) invalidateCache() {
	n.mu.Lock()
	n.listCache = nil
	n.mu.Unlock()
}

// containerInode lazily materializes this path in the container: mkdir -p
// through the missing prefix, then, if the live inode is a regular file
// found in a lower branch, copy its contents byte-for-byte (COW) before
// handing back the container-side inode.
func (n *Inode) containerInode() (vfs.Inode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.branches[0].distance == 0 {
		return n.branches[0].inode, nil
	}

	live, err := n.topmostLocked()
	if err != nil {
		return nil, err
	}
	liveMd, err := live.Metadata()
	if err != nil {
		return nil, err
	}

	depth := len(n.path) - n.branches[0].distance
	cur := n.fs.branches[0].RootInode()
	for i := 0; i < depth; i++ {
		next, err := cur.Find(n.path[i])
		if err != nil {
			return nil, err
		}
		cur = next
	}

	for i := depth; i < len(n.path); i++ {
		comp := n.path[i]
		typ := vfs.TypeDir
		mode := uint32(0o755)
		if i == len(n.path)-1 {
			typ = liveMd.Type
			mode = liveMd.Mode
		}
		next, err := cur.Create(comp, typ, mode)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if liveMd.Type == vfs.TypeFile {
		if err := copyBytes(live, cur, liveMd.Size); err != nil {
			return nil, err
		}
	} else if liveMd.Type == vfs.TypeSymLink {
		buf := make([]byte, liveMd.Size)
		if _, err := live.ReadAt(0, buf); err != nil {
			return nil, err
		}
		if _, err := cur.WriteAt(0, buf); err != nil {
			return nil, err
		}
	}

	n.branches[0] = branchState{inode: cur, distance: 0}
	return cur, nil
}

func (n *Inode) topmostLocked() (vfs.Inode, error) {
	for _, b := range n.branches {
		if b.distance == 0 {
			return b.inode, nil
		}
	}
	return nil, vfs.ErrEntryNotFound
}

func copyBytes(src, dst vfs.Inode, size uint64) error {
	const chunk = 32 * 1024
	buf := make([]byte, chunk)
	var off uint64
	for off < size {
		want := buf
		if size-off < chunk {
			want = buf[:size-off]
		}
		nRead, err := src.ReadAt(off, want)
		if err != nil {
			return err
		}
		if nRead == 0 {
			break
		}
		if _, err := dst.WriteAt(off, want[:nRead]); err != nil {
			return err
		}
		off += uint64(nRead)
	}
	return nil
}

// mergedNames unions every branch's directory entries at this path, then
// removes names the container whites out and caches the result.
func (n *Inode) mergedNames() ([]string, error) {
	n.mu.RLock()
	if n.listCache != nil {
		defer n.mu.RUnlock()
		return n.listCache, nil
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listCache != nil {
		return n.listCache, nil
	}

	seen := make(map[string]bool)
	whiteout := make(map[string]bool)
	var order []string

	for bi, b := range n.branches {
		if b.distance != 0 {
			continue
		}
		md, err := b.inode.Metadata()
		if err != nil {
			return nil, err
		}
		if md.Type != vfs.TypeDir {
			continue
		}
		for i := 0; ; i++ {
			name, err := b.inode.GetEntry(i)
			if err != nil {
				break
			}
			if name == "." || name == ".." {
				continue
			}
			if bi == 0 && strings.HasPrefix(name, whiteoutPrefix) {
				whiteout[strings.TrimPrefix(name, whiteoutPrefix)] = true
				continue
			}
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}

	result := make([]string, 0, len(order))
	for _, name := range order {
		if !whiteout[name] {
			result = append(result, name)
		}
	}
	n.listCache = result
	return result, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func (n *Inode) Find(name string) (vfs.Inode, error) {
	switch name {
	case ".":
		return n, nil
	case "..":
		if len(n.path) == 0 {
			return n, nil
		}
		return resolvePath(n.fs, n.path[:len(n.path)-1])
	}

	n.mu.RLock()
	container := n.branches[0]
	n.mu.RUnlock()
	if container.distance == 0 {
		if _, err := container.inode.Find(whiteoutName(name)); err == nil {
			return nil, vfs.ErrEntryNotFound
		}
	}

	return resolvePath(n.fs, append(clonePath(n.path), name))
}

func (n *Inode) GetEntry(i int) (string, error) {
	switch i {
	case 0:
		return ".", nil
	case 1:
		return "..", nil
	}
	names, err := n.mergedNames()
	if err != nil {
		return "", err
	}
	idx := i - 2
	if idx < 0 || idx >= len(names) {
		return "", vfs.ErrEntryNotFound
	}
	return names[idx], nil
}

func (n *Inode) Metadata() (vfs.Metadata, error) {
	top, err := n.topmost()
	if err != nil {
		return vfs.Metadata{}, err
	}
	md, err := top.Metadata()
	if err != nil {
		return vfs.Metadata{}, err
	}
	md.Inode = pathHash(n.path)
	return md, nil
}

func (n *Inode) SetMetadata(md vfs.Metadata) error {
	c, err := n.containerInode()
	if err != nil {
		return err
	}
	return c.SetMetadata(md)
}

func (n *Inode) ReadAt(off uint64, buf []byte) (int, error) {
	top, err := n.topmost()
	if err != nil {
		return 0, err
	}
	return top.ReadAt(off, buf)
}

func (n *Inode) WriteAt(off uint64, buf []byte) (int, error) {
	c, err := n.containerInode()
	if err != nil {
		return 0, err
	}
	return c.WriteAt(off, buf)
}

func (n *Inode) Resize(newSize uint64) error {
	c, err := n.containerInode()
	if err != nil {
		return err
	}
	return c.Resize(newSize)
}

func (n *Inode) Poll() (vfs.PollStatus, error) {
	top, err := n.topmost()
	if err != nil {
		return vfs.PollStatus{}, err
	}
	return top.Poll()
}

func (n *Inode) SyncAll() error {
	n.mu.RLock()
	c := n.branches[0]
	n.mu.RUnlock()
	if c.distance != 0 {
		return nil
	}
	return c.inode.SyncAll()
}

func (n *Inode) SyncData() error {
	n.mu.RLock()
	c := n.branches[0]
	n.mu.RUnlock()
	if c.distance != 0 {
		return nil
	}
	return c.inode.SyncData()
}

func (n *Inode) IoControl(cmd uint32, data []byte) ([]byte, error) {
	top, err := n.topmost()
	if err != nil {
		return nil, err
	}
	return top.IoControl(cmd, data)
}

func (n *Inode) Create(name string, typ vfs.FileType, mode uint32) (vfs.Inode, error) {
	names, err := n.mergedNames()
	if err != nil {
		return nil, err
	}
	if containsName(names, name) {
		return nil, vfs.ErrEntryExist
	}

	containerDir, err := n.containerInode()
	if err != nil {
		return nil, err
	}
	if _, err := containerDir.Find(whiteoutName(name)); err == nil {
		_ = containerDir.Unlink(whiteoutName(name))
	}
	if _, err := containerDir.Create(name, typ, mode); err != nil {
		return nil, err
	}

	n.invalidateCache()
	return resolvePath(n.fs, append(clonePath(n.path), name))
}

func (n *Inode) Link(name string, target vfs.Inode) error {
	other, ok := target.(*Inode)
	if !ok {
		return vfs.ErrNotSameFs
	}
	names, err := n.mergedNames()
	if err != nil {
		return err
	}
	if containsName(names, name) {
		return vfs.ErrEntryExist
	}

	containerDir, err := n.containerInode()
	if err != nil {
		return err
	}
	otherContainer, err := other.containerInode()
	if err != nil {
		return err
	}
	if err := containerDir.Link(name, otherContainer); err != nil {
		return err
	}
	n.invalidateCache()
	return nil
}

// Unlink removes name from the container if present, then leaves a
// whiteout there so lower-branch copies stay hidden.
func (n *Inode) Unlink(name string) error {
	names, err := n.mergedNames()
	if err != nil {
		return err
	}
	if !containsName(names, name) {
		return vfs.ErrEntryNotFound
	}

	containerDir, err := n.containerInode()
	if err != nil {
		return err
	}
	if _, err := containerDir.Find(name); err == nil {
		if err := containerDir.Unlink(name); err != nil {
			return err
		}
	}
	if _, err := containerDir.Create(whiteoutName(name), vfs.TypeFile, 0o644); err != nil {
		return err
	}

	n.invalidateCache()
	return nil
}

// Move ensures the source is materialized in the container (COW), performs
// the container-side move, and leaves a whiteout for the old name.
func (n *Inode) Move(oldName string, targetDir vfs.Inode, newName string) error {
	dst, ok := targetDir.(*Inode)
	if !ok {
		return vfs.ErrNotSameFs
	}

	child, err := n.Find(oldName)
	if err != nil {
		return err
	}
	if _, err := child.(*Inode).containerInode(); err != nil {
		return err
	}

	srcContainerDir, err := n.containerInode()
	if err != nil {
		return err
	}
	dstContainerDir, err := dst.containerInode()
	if err != nil {
		return err
	}

	if err := srcContainerDir.Move(oldName, dstContainerDir, newName); err != nil {
		return err
	}
	if _, err := srcContainerDir.Create(whiteoutName(oldName), vfs.TypeFile, 0o644); err != nil {
		return err
	}

	n.invalidateCache()
	dst.invalidateCache()
	return nil
}

var _ vfs.Inode = (*Inode)(nil)

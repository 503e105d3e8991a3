package sefs

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/KarpelesLab/vfscore"
)

// lockInodes locks every distinct inode in ascending id order, mirroring
// sfs's multi-inode locking discipline for spec.md §5.
func lockInodes(nodes ...*Inode) func() {
	uniq := make(map[uint32]*Inode, len(nodes))
	for _, n := range nodes {
		if n != nil {
			uniq[n.id] = n
		}
	}
	ordered := make([]*Inode, 0, len(uniq))
	for _, n := range uniq {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	for _, n := range ordered {
		n.mu.Lock()
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].mu.Unlock()
		}
	}
}

func (ino *Inode) direntRead(i int) (dirent, error) {
	buf := make([]byte, DirentSize)
	n, err := ino.file.ReadAt(int64(i)*DirentSize, buf)
	if err != nil {
		return dirent{}, err
	}
	if n < DirentSize {
		return dirent{}, vfs.ErrEntryNotFound
	}
	return unmarshalDirent(buf), nil
}

func (ino *Inode) direntWrite(i int, d dirent) error {
	_, err := ino.file.WriteAt(int64(i)*DirentSize, marshalDirent(d))
	return err
}

// direntAppend writes at offset blocks*DIRENT_SIZE and increments blocks,
// per spec.md §4.H.
func (ino *Inode) direntAppend(name string, targetID uint32) error {
	idx := int(ino.disk.Blocks)
	if err := ino.direntWrite(idx, dirent{InodeID: targetID, Name: name}); err != nil {
		return err
	}
	ino.disk.Blocks++
	ino.dirty = true
	return nil
}

// direntRemoveAt swaps the last entry into slot idx, truncates by one
// entry, and decrements blocks.
func (ino *Inode) direntRemoveAt(idx int) error {
	last := int(ino.disk.Blocks) - 1
	if idx != last {
		d, err := ino.direntRead(last)
		if err != nil {
			return err
		}
		if err := ino.direntWrite(idx, d); err != nil {
			return err
		}
	}
	if err := ino.file.SetLen(int64(last) * DirentSize); err != nil {
		return err
	}
	ino.disk.Blocks--
	ino.dirty = true
	return nil
}

func (ino *Inode) direntFind(name string) (int, uint32, error) {
	n := int(ino.disk.Blocks)
	for i := 0; i < n; i++ {
		d, err := ino.direntRead(i)
		if err != nil {
			return -1, 0, err
		}
		if d.Name == name {
			return i, d.InodeID, nil
		}
	}
	return -1, 0, vfs.ErrEntryNotFound
}

// initDirEntries installs "." and ".." at slots 0 and 1, per spec.md §4.H.
func (ino *Inode) initDirEntries(parentID uint32) error {
	if err := ino.direntAppend(".", ino.id); err != nil {
		return err
	}
	return ino.direntAppend("..", parentID)
}

func (ino *Inode) Find(name string) (vfs.Inode, error) {
	ino.mu.RLock()
	defer ino.mu.RUnlock()

	if ino.disk.Type != typeDir {
		return nil, vfs.ErrNotDir
	}
	_, targetID, err := ino.direntFind(name)
	if err != nil {
		return nil, err
	}
	return ino.fs.getInode(targetID)
}

func (ino *Inode) GetEntry(i int) (string, error) {
	ino.mu.RLock()
	defer ino.mu.RUnlock()

	if ino.disk.Type != typeDir {
		return "", vfs.ErrNotDir
	}
	d, err := ino.direntRead(i)
	if err != nil {
		return "", err
	}
	return d.Name, nil
}

func isReservedName(name string) bool {
	return name == "." || name == ".."
}

func (ino *Inode) Create(name string, typ vfs.FileType, mode uint32) (vfs.Inode, error) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.disk.Type != typeDir {
		return nil, vfs.ErrNotDir
	}
	if isReservedName(name) {
		return nil, vfs.ErrEntryExist
	}
	if _, _, err := ino.direntFind(name); err == nil {
		return nil, vfs.ErrEntryExist
	}

	blk, err := ino.fs.allocBlock()
	if err != nil {
		return nil, err
	}

	childUUID := uuid.New()
	file, err := ino.fs.storage.Create(childUUID.String())
	if err != nil {
		ino.fs.freeBlock(blk)
		return nil, vfs.ErrDeviceError
	}

	now := time.Now().UnixNano()
	disk := diskInode{Type: fromVfsType(typ), Mode: mode, ATime: now, MTime: now, CTime: now}
	copy(disk.UUID[:], childUUID[:])
	if typ == vfs.TypeDir {
		disk.NLinks = 2
	} else {
		disk.NLinks = 1
	}

	child := &Inode{fs: ino.fs, id: blk, disk: disk, file: file}

	rollback := func() {
		ino.fs.cacheMu.Lock()
		delete(ino.fs.cache, blk)
		ino.fs.cacheMu.Unlock()
		_ = ino.fs.storage.Remove(childUUID.String())
		ino.fs.freeBlock(blk)
	}

	if typ == vfs.TypeDir {
		if err := child.initDirEntries(ino.id); err != nil {
			rollback()
			return nil, err
		}
	}

	if err := ino.fs.writeInode(child); err != nil {
		rollback()
		return nil, err
	}

	ino.fs.cacheMu.Lock()
	ino.fs.cache[blk] = child
	ino.fs.cacheMu.Unlock()

	if err := ino.direntAppend(name, blk); err != nil {
		rollback()
		return nil, err
	}

	if typ == vfs.TypeDir {
		ino.disk.NLinks++
	}
	ino.dirty = true

	return child, nil
}

func (ino *Inode) Link(name string, target vfs.Inode) error {
	other, ok := target.(*Inode)
	if !ok || other.fs != ino.fs {
		return vfs.ErrNotSameFs
	}

	unlock := lockInodes(ino, other)
	defer unlock()

	if ino.disk.Type != typeDir {
		return vfs.ErrNotDir
	}
	if isReservedName(name) {
		return vfs.ErrEntryExist
	}
	if other.disk.Type == typeDir {
		return vfs.ErrIsDir
	}
	if _, _, err := ino.direntFind(name); err == nil {
		return vfs.ErrEntryExist
	}

	if err := ino.direntAppend(name, other.id); err != nil {
		return err
	}
	other.disk.NLinks++
	other.dirty = true
	return nil
}

func (ino *Inode) Unlink(name string) error {
	ino.mu.Lock()
	if ino.disk.Type != typeDir {
		ino.mu.Unlock()
		return vfs.ErrNotDir
	}
	if isReservedName(name) {
		ino.mu.Unlock()
		return vfs.ErrInvalidParam
	}
	_, targetID, err := ino.direntFind(name)
	if err != nil {
		ino.mu.Unlock()
		return err
	}
	ino.mu.Unlock()

	target, err := ino.fs.getInode(targetID)
	if err != nil {
		return err
	}

	unlock := lockInodes(ino, target)
	defer unlock()

	idx, targetID, err := ino.direntFind(name)
	if err != nil {
		return err
	}
	if targetID != target.id {
		return vfs.ErrEntryNotFound
	}

	if target.disk.Type == typeDir && target.disk.Blocks != 2 {
		return vfs.ErrDirNotEmpty
	}

	if err := ino.direntRemoveAt(idx); err != nil {
		return err
	}

	target.disk.NLinks--
	target.dirty = true
	if target.disk.Type == typeDir {
		target.disk.NLinks-- // its own "." entry
		ino.disk.NLinks--
		ino.dirty = true
	}

	if target.disk.NLinks == 0 {
		ino.fs.dropInode(target.id)
	}

	return nil
}

func (ino *Inode) Move(oldName string, targetDir vfs.Inode, newName string) error {
	dst, ok := targetDir.(*Inode)
	if !ok || dst.fs != ino.fs {
		return vfs.ErrNotSameFs
	}
	if isReservedName(oldName) || isReservedName(newName) {
		return vfs.ErrInvalidParam
	}

	unlock := lockInodes(ino, dst)
	defer unlock()

	if ino.disk.Type != typeDir || dst.disk.Type != typeDir {
		return vfs.ErrNotDir
	}

	idx, movedID, err := ino.direntFind(oldName)
	if err != nil {
		return err
	}
	if _, _, err := dst.direntFind(newName); err == nil {
		return vfs.ErrEntryExist
	}

	if ino == dst {
		d, err := ino.direntRead(idx)
		if err != nil {
			return err
		}
		d.Name = newName
		return ino.direntWrite(idx, d)
	}

	moved, err := ino.fs.getInode(movedID)
	if err != nil {
		return err
	}
	moved.mu.Lock()
	defer moved.mu.Unlock()

	if err := dst.direntAppend(newName, movedID); err != nil {
		return err
	}
	if err := ino.direntRemoveAt(idx); err != nil {
		if idx2, _, ferr := dst.direntFind(newName); ferr == nil {
			_ = dst.direntRemoveAt(idx2)
		}
		return err
	}

	if moved.disk.Type == typeDir {
		if err := moved.direntWrite(1, dirent{InodeID: dst.id, Name: ".."}); err != nil {
			return err
		}
		ino.disk.NLinks--
		dst.disk.NLinks++
		ino.dirty = true
		dst.dirty = true
	}

	return nil
}

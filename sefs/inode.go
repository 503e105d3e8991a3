package sefs

import (
	"sync"
	"time"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/dev"
)

// Inode is an in-memory SEFS inode: the metadata-file record plus a handle
// to its UUID-named backing file.
type Inode struct {
	fs *FS
	id uint32

	mu    sync.RWMutex
	disk  diskInode
	file  dev.File
	dirty bool
}

func (ino *Inode) Fs() vfs.FileSystem { return ino.fs }

func (ino *Inode) typ() vfs.FileType {
	switch ino.disk.Type {
	case typeFile:
		return vfs.TypeFile
	case typeDir:
		return vfs.TypeDir
	case typeSymLink:
		return vfs.TypeSymLink
	case typeCharDevice:
		return vfs.TypeCharDevice
	case typeBlockDevice:
		return vfs.TypeBlockDevice
	default:
		return vfs.TypeFile
	}
}

func fromVfsType(t vfs.FileType) uint16 {
	switch t {
	case vfs.TypeDir:
		return typeDir
	case vfs.TypeSymLink:
		return typeSymLink
	case vfs.TypeCharDevice:
		return typeCharDevice
	case vfs.TypeBlockDevice:
		return typeBlockDevice
	default:
		return typeFile
	}
}

func (ino *Inode) Metadata() (vfs.Metadata, error) {
	ino.mu.RLock()
	defer ino.mu.RUnlock()

	size := ino.disk.Size
	if ino.disk.Type == typeDir {
		size = uint64(ino.disk.Blocks)
	}

	return vfs.Metadata{
		Inode:   uint64(ino.id),
		Size:    size,
		Mode:    ino.disk.Mode,
		Type:    ino.typ(),
		NLinks:  uint32(ino.disk.NLinks),
		UID:     ino.disk.UID,
		GID:     ino.disk.GID,
		BlkSize: uint32(ino.fs.blockSize),
		Blocks:  uint64(ino.disk.Blocks),
		ATime:   time.Unix(0, ino.disk.ATime),
		MTime:   time.Unix(0, ino.disk.MTime),
		CTime:   time.Unix(0, ino.disk.CTime),
	}, nil
}

func (ino *Inode) SetMetadata(md vfs.Metadata) error {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.disk.Mode = md.Mode
	ino.disk.UID = md.UID
	ino.disk.GID = md.GID
	if !md.ATime.IsZero() {
		ino.disk.ATime = md.ATime.UnixNano()
	}
	if !md.MTime.IsZero() {
		ino.disk.MTime = md.MTime.UnixNano()
	}
	ino.dirty = true
	return nil
}

func (ino *Inode) Poll() (vfs.PollStatus, error) {
	return vfs.PollStatus{Read: true, Write: true}, nil
}

// SyncAll flushes the backing file and, if dirty, refreshes the MAC (when
// the Storage is integrity-only) and writes back the inode record.
func (ino *Inode) SyncAll() error {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if err := ino.file.Flush(); err != nil {
		return err
	}

	if !ino.dirty {
		return nil
	}

	if ino.fs.storage.IntegrityOnly() {
		mac, err := ino.file.GetFileMAC()
		if err != nil {
			return err
		}
		copy(ino.disk.MAC[:], mac)
	}

	if err := ino.fs.writeInode(ino); err != nil {
		return err
	}
	ino.dirty = false
	return nil
}

func (ino *Inode) SyncData() error {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	return ino.file.Flush()
}

func (ino *Inode) ReadAt(off uint64, buf []byte) (int, error) {
	ino.mu.RLock()
	defer ino.mu.RUnlock()

	if ino.disk.Type == typeDir {
		return 0, vfs.ErrIsDir
	}

	size := ino.disk.Size
	if off >= size {
		return 0, nil
	}
	if off+uint64(len(buf)) > size {
		buf = buf[:size-off]
	}
	return ino.file.ReadAt(int64(off), buf)
}

func (ino *Inode) WriteAt(off uint64, buf []byte) (int, error) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.disk.Type == typeDir {
		return 0, vfs.ErrIsDir
	}

	n, err := ino.file.WriteAt(int64(off), buf)
	if err != nil {
		return n, err
	}
	if end := off + uint64(n); end > ino.disk.Size {
		ino.disk.Size = end
	}
	ino.disk.MTime = time.Now().UnixNano()
	ino.dirty = true
	return n, nil
}

func (ino *Inode) Resize(newSize uint64) error {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.disk.Type == typeDir {
		return vfs.ErrIsDir
	}
	if ino.disk.Type != typeFile {
		return vfs.ErrNotFile
	}
	if err := ino.file.SetLen(int64(newSize)); err != nil {
		return err
	}
	ino.disk.Size = newSize
	ino.dirty = true
	return nil
}

func (ino *Inode) IoControl(cmd uint32, data []byte) ([]byte, error) {
	return nil, vfs.ErrNotSupported
}

var _ vfs.Inode = (*Inode)(nil)

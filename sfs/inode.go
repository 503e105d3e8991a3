package sfs

import (
	"fmt"
	"sync"
	"time"

	"github.com/KarpelesLab/vfscore"
)

// Inode is an in-memory SFS inode: the on-disk record plus bookkeeping the
// disk layout of spec.md §6 has no room for (mode/uid/gid/timestamps are not
// part of the disk inode record — see DESIGN.md).
type Inode struct {
	fs *FS
	id uint32

	mu    sync.RWMutex
	disk  diskInode
	dirty bool

	mode  uint32
	uid   uint32
	gid   uint32
	atime time.Time
	mtime time.Time
	ctime time.Time
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

	size := uint64(ino.disk.Size)
	if ino.disk.Type == typeDir {
		size = uint64(ino.disk.Blocks)
	}

	return vfs.Metadata{
		Inode:   uint64(ino.id),
		Size:    size,
		Mode:    ino.mode,
		Type:    ino.typ(),
		NLinks:  uint32(ino.disk.NLinks),
		UID:     ino.uid,
		GID:     ino.gid,
		BlkSize: uint32(ino.fs.blockSize),
		Blocks:  uint64(ino.disk.Blocks),
		ATime:   ino.atime,
		MTime:   ino.mtime,
		CTime:   ino.ctime,
	}, nil
}

func (ino *Inode) SetMetadata(md vfs.Metadata) error {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	ino.mode = md.Mode
	ino.uid = md.UID
	ino.gid = md.GID
	if !md.ATime.IsZero() {
		ino.atime = md.ATime
	}
	if !md.MTime.IsZero() {
		ino.mtime = md.MTime
	}
	return nil
}

func (ino *Inode) Poll() (vfs.PollStatus, error) {
	return vfs.PollStatus{Read: true, Write: true}, nil
}

func (ino *Inode) SyncAll() error {
	ino.mu.Lock()
	defer ino.mu.Unlock()
	if !ino.dirty {
		return nil
	}
	if err := ino.fs.writeInode(ino.id, &ino.disk); err != nil {
		return err
	}
	ino.dirty = false
	return nil
}

func (ino *Inode) SyncData() error { return ino.SyncAll() }

// ReadAt implements file reads via the block map; short reads past EOF
// return 0, and reads on a directory fail with IsDir.
func (ino *Inode) ReadAt(off uint64, buf []byte) (int, error) {
	ino.mu.RLock()
	defer ino.mu.RUnlock()

	if ino.disk.Type == typeDir {
		return 0, vfs.ErrIsDir
	}

	size := uint64(ino.disk.Size)
	if off >= size {
		return 0, nil
	}
	if off+uint64(len(buf)) > size {
		buf = buf[:size-off]
	}

	bs := uint64(ino.fs.blockSize)
	n := 0
	for n < len(buf) {
		curOff := off + uint64(n)
		blockIdx := int(curOff / bs)
		blockOff := int(curOff % bs)

		blockID, err := ino.getDiskBlockID(blockIdx)
		if err != nil {
			return n, err
		}

		chunk := make([]byte, bs)
		if blockID != 0 {
			if err := ino.fs.readBlock(uint64(blockID), chunk); err != nil {
				return n, err
			}
		}

		l := copy(buf[n:], chunk[blockOff:])
		n += l
	}
	return n, nil
}

// WriteAt auto-grows regular files; writes on a directory fail with IsDir.
func (ino *Inode) WriteAt(off uint64, buf []byte) (int, error) {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.disk.Type == typeDir {
		return 0, vfs.ErrIsDir
	}

	end := off + uint64(len(buf))
	if end > uint64(ino.disk.Size) {
		if err := ino.resizeLocked(end); err != nil {
			return 0, err
		}
	}

	bs := uint64(ino.fs.blockSize)
	n := 0
	for n < len(buf) {
		curOff := off + uint64(n)
		blockIdx := int(curOff / bs)
		blockOff := int(curOff % bs)

		blockID, err := ino.getDiskBlockID(blockIdx)
		if err != nil {
			return n, err
		}
		if blockID == 0 {
			return n, fmt.Errorf("sfs: write to unallocated block: %w", vfs.ErrDeviceError)
		}

		chunk := make([]byte, bs)
		if blockOff != 0 || len(buf[n:]) < int(bs) {
			if err := ino.fs.readBlock(uint64(blockID), chunk); err != nil {
				return n, err
			}
		}

		l := copy(chunk[blockOff:], buf[n:])
		if err := ino.fs.writeBlock(uint64(blockID), chunk); err != nil {
			return n, err
		}
		n += l
	}

	ino.mtime = time.Now()
	return n, nil
}

// Resize changes a regular file's length, zero-filling on grow.
func (ino *Inode) Resize(newSize uint64) error {
	ino.mu.Lock()
	defer ino.mu.Unlock()

	if ino.disk.Type == typeDir {
		return vfs.ErrIsDir
	}
	if ino.disk.Type != typeFile {
		return vfs.ErrNotFile
	}
	return ino.resizeLocked(newSize)
}

func (ino *Inode) resizeLocked(newSize uint64) error {
	bs := uint64(ino.fs.blockSize)
	wantBlocks := int((newSize + bs - 1) / bs)
	if wantBlocks > blockCap(ino.fs.blockSize) {
		return vfs.ErrInvalidParam
	}

	oldSize := uint64(ino.disk.Size)
	cur := int(ino.disk.Blocks)

	if wantBlocks > cur {
		if err := ino.growTo(wantBlocks); err != nil {
			return err
		}
	} else if wantBlocks < cur {
		if err := ino.shrinkTo(wantBlocks); err != nil {
			return err
		}
	}

	ino.disk.Size = uint32(newSize)
	ino.dirty = true

	if newSize > oldSize {
		if err := ino.zeroRangeLocked(oldSize, newSize); err != nil {
			return err
		}
	}
	return nil
}

// zeroRangeLocked clears [from, to) in the already-allocated block range.
func (ino *Inode) zeroRangeLocked(from, to uint64) error {
	bs := uint64(ino.fs.blockSize)
	for off := from; off < to; {
		blockIdx := int(off / bs)
		blockOff := int(off % bs)
		n := bs - uint64(blockOff)
		if off+n > to {
			n = to - off
		}

		blockID, err := ino.getDiskBlockID(blockIdx)
		if err != nil {
			return err
		}
		if blockID != 0 {
			chunk := make([]byte, bs)
			if err := ino.fs.readBlock(uint64(blockID), chunk); err != nil {
				return err
			}
			for i := uint64(0); i < n; i++ {
				chunk[uint64(blockOff)+i] = 0
			}
			if err := ino.fs.writeBlock(uint64(blockID), chunk); err != nil {
				return err
			}
		}
		off += n
	}
	return nil
}

func (ino *Inode) IoControl(cmd uint32, data []byte) ([]byte, error) {
	if ino.disk.Type == typeCharDevice || ino.disk.Type == typeBlockDevice {
		return nil, vfs.ErrNotSupported
	}
	return nil, vfs.ErrNotSupported
}

var _ vfs.Inode = (*Inode)(nil)

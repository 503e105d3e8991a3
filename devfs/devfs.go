// Package devfs is a read-only namespace of synthetic device inodes.
package devfs

import (
	"sync"
	"time"

	"github.com/KarpelesLab/vfscore"
)

// FS is a DevFS rooted at a single directory inode.
type FS struct {
	root *dirInode
}

// New creates an empty DevFS and registers the bundled specials (null, zero).
func New() *FS {
	fs := &FS{}
	fs.root = &dirInode{fs: fs, entries: map[string]vfs.Inode{}}
	fs.root.Add("null", newNullDevice(fs))
	fs.root.Add("zero", newZeroDevice(fs))
	return fs
}

func (f *FS) RootInode() vfs.Inode { return f.root }
func (f *FS) Sync() error          { return nil }
func (f *FS) Info() (vfs.FsInfo, error) {
	return vfs.FsInfo{BlockSize: 4096, MaxNameLen: 255}, nil
}

// dirInode is DevFS's single directory: a name -> inode map mutated only
// through Add/Remove, never through the VFS mutation surface.
type dirInode struct {
	fs *FS

	mu      sync.RWMutex
	order   []string
	entries map[string]vfs.Inode
}

// Add registers inode under name. Existing entries of the same name are
// replaced.
func (d *dirInode) Add(name string, inode vfs.Inode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; !ok {
		d.order = append(d.order, name)
	}
	d.entries[name] = inode
}

// Remove unregisters name, if present.
func (d *dirInode) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; !ok {
		return
	}
	delete(d.entries, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *dirInode) Fs() vfs.FileSystem { return d.fs }

func (d *dirInode) Metadata() (vfs.Metadata, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return vfs.Metadata{
		Size:    uint64(len(d.order) + 2),
		Mode:    0o555,
		Type:    vfs.TypeDir,
		NLinks:  2,
		BlkSize: 4096,
	}, nil
}

func (d *dirInode) SetMetadata(vfs.Metadata) error { return nil } // advisory, read-only FS

func (d *dirInode) ReadAt(off uint64, buf []byte) (int, error) { return 0, vfs.ErrIsDir }
func (d *dirInode) WriteAt(off uint64, buf []byte) (int, error) { return 0, vfs.ErrIsDir }
func (d *dirInode) Poll() (vfs.PollStatus, error)                { return vfs.PollStatus{Read: true}, nil }
func (d *dirInode) SyncAll() error                               { return nil }
func (d *dirInode) SyncData() error                              { return nil }
func (d *dirInode) Resize(uint64) error                          { return vfs.ErrIsDir }

func (d *dirInode) Create(string, vfs.FileType, uint32) (vfs.Inode, error) {
	return nil, vfs.ErrNotSupported
}
func (d *dirInode) Link(string, vfs.Inode) error  { return vfs.ErrNotSupported }
func (d *dirInode) Unlink(string) error            { return vfs.ErrNotSupported }
func (d *dirInode) Move(string, vfs.Inode, string) error {
	return vfs.ErrNotSupported
}

func (d *dirInode) Find(name string) (vfs.Inode, error) {
	switch name {
	case ".":
		return d, nil
	case "..":
		return d, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n, ok := d.entries[name]; ok {
		return n, nil
	}
	return nil, vfs.ErrEntryNotFound
}

func (d *dirInode) GetEntry(i int) (string, error) {
	switch i {
	case 0:
		return ".", nil
	case 1:
		return "..", nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx := i - 2
	if idx < 0 || idx >= len(d.order) {
		return "", vfs.ErrEntryNotFound
	}
	return d.order[idx], nil
}

func (d *dirInode) IoControl(uint32, []byte) ([]byte, error) { return nil, vfs.ErrNotSupported }

// specialDevice is the common shell for bundled character devices.
type specialDevice struct {
	fs    *FS
	rdev  vfs.DevicePair
	ctime time.Time
	read  func(off uint64, buf []byte) (int, error)
	write func(off uint64, buf []byte) (int, error)
}

func newNullDevice(fs *FS) *specialDevice {
	return &specialDevice{
		fs:    fs,
		rdev:  vfs.DevicePair{Major: 1, Minor: 3},
		ctime: time.Now(),
		read:  func(off uint64, buf []byte) (int, error) { return 0, nil },
		write: func(off uint64, buf []byte) (int, error) { return len(buf), nil },
	}
}

func newZeroDevice(fs *FS) *specialDevice {
	return &specialDevice{
		fs:    fs,
		rdev:  vfs.DevicePair{Major: 1, Minor: 5},
		ctime: time.Now(),
		read: func(off uint64, buf []byte) (int, error) {
			for i := range buf {
				buf[i] = 0
			}
			return len(buf), nil
		},
		write: func(off uint64, buf []byte) (int, error) { return len(buf), nil },
	}
}

func (s *specialDevice) Fs() vfs.FileSystem { return s.fs }

func (s *specialDevice) Metadata() (vfs.Metadata, error) {
	return vfs.Metadata{
		Mode:    0o666,
		Type:    vfs.TypeCharDevice,
		NLinks:  1,
		BlkSize: 4096,
		RDev:    s.rdev,
		CTime:   s.ctime,
	}, nil
}

func (s *specialDevice) SetMetadata(vfs.Metadata) error { return nil }

func (s *specialDevice) ReadAt(off uint64, buf []byte) (int, error)  { return s.read(off, buf) }
func (s *specialDevice) WriteAt(off uint64, buf []byte) (int, error) { return s.write(off, buf) }
func (s *specialDevice) Poll() (vfs.PollStatus, error) {
	return vfs.PollStatus{Read: true, Write: true}, nil
}
func (s *specialDevice) SyncAll() error  { return nil }
func (s *specialDevice) SyncData() error { return nil }
func (s *specialDevice) Resize(uint64) error { return vfs.ErrNotFile }

func (s *specialDevice) Create(string, vfs.FileType, uint32) (vfs.Inode, error) {
	return nil, vfs.ErrNotDir
}
func (s *specialDevice) Link(string, vfs.Inode) error            { return vfs.ErrNotDir }
func (s *specialDevice) Unlink(string) error                      { return vfs.ErrNotDir }
func (s *specialDevice) Move(string, vfs.Inode, string) error     { return vfs.ErrNotDir }
func (s *specialDevice) Find(string) (vfs.Inode, error)           { return nil, vfs.ErrNotDir }
func (s *specialDevice) GetEntry(int) (string, error)             { return "", vfs.ErrNotDir }
func (s *specialDevice) IoControl(uint32, []byte) ([]byte, error) { return nil, vfs.ErrNotSupported }

var _ vfs.Inode = (*dirInode)(nil)
var _ vfs.Inode = (*specialDevice)(nil)
var _ vfs.FileSystem = (*FS)(nil)

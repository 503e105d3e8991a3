package dev

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// FileBlockDevice is a BlockDevice backed by a host file, used by cmd/vfsutil
// to mkfs and inspect SFS images on real disks rather than in memory.
type FileBlockDevice struct {
	f    *os.File
	log2 uint8
}

// OpenFileBlockDevice opens (creating if absent) path as a block device of
// block size 1<<log2.
func OpenFileBlockDevice(path string, log2 uint8) (*FileBlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &FileBlockDevice{f: f, log2: log2}, nil
}

func (d *FileBlockDevice) BlockSizeLog2() uint8 { return d.log2 }

func (d *FileBlockDevice) blockSize() int64 { return 1 << d.log2 }

// ReadAt zero-fills any portion of buf past the current file length, so
// reading a block never-yet-written behaves like an all-zero block.
func (d *FileBlockDevice) ReadAt(id uint64, buf []byte) error {
	n, err := d.f.ReadAt(buf, int64(id)*d.blockSize())
	if n < len(buf) {
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return wrapErr(err)
	}
	return nil
}

func (d *FileBlockDevice) WriteAt(id uint64, buf []byte) error {
	_, err := d.f.WriteAt(buf, int64(id)*d.blockSize())
	return wrapErr(err)
}

func (d *FileBlockDevice) Sync() error { return wrapErr(d.f.Sync()) }

func (d *FileBlockDevice) Close() error { return d.f.Close() }

var _ BlockDevice = (*FileBlockDevice)(nil)

// DirStorage is a Storage backed by plain files in a host directory, used by
// cmd/vfsutil to mkfs.sefs images on real disks rather than in memory.
type DirStorage struct {
	dir       string
	integrity bool
}

// NewDirStorage roots a Storage at dir, which must already exist.
func NewDirStorage(dir string, integrityOnly bool) *DirStorage {
	return &DirStorage{dir: dir, integrity: integrityOnly}
}

func (s *DirStorage) IntegrityOnly() bool { return s.integrity }

func (s *DirStorage) path(id string) string { return filepath.Join(s.dir, id) }

func (s *DirStorage) Open(id string) (File, error) {
	f, err := os.OpenFile(s.path(id), os.O_RDWR, 0o644)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &osFile{f: f}, nil
}

func (s *DirStorage) Create(id string) (File, error) {
	f, err := os.OpenFile(s.path(id), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &osFile{f: f}, nil
}

func (s *DirStorage) Remove(id string) error {
	return wrapErr(os.Remove(s.path(id)))
}

// osFile adapts *os.File to the File interface.
type osFile struct {
	f *os.File
}

func (o *osFile) ReadAt(off int64, buf []byte) (int, error) {
	n, err := o.f.ReadAt(buf, off)
	if err != nil && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, wrapErr(err)
}

func (o *osFile) WriteAt(off int64, buf []byte) (int, error) {
	n, err := o.f.WriteAt(buf, off)
	return n, wrapErr(err)
}

func (o *osFile) SetLen(n int64) error { return wrapErr(o.f.Truncate(n)) }

func (o *osFile) Flush() error { return wrapErr(o.f.Sync()) }

func (o *osFile) GetFileMAC() ([]byte, error) {
	info, err := o.f.Stat()
	if err != nil {
		return nil, wrapErr(err)
	}
	buf := make([]byte, info.Size())
	if _, err := o.f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, wrapErr(err)
	}
	return contentMAC(buf), nil
}

var _ Storage = (*DirStorage)(nil)

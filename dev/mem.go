package dev

import (
	"os"
	"sync"
)

// MemBlockDevice is an in-memory BlockDevice, used as the reference backing
// store in tests for sfs and the BlockCache itself.
type MemBlockDevice struct {
	mu       sync.Mutex
	log2     uint8
	blocks   map[uint64][]byte
	maxBlock uint64
}

// NewMemBlockDevice creates a block device of block size 1<<log2.
func NewMemBlockDevice(log2 uint8) *MemBlockDevice {
	return &MemBlockDevice{log2: log2, blocks: make(map[uint64][]byte)}
}

func (m *MemBlockDevice) BlockSizeLog2() uint8 { return m.log2 }

func (m *MemBlockDevice) ReadAt(id uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[id]
	if !ok {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	copy(buf, b)
	return nil
}

func (m *MemBlockDevice) WriteAt(id uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := make([]byte, len(buf))
	copy(b, buf)
	m.blocks[id] = b
	if id > m.maxBlock {
		m.maxBlock = id
	}
	return nil
}

func (m *MemBlockDevice) Sync() error { return nil }

// MemStorage is an in-memory Storage, used as the reference backing store
// in tests for sefs.
type MemStorage struct {
	mu        sync.Mutex
	files     map[string]*memFile
	integrity bool
}

// NewMemStorage creates an empty in-memory Storage. integrityOnly is what
// IntegrityOnly reports; GetFileMAC returns a content hash either way.
func NewMemStorage(integrityOnly bool) *MemStorage {
	return &MemStorage{files: make(map[string]*memFile), integrity: integrityOnly}
}

func (m *MemStorage) IntegrityOnly() bool { return m.integrity }

func (m *MemStorage) Open(id string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return f, nil
}

func (m *MemStorage) Create(id string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &memFile{}
	m.files[id] = f
	return f, nil
}

func (m *MemStorage) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	return nil
}

type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) ReadAt(off int64, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(buf, f.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(off int64, buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], buf)
	return len(buf), nil
}

func (f *memFile) SetLen(n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= int64(len(f.data)) {
		f.data = f.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *memFile) Flush() error { return nil }

func (f *memFile) GetFileMAC() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return contentMAC(f.data), nil
}

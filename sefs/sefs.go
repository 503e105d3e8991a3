package sefs

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/dev"
)

// FS is a SEFS instance backed by a dev.Storage.
type FS struct {
	storage   dev.Storage
	blockSize int
	policy    IntegrityPolicy

	meta dev.File

	sbMu sync.Mutex
	sb   superBlock

	freeMu   sync.Mutex
	freemaps [][]byte // one per group, bit 0 of group g always reserved for its own freemap block

	cacheMu sync.Mutex
	cache   map[uint32]*Inode

	root *Inode
}

func blocksPerGroup(blockSize int) int { return blockSize * 8 }

func groupStart(g, blockSize int) int { return reservedBlocks + g*blocksPerGroup(blockSize) }

// minBlockSize is the smallest block size Create and Open accept. It is
// above the ~100-byte marshaled diskInode record, which metadata blocks
// smaller than that record would silently truncate.
const minBlockSize = 128

// Create formats storage as a fresh single-group SEFS.
func Create(storage dev.Storage, blockSize int, policy IntegrityPolicy) (*FS, error) {
	if blockSize < minBlockSize {
		return nil, fmt.Errorf("sefs: block size too small: %w", vfs.ErrInvalidParam)
	}

	meta, err := storage.Create("metadata")
	if err != nil {
		return nil, fmt.Errorf("sefs: create metadata file: %w", vfs.ErrDeviceError)
	}

	f := &FS{
		storage:   storage,
		blockSize: blockSize,
		policy:    policy,
		meta:      meta,
		cache:     make(map[uint32]*Inode),
	}

	bpg := blocksPerGroup(blockSize)
	totalBlocks := reservedBlocks + bpg
	if err := meta.SetLen(int64(totalBlocks) * int64(blockSize)); err != nil {
		return nil, fmt.Errorf("sefs: size metadata file: %w", vfs.ErrDeviceError)
	}

	fm := make([]byte, blockSize)
	for i := 1; i < bpg; i++ {
		setBit(fm, i, true)
	}
	f.freemaps = [][]byte{fm}

	f.sb = superBlock{Magic: Magic, Blocks: uint32(totalBlocks), UnusedBlocks: uint32(bpg - 1), Groups: 1}
	if err := f.writeBlock(metaSuperblockBlock, f.sb.marshal(blockSize)); err != nil {
		return nil, err
	}
	if err := f.writeBlock(uint32(groupStart(0, blockSize)), fm); err != nil {
		return nil, err
	}

	rootUUID := uuid.New()
	rootFile, err := storage.Create(rootUUID.String())
	if err != nil {
		return nil, fmt.Errorf("sefs: create root backing file: %w", vfs.ErrDeviceError)
	}
	rootDisk := diskInode{Type: typeDir, NLinks: 2}
	copy(rootDisk.UUID[:], rootUUID[:])

	root := &Inode{fs: f, id: metaRootInodeBlock, disk: rootDisk, file: rootFile}
	f.cache[metaRootInodeBlock] = root
	f.root = root

	if err := root.initDirEntries(metaRootInodeBlock); err != nil {
		return nil, err
	}
	if err := f.writeInode(root); err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, err
	}

	log.Printf("sefs: created fresh file system, blocks=%d groups=%d", f.sb.Blocks, f.sb.Groups)
	return f, nil
}

// Open loads an existing SEFS from storage.
func Open(storage dev.Storage, blockSize int, policy IntegrityPolicy) (*FS, error) {
	if blockSize < minBlockSize {
		return nil, fmt.Errorf("sefs: block size too small: %w", vfs.ErrInvalidParam)
	}

	meta, err := storage.Open("metadata")
	if err != nil {
		return nil, fmt.Errorf("sefs: open metadata file: %w", vfs.ErrWrongFs)
	}

	f := &FS{
		storage:   storage,
		blockSize: blockSize,
		policy:    policy,
		meta:      meta,
		cache:     make(map[uint32]*Inode),
	}

	raw := make([]byte, blockSize)
	if err := f.readBlock(metaSuperblockBlock, raw); err != nil {
		return nil, err
	}
	if err := f.sb.unmarshal(raw); err != nil || f.sb.Magic != Magic {
		return nil, fmt.Errorf("sefs: bad superblock: %w", vfs.ErrWrongFs)
	}

	f.freemaps = make([][]byte, f.sb.Groups)
	for g := 0; g < int(f.sb.Groups); g++ {
		fm := make([]byte, blockSize)
		if err := f.readBlock(uint32(groupStart(g, blockSize)), fm); err != nil {
			return nil, err
		}
		f.freemaps[g] = fm
	}

	root, err := f.getInode(metaRootInodeBlock)
	if err != nil {
		return nil, err
	}
	f.root = root

	log.Printf("sefs: opened file system, blocks=%d groups=%d", f.sb.Blocks, f.sb.Groups)
	return f, nil
}

func (f *FS) RootInode() vfs.Inode { return f.root }

func (f *FS) Info() (vfs.FsInfo, error) {
	f.sbMu.Lock()
	defer f.sbMu.Unlock()
	return vfs.FsInfo{
		BlockSize:   uint32(f.blockSize),
		TotalBlocks: uint64(f.sb.Blocks),
		FreeBlocks:  uint64(f.sb.UnusedBlocks),
		TotalInodes: uint64(f.sb.Blocks),
		FreeInodes:  uint64(f.sb.UnusedBlocks),
		MaxNameLen:  DirentNameLen - 1,
	}, nil
}

// Sync flushes the superblock, every freemap group, every cached inode's
// record and backing file, per spec.md §4.H.
func (f *FS) Sync() error {
	f.sbMu.Lock()
	if err := f.writeBlock(metaSuperblockBlock, f.sb.marshal(f.blockSize)); err != nil {
		f.sbMu.Unlock()
		return err
	}
	f.sbMu.Unlock()

	f.freeMu.Lock()
	for g, fm := range f.freemaps {
		if err := f.writeBlock(uint32(groupStart(g, f.blockSize)), fm); err != nil {
			f.freeMu.Unlock()
			return err
		}
	}
	f.freeMu.Unlock()

	f.cacheMu.Lock()
	inodes := make([]*Inode, 0, len(f.cache))
	for _, ino := range f.cache {
		inodes = append(inodes, ino)
	}
	f.cacheMu.Unlock()

	for _, ino := range inodes {
		if err := ino.SyncAll(); err != nil {
			return err
		}
	}

	return f.meta.Flush()
}

func (f *FS) readBlock(id uint32, buf []byte) error {
	n, err := f.meta.ReadAt(int64(id)*int64(f.blockSize), buf)
	if err != nil {
		return fmt.Errorf("sefs: read metadata block %d: %w", id, vfs.ErrDeviceError)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

func (f *FS) writeBlock(id uint32, buf []byte) error {
	if _, err := f.meta.WriteAt(int64(id)*int64(f.blockSize), buf); err != nil {
		return fmt.Errorf("sefs: write metadata block %d: %w", id, vfs.ErrDeviceError)
	}
	return nil
}

func (f *FS) writeInode(ino *Inode) error {
	return f.writeBlock(ino.id, ino.disk.marshal(f.blockSize))
}

func (f *FS) readDiskInode(id uint32) (diskInode, error) {
	buf := make([]byte, f.blockSize)
	if err := f.readBlock(id, buf); err != nil {
		return diskInode{}, err
	}
	var d diskInode
	if err := d.unmarshal(buf); err != nil {
		return diskInode{}, fmt.Errorf("sefs: decode inode %d: %w", id, vfs.ErrWrongFs)
	}
	return d, nil
}

func setBit(m []byte, i int, v bool) {
	if v {
		m[i/8] |= 1 << uint(i%8)
	} else {
		m[i/8] &^= 1 << uint(i%8)
	}
}

func getBit(m []byte, i int) bool {
	return m[i/8]&(1<<uint(i%8)) != 0
}

// allocBlock returns a fresh block id, growing the metadata file by another
// group when every existing group is exhausted (spec.md §4.H alloc_block).
func (f *FS) allocBlock() (uint32, error) {
	f.freeMu.Lock()
	defer f.freeMu.Unlock()

	bpg := blocksPerGroup(f.blockSize)
	for g, fm := range f.freemaps {
		for i := 1; i < bpg; i++ {
			if getBit(fm, i) {
				setBit(fm, i, false)
				f.sbMu.Lock()
				f.sb.UnusedBlocks--
				f.sbMu.Unlock()
				return uint32(groupStart(g, f.blockSize) + i), nil
			}
		}
	}

	// every group full: extend by one.
	newGroup := len(f.freemaps)
	newStart := groupStart(newGroup, f.blockSize)
	newTotal := newStart + bpg
	if err := f.meta.SetLen(int64(newTotal) * int64(f.blockSize)); err != nil {
		return 0, fmt.Errorf("sefs: grow metadata file: %w", vfs.ErrNoDeviceSpace)
	}

	fm := make([]byte, f.blockSize)
	for i := 1; i < bpg; i++ {
		setBit(fm, i, true)
	}
	f.freemaps = append(f.freemaps, fm)

	f.sbMu.Lock()
	f.sb.Blocks = uint32(newTotal)
	f.sb.UnusedBlocks += uint32(bpg - 1)
	f.sb.Groups++
	f.sbMu.Unlock()

	if err := f.writeBlock(uint32(newStart), fm); err != nil {
		return 0, err
	}

	setBit(fm, 1, false)
	f.sbMu.Lock()
	f.sb.UnusedBlocks--
	f.sbMu.Unlock()
	return uint32(newStart + 1), nil
}

func (f *FS) freeBlock(id uint32) {
	f.freeMu.Lock()
	defer f.freeMu.Unlock()

	bpg := blocksPerGroup(f.blockSize)
	g := (int(id) - reservedBlocks) / bpg
	if g < 0 || g >= len(f.freemaps) {
		log.Printf("sefs: freeBlock of out-of-range id %d", id)
		return
	}
	local := int(id) - groupStart(g, f.blockSize)
	if getBit(f.freemaps[g], local) {
		log.Printf("sefs: double-free of block %d detected", id)
		return
	}
	setBit(f.freemaps[g], local, true)

	f.sbMu.Lock()
	f.sb.UnusedBlocks++
	f.sbMu.Unlock()
}

// getInode loads id from the cache, or from the metadata file plus its
// UUID-named backing file on a miss, verifying its MAC when the Storage is
// integrity-only (spec.md §4.H integrity mode).
func (f *FS) getInode(id uint32) (*Inode, error) {
	f.cacheMu.Lock()
	if ino, ok := f.cache[id]; ok {
		f.cacheMu.Unlock()
		return ino, nil
	}
	f.cacheMu.Unlock()

	disk, err := f.readDiskInode(id)
	if err != nil {
		return nil, err
	}

	u, err := uuid.FromBytes(disk.UUID[:])
	if err != nil {
		return nil, fmt.Errorf("sefs: bad inode uuid for %d: %w", id, vfs.ErrWrongFs)
	}
	file, err := f.storage.Open(u.String())
	if err != nil {
		return nil, fmt.Errorf("sefs: open backing file %s: %w", u, vfs.ErrDeviceError)
	}

	if f.storage.IntegrityOnly() {
		if err := verifyMAC(file, disk.MAC); err != nil {
			if f.policy == PolicyPanic {
				panic(err)
			}
			return nil, err
		}
	}

	ino := &Inode{fs: f, id: id, disk: disk, file: file}

	f.cacheMu.Lock()
	if existing, ok := f.cache[id]; ok {
		f.cacheMu.Unlock()
		return existing, nil
	}
	f.cache[id] = ino
	f.cacheMu.Unlock()
	return ino, nil
}

func verifyMAC(file dev.File, want [macLen]byte) error {
	got, err := file.GetFileMAC()
	if err != nil {
		return fmt.Errorf("sefs: compute mac: %w", vfs.ErrDeviceError)
	}
	if len(got) != macLen || [macLen]byte(got) != want {
		return fmt.Errorf("sefs: mac mismatch: %w", vfs.ErrWrongFs)
	}
	return nil
}

func (f *FS) dropInode(id uint32) {
	f.cacheMu.Lock()
	ino, ok := f.cache[id]
	delete(f.cache, id)
	f.cacheMu.Unlock()
	if !ok {
		return
	}

	u, err := uuid.FromBytes(ino.disk.UUID[:])
	if err == nil {
		if err := f.storage.Remove(u.String()); err != nil {
			log.Printf("sefs: remove backing file %s: %v", u, err)
		}
	}
	f.freeBlock(id)
}

var _ vfs.FileSystem = (*FS)(nil)

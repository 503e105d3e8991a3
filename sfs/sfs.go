// Package sfs implements the block-device "simple file system" of spec.md
// §4.G: an on-disk superblock, free bitmap, direct/indirect/double-indirect
// block maps, directory files, hard links and symlinks.
package sfs

import (
	"fmt"
	"log"
	"sync"

	"github.com/KarpelesLab/vfscore"
	"github.com/KarpelesLab/vfscore/dev"
)

// FS is an SFS instance backed by a dev.BlockDevice.
type FS struct {
	dev       dev.BlockDevice
	blockSize int

	sbMu sync.Mutex
	sb   *dev.Dirty[superBlock]

	freeMu  sync.Mutex
	freemap *dev.Dirty[[]byte] // bit i = 1 iff block i is free

	cacheMu sync.Mutex
	cache   map[uint32]*Inode

	root *Inode
}

func blockCap(blockSize int) int {
	// direct + single-indirect + double-indirect addressable block count
	perIndirect := blockSize / 4
	return DirectPtrs + perIndirect + perIndirect*perIndirect
}

// Create formats device as a fresh SFS of the given byte capacity and
// returns it opened.
func Create(device dev.BlockDevice, capacity uint64) (*FS, error) {
	blockSize := int(dev.BlockSize(device))
	totalBlocks := uint32((capacity + uint64(blockSize) - 1) / uint64(blockSize))
	freemapBlocks := uint32((uint64(totalBlocks) + uint64(blockSize)*8 - 1) / (uint64(blockSize) * 8))

	if totalBlocks < 16 {
		return nil, fmt.Errorf("sfs: capacity too small: %w", vfs.ErrInvalidParam)
	}

	sb := superBlock{
		Magic:         Magic,
		Blocks:        totalBlocks,
		UnusedBlocks:  0,
		FreemapBlocks: freemapBlocks,
	}
	copy(sb.Info[:], "vfscore sfs")

	freemap := make([]byte, int(freemapBlocks)*blockSize)
	reservedUpTo := firstFreemapBlock + int(freemapBlocks)
	for b := reservedUpTo; b < int(totalBlocks); b++ {
		setBit(freemap, b, true)
		sb.UnusedBlocks++
	}

	f := &FS{
		dev:       device,
		blockSize: blockSize,
		sb:        dev.NewDirty(sb),
		freemap:   dev.NewDirty(freemap),
		cache:     make(map[uint32]*Inode),
	}

	if err := f.writeBlock(superblockBlockID, f.sb.Get().marshal()); err != nil {
		return nil, err
	}
	for g := 0; g < int(freemapBlocks); g++ {
		start := g * blockSize
		if err := f.writeBlock(uint64(firstFreemapBlock+g), freemap[start:start+blockSize]); err != nil {
			return nil, err
		}
	}

	root := &diskInode{Type: typeDir, NLinks: 2}
	if err := f.writeInode(rootInodeBlockID, root); err != nil {
		return nil, err
	}

	rootIno := &Inode{fs: f, id: rootInodeBlockID, disk: *root}
	f.cache[rootInodeBlockID] = rootIno
	f.root = rootIno

	if err := rootIno.initDirEntries(rootInodeBlockID); err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, err
	}

	log.Printf("sfs: created fresh file system, blocks=%d freemap_blocks=%d", totalBlocks, freemapBlocks)
	return f, nil
}

// Open loads an existing SFS from device.
func Open(device dev.BlockDevice) (*FS, error) {
	blockSize := int(dev.BlockSize(device))
	f := &FS{
		dev:       device,
		blockSize: blockSize,
		cache:     make(map[uint32]*Inode),
	}

	raw := make([]byte, blockSize)
	if err := device.ReadAt(superblockBlockID, raw); err != nil {
		return nil, fmt.Errorf("sfs: read superblock: %w", vfs.ErrDeviceError)
	}
	var sb superBlock
	if err := sb.unmarshal(raw); err != nil {
		return nil, fmt.Errorf("sfs: decode superblock: %w", vfs.ErrWrongFs)
	}
	if sb.Magic != Magic {
		return nil, fmt.Errorf("sfs: bad magic: %w", vfs.ErrWrongFs)
	}
	f.sb = dev.NewDirty(sb)

	freemap := make([]byte, int(sb.FreemapBlocks)*blockSize)
	for g := 0; g < int(sb.FreemapBlocks); g++ {
		if err := device.ReadAt(uint64(firstFreemapBlock+g), freemap[g*blockSize:(g+1)*blockSize]); err != nil {
			return nil, fmt.Errorf("sfs: read freemap: %w", vfs.ErrDeviceError)
		}
	}
	f.freemap = dev.NewDirty(freemap)

	root, err := f.getInode(rootInodeBlockID)
	if err != nil {
		return nil, err
	}
	f.root = root

	log.Printf("sfs: opened file system, blocks=%d unused=%d", sb.Blocks, sb.UnusedBlocks)
	return f, nil
}

func (f *FS) RootInode() vfs.Inode { return f.root }

func (f *FS) Info() (vfs.FsInfo, error) {
	f.sbMu.Lock()
	sb := f.sb.Get()
	f.sbMu.Unlock()
	return vfs.FsInfo{
		BlockSize:   uint32(f.blockSize),
		TotalBlocks: uint64(sb.Blocks),
		FreeBlocks:  uint64(sb.UnusedBlocks),
		TotalInodes: uint64(sb.Blocks),
		FreeInodes:  uint64(sb.UnusedBlocks),
		MaxNameLen:  DirentNameLen - 1,
	}, nil
}

// Sync writes the superblock (if dirty), the freemap blocks, then syncs
// every cached inode, per spec.md §4.G.
func (f *FS) Sync() error {
	f.sbMu.Lock()
	if f.sb.Dirty() {
		if err := f.writeBlock(superblockBlockID, f.sb.Get().marshal()); err != nil {
			f.sbMu.Unlock()
			return err
		}
		f.sb.Sync()
	}
	f.sbMu.Unlock()

	f.freeMu.Lock()
	if f.freemap.Dirty() {
		fm := f.freemap.Get()
		sb := f.sb.Get()
		for g := 0; g < int(sb.FreemapBlocks); g++ {
			start := g * f.blockSize
			if err := f.writeBlock(uint64(firstFreemapBlock+g), fm[start:start+f.blockSize]); err != nil {
				f.freeMu.Unlock()
				return err
			}
		}
		f.freemap.Sync()
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

	return f.dev.Sync()
}

func (f *FS) readBlock(id uint64, buf []byte) error {
	if err := f.dev.ReadAt(id, buf); err != nil {
		return fmt.Errorf("sfs: read block %d: %w", id, vfs.ErrDeviceError)
	}
	return nil
}

func (f *FS) writeBlock(id uint64, buf []byte) error {
	if err := f.dev.WriteAt(id, buf); err != nil {
		return fmt.Errorf("sfs: write block %d: %w", id, vfs.ErrDeviceError)
	}
	return nil
}

func (f *FS) writeInode(blockID uint32, ino *diskInode) error {
	return f.writeBlock(uint64(blockID), ino.marshal(f.blockSize))
}

func (f *FS) readInode(blockID uint32) (*diskInode, error) {
	buf := make([]byte, f.blockSize)
	if err := f.readBlock(uint64(blockID), buf); err != nil {
		return nil, err
	}
	ino := &diskInode{}
	if err := ino.unmarshal(buf); err != nil {
		return nil, fmt.Errorf("sfs: decode inode %d: %w", blockID, vfs.ErrWrongFs)
	}
	return ino, nil
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

// allocBlock returns the id of a freshly allocated block, clearing its free
// bit. Returns vfs.ErrNoDeviceSpace when exhausted.
func (f *FS) allocBlock() (uint32, error) {
	f.freeMu.Lock()
	defer f.freeMu.Unlock()

	sb := f.sb.Get()
	if sb.UnusedBlocks == 0 {
		return 0, vfs.ErrNoDeviceSpace
	}

	fm := f.freemap.Borrow()
	for i := 0; i < int(sb.Blocks); i++ {
		if getBit(*fm, i) {
			setBit(*fm, i, false)
			f.sbMu.Lock()
			sbv := f.sb.Borrow()
			sbv.UnusedBlocks--
			f.sbMu.Unlock()
			return uint32(i), nil
		}
	}
	return 0, vfs.ErrNoDeviceSpace
}

// freeBlock returns id to the pool. If the bit was already free, which
// indicates a corrupted free-map invariant, it logs the double free and
// returns without changing anything.
func (f *FS) freeBlock(id uint32) {
	f.freeMu.Lock()
	defer f.freeMu.Unlock()

	fm := f.freemap.Borrow()
	if getBit(*fm, int(id)) {
		log.Printf("sfs: double-free of block %d detected", id)
		return
	}
	setBit(*fm, int(id), true)

	f.sbMu.Lock()
	sbv := f.sb.Borrow()
	sbv.UnusedBlocks++
	f.sbMu.Unlock()
}

// getInode returns the cached inode for id, loading it from disk on a cache
// miss. Repeated calls for the same id return the same *Inode, satisfying
// the object-identity invariant of spec.md §3 for the lifetime of the FS
// (see DESIGN.md for how this module approximates the "weak cache" of
// spec.md §9 without relying on Go's pre-1.24 lack of weak pointers).
func (f *FS) getInode(id uint32) (*Inode, error) {
	f.cacheMu.Lock()
	if ino, ok := f.cache[id]; ok {
		f.cacheMu.Unlock()
		return ino, nil
	}
	f.cacheMu.Unlock()

	disk, err := f.readInode(id)
	if err != nil {
		return nil, err
	}

	ino := &Inode{fs: f, id: id, disk: *disk}

	f.cacheMu.Lock()
	if existing, ok := f.cache[id]; ok {
		f.cacheMu.Unlock()
		return existing, nil
	}
	f.cache[id] = ino
	f.cacheMu.Unlock()
	return ino, nil
}

// dropInode removes id from the cache and frees its block. Called once
// nlinks reaches zero (see DESIGN.md).
func (f *FS) dropInode(id uint32) {
	f.cacheMu.Lock()
	delete(f.cache, id)
	f.cacheMu.Unlock()
	f.freeBlock(id)
}

var _ vfs.FileSystem = (*FS)(nil)

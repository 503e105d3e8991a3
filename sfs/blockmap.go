package sfs

import "github.com/KarpelesLab/vfscore"

// getDiskBlockID implements spec.md §4.G's get_disk_block_id.
func (ino *Inode) getDiskBlockID(i int) (uint32, error) {
	fs := ino.fs
	perIndirect := fs.blockSize / 4

	switch {
	case i < DirectPtrs:
		return ino.disk.Direct[i], nil
	case i < DirectPtrs+perIndirect:
		if ino.disk.Indirect == 0 {
			return 0, nil
		}
		block := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(ino.disk.Indirect), block); err != nil {
			return 0, err
		}
		off := (i - DirectPtrs) * 4
		return order.Uint32(block[off : off+4]), nil
	case i < DirectPtrs+perIndirect+perIndirect*perIndirect:
		if ino.disk.DbIndirect == 0 {
			return 0, nil
		}
		idx := i - DirectPtrs - perIndirect
		outer := idx / perIndirect
		inner := idx % perIndirect

		outerBlock := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(ino.disk.DbIndirect), outerBlock); err != nil {
			return 0, err
		}
		outerPtr := order.Uint32(outerBlock[outer*4 : outer*4+4])
		if outerPtr == 0 {
			return 0, nil
		}

		innerBlock := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(outerPtr), innerBlock); err != nil {
			return 0, err
		}
		return order.Uint32(innerBlock[inner*4 : inner*4+4]), nil
	default:
		return 0, vfs.ErrInvalidParam
	}
}

// setDiskBlockID mirrors getDiskBlockID, lazily allocating the indirect and
// double-indirect structural blocks the first time they're needed.
func (ino *Inode) setDiskBlockID(i int, val uint32) error {
	fs := ino.fs
	perIndirect := fs.blockSize / 4

	switch {
	case i < DirectPtrs:
		ino.disk.Direct[i] = val
		ino.dirty = true
		return nil

	case i < DirectPtrs+perIndirect:
		if ino.disk.Indirect == 0 {
			blk, err := fs.allocBlock()
			if err != nil {
				return err
			}
			ino.disk.Indirect = blk
			ino.dirty = true
			if err := fs.writeBlock(uint64(blk), make([]byte, fs.blockSize)); err != nil {
				return err
			}
		}
		block := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(ino.disk.Indirect), block); err != nil {
			return err
		}
		off := (i - DirectPtrs) * 4
		order.PutUint32(block[off:off+4], val)
		return fs.writeBlock(uint64(ino.disk.Indirect), block)

	case i < DirectPtrs+perIndirect+perIndirect*perIndirect:
		if ino.disk.DbIndirect == 0 {
			blk, err := fs.allocBlock()
			if err != nil {
				return err
			}
			ino.disk.DbIndirect = blk
			ino.dirty = true
			if err := fs.writeBlock(uint64(blk), make([]byte, fs.blockSize)); err != nil {
				return err
			}
		}

		idx := i - DirectPtrs - perIndirect
		outer := idx / perIndirect
		inner := idx % perIndirect

		outerBlock := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(ino.disk.DbIndirect), outerBlock); err != nil {
			return err
		}
		outerPtr := order.Uint32(outerBlock[outer*4 : outer*4+4])
		if outerPtr == 0 {
			blk, err := fs.allocBlock()
			if err != nil {
				return err
			}
			outerPtr = blk
			order.PutUint32(outerBlock[outer*4:outer*4+4], outerPtr)
			if err := fs.writeBlock(uint64(ino.disk.DbIndirect), outerBlock); err != nil {
				return err
			}
			if err := fs.writeBlock(uint64(outerPtr), make([]byte, fs.blockSize)); err != nil {
				return err
			}
		}

		innerBlock := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(outerPtr), innerBlock); err != nil {
			return err
		}
		order.PutUint32(innerBlock[inner*4:inner*4+4], val)
		return fs.writeBlock(uint64(outerPtr), innerBlock)

	default:
		return vfs.ErrInvalidParam
	}
}

// growTo allocates blocks [current, want) and installs them in the block
// map, freeing anything partially allocated on failure so no partially
// constructed inode is left on disk (spec.md §7).
func (ino *Inode) growTo(want int) error {
	cur := int(ino.disk.Blocks)
	allocated := make([]uint32, 0, want-cur)

	rollback := func() {
		for _, id := range allocated {
			ino.fs.freeBlock(id)
		}
	}

	for i := cur; i < want; i++ {
		blk, err := ino.fs.allocBlock()
		if err != nil {
			rollback()
			return err
		}
		if err := ino.setDiskBlockID(i, blk); err != nil {
			ino.fs.freeBlock(blk)
			rollback()
			return err
		}
		allocated = append(allocated, blk)
	}

	ino.disk.Blocks = uint32(want)
	ino.dirty = true
	return nil
}

// shrinkTo frees blocks [want, current) and reclaims indirect/db-indirect
// structural blocks that are no longer referencing anything.
func (ino *Inode) shrinkTo(want int) error {
	cur := int(ino.disk.Blocks)

	for i := cur - 1; i >= want; i-- {
		blk, err := ino.getDiskBlockID(i)
		if err != nil {
			return err
		}
		if blk != 0 {
			ino.fs.freeBlock(blk)
			if err := ino.setDiskBlockID(i, 0); err != nil {
				return err
			}
		}
	}

	ino.disk.Blocks = uint32(want)
	ino.dirty = true

	return ino.reclaimStructuralBlocks(want)
}

func (ino *Inode) reclaimStructuralBlocks(want int) error {
	fs := ino.fs
	perIndirect := fs.blockSize / 4

	if ino.disk.DbIndirect != 0 {
		outerBlock := make([]byte, fs.blockSize)
		if err := fs.readBlock(uint64(ino.disk.DbIndirect), outerBlock); err != nil {
			return err
		}
		changed := false
		for o := 0; o < perIndirect; o++ {
			ptr := order.Uint32(outerBlock[o*4 : o*4+4])
			if ptr == 0 {
				continue
			}
			innerBlock := make([]byte, fs.blockSize)
			if err := fs.readBlock(uint64(ptr), innerBlock); err != nil {
				return err
			}
			if isAllZero(innerBlock) {
				fs.freeBlock(ptr)
				order.PutUint32(outerBlock[o*4:o*4+4], 0)
				changed = true
			}
		}
		if changed {
			if err := fs.writeBlock(uint64(ino.disk.DbIndirect), outerBlock); err != nil {
				return err
			}
		}
		if want <= DirectPtrs+perIndirect {
			fs.freeBlock(ino.disk.DbIndirect)
			ino.disk.DbIndirect = 0
			ino.dirty = true
		}
	}

	if want <= DirectPtrs && ino.disk.Indirect != 0 {
		fs.freeBlock(ino.disk.Indirect)
		ino.disk.Indirect = 0
		ino.dirty = true
	}

	return nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

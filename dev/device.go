// Package dev defines the backing abstractions every persistent file system
// engine is built on: a byte-addressable Device, a block-addressable
// BlockDevice, and a UUID-keyed Storage, plus the BlockCache write-back layer
// and the Dirty[T] bookkeeping wrapper used throughout the persistence
// packages (sfs, sefs).
package dev

import (
	"errors"
	"fmt"

	"github.com/KarpelesLab/vfscore"
)

// Device is byte-addressable. Short reads past EOF are permitted.
type Device interface {
	ReadAt(off int64, buf []byte) (int, error)
	WriteAt(off int64, buf []byte) (int, error)
	Sync() error
}

// BlockDevice is block-addressable with a fixed block size.
type BlockDevice interface {
	ReadAt(blockID uint64, buf []byte) error
	WriteAt(blockID uint64, buf []byte) error
	BlockSizeLog2() uint8
	Sync() error
}

// BlockSize returns 1<<BlockSizeLog2().
func BlockSize(b BlockDevice) uint32 {
	return 1 << b.BlockSizeLog2()
}

// wrapErr surfaces any backing failure as vfs.ErrDeviceError.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", vfs.ErrDeviceError, err)
}

// blockDeviceAsDevice adapts a BlockDevice into a byte-addressable Device by
// read-modify-write around partial blocks.
type blockDeviceAsDevice struct {
	bd BlockDevice
}

// AsDevice returns the default Device adapter over a BlockDevice.
func AsDevice(bd BlockDevice) Device {
	return &blockDeviceAsDevice{bd: bd}
}

func (d *blockDeviceAsDevice) blockSize() uint32 { return BlockSize(d.bd) }

func (d *blockDeviceAsDevice) ReadAt(off int64, buf []byte) (int, error) {
	if off < 0 {
		return 0, vfs.ErrInvalidParam
	}
	bs := int64(d.blockSize())
	n := 0
	tmp := make([]byte, bs)
	for n < len(buf) {
		curOff := off + int64(n)
		blockID := uint64(curOff / bs)
		blockOff := int(curOff % bs)

		if err := d.bd.ReadAt(blockID, tmp); err != nil {
			return n, wrapErr(err)
		}

		l := copy(buf[n:], tmp[blockOff:])
		n += l
	}
	return n, nil
}

func (d *blockDeviceAsDevice) WriteAt(off int64, buf []byte) (int, error) {
	if off < 0 {
		return 0, vfs.ErrInvalidParam
	}
	bs := int64(d.blockSize())
	n := 0
	tmp := make([]byte, bs)
	for n < len(buf) {
		curOff := off + int64(n)
		blockID := uint64(curOff / bs)
		blockOff := int(curOff % bs)

		l := len(buf[n:])
		if int64(blockOff+l) > bs {
			l = int(bs) - blockOff
		}

		// partial block: read-modify-write
		if blockOff != 0 || l != int(bs) {
			if err := d.bd.ReadAt(blockID, tmp); err != nil && !errors.Is(err, vfs.ErrDeviceError) {
				// a fresh block device may legitimately fail on an unwritten
				// block; zero-fill and proceed.
				for i := range tmp {
					tmp[i] = 0
				}
			}
		}
		copy(tmp[blockOff:blockOff+l], buf[n:n+l])

		if err := d.bd.WriteAt(blockID, tmp); err != nil {
			return n, wrapErr(err)
		}
		n += l
	}
	return n, nil
}

func (d *blockDeviceAsDevice) Sync() error { return wrapErr(d.bd.Sync()) }

package sfs

import (
	"bytes"
	"encoding/binary"
)

// On-disk layout constants, per spec.md §6.
const (
	Magic = 0x2f8dbe2b

	// DefaultBlockSize is the reference block size (B). Create and Open
	// take the block size from the device, not from this constant.
	DefaultBlockSize = 4096

	DirectPtrs  = 12
	InfoLen     = 32
	DirentNameLen = 256
	DirentSize  = 4 + DirentNameLen // inode_id + name

	superblockBlockID = 0
	rootInodeBlockID  = 1
	firstFreemapBlock = 2

	typeFile        = 1
	typeDir         = 2
	typeSymLink     = 3
	typeCharDevice  = 4
	typeBlockDevice = 5
)

var order = binary.LittleEndian

// superBlock mirrors spec.md §6's Block 0 layout.
type superBlock struct {
	Magic         uint32
	Blocks        uint32
	UnusedBlocks  uint32
	Info          [InfoLen]byte
	FreemapBlocks uint32
}

func (s *superBlock) marshal() []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, order, s)
	return buf.Bytes()
}

func (s *superBlock) unmarshal(data []byte) error {
	return binary.Read(bytes.NewReader(data), order, s)
}

// diskInode mirrors spec.md §6's inode record, one per block.
type diskInode struct {
	Size          uint32
	Type          uint16
	NLinks        uint16
	Blocks        uint32
	Direct        [DirectPtrs]uint32
	Indirect      uint32
	DbIndirect    uint32
	DeviceInodeID uint64
}

func (i *diskInode) marshal(blockSize int) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, order, i)
	out := make([]byte, blockSize)
	copy(out, buf.Bytes())
	return out
}

func (i *diskInode) unmarshal(data []byte) error {
	return binary.Read(bytes.NewReader(data), order, i)
}

// dirent is the fixed 260-byte directory entry record.
type dirent struct {
	InodeID uint32
	Name    string
}

func marshalDirent(d dirent, blockSize int) []byte {
	out := make([]byte, blockSize)
	order.PutUint32(out[0:4], d.InodeID)
	copy(out[4:4+DirentNameLen], d.Name) // remaining bytes stay NUL
	return out
}

func unmarshalDirent(data []byte) dirent {
	id := order.Uint32(data[0:4])
	nameBuf := data[4 : 4+DirentNameLen]
	n := bytes.IndexByte(nameBuf, 0)
	if n < 0 {
		n = len(nameBuf)
	}
	return dirent{InodeID: id, Name: string(nameBuf[:n])}
}

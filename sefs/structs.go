// Package sefs implements the file-per-inode SEFS of spec.md §4.H: a single
// "metadata" file holds the superblock, free map and inode table, while each
// live inode owns its own backing file in a dev.Storage named by UUID.
package sefs

import (
	"bytes"
	"encoding/binary"
)

const (
	Magic = 0x5e75f5

	// DefaultBlockSize is the block size used to size the metadata file's
	// superblock/inode/freemap slots. It has no bearing on backing-file
	// content, which maps offsets 1:1 (spec.md §4.H).
	DefaultBlockSize = 4096

	metaSuperblockBlock = 0
	metaRootInodeBlock  = 1
	reservedBlocks      = 2

	DirentNameLen = 256
	DirentSize    = 4 + DirentNameLen

	typeFile        = 1
	typeDir         = 2
	typeSymLink     = 3
	typeCharDevice  = 4
	typeBlockDevice = 5

	macLen  = 32
	uuidLen = 16
)

var order = binary.LittleEndian

// superBlock mirrors the metadata file's block 0.
type superBlock struct {
	Magic      uint32
	Blocks     uint32
	UnusedBlocks uint32
	Groups     uint32
}

func (s *superBlock) marshal(blockSize int) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, order, s)
	out := make([]byte, blockSize)
	copy(out, buf.Bytes())
	return out
}

func (s *superBlock) unmarshal(data []byte) error {
	return binary.Read(bytes.NewReader(data), order, s)
}

// diskInode is the packed metadata-file record for one inode (spec.md §3's
// SEFS inode record: size/entry-count, nlinks, timestamps, mode, uid/gid,
// UUID and MAC).
type diskInode struct {
	Size   uint64
	Type   uint16
	NLinks uint16
	Blocks uint32
	Mode   uint32
	UID    uint32
	GID    uint32
	ATime  int64
	MTime  int64
	CTime  int64
	UUID   [uuidLen]byte
	MAC    [macLen]byte
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

// dirent is one packed entry of a directory's backing file.
type dirent struct {
	InodeID uint32
	Name    string
}

func marshalDirent(d dirent) []byte {
	out := make([]byte, DirentSize)
	order.PutUint32(out[0:4], d.InodeID)
	copy(out[4:4+DirentNameLen], d.Name)
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

package dev

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec names a block compression scheme, mirroring the teacher's SquashComp
// enum of interchangeable per-block codecs (comp.go, comp_xz.go,
// comp_zstd.go) generalized here into a read-write transform.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecXz
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecXz:
		return "xz"
	default:
		return fmt.Sprintf("Codec(%d)", c)
	}
}

func compress(c Codec, plain []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return plain, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(plain, nil), nil
	case CodecXz:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(plain); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("dev: unknown codec %d", c)
	}
}

func decompress(c Codec, packed []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return packed, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(packed, nil)
	case CodecXz:
		r, err := xz.NewReader(bytes.NewReader(packed))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("dev: unknown codec %d", c)
	}
}

// CompressedDevice wraps a BlockDevice, transparently compressing each
// block's payload with Codec before it hits the underlying device and
// decompressing on read. The logical block size it exposes is half the
// underlying device's physical block size, reserving the other half (far
// more than the header needs) as headroom for a 5-byte flag+length prefix
// plus whatever a codec's output can grow to; a block that doesn't shrink is
// stored raw (flag byte marks it) so incompressible data always fits its
// slot.
//
// This is an optional transform offered to sfs.Create/sfs.Open. Every codec,
// CodecNone included, halves the logical block size and prefixes each
// physical block with the header, so an image written through it is not
// readable without it.
type CompressedDevice struct {
	inner BlockDevice
	codec Codec
	mu    sync.Mutex
}

// NewCompressedDevice wraps inner with the given codec. inner's block size
// must be at least 16 bytes (any real block device clears this easily).
func NewCompressedDevice(inner BlockDevice, codec Codec) *CompressedDevice {
	return &CompressedDevice{inner: inner, codec: codec}
}

// BlockSizeLog2 reports the logical block size: half of the inner device's
// physical block size, so a full-size raw payload plus header always fits.
func (c *CompressedDevice) BlockSizeLog2() uint8 { return c.inner.BlockSizeLog2() - 1 }

func (c *CompressedDevice) physicalSize() int { return int(BlockSize(c.inner)) }

const (
	compressedFlagRaw      = 0
	compressedFlagEncoded  = 1
	compressedHeaderLen    = 5 // 1 flag byte + 4 length bytes
)

func (c *CompressedDevice) ReadAt(id uint64, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := make([]byte, c.physicalSize())
	if err := c.inner.ReadAt(id, phys); err != nil {
		return err
	}

	flag := phys[0]
	n := int(phys[1]) | int(phys[2])<<8 | int(phys[3])<<16 | int(phys[4])<<24
	if n == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	if n+compressedHeaderLen > len(phys) {
		return fmt.Errorf("dev: corrupt compressed block %d", id)
	}

	payload := phys[compressedHeaderLen : compressedHeaderLen+n]
	if flag == compressedFlagRaw {
		copy(buf, payload)
		return nil
	}

	plain, err := decompress(c.codec, payload)
	if err != nil {
		return err
	}
	copy(buf, plain)
	return nil
}

func (c *CompressedDevice) WriteAt(id uint64, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	packed, err := compress(c.codec, buf)
	if err != nil {
		return err
	}

	flag := byte(compressedFlagEncoded)
	phys := make([]byte, c.physicalSize())
	if len(packed) >= len(buf) || len(packed)+compressedHeaderLen > len(phys) {
		// incompressible (or codec disabled): store raw.
		packed = buf
		flag = compressedFlagRaw
	}
	n := len(packed)
	phys[0] = flag
	phys[1] = byte(n)
	phys[2] = byte(n >> 8)
	phys[3] = byte(n >> 16)
	phys[4] = byte(n >> 24)
	copy(phys[compressedHeaderLen:], packed)

	return c.inner.WriteAt(id, phys)
}

func (c *CompressedDevice) Sync() error { return c.inner.Sync() }

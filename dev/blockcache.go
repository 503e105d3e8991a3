package dev

import (
	"log"
	"sync"
)

type slotState int

const (
	slotUnused slotState = iota
	slotValid
	slotDirty
)

type cacheSlot struct {
	mu    sync.Mutex
	state slotState
	id    uint64
	buf   []byte
	// lastUse is a logical clock for LRU eviction; bumped on every touch.
	lastUse uint64
}

// BlockCache wraps a BlockDevice with a fixed-capacity write-back buffer
// pool. Each slot is independently locked so reads of distinct blocks can
// proceed in parallel; eviction picks the least-recently-used clean-or-dirty
// slot and writes it back first if dirty.
type BlockCache struct {
	dev      BlockDevice
	blockLog uint8
	slots    []*cacheSlot

	clockMu sync.Mutex // serializes clock bumps and slot selection
	clock   uint64
}

// NewBlockCache allocates a cache of the given slot capacity over dev.
func NewBlockCache(d BlockDevice, capacity int) *BlockCache {
	if capacity <= 0 {
		capacity = 1
	}
	bs := BlockSize(d)
	slots := make([]*cacheSlot, capacity)
	for i := range slots {
		slots[i] = &cacheSlot{buf: make([]byte, bs)}
	}
	return &BlockCache{dev: d, blockLog: d.BlockSizeLog2(), slots: slots}
}

func (c *BlockCache) BlockSizeLog2() uint8 { return c.blockLog }

// findSlot scans for a slot already holding id (Valid or Dirty). Returns nil
// if none found. The returned slot is locked on return.
func (c *BlockCache) findSlot(id uint64) *cacheSlot {
	for _, s := range c.slots {
		s.mu.Lock()
		if s.state != slotUnused && s.id == id {
			return s
		}
		s.mu.Unlock()
	}
	return nil
}

// acquireSlot returns a locked slot to use for id: a hit, an unused slot, or
// the least-recently-used slot evicted (written back first if dirty).
func (c *BlockCache) acquireSlot(id uint64) (*cacheSlot, bool /* hit */, error) {
	if s := c.findSlot(id); s != nil {
		return s, true, nil
	}

	// look for an unused slot first.
	for _, s := range c.slots {
		s.mu.Lock()
		if s.state == slotUnused {
			return s, false, nil
		}
		s.mu.Unlock()
	}

	// evict least-recently-used.
	var victim *cacheSlot
	var victimUse uint64
	for _, s := range c.slots {
		s.mu.Lock()
		if victim == nil || s.lastUse < victimUse {
			if victim != nil {
				victim.mu.Unlock()
			}
			victim = s
			victimUse = s.lastUse
			continue
		}
		s.mu.Unlock()
	}

	if victim.state == slotDirty {
		if err := c.dev.WriteAt(victim.id, victim.buf); err != nil {
			victim.mu.Unlock()
			return nil, false, wrapErr(err)
		}
		log.Printf("blockcache: evicted dirty block %d", victim.id)
	}
	victim.state = slotUnused
	return victim, false, nil
}

func (c *BlockCache) touch(s *cacheSlot) {
	c.clockMu.Lock()
	c.clock++
	s.lastUse = c.clock
	c.clockMu.Unlock()
}

// ReadAt reads block id into buf, filling the cache on miss.
func (c *BlockCache) ReadAt(id uint64, buf []byte) error {
	s, hit, err := c.acquireSlot(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !hit {
		if err := c.dev.ReadAt(id, s.buf); err != nil {
			s.state = slotUnused
			return wrapErr(err)
		}
		s.id = id
		s.state = slotValid
	}
	c.touch(s)
	copy(buf, s.buf)
	return nil
}

// WriteAt fills the cached copy of block id and marks it dirty.
func (c *BlockCache) WriteAt(id uint64, buf []byte) error {
	s, hit, err := c.acquireSlot(id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if !hit {
		s.id = id
	}
	copy(s.buf, buf)
	s.state = slotDirty
	c.touch(s)
	return nil
}

// Sync writes back every dirty slot, then forwards sync to the device.
func (c *BlockCache) Sync() error {
	for _, s := range c.slots {
		s.mu.Lock()
		if s.state == slotDirty {
			if err := c.dev.WriteAt(s.id, s.buf); err != nil {
				s.mu.Unlock()
				return wrapErr(err)
			}
			s.state = slotValid
		}
		s.mu.Unlock()
	}
	return wrapErr(c.dev.Sync())
}

// Close flushes the cache. Callers that drop a BlockCache should call this
// explicitly; there is no finalizer, since drop-time I/O errors must be
// observable to the caller per the logging-vs-panic policy of §5.
func (c *BlockCache) Close() error {
	return c.Sync()
}

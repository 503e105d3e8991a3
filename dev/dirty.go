package dev

// Dirty carries a value plus a dirty flag. sfs wraps its superblock and free
// map in a Dirty[T] so that sync() only has to write back what actually
// changed; inode records in sfs and sefs track this with a plain bool.
type Dirty[T any] struct {
	value T
	dirty bool
}

// NewDirty wraps v, initially clean.
func NewDirty[T any](v T) *Dirty[T] {
	return &Dirty[T]{value: v}
}

// Get returns a read-only view of the value.
func (d *Dirty[T]) Get() T {
	return d.value
}

// Dirty reports whether the value has unsynced changes.
func (d *Dirty[T]) Dirty() bool {
	return d.dirty
}

// Borrow returns a pointer to the value for in-place mutation and marks it
// dirty. Callers that only need to replace the value wholesale should use
// Set instead.
func (d *Dirty[T]) Borrow() *T {
	d.dirty = true
	return &d.value
}

// Set replaces the value and marks it dirty.
func (d *Dirty[T]) Set(v T) {
	d.value = v
	d.dirty = true
}

// Sync clears the dirty flag; callers must have already persisted Get().
func (d *Dirty[T]) Sync() {
	d.dirty = false
}

package vfs

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
// This is the closed error taxonomy every back-end in this module returns through.
var (
	// ErrNotSupported is returned by operations an inode or file system does not implement.
	ErrNotSupported = errors.New("vfs: operation not supported")

	// ErrNotFile is returned when a file-only operation is attempted on a non-file inode.
	ErrNotFile = errors.New("vfs: not a file")

	// ErrIsDir is returned when read/write is attempted on a directory.
	ErrIsDir = errors.New("vfs: is a directory")

	// ErrNotDir is returned when a directory-only operation is attempted on a non-directory.
	ErrNotDir = errors.New("vfs: not a directory")

	// ErrEntryNotFound is returned when a named lookup fails.
	ErrEntryNotFound = errors.New("vfs: entry not found")

	// ErrEntryExist is returned when create/link targets a name already present.
	ErrEntryExist = errors.New("vfs: entry already exists")

	// ErrNotSameFs is returned when link/move crosses file systems.
	ErrNotSameFs = errors.New("vfs: not the same file system")

	// ErrInvalidParam is returned for out-of-range or malformed arguments.
	ErrInvalidParam = errors.New("vfs: invalid parameter")

	// ErrNoDeviceSpace is returned when a backing device/storage has no free blocks left.
	ErrNoDeviceSpace = errors.New("vfs: no space left on device")

	// ErrDirRemoved is returned when an operation targets a directory unlinked from its parent.
	ErrDirRemoved = errors.New("vfs: directory removed")

	// ErrDirNotEmpty is returned when unlink targets a non-empty directory.
	ErrDirNotEmpty = errors.New("vfs: directory not empty")

	// ErrWrongFs is returned when on-disk structures fail to validate (bad magic, bad MAC).
	ErrWrongFs = errors.New("vfs: wrong or corrupted file system")

	// ErrDeviceError wraps any failure surfaced by the backing Device/Storage.
	ErrDeviceError = errors.New("vfs: device error")

	// ErrBusy is returned when an operation is blocked by a live mount or reference.
	ErrBusy = errors.New("vfs: resource busy")
)

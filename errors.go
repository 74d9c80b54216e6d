// Package cdfs implements a read-only ISO 9660 filesystem driver — with
// Rock Ridge and Joliet naming — over a block-level CD-ROM device that
// offers both synchronous multi-sector reads and an asynchronous
// streaming DMA mode. It is built to sit behind a VFS dispatch table
// under a single mount point, matching exactly one inserted disc at a
// time (spec §1).
package cdfs

import "errors"

// VFS-boundary error kinds (spec §7). Callers should compare with
// errors.Is; every internal failure is wrapped down to one of these
// before crossing the package boundary.
var (
	// ErrReadOnly is returned by Open when the caller requested a write
	// mode.
	ErrReadOnly = errors.New("cdfs: read-only filesystem")
	// ErrNoDevice is returned when there is no disc in the drive on
	// first open, or the volume probe otherwise failed.
	ErrNoDevice = errors.New("cdfs: no device")
	// ErrNotFound is returned when path resolution fails.
	ErrNotFound = errors.New("cdfs: not found")
	// ErrNoMemory is the out-of-memory error kind. No operation in this
	// package returns it: opening a handle has no allocation-failure path.
	ErrNoMemory = errors.New("cdfs: out of memory")
	// ErrBadHandle is returned by every operation except Close on a
	// broken or zero-extent handle.
	ErrBadHandle = errors.New("cdfs: bad file descriptor")
	// ErrInvalid is returned for a bad seek whence, an out-of-range
	// seek, or an unrecognized ioctl/fcntl argument.
	ErrInvalid = errors.New("cdfs: invalid argument")
	// ErrIO is returned when a device read fails during a read.
	ErrIO = errors.New("cdfs: i/o error")
)

// Package device declares the contracts the driver expects from the
// physical CD-ROM block device and its asynchronous DMA streaming unit.
// Nothing in this package talks to real hardware: it only describes the
// collaborator the rest of the module is wired against. The VFS dispatch
// table, the vblank pump, the mutex, and the intrusive list primitive are
// likewise external collaborators and are represented here only by the
// interfaces/types the driver needs from them.
package device

import "errors"

// Sentinel errors a Block implementation is expected to return so the
// cache and volume-probe layers can recognize them by value.
var (
	// ErrNoDisc is returned when there is no disc in the drive.
	ErrNoDisc = errors.New("device: no disc")
	// ErrDiscChanged is returned when the tray was opened and a
	// (possibly different) disc was reinserted since the last operation.
	ErrDiscChanged = errors.New("device: disc changed")
	// ErrBusy is returned by Status when a foreground operation is in
	// flight; the status watcher must tolerate this silently.
	ErrBusy = errors.New("device: busy")
)

// Status is the disc-tray status reported by the device.
type Status int

const (
	StatusUnknown Status = iota
	StatusReady
	StatusOpen
	StatusNoDisc
)

// ReadMode selects how a sector transfer is carried out.
type ReadMode int

const (
	// ReadModePIO reads through the CPU, one sector at a time.
	ReadModePIO ReadMode = iota
	// ReadModeDMA reads via the device's DMA engine.
	ReadModeDMA
)

// TOC is the table of contents of the inserted disc, reduced to what the
// volume probe needs: the physical sector (lead-in offset included) at
// which the data track begins.
type TOC struct {
	DataTrackStart uint32
}

// Block is the synchronous, multi-sector read half of the device contract.
type Block interface {
	// ReadSectors reads count sectors of SectorSize bytes starting at the
	// given physical sector (already adjusted by the lead-in offset by the
	// caller) into buf, which must be at least count*SectorSize bytes.
	ReadSectors(buf []byte, sector uint32, count int, mode ReadMode) error

	// ReadTOC reads the table of contents of the currently inserted disc.
	ReadTOC() (TOC, error)

	// Status reports the current disc-tray status. Implementations may
	// return ErrBusy if a foreground operation is in progress; callers
	// that poll (the status watcher) must treat that as "no change."
	Status() (Status, error)

	// Reinit reinitializes the device after a disc change is detected,
	// prior to reading a fresh TOC.
	Reinit() error
}

// Streamer is the asynchronous streaming-DMA half of the device contract.
// At most one stream may be active at a time; that invariant is enforced
// by pkg/stream, not by implementations of this interface.
type Streamer interface {
	// StreamStart begins a streaming DMA transfer of sectorCount sectors
	// starting at the given physical sector.
	StreamStart(sector uint32, sectorCount int, mode ReadMode) error

	// StreamRequest transfers up to len(buf) bytes of the active stream
	// into buf. lastPacket signals that this is believed to be the final
	// chunk of the current logical request, mirroring the CD-ROM
	// device's request-batching contract.
	StreamRequest(buf []byte, lastPacket bool) error

	// StreamProgress polls the active stream and reports the number of
	// bytes remaining in it. done is true once the driver may stop
	// polling and treat the transfer as complete.
	StreamProgress() (remaining int, done bool, err error)

	// StreamStop aborts any in-flight streaming transfer. It is safe to
	// call when no stream is active.
	StreamStop() error
}

// Device is the full contract consumed by the driver.
type Device interface {
	Block
	Streamer
}

// Package stream implements the single, process-wide streaming-DMA
// session described in spec §4.G: at most one open handle may be bound
// to it at a time. Session holds no internal lock of its own — every
// method assumes the caller already holds the owning Mount's handle
// mutex (spec §5: "handle mutex protects ... the single stream session
// slot"), the same convention pkg/handle's Registry uses.
package stream

import (
	"fmt"

	"github.com/bgrewell/iso9660cd/pkg/device"
	"github.com/bgrewell/iso9660cd/pkg/logging"
)

// Session is the single-slot stream binding. holder is an opaque
// identity (the *handle.Handle pointer, compared by equality) so this
// package does not need to import pkg/handle.
type Session struct {
	dev    device.Streamer
	log    *logging.Logger
	holder interface{}
}

// New creates a Session bound to no handle.
func New(dev device.Streamer, log *logging.Logger) *Session {
	if log == nil {
		log = logging.DefaultLogger()
	}
	return &Session{dev: dev, log: log}
}

// IsHolder reports whether id is the current stream holder.
func (s *Session) IsHolder(id interface{}) bool {
	return id != nil && s.holder == id
}

// Holder returns the current holder identity, or nil if the session is
// empty.
func (s *Session) Holder() interface{} {
	return s.holder
}

// Start aborts any existing stream and begins a new one bound to id.
// sector is already adjusted by the lead-in offset by the caller.
func (s *Session) Start(id interface{}, sector uint32, sectorCount int) error {
	s.Abort()
	if err := s.dev.StreamStart(sector, sectorCount, device.ReadModeDMA); err != nil {
		return fmt.Errorf("stream: start at sector %d: %w", sector, err)
	}
	s.holder = id
	s.log.Trace("stream started", "sector", sector, "sectorCount", sectorCount)
	return nil
}

// Request transfers up to len(buf) bytes of the active stream into buf.
// It does not change the binding; callers decide when to Abort based on
// the remaining count Progress reports.
func (s *Session) Request(buf []byte, lastPacket bool) error {
	if err := s.dev.StreamRequest(buf, lastPacket); err != nil {
		return fmt.Errorf("stream: request %d bytes: %w", len(buf), err)
	}
	return nil
}

// Progress polls the active stream's remaining byte count.
func (s *Session) Progress() (remaining int, done bool, err error) {
	remaining, done, err = s.dev.StreamProgress()
	if err != nil {
		return 0, false, fmt.Errorf("stream: progress: %w", err)
	}
	return remaining, done, nil
}

// Abort stops the device stream and clears the holder. It is safe to
// call when no stream is active. Called on close of the holder, on a
// seek that changes the holder's position, on any inode-cache miss
// (wired through cache.StreamAborter), on every new Start by a different
// handle, on end-of-range, and on disc change.
func (s *Session) Abort() {
	if s.holder == nil {
		return
	}
	if err := s.dev.StreamStop(); err != nil {
		s.log.Error(err, "stream stop failed")
	}
	s.holder = nil
	s.log.Trace("stream aborted")
}

// Package readengine implements the read-strategy selection of spec
// §4.F: per call it chooses between continuing an existing DMA stream,
// starting a new one, consuming a sub-32-byte stream tail, a direct
// multi-sector DMA read, or a cached single-sector read.
//
// Engine holds no lock of its own. Read must only be called while the
// owning Mount's handle mutex is held for the full operation (spec §5:
// "serializes each read/seek/close operation end-to-end").
package readengine

import (
	"fmt"
	"runtime"

	"github.com/bgrewell/iso9660cd/pkg/cache"
	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/device"
	"github.com/bgrewell/iso9660cd/pkg/handle"
	"github.com/bgrewell/iso9660cd/pkg/logging"
	"github.com/bgrewell/iso9660cd/pkg/stream"
)

// Engine is the read strategy selector bound to one mount's cache,
// device, and stream session.
type Engine struct {
	cache  *cache.Cache
	dev    device.Block
	stream *stream.Session
	log    *logging.Logger
}

// New creates an Engine.
func New(c *cache.Cache, dev device.Block, s *stream.Session, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.DefaultLogger()
	}
	return &Engine{cache: c, dev: dev, stream: s, log: log}
}

// Read copies up to len(out) bytes starting at h.Pos into out, advancing
// h.Pos, and returns the number of bytes actually copied. It loops until
// out is exhausted or end-of-file, exactly as spec §4.F's read_loop does,
// selecting a fresh strategy every iteration since the alignment and
// sector-boundary conditions can change mid-call.
func (e *Engine) Read(h *handle.Handle, out []byte) (int, error) {
	total := 0
	for len(out) > 0 {
		if h.Pos >= h.Size {
			break
		}
		toread := len(out)
		if remain := h.Size - h.Pos; uint64(toread) > remain {
			toread = int(remain)
		}
		if toread == 0 {
			break
		}

		sectorRemaining := consts.SectorSize - int(h.Pos%consts.SectorSize)
		sector := h.Extent + uint32(h.Pos/consts.SectorSize)

		n, err := e.step(h, out[:toread], sector, sectorRemaining)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}

		out = out[n:]
		h.Pos += uint64(n)
		total += n
	}
	return total, nil
}

// step performs exactly one strategy-selected transfer and returns the
// number of bytes it produced.
func (e *Engine) step(h *handle.Handle, out []byte, sector uint32, sectorRemaining int) (int, error) {
	toread := len(out)
	aligned := cache.IsAligned32(out)
	isHolder := e.stream.IsHolder(h)

	switch {
	case isHolder && sectorRemaining%consts.StreamAlignment == 0 && toread >= consts.StreamAlignment && aligned:
		return e.continueStream(h, out, sector, sectorRemaining)

	case !isHolder && sectorRemaining == consts.SectorSize && toread >= consts.StreamAlignment && aligned:
		n, started, err := e.startStream(h, out, sector)
		if started {
			return n, err
		}
		// Stream start failed: not fatal, fall back for this iteration
		// (spec §4.F / §9 design notes — bytes/ptr are not advanced yet).
		return e.directOrCached(h, out, sector, sectorRemaining)

	case isHolder && toread < consts.StreamAlignment:
		return e.streamTail(h, out, sectorRemaining)

	default:
		return e.directOrCached(h, out, sector, sectorRemaining)
	}
}

// continueStream issues a streaming request rounded down to a 32-byte
// multiple and polls progress until the device reports done to learn
// whether the stream has run out (spec §9 design notes: poll to
// completion rather than trusting a nonzero "progress" value as "done").
func (e *Engine) continueStream(h *handle.Handle, out []byte, sector uint32, sectorRemaining int) (int, error) {
	toread := len(out) - len(out)%consts.StreamAlignment
	if toread == 0 {
		return e.directOrCached(h, out, sector, sectorRemaining)
	}

	lastPacket := uint64(toread) >= h.Size-h.Pos
	if err := e.stream.Request(out[:toread], lastPacket); err != nil {
		e.stream.Abort()
		return 0, fmt.Errorf("readengine: stream request: %w", err)
	}

	remaining, done, err := e.pollProgress()
	if err != nil {
		e.stream.Abort()
		return 0, err
	}
	if done && remaining == 0 {
		e.stream.Abort()
	}
	return toread, nil
}

// startStream binds the session to h and issues the first request. It
// returns started=false (with a nil error) when the device refused the
// stream start, signalling the caller to fall back for this iteration.
func (e *Engine) startStream(h *handle.Handle, out []byte, sector uint32) (n int, started bool, err error) {
	remainingFileBytes := h.Size - h.Pos
	sectorCount := int((remainingFileBytes + consts.SectorSize - 1) / consts.SectorSize)

	if serr := e.stream.Start(h, sector+consts.LeadInOffset, sectorCount); serr != nil {
		e.log.Debug("readengine: stream start failed, using direct/cached path", "error", serr)
		return 0, false, nil
	}
	h.ClearPartial()

	sectorRemaining := consts.SectorSize
	n, cerr := e.continueStream(h, out, sector, sectorRemaining)
	return n, true, cerr
}

// streamTail serves a sub-32-byte read while the stream is bound to h,
// reusing a previously stashed 32-byte fetch when one is available and
// otherwise issuing a fresh 32-byte request into the handle's scratch
// buffer (spec §4.F).
func (e *Engine) streamTail(h *handle.Handle, out []byte, sectorRemaining int) (int, error) {
	toread := len(out)
	if toread > sectorRemaining {
		toread = sectorRemaining
	}

	if off, ok := h.Partial(); ok {
		copy(out[:toread], h.Scratch()[off:off+toread])
		h.ClearPartial()
		return toread, nil
	}

	if err := e.stream.Request(h.Scratch(), false); err != nil {
		e.stream.Abort()
		return 0, fmt.Errorf("readengine: stream tail request: %w", err)
	}

	remaining, _, err := e.pollProgress()
	if err != nil {
		e.stream.Abort()
		return 0, err
	}

	copy(out[:toread], h.Scratch()[:toread])
	h.SetPartial(toread)
	if remaining == 0 {
		e.stream.Abort()
	}
	return toread, nil
}

// pollProgress spins on StreamProgress until the device reports the
// current request is done, yielding to the scheduler between polls as
// spec §5 requires for the sub-32-byte tail path.
func (e *Engine) pollProgress() (remaining int, done bool, err error) {
	for {
		remaining, done, err = e.stream.Progress()
		if err != nil {
			return 0, false, fmt.Errorf("readengine: stream progress: %w", err)
		}
		if done {
			return remaining, true, nil
		}
		runtime.Gosched()
	}
}

// directOrCached performs a direct multi-sector DMA read when the
// request is sector-aligned and at least one full sector, or otherwise
// falls back to a cached single-sector read through the data queue.
func (e *Engine) directOrCached(h *handle.Handle, out []byte, sector uint32, sectorRemaining int) (int, error) {
	toread := len(out)
	aligned := cache.IsAligned32(out)

	if sectorRemaining == consts.SectorSize && toread >= consts.SectorSize && aligned {
		count := toread / consts.SectorSize
		n := count * consts.SectorSize
		if err := e.dev.ReadSectors(out[:n], sector+consts.LeadInOffset, count, device.ReadModeDMA); err != nil {
			return 0, fmt.Errorf("readengine: direct read: %w", err)
		}
		return n, nil
	}

	if toread > sectorRemaining {
		toread = sectorRemaining
	}
	data, err := e.cache.Read(cache.Data, sector)
	if err != nil {
		return 0, fmt.Errorf("readengine: cached read: %w", err)
	}
	offsetInSector := int(h.Pos % consts.SectorSize)
	copy(out[:toread], data[offsetInSector:offsetInSector+toread])
	return toread, nil
}

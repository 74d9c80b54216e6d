package cdfs

import (
	"fmt"
	"io"
	"strings"

	"github.com/bgrewell/iso9660cd/pkg/cache"
	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/directory"
	"github.com/bgrewell/iso9660cd/pkg/encoding"
	"github.com/bgrewell/iso9660cd/pkg/handle"
)

// OpenFlag mirrors the POSIX-style open(2) flags the VFS boundary passes
// through (spec §6). Only the access-mode bits and O_DIRECTORY are
// meaningful here: every other bit is accepted and ignored.
type OpenFlag int

const (
	O_RDONLY OpenFlag = 0
	O_WRONLY OpenFlag = 1
	O_RDWR   OpenFlag = 2

	// O_DIRECTORY requests that path resolve to a directory; Open fails
	// with ErrNotFound if it does not.
	O_DIRECTORY OpenFlag = 1 << 16
)

func (f OpenFlag) writeRequested() bool {
	return f&3 == O_WRONLY || f&3 == O_RDWR
}

// File is one open handle returned by Mount.Open. It is not safe for
// concurrent use from multiple goroutines beyond what the owning Mount's
// handle mutex already serializes.
type File struct {
	m *Mount
	h *handle.Handle
}

// checkLiveLocked mirrors the source's percd_done check at the top of
// every filesystem entry point (spec §4.B precondition, §4.H): it gives
// a stale mount one last chance to reinitialize — which unconditionally
// marks every open handle broken as its first step, this one included —
// before reporting whatever the handle's resulting state implies.
// ensureMountedLocked's own error is deliberately not surfaced here: a
// disc-change reinit legitimately fails to find a new disc, but the
// caller-visible outcome for an existing handle is always bad handle,
// never no device (spec §7, "disc change ... sets their broken flag").
// Caller must hold f.m.mu.
func (f *File) checkLiveLocked() error {
	_ = f.m.ensureMountedLocked()
	if f.h.Broken() {
		return ErrBadHandle
	}
	return nil
}

// Open resolves path against the mounted volume and returns a new File.
// Write-mode flags are rejected with ErrReadOnly (spec §6, §7); the
// O_DIRECTORY bit selects whether path must resolve to a directory.
func (m *Mount) Open(path string, flags OpenFlag) (*File, error) {
	if flags.writeRequested() {
		return nil, ErrReadOnly
	}
	wantDir := flags&O_DIRECTORY != 0

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureMountedLocked(); err != nil {
		return nil, err
	}

	entry, err := m.resolveWantLocked(path, wantDir)
	if err != nil {
		return nil, err
	}

	h := handle.New(entry.Extent, entry.IsDirectory(), uint64(entry.Size))
	if entry.Extent == 0 {
		// A zero extent can never be read or listed; the handle is
		// allocated (close must still work) but every other operation
		// reports bad handle (spec §3, §7).
		h.Break()
	}
	m.registry.Insert(h)
	return &File{m: m, h: h}, nil
}

// Close unlinks the handle from the registry and, if it was the active
// stream holder, aborts the stream. Close always succeeds, even on an
// already-broken handle (spec §4.E).
func (f *File) Close() error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if f.m.stream.IsHolder(f.h) {
		f.m.stream.Abort()
	}
	f.m.registry.Remove(f.h)
	return nil
}

// Read copies into p starting at the handle's current position, advancing
// it, via the read engine's strategy selection (spec §4.F). On any
// device read failure the partial byte count already copied is not
// reported: Read returns -1 and ErrIO, matching the VFS boundary
// convention (spec §7).
func (f *File) Read(p []byte) (int, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if err := f.checkLiveLocked(); err != nil {
		return -1, err
	}
	if f.h.IsDir {
		return -1, ErrBadHandle
	}

	n, err := f.m.engine.Read(f.h, p)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return n, nil
}

// Whence selects the origin Seek computes the new position from.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Seek repositions the handle. A resulting position before byte 0 is
// rejected with ErrInvalid; a position past end-of-file is clamped to
// end (spec §6, §8 property 6). Any active stream bound to this handle
// is aborted when the position actually changes, since a seek
// invalidates stream continuity (spec §4.G).
func (f *File) Seek(offset int64, whence Whence) (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if err := f.checkLiveLocked(); err != nil {
		return -1, err
	}

	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = int64(f.h.Pos)
	case SeekEnd:
		base = int64(f.h.Size)
	default:
		return -1, ErrInvalid
	}

	newPos := base + offset
	if newPos < 0 {
		return -1, ErrInvalid
	}
	if newPos > int64(f.h.Size) {
		newPos = int64(f.h.Size)
	}

	if uint64(newPos) != f.h.Pos {
		if f.m.stream.IsHolder(f.h) {
			f.m.stream.Abort()
		}
		f.h.ClearPartial()
	}
	f.h.Pos = uint64(newPos)
	return newPos, nil
}

// Tell reports the handle's current byte position.
func (f *File) Tell() (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if err := f.checkLiveLocked(); err != nil {
		return -1, err
	}
	return int64(f.h.Pos), nil
}

// Total reports the handle's total size in bytes.
func (f *File) Total() (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if err := f.checkLiveLocked(); err != nil {
		return -1, err
	}
	return int64(f.h.Size), nil
}

// DirEntry is one entry returned by Readdir (spec §4.I). Size is -1 for
// directories, matching the Stat convention.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Readdir returns the next real directory entry, skipping the "." and
// ".." records at the start of the directory and never returning them
// (spec §4.I, §8 property 9). It returns io.EOF once the directory is
// exhausted.
func (f *File) Readdir() (DirEntry, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if err := f.checkLiveLocked(); err != nil {
		return DirEntry{}, err
	}
	if !f.h.IsDir {
		return DirEntry{}, ErrBadHandle
	}

	if f.h.DirPos() == 0 {
		for i := 0; i < 2; i++ {
			if _, ok, err := f.m.nextDirRecordLocked(f.h); err != nil {
				return DirEntry{}, fmt.Errorf("%w: %v", ErrIO, err)
			} else if !ok {
				return DirEntry{}, io.EOF
			}
		}
	}

	e, ok, err := f.m.nextDirRecordLocked(f.h)
	if err != nil {
		return DirEntry{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if !ok {
		return DirEntry{}, io.EOF
	}

	name, err := f.m.entryDisplayName(e)
	if err != nil {
		return DirEntry{}, fmt.Errorf("%w: %v", ErrIO, err)
	}

	if e.IsDirectory() {
		return DirEntry{Name: name, IsDir: true, Size: -1}, nil
	}
	return DirEntry{Name: name, IsDir: false, Size: int64(e.Size)}, nil
}

// RewindDir resets the directory enumeration cursor to the start (spec
// §6, §8 property 9).
func (f *File) RewindDir() error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if err := f.checkLiveLocked(); err != nil {
		return err
	}
	f.h.SetDirPos(0)
	return nil
}

// nextDirRecordLocked advances h's directory cursor past the next
// entry, crossing sector boundaries on a zero-length record (spec
// §4.I). ok is false once the directory's byte size is exhausted.
// Caller must hold m.mu.
func (m *Mount) nextDirRecordLocked(h *handle.Handle) (directory.Entry, bool, error) {
	for {
		pos := h.DirPos()
		if pos >= h.Size {
			return directory.Entry{}, false, nil
		}

		sector := h.Extent + uint32(pos/consts.SectorSize)
		offset := int(pos % consts.SectorSize)

		data, err := m.cache.Read(cache.Inode, sector)
		if err != nil {
			return directory.Entry{}, false, err
		}

		e, ok, perr := directory.ParseEntry(data, offset)
		if perr != nil {
			return directory.Entry{}, false, perr
		}
		if !ok {
			next := (pos/consts.SectorSize + 1) * consts.SectorSize
			h.SetDirPos(next)
			continue
		}

		h.SetDirPos(pos + uint64(e.Length))
		return e, true, nil
	}
}

// entryDisplayName computes the name readdir reports for e: the decoded
// Joliet name under a Joliet mount, else the Rock Ridge NM name if
// present, else the ISO name lowercased with its trailing dot and
// ";version" suffix stripped (spec §4.I).
func (m *Mount) entryDisplayName(e directory.Entry) (string, error) {
	if m.joliet() {
		return encoding.DecodeJolietName(e.Name)
	}
	if m.opts.rockRidge {
		if rr := e.RockRidgeName(); rr != "" {
			return rr, nil
		}
	}
	return isoDisplayName(e.Name), nil
}

func isoDisplayName(raw []byte) string {
	name := string(raw)
	if idx := strings.IndexByte(name, ';'); idx >= 0 {
		name = name[:idx]
	}
	name = strings.TrimSuffix(name, ".")
	return strings.ToLower(name)
}

// resolveWantLocked resolves path to a directory entry, requiring the
// final component to match wantDir. The root path ("" or "/") resolves
// to the mounted root when wantDir is true (spec §6 "root path '/' or
// empty handled specially"). Caller must hold m.mu.
func (m *Mount) resolveWantLocked(path string, wantDir bool) (directory.Entry, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		if !wantDir {
			return directory.Entry{}, ErrNotFound
		}
		return m.root, nil
	}

	entry, found, err := m.resolver.Walk(m.joliet(), trimmed, wantDir, m.root)
	if err != nil {
		return directory.Entry{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if !found {
		return directory.Entry{}, ErrNotFound
	}
	return entry, nil
}

// resolveAnyLocked resolves path to a directory entry regardless of
// kind, trying directory resolution before file resolution (Stat does
// not know in advance which kind a path names). Caller must hold m.mu.
func (m *Mount) resolveAnyLocked(path string) (directory.Entry, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return m.root, nil
	}

	if e, found, err := m.resolver.Walk(m.joliet(), trimmed, true, m.root); err != nil {
		return directory.Entry{}, fmt.Errorf("%w: %v", ErrIO, err)
	} else if found {
		return e, nil
	}
	if e, found, err := m.resolver.Walk(m.joliet(), trimmed, false, m.root); err != nil {
		return directory.Entry{}, fmt.Errorf("%w: %v", ErrIO, err)
	} else if found {
		return e, nil
	}
	return directory.Entry{}, ErrNotFound
}

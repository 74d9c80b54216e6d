// Package handle implements the open-file registry of spec §4.E: the set
// of live handles, their broken-on-disc-change flag, and the per-handle
// scratch state the streaming sub-32-byte tail path needs.
//
// Registry holds no lock of its own. Every method assumes the owning
// Mount's handle mutex is already held by the caller, the same way the
// source's intrusive list is protected entirely by an external mutex
// rather than one of its own (spec §5).
package handle

// Handle is one open file or directory handle (spec §3 "Open handle").
// Extent/Size are captured at open time from the mount's root/ resolved
// entry by value, so a handle never needs to chase a pointer back into
// mount state — spec §9's "cyclic references do not occur" note.
type Handle struct {
	Extent uint32
	IsDir  bool
	Size   uint64
	Pos    uint64

	broken bool

	// dirPos tracks the readdir cursor independently of Pos so that a
	// plain Read/Seek on a directory handle (which VFS still permits
	// querying) never perturbs in-progress directory enumeration.
	dirPos uint64

	// scratch is the 32-byte DMA buffer used by the streaming sub-32-byte
	// tail path (spec §4.F); partialOff/partialValid record the "partial
	// stream byte count" hint the same path stashes between calls.
	scratch      [32]byte
	partialOff   int
	partialValid bool
}

// New creates a Handle snapshotting the resolved entry's extent/size.
func New(extent uint32, isDir bool, size uint64) *Handle {
	return &Handle{Extent: extent, IsDir: isDir, Size: size}
}

// Broken reports whether a disc change has poisoned this handle.
func (h *Handle) Broken() bool { return h.broken }

// Break transitions the handle false -> true exactly once; it never
// returns to false (spec §3).
func (h *Handle) Break() { h.broken = true }

// DirPos returns the current readdir cursor.
func (h *Handle) DirPos() uint64 { return h.dirPos }

// SetDirPos updates the readdir cursor.
func (h *Handle) SetDirPos(pos uint64) { h.dirPos = pos }

// Scratch returns the handle's 32-byte DMA scratch buffer.
func (h *Handle) Scratch() []byte { return h.scratch[:] }

// Partial returns the stashed stream-tail offset and whether one is
// present.
func (h *Handle) Partial() (offset int, ok bool) { return h.partialOff, h.partialValid }

// SetPartial records offset as the partial-stream byte count hint.
func (h *Handle) SetPartial(offset int) {
	h.partialOff = offset
	h.partialValid = true
}

// ClearPartial discards any stashed partial-stream hint.
func (h *Handle) ClearPartial() {
	h.partialValid = false
	h.partialOff = 0
}

// Registry is the set of open handles (spec §4.E). See the package
// doc comment for its locking convention.
type Registry struct {
	handles map[*Handle]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[*Handle]struct{})}
}

// Insert links h into the registry on open.
func (r *Registry) Insert(h *Handle) {
	r.handles[h] = struct{}{}
}

// Remove unlinks h from the registry on close.
func (r *Registry) Remove(h *Handle) {
	delete(r.handles, h)
}

// MarkAllBroken iterates every open handle and sets its broken flag, as
// spec §4.B step 1 and §4.E require on disc change. There is no
// un-break operation; callers must close and re-open (spec §4.E).
func (r *Registry) MarkAllBroken() {
	for h := range r.handles {
		h.broken = true
	}
}

// Len reports the number of currently open handles.
func (r *Registry) Len() int {
	return len(r.handles)
}

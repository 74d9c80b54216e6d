package cdfs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bgrewell/iso9660cd/pkg/cache"
	"github.com/bgrewell/iso9660cd/pkg/device"
	"github.com/bgrewell/iso9660cd/pkg/directory"
	"github.com/bgrewell/iso9660cd/pkg/handle"
	"github.com/bgrewell/iso9660cd/pkg/logging"
	"github.com/bgrewell/iso9660cd/pkg/readengine"
	"github.com/bgrewell/iso9660cd/pkg/resolver"
	"github.com/bgrewell/iso9660cd/pkg/status"
	"github.com/bgrewell/iso9660cd/pkg/stream"
	"github.com/bgrewell/iso9660cd/pkg/volume"
)

// MountName is the VFS mount point this driver registers under (spec
// §6), kept here purely for documentation/registration glue outside the
// core — the VFS dispatch table itself is an external collaborator.
const MountName = "/cd"

// Mount is the single-device driver instance. One Mount serves
// successive discs; its mount state (sessionBase, jolietLevel, root) is
// rebuilt on every disc change (spec §3 "Mount state", §9 "model
// it as a single Mount structure owned by the driver instance").
//
// mu is the one handle mutex of spec §5: it protects the open-handle
// registry, the broken flags, the stream-session slot, sessionBase/
// jolietLevel/root, and serializes every Open/Read/Seek/Close/Readdir
// end-to-end. mounted is deliberately outside mu — it is flipped by the
// status watcher without a lock, matching the source's single-writer
// percd_done/iso_last_status convention (spec §5: "race on clear is
// benign because the worst outcome is one extra reinit").
type Mount struct {
	opts mountOptions

	dev      device.Device
	cache    *cache.Cache
	stream   *stream.Session
	registry *handle.Registry
	prober   *volume.Prober
	resolver *resolver.Resolver
	engine   *readengine.Engine
	watcher  *status.Watcher

	mu          sync.Mutex
	sessionBase uint32
	jolietLevel int
	root        directory.Entry

	mounted atomic.Bool

	tickerStop chan struct{}
}

// reinitShim adapts Mount to cache.Reinitializer. Its Reinit is only
// ever invoked by (*cache.Cache).Read after that call has already
// released the cache mutex (see pkg/cache), and only from within a
// Mount operation that already holds m.mu — so it must not try to
// acquire m.mu itself.
type reinitShim struct{ m *Mount }

func (r reinitShim) Reinit() error { return r.m.reinitLocked() }

// New constructs a Mount over dev. The disc is probed lazily on first
// Open, not here, matching the source's "first use or disc-change"
// precondition for init_percd (spec §4.B).
func New(dev device.Device, opts ...Option) *Mount {
	o := defaultMountOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &Mount{opts: o, dev: dev}
	m.stream = stream.New(dev, o.log)
	m.registry = handle.NewRegistry()
	m.cache = cache.New(dev, m.stream, o.cacheSize, o.log)
	m.cache.SetReinitializer(reinitShim{m: m})
	m.prober = volume.New(dev, m.cache, o.log)
	m.resolver = resolver.New(m.cache, o.rockRidge, o.log)
	m.engine = readengine.New(m.cache, dev, m.stream, o.log)
	m.watcher = status.New(dev, func() { m.mounted.Store(false) }, o.log)

	if o.statusPollEnabled {
		m.tickerStop = make(chan struct{})
		go m.pollLoop(o.statusPollEvery)
	}

	return m
}

func (m *Mount) pollLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.watcher.Tick()
		case <-m.tickerStop:
			return
		}
	}
}

// VBlank drives the status watcher. Call it from the vblank/timer event
// source's handler (spec §4.H); not needed when WithStatusPollInterval
// was used to start an internal ticker instead.
func (m *Mount) VBlank() {
	m.watcher.Tick()
}

// Close stops the internal status-poll ticker, if one was started.
// There is nothing else to release: Mount holds no file descriptors or
// persisted state of its own (spec §6 "Persisted state: none").
func (m *Mount) Close() {
	if m.tickerStop != nil {
		close(m.tickerStop)
	}
}

// reinitLocked performs the full volume-probe reinitialization of spec
// §4.B. The caller must already hold m.mu.
func (m *Mount) reinitLocked() error {
	invalidate := func() {
		m.registry.MarkAllBroken()
		m.stream.Abort()
	}
	state, err := m.prober.Run(invalidate, m.opts.jolietPreferred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	m.sessionBase = state.SessionBase
	m.jolietLevel = state.JolietLevel
	m.root = state.Root
	m.mounted.Store(true)
	return nil
}

// ensureMountedLocked reinitializes the volume if the status watcher (or a
// prior failed probe) has marked the mount stale. Caller must hold m.mu.
func (m *Mount) ensureMountedLocked() error {
	if m.mounted.Load() {
		return nil
	}
	return m.reinitLocked()
}

// joliet reports whether the active root uses Joliet naming. Caller
// must hold m.mu (or tolerate a benign race against a concurrent
// reinit, as readdir/resolve snapshots do).
func (m *Mount) joliet() bool {
	return m.jolietLevel > 0
}

// Package status implements the disc-status watcher of spec §4.H: a
// periodic poll, driven by an external vblank-style pump, that notices
// tray-open and no-disc transitions and tells the mount to treat itself
// as stale.
package status

import (
	"github.com/bgrewell/iso9660cd/pkg/device"
	"github.com/bgrewell/iso9660cd/pkg/logging"
)

// Watcher samples device status on every Tick. last is read and written
// without a lock by design (spec §5: "iso_last_status ... written by the
// status watcher without a lock; single-writer, race on clear is
// benign"): Tick is only ever called from the single vblank pump.
type Watcher struct {
	dev   device.Block
	clear func()
	log   *logging.Logger
	last  device.Status
}

// New creates a Watcher. clear is invoked when a tray-open or no-disc
// transition is observed; it must be safe to call without any lock held
// (the mount's "mount current" flag is itself a single-writer flag for
// the same reason, per spec §5).
func New(dev device.Block, clear func(), log *logging.Logger) *Watcher {
	if log == nil {
		log = logging.DefaultLogger()
	}
	return &Watcher{dev: dev, clear: clear, log: log, last: device.StatusUnknown}
}

// Tick samples device status once. A busy device (Status returning an
// error) is tolerated silently, as spec §4.H requires — the watcher does
// nothing that tick and waits for the next one.
func (w *Watcher) Tick() {
	st, err := w.dev.Status()
	if err != nil {
		w.log.Trace("status watcher: device unavailable this tick", "error", err)
		return
	}
	if st == w.last {
		return
	}
	w.last = st
	if st == device.StatusOpen || st == device.StatusNoDisc {
		w.log.Debug("status watcher: disc removed or tray opened, marking mount stale", "status", st)
		w.clear()
	}
}

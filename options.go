package cdfs

import (
	"time"

	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/logging"
)

// mountOptions holds the configuration a Mount is built with, matching
// the teacher's functional-options idiom (pkg/option.OpenOptions in the
// original iso-kit codebase).
type mountOptions struct {
	rockRidge         bool
	jolietPreferred   bool
	cacheSize         int
	statusPollEnabled bool
	statusPollEvery   time.Duration
	log               *logging.Logger
}

func defaultMountOptions() mountOptions {
	return mountOptions{
		rockRidge:       true,
		jolietPreferred: true,
		cacheSize:       consts.NumCacheSlots,
		statusPollEvery: 0,
		log:             logging.DefaultLogger(),
	}
}

// Option configures a Mount at construction time.
type Option func(*mountOptions)

// WithRockRidge toggles whether Rock Ridge NM records are honored when
// resolving and listing non-Joliet names. Enabled by default.
func WithRockRidge(enabled bool) Option {
	return func(o *mountOptions) { o.rockRidge = enabled }
}

// WithJolietPreferred toggles whether a Joliet supplementary descriptor
// is preferred over the primary descriptor's root when both are present.
// Enabled by default; disabling it forces ISO/Rock Ridge naming even on
// a disc that also carries a Joliet tree.
func WithJolietPreferred(enabled bool) Option {
	return func(o *mountOptions) { o.jolietPreferred = enabled }
}

// WithCacheSize overrides the number of slots per LRU cache queue. The
// spec's NumCacheSlots=16 is the default; tests use a smaller value to
// exercise eviction without 17 sector fixtures.
func WithCacheSize(slots int) Option {
	return func(o *mountOptions) { o.cacheSize = slots }
}

// WithLogger sets the logger the cache, volume probe, resolver, read
// engine, stream session, and status watcher log through. The handle
// registry does not log.
func WithLogger(log *logging.Logger) Option {
	return func(o *mountOptions) { o.log = log }
}

// WithStatusPollInterval enables an internal ticker that calls Tick on
// the status watcher every interval, instead of relying on an external
// vblank-style pump calling Mount.VBlank(). Zero (the default) leaves
// polling entirely up to the caller.
func WithStatusPollInterval(interval time.Duration) Option {
	return func(o *mountOptions) {
		o.statusPollEnabled = interval > 0
		o.statusPollEvery = interval
	}
}

// Package volume implements the volume probe of spec §4.B: locating the
// data track, detecting a Joliet supplementary descriptor and its
// escape-sequence level, and falling back to the primary descriptor's
// root directory entry.
package volume

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bgrewell/iso9660cd/pkg/cache"
	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/device"
	"github.com/bgrewell/iso9660cd/pkg/directory"
	"github.com/bgrewell/iso9660cd/pkg/logging"
)

// ErrNoPrimaryDescriptor is returned when neither a Joliet supplementary
// descriptor nor the primary descriptor could be found at their fixed
// offsets. Spec §9's open question flags the source's original error
// path here (it returned the loop counter 0-3 as if it were an error
// code); this is the "distinct non-success code" the design notes call
// for instead.
var ErrNoPrimaryDescriptor = errors.New("volume: no primary volume descriptor found")

var (
	primaryPrefix = []byte{0x01, 'C', 'D', '0', '0', '1'}
	jolietPrefix  = []byte{0x02, 'C', 'D', '0', '0', '1'}
)

// rootEntryOffset is the byte offset of the embedded root directory
// record within both a primary and a supplementary volume descriptor
// (ECMA-119 8.4.14 / 8.5.14).
const rootEntryOffset = 156

// escapeOffset is the byte offset of the 3-byte Joliet escape sequence
// within a supplementary volume descriptor (ECMA-119 8.5.6, Joliet
// specification Appendix A).
const escapeOffset = 88

// State is the mount state rebuilt by a successful probe (spec §3
// "Mount state").
type State struct {
	SessionBase uint32
	JolietLevel int
	Root        directory.Entry
}

// Prober runs the probe algorithm against a device and its inode cache.
type Prober struct {
	dev   device.Block
	cache *cache.Cache
	log   *logging.Logger
}

// New creates a Prober.
func New(dev device.Block, c *cache.Cache, log *logging.Logger) *Prober {
	if log == nil {
		log = logging.DefaultLogger()
	}
	return &Prober{dev: dev, cache: c, log: log}
}

// Run executes the probe (spec §4.B steps 2-5). invalidate performs step
// 1 (mark every open handle broken and abort any active stream) and must
// be called before the cache is cleared; Run clears both cache queues
// itself immediately after. allowJoliet disables the Joliet descriptor
// scan entirely when false (the cdfs.WithJolietPreferred(false) option),
// forcing the primary descriptor's root to be used even if a Joliet
// descriptor is present.
func (p *Prober) Run(invalidate func(), allowJoliet bool) (State, error) {
	invalidate()
	p.cache.Clear()

	if err := p.dev.Reinit(); err != nil {
		return State{}, fmt.Errorf("volume: device reinit: %w", err)
	}
	toc, err := p.dev.ReadTOC()
	if err != nil {
		return State{}, fmt.Errorf("volume: reading toc: %w", err)
	}
	sessionBase := toc.DataTrackStart

	for i := uint32(1); allowJoliet && i <= 3; i++ {
		sector := sessionBase + i + consts.ISO9660_SYSTEM_AREA_SECTORS - consts.LeadInOffset
		data, err := p.cache.Read(cache.Inode, sector)
		if err != nil {
			p.log.Debug("volume: joliet descriptor scan read failed, continuing", "index", i, "error", err)
			continue
		}
		if !bytes.Equal(data[0:6], jolietPrefix) {
			continue
		}
		level := jolietLevel(data[escapeOffset : escapeOffset+3])
		if level == 0 {
			continue
		}
		root, rerr := rootEntry(data)
		if rerr != nil {
			return State{}, rerr
		}
		p.log.Debug("volume: joliet descriptor found", "index", i, "level", level)
		return State{SessionBase: sessionBase, JolietLevel: level, Root: root}, nil
	}

	sector := sessionBase + consts.ISO9660_SYSTEM_AREA_SECTORS - consts.LeadInOffset
	data, err := p.cache.Read(cache.Inode, sector)
	if err != nil {
		return State{}, fmt.Errorf("volume: reading primary descriptor: %w", err)
	}
	if !bytes.Equal(data[0:6], primaryPrefix) {
		return State{}, ErrNoPrimaryDescriptor
	}
	root, err := rootEntry(data)
	if err != nil {
		return State{}, err
	}
	p.log.Debug("volume: primary descriptor found, no joliet")
	return State{SessionBase: sessionBase, JolietLevel: 0, Root: root}, nil
}

// jolietLevel maps a descriptor's 3-byte escape sequence to a Joliet
// level, or 0 if it does not match any of the three recognized escapes.
func jolietLevel(escape []byte) int {
	switch {
	case bytes.Equal(escape, []byte(consts.JOLIET_LEVEL_1_ESCAPE)):
		return 1
	case bytes.Equal(escape, []byte(consts.JOLIET_LEVEL_2_ESCAPE)):
		return 2
	case bytes.Equal(escape, []byte(consts.JOLIET_LEVEL_3_ESCAPE)):
		return 3
	default:
		return 0
	}
}

// rootEntry decodes the embedded root directory record at the fixed
// offset within a volume descriptor sector.
func rootEntry(descriptor []byte) (directory.Entry, error) {
	e, ok, err := directory.ParseEntry(descriptor, rootEntryOffset)
	if err != nil {
		return directory.Entry{}, fmt.Errorf("volume: decoding root directory entry: %w", err)
	}
	if !ok {
		return directory.Entry{}, fmt.Errorf("volume: root directory entry has zero length")
	}
	return e, nil
}

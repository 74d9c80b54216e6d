// Package cache implements the two-tier LRU sector cache sitting between
// the filesystem driver and the physical CD-ROM device: one queue for
// inode/directory/volume-descriptor sectors, one for file-content sectors.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/device"
	"github.com/bgrewell/iso9660cd/pkg/logging"
)

// emptySector is the sentinel sector number meaning "this slot holds no
// data."
const emptySector = ^uint32(0)

// StreamAborter aborts any in-flight streaming session. The cache calls
// this before issuing a device read into the inode queue, because
// metadata reads are not compatible with a live stream (spec 4.A). It is
// satisfied by *stream.Session without cache importing stream directly,
// keeping the lock-ordering rule (handle mutex before cache mutex) the
// caller's responsibility rather than the cache's.
type StreamAborter interface {
	Abort()
}

// Reinitializer rebuilds mount state after the device reports a disc
// change or missing disc. The cache triggers it on a failed read (spec
// §4.A/§7) as a best-effort recovery; the read that triggered it still
// fails.
type Reinitializer interface {
	Reinit() error
}

// slot is one resident sector buffer. Queues hold pointers to slots so
// that promotion (a position-only shuffle) never copies the 2048-byte
// payload.
type slot struct {
	sector uint32
	data   []byte
}

// Cache holds the two independent 16-entry LRU queues described in spec
// §3/§4.A. A single mutex serializes lookup, device I/O, and reordering
// for both queues, matching the "cache mutex protects both cache queues"
// rule in spec §5.
type Cache struct {
	mu sync.Mutex

	inode []*slot // position 0 = LRU, position len-1 = MRU
	data  []*slot

	dev    device.Block
	stream StreamAborter
	reinit Reinitializer
	log    *logging.Logger

	// backing is the single aligned allocation all slot buffers are
	// sliced from, mirroring fs_iso9660_init's one aligned_alloc for all
	// cache buffers.
	backing []byte
}

// New allocates a Cache with the given number of slots per queue (the
// spec's NumCacheSlots=16) backed by one aligned allocation.
func New(dev device.Block, stream StreamAborter, slots int, log *logging.Logger) *Cache {
	if log == nil {
		log = logging.DefaultLogger()
	}
	if slots <= 0 {
		slots = consts.NumCacheSlots
	}

	c := &Cache{
		dev:    dev,
		stream: stream,
		log:    log,
	}
	c.backing = alignedAlloc(2 * slots * consts.SectorSize)

	c.inode = make([]*slot, slots)
	c.data = make([]*slot, slots)
	for i := 0; i < slots; i++ {
		c.inode[i] = &slot{sector: emptySector, data: c.backing[i*2*consts.SectorSize : i*2*consts.SectorSize+consts.SectorSize]}
		c.data[i] = &slot{sector: emptySector, data: c.backing[i*2*consts.SectorSize+consts.SectorSize : (i+1)*2*consts.SectorSize]}
	}
	return c
}

// SetReinitializer wires the volume-probe rebuild hook in after
// construction, since the volume probe itself is built on top of the
// cache (it reads volume-descriptor sectors through the inode queue) and
// so cannot be handed to New before the cache exists.
func (c *Cache) SetReinitializer(r Reinitializer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reinit = r
}

// alignedAlloc returns a slice of n bytes whose first byte is aligned to
// at least 32 bytes, as required for DMA transfers. Go's allocator does
// not expose an alignment knob, so this over-allocates and slices the
// first aligned offset, the same trick embedded/driver Go code uses when
// it needs DMA-safe buffers without cgo (see e.g. go-ublk's mmap buffer
// handling).
func alignedAlloc(n int) []byte {
	const align = 32
	buf := make([]byte, n+align)
	offset := int(uintptr(unsafe.Pointer(&buf[0])) % align)
	if offset == 0 {
		return buf[:n]
	}
	return buf[align-offset : align-offset+n]
}

// IsAligned32 reports whether p points to a 32-byte boundary, the
// granularity the read engine must observe for streaming DMA (spec §4.F).
func IsAligned32(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&p[0]))%consts.StreamAlignment == 0
}

// Queue selects which of the two LRU queues a caller wants to read
// through.
type Queue int

const (
	// Inode selects the directory/volume-descriptor cache. Reading
	// through it aborts any active stream first.
	Inode Queue = iota
	// Data selects the file-content cache. A stream may remain active
	// across a Data read.
	Data
)

// Read returns the bytes of the given logical sector, fetching it from
// the device on a miss. The returned slice aliases the cache's internal
// buffer and is only valid until the next Read call on either queue —
// callers must copy out anything they need to keep.
func (c *Cache) Read(q Queue, sector uint32) ([]byte, error) {
	c.mu.Lock()

	queue := c.queueFor(q)

	for i := len(queue) - 1; i >= 0; i-- {
		if queue[i].sector == sector {
			promote(queue, i)
			c.log.Trace("cache hit", "queue", q, "sector", sector)
			data := queue[len(queue)-1].data
			c.mu.Unlock()
			return data, nil
		}
	}

	idx := firstEmpty(queue)
	if idx < 0 {
		idx = 0
	}

	if q == Inode && c.stream != nil {
		c.stream.Abort()
	}

	target := queue[idx]
	readErr := c.dev.ReadSectors(target.data, sector+consts.LeadInOffset, 1, device.ReadModeDMA)
	if readErr != nil {
		c.log.Error(readErr, "cache miss read failed", "queue", q, "sector", sector)
		c.mu.Unlock()

		if errors.Is(readErr, device.ErrDiscChanged) || errors.Is(readErr, device.ErrNoDisc) {
			if c.reinit != nil {
				if rerr := c.reinit.Reinit(); rerr != nil {
					c.log.Error(rerr, "mount reinitialization after disc change failed")
				}
			}
		}
		return nil, fmt.Errorf("cache: reading sector %d: %w", sector, readErr)
	}

	target.sector = sector
	promote(queue, idx)
	c.log.Trace("cache miss filled", "queue", q, "sector", sector)
	data := queue[len(queue)-1].data
	c.mu.Unlock()
	return data, nil
}

// Clear resets both queues to the empty sentinel, discarding all resident
// sectors without freeing the backing buffers.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.inode {
		s.sector = emptySector
	}
	for _, s := range c.data {
		s.sector = emptySector
	}
}

func (c *Cache) queueFor(q Queue) []*slot {
	if q == Inode {
		return c.inode
	}
	return c.data
}

// promote rotates the hit at position p to the MRU end (len-1), shifting
// the intervening entries down by one. Relative order of every other
// entry is preserved — this is the queue invariant spec §3 requires.
func promote(queue []*slot, p int) {
	if p < 0 || p >= len(queue)-1 {
		return
	}
	hit := queue[p]
	copy(queue[p:], queue[p+1:])
	queue[len(queue)-1] = hit
}

func firstEmpty(queue []*slot) int {
	for i, s := range queue {
		if s.sector == emptySector {
			return i
		}
	}
	return -1
}

package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/device"
)

// fakeBlock is a minimal device.Block that serves sectors out of an
// in-memory map and counts reads per sector for test assertions.
type fakeBlock struct {
	reads     map[uint32]int
	failNext  error
	lastCount int
}

func newFakeBlock() *fakeBlock {
	return &fakeBlock{reads: make(map[uint32]int)}
}

func (f *fakeBlock) ReadSectors(buf []byte, sector uint32, count int, mode device.ReadMode) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.reads[sector]++
	f.lastCount = count
	for i := range buf {
		buf[i] = byte(sector)
	}
	return nil
}

func (f *fakeBlock) ReadTOC() (device.TOC, error)         { return device.TOC{}, nil }
func (f *fakeBlock) Status() (device.Status, error)       { return device.StatusReady, nil }
func (f *fakeBlock) Reinit() error                        { return nil }

type noopAborter struct{ aborted int }

func (n *noopAborter) Abort() { n.aborted++ }

func TestCacheHitPromotesToMRU(t *testing.T) {
	fb := newFakeBlock()
	c := New(fb, nil, 16, nil)

	_, err := c.Read(Data, 5)
	require.NoError(t, err)
	_, err = c.Read(Data, 7)
	require.NoError(t, err)

	// Re-reading 5 should be a cache hit: no extra device read.
	// The fake counts physical sectors, i.e. logical + LeadInOffset.
	before := fb.reads[5+consts.LeadInOffset]
	_, err = c.Read(Data, 5)
	require.NoError(t, err)
	assert.Equal(t, before, fb.reads[5+consts.LeadInOffset])
	assert.Equal(t, uint32(5), c.data[len(c.data)-1].sector)
}

func TestCacheAdmissionEvictsOldestAfter17(t *testing.T) {
	fb := newFakeBlock()
	c := New(fb, nil, consts.NumCacheSlots, nil)

	for s := uint32(0); s < 16; s++ {
		_, err := c.Read(Data, s)
		require.NoError(t, err)
	}
	// Sector 0 sits at position 0 (LRU) now.
	require.Equal(t, uint32(0), c.data[0].sector)

	_, err := c.Read(Data, 16)
	require.NoError(t, err)

	for _, s := range c.data {
		assert.NotEqual(t, uint32(0), s.sector, "sector 0 should have been evicted")
	}
}

func TestCacheInodeReadAbortsStream(t *testing.T) {
	fb := newFakeBlock()
	aborter := &noopAborter{}
	c := New(fb, aborter, 16, nil)

	_, err := c.Read(Inode, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, aborter.aborted)

	// A data-cache read must not touch the stream aborter.
	_, err = c.Read(Data, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, aborter.aborted)
}

func TestCacheReadErrorTriggersReinitOnDiscChange(t *testing.T) {
	fb := newFakeBlock()
	fb.failNext = device.ErrDiscChanged
	c := New(fb, nil, 16, nil)

	reinit := &countingReinitializer{}
	c.SetReinitializer(reinit)

	_, err := c.Read(Inode, 2)
	require.Error(t, err)
	assert.Equal(t, 1, reinit.calls)
}

func TestCacheClearResetsBothQueues(t *testing.T) {
	fb := newFakeBlock()
	c := New(fb, nil, 16, nil)
	_, err := c.Read(Data, 3)
	require.NoError(t, err)
	_, err = c.Read(Inode, 4)
	require.NoError(t, err)

	c.Clear()

	for _, s := range c.data {
		assert.Equal(t, emptySector, s.sector)
	}
	for _, s := range c.inode {
		assert.Equal(t, emptySector, s.sector)
	}
}

type countingReinitializer struct{ calls int }

func (r *countingReinitializer) Reinit() error {
	r.calls++
	return nil
}

func TestIsAligned32(t *testing.T) {
	buf := make([]byte, 64+32)
	var aligned []byte
	for off := 0; off < 32; off++ {
		if IsAligned32(buf[off:]) {
			aligned = buf[off : off+32]
			break
		}
	}
	require.NotNil(t, aligned, fmt.Sprintf("expected to find a 32-byte aligned window in test buffer"))
}

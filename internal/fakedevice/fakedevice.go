// Package fakedevice builds a synthetic ISO 9660 image in memory —
// optionally carrying Rock Ridge NM records and a Joliet supplementary
// volume descriptor — and serves it through an in-memory device.Device,
// so the driver can be exercised against the property and scenario
// checks of spec §8 without real hardware.
package fakedevice

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/device"
)

// File describes one file or directory to place in the synthetic image.
type File struct {
	// Name is the raw ISO 8.3+version name, e.g. "README.TXT;1".
	Name string
	// RockRidge is an optional Rock Ridge NM alternate name.
	RockRidge string
	// Joliet is an optional Joliet (UTF-8, pre-UCS-2BE-encoding) name.
	// Defaults to Name with the ";1" version suffix stripped when the
	// image has Joliet enabled and Joliet is left empty.
	Joliet string
	// Data is the file's content. Ignored for directories.
	Data []byte
	// Dir marks this entry as a directory; Children lists its contents.
	Dir      bool
	Children []File
}

// Options configures Build.
type Options struct {
	// Joliet enables a supplementary volume descriptor at the given
	// level (1, 2, or 3). 0 disables Joliet entirely.
	Joliet int
	// SessionBase is the TOC data-track start sector reported by
	// ReadTOC. Defaults to 0 if unset via BuildOption.
	SessionBase uint32
}

// BuildOption configures a build.
type BuildOption func(*Options)

// WithJoliet enables a Joliet supplementary descriptor at the given
// level.
func WithJoliet(level int) BuildOption {
	return func(o *Options) { o.Joliet = level }
}

// WithSessionBase overrides the TOC data-track start sector.
func WithSessionBase(base uint32) BuildOption {
	return func(o *Options) { o.SessionBase = base }
}

// Image is a synthetic ISO 9660 image: a sparse map of logical sector
// number (SessionBase included, i.e. the same numbering the volume probe
// and cache use, lead-in-offset-free) to its 2048-byte contents.
type Image struct {
	SessionBase uint32
	JolietLevel int
	Sectors     map[uint32][]byte
	nextSector  uint32
}

func newImage(base uint32) *Image {
	return &Image{SessionBase: base, Sectors: make(map[uint32][]byte), nextSector: base + consts.ISO9660_SYSTEM_AREA_SECTORS + 2}
}

func (img *Image) alloc(count int) uint32 {
	first := img.nextSector
	img.nextSector += uint32(count)
	return first
}

func (img *Image) sector(n uint32) []byte {
	s, ok := img.Sectors[n]
	if !ok {
		s = make([]byte, consts.SectorSize)
		img.Sectors[n] = s
	}
	return s
}

// Build lays out root (and any nested directories) as a synthetic ISO
// 9660 image, returning the resulting Image.
func Build(root []File, opts ...BuildOption) (*Image, error) {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	img := newImage(o.SessionBase)
	img.JolietLevel = o.Joliet

	primaryRootExtent, primaryRootSize, err := layoutDirectory(img, root, false)
	if err != nil {
		return nil, err
	}

	var jolietRootExtent, jolietRootSize uint32
	if o.Joliet > 0 {
		jolietRootExtent, jolietRootSize, err = layoutDirectory(img, root, true)
		if err != nil {
			return nil, err
		}
	}

	writePrimaryDescriptor(img, primaryRootExtent, primaryRootSize)
	if o.Joliet > 0 {
		writeJolietDescriptor(img, o.Joliet, jolietRootExtent, jolietRootSize)
	}

	return img, nil
}

// layoutDirectory writes one directory's records (and recursively its
// children's directories and file data) into fresh sectors, returning
// the directory's own extent and byte size.
func layoutDirectory(img *Image, entries []File, joliet bool) (extent uint32, size uint32, err error) {
	// Reserve data extents for every file and nested directory before
	// encoding this directory's records, so extents are known up front.
	type laidOut struct {
		spec   File
		extent uint32
		length uint32
	}
	placed := make([]laidOut, 0, len(entries))
	for _, e := range entries {
		if e.Dir {
			childExtent, childSize, cerr := layoutDirectory(img, e.Children, joliet)
			if cerr != nil {
				return 0, 0, cerr
			}
			placed = append(placed, laidOut{spec: e, extent: childExtent, length: childSize})
			continue
		}
		sectors := (len(e.Data) + consts.SectorSize - 1) / consts.SectorSize
		if sectors == 0 {
			sectors = 1
		}
		dataExtent := img.alloc(sectors)
		for i, b := range e.Data {
			sec := img.sector(dataExtent + uint32(i/consts.SectorSize))
			sec[i%consts.SectorSize] = b
		}
		placed = append(placed, laidOut{spec: e, extent: dataExtent, length: uint32(len(e.Data))})
	}

	dirExtent := img.alloc(1)
	sec := img.sector(dirExtent)
	offset := 0

	offset += writeDotEntries(sec, offset, dirExtent, 0, joliet)

	for _, p := range placed {
		rec, rerr := encodeEntry(p.spec, p.extent, p.length, joliet)
		if rerr != nil {
			return 0, 0, rerr
		}
		if offset+len(rec) > consts.SectorSize {
			return 0, 0, fmt.Errorf("fakedevice: directory overflowed a single sector; split across sectors is not supported by this test harness")
		}
		copy(sec[offset:], rec)
		offset += len(rec)
	}

	return dirExtent, consts.SectorSize, nil
}

// writeDotEntries writes the "." and ".." records every directory
// carries (spec §4.I: readdir skips exactly these two on its first
// call).
func writeDotEntries(sec []byte, offset int, selfExtent, parentExtent uint32, joliet bool) int {
	self := dotEntry(selfExtent, 0x00)
	parent := dotEntry(parentExtent, 0x01)
	copy(sec[offset:], self)
	copy(sec[offset+len(self):], parent)
	_ = joliet
	return len(self) + len(parent)
}

func dotEntry(extent uint32, nameByte byte) []byte {
	const length = 34
	rec := make([]byte, length)
	rec[0] = byte(length)
	putBoth32(rec[2:10], extent)
	putBoth32(rec[10:18], consts.SectorSize)
	rec[25] = 0x02 // directory flag
	rec[32] = 1
	rec[33] = nameByte
	return rec
}

// encodeEntry builds one on-disc directory record for spec, including a
// trailing Rock Ridge NM system-use entry when RockRidge is set and this
// is not the Joliet tree.
func encodeEntry(spec File, extent uint32, size uint32, joliet bool) ([]byte, error) {
	var nameBytes []byte
	if joliet {
		name := spec.Joliet
		if name == "" {
			name = stripVersion(spec.Name)
		}
		nameBytes = encodeUCS2BE(name)
	} else {
		nameBytes = []byte(spec.Name)
	}

	nameLen := len(nameBytes)
	var sysUse []byte
	if !joliet && spec.RockRidge != "" {
		sysUse = encodeNM(spec.RockRidge)
	}

	length := 33 + nameLen
	if nameLen%2 == 0 {
		length++
	}
	length += len(sysUse)

	rec := make([]byte, length)
	rec[0] = byte(length)
	putBoth32(rec[2:10], extent)
	putBoth32(rec[10:18], size)
	flags := byte(0x00)
	if spec.Dir {
		flags = 0x02
	}
	rec[25] = flags
	rec[32] = byte(nameLen)
	copy(rec[33:33+nameLen], nameBytes)

	off := 33 + nameLen
	if nameLen%2 == 0 {
		off++
	}
	copy(rec[off:], sysUse)

	return rec, nil
}

// encodeNM builds a single Rock Ridge NM system-use entry carrying name.
func encodeNM(name string) []byte {
	length := 5 + len(name)
	rec := make([]byte, length)
	rec[0] = 'N'
	rec[1] = 'M'
	rec[2] = byte(length)
	rec[3] = 1 // version
	rec[4] = 0 // flags
	copy(rec[5:], name)
	return rec
}

// encodeUCS2BE converts a UTF-8 string to UCS-2BE, handling only the
// BMP (sufficient for test fixtures; the production decoder in
// pkg/encoding handles the general case via golang.org/x/text).
func encodeUCS2BE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

func stripVersion(name string) string {
	for i, c := range name {
		if c == ';' {
			return name[:i]
		}
	}
	return name
}

func putBoth32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst[0:4], v)
	binary.BigEndian.PutUint32(dst[4:8], v)
}

// writePrimaryDescriptor fills sector SessionBase+16 with a minimal
// primary volume descriptor carrying the embedded root directory record
// at its fixed offset.
func writePrimaryDescriptor(img *Image, rootExtent, rootSize uint32) {
	sector := img.SessionBase + consts.ISO9660_SYSTEM_AREA_SECTORS
	sec := img.sector(sector)
	sec[0] = 0x01
	copy(sec[1:6], []byte("CD001"))
	sec[6] = byte(consts.ISO9660_VOLUME_DESC_VERSION)
	copy(sec[156:], rootDirRecord(rootExtent, rootSize))
}

// writeJolietDescriptor fills sector SessionBase+17 (descriptor index 1)
// with a supplementary volume descriptor carrying the Joliet escape
// sequence for the given level and the Joliet root directory record.
func writeJolietDescriptor(img *Image, level int, rootExtent, rootSize uint32) {
	sector := img.SessionBase + 1 + consts.ISO9660_SYSTEM_AREA_SECTORS
	sec := img.sector(sector)
	sec[0] = 0x02
	copy(sec[1:6], []byte("CD001"))
	sec[6] = byte(consts.ISO9660_VOLUME_DESC_VERSION)

	var escape string
	switch level {
	case 1:
		escape = consts.JOLIET_LEVEL_1_ESCAPE
	case 2:
		escape = consts.JOLIET_LEVEL_2_ESCAPE
	case 3:
		escape = consts.JOLIET_LEVEL_3_ESCAPE
	}
	copy(sec[88:91], []byte(escape))
	copy(sec[156:], rootDirRecord(rootExtent, rootSize))
}

func rootDirRecord(extent, size uint32) []byte {
	const length = 34
	rec := make([]byte, length)
	rec[0] = byte(length)
	putBoth32(rec[2:10], extent)
	putBoth32(rec[10:18], size)
	rec[25] = 0x02
	rec[32] = 1
	rec[33] = 0x00
	return rec
}

// Device serves an Image through the device.Device contract, in memory.
// It supports simulating a disc eject (SetEjected) and a busy status
// response (SetBusy) for the property checks in spec §8.
type Device struct {
	mu sync.Mutex

	img     *Image
	ejected bool
	busy    bool

	streaming      bool
	streamSector   uint32
	streamOffset   int
	streamTotal    int
	streamLastSeen int
}

// NewDevice wraps img behind a device.Device.
func NewDevice(img *Image) *Device {
	return &Device{img: img}
}

// SetEjected simulates a tray-open/no-disc condition: all subsequent
// operations fail until cleared.
func (d *Device) SetEjected(ejected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ejected = ejected
}

// SetBusy simulates the device reporting ErrBusy from Status.
func (d *Device) SetBusy(busy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = busy
}

// ReplaceImage swaps in a new image and clears the ejected flag, as if a
// new disc had been inserted after an eject.
func (d *Device) ReplaceImage(img *Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.img = img
	d.ejected = false
}

func (d *Device) ReadSectors(buf []byte, sector uint32, count int, mode device.ReadMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ejected {
		return device.ErrNoDisc
	}
	logical := sector - consts.LeadInOffset
	for i := 0; i < count; i++ {
		src := d.img.Sectors[logical+uint32(i)]
		dst := buf[i*consts.SectorSize : (i+1)*consts.SectorSize]
		if src == nil {
			for j := range dst {
				dst[j] = 0
			}
			continue
		}
		copy(dst, src)
	}
	return nil
}

func (d *Device) ReadTOC() (device.TOC, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ejected {
		return device.TOC{}, device.ErrNoDisc
	}
	return device.TOC{DataTrackStart: d.img.SessionBase + consts.LeadInOffset}, nil
}

func (d *Device) Status() (device.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy {
		return device.StatusUnknown, device.ErrBusy
	}
	if d.ejected {
		return device.StatusNoDisc, nil
	}
	return device.StatusReady, nil
}

func (d *Device) Reinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ejected {
		return device.ErrNoDisc
	}
	return nil
}

func (d *Device) StreamStart(sector uint32, sectorCount int, mode device.ReadMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ejected {
		return device.ErrNoDisc
	}
	d.streaming = true
	d.streamSector = sector - consts.LeadInOffset
	d.streamOffset = 0
	d.streamTotal = sectorCount * consts.SectorSize
	return nil
}

func (d *Device) StreamRequest(buf []byte, lastPacket bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming {
		return fmt.Errorf("fakedevice: stream request with no active stream")
	}
	if d.ejected {
		return device.ErrNoDisc
	}
	for i := range buf {
		pos := d.streamOffset + i
		sec := d.streamSector + uint32(pos/consts.SectorSize)
		off := pos % consts.SectorSize
		src := d.img.Sectors[sec]
		if src == nil {
			buf[i] = 0
			continue
		}
		buf[i] = src[off]
	}
	d.streamOffset += len(buf)
	d.streamLastSeen = len(buf)
	return nil
}

func (d *Device) StreamProgress() (remaining int, done bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming {
		return 0, true, nil
	}
	remaining = d.streamTotal - d.streamOffset
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}

func (d *Device) StreamStop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = false
	return nil
}

var _ device.Device = (*Device)(nil)

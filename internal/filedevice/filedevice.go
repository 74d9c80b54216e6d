// Package filedevice implements device.Device over a plain ISO 9660
// image file on the host filesystem, standing in for the real CD-ROM
// block device and its streaming-DMA unit (both external collaborators
// per spec §1) so cmd/cdmount has something to mount without real
// optical hardware. None of this package is part of the driver core;
// it exists purely to give the CLI a runnable backend.
package filedevice

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bgrewell/iso9660cd/pkg/consts"
	"github.com/bgrewell/iso9660cd/pkg/device"
)

// Device reads sectors directly from an os.File holding a raw ISO 9660
// image. There is no lead-in to account for: the file's sector 0 is the
// image's logical sector 0, so a plain ISO file device reports a
// DataTrackStart of 0 and serves ReadSectors at sector*SectorSize
// verbatim.
type Device struct {
	mu sync.Mutex
	f  *os.File

	streamOffset    int64
	streamRemaining int
}

// Open opens path as the backing image for a Device.
func Open(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filedevice: opening %s: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Close releases the backing file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

// ReadSectors reads count sectors starting at sector directly from the
// backing file.
func (d *Device) ReadSectors(buf []byte, sector uint32, count int, mode device.ReadMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := count * consts.SectorSize
	if len(buf) < n {
		return fmt.Errorf("filedevice: buffer too small for %d sectors", count)
	}
	_, err := d.f.ReadAt(buf[:n], int64(sector)*consts.SectorSize)
	if err != nil && err != io.EOF {
		return fmt.Errorf("filedevice: reading sector %d: %w", sector, err)
	}
	return nil
}

// ReadTOC reports a single data track starting at sector 0.
func (d *Device) ReadTOC() (device.TOC, error) {
	return device.TOC{DataTrackStart: 0}, nil
}

// Status always reports a ready disc: a plain file never ejects.
func (d *Device) Status() (device.Status, error) {
	return device.StatusReady, nil
}

// Reinit is a no-op: there is no hardware state to reset.
func (d *Device) Reinit() error {
	return nil
}

// StreamStart begins simulated streaming at sector for sectorCount
// sectors, served synchronously out of the backing file on each
// StreamRequest.
func (d *Device) StreamStart(sector uint32, sectorCount int, mode device.ReadMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamOffset = int64(sector) * consts.SectorSize
	d.streamRemaining = sectorCount * consts.SectorSize
	return nil
}

// StreamRequest serves up to len(buf) bytes of the simulated stream.
func (d *Device) StreamRequest(buf []byte, lastPacket bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.f.ReadAt(buf, d.streamOffset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("filedevice: stream request: %w", err)
	}
	d.streamOffset += int64(n)
	d.streamRemaining -= n
	if d.streamRemaining < 0 {
		d.streamRemaining = 0
	}
	return nil
}

// StreamProgress reports the simulated stream's remaining byte count. A
// file-backed stream is always immediately "done" from the device's
// point of view since StreamRequest already transferred synchronously.
func (d *Device) StreamProgress() (remaining int, done bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamRemaining, true, nil
}

// StreamStop clears the simulated stream state.
func (d *Device) StreamStop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamRemaining = 0
	return nil
}

// Package consts holds the fixed geometry constants of an ISO 9660 volume
// as seen by the block-cached driver.
package consts

const (
	// Number of system area sectors reserved at the start of a volume.
	ISO9660_SYSTEM_AREA_SECTORS = 16

	// Standard ISO9660 identifier.
	ISO9660_STD_IDENTIFIER = "CD001"

	// ISO9660 volume descriptor version (always 1).
	ISO9660_VOLUME_DESC_VERSION = 1

	// Sector size in bytes. Every cache slot and every DMA transfer is a
	// multiple of this.
	SectorSize = 2048

	// JOLIET level 1, 2, and 3 escape sequences, found at byte offset 88 of
	// a supplementary volume descriptor.
	JOLIET_LEVEL_1_ESCAPE = "%/@"
	JOLIET_LEVEL_2_ESCAPE = "%/C"
	JOLIET_LEVEL_3_ESCAPE = "%/E"

	// LeadInOffset is the fixed 150-sector prefix on the physical device;
	// physical sector = logical sector + LeadInOffset.
	LeadInOffset = 150

	// NumCacheSlots is the number of entries in each LRU cache queue.
	NumCacheSlots = 16

	// StreamAlignment is the DMA transfer granularity while a streaming
	// session is active.
	StreamAlignment = 32

	// BlockSize is the stat(2) st_blksize reported for every entry.
	BlockSize = 512
)

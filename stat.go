package cdfs

import "github.com/bgrewell/iso9660cd/pkg/consts"

// statDev is st_dev = 'c' | ('d' << 8), the fixed device identifier the
// spec assigns this filesystem (spec §6).
const statDev = uint16('c') | uint16('d')<<8

// Mode bits this driver ever reports: read and execute for user, group,
// and other, plus the directory bit. There is no write bit — the
// filesystem is read-only end to end.
const (
	modeDir      = 1 << 14
	modeReadExec = 0o555
)

// FileInfo is the stat(2)-shaped metadata returned by Stat and Fstat
// (spec §6 "Stat fields"). Size is -1 for directories, including the
// mounted root.
type FileInfo struct {
	Dev     uint16
	Mode    uint32
	Size    int64
	Nlink   uint32
	Blksize uint32
	IsDir   bool
}

func fileInfoForDir() FileInfo {
	return FileInfo{Dev: statDev, Mode: modeDir | modeReadExec, Size: -1, Nlink: 2, Blksize: consts.BlockSize, IsDir: true}
}

func fileInfoForFile(size uint64) FileInfo {
	return FileInfo{Dev: statDev, Mode: modeReadExec, Size: int64(size), Nlink: 1, Blksize: consts.BlockSize, IsDir: false}
}

// Stat resolves path and reports its metadata without opening a handle.
// The root path ("" or "/") is handled specially and always resolves to
// the mounted root directory (spec §6).
func (m *Mount) Stat(path string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureMountedLocked(); err != nil {
		return FileInfo{}, err
	}

	entry, err := m.resolveAnyLocked(path)
	if err != nil {
		return FileInfo{}, err
	}
	if entry.IsDirectory() {
		return fileInfoForDir(), nil
	}
	return fileInfoForFile(uint64(entry.Size)), nil
}

// Fstat reports the metadata of an already-open handle (spec §6,
// "same fields from handle").
func (f *File) Fstat() (FileInfo, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if err := f.checkLiveLocked(); err != nil {
		return FileInfo{}, err
	}
	if f.h.IsDir {
		return fileInfoForDir(), nil
	}
	return fileInfoForFile(f.h.Size), nil
}

// FcntlCmd selects the fcntl(2)-style operation Fcntl performs.
type FcntlCmd int

const (
	// F_GETFL reports the handle's open flags: always O_RDONLY, with
	// O_DIRECTORY set for a directory handle.
	F_GETFL FcntlCmd = iota
	// F_SETFL, F_GETFD, and F_SETFD are accepted as no-ops: this
	// filesystem has no flags to change and no close-on-exec state of
	// its own (spec §6).
	F_SETFL
	F_GETFD
	F_SETFD
)

// Fcntl implements the fcntl surface of spec §6.
func (f *File) Fcntl(cmd FcntlCmd, arg int) (int, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if err := f.checkLiveLocked(); err != nil {
		return -1, err
	}

	switch cmd {
	case F_GETFL:
		flags := int(O_RDONLY)
		if f.h.IsDir {
			flags |= int(O_DIRECTORY)
		}
		return flags, nil
	case F_SETFL, F_GETFD, F_SETFD:
		return 0, nil
	default:
		return -1, ErrInvalid
	}
}

// IoctlCmd selects the ioctl(2)-style operation Ioctl performs.
type IoctlCmd int

// IoctlDMAAlignment is the one recognized ioctl command: it reports the
// DMA transfer granularity currently in effect for the handle (32 bytes
// while a stream is bound to it, 2048 bytes otherwise) and whether pos
// is aligned to that granularity (spec §6).
const IoctlDMAAlignment IoctlCmd = 1

// Ioctl implements the ioctl surface of spec §6. aligned reports whether
// the handle's current position satisfies the returned granularity,
// mirroring iso_ioctl's `fd->ptr & (granularity-1)` check; it is the
// "success/failure" outcome the spec describes for this command.
func (f *File) Ioctl(cmd IoctlCmd) (granularity int, aligned bool, err error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()

	if err := f.checkLiveLocked(); err != nil {
		return 0, false, err
	}
	if cmd != IoctlDMAAlignment {
		return 0, false, ErrInvalid
	}

	granularity = consts.SectorSize
	if f.m.stream.IsHolder(f.h) {
		granularity = consts.StreamAlignment
	}
	aligned = f.h.Pos%uint64(granularity) == 0
	return granularity, aligned, nil
}

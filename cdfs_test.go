package cdfs_test

import (
	"io"
	"testing"

	"github.com/bgrewell/iso9660cd"
	"github.com/bgrewell/iso9660cd/internal/fakedevice"
	"github.com/stretchr/testify/require"
)

func isoOnlyTree() []fakedevice.File {
	return []fakedevice.File{
		{Name: "README.TXT;1", Data: []byte("hello from the root\n")},
		{Name: "DOCS", Dir: true, Children: []fakedevice.File{
			{Name: "NOTES.TXT;1", Data: []byte("nested file contents\n")},
		}},
	}
}

func buildMount(t *testing.T, tree []fakedevice.File, opts ...fakedevice.BuildOption) (*cdfs.Mount, *fakedevice.Device) {
	t.Helper()
	img, err := fakedevice.Build(tree, opts...)
	require.NoError(t, err)
	dev := fakedevice.NewDevice(img)
	m := cdfs.New(dev, cdfs.WithCacheSize(4))
	t.Cleanup(m.Close)
	return m, dev
}

// S1: an ISO-only image resolves and reads back exactly.
func TestScenarioISOOnly(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	f, err := m.Open("/README.TXT", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 64)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello from the root\n", string(buf[:n]))
}

// S2: Rock Ridge NM names are reported by Readdir and resolvable by Open.
func TestScenarioRockRidge(t *testing.T) {
	tree := []fakedevice.File{
		{Name: "LONGNM01.TXT;1", RockRidge: "a-much-longer-name.txt", Data: []byte("rr content\n")},
	}
	m, _ := buildMount(t, tree)

	dir, err := m.Open("/", cdfs.O_DIRECTORY)
	require.NoError(t, err)
	defer dir.Close()

	entry, err := dir.Readdir()
	require.NoError(t, err)
	require.Equal(t, "a-much-longer-name.txt", entry.Name)

	f, err := m.Open("/a-much-longer-name.txt", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 32)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "rr content\n", string(buf[:n]))
}

// S3: a Joliet supplementary descriptor is preferred and its UCS-2BE
// names decode back to the original UTF-8 text, including non-ASCII.
func TestScenarioJoliet(t *testing.T) {
	tree := []fakedevice.File{
		{Name: "CAFE.TXT;1", Joliet: "café.txt", Data: []byte("joliet content\n")},
	}
	m, _ := buildMount(t, tree, fakedevice.WithJoliet(3))

	dir, err := m.Open("/", cdfs.O_DIRECTORY)
	require.NoError(t, err)
	defer dir.Close()

	entry, err := dir.Readdir()
	require.NoError(t, err)
	require.Equal(t, "café.txt", entry.Name)

	f, err := m.Open("/café.txt", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 32)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "joliet content\n", string(buf[:n]))
}

// S4/S5: reading a large file drives the streaming path, and a seek away
// from the current position aborts the stream rather than feeding stale
// data on the next read.
func TestScenarioStreamingAndSeekAborts(t *testing.T) {
	big := make([]byte, 6*2048+100)
	for i := range big {
		big[i] = byte(i % 251)
	}
	tree := []fakedevice.File{{Name: "BIG.BIN;1", Data: big}}
	m, _ := buildMount(t, tree)

	f, err := m.Open("/BIG.BIN", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	out := make([]byte, 0, len(big))
	buf := make([]byte, 512)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == io.EOF || n == 0 {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, big, out)

	// Property 6: seeking back to 0 and reading again reproduces the
	// same bytes, proving a seek does not leave the handle wedged on a
	// now-invalid stream.
	pos, err := f.Seek(0, cdfs.SeekSet)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	again := make([]byte, len(big))
	total := 0
	for total < len(again) {
		n, err := f.Read(again[total:])
		total += n
		if err != nil {
			require.NoError(t, err)
		}
		if n == 0 {
			break
		}
	}
	require.Equal(t, big, again[:total])
}

// S6: an eject followed by a status tick poisons every open handle, and
// the next Open against a freshly inserted disc succeeds again.
func TestScenarioDiscChangePoisonsHandles(t *testing.T) {
	tree := isoOnlyTree()
	m, dev := buildMount(t, tree)

	f, err := m.Open("/README.TXT", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	dev.SetEjected(true)
	m.VBlank()

	buf := make([]byte, 64)
	_, err = f.Read(buf)
	require.ErrorIs(t, err, cdfs.ErrBadHandle)

	img2, err := fakedevice.Build(tree)
	require.NoError(t, err)
	dev.ReplaceImage(img2)

	f2, err := m.Open("/README.TXT", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f2.Close()

	n, err := f2.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello from the root\n", string(buf[:n]))
}

// Property 4: resolution is case-insensitive on the ISO name.
func TestResolveIsCaseInsensitive(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	f, err := m.Open("/readme.txt", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()
}

// Property 9: Readdir skips "." and ".." and RewindDir restarts the
// enumeration from the first real entry.
func TestReaddirSkipsDotEntriesAndRewinds(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	dir, err := m.Open("/", cdfs.O_DIRECTORY)
	require.NoError(t, err)
	defer dir.Close()

	var names []string
	for {
		e, err := dir.Readdir()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, e.Name)
	}
	require.NotContains(t, names, ".")
	require.NotContains(t, names, "..")
	require.Contains(t, names, "docs")

	require.NoError(t, dir.RewindDir())
	first, err := dir.Readdir()
	require.NoError(t, err)
	require.Equal(t, names[0], first.Name)
}

// Stat on a directory reports the directory flag and the
// directory-sentinel size, and on a file the file's byte size, matching
// spec §6's stat fields.
func TestStat(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	root, err := m.Stat("/")
	require.NoError(t, err)
	require.True(t, root.IsDir)
	require.EqualValues(t, -1, root.Size)

	file, err := m.Stat("/README.TXT")
	require.NoError(t, err)
	require.False(t, file.IsDir)
	require.EqualValues(t, len("hello from the root\n"), file.Size)
}

// Ioctl reports the DMA alignment granularity and whether pos satisfies
// it for a handle that holds no stream.
func TestIoctlDMAAlignment(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	f, err := m.Open("/README.TXT", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	granularity, aligned, err := f.Ioctl(cdfs.IoctlDMAAlignment)
	require.NoError(t, err)
	require.Equal(t, 2048, granularity)
	require.True(t, aligned)
}

// Fcntl F_GETFL reports O_DIRECTORY for a directory handle and plain
// O_RDONLY for a file handle.
func TestFcntlGetFlDirectoryBit(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	dir, err := m.Open("/DOCS", cdfs.O_DIRECTORY)
	require.NoError(t, err)
	defer dir.Close()

	flags, err := dir.Fcntl(cdfs.F_GETFL, 0)
	require.NoError(t, err)
	require.NotZero(t, flags&int(cdfs.O_DIRECTORY))

	file, err := m.Open("/README.TXT", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer file.Close()

	flags, err = file.Fcntl(cdfs.F_GETFL, 0)
	require.NoError(t, err)
	require.Zero(t, flags&int(cdfs.O_DIRECTORY))
}

// Opening in a write mode is always rejected; the filesystem is
// read-only end to end.
func TestOpenRejectsWriteModes(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	_, err := m.Open("/README.TXT", cdfs.O_WRONLY)
	require.ErrorIs(t, err, cdfs.ErrReadOnly)

	_, err = m.Open("/README.TXT", cdfs.O_RDWR)
	require.ErrorIs(t, err, cdfs.ErrReadOnly)
}

// Seeking past end-of-file clamps to the file's size rather than erroring.
func TestSeekClampsPastEnd(t *testing.T) {
	m, _ := buildMount(t, isoOnlyTree())

	f, err := m.Open("/README.TXT", cdfs.O_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	total, err := f.Total()
	require.NoError(t, err)

	pos, err := f.Seek(total+1000, cdfs.SeekSet)
	require.NoError(t, err)
	require.Equal(t, total, pos)

	_, err = f.Seek(-1, cdfs.SeekSet)
	require.ErrorIs(t, err, cdfs.ErrInvalid)
}

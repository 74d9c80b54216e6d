package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgrewell/iso9660cd/pkg/encoding"
)

// rawEntry builds a minimal on-disc directory record for name with
// the given system-use bytes appended after the (possibly padded) name.
func rawEntry(name string, flags uint8, sysUse []byte) []byte {
	nameLen := len(name)
	length := 33 + nameLen
	if nameLen%2 == 0 {
		length++
	}
	length += len(sysUse)

	rec := make([]byte, length)
	rec[0] = byte(length)
	encLE := func(v uint32) []byte {
		b := make([]byte, 4)
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
		b[3] = byte(v >> 24)
		return b
	}
	copy(rec[2:6], encLE(100))
	copy(rec[6:10], encLE(100))
	copy(rec[10:14], encLE(2048))
	copy(rec[14:18], encLE(2048))
	rec[25] = flags
	rec[32] = byte(nameLen)
	copy(rec[33:33+nameLen], name)

	off := 33 + nameLen
	if nameLen%2 == 0 {
		off++
	}
	copy(rec[off:], sysUse)
	return rec
}

func TestParseEntryDecodesFields(t *testing.T) {
	sector := make([]byte, 2048)
	rec := rawEntry("FILE.TXT;1", 0x00, nil)
	copy(sector, rec)

	e, ok, err := ParseEntry(sector, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(100), e.Extent)
	assert.Equal(t, uint32(2048), e.Size)
	assert.False(t, e.IsDirectory())
	assert.Equal(t, "FILE.TXT;1", string(e.Name))
}

func TestParseEntryZeroLengthMeansNoMoreEntries(t *testing.T) {
	sector := make([]byte, 2048)
	_, ok, err := ParseEntry(sector, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseEntryOverrunIsError(t *testing.T) {
	sector := make([]byte, 40)
	sector[0] = 200
	_, _, err := ParseEntry(sector, 0)
	require.Error(t, err)
}

func TestParseEntryDirectoryFlag(t *testing.T) {
	sector := make([]byte, 2048)
	rec := rawEntry("SUBDIR", 0x02, nil)
	copy(sector, rec)
	e, ok, err := ParseEntry(sector, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.IsDirectory())
	assert.True(t, e.MatchesKind(true))
	assert.False(t, e.MatchesKind(false))
}

func TestCompareISONameTrailingDotAndVersion(t *testing.T) {
	assert.True(t, compareISOName([]byte("FILE.TXT;1"), "FILE.TXT"))
	assert.True(t, compareISOName([]byte("FILE.TXT;1"), "file.txt"))
	assert.True(t, compareISOName([]byte("NODOT;1"), "NODOT"))
	assert.True(t, compareISOName([]byte("NODOT.;1"), "NODOT"))
	assert.False(t, compareISOName([]byte("FILE.TXT;1"), "FILE.TXX"))
	assert.True(t, compareISOName([]byte("DIR"), "DIR/child"))
	assert.False(t, compareISOName([]byte("DIR"), "DIRECTORY"))
}

func TestCompareRockRidgeNameExactLength(t *testing.T) {
	assert.True(t, compareRockRidgeName("Mixed Case.txt", "Mixed Case.txt"))
	assert.True(t, compareRockRidgeName("Mixed Case.txt", "MIXED CASE.TXT/rest"))
	assert.False(t, compareRockRidgeName("Mixed Case.txt", "Mixed Case"))
}

func TestMatchNonJolietPrefersRockRidge(t *testing.T) {
	nm := append([]byte{'N', 'M', byte(5 + len("long name.txt")), 1, 0}, []byte("long name.txt")...)
	e := Entry{Name: []byte("LONGNAM.TXT;1"), SystemUse: nm}
	assert.True(t, e.MatchNonJoliet("long name.txt"))
	assert.False(t, e.MatchNonJoliet("LONGNAM.TXT"))
}

func TestMatchJolietStopsAtVersionSeparator(t *testing.T) {
	raw, err := encoding.EncodeJoliet("file.txt")
	require.NoError(t, err)
	raw = append(raw, 0x00, ';', 0x00, '1')

	e := Entry{Name: raw}
	query, err := encoding.EncodeJoliet("file.txt")
	require.NoError(t, err)
	assert.True(t, e.MatchJoliet(query))
}

func TestMatchJolietRequiresSeparatorTail(t *testing.T) {
	raw, err := encoding.EncodeJoliet("dir")
	require.NoError(t, err)
	e := Entry{Name: raw}

	withSep, err := encoding.EncodeJoliet("dir/child")
	require.NoError(t, err)
	assert.True(t, e.MatchJoliet(withSep))

	noSep, err := encoding.EncodeJoliet("directory")
	require.NoError(t, err)
	assert.False(t, e.MatchJoliet(noSep))
}

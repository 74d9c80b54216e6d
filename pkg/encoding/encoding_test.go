package encoding

import (
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalInt32LSBMSB_Positive(t *testing.T) {
	var buf [8]byte
	value := int32(12345678)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(value))
	binary.BigEndian.PutUint32(buf[4:8], uint32(value))

	result, err := UnmarshalInt32LSBMSB(buf[:])
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestUnmarshalInt32LSBMSB_Negative(t *testing.T) {
	_, err := UnmarshalInt32LSBMSB([]byte{0, 1, 2, 3, 4, 5, 6})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], 100)
	binary.BigEndian.PutUint32(buf[4:8], 101)
	_, err = UnmarshalInt32LSBMSB(buf[:])
	assert.Error(t, err)
}

func TestUnmarshalUint32LSBMSB(t *testing.T) {
	var buf [8]byte
	value := uint32(98765432)
	binary.LittleEndian.PutUint32(buf[0:4], value)
	binary.BigEndian.PutUint32(buf[4:8], value)

	result, err := UnmarshalUint32LSBMSB(buf[:])
	require.NoError(t, err)
	assert.Equal(t, value, result)
}

func TestLittleHalf32IgnoresBigEndianHalf(t *testing.T) {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], 4096)
	binary.BigEndian.PutUint32(buf[4:8], 0) // deliberately wrong / corrupt

	assert.Equal(t, uint32(4096), LittleHalf32(buf[:]))
}

func TestDecodeDirectoryTime_Positive(t *testing.T) {
	data := []byte{120, 5, 15, 12, 34, 56, 0}
	result, err := DecodeDirectoryTime(data)
	require.NoError(t, err)

	assert.Equal(t, 2020, result.Year())
	assert.Equal(t, 5, int(result.Month()))
	assert.Equal(t, 15, result.Day())
	assert.Equal(t, 12, result.Hour())
	assert.Equal(t, 34, result.Minute())
	assert.Equal(t, 56, result.Second())

	_, offsetSeconds := result.Zone()
	assert.Equal(t, 0, offsetSeconds)
}

func TestDecodeDirectoryTime_Negative(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		errMsg string
	}{
		{"Insufficient length", []byte{120, 5, 15, 12, 34, 56}, "invalid data length"},
		{"Invalid month", []byte{120, 0, 15, 12, 34, 56, 0}, "invalid month"},
		{"Invalid day", []byte{120, 5, 0, 12, 34, 56, 0}, "invalid day"},
		{"Invalid hour", []byte{120, 5, 15, 24, 34, 56, 0}, "invalid hour"},
		{"Invalid minute", []byte{120, 5, 15, 12, 60, 56, 0}, "invalid minute"},
		{"Invalid second", []byte{120, 5, 15, 12, 34, 60, 0}, "invalid second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDirectoryTime(tt.data)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errMsg))
		})
	}
}

func TestJolietRoundTrip(t *testing.T) {
	encoded, err := EncodeJoliet("readme.txt")
	require.NoError(t, err)

	decoded, err := DecodeJolietName(encoded)
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", decoded)
}

func TestDecodeJolietNameStopsAtVersionSeparator(t *testing.T) {
	encoded, err := EncodeJoliet("readme.txt;1")
	require.NoError(t, err)

	decoded, err := DecodeJolietName(encoded)
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", decoded)
}

func TestJolietCharEqualFoldsOnlyLowByte(t *testing.T) {
	assert.True(t, JolietCharEqual([2]byte{0x00, 'A'}, [2]byte{0x00, 'a'}))
	assert.False(t, JolietCharEqual([2]byte{0x03, 0x00}, [2]byte{0x00, 0x00}))
}

func TestASCIIEqualFold(t *testing.T) {
	assert.True(t, ASCIIEqualFold('A', 'a'))
	assert.False(t, ASCIIEqualFold('A', 'b'))
}

// Package encoding decodes the on-disc numeric and text formats used by an
// ISO 9660 volume: both-byte-order integers (ECMA-119 7.2.3/7.3.3),
// directory-entry timestamps, and the two competing name encodings a disc
// may carry (8.3 ISO names and Joliet UCS-2BE names).
package encoding

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// UnmarshalInt32LSBMSB decodes a 32-bit integer recorded in both byte
// orders, as defined in ECMA-119 7.3.3, and errors if the two halves
// disagree. The driver's own directory and descriptor parsing does not
// call it; it reads those fields with LittleHalf32.
func UnmarshalInt32LSBMSB(data []byte) (int32, error) {
	if len(data) < 8 {
		return 0, io.ErrUnexpectedEOF
	}

	lsb := int32(binary.LittleEndian.Uint32(data[0:4]))
	msb := int32(binary.BigEndian.Uint32(data[4:8]))

	if lsb != msb {
		return 0, fmt.Errorf("little-endian and big-endian value mismatch: %d != %d", lsb, msb)
	}

	return lsb, nil
}

// UnmarshalUint32LSBMSB is the same as UnmarshalInt32LSBMSB but returns an
// unsigned integer.
func UnmarshalUint32LSBMSB(data []byte) (uint32, error) {
	n, err := UnmarshalInt32LSBMSB(data)
	return uint32(n), err
}

// LittleHalf32 reads only the little-endian half of a both-byte-order
// 32-bit field, without validating the big-endian half. Directory-entry
// extent and size fields are read this way: a burner that got the
// big-endian half wrong should not make an otherwise-readable file
// unreadable.
func LittleHalf32(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[0:4])
}

// DecodeDirectoryTime converts a 7-byte directory-record date field into a
// Go time.Time.
func DecodeDirectoryTime(data []byte) (time.Time, error) {
	if len(data) != 7 {
		return time.Time{}, fmt.Errorf("invalid data length: expected 7 bytes, got %d", len(data))
	}

	year := int(data[0]) + 1900
	month := time.Month(data[1])
	day := int(data[2])
	hour := int(data[3])
	minute := int(data[4])
	second := int(data[5])
	offset := int8(data[6])

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid month: %d", month)
	}
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("invalid day: %d", day)
	}
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("invalid hour: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute: %d", minute)
	}
	if second < 0 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid second: %d", second)
	}

	offsetMinutes := int(offset) * 15
	location := time.FixedZone("ISO9660", offsetMinutes*60)
	return time.Date(year, month, day, hour, minute, second, 0, location), nil
}

// jolietCodec is shared by EncodeJoliet/DecodeJolietName; UCS-2BE with no
// byte-order mark, matching what the Joliet supplement actually puts on
// disc.
var jolietCodec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// EncodeJoliet converts a UTF-8 string (typically one path component
// supplied by a caller) into UCS-2BE, the same encoding Joliet directory
// entries use. Used once per lookup, before walking a Joliet directory,
// so the comparison inside the walk is a plain byte compare.
func EncodeJoliet(s string) ([]byte, error) {
	encoder := jolietCodec.NewEncoder()
	out, err := encoder.Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding joliet name %q: %w", s, err)
	}
	return out, nil
}

// DecodeJolietName converts a directory entry's raw UCS-2BE name bytes to
// UTF-8, stopping at a UCS-2 ';' (the version separator) as well as at the
// end of the supplied bytes. This mirrors ucs2utfn's early termination on
// ';', which the straight x/text decode does not do on its own.
func DecodeJolietName(raw []byte) (string, error) {
	truncated := raw
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0x00 && raw[i+1] == ';' {
			truncated = raw[:i]
			break
		}
	}

	decoder := jolietCodec.NewDecoder()
	out, err := decoder.Bytes(truncated)
	if err != nil {
		return "", fmt.Errorf("decoding joliet name: %w", err)
	}
	return string(out), nil
}

// JolietCharEqual compares one UCS-2BE code unit pair case-insensitively,
// folding only the low byte with ASCII tolower as the original driver
// does. This is a deliberate simplification (no Unicode case folding) and
// must be preserved: Joliet names outside the ASCII range are compared
// byte-for-byte on the high byte and folded only on the low byte.
func JolietCharEqual(a, b [2]byte) bool {
	if a[0] != b[0] {
		return false
	}
	return asciiToLower(a[1]) == asciiToLower(b[1])
}

// asciiToLower folds a single byte the way C's tolower(3) does for ASCII
// input, which is what the original driver relies on for all name
// comparisons (ISO, Rock Ridge, and the low byte of Joliet code units).
func asciiToLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}

// ASCIIEqualFold reports whether a and b are equal under ASCII
// case-folding only.
func ASCIIEqualFold(a, b byte) bool {
	return asciiToLower(a) == asciiToLower(b)
}

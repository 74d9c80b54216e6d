// Package directory decodes the on-disc ISO 9660 directory entry (ECMA-119
// 9.1) and implements the three name-matching rules the resolver needs:
// raw ISO 8.3+version names, Rock Ridge NM names, and Joliet UCS-2BE names.
package directory

import (
	"fmt"

	"github.com/bgrewell/iso9660cd/pkg/encoding"
	"github.com/bgrewell/iso9660cd/pkg/rockridge"
)

// dirFlagBit is the bit position of the "is a directory" flag within a
// directory entry's flags byte (ECMA-119 9.1.6).
const dirFlagBit = 0x02

// Entry is one decoded directory record. Name holds the raw on-disc name
// bytes: ASCII for ISO/Rock Ridge entries, UCS-2BE for Joliet entries. The
// resolver is responsible for interpreting Name according to which of
// those two naming schemes is active.
type Entry struct {
	Length  uint8
	Extent  uint32
	Size    uint32
	Flags   uint8
	NameLen uint8
	Name    []byte
	// SystemUse is the system-use area trailing the (possibly
	// pad-byte-extended) name field, where Rock Ridge records live.
	SystemUse []byte
}

// IsDirectory reports whether the entry's directory bit is set.
func (e Entry) IsDirectory() bool {
	return e.Flags&dirFlagBit != 0
}

// MatchesKind reports whether the entry's directory-ness agrees with
// wantDir, reproducing the original driver's `!((dir<<1) ^ flags)` parity
// check.
func (e Entry) MatchesKind(wantDir bool) bool {
	return e.IsDirectory() == wantDir
}

// ParseEntry decodes one directory entry at the given byte offset within
// a 2048-byte sector buffer. ok is false when length is zero, meaning "no
// more entries in this sector; skip to the next" (spec §3).
func ParseEntry(sector []byte, offset int) (entry Entry, ok bool, err error) {
	if offset >= len(sector) {
		return Entry{}, false, nil
	}

	length := sector[offset]
	if length == 0 {
		return Entry{}, false, nil
	}
	if offset+int(length) > len(sector) {
		return Entry{}, false, fmt.Errorf("directory: entry at offset %d (length %d) overruns sector", offset, length)
	}
	if length < 33 {
		return Entry{}, false, fmt.Errorf("directory: entry at offset %d has implausible length %d", offset, length)
	}

	rec := sector[offset : offset+int(length)]

	nameLen := rec[32]
	if 33+int(nameLen) > len(rec) {
		return Entry{}, false, fmt.Errorf("directory: entry name overruns its own record")
	}

	systemUseStart := 33 + int(nameLen)
	if nameLen%2 == 0 {
		systemUseStart++
	}
	var sysUse []byte
	if systemUseStart < len(rec) {
		sysUse = rec[systemUseStart:]
	}

	e := Entry{
		Length:    length,
		Extent:    encoding.LittleHalf32(rec[2:10]),
		Size:      encoding.LittleHalf32(rec[10:18]),
		Flags:     rec[25],
		NameLen:   nameLen,
		Name:      rec[33 : 33+int(nameLen)],
		SystemUse: sysUse,
	}
	return e, true, nil
}

// RockRidgeName returns the Rock Ridge alternate name recorded in the
// entry's system-use area, or "" if none is present.
func (e Entry) RockRidgeName() string {
	return rockridge.ScanNM(e.SystemUse)
}

// compareISOName implements fncompare: a case-insensitive match up to the
// first ';' (version separator) or a trailing '.' immediately preceding
// ';'/end-of-name, with the remainder of query required to be empty or
// begin with a path separator.
func compareISOName(isoName []byte, query string) bool {
	i := 0
	for ; i < len(isoName); i++ {
		c := isoName[i]
		if c == ';' {
			break
		}
		if c == '.' && (i == len(isoName)-1 || isoName[i+1] == ';') {
			break
		}
		if i >= len(query) {
			return false
		}
		if !encoding.ASCIIEqualFold(c, query[i]) {
			return false
		}
	}

	if i >= len(query) {
		return true
	}
	return query[i] == '/'
}

// compareRockRidgeName compares a Rock Ridge name against the query's
// leading path component (the substring up to the next '/' or the end of
// the string), case-insensitively, requiring an exact-length match.
func compareRockRidgeName(rrName, query string) bool {
	leaf := query
	if idx := indexByte(query, '/'); idx >= 0 {
		leaf = query[:idx]
	}
	if len(rrName) != len(leaf) {
		return false
	}
	for i := 0; i < len(rrName); i++ {
		if !encoding.ASCIIEqualFold(rrName[i], leaf[i]) {
			return false
		}
	}
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// MatchNonJoliet applies the non-Joliet matching rule: Rock Ridge NM wins
// if present, else fall back to the raw ISO name comparison.
func (e Entry) MatchNonJoliet(query string) bool {
	if rr := e.RockRidgeName(); rr != "" {
		return compareRockRidgeName(rr, query)
	}
	return compareISOName(e.Name, query)
}

// MatchJoliet applies the Joliet matching rule: the entry's UCS-2BE name
// is compared code-unit-by-code-unit, case-insensitively on the low byte
// only, against an already-UCS-2BE-encoded query, terminating at a UCS-2
// ';'. ucsQuery must be produced by encoding.EncodeJoliet once per lookup.
func (e Entry) MatchJoliet(ucsQuery []byte) bool {
	i := 0
	for i+1 < len(e.Name) {
		a := [2]byte{e.Name[i], e.Name[i+1]}
		if a[0] == 0x00 && a[1] == ';' {
			break
		}
		if i+1 >= len(ucsQuery) {
			return false
		}
		b := [2]byte{ucsQuery[i], ucsQuery[i+1]}
		if !encoding.JolietCharEqual(a, b) {
			return false
		}
		i += 2
	}

	if i >= len(ucsQuery) {
		return true
	}
	// The query must end here or continue with a path separator.
	if i+1 < len(ucsQuery) && ucsQuery[i] == 0x00 && ucsQuery[i+1] == '/' {
		return true
	}
	return false
}

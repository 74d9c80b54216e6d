// Package rockridge decodes the Rock Ridge "NM" alternate-name record from
// the system-use area that trails a directory entry's name field.
//
// Only the NM record is implemented: the driver's Non-goals exclude
// everything Rock Ridge offers beyond the standard reporting of "." and
// ".." (POSIX permissions, device nodes, symlinks, relocated directories),
// so PX/SL/CL/PL/RE/TF are out of scope here.
package rockridge

const (
	// signatureNM is the two-byte system-use entry signature for an
	// alternate-name record.
	signatureNM = "NM"

	// minNMLength is the smallest legal NM record: signature(2) + length(1)
	// + version(1) + flags(1), with zero bytes of name content.
	minNMLength = 5
)

// NameEntry is one decoded Rock Ridge NM record.
//
// Offset 0-1: Signature Word - "NM"
// Offset 2:   Length (LEN_NM) - shall be 5 plus the length of the name content.
// Offset 3:   System Use Entry Version - shall be 1 (the driver also accepts 2).
// Offset 4:   Flags - bit 0 continuation, bit 1 current dir, bit 2 parent dir.
// Offset 5-LEN_NM: Name Content.
type NameEntry struct {
	Continue bool
	Current  bool
	Parent   bool
	Name     string
}

// unmarshalNameEntry decodes one NM record. data starts at the record's
// system-use-entry-version byte (offset 3 of the record), matching the
// layout ScanNM walks.
func unmarshalNameEntry(length uint8, data []byte) NameEntry {
	flags := data[1]
	nameLen := int(length) - minNMLength
	var name string
	if nameLen > 0 && len(data) >= 2+nameLen {
		name = string(data[2 : 2+nameLen])
	}
	return NameEntry{
		Continue: flags&0x01 != 0,
		Current:  flags&0x02 != 0,
		Parent:   flags&0x04 != 0,
		Name:     name,
	}
}

// ScanNM walks the system-use area of a directory entry looking for NM
// records, starting at sysUse (the bytes immediately following the name
// field's even-padding byte, if any). It returns the name carried by the
// last NM record seen, or "" if none was found.
//
// The scan deliberately does not try to reassemble a Continue-flagged NM
// chain into one logical name: the last full NM entry encountered wins,
// exactly as the source this is ported from does. NM continuation records
// are a real part of the RRIP spec, but preserving last-wins-not-concat
// behavior is required for compatibility (see spec design notes).
func ScanNM(sysUse []byte) string {
	name := ""
	remaining := len(sysUse)
	offset := 0

	for remaining >= 4 {
		version := sysUse[offset+3]
		if version != 1 && version != 2 {
			break
		}

		length := sysUse[offset+2]
		if length < 4 || int(length) > remaining {
			break
		}

		if string(sysUse[offset:offset+2]) == signatureNM && int(length) >= minNMLength {
			entry := unmarshalNameEntry(length, sysUse[offset+3:offset+int(length)])
			name = entry.Name
		}

		offset += int(length)
		remaining -= int(length)
	}

	return name
}

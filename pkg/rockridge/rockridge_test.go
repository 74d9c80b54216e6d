package rockridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// nmRecord builds a raw NM system-use entry for the given name.
func nmRecord(name string) []byte {
	length := byte(minNMLength + len(name))
	rec := []byte{'N', 'M', length, 1, 0}
	rec = append(rec, []byte(name)...)
	return rec
}

func TestScanNMFindsSingleRecord(t *testing.T) {
	sysUse := nmRecord("Mixed Case.txt")
	assert.Equal(t, "Mixed Case.txt", ScanNM(sysUse))
}

func TestScanNMLastRecordWins(t *testing.T) {
	var sysUse []byte
	sysUse = append(sysUse, nmRecord("first.txt")...)
	sysUse = append(sysUse, nmRecord("second.txt")...)

	assert.Equal(t, "second.txt", ScanNM(sysUse))
}

func TestScanNMIgnoresTrailingGarbage(t *testing.T) {
	sysUse := nmRecord("onlyname.txt")
	sysUse = append(sysUse, 0x00, 0x00, 0x00) // < 4 bytes remaining, must stop cleanly
	assert.Equal(t, "onlyname.txt", ScanNM(sysUse))
}

func TestScanNMNoRecordsReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", ScanNM(nil))
	assert.Equal(t, "", ScanNM([]byte{1, 2, 3}))
}

func TestScanNMStopsOnBadVersion(t *testing.T) {
	rec := nmRecord("bad.txt")
	rec[3] = 9 // invalid version byte
	assert.Equal(t, "", ScanNM(rec))
}

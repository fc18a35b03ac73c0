package wal

// ============================================================================
// Checksums
// Responsibility: Compute and verify the CRC32 of journal events
// ============================================================================

import (
	"hash/crc32"
	"strconv"
	"strings"
)

// CalculateChecksum computes the CRC32-IEEE of every field except Checksum.
// Fields are joined with a separator that cannot appear in the integers, so
// moving text between adjacent string fields changes the sum.
func CalculateChecksum(event Event) uint32 {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(event.Seq, 10))
	for _, part := range []string{
		string(event.Type),
		event.ExecutionID,
		event.State,
		event.Stage,
		strconv.Itoa(event.Iteration),
		event.Detail,
		strconv.FormatInt(event.Timestamp, 10),
	} {
		b.WriteByte(0x1f)
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return crc32.ChecksumIEEE([]byte(b.String()))
}

// VerifyChecksum reports whether event's stored checksum matches its content
func VerifyChecksum(event Event) bool {
	return event.Checksum == CalculateChecksum(event)
}

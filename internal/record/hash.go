package record

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainRecord is the domain prefix for record checksums.
// The version suffix enables future algorithm migration.
const DomainRecord = "shelfsync/record/v1"

// Checksum computes the deterministic digest of a record's normalized
// value fields. Format: SHA256(domain + 0x00 + canonicalJSON).
// The null byte separator prevents domain/data boundary ambiguity.
//
// The transform-time timestamp must never appear in fields: it changes
// every cycle and would mark every record as modified.
func Checksum(fields map[string]string) string {
	h := sha256.New()
	h.Write([]byte(DomainRecord))
	h.Write([]byte{0x00})
	h.Write(MarshalCanonical(fields))
	return hex.EncodeToString(h.Sum(nil))
}

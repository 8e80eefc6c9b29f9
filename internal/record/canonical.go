package record

import (
	"bytes"
	"encoding/json"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON form of a record's value
// fields for checksum computation. This is the ONLY serialization that
// may feed the checksum.
//
// Canonical form:
//  1. Object keys sorted bytewise
//  2. String values NFC normalized
//  3. No HTML escaping (< > & are NOT escaped)
//
// The result is independent of map iteration order, so permuting field
// order before serialization yields identical bytes.
func MarshalCanonical(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(canonicalString(k))
		buf.WriteByte(':')
		buf.Write(canonicalString(fields[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// canonicalString encodes one JSON string with NFC normalization and
// HTML escaping disabled.
func canonicalString(s string) []byte {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		// Encoding a string value cannot fail.
		panic(err)
	}

	// json.Encoder adds a trailing newline, remove it.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out
}

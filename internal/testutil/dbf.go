package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DBFColumn describes one column of a fixture table.
type DBFColumn struct {
	Name   string
	Type   byte // 'C', 'N', 'L', 'D', 'M', 'I'
	Length int
}

// DBFRow is one fixture record. Values must already be in the table's
// character encoding; the encoder pads or truncates them to the column
// width ('C' left-justified, everything else right-justified).
type DBFRow struct {
	Deleted bool
	Flag    byte // overrides the deletion flag byte when non-zero
	Values  []string
}

// EncodeDBF builds a dBase III table image from columns and rows.
// Panics on inconsistent fixtures; it is for tests only.
func EncodeDBF(cols []DBFColumn, rows []DBFRow) []byte {
	recordLen := 1
	for _, c := range cols {
		if len(c.Name) > 10 {
			panic(fmt.Sprintf("column name too long: %s", c.Name))
		}
		recordLen += c.Length
	}
	headerLen := 32 + 32*len(cols) + 1

	var buf bytes.Buffer

	header := make([]byte, 32)
	header[0] = 0x03 // dBase III, no memo file
	header[1], header[2], header[3] = 26, 8, 21
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(rows)))
	binary.LittleEndian.PutUint16(header[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(header[10:12], uint16(recordLen))
	buf.Write(header)

	for _, c := range cols {
		desc := make([]byte, 32)
		copy(desc[:11], c.Name)
		desc[11] = c.Type
		desc[16] = byte(c.Length)
		buf.Write(desc)
	}
	buf.WriteByte(0x0D)

	for _, r := range rows {
		if len(r.Values) != len(cols) {
			panic(fmt.Sprintf("row has %d values, want %d", len(r.Values), len(cols)))
		}
		flag := byte(0x20)
		if r.Deleted {
			flag = 0x2A
		}
		if r.Flag != 0 {
			flag = r.Flag
		}
		buf.WriteByte(flag)
		for i, c := range cols {
			buf.Write(padField(r.Values[i], c))
		}
	}
	buf.WriteByte(0x1A)

	return buf.Bytes()
}

func padField(v string, c DBFColumn) []byte {
	b := []byte(v)
	if len(b) > c.Length {
		return b[:c.Length]
	}
	out := bytes.Repeat([]byte{' '}, c.Length)
	if c.Type == 'C' {
		copy(out, b)
	} else {
		copy(out[c.Length-len(b):], b)
	}
	return out
}

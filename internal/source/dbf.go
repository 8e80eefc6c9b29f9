package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DBF structural constants.
const (
	dbfHeaderSize     = 32
	dbfDescriptorSize = 32
	dbfDescriptorEnd  = 0x0D
	dbfEOF            = 0x1A
	dbfFlagActive     = 0x20
	dbfFlagDeleted    = 0x2A
)

// dbfField is one parsed field descriptor.
type dbfField struct {
	name   string
	typ    byte
	length int
}

// DBFDecoder decodes dBase III / FoxPro snapshot tables. It opens the
// table read-only and never resolves memo files, so it cannot modify
// anything on disk.
//
// Character data decodes through the configured code page; point-of-sale
// exports almost universally use cp1252 or one of its cousins.
type DBFDecoder struct {
	enc encoding.Encoding
}

// NewDBFDecoder builds a decoder with the given character encoding.
// A nil encoding defaults to Windows-1252.
func NewDBFDecoder(enc encoding.Encoding) *DBFDecoder {
	if enc == nil {
		enc = charmap.Windows1252
	}
	return &DBFDecoder{enc: enc}
}

// Decode implements Decoder. Deleted rows are skipped silently; rows
// with an unrecognized deletion flag and truncated trailing records are
// skipped and counted as parse errors.
func (d *DBFDecoder) Decode(ctx context.Context, path string, fn func(RawRecord) error) (DecodeStats, error) {
	var stats DecodeStats

	f, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer f.Close()

	br := bufio.NewReader(f)

	header := make([]byte, dbfHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return stats, fmt.Errorf("table header truncated: %w", err)
	}

	recordCount := int(binary.LittleEndian.Uint32(header[4:8]))
	headerLen := int(binary.LittleEndian.Uint16(header[8:10]))
	recordLen := int(binary.LittleEndian.Uint16(header[10:12]))

	if headerLen < dbfHeaderSize+dbfDescriptorSize+1 {
		return stats, fmt.Errorf("implausible header length %d", headerLen)
	}
	if recordLen < 1 {
		return stats, fmt.Errorf("implausible record length %d", recordLen)
	}

	fields, descBytes, err := d.readDescriptors(br, headerLen)
	if err != nil {
		return stats, err
	}

	width := 1
	for _, fd := range fields {
		width += fd.length
	}
	if width > recordLen {
		return stats, fmt.Errorf("field widths (%d) exceed record length (%d)", width, recordLen)
	}

	// Skip any remaining header bytes (FoxPro backlink area etc).
	if skip := headerLen - dbfHeaderSize - descBytes; skip > 0 {
		if _, err := io.CopyN(io.Discard, br, int64(skip)); err != nil {
			return stats, fmt.Errorf("table header truncated: %w", err)
		}
	}

	decoder := d.enc.NewDecoder()
	buf := make([]byte, recordLen)

	for i := 0; i < recordCount; i++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if _, err := io.ReadFull(br, buf); err != nil {
			// Header promised more records than the file holds.
			stats.ParseErrors++
			return stats, nil
		}

		switch buf[0] {
		case dbfFlagDeleted:
			continue
		case dbfEOF:
			// Early end-of-file marker: remaining records are gone.
			stats.ParseErrors++
			return stats, nil
		case dbfFlagActive:
		default:
			stats.ParseErrors++
			continue
		}

		values := make(map[string]string, len(fields))
		off := 1
		for _, fd := range fields {
			values[fd.name] = decodeValue(decoder, fd, buf[off:off+fd.length])
			off += fd.length
		}

		stats.Rows++
		if err := fn(RawRecord{Row: int64(i + 1), Values: values}); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// readDescriptors parses field descriptors up to the 0x0D terminator.
// Returns the fields and the number of descriptor-area bytes consumed
// (terminator included).
func (d *DBFDecoder) readDescriptors(br *bufio.Reader, headerLen int) ([]dbfField, int, error) {
	maxFields := (headerLen - dbfHeaderSize - 1) / dbfDescriptorSize

	var fields []dbfField
	consumed := 0
	desc := make([]byte, dbfDescriptorSize)

	for {
		first, err := br.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("field descriptors truncated: %w", err)
		}
		consumed++
		if first == dbfDescriptorEnd {
			break
		}
		if len(fields) >= maxFields {
			return nil, 0, fmt.Errorf("field descriptors overrun header length %d", headerLen)
		}

		desc[0] = first
		if _, err := io.ReadFull(br, desc[1:]); err != nil {
			return nil, 0, fmt.Errorf("field descriptors truncated: %w", err)
		}
		consumed += dbfDescriptorSize - 1

		name := desc[:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		fields = append(fields, dbfField{
			name:   strings.TrimSpace(string(name)),
			typ:    desc[11],
			length: int(desc[16]),
		})
	}

	if len(fields) == 0 {
		return nil, 0, fmt.Errorf("table has no fields")
	}
	return fields, consumed, nil
}

// decodeValue renders one fixed-width field slot as trimmed text.
func decodeValue(decoder *encoding.Decoder, fd dbfField, raw []byte) string {
	switch fd.typ {
	case 'M':
		// Memo block references are not resolved.
		return ""
	case 'I':
		if len(raw) == 4 {
			return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(raw))), 10)
		}
	case 'L':
		switch {
		case len(raw) == 0:
			return ""
		case raw[0] == 'Y' || raw[0] == 'y' || raw[0] == 'T' || raw[0] == 't':
			return "T"
		case raw[0] == 'N' || raw[0] == 'n' || raw[0] == 'F' || raw[0] == 'f':
			return "F"
		default:
			return ""
		}
	}

	text, err := decoder.Bytes(raw)
	if err != nil {
		text = raw
	}
	return strings.Trim(string(text), " \x00")
}

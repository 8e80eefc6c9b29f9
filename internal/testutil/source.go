package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/shelfsync/internal/source"
)

// MemDecoder is an in-memory source.Decoder. Rows are keyed by snapshot
// path and delivered in slice order with 1-based row numbers.
type MemDecoder struct {
	mu sync.Mutex

	// Tables maps snapshot path to its rows.
	Tables map[string][]map[string]string

	// ParseErrors maps snapshot path to the number of malformed rows
	// to report for it.
	ParseErrors map[string]int

	// Fail maps snapshot path to an error every Decode of it returns.
	Fail map[string]error

	// Err, when set, fails every Decode call regardless of path.
	Err error

	// Delay, when positive, is slept at the start of every Decode to
	// simulate a slow read.
	Delay time.Duration
}

// NewMemDecoder creates an empty decoder.
func NewMemDecoder() *MemDecoder {
	return &MemDecoder{
		Tables:      map[string][]map[string]string{},
		ParseErrors: map[string]int{},
		Fail:        map[string]error{},
	}
}

// SetTable replaces the rows for a snapshot path.
func (d *MemDecoder) SetTable(path string, rows []map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Tables[path] = rows
}

// SetFail makes every Decode of path return err. A nil err clears it.
func (d *MemDecoder) SetFail(path string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.Fail, path)
		return
	}
	d.Fail[path] = err
}

// Decode implements source.Decoder.
func (d *MemDecoder) Decode(ctx context.Context, path string, fn func(source.RawRecord) error) (source.DecodeStats, error) {
	d.mu.Lock()
	rows := d.Tables[path]
	parseErrs := d.ParseErrors[path]
	err := d.Err
	if err == nil {
		err = d.Fail[path]
	}
	delay := d.Delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	stats := source.DecodeStats{ParseErrors: parseErrs}
	if err != nil {
		return stats, err
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		values := make(map[string]string, len(row))
		for k, v := range row {
			values[k] = v
		}
		stats.Rows++
		if err := fn(source.RawRecord{Row: int64(i + 1), Values: values}); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

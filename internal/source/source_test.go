package source_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfsync/internal/backoff"
	"github.com/roach88/shelfsync/internal/source"
	"github.com/roach88/shelfsync/internal/testutil"
)

func fastReaderOptions() source.ReaderOptions {
	return source.ReaderOptions{
		Backoff:     backoff.Policy{MaxRetries: 2, Delay: time.Millisecond},
		LockTimeout: 5 * time.Millisecond,
		LockPoll:    time.Millisecond,
	}
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))
	return path
}

func TestReaderDeliversRecords(t *testing.T) {
	path := touch(t, "stock.dbf")
	dec := testutil.NewMemDecoder()
	dec.SetTable(path, []map[string]string{
		{"PART_NO": "A-100", "PRICE": "19.90"},
		{"PART_NO": "B-200", "PRICE": "5.00"},
	})

	r := source.NewReader(dec, fastReaderOptions())

	var keys []string
	stats, err := r.Read(context.Background(), path, func(rec source.RawRecord) error {
		keys = append(keys, rec.Values["PART_NO"])
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, []string{"A-100", "B-200"}, keys)
}

func TestReaderRestartsPerCall(t *testing.T) {
	path := touch(t, "stock.dbf")
	dec := testutil.NewMemDecoder()
	dec.SetTable(path, []map[string]string{{"PART_NO": "A-100"}})

	r := source.NewReader(dec, fastReaderOptions())

	for i := 0; i < 2; i++ {
		var rows []int64
		_, err := r.Read(context.Background(), path, func(rec source.RawRecord) error {
			rows = append(rows, rec.Row)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, rows)
	}
}

func TestReaderMissingSnapshot(t *testing.T) {
	r := source.NewReader(testutil.NewMemDecoder(), fastReaderOptions())

	_, err := r.Read(context.Background(), filepath.Join(t.TempDir(), "absent.dbf"), func(source.RawRecord) error {
		return nil
	})

	require.Error(t, err)
	assert.True(t, source.IsUnavailable(err))

	var unavailable *source.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 1, unavailable.Attempts)
}

func TestReaderDecodeFailureIsUnavailable(t *testing.T) {
	path := touch(t, "stock.dbf")
	dec := testutil.NewMemDecoder()
	dec.Err = errors.New("corrupt table")

	r := source.NewReader(dec, fastReaderOptions())

	_, err := r.Read(context.Background(), path, func(source.RawRecord) error { return nil })

	require.Error(t, err)
	assert.True(t, source.IsUnavailable(err))
	assert.Contains(t, err.Error(), "corrupt table")
}

func TestIsUnavailable(t *testing.T) {
	assert.False(t, source.IsUnavailable(nil))
	assert.False(t, source.IsUnavailable(errors.New("other")))
	assert.True(t, source.IsUnavailable(&source.UnavailableError{Path: "x", Attempts: 1, Err: errors.New("y")}))
}

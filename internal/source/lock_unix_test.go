//go:build unix

package source_test

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfsync/internal/backoff"
	"github.com/roach88/shelfsync/internal/source"
	"github.com/roach88/shelfsync/internal/testutil"
)

// holdExclusive takes LOCK_EX on path through its own descriptor.
// flock treats descriptors independently, so the reader's shared lock
// attempt conflicts even within one process.
func holdExclusive(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	require.NoError(t, syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB))
	return f
}

func TestReaderExhaustsRetriesUnderLock(t *testing.T) {
	path := touch(t, "stock.dbf")
	dec := testutil.NewMemDecoder()
	dec.SetTable(path, []map[string]string{{"PART_NO": "A-100"}})

	holder := holdExclusive(t, path)
	defer holder.Close()

	r := source.NewReader(dec, source.ReaderOptions{
		Backoff:     backoff.Policy{MaxRetries: 2, Delay: time.Millisecond},
		LockTimeout: 5 * time.Millisecond,
		LockPoll:    time.Millisecond,
	})

	_, err := r.Read(context.Background(), path, func(source.RawRecord) error { return nil })

	require.Error(t, err)
	assert.True(t, source.IsUnavailable(err))
	assert.ErrorIs(t, err, source.ErrLocked)
}

func TestReaderConvergesWhenLockReleased(t *testing.T) {
	path := touch(t, "stock.dbf")
	dec := testutil.NewMemDecoder()
	dec.SetTable(path, []map[string]string{{"PART_NO": "A-100"}})

	holder := holdExclusive(t, path)
	go func() {
		time.Sleep(20 * time.Millisecond)
		holder.Close()
	}()

	r := source.NewReader(dec, source.ReaderOptions{
		Backoff:     backoff.Policy{MaxRetries: 5, Delay: 10 * time.Millisecond},
		LockTimeout: 50 * time.Millisecond,
		LockPoll:    2 * time.Millisecond,
	})

	stats, err := r.Read(context.Background(), path, func(source.RawRecord) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
}

func TestSharedLocksCoexist(t *testing.T) {
	path := touch(t, "stock.dbf")
	dec := testutil.NewMemDecoder()
	dec.SetTable(path, []map[string]string{{"PART_NO": "A-100"}})

	// Another reader holding a shared lock must not block us.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB))

	r := source.NewReader(dec, fastReaderOptions())
	stats, err := r.Read(context.Background(), path, func(source.RawRecord) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)
}

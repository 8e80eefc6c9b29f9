package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayForDoubles(t *testing.T) {
	p := Policy{MaxRetries: 4, Delay: 2 * time.Second}

	assert.Equal(t, time.Duration(0), p.DelayFor(0))
	assert.Equal(t, 2*time.Second, p.DelayFor(1))
	assert.Equal(t, 4*time.Second, p.DelayFor(2))
	assert.Equal(t, 8*time.Second, p.DelayFor(3))
}

func TestDelayForZeroBase(t *testing.T) {
	p := Policy{MaxRetries: 3, Delay: 0}

	for n := 0; n < 3; n++ {
		assert.Equal(t, time.Duration(0), p.DelayFor(n))
	}
}

func TestDelayForLargeAttemptDoesNotOverflow(t *testing.T) {
	p := Policy{MaxRetries: 100, Delay: time.Second}

	d := p.DelayFor(99)
	assert.Greater(t, d, time.Duration(0))
}

func TestWaitHonorsCancellation(t *testing.T) {
	p := Policy{MaxRetries: 2, Delay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Wait(ctx, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitZeroDelayReturnsImmediately(t *testing.T) {
	p := Policy{MaxRetries: 2, Delay: time.Minute}

	start := time.Now()
	err := p.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWaitsBetweenCalls(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://api.example.test/v1/reports"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://api.example.test/v1/reports"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterSeparatesHosts(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.test/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.test/1"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for range 5 {
		require.NoError(t, l.Wait(ctx, "https://api.example.test"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonoursCancellation(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 0.01, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx, "https://api.example.test"))
	cancel()
	assert.Error(t, l.Wait(ctx, "https://api.example.test"))
}

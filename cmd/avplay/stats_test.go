package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/observability"
	"go.uber.org/atomic"
)

type countingStringer struct {
	calls atomic.Int64
}

func (s *countingStringer) String() string {
	s.calls.Inc()
	return "stats"
}

func TestLogStatsStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	stats := &countingStringer{}
	done := make(chan struct{})
	observability.Go(ctx, func(ctx context.Context) {
		defer close(done)
		logStats(ctx, time.Millisecond, stats)
	})

	require.Eventually(t, func() bool { return stats.calls.Load() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("logStats did not return after the cancellation")
	}
}

package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/stockcrew/internal/common"
	"go.uber.org/goleak"
)

func watchConfig(tickers ...string) common.WatchConfig {
	return common.WatchConfig{
		Schedule:    "30 18 * * 1-5",
		Tickers:     tickers,
		Concurrency: 2,
	}
}

func TestNewService_Validation(t *testing.T) {
	noop := func(ctx context.Context, ticker string) error { return nil }

	_, err := NewService(common.WatchConfig{Schedule: "* * * * *", Tickers: []string{"AAPL"}}, noop, arbor.NewLogger())
	assert.Error(t, err, "every-minute schedule is below the minimum interval")

	_, err = NewService(watchConfig(), noop, arbor.NewLogger())
	assert.Error(t, err)

	_, err = NewService(watchConfig("AAPL", "BAD TICKER"), noop, arbor.NewLogger())
	assert.Error(t, err)

	svc, err := NewService(watchConfig("aapl", "asx:bhp"), noop, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "ASX:BHP"}, svc.Tickers())
}

func TestRunOnce_AnalysesEveryTickerWithinLimit(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var active, maxSeen atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 4)

	analyze := func(ctx context.Context, ticker string) error {
		n := active.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		started <- struct{}{}
		<-release
		active.Add(-1)

		mu.Lock()
		seen = append(seen, ticker)
		mu.Unlock()
		return nil
	}

	svc, err := NewService(watchConfig("AAPL", "MSFT", "NVDA", "GOOG"), analyze, arbor.NewLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.RunOnce(context.Background()) }()

	// two runs start, the rest wait for a free slot
	<-started
	<-started
	select {
	case <-started:
		t.Fatal("more runs started than the concurrency limit allows")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	require.NoError(t, <-done)
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))

	sort.Strings(seen)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT", "NVDA"}, seen)

	status := svc.LastTick()
	require.NotNil(t, status)
	assert.Equal(t, 4, status.Tickers)
	assert.Empty(t, status.Failed)
}

func TestRunOnce_FailuresAreIndependent(t *testing.T) {
	boom := errors.New("inference unavailable")
	var calls atomic.Int32
	analyze := func(ctx context.Context, ticker string) error {
		calls.Add(1)
		switch ticker {
		case "MSFT":
			return boom
		case "NVDA":
			panic("unexpected nil snapshot")
		}
		return nil
	}

	svc, err := NewService(watchConfig("AAPL", "MSFT", "NVDA"), analyze, arbor.NewLogger())
	require.NoError(t, err)

	err = svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panic in watch:NVDA")
	assert.Equal(t, int32(3), calls.Load())

	status := svc.LastTick()
	require.NotNil(t, status)
	sort.Strings(status.Failed)
	assert.Equal(t, []string{"MSFT", "NVDA"}, status.Failed)
}

func TestRunOnce_CancelledContextSkipsRuns(t *testing.T) {
	var calls atomic.Int32
	analyze := func(ctx context.Context, ticker string) error {
		calls.Add(1)
		return nil
	}

	svc, err := NewService(watchConfig("AAPL", "MSFT"), analyze, arbor.NewLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = svc.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, err := NewService(watchConfig("AAPL"), func(ctx context.Context, ticker string) error { return nil }, arbor.NewLogger())
	require.NoError(t, err)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

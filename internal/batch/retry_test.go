package batch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/api/googleapi"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
)

// recordingScheduler returns a scheduler whose sleeps are recorded instead
// of elapsing.
func recordingScheduler(slept *[]time.Duration) *RetryScheduler {
	s := NewRetryScheduler(nil, slog.Default())
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return s
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var slept []time.Duration
	s := recordingScheduler(&slept)

	calls := 0
	err := s.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDoBackoffSchedule(t *testing.T) {
	var slept []time.Duration
	s := recordingScheduler(&slept)
	s.BaseDelay = 60000 * time.Millisecond

	calls := 0
	err := s.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return &googleapi.Error{Code: 429}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	// nth retry delay is exactly base * 2^(n-1)
	assert.Equal(t, []time.Duration{
		60000 * time.Millisecond,
		120000 * time.Millisecond,
		240000 * time.Millisecond,
	}, slept)
}

func TestDoRetriesRateLimited403(t *testing.T) {
	var slept []time.Duration
	s := recordingScheduler(&slept)

	calls := 0
	err := s.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{
				{Reason: "rateLimitExceeded"},
			}}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, slept, 1)
}

func TestDoNonRateLimitErrorNeverSleeps(t *testing.T) {
	var slept []time.Duration
	s := recordingScheduler(&slept)

	calls := 0
	err := s.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return &googleapi.Error{Code: 401}
	})

	require.Error(t, err)
	assert.True(t, apierr.IsAuth(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestDoExhaustsAttempts(t *testing.T) {
	var slept []time.Duration
	s := recordingScheduler(&slept)
	s.MaxAttempts = 3

	calls := 0
	err := s.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return &googleapi.Error{Code: 429}
	})

	require.Error(t, err)
	assert.True(t, apierr.IsRateLimited(err))
	assert.Equal(t, 3, calls)
	// the final failed attempt does not sleep
	assert.Len(t, slept, 2)
}

func TestDoCountsBackoffs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	metrics, err := instrumentation.NewMetrics(meter)
	require.NoError(t, err)

	s := NewRetryScheduler(metrics, slog.Default())
	s.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	s.MaxAttempts = 3

	_ = s.Do(context.Background(), "op", func(ctx context.Context) error {
		return &googleapi.Error{Code: 429}
	})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "retry_backoffs_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	// two backoffs before the third attempt exhausts the budget
	assert.Equal(t, int64(2), total)
}

func TestDoStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	s := NewRetryScheduler(nil, slog.Default())
	s.BaseDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	s.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := s.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		return &googleapi.Error{Code: 429}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWrapsTransientErrors(t *testing.T) {
	var slept []time.Duration
	s := recordingScheduler(&slept)

	err := s.Do(context.Background(), "threads.get", func(ctx context.Context) error {
		return errors.New("connection reset")
	})

	require.Error(t, err)
	var ae *apierr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apierr.KindTransient, ae.Kind)
	assert.Equal(t, "threads.get", ae.Op)
}

package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrOperation = "operation"
	attrStatus    = "status"
	attrResult    = "result"
)

// Metrics provides methods for recording sync-core metrics. All Record
// methods are safe on a nil receiver, so components can be constructed
// without instrumentation in tests.
type Metrics struct {
	cacheLookupsTotal  metric.Int64Counter
	remoteCallsTotal   metric.Int64Counter
	remoteCallDuration metric.Float64Histogram
	retryBackoffsTotal metric.Int64Counter
	hydrationsTotal    metric.Int64Counter
	watchPollsTotal    metric.Int64Counter
	watchReseedsTotal  metric.Int64Counter
	tokenRefreshTotal  metric.Int64Counter
}

// NewMetrics creates a Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"cache_lookups_total",
		metric.WithDescription("Total number of cache lookups, labelled hit or miss"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache_lookups_total counter: %w", err)
	}

	m.remoteCallsTotal, err = meter.Int64Counter(
		"remote_calls_total",
		metric.WithDescription("Total number of remote message-store API calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote_calls_total counter: %w", err)
	}

	m.remoteCallDuration, err = meter.Float64Histogram(
		"remote_call_duration_seconds",
		metric.WithDescription("Remote API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote_call_duration_seconds histogram: %w", err)
	}

	m.retryBackoffsTotal, err = meter.Int64Counter(
		"retry_backoffs_total",
		metric.WithDescription("Total number of rate-limit backoff sleeps"),
		metric.WithUnit("{backoff}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry_backoffs_total counter: %w", err)
	}

	m.hydrationsTotal, err = meter.Int64Counter(
		"hydrations_total",
		metric.WithDescription("Total number of item hydrations, labelled by outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hydrations_total counter: %w", err)
	}

	m.watchPollsTotal, err = meter.Int64Counter(
		"watch_polls_total",
		metric.WithDescription("Total number of change-feed poll ticks"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch_polls_total counter: %w", err)
	}

	m.watchReseedsTotal, err = meter.Int64Counter(
		"watch_reseeds_total",
		metric.WithDescription("Total number of watermark reseed transitions"),
		metric.WithUnit("{reseed}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch_reseeds_total counter: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"token_refresh_total",
		metric.WithDescription("Total number of credential refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_refresh_total counter: %w", err)
	}

	return m, nil
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordRemoteCall records one remote API call with its outcome and duration.
func (m *Metrics) RecordRemoteCall(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil || m.remoteCallsTotal == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.remoteCallsTotal.Add(ctx, 1, attrs)
	m.remoteCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrOperation, operation),
	))
}

// RecordRetryBackoff records one rate-limit backoff sleep.
func (m *Metrics) RecordRetryBackoff(ctx context.Context, operation string) {
	if m == nil || m.retryBackoffsTotal == nil {
		return
	}
	m.retryBackoffsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOperation, operation),
	))
}

// RecordHydration records one item hydration outcome.
func (m *Metrics) RecordHydration(ctx context.Context, status string) {
	if m == nil || m.hydrationsTotal == nil {
		return
	}
	m.hydrationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
	))
}

// RecordWatchPoll records one change-feed poll tick.
func (m *Metrics) RecordWatchPoll(ctx context.Context, err error) {
	if m == nil || m.watchPollsTotal == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.watchPollsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
	))
}

// RecordWatchReseed records one reseed transition.
func (m *Metrics) RecordWatchReseed(ctx context.Context) {
	if m == nil || m.watchReseedsTotal == nil {
		return
	}
	m.watchReseedsTotal.Add(ctx, 1)
}

// RecordTokenRefresh records one credential refresh attempt.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, err error) {
	if m == nil || m.tokenRefreshTotal == nil {
		return
	}
	result := StatusSuccess
	if err != nil {
		result = StatusError
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
	"github.com/shaneholloman/zele-sub000/internal/logging"
)

const (
	// DefaultMaxAttempts bounds how often a rate-limited call is retried.
	DefaultMaxAttempts = 10

	// DefaultBaseDelay is the first backoff delay; retry n sleeps
	// BaseDelay * 2^(n-1).
	DefaultBaseDelay = time.Minute
)

// RetryScheduler retries an operation on rate-limit rejections with
// exponential backoff. Any other failure, and exhaustion of MaxAttempts,
// propagates immediately. The policy is identical for reads and mutations:
// the remote service is idempotent per request id, so a rate-limited
// mutation is as safe to repeat as a read.
type RetryScheduler struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep waits for d or until ctx is done. Overridable in tests.
	Sleep func(ctx context.Context, d time.Duration) error

	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewRetryScheduler returns a scheduler with the default attempt budget
// and backoff schedule. metrics may be nil.
func NewRetryScheduler(metrics *instrumentation.Metrics, logger *slog.Logger) *RetryScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryScheduler{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Sleep:       sleepCtx,
		metrics:     metrics,
		logger:      logger,
	}
}

// Do executes fn, retrying rate-limited failures until MaxAttempts is
// exhausted. The returned error is classified (see apierr.Wrap) under op.
func (s *RetryScheduler) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apierr.IsRateLimited(err) || attempt >= s.MaxAttempts {
			return apierr.Wrap(op, err)
		}

		delay := s.BaseDelay << (attempt - 1)
		s.metrics.RecordRetryBackoff(ctx, op)
		s.logger.Warn("rate limited, backing off",
			logging.Operation(op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		if err := s.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

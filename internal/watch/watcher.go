// Package watch polls the remote change feed and turns raw change entries
// into hydrated message events.
//
// A watcher is anchored to a persisted watermark. On the first run the
// watermark is seeded from the server's current change-sequence marker, so
// a fresh watcher resumes from now and never replays history. Each poll
// lists changes past the watermark, hydrates the new messages through the
// sync engine, optionally filters them against a query expression, and
// advances the watermark. The watermark advances even when the change set
// was empty, so the next poll never rescans ground already covered.
//
// When the server reports the watermark as too old to serve, the watcher
// reseeds from the current marker and retries the poll once. Messages that
// arrived in the gap are lost; that is the documented trade-off of
// resuming from now rather than failing permanently.
package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
	"github.com/shaneholloman/zele-sub000/internal/batch"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
	"github.com/shaneholloman/zele-sub000/internal/logging"
	"github.com/shaneholloman/zele-sub000/internal/mailapi"
	"github.com/shaneholloman/zele-sub000/internal/query"
	"github.com/shaneholloman/zele-sub000/internal/store"
	"github.com/shaneholloman/zele-sub000/internal/threads"
)

// State is the watcher lifecycle phase.
type State int

const (
	// StateSeeded means the watermark was just initialized from the
	// server's current marker; no poll has completed yet.
	StateSeeded State = iota

	// StatePolling means at least one poll completed against a valid
	// watermark.
	StatePolling

	// StateExpired means the last poll was rejected because the
	// watermark fell out of the server's retained change history.
	StateExpired

	// StateReseeding means the watcher is re-anchoring to the current
	// marker after an expiry.
	StateReseeding
)

func (s State) String() string {
	switch s {
	case StateSeeded:
		return "seeded"
	case StatePolling:
		return "polling"
	case StateExpired:
		return "expired"
	case StateReseeding:
		return "reseeding"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned by Next after Cancel was called.
var ErrCancelled = errors.New("watch cancelled")

// DefaultInterval is the pause between polls in continuous mode.
const DefaultInterval = 30 * time.Second

// Config assembles a Watcher.
type Config struct {
	Identity store.Identity
	Engine   *threads.Engine
	Remote   mailapi.Remote
	DB       *store.Store

	// LabelID scopes the change feed to one folder. Empty watches the
	// whole mailbox.
	LabelID string

	// Query filters hydrated messages client-side. Empty passes all.
	Query string

	// Interval is the pause between polls; DefaultInterval when zero.
	Interval time.Duration

	// Once stops after the first poll instead of looping.
	Once bool

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Watcher is a pull iterator over new messages. Next is not safe for
// concurrent use; Cancel may be called from any goroutine.
type Watcher struct {
	cfg     Config
	matcher *query.Matcher
	logger  *slog.Logger
	runID   string
	state   State

	pending []mailapi.ParsedMessage
	ticked  bool

	done     chan struct{}
	cancelMu sync.Once

	// sleep waits between polls. Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a watcher. It does not touch the network; seeding happens on
// the first Next call.
func New(cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logging.WithAccount(logger, cfg.Identity.Email).With(logging.RunID(runID))

	return &Watcher{
		cfg:     cfg,
		matcher: query.New(logger),
		logger:  logger,
		runID:   runID,
		state:   StateSeeded,
		done:    make(chan struct{}),
		sleep:   sleepCtx,
	}
}

// RunID identifies this watch session in logs.
func (w *Watcher) RunID() string { return w.runID }

// State reports the current lifecycle phase.
func (w *Watcher) State() State { return w.state }

// Cancel stops the watcher. A blocked or subsequent Next returns
// ErrCancelled.
func (w *Watcher) Cancel() {
	w.cancelMu.Do(func() { close(w.done) })
}

// Next returns the next matching message, polling the change feed as
// needed. In once mode it returns io.EOF after the single poll's events
// are drained; in continuous mode it blocks across poll intervals until
// an event arrives, the context ends, or Cancel is called.
func (w *Watcher) Next(ctx context.Context) (*mailapi.ParsedMessage, error) {
	for {
		select {
		case <-w.done:
			return nil, ErrCancelled
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if len(w.pending) > 0 {
			msg := w.pending[0]
			w.pending = w.pending[1:]
			return &msg, nil
		}

		if w.ticked {
			if w.cfg.Once {
				return nil, io.EOF
			}
			if err := w.sleepInterval(ctx); err != nil {
				return nil, err
			}
		}

		msgs, err := w.Poll(ctx)
		if err != nil {
			return nil, err
		}
		w.pending = msgs
	}
}

// Poll runs one change-feed tick: list changes past the watermark, hydrate
// the additions, filter, advance the watermark. Safe to call directly for
// single-shot consumers.
func (w *Watcher) Poll(ctx context.Context) ([]mailapi.ParsedMessage, error) {
	msgs, err := w.tick(ctx)
	w.ticked = true
	w.cfg.Metrics.RecordWatchPoll(ctx, err)
	if err != nil {
		return nil, err
	}
	w.state = StatePolling
	return msgs, nil
}

func (w *Watcher) tick(ctx context.Context) ([]mailapi.ParsedMessage, error) {
	watermark, err := w.loadWatermark(ctx)
	if err != nil {
		return nil, err
	}

	changes, err := w.listChanges(ctx, watermark)
	if apierr.IsWatermarkExpired(err) {
		w.state = StateExpired
		watermark, err = w.reseed(ctx)
		if err != nil {
			return nil, err
		}
		changes, err = w.listChanges(ctx, watermark)
		if apierr.IsWatermarkExpired(err) {
			// A marker obtained moments ago cannot genuinely be out of
			// retention; treat the second rejection as a server fault.
			return nil, apierr.New(apierr.KindTransient, "changes.list", err)
		}
	}
	if err != nil {
		return nil, err
	}

	added := dedupe(changes.Added)
	msgs, err := w.hydrate(ctx, added)
	if err != nil {
		return nil, err
	}

	// Advance even when nothing arrived, so a quiet mailbox does not pin
	// the watermark until it expires.
	if changes.NewWatermark != "" && changes.NewWatermark != watermark {
		if err := w.cfg.DB.SetWatermark(ctx, w.cfg.Identity, changes.NewWatermark); err != nil {
			return nil, err
		}
	}

	w.logger.Debug("change feed polled",
		logging.Operation("changes.list"),
		logging.Watermark(changes.NewWatermark),
		slog.Int("added", len(added)),
		slog.Int("matched", len(msgs)))
	return msgs, nil
}

// loadWatermark returns the persisted watermark, seeding from the server's
// current marker on first use.
func (w *Watcher) loadWatermark(ctx context.Context) (string, error) {
	watermark, err := w.cfg.DB.GetWatermark(ctx, w.cfg.Identity)
	if err != nil {
		return "", err
	}
	if watermark != "" {
		return watermark, nil
	}

	w.state = StateReseeding
	watermark, err = w.cfg.Remote.CurrentWatermark(ctx)
	if err != nil {
		return "", err
	}
	if err := w.cfg.DB.SetWatermark(ctx, w.cfg.Identity, watermark); err != nil {
		return "", err
	}
	w.state = StateSeeded
	w.logger.Info("no watermark stored, resuming from now",
		logging.Watermark(watermark))
	return watermark, nil
}

// reseed re-anchors the watermark to the server's current marker after an
// expiry. Changes between the old and new marker are skipped.
func (w *Watcher) reseed(ctx context.Context) (string, error) {
	w.state = StateReseeding
	watermark, err := w.cfg.Remote.CurrentWatermark(ctx)
	if err != nil {
		return "", err
	}
	if err := w.cfg.DB.SetWatermark(ctx, w.cfg.Identity, watermark); err != nil {
		return "", err
	}
	w.cfg.Metrics.RecordWatchReseed(ctx)
	w.logger.Warn("watermark expired, resuming from now",
		logging.Watermark(watermark))
	return watermark, nil
}

func (w *Watcher) listChanges(ctx context.Context, watermark string) (*mailapi.Changes, error) {
	return w.cfg.Remote.ListChangesSince(ctx, watermark, w.cfg.LabelID)
}

// hydrate resolves change entries to parsed messages, keeping discovery
// order. Messages deleted before we reached them are dropped; anything the
// query does not match is dropped silently.
func (w *Watcher) hydrate(ctx context.Context, ids []string) ([]mailapi.ParsedMessage, error) {
	hydrated, err := batch.Run(ctx, ids, batch.DefaultConcurrency, func(ctx context.Context, id string) (*mailapi.ParsedMessage, error) {
		msg, err := w.cfg.Engine.HydrateMessage(ctx, id)
		if err != nil {
			if apierr.IsNotFound(err) {
				w.logger.Debug("message vanished before hydration",
					slog.String("message_id", id),
					logging.Status(logging.StatusSkipped))
				return nil, nil
			}
			// A malformed payload is a per-item defect; failing the tick
			// would re-poll the same poison id forever because the
			// watermark never advances past it.
			if apierr.IsParse(err) {
				w.logger.Warn("unparseable message payload",
					slog.String("message_id", id),
					logging.Status(logging.StatusSkipped))
				return nil, nil
			}
			return nil, err
		}
		return msg, nil
	})
	if err != nil {
		return nil, err
	}

	var msgs []mailapi.ParsedMessage
	for _, msg := range hydrated {
		if msg == nil {
			continue
		}
		if w.cfg.Query != "" && !w.matcher.Matches(msg, w.cfg.Query) {
			continue
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

func (w *Watcher) sleepInterval(ctx context.Context) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.done:
			cancel()
		case <-sctx.Done():
		}
	}()
	if err := w.sleep(sctx, w.cfg.Interval); err != nil {
		select {
		case <-w.done:
			return ErrCancelled
		default:
			return err
		}
	}
	return nil
}

// dedupe drops repeated ids, keeping first-seen order. The change feed
// reports one entry per history record, so a message touched twice shows
// up twice.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package threads lists and hydrates conversation threads, consulting the
// cache before issuing detail fetches.
//
// Listing is two-phase: one uncached list call yields lightweight
// references with a revision marker, then each reference is hydrated
// concurrently: from the cache when the cached payload's revision still
// matches, otherwise with a detail fetch under the retry scheduler. The
// revision comparison avoids re-fetching items that have not changed since
// they were cached, at the cost of one list call regardless of hit rate.
package threads

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
	"github.com/shaneholloman/zele-sub000/internal/batch"
	"github.com/shaneholloman/zele-sub000/internal/cache"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
	"github.com/shaneholloman/zele-sub000/internal/logging"
	"github.com/shaneholloman/zele-sub000/internal/mailapi"
	"github.com/shaneholloman/zele-sub000/internal/store"
)

// Engine is the thread synchronization engine for one account identity.
// It is state-free per call; all persistence goes through the cache.
type Engine struct {
	id      store.Identity
	remote  mailapi.Remote
	cache   *cache.Store
	retry   *batch.RetryScheduler
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	// Concurrency bounds in-flight hydration calls.
	Concurrency int
}

// NewEngine creates an engine for id. metrics may be nil.
func NewEngine(id store.Identity, remote mailapi.Remote, c *cache.Store, retry *batch.RetryScheduler, metrics *instrumentation.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		id:          id,
		remote:      remote,
		cache:       c,
		retry:       retry,
		metrics:     metrics,
		logger:      logging.WithAccount(logger, id.Email),
		Concurrency: batch.DefaultConcurrency,
	}
}

// ListResult is one page of hydrated threads.
type ListResult struct {
	Items         []mailapi.ThreadListItem
	NextPageToken string
}

// ListThreads lists and hydrates threads matching params. Item order
// matches the remote list order; items that vanished or failed to parse
// mid-hydration are omitted. An authentication failure aborts the whole
// call.
func (e *Engine) ListThreads(ctx context.Context, params mailapi.ListParams) (*ListResult, error) {
	page, err := e.remote.ListReferences(ctx, params)
	if err != nil {
		return nil, err
	}

	hydrated, err := batch.Run(ctx, page.Refs, e.Concurrency, e.hydrateRef)
	if err != nil {
		return nil, err
	}

	result := &ListResult{NextPageToken: page.NextPageToken}
	for _, item := range hydrated {
		if item != nil {
			result.Items = append(result.Items, *item)
		}
	}
	return result, nil
}

// hydrateRef resolves one reference to its read model, via the cache when
// the cached payload is unexpired and its revision matches the reference.
// Vanished and unparseable items are skips; anything else is fatal for the
// batch.
func (e *Engine) hydrateRef(ctx context.Context, ref mailapi.ThreadRef) (*mailapi.ThreadListItem, error) {
	key := cache.Key(e.id, cache.KindThread, ref.ID)

	if raw, ok, err := e.cache.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		item, perr := mailapi.ParseThread(raw)
		if perr == nil && (ref.Revision == "" || item.Revision == ref.Revision) {
			e.metrics.RecordHydration(ctx, instrumentation.StatusSuccess)
			return item, nil
		}
		// stale revision or unreadable payload: refetch below
	}

	var raw json.RawMessage
	err := e.retry.Do(ctx, "threads.get", func(ctx context.Context) error {
		var ferr error
		raw, ferr = e.remote.GetThread(ctx, ref.ID)
		return ferr
	})
	if err != nil {
		if apierr.IsNotFound(err) {
			e.logger.Warn("thread vanished during hydration",
				logging.Operation("threads.get"),
				slog.String("thread_id", ref.ID),
				logging.Status(logging.StatusSkipped))
			e.metrics.RecordHydration(ctx, instrumentation.StatusSkipped)
			return nil, nil
		}
		return nil, err
	}

	if err := e.cache.Set(ctx, key, raw, cache.TTLThreadDetail); err != nil {
		return nil, err
	}

	item, err := mailapi.ParseThread(raw)
	if err != nil {
		e.logger.Warn("unparseable thread payload",
			logging.Operation("threads.get"),
			slog.String("thread_id", ref.ID),
			logging.Status(logging.StatusSkipped))
		e.metrics.RecordHydration(ctx, instrumentation.StatusSkipped)
		return nil, nil
	}
	e.metrics.RecordHydration(ctx, instrumentation.StatusSuccess)
	return item, nil
}

// HydrateMessage resolves one message to its read model, via the cache
// when an unexpired payload exists. Unlike bulk hydration every failure
// surfaces, including not-found; bulk callers decide what to skip.
func (e *Engine) HydrateMessage(ctx context.Context, id string) (*mailapi.ParsedMessage, error) {
	key := cache.Key(e.id, cache.KindMessage, id)

	if raw, ok, err := e.cache.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		if msg, perr := mailapi.ParseMessage(raw); perr == nil {
			return msg, nil
		}
	}

	var raw json.RawMessage
	err := e.retry.Do(ctx, "messages.get", func(ctx context.Context) error {
		var ferr error
		raw, ferr = e.remote.GetMessage(ctx, id)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, raw, cache.TTLMessageDetail); err != nil {
		return nil, err
	}
	return mailapi.ParseMessage(raw)
}

// Labels returns the account's labels, cached with the metadata TTL.
func (e *Engine) Labels(ctx context.Context) ([]mailapi.Label, error) {
	key := cache.Key(e.id, cache.KindLabels)

	if raw, ok, err := e.cache.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		if labels, perr := mailapi.ParseLabels(raw); perr == nil {
			return labels, nil
		}
	}

	var raw json.RawMessage
	err := e.retry.Do(ctx, "labels.list", func(ctx context.Context) error {
		var ferr error
		raw, ferr = e.remote.ListLabels(ctx)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, raw, cache.TTLLabels); err != nil {
		return nil, err
	}
	return mailapi.ParseLabels(raw)
}

// Profile returns the account profile, cached with the metadata TTL. Used
// to verify an authorized credential actually belongs to the configured
// address.
func (e *Engine) Profile(ctx context.Context) (*mailapi.Profile, error) {
	key := cache.Key(e.id, cache.KindProfile)

	if raw, ok, err := e.cache.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		if p, perr := mailapi.ParseProfile(raw); perr == nil {
			return p, nil
		}
	}

	var raw json.RawMessage
	err := e.retry.Do(ctx, "profile.get", func(ctx context.Context) error {
		var ferr error
		raw, ferr = e.remote.GetProfile(ctx)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, raw, cache.TTLProfile); err != nil {
		return nil, err
	}
	return mailapi.ParseProfile(raw)
}

// ResolveLabel maps a label name to its id, comparing case-insensitively
// the way the remote store does. Unknown names are returned unchanged so
// callers can pass raw label ids directly.
func (e *Engine) ResolveLabel(ctx context.Context, name string) (string, error) {
	labels, err := e.Labels(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) || l.ID == name {
			return l.ID, nil
		}
	}
	return name, nil
}

// Invalidate removes every cached row of the given resource kind for this
// engine's account. Collaborators call this after a mutation (star,
// archive, label change) so cached lists stay consistent.
func (e *Engine) Invalidate(ctx context.Context, kind string) error {
	return e.cache.Invalidate(ctx, cache.Prefix(e.id, kind))
}

// Package cache is a TTL-keyed read-through cache over the persistence
// layer. It stores raw transport payloads, never parsed read models, so a
// client-side schema change cannot invalidate previously cached rows.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
	"github.com/shaneholloman/zele-sub000/internal/store"
)

// TTLs are fixed per resource kind. Nothing is cached indefinitely; the
// sync watermark is not a cache row and lives outside this package.
const (
	TTLThreadDetail  = 30 * time.Minute
	TTLMessageDetail = 30 * time.Minute
	TTLLabels        = 2 * time.Hour
	TTLProfile       = 24 * time.Hour
)

// Resource kinds used as the operation segment of cache keys.
const (
	KindThread  = "thread"
	KindMessage = "message"
	KindLabels  = "labels"
	KindProfile = "profile"
)

// Store is the read-through cache. Reads perform the expiry check and
// self-heal by deleting expired rows; writes upsert.
type Store struct {
	db      *store.Store
	metrics *instrumentation.Metrics
	logger  *slog.Logger

	// now is the clock, overridable in tests.
	now func() time.Time
}

// New creates a cache over db. metrics may be nil.
func New(db *store.Store, metrics *instrumentation.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, metrics: metrics, logger: logger, now: time.Now}
}

// Key builds the deterministic cache key for an operation and its
// parameter set, scoped by the account identity. The parameter set is
// fingerprinted so any parameter combination maps to a fixed-length key
// under the account|kind| prefix.
func Key(id store.Identity, kind string, params ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return Prefix(id, kind) + hex.EncodeToString(h.Sum(nil)[:16])
}

// Prefix returns the invalidation prefix covering every cached parameter
// combination of kind for the account.
func Prefix(id store.Identity, kind string) string {
	return id.String() + "|" + kind + "|"
}

// AccountPrefix returns the invalidation prefix covering everything cached
// for the account.
func AccountPrefix(id store.Identity) string {
	return id.String() + "|"
}

// Get returns the cached value for key, or ok=false when the key is absent
// or expired. An expired row is deleted as a side effect of the read.
func (c *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	row, err := c.db.GetCacheRow(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if row == nil {
		c.metrics.RecordCacheLookup(ctx, false)
		return nil, false, nil
	}
	if row.CreatedAt+row.TTLMs < c.now().UnixMilli() {
		c.metrics.RecordCacheLookup(ctx, false)
		if err := c.db.DeleteCacheRow(ctx, key); err != nil {
			// the row will be reaped on a later read
			c.logger.Warn("failed to delete expired cache row", slog.String("key", key))
		}
		return nil, false, nil
	}
	c.metrics.RecordCacheLookup(ctx, true)
	return row.Value, true, nil
}

// Set upserts value under key with the given TTL.
func (c *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.db.UpsertCacheRow(ctx, store.CacheRow{
		Key:       key,
		Value:     value,
		TTLMs:     ttl.Milliseconds(),
		CreatedAt: c.now().UnixMilli(),
	})
}

// Invalidate deletes cached rows for scope. A scope ending in the key
// separator is treated as a prefix and removes every matching row; this is
// how a mutation (star, archive, label change) busts every cached list
// that might include the mutated item without knowing every parameter
// combination ever cached. Any other scope deletes one exact key.
func (c *Store) Invalidate(ctx context.Context, scope string) error {
	if strings.HasSuffix(scope, "|") {
		return c.db.DeleteCachePrefix(ctx, scope)
	}
	return c.db.DeleteCacheRow(ctx, scope)
}

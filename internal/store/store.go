// Package store is the persistence layer for the sync core: accounts with
// their credential blobs, TTL cache rows, and per-account sync watermarks,
// all in one SQLite database file.
//
// The database is opened in WAL mode with a busy timeout so a one-shot CLI
// invocation and a long-running watch process can share the same file:
// readers proceed without blocking on a writer, and competing writers wait
// a bounded time instead of failing immediately.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Identity uniquely scopes every cache row, credential row and sync
// watermark. Multiple identities coexist in one database (multi-account).
type Identity struct {
	Email string
	AppID string
}

// String returns a stable scope prefix for keys derived from the identity.
func (i Identity) String() string {
	return i.Email + "|" + i.AppID
}

// CacheRow is a persisted cache entry. Value holds the raw transport
// payload; expiry interpretation belongs to the cache package.
type CacheRow struct {
	Key       string `db:"key"`
	Value     []byte `db:"value"`
	TTLMs     int64  `db:"ttl_ms"`
	CreatedAt int64  `db:"created_at"`
}

// Store owns the SQLite handle. Construct with Open and inject into the
// components that need persistence; there is no shared global handle.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path, enables WAL mode and a
// busy timeout, and runs any pending schema migrations.
//
// The pragmas go into the DSN so the driver applies them to every
// connection database/sql pools, not just the one that happens to run an
// Exec. Without the per-connection busy timeout, concurrent cache writes
// from bulk hydration fail with SQLITE_BUSY instead of waiting.
func Open(path string) (*Store, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCacheRow returns the row for key, or nil when no row exists.
func (s *Store) GetCacheRow(ctx context.Context, key string) (*CacheRow, error) {
	var row CacheRow
	err := s.db.GetContext(ctx, &row, "SELECT key, value, ttl_ms, created_at FROM cache WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache row: %w", err)
	}
	return &row, nil
}

// UpsertCacheRow inserts or replaces the row for row.Key.
func (s *Store) UpsertCacheRow(ctx context.Context, row CacheRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache (key, value, ttl_ms, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			ttl_ms = excluded.ttl_ms,
			created_at = excluded.created_at`,
		row.Key, row.Value, row.TTLMs, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting cache row: %w", err)
	}
	return nil
}

// DeleteCacheRow removes the row for key, if present.
func (s *Store) DeleteCacheRow(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting cache row: %w", err)
	}
	return nil
}

// DeleteCachePrefix removes every row whose key starts with prefix.
func (s *Store) DeleteCachePrefix(ctx context.Context, prefix string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE key LIKE ? ESCAPE '\\'", likePattern(prefix)); err != nil {
		return fmt.Errorf("deleting cache prefix: %w", err)
	}
	return nil
}

// likePattern escapes LIKE metacharacters in prefix and appends the wildcard.
func likePattern(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+2)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}

// GetCredential returns the stored credential blob for id, or nil when the
// account is unknown.
func (s *Store) GetCredential(ctx context.Context, id Identity) ([]byte, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob,
		"SELECT credential FROM accounts WHERE email = ? AND app_id = ?", id.Email, id.AppID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential: %w", err)
	}
	return blob, nil
}

// UpsertCredential inserts or replaces the credential blob for id.
func (s *Store) UpsertCredential(ctx context.Context, id Identity, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (email, app_id, credential, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email, app_id) DO UPDATE SET
			credential = excluded.credential,
			updated_at = excluded.updated_at`,
		id.Email, id.AppID, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// ListAccounts returns every registered account identity.
func (s *Store) ListAccounts(ctx context.Context) ([]Identity, error) {
	rows := []struct {
		Email string `db:"email"`
		AppID string `db:"app_id"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, "SELECT email, app_id FROM accounts ORDER BY email, app_id"); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	ids := make([]Identity, len(rows))
	for i, r := range rows {
		ids[i] = Identity{Email: r.Email, AppID: r.AppID}
	}
	return ids, nil
}

// GetWatermark returns the persisted sync watermark for id, or "" when the
// account has never been seeded. Watermarks have no TTL.
func (s *Store) GetWatermark(ctx context.Context, id Identity) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM sync_watermark WHERE email = ? AND app_id = ?", id.Email, id.AppID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading watermark: %w", err)
	}
	return value, nil
}

// SetWatermark inserts or replaces the sync watermark for id.
func (s *Store) SetWatermark(ctx context.Context, id Identity, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_watermark (email, app_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email, app_id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		id.Email, id.AppID, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting watermark: %w", err)
	}
	return nil
}

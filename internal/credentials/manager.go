// Package credentials holds, refreshes and persists OAuth bearer
// credentials per account identity.
//
// A refresh response may omit fields the stored record still needs (Google
// omits the refresh token on refresh), so a refreshed credential is merged
// into the stored record rather than replacing it. The refresh-merge-persist
// sequence is serialized per identity to avoid lost updates when a CLI call
// and a watch process resolve the same account concurrently.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
	"github.com/shaneholloman/zele-sub000/internal/logging"
	"github.com/shaneholloman/zele-sub000/internal/store"
)

// expiryLeeway treats a token expiring within this window as already
// expired, so a call issued right at the boundary does not race the server.
const expiryLeeway = 30 * time.Second

// Credential is the persisted bearer credential for one account identity.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// valid reports whether the access token is usable at now.
func (c Credential) valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return now.Add(expiryLeeway).Before(c.Expiry)
}

// merge overlays fresh onto c: fields present in fresh win, fields absent
// in fresh are retained from c.
func (c Credential) merge(fresh Credential) Credential {
	merged := c
	if fresh.AccessToken != "" {
		merged.AccessToken = fresh.AccessToken
	}
	if fresh.RefreshToken != "" {
		merged.RefreshToken = fresh.RefreshToken
	}
	if fresh.TokenType != "" {
		merged.TokenType = fresh.TokenType
	}
	if !fresh.Expiry.IsZero() {
		merged.Expiry = fresh.Expiry
	}
	return merged
}

// Token converts the credential to an oauth2 token.
func (c Credential) Token() *oauth2.Token {
	typ := c.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    typ,
		Expiry:       c.Expiry,
	}
}

// Refresher exchanges a refresh token for a fresh credential.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// OAuthRefresher refreshes through an oauth2 endpoint configuration.
type OAuthRefresher struct {
	Config *oauth2.Config
}

// Refresh performs the token refresh call.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	ts := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, err
	}
	return &Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

// Manager resolves credentials for account identities, refreshing and
// persisting them as needed. It is the sole writer of credential rows.
type Manager struct {
	db        *store.Store
	refresher Refresher
	metrics   *instrumentation.Metrics
	logger    *slog.Logger

	// now is the clock, overridable in tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[store.Identity]*sync.Mutex
}

// NewManager creates a credential manager over db. metrics may be nil.
func NewManager(db *store.Store, refresher Refresher, metrics *instrumentation.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:        db,
		refresher: refresher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[store.Identity]*sync.Mutex),
	}
}

// Resolve returns a usable credential for id, refreshing and persisting it
// first when the stored one has expired. Resolution for one identity is
// serialized; distinct identities proceed concurrently.
func (m *Manager) Resolve(ctx context.Context, id store.Identity) (*Credential, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred.valid(m.now()) {
		return cred, nil
	}
	if cred.RefreshToken == "" {
		return nil, apierr.New(apierr.KindAuth, "credentials.resolve",
			fmt.Errorf("credential for %s expired and has no refresh token", logging.AnonymizeEmail(id.Email)))
	}

	fresh, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	m.metrics.RecordTokenRefresh(ctx, err)
	if err != nil {
		return nil, apierr.New(apierr.KindAuth, "credentials.refresh", err)
	}

	merged := cred.merge(*fresh)
	if err := m.save(ctx, id, merged); err != nil {
		return nil, err
	}

	m.logger.Info("refreshed credential",
		logging.Operation("credentials.refresh"),
		logging.UserHash(id.Email))
	return &merged, nil
}

// Store persists a credential for id, replacing any existing record. Used
// by the auth bootstrap after an authorization-code exchange.
func (m *Manager) Store(ctx context.Context, id store.Identity, cred Credential) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return m.save(ctx, id, cred)
}

// TokenSource returns an oauth2 token source that resolves through the
// manager, so long-running consumers pick up refreshed tokens.
func (m *Manager) TokenSource(ctx context.Context, id store.Identity) oauth2.TokenSource {
	return &managerSource{ctx: ctx, m: m, id: id}
}

type managerSource struct {
	ctx context.Context
	m   *Manager
	id  store.Identity
}

func (s *managerSource) Token() (*oauth2.Token, error) {
	cred, err := s.m.Resolve(s.ctx, s.id)
	if err != nil {
		return nil, err
	}
	return cred.Token(), nil
}

func (m *Manager) load(ctx context.Context, id store.Identity) (*Credential, error) {
	blob, err := m.db.GetCredential(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, apierr.New(apierr.KindAuth, "credentials.resolve",
			fmt.Errorf("no credential stored for %s", logging.AnonymizeEmail(id.Email)))
	}
	var cred Credential
	if err := json.Unmarshal(blob, &cred); err != nil {
		return nil, apierr.New(apierr.KindAuth, "credentials.resolve",
			errors.New("stored credential is malformed"))
	}
	return &cred, nil
}

func (m *Manager) save(ctx context.Context, id store.Identity, cred Credential) error {
	blob, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}
	return m.db.UpsertCredential(ctx, id, blob)
}

func (m *Manager) lockFor(id store.Identity) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

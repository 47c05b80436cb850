package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/shaneholloman/zele-sub000/internal/batch"
	"github.com/shaneholloman/zele-sub000/internal/cache"
	"github.com/shaneholloman/zele-sub000/internal/config"
	"github.com/shaneholloman/zele-sub000/internal/credentials"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
	"github.com/shaneholloman/zele-sub000/internal/mailapi"
	"github.com/shaneholloman/zele-sub000/internal/store"
	"github.com/shaneholloman/zele-sub000/internal/threads"
)

// app bundles the shared wiring every command needs: configuration, the
// local database, instrumentation, and the credential manager.
type app struct {
	cfg      *config.Config
	cfgPath  string
	db       *store.Store
	provider *instrumentation.Provider
	metrics  *instrumentation.Metrics
	creds    *credentials.Manager
	logger   *slog.Logger
}

func newApp(ctx context.Context) (*app, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DBPath, err)
	}

	icfg := instrumentation.DefaultConfig()
	icfg.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, icfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing instrumentation: %w", err)
	}
	metrics := provider.Metrics()

	refresher := &credentials.OAuthRefresher{Config: oauthConfig(cfg)}
	creds := credentials.NewManager(db, refresher, metrics, logger)

	return &app{
		cfg:      cfg,
		cfgPath:  path,
		db:       db,
		provider: provider,
		metrics:  metrics,
		creds:    creds,
		logger:   logger,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("instrumentation shutdown failed", slog.Any("error", err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("database close failed", slog.Any("error", err))
	}
}

// engineFor builds the sync engine for one configured account. The remote
// is authenticated through the credential manager, so an expired access
// token refreshes transparently mid-run.
func (a *app) engineFor(ctx context.Context, email string) (*threads.Engine, mailapi.Remote, error) {
	id := a.cfg.Identity(email)

	ts := a.creds.TokenSource(ctx, id)
	client := oauth2.NewClient(ctx, ts)

	remote, err := mailapi.NewGmailRemote(ctx, client, a.metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("creating mail client for %s: %w", email, err)
	}

	c := cache.New(a.db, a.metrics, a.logger)
	retry := batch.NewRetryScheduler(a.metrics, a.logger)
	engine := threads.NewEngine(id, remote, c, retry, a.metrics, a.logger)
	return engine, remote, nil
}

// accountsFor resolves the accounts a command operates on: the --account
// flag when given, otherwise every configured account.
func (a *app) accountsFor(flag string) ([]string, error) {
	if flag != "" {
		return []string{flag}, nil
	}
	if len(a.cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured; run 'zele auth' first")
	}
	emails := make([]string, 0, len(a.cfg.Accounts))
	for _, acc := range a.cfg.Accounts {
		emails = append(emails, acc.Email)
	}
	return emails, nil
}

func oauthConfig(cfg *config.Config) *oauth2.Config {
	const oob = "urn:ietf:wg:oauth:2.0:oob"
	return &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  oob,
		Scopes: []string{
			gmail.MailGoogleComScope,
		},
	}
}

func logLevel() slog.Level {
	switch os.Getenv("ZELE_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

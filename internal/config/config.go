// Package config loads the zele configuration file.
//
// Configuration lives at ~/.config/zele/config.yaml by default and is read
// with Viper, so any key can also be overridden through ZELE_-prefixed
// environment variables (ZELE_DB_PATH, ZELE_WATCH_INTERVAL_SEC, ...).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaneholloman/zele-sub000/internal/store"
)

// AccountConfig names one mailbox the client syncs.
type AccountConfig struct {
	// Email is the account address; together with the OAuth client id it
	// forms the identity every persisted row is scoped to.
	Email string `mapstructure:"email" yaml:"email"`
}

// OAuthConfig holds the OAuth application registration.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// WatchConfig holds the change-feed polling defaults.
type WatchConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// Config is the top-level configuration.
type Config struct {
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
	OAuth    OAuthConfig     `mapstructure:"oauth" yaml:"oauth"`
	DBPath   string          `mapstructure:"db_path" yaml:"db_path"`
	Watch    WatchConfig     `mapstructure:"watch" yaml:"watch"`
}

// Identity returns the persistence identity for an account: its address
// paired with the OAuth client id, so rows from different app
// registrations never collide.
func (c *Config) Identity(email string) store.Identity {
	return store.Identity{Email: email, AppID: c.OAuth.ClientID}
}

// WatchInterval returns the configured polling interval.
func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Watch.IntervalSec) * time.Second
}

// DefaultPath returns ~/.config/zele/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "zele", "config.yaml")
}

// DefaultDBPath returns ~/.local/share/zele/zele.db.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "zele.db")
	}
	return filepath.Join(home, ".local", "share", "zele", "zele.db")
}

func defaults() *Config {
	return &Config{
		DBPath: DefaultDBPath(),
		Watch:  WatchConfig{IntervalSec: 30},
	}
}

// Load reads the configuration from path. A missing file yields the
// defaults; environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ZELE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", DefaultDBPath())
	v.SetDefault("watch.interval_sec", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Watch.IntervalSec <= 0 {
		cfg.Watch.IntervalSec = 30
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed. Used by
// the auth flow to record newly added accounts.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("oauth", cfg.OAuth)
	v.Set("db_path", cfg.DBPath)
	v.Set("watch", cfg.Watch)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// AddAccount appends email to the account list if absent.
func (c *Config) AddAccount(email string) {
	for _, a := range c.Accounts {
		if strings.EqualFold(a.Email, email) {
			return
		}
	}
	c.Accounts = append(c.Accounts, AccountConfig{Email: email})
}

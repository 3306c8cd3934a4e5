// ABOUTME: Configuration loading and parsing for coven-client
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-client/internal/credstore"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "COVEN_CLIENT_CONFIG"

// Config represents the complete coven-client configuration
type Config struct {
	API         APIConfig         `yaml:"api" toml:"api"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Cache       CacheConfig       `yaml:"cache" toml:"cache"`
	NetLog      NetLogConfig      `yaml:"netlog" toml:"netlog"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// APIConfig holds gateway connection settings
type APIConfig struct {
	BaseURL              string `yaml:"base_url" toml:"base_url"`
	RefreshPath          string `yaml:"refresh_path" toml:"refresh_path"`
	FailFastWithoutToken bool   `yaml:"fail_fast_without_token" toml:"fail_fast_without_token"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	UploadTimeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	UploadTimeoutRaw  string `yaml:"upload_timeout" toml:"upload_timeout"`
}

// Credential store backends
const (
	CredentialsFile   = "file"
	CredentialsSQLite = "sqlite"
	CredentialsMemory = "memory"
)

// CredentialsConfig selects where the token pair is stored
type CredentialsConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Path    string `yaml:"path" toml:"path"`
	// Secret seals the stored pair. Usually supplied as ${COVEN_CLIENT_SECRET}.
	Secret string `yaml:"secret" toml:"secret"`
}

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig holds response cache settings
type CacheConfig struct {
	Backend    string      `yaml:"backend" toml:"backend"`
	MaxEntries int         `yaml:"max_entries" toml:"max_entries"`
	Redis      RedisConfig `yaml:"redis" toml:"redis"`

	ListTTL    time.Duration `yaml:"-" toml:"-"`
	HistoryTTL time.Duration `yaml:"-" toml:"-"`

	ListTTLRaw    string `yaml:"list_ttl" toml:"list_ttl"`
	HistoryTTLRaw string `yaml:"history_ttl" toml:"history_ttl"`
}

// RedisConfig holds Redis connection settings for the redis cache backend
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// NetLogConfig holds network trace log settings
type NetLogConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Path       string `yaml:"path" toml:"path"`
	MaxEntries int    `yaml:"max_entries" toml:"max_entries"`

	MaxAge    time.Duration `yaml:"-" toml:"-"`
	MaxAgeRaw string        `yaml:"max_age" toml:"max_age"`
}

// SessionConfig holds session manager settings
type SessionConfig struct {
	BootstrapCooldown    time.Duration `yaml:"-" toml:"-"`
	BootstrapCooldownRaw string        `yaml:"bootstrap_cooldown" toml:"bootstrap_cooldown"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used for every field a file leaves unset.
// Paths default to locations under the user's XDG directories.
func Default() *Config {
	return &Config{
		API: APIConfig{
			RefreshPath:          "/v1/auth/refresh",
			FailFastWithoutToken: true,
			RequestTimeoutRaw:    "30s",
			UploadTimeoutRaw:     "5m",
		},
		Credentials: CredentialsConfig{
			Backend: CredentialsFile,
			Path:    filepath.Join(dataDir(), "credentials"),
		},
		Cache: CacheConfig{
			Backend:       CacheMemory,
			MaxEntries:    500,
			ListTTLRaw:    "5m",
			HistoryTTLRaw: "3m",
			Redis:         RedisConfig{Prefix: "coven:cache:"},
		},
		NetLog: NetLogConfig{
			Enabled:    true,
			Path:       filepath.Join(stateDir(), "network-log.json"),
			MaxEntries: 1000,
			MaxAgeRaw:  "168h",
		},
		Session: SessionConfig{
			BootstrapCooldownRaw: "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads the file at DefaultPath. A missing file yields the
// defaults, which still need a base URL and secret to validate.
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := cfg.finish(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// DefaultPath resolves the config file: $COVEN_CLIENT_CONFIG, then
// $XDG_CONFIG_HOME/coven/client.yaml, then ~/.config/coven/client.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven", "client.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "coven", "client.yaml"), nil
}

func dataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

func stateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "coven")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(append(append([]string{home}, fallback...), "coven")...)
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if !strings.HasPrefix(c.API.RefreshPath, "/") {
		return fmt.Errorf("api.refresh_path must start with /")
	}

	switch c.Credentials.Backend {
	case CredentialsFile, CredentialsSQLite:
		if c.Credentials.Path == "" {
			return fmt.Errorf("credentials.path is required for the %s backend", c.Credentials.Backend)
		}
		if len(c.Credentials.Secret) < credstore.MinSecretLength {
			return fmt.Errorf("credentials.secret must be at least %d bytes", credstore.MinSecretLength)
		}
	case CredentialsMemory:
	default:
		return fmt.Errorf("credentials.backend must be one of file, sqlite, memory, got %q", c.Credentials.Backend)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}

	if c.NetLog.Enabled && c.NetLog.MaxEntries <= 0 {
		return fmt.Errorf("netlog.max_entries must be positive")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"api.request_timeout", cfg.API.RequestTimeoutRaw, &cfg.API.RequestTimeout},
		{"api.upload_timeout", cfg.API.UploadTimeoutRaw, &cfg.API.UploadTimeout},
		{"cache.list_ttl", cfg.Cache.ListTTLRaw, &cfg.Cache.ListTTL},
		{"cache.history_ttl", cfg.Cache.HistoryTTLRaw, &cfg.Cache.HistoryTTL},
		{"netlog.max_age", cfg.NetLog.MaxAgeRaw, &cfg.NetLog.MaxAge},
		{"session.bootstrap_cooldown", cfg.Session.BootstrapCooldownRaw, &cfg.Session.BootstrapCooldown},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}

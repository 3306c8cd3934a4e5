// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, durations and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "client.yaml", `
api:
  base_url: "https://gateway.example.com"
  request_timeout: "10s"
  upload_timeout: "2m"
  fail_fast_without_token: false
credentials:
  backend: "sqlite"
  path: "/tmp/creds.db"
  secret: "`+testSecret+`"
cache:
  backend: "redis"
  list_ttl: "1m"
  history_ttl: "45s"
  redis:
    addr: "localhost:6379"
    db: 2
netlog:
  enabled: false
session:
  bootstrap_cooldown: "1m"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://gateway.example.com", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.API.UploadTimeout)
	assert.False(t, cfg.API.FailFastWithoutToken)
	assert.Equal(t, "/v1/auth/refresh", cfg.API.RefreshPath, "unset fields keep defaults")

	assert.Equal(t, CredentialsSQLite, cfg.Credentials.Backend)
	assert.Equal(t, "/tmp/creds.db", cfg.Credentials.Path)

	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.ListTTL)
	assert.Equal(t, 45*time.Second, cfg.Cache.HistoryTTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "coven:cache:", cfg.Cache.Redis.Prefix)

	assert.False(t, cfg.NetLog.Enabled)
	assert.Equal(t, 7*24*time.Hour, cfg.NetLog.MaxAge)
	assert.Equal(t, time.Minute, cfg.Session.BootstrapCooldown)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "client.yaml", `
api:
  base_url: "http://localhost:8080"
credentials:
  backend: "memory"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.API.FailFastWithoutToken)
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.API.UploadTimeout)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ListTTL)
	assert.Equal(t, 3*time.Minute, cfg.Cache.HistoryTTL)
	assert.True(t, cfg.NetLog.Enabled)
	assert.Equal(t, 1000, cfg.NetLog.MaxEntries)
	assert.Equal(t, 30*time.Second, cfg.Session.BootstrapCooldown)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "client.toml", `
[api]
base_url = "https://gateway.example.com"
request_timeout = "15s"

[credentials]
backend = "file"
path = "/tmp/creds"
secret = "`+testSecret+`"

[cache]
list_ttl = "2m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://gateway.example.com", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, CredentialsFile, cfg.Credentials.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ListTTL)
	assert.Equal(t, 3*time.Minute, cfg.Cache.HistoryTTL)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_GATEWAY_URL", "https://env.example.com")
	t.Setenv("TEST_CLIENT_SECRET", testSecret)

	path := writeConfig(t, "client.yaml", `
api:
  base_url: "${TEST_GATEWAY_URL}"
credentials:
  secret: "${TEST_CLIENT_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, testSecret, cfg.Credentials.Secret)
}

func TestExpandEnvVars_Unset(t *testing.T) {
	assert.Equal(t, "a--b", expandEnvVars("a-${COVEN_TEST_SURELY_UNSET}-b"))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing base url",
			content: "credentials:\n  backend: memory\n",
			wantErr: "api.base_url is required",
		},
		{
			name:    "relative base url",
			content: "api:\n  base_url: /gateway\ncredentials:\n  backend: memory\n",
			wantErr: "api.base_url must be an absolute",
		},
		{
			name:    "short secret",
			content: "api:\n  base_url: https://g.example.com\ncredentials:\n  secret: short\n",
			wantErr: "credentials.secret must be at least",
		},
		{
			name:    "unknown credentials backend",
			content: "api:\n  base_url: https://g.example.com\ncredentials:\n  backend: keychain\n",
			wantErr: "credentials.backend must be one of",
		},
		{
			name:    "redis without addr",
			content: "api:\n  base_url: https://g.example.com\ncredentials:\n  backend: memory\ncache:\n  backend: redis\n",
			wantErr: "cache.redis.addr is required",
		},
		{
			name:    "bad duration",
			content: "api:\n  base_url: https://g.example.com\n  request_timeout: soon\ncredentials:\n  backend: memory\n",
			wantErr: "parsing api.request_timeout",
		},
		{
			name:    "negative duration",
			content: "api:\n  base_url: https://g.example.com\ncredentials:\n  backend: memory\nsession:\n  bootstrap_cooldown: -1s\n",
			wantErr: "session.bootstrap_cooldown must not be negative",
		},
		{
			name:    "bad log format",
			content: "api:\n  base_url: https://g.example.com\ncredentials:\n  backend: memory\nlogging:\n  format: xml\n",
			wantErr: "logging.format must be text or json",
		},
		{
			name:    "invalid yaml",
			content: "api: [unclosed",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "client.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/coven/override.yaml")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/coven/override.yaml", path)

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	path, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/xdg", "coven", "client.yaml"), path)

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/ada")
	path, err = DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/ada", ".config", "coven", "client.yaml"), path)
}

func TestLoadDefault_UsesEnvPath(t *testing.T) {
	path := writeConfig(t, "custom.yaml", "api:\n  base_url: https://g.example.com\ncredentials:\n  backend: memory\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "https://g.example.com", cfg.API.BaseURL)
}

func TestLoadDefault_MissingFileStillValidates(t *testing.T) {
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadDefault()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url is required")
}

func TestDefault_XDGPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_STATE_HOME", "/state")

	cfg := Default()
	assert.Equal(t, filepath.Join("/data", "coven", "credentials"), cfg.Credentials.Path)
	assert.Equal(t, filepath.Join("/state", "coven", "network-log.json"), cfg.NetLog.Path)
}

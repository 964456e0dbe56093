package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 12*time.Second, cfg.MinUpdateInterval)
	assert.Equal(t, 800*time.Millisecond, cfg.SettleDelay)

	assert.Equal(t, "username", cfg.Backend.IdentityColumn)
	assert.Equal(t, "is_live", cfg.Backend.ActiveColumn)
	assert.Equal(t, "link", cfg.Backend.LinkColumn)
	assert.Equal(t, "https://instagram.com/{identity}", cfg.Backend.LinkTemplate)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.False(t, cfg.Backend.HTTP2)

	assert.Equal(t, "push", cfg.Snapshot.Source)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "libsql", cfg.Store.Driver)
	assert.Equal(t, DefaultStorePath(), cfg.Store.Path)
	assert.True(t, cfg.Store.PersistLedger)
	assert.True(t, cfg.Store.Journal)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)

	assert.Same(t, cfg, GetConfig())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LIVETRACK_POLL_INTERVAL", "5s")
	t.Setenv("LIVETRACK_BACKEND_URL", "https://db.example.com/rest/v1/live_status")
	t.Setenv("LIVETRACK_BACKEND_KEY", "anon-key")
	t.Setenv("LIVETRACK_BACKEND_HTTP2", "true")
	t.Setenv("LIVETRACK_DB_PATH", ":memory:")
	t.Setenv("LIVETRACK_SNAPSHOT_SOURCE", "FILE")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, "https://db.example.com/rest/v1/live_status", cfg.Backend.URL)
	assert.Equal(t, "anon-key", cfg.Backend.Credential)
	assert.True(t, cfg.Backend.HTTP2)
	assert.Equal(t, ":memory:", cfg.Store.Path)
	assert.Equal(t, "file", cfg.Snapshot.Source)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
min_update_interval: 30s
backend:
  url: https://db.example.com/rest/v1/streams
  credential: secret
  identity_column: handle
  on_conflict: handle
store:
  journal: false
`), 0o600))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.MinUpdateInterval)
	assert.Equal(t, "handle", cfg.Backend.IdentityColumn)
	assert.Equal(t, "handle", cfg.Backend.OnConflict)
	assert.Equal(t, "is_live", cfg.Backend.ActiveColumn)
	assert.False(t, cfg.Store.Journal)
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIVETRACK_BACKEND_KEY=from-dotenv\nLIVETRACK_LOG_LEVEL=debug\n"), 0o600))

	t.Setenv("LIVETRACK_LOG_LEVEL", "warn")
	t.Cleanup(func() { _ = os.Unsetenv("LIVETRACK_BACKEND_KEY") })

	loaded, err := LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, []string{path}, loaded)

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Backend.Credential)
	// existing environment wins over .env
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PollInterval:      3 * time.Second,
			MinUpdateInterval: 12 * time.Second,
			SettleDelay:       800 * time.Millisecond,
			Backend: BackendConfig{
				URL:            "https://db.example.com/rest/v1/live_status",
				Credential:     "key",
				IdentityColumn: "username",
			},
			Snapshot: SnapshotConfig{Source: "push"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"zero poll":          func(c *Config) { c.PollInterval = 0 },
		"negative min":       func(c *Config) { c.MinUpdateInterval = -time.Second },
		"negative settle":    func(c *Config) { c.SettleDelay = -time.Millisecond },
		"missing url":        func(c *Config) { c.Backend.URL = "" },
		"missing credential": func(c *Config) { c.Backend.Credential = " " },
		"file without path":  func(c *Config) { c.Snapshot.Source = "file" },
		"unknown source":     func(c *Config) { c.Snapshot.Source = "dom" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultStorePath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	path := DefaultStorePath()
	assert.Equal(t, "livetrack.db", filepath.Base(path))
}

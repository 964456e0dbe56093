// Package config loads livetrack configuration through viper: built-in
// defaults, an optional YAML file in the XDG config dir, a .env file and
// LIVETRACK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is used for XDG paths and the binary name.
	AppName = "livetrack"
	// EnvPrefix is the environment variable prefix (without trailing underscore).
	EnvPrefix = "LIVETRACK"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// envAliases maps short environment names onto config keys, in addition to
// the automatic LIVETRACK_<SECTION>_<KEY> mapping.
var envAliases = map[string]string{
	"backend.url":        "LIVETRACK_BACKEND_URL",
	"backend.credential": "LIVETRACK_BACKEND_KEY",
	"server.host":        "LIVETRACK_HOST",
	"server.port":        "LIVETRACK_PORT",
	"logging.level":      "LIVETRACK_LOG_LEVEL",
	"logging.profile":    "LIVETRACK_LOG_PROFILE",
	"store.driver":       "LIVETRACK_DB_DRIVER",
	"store.path":         "LIVETRACK_DB_PATH",
	"store.url":          "LIVETRACK_DB_URL",
	"store.auth_token":   "LIVETRACK_DB_AUTH_TOKEN",
}

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("poll_interval", "3s")
	v.SetDefault("min_update_interval", "12s")
	v.SetDefault("settle_delay", "800ms")

	v.SetDefault("backend.url", "")
	v.SetDefault("backend.credential", "")
	v.SetDefault("backend.identity_column", "username")
	v.SetDefault("backend.active_column", "is_live")
	v.SetDefault("backend.link_column", "link")
	v.SetDefault("backend.link_template", "https://instagram.com/{identity}")
	v.SetDefault("backend.on_conflict", "")
	v.SetDefault("backend.timeout", "10s")
	v.SetDefault("backend.http2", false)

	v.SetDefault("snapshot.source", "push")
	v.SetDefault("snapshot.file", "")
	v.SetDefault("snapshot.max_age", "0s")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.control_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
	v.SetDefault("logging.environment", "production")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.persist_ledger", true)
	v.SetDefault("store.journal", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// BindEnv enables LIVETRACK_* lookups, including the short aliases.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range envAliases {
		canonical := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, canonical, alias); err != nil {
			return fmt.Errorf("bind %s: %w", alias, err)
		}
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var loaded []string
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Load decodes the merged viper settings into a Config and stores it as the
// current configuration. It does not validate backend settings, so commands
// that never talk to the backend can still load.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	cfg.Snapshot.Source = strings.ToLower(strings.TrimSpace(cfg.Snapshot.Source))

	setConfig(cfg)
	return cfg, nil
}

// Validate checks the settings the reconciler depends on.
func (c *Config) Validate() error {
	var problems []string
	if c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if c.MinUpdateInterval <= 0 {
		problems = append(problems, "min_update_interval must be positive")
	}
	if c.SettleDelay < 0 {
		problems = append(problems, "settle_delay must not be negative")
	}
	if err := c.Backend.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Snapshot.Source {
	case "push":
	case "file":
		if strings.TrimSpace(c.Snapshot.File) == "" {
			problems = append(problems, "snapshot.file is required when snapshot.source is file")
		}
	default:
		problems = append(problems, fmt.Sprintf("snapshot.source %q is not one of push, file", c.Snapshot.Source))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks that the backend is reachable in principle.
func (b BackendConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(b.URL) == "" {
		problems = append(problems, "backend.url is required")
	}
	if strings.TrimSpace(b.Credential) == "" {
		problems = append(problems, "backend.credential is required")
	}
	if strings.TrimSpace(b.IdentityColumn) == "" {
		problems = append(problems, "backend.identity_column is required")
	}
	if b.Timeout < 0 {
		problems = append(problems, "backend.timeout must not be negative")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG config directory, or "" if it cannot be resolved.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

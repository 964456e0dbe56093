package config

import "time"

// Config represents the complete application configuration. Values are
// layered as defaults, then the YAML config file, then .env and LIVETRACK_*
// environment variables, then command flags.
type Config struct {
	PollInterval      time.Duration  `mapstructure:"poll_interval"`
	MinUpdateInterval time.Duration  `mapstructure:"min_update_interval"`
	SettleDelay       time.Duration  `mapstructure:"settle_delay"`
	Backend           BackendConfig  `mapstructure:"backend"`
	Snapshot          SnapshotConfig `mapstructure:"snapshot"`
	Server            ServerConfig   `mapstructure:"server"`
	Store             StoreConfig    `mapstructure:"store"`
	Logging           LoggingConfig  `mapstructure:"logging"`
	Metrics           MetricsConfig  `mapstructure:"metrics"`
	Health            HealthConfig   `mapstructure:"health"`
	Debug             DebugConfig    `mapstructure:"debug"`
}

// BackendConfig describes the PostgREST-style collection that receives
// live-state records.
type BackendConfig struct {
	// URL is the collection endpoint, e.g. https://x.supabase.co/rest/v1/live_status
	URL        string `mapstructure:"url"`
	Credential string `mapstructure:"credential"`

	IdentityColumn string `mapstructure:"identity_column"`
	ActiveColumn   string `mapstructure:"active_column"`
	LinkColumn     string `mapstructure:"link_column"`
	// LinkTemplate renders the record link; "{identity}" is substituted.
	LinkTemplate string `mapstructure:"link_template"`
	// OnConflict is sent as the on_conflict query parameter when set.
	OnConflict string `mapstructure:"on_conflict"`

	Timeout time.Duration `mapstructure:"timeout"`
	HTTP2   bool          `mapstructure:"http2"`
}

// SnapshotConfig selects where observations come from.
type SnapshotConfig struct {
	// Source is "push" (POST /v1/snapshot) or "file".
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
	// MaxAge fails ticks when the pushing observer goes quiet. Zero disables it.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ControlToken guards the mutating /v1 and /admin routes when set.
	ControlToken string `mapstructure:"control_token"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
	// PersistLedger keeps rate windows across restarts.
	PersistLedger bool `mapstructure:"persist_ledger"`
	// Journal records every write outcome.
	Journal bool `mapstructure:"journal"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects SIMPLE or STRUCTURED output for the daemon.
	Profile string `mapstructure:"profile"`

	Environment string `mapstructure:"environment"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

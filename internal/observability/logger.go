package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for one-shot commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used by the daemon, STRUCTURED unless configured otherwise
	ServerLogger *logging.Logger
)

// ServerLogOptions configures the daemon logger.
type ServerLogOptions struct {
	Service     string
	Level       string
	Profile     string // "structured" (default) or "simple"
	Environment string // defaults to "production"
	Namespace   string
}

var logLevels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger initializes the CLI logger with SIMPLE profile.
func InitCLILogger(serviceName string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("initialize CLI logger: %w", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
	return nil
}

// InitServerLogger builds the daemon logger and installs it as ServerLogger.
func InitServerLogger(opts ServerLogOptions) error {
	logger, err := logging.New(serverLoggerConfig(opts))
	if err != nil {
		return fmt.Errorf("initialize server logger: %w", err)
	}
	ServerLogger = logger
	return nil
}

func serverLoggerConfig(opts ServerLogOptions) *logging.LoggerConfig {
	environment := strings.TrimSpace(opts.Environment)
	if environment == "" {
		environment = "production"
	}
	fields := map[string]any{}
	if opts.Namespace != "" {
		fields["namespace"] = opts.Namespace
	}

	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: levelName(opts.Level),
		Service:      opts.Service,
		Environment:  environment,
		StaticFields: fields,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	// The simple profile is for running the daemon in a terminal.
	if strings.EqualFold(strings.TrimSpace(opts.Profile), "simple") {
		cfg.Profile = logging.ProfileSimple
		cfg.Middleware = nil
		cfg.Sinks[0].Format = "console"
		cfg.EnableStacktrace = false
	}
	return cfg
}

// levelName maps a config level onto the logger's severity name; unknown
// values fall back to INFO.
func levelName(level string) string {
	if name, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return name
	}
	return "INFO"
}

// Logger returns the daemon logger when running, otherwise the CLI logger.
// Either may be nil before initialization.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

var (
	cfgFile  string
	envFiles []string
	verbose  bool
)

// BuildInfo is stamped into the binary by ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Main runs the root command and exits non-zero with a foundry exit code
// when it fails.
func Main(info BuildInfo) {
	handlers.SetVersionInfo(info.Version, info.Commit, info.BuildDate)
	if err := Execute(); err != nil {
		ExitWithCodeStderr(ExitCodeFor(err), "Command execution failed", err)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Mirror live presence from periodic snapshots into a REST backend",
	Long: `livetrack reconciles periodic snapshots of "who is live" into a
PostgREST-style table. Each appearance or disappearance becomes one
upsert, debounced per identity.

Use the subcommands to run the reconciler or inspect its state.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. The run command initializes proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading LIVETRACK_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads dotenv files, then the config file, then binds
// LIVETRACK_* variables over both.
func initConfig() {
	if err := observability.InitCLILogger(config.AppName, verbose); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	log := observability.CLILogger

	loaded, err := config.LoadDotEnv(envFiles...)
	if err != nil {
		ExitWithCode(log, foundry.ExitConfigInvalid, "Failed to load env file", err)
	}
	for _, path := range loaded {
		log.Debug("Loaded env file", zap.String("path", path))
	}

	used, err := configureViper(viper.GetViper(), cfgFile)
	switch {
	case err != nil:
		ExitWithCode(log, foundry.ExitConfigInvalid, "Failed to read config file", err)
	case used == "":
		log.Debug("No config file found, using defaults and environment variables")
	default:
		log.Debug("Using config file", zap.String("path", used))
	}
}

// configureViper points v at explicit, or at config.yaml in the XDG config
// directory, home, or ./config, and reads it. A missing file is only an
// error when explicit names it. It returns the file used, if any.
func configureViper(v *viper.Viper, explicit string) (string, error) {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		dir := config.DefaultConfigDir()
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve config directory: %w", err)
			}
			dir = home
		}
		v.AddConfigPath(dir)
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	config.SetDefaults(v)
	if err := config.BindEnv(v); err != nil {
		return "", err
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		return v.ConfigFileUsed(), nil
	case stderrors.As(err, &notFound) && explicit == "":
		return "", nil
	default:
		return "", err
	}
}

// loadConfig decodes the merged settings for the current command.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

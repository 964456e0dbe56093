package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if handlers.CurrentVersion() == "" {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", handlers.CurrentVersion()))
		log.Info("✅ Version information available")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration failed to load", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.NewConfigInvalidError(err.Error()))
			return
		}
		log.Info("✅ Configuration valid")

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitFileNotFound, "Store unavailable", err)
			return
		}
		_ = db.Close()
		log.Info("✅ Store opens and migrates")

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

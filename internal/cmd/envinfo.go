package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are shown as (set) or (not set).",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		build := handlers.BuildReport()

		log.Info("=== livetrack Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + build.Version)
		log.Info("  Commit:     " + build.Commit)
		log.Info("  Built:      " + build.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+build.Gofulmen, zap.String("gofulmen_version", build.Gofulmen))
		log.Info("  Crucible:   "+build.Crucible, zap.String("crucible_version", build.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Reconciler:")
		log.Info("  Poll Interval:       " + cfg.PollInterval.String())
		log.Info("  Min Update Interval: " + cfg.MinUpdateInterval.String())
		log.Info("  Settle Delay:        " + cfg.SettleDelay.String())
		log.Info("  Snapshot Source:     " + cfg.Snapshot.Source)
		if cfg.Snapshot.Source == "file" {
			log.Info("  Snapshot File:       " + cfg.Snapshot.File)
		}
		log.Info("")

		log.Info("Backend:")
		log.Info("  URL:        " + redactURL(cfg.Backend.URL))
		log.Info("  Credential: " + secretStatus(cfg.Backend.Credential))
		log.Info(fmt.Sprintf("  Columns:    %s / %s / %s", cfg.Backend.IdentityColumn, cfg.Backend.ActiveColumn, cfg.Backend.LinkColumn))
		log.Info("  Timeout:    " + cfg.Backend.Timeout.String())
		log.Info("")

		log.Info("Configuration:")
		log.Info("  Server:         "+fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), zap.String("host", cfg.Server.Host), zap.Int("port", cfg.Server.Port))
		log.Info("  Control Token:  " + secretStatus(cfg.Server.ControlToken))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			log.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func secretStatus(value string) string {
	if strings.TrimSpace(value) != "" {
		return "(set)"
	}
	return "(not set)"
}

// redactURL drops the query string and any userinfo.
func redactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "(not set)"
	}
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw = raw[:idx]
	}
	if scheme := strings.Index(raw, "://"); scheme >= 0 {
		rest := raw[scheme+3:]
		if at := strings.IndexByte(rest, '@'); at >= 0 && at < strings.IndexByte(rest+"/", '/') {
			raw = raw[:scheme+3] + rest[at+1:]
		}
	}
	return raw
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

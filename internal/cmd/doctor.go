package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/core/store"
	"github.com/livetrack/livetrack/internal/observability"
)

var doctorSkipBackend bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on configuration, the local store and the backend, and suggest fixes for common issues.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		log := observability.CLILogger

		log.Info("=== " + config.AppName + " doctor ===")
		log.Info("")

		allChecks := true
		totalChecks := 6

		// Check 1: Go version and SSOT libraries
		version := crucible.GetVersion()
		goVersion := runtime.Version()
		log.Info(fmt.Sprintf("[1/%d] Runtime... ✅ %s (gofulmen %s, crucible %s)", totalChecks, goVersion, version.Gofulmen, version.Crucible),
			zap.String("go_version", goVersion))

		// Check 2: Config file
		configPath := config.DefaultConfigPath()
		switch {
		case configPath == "":
			log.Warn(fmt.Sprintf("[2/%d] Config file... ⚠️  cannot resolve config directory", totalChecks))
		case fileExists(configPath):
			log.Info(fmt.Sprintf("[2/%d] Config file... ✅ %s", totalChecks, configPath), zap.String("config_file", configPath))
		default:
			log.Info(fmt.Sprintf("[2/%d] Config file... ℹ️  %s not found (run '%s doctor init')", totalChecks, configPath, config.AppName))
		}

		// Check 3: Effective settings
		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			log.Error(fmt.Sprintf("[3/%d] Settings... ❌ cannot load", totalChecks), zap.Error(cfgErr))
			allChecks = false
		} else if err := cfg.Validate(); err != nil {
			log.Error(fmt.Sprintf("[3/%d] Settings... ❌ %v", totalChecks, err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[3/%d] Settings... ✅ poll %s, min interval %s, settle %s, source %s",
				totalChecks, cfg.PollInterval, cfg.MinUpdateInterval, cfg.SettleDelay, cfg.Snapshot.Source))
		}

		// Check 4: Store
		if cfgErr != nil {
			log.Warn(fmt.Sprintf("[4/%d] Store... ⚠️  skipped (config not loaded)", totalChecks))
		} else if db, err := openStore(ctx, cfg); err != nil {
			log.Error(fmt.Sprintf("[4/%d] Store... ❌ cannot open", totalChecks), zap.Error(err))
			allChecks = false
		} else {
			ledgerSize, _ := db.CountLedger(ctx, store.LedgerQuery{All: true})
			schema, _ := db.Version(ctx)
			log.Info(fmt.Sprintf("[4/%d] Store... ✅ %s (schema v%d, %d ledger entries)", totalChecks, describeStore(cfg.Store), schema, ledgerSize))
			_ = db.Close()
		}

		// Check 5: Snapshot source
		if cfgErr != nil {
			log.Warn(fmt.Sprintf("[5/%d] Snapshot source... ⚠️  skipped (config not loaded)", totalChecks))
		} else if cfg.Snapshot.Source == "file" {
			if info, err := os.Stat(cfg.Snapshot.File); err != nil {
				log.Warn(fmt.Sprintf("[5/%d] Snapshot source... ⚠️  %s not readable", totalChecks, cfg.Snapshot.File), zap.Error(err))
				allChecks = false
			} else {
				log.Info(fmt.Sprintf("[5/%d] Snapshot source... ✅ file %s (modified %s)", totalChecks, cfg.Snapshot.File, formatTimeAgo(info.ModTime())))
			}
		} else {
			log.Info(fmt.Sprintf("[5/%d] Snapshot source... ✅ push (POST /v1/snapshot)", totalChecks))
		}

		// Check 6: Backend
		switch {
		case doctorSkipBackend:
			log.Info(fmt.Sprintf("[6/%d] Backend... ℹ️  skipped", totalChecks))
		case cfgErr != nil:
			log.Warn(fmt.Sprintf("[6/%d] Backend... ⚠️  skipped (config not loaded)", totalChecks))
		case cfg.Backend.Validate() != nil:
			log.Error(fmt.Sprintf("[6/%d] Backend... ❌ %v", totalChecks, cfg.Backend.Validate()))
			allChecks = false
		default:
			if !checkBackend(ctx, cfg.Backend, fmt.Sprintf("[6/%d]", totalChecks)) {
				allChecks = false
			}
		}

		log.Info("")
		if allChecks {
			log.Info("✅ All checks passed!")
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("=== End Diagnostics ===")
		return nil
	},
}

func checkBackend(ctx context.Context, cfg config.BackendConfig, prefix string) bool {
	log := observability.CLILogger
	writer, err := newBackendWriter(cfg)
	if err != nil {
		log.Error(prefix+" Backend... ❌ client setup failed", zap.Error(err))
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, problem, err := writer.Probe(probeCtx)
	switch {
	case err != nil:
		log.Error(prefix+" Backend... ❌ unreachable", zap.Error(err))
		return false
	case problem != "":
		log.Error(fmt.Sprintf("%s Backend... ❌ HTTP %d", prefix, status), zap.String("detail", problem))
		if status == 401 || status == 403 {
			log.Info("       Check backend.credential (LIVETRACK_BACKEND_KEY).")
		} else {
			log.Info("       Check backend.url and backend.identity_column.")
		}
		return false
	default:
		log.Info(fmt.Sprintf("%s Backend... ✅ HTTP %d", prefix, status))
		return true
	}
}

func describeStore(cfg config.StoreConfig) string {
	if strings.TrimSpace(cfg.URL) != "" {
		return cfg.URL + " (remote)"
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		absPath = cfg.Path
	}
	if info, err := os.Stat(absPath); err == nil {
		return fmt.Sprintf("%s (%s)", absPath, formatFileSize(info.Size()))
	}
	return absPath
}

var doctorInitForce bool
var doctorInitCredential string

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		credential := strings.TrimSpace(doctorInitCredential)
		if strings.EqualFold(credential, "prompt") {
			value, err := promptForValue("Enter backend service key (leave blank to skip): ")
			if err != nil {
				return err
			}
			credential = value
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if credential != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(credential)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		observability.CLILogger.Info("Config is valid", zap.String("path", config.DefaultConfigPath()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorCmd.Flags().BoolVar(&doctorSkipBackend, "skip-backend", false, "do not contact the backend")
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitCredential, "credential", "", "set the backend credential or use 'prompt' to enter")
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// formatTimeAgo returns a human-readable relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d mins ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}

func buildInitConfig(credential string) string {
	lines := []string{
		"# " + config.AppName + " config - created by '" + config.AppName + " doctor init'",
		"poll_interval: 3s",
		"min_update_interval: 12s",
		"settle_delay: 800ms",
		"backend:",
		"  url: https://<project>.supabase.co/rest/v1/insta_links",
	}
	if credential != "" {
		lines = append(lines, fmt.Sprintf("  credential: %q", credential))
	} else {
		lines = append(lines, "  # credential: \"\"  # or set LIVETRACK_BACKEND_KEY")
	}
	lines = append(lines,
		"  identity_column: username",
		"  active_column: is_live",
		"  link_column: link",
		"snapshot:",
		"  source: push",
		"store:",
		"  persist_ledger: true",
		"  journal: true",
	)
	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(prompt string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

var (
	versionExtended bool
	versionJSON     bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, toolchain and library versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := handlers.BuildReport()
		out := cmd.OutOrStdout()

		if versionJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		if _, err := fmt.Fprintf(out, "%s %s\n", config.AppName, report.Version); err != nil {
			return err
		}
		if !versionExtended {
			return nil
		}
		_, err := fmt.Fprintf(out, "Commit: %s\nBuilt: %s\nGo: %s (%s)\n\nGofulmen: %s\nCrucible: %s\n",
			report.Commit, report.BuildDate, report.GoVersion, report.Platform, report.Gofulmen, report.Crucible)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&versionExtended, "extended", "e", false, "show commit, toolchain and library versions")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print the /version document as JSON")
}

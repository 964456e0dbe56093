package cmd

import (
	"github.com/spf13/cobra"

	"github.com/livetrack/livetrack/internal/core/snapshot"
	"github.com/livetrack/livetrack/internal/output"
)

var extractLabelsFile string

var extractCmd = &cobra.Command{
	Use:   "extract [label...]",
	Short: "Show which identities the label extractor accepts",
	Long: `Run accessibility labels such as "Story by alice" or "bob's story"
through the identity extractor.

  livetrack extract "Story by alice" "bob's story"
  livetrack extract --labels-file labels.txt
  pbpaste | livetrack extract --labels-file -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		labels, err := resolveLabels(args, extractLabelsFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		results := make([]output.Extraction, 0, len(labels))
		for _, label := range labels {
			id, ok := snapshot.ExtractIdentity(label)
			results = append(results, output.Extraction{Label: label, Identity: id, OK: ok})
		}
		return writeView(cmd, "extract", output.ExtractionView(results))
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractLabelsFile, "labels-file", "", "read labels from a file, one per line (- for stdin)")
	addOutputFlags(extractCmd)
	rootCmd.AddCommand(extractCmd)
}

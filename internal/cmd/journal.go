package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/store"
	"github.com/livetrack/livetrack/internal/output"
)

var (
	journalIdentity  string
	journalSince     time.Duration
	journalLimit     int
	journalOlderThan time.Duration
	journalFailed    bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded write outcomes",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent write outcomes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.JournalQuery{
			Identity: strings.TrimPrefix(strings.TrimSpace(journalIdentity), "@"),
			Limit:    journalLimit,
		}
		if journalSince > 0 {
			query.Since = time.Now().Add(-journalSince)
		}

		entries, err := db.ListJournal(cmd.Context(), query)
		if err != nil {
			return err
		}
		if journalFailed {
			entries = failedOutcomes(entries)
		}
		return writeView(cmd, "journal.list", output.JournalView(entries))
	},
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal entries older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if journalOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().Add(-journalOlderThan)
		deleted, err := db.PruneJournal(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		return writeView(cmd, "journal.prune", output.Tabular{
			Header: []string{"Cutoff (UTC)", "Deleted"},
			Rows:   [][]string{{cutoff.UTC().Format(time.RFC3339), strconv.FormatInt(deleted, 10)}},
			Raw: map[string]any{
				"cutoff":  cutoff.UTC(),
				"deleted": deleted,
			},
		})
	},
}

// failedOutcomes filters entries down to outcomes that did not land.
func failedOutcomes(entries []store.JournalEntry) []store.JournalEntry {
	var failed []store.JournalEntry
	for _, entry := range entries {
		if entry.Outcome.Kind == core.OutcomeFailed {
			failed = append(failed, entry)
		}
	}
	return failed
}

func init() {
	journalListCmd.Flags().StringVar(&journalIdentity, "identity", "", "Only show outcomes for this identity")
	journalListCmd.Flags().DurationVar(&journalSince, "since", 0, "Only show outcomes newer than this (e.g. 1h)")
	journalListCmd.Flags().IntVar(&journalLimit, "limit", store.DefaultJournalLimit, "Maximum entries to show")
	journalListCmd.Flags().BoolVar(&journalFailed, "failed", false, "Only show failed writes")
	addOutputFlags(journalListCmd)

	journalPruneCmd.Flags().DurationVar(&journalOlderThan, "older-than", 0, "Delete entries finished before now minus this duration")
	addOutputFlags(journalPruneCmd)

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalPruneCmd)
	rootCmd.AddCommand(journalCmd)
}

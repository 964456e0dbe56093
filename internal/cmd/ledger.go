package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetrack/livetrack/internal/core/store"
	"github.com/livetrack/livetrack/internal/output"
)

var (
	ledgerAll       bool
	ledgerIdentity  string
	ledgerPrefix    string
	ledgerOlderThan time.Duration
	ledgerYes       bool
	ledgerDryRun    bool
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the persisted rate ledger",
	Long: `The rate ledger holds the last write attempt per identity. An identity
is not written again until min_update_interval has passed since that attempt.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rate ledger entries and their remaining windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := ledgerQuery()
		if query.Validate() != nil {
			query.All = true
		}

		entries, err := db.ListLedger(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeView(cmd, "ledger.list", output.LedgerView(entries, cfg.MinUpdateInterval, time.Now()))
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete rate ledger entries so identities can be written immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ledgerQuery()
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !ledgerYes && !ledgerDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountLedger(cmd.Context(), query)
		if err != nil {
			return err
		}

		var deleted int64
		if !ledgerDryRun {
			deleted, err = db.ResetLedger(cmd.Context(), query)
			if err != nil {
				return err
			}
		}
		return writeView(cmd, "ledger.reset", ledgerResetView(matched, deleted, ledgerDryRun))
	},
}

func ledgerQuery() store.LedgerQuery {
	query := store.LedgerQuery{
		All:      ledgerAll,
		Identity: strings.TrimPrefix(strings.TrimSpace(ledgerIdentity), "@"),
		Prefix:   strings.TrimSpace(ledgerPrefix),
	}
	if ledgerOlderThan > 0 {
		query.Before = time.Now().Add(-ledgerOlderThan)
	}
	return query
}

func ledgerResetView(matched int, deleted int64, dryRun bool) output.Tabular {
	footer := fmt.Sprintf("Deleted %d/%d ledger entr(ies)", deleted, matched)
	if dryRun {
		footer = fmt.Sprintf("Would delete %d ledger entr(ies)", matched)
	}
	return output.Tabular{
		Header: []string{"Matched", "Deleted", "Dry run"},
		Rows:   [][]string{{strconv.Itoa(matched), strconv.FormatInt(deleted, 10), strconv.FormatBool(dryRun)}},
		Footer: footer,
		Raw: map[string]any{
			"matched": matched,
			"deleted": deleted,
			"dry_run": dryRun,
		},
	}
}

func init() {
	for _, c := range []*cobra.Command{ledgerListCmd, ledgerResetCmd} {
		c.Flags().BoolVar(&ledgerAll, "all", false, "Select all identities")
		c.Flags().StringVar(&ledgerIdentity, "identity", "", "Select a single identity (exact match)")
		c.Flags().StringVar(&ledgerPrefix, "prefix", "", "Select identities with matching prefix")
		c.Flags().DurationVar(&ledgerOlderThan, "older-than", 0, "Select entries whose last attempt is older than this")
		addOutputFlags(c)
	}
	ledgerResetCmd.Flags().BoolVar(&ledgerYes, "yes", false, "Confirm destructive reset")
	ledgerResetCmd.Flags().BoolVar(&ledgerDryRun, "dry-run", false, "Show what would be deleted")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerResetCmd)
	rootCmd.AddCommand(ledgerCmd)
}

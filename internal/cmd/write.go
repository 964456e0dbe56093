package cmd

import (
	"context"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/livetrack/livetrack/internal/core"
	errwrap "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/output"
)

var writeInactive bool

var writeCmd = &cobra.Command{
	Use:   "write <identity>",
	Short: "Write one live-state record to the backend",
	Long: `Write a single record through the same upsert-then-patch path the
reconciler uses. The rate ledger is not consulted.

Useful for checking backend credentials and column mapping:

  livetrack write alice            # mark @alice live
  livetrack write alice --inactive # mark @alice offline`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Backend.Validate(); err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "backend is not configured")
		}

		identity := core.Identity(strings.TrimPrefix(strings.TrimSpace(args[0]), "@"))
		if identity == "" {
			return errwrap.NewInvalidInputError("identity must not be empty")
		}

		writer, err := newBackendWriter(cfg.Backend)
		if err != nil {
			return err
		}

		outcome := writer.Write(ctx, core.NewLiveRecord(identity, !writeInactive, cfg.Backend.LinkTemplate))
		if err := writeView(cmd, "write", output.OutcomeView(outcome)); err != nil {
			return err
		}

		if envelope := errwrap.FromOutcome(outcome); envelope != nil {
			ExitWithCode(observability.CLILogger, exitCodeForOutcome(outcome), envelope.Message, envelope)
		}
		return nil
	},
}

// exitCodeForOutcome maps a failed write onto a foundry exit code.
func exitCodeForOutcome(outcome core.Outcome) foundry.ExitCode {
	switch outcome.Reason {
	case core.ReasonSchemaMismatch:
		return foundry.ExitConfigInvalid
	case core.ReasonTransport, core.ReasonServerError:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

func init() {
	writeCmd.Flags().BoolVar(&writeInactive, "inactive", false, "write the identity as not live")
	addOutputFlags(writeCmd)
	rootCmd.AddCommand(writeCmd)
}

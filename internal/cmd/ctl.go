package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/engine"
	"github.com/livetrack/livetrack/internal/core/snapshot"
	errwrap "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/output"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

var (
	ctlAddr        string
	ctlTimeout     time.Duration
	ctlResetReason string
	ctlEventLimit  int
)

// controlClient talks to the /v1 API of a running daemon.
type controlClient struct {
	base   *url.URL
	token  string
	client *http.Client
}

func newControlClient() (*controlClient, error) {
	addr := strings.TrimSpace(ctlAddr)
	if addr == "" {
		addr = fmt.Sprintf("http://%s:%d", viper.GetString("server.host"), viper.GetInt("server.port"))
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, errwrap.NewInvalidInputError(fmt.Sprintf("invalid --addr %q: %v", addr, err))
	}
	return &controlClient{
		base:   base,
		token:  viper.GetString("server.control_token"),
		client: &http.Client{Timeout: ctlTimeout},
	}, nil
}

// do sends body (if any) as JSON and decodes a 2xx response into out.
func (c *controlClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	target := c.base.JoinPath(path)
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errwrap.WrapServiceUnavailable(ctx, err, fmt.Sprintf("daemon unreachable at %s", c.base))
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errwrap.HTTPErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Code != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running reconciler over its HTTP API",
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reconciler status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		var status engine.Status
		if err := client.do(cmd.Context(), http.MethodGet, "/v1/status", nil, nil, &status); err != nil {
			return err
		}
		return writeView(cmd, "status", output.StatusView(status))
	},
}

var ctlPushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Push a snapshot document (JSON or YAML) to the daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := snapshot.ReadDocument(args[0])
		if err != nil {
			return err
		}
		client, err := newControlClient()
		if err != nil {
			return err
		}
		var resp handlers.SnapshotResponse
		if err := client.do(cmd.Context(), http.MethodPost, "/v1/snapshot", nil, doc, &resp); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Accepted: %d observed, %d rejected\n", resp.Observed, len(resp.Rejected))
		return err
	},
}

var ctlTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one tick now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		var report engine.TickReport
		if err := client.do(cmd.Context(), http.MethodPost, "/v1/tick", nil, nil, &report); err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(tickSummary(report), "\n"), 0))
		return err
	},
}

func tickSummary(report engine.TickReport) []string {
	lines := []string{
		fmt.Sprintf("Tick: %s", report.Result()),
		fmt.Sprintf("Observed: %d", report.Observed),
	}
	if report.Err != "" {
		return append(lines, "Error: "+report.Err)
	}
	lines = append(lines,
		"Entered: "+joinIdentities(report.Batch.Entered),
		"Exited: "+joinIdentities(report.Batch.Exited),
		fmt.Sprintf("Dispatched: %d", len(report.Dispatched)),
		"Rate-limited: "+joinIdentities(report.Skipped),
	)
	return lines
}

func joinIdentities(ids []core.Identity) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "@" + string(id)
	}
	return strings.Join(parts, ", ")
}

var ctlResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the observed set and pause for the settle delay",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		body := handlers.ResetRequest{Reason: ctlResetReason}
		if err := client.do(cmd.Context(), http.MethodPost, "/v1/reset", nil, body, nil); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "Reset accepted")
		return err
	},
}

var ctlEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent reconciler events",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		query := url.Values{}
		if ctlEventLimit > 0 {
			query.Set("limit", fmt.Sprint(ctlEventLimit))
		}
		var resp handlers.EventsResponse
		if err := client.do(cmd.Context(), http.MethodGet, "/v1/events", query, nil, &resp); err != nil {
			return err
		}
		return writeView(cmd, "events", output.EventsView(resp.Events))
	},
}

var ctlLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the daemon's in-memory rate ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newControlClient()
		if err != nil {
			return err
		}
		var resp handlers.LedgerResponse
		if err := client.do(cmd.Context(), http.MethodGet, "/v1/ledger", nil, nil, &resp); err != nil {
			return err
		}
		interval, err := time.ParseDuration(resp.MinInterval)
		if err != nil {
			interval = engine.DefaultMinInterval
		}
		return writeView(cmd, "ledger", output.LedgerView(resp.Entries, interval, time.Now()))
	},
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlAddr, "addr", "", "daemon address (default http://<server.host>:<server.port>)")
	ctlCmd.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 10*time.Second, "request timeout")

	ctlResetCmd.Flags().StringVar(&ctlResetReason, "reason", "", "reason recorded in the reset event")
	ctlEventsCmd.Flags().IntVar(&ctlEventLimit, "limit", 0, "maximum events to show")

	for _, c := range []*cobra.Command{ctlStatusCmd, ctlEventsCmd, ctlLedgerCmd} {
		addOutputFlags(c)
	}

	ctlCmd.AddCommand(ctlStatusCmd, ctlPushCmd, ctlTickCmd, ctlResetCmd, ctlEventsCmd, ctlLedgerCmd)
	rootCmd.AddCommand(ctlCmd)
}

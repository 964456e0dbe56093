package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/engine"
	"github.com/livetrack/livetrack/internal/core/snapshot"
	errwrap "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/output"
)

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(stderrors.New("plain")))
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(errwrap.NewConfigInvalidError("bad")))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(errwrap.NewServiceUnavailableError("down")))
	assert.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(errwrap.NewNotFoundError("gone")))
}

func TestExitCodeForWrappedEnvelope(t *testing.T) {
	wrapped := fmt.Errorf("serve: %w", errwrap.NewSchemaMismatchError("column missing"))
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(wrapped))
}

func TestExitWithCodeWritesFatalWithoutLogger(t *testing.T) {
	var out bytes.Buffer
	var exited int
	prevExit, prevOut := osExit, fatalOut
	t.Cleanup(func() { osExit, fatalOut = prevExit, prevOut })
	osExit = func(code int) { exited = code }
	fatalOut = &out

	ExitWithCodeStderr(foundry.ExitConfigInvalid, "Invalid configuration", errwrap.NewConfigInvalidError("poll_interval must be positive"))

	assert.Equal(t, int(foundry.ExitConfigInvalid), exited)
	assert.Contains(t, out.String(), "FATAL: Invalid configuration [CONFIG_INVALID]: poll_interval must be positive")
	assert.Contains(t, out.String(), "Exit Code:")
}

func TestExitCodeForOutcome(t *testing.T) {
	assert.Equal(t, foundry.ExitConfigInvalid, exitCodeForOutcome(core.Outcome{Reason: core.ReasonSchemaMismatch}))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, exitCodeForOutcome(core.Outcome{Reason: core.ReasonTransport}))
	assert.Equal(t, foundry.ExitFailure, exitCodeForOutcome(core.Outcome{Reason: core.ReasonConflictFallback}))
}

func newViewCommand() (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test"}
	addOutputFlags(cmd)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	return cmd, buf
}

func TestWriteViewStdout(t *testing.T) {
	cmd, buf := newViewCommand()
	require.NoError(t, cmd.Flags().Set("output-format", "json"))

	view := output.ExtractionView([]output.Extraction{{Label: "Story by alice", Identity: "alice", OK: true}})
	require.NoError(t, writeView(cmd, "extract", view))

	var decoded []output.Extraction
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, core.Identity("alice"), decoded[0].Identity)
}

func TestWriteViewOutDir(t *testing.T) {
	cmd, buf := newViewCommand()
	dir := t.TempDir()
	require.NoError(t, cmd.Flags().Set("output-format", "markdown"))
	require.NoError(t, cmd.Flags().Set("out-dir", dir))

	require.NoError(t, writeView(cmd, "ledger.list", output.LedgerView(nil, 12*time.Second, time.Now())))
	require.Empty(t, buf.String())

	data, err := os.ReadFile(filepath.Join(dir, "ledger.list.md"))
	require.NoError(t, err)
	require.Contains(t, string(data), "## Rate ledger")
}

func TestWriteViewRejectsConflictingTargets(t *testing.T) {
	cmd, _ := newViewCommand()
	require.NoError(t, cmd.Flags().Set("out", "a.txt"))
	require.NoError(t, cmd.Flags().Set("out-dir", "dir"))
	require.Error(t, writeView(cmd, "x", output.Tabular{}))
}

func TestWriteViewOutFileReplacesContents(t *testing.T) {
	cmd, buf := newViewCommand()
	path := filepath.Join(t.TempDir(), "reports", "status.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
	require.NoError(t, cmd.Flags().Set("output-format", "json"))
	require.NoError(t, cmd.Flags().Set("out", path))

	view := output.ExtractionView([]output.Extraction{{Label: "bob", Identity: "bob", OK: true}})
	require.NoError(t, writeView(cmd, "extract", view))
	require.Empty(t, buf.String())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "stale")
	require.Contains(t, string(data), `"bob"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLedgerResetView(t *testing.T) {
	dry := ledgerResetView(3, 0, true)
	require.Equal(t, "Would delete 3 ledger entr(ies)", dry.Footer)

	done := ledgerResetView(3, 2, false)
	require.Equal(t, "Deleted 2/3 ledger entr(ies)", done.Footer)
	require.Equal(t, []string{"3", "2", "false"}, done.Rows[0])
}

func TestRedactURL(t *testing.T) {
	require.Equal(t, "(not set)", redactURL(""))
	require.Equal(t, "https://x.supabase.co/rest/v1/insta_links", redactURL("https://x.supabase.co/rest/v1/insta_links?apikey=secret"))
	require.Equal(t, "https://host/rest", redactURL("https://user:pw@host/rest"))
}

func TestBuildInitConfig(t *testing.T) {
	withKey := buildInitConfig("service-key")
	require.Contains(t, withKey, `credential: "service-key"`)
	require.Contains(t, withKey, "min_update_interval: 12s")

	require.Contains(t, buildInitConfig(""), "LIVETRACK_BACKEND_KEY")
}

func TestControlClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/status", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(engine.Status{Ticks: 7, PollEvery: "3s"})
	}))
	t.Cleanup(srv.Close)

	client := controlClientFor(t, srv.URL, "token-1")
	var status engine.Status
	require.NoError(t, client.do(context.Background(), http.MethodGet, "/v1/status", nil, nil, &status))
	require.Equal(t, uint64(7), status.Ticks)
}

func TestControlClientSurfacesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errwrap.RespondWithError(w, r, errwrap.NewUnauthorizedError("control token required"))
	}))
	t.Cleanup(srv.Close)

	client := controlClientFor(t, srv.URL, "")
	err := client.do(context.Background(), http.MethodPost, "/v1/tick", nil, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "control token required")
	require.Contains(t, err.Error(), "UNAUTHORIZED")
}

func controlClientFor(t *testing.T, addr, token string) *controlClient {
	t.Helper()
	original := ctlAddr
	ctlAddr = addr
	t.Cleanup(func() { ctlAddr = original })

	client, err := newControlClient()
	require.NoError(t, err)
	client.token = token
	return client
}

func TestTickSummary(t *testing.T) {
	lines := tickSummary(engine.TickReport{
		Observed: 2,
		Batch: core.TransitionBatch{
			Entered: []core.Identity{"alice", "bob"},
			Exited:  []core.Identity{},
		},
		Dispatched: []core.LiveRecord{{Identity: "alice", IsActive: true}},
		Skipped:    []core.Identity{"bob"},
	})
	assert.Equal(t, []string{
		"Tick: ok",
		"Observed: 2",
		"Entered: @alice, @bob",
		"Exited: -",
		"Dispatched: 1",
		"Rate-limited: @bob",
	}, lines)

	failed := tickSummary(engine.TickReport{Err: "no snapshot pushed yet"})
	assert.Equal(t, []string{"Tick: error", "Observed: 0", "Error: no snapshot pushed yet"}, failed)
}

func TestConfigureViperReadsExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livetrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: 5s\nsettle_delay: 1s\n"), 0600))

	v := viper.New()
	used, err := configureViper(v, path)
	require.NoError(t, err)
	require.Equal(t, path, used)

	cfg, err := config.Load(v)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
	require.Equal(t, time.Second, cfg.SettleDelay)
	require.Equal(t, 12*time.Second, cfg.MinUpdateInterval)
}

func TestConfigureViperMissingExplicitFile(t *testing.T) {
	_, err := configureViper(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestResetOnReloadClearsObservedSetOnly(t *testing.T) {
	source := snapshot.NewPushSource(0)
	source.Push(core.Snapshot{Identities: core.NewObservedSet("alice")})
	rec := engine.New(engine.Options{
		Source: source,
		Writer: engine.WriterFunc(func(ctx context.Context, record core.LiveRecord) core.Outcome {
			return core.Outcome{Record: record, Kind: core.OutcomeWritten, Via: core.ViaUpsert}
		}),
		SettleDelay: time.Minute,
	})

	_, err := rec.Tick(context.Background())
	require.NoError(t, err)
	rec.Wait()
	require.Equal(t, []core.Identity{"alice"}, rec.Status().Observed)

	require.NoError(t, resetOnReload(rec)(context.Background()))

	status := rec.Status()
	assert.Empty(t, status.Observed)
	assert.NotNil(t, status.ResumeAt)
	assert.Equal(t, 1, status.LedgerSize)
}

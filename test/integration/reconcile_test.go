package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/backend"
	"github.com/livetrack/livetrack/internal/core/engine"
	"github.com/livetrack/livetrack/internal/core/events"
	"github.com/livetrack/livetrack/internal/core/snapshot"
	"github.com/livetrack/livetrack/internal/server"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

// postgrest records upsert rows and answers 201, or 409 for identities
// listed in conflicts so the PATCH fallback runs.
type postgrest struct {
	mu        sync.Mutex
	rows      []map[string]any
	patches   []string
	conflicts map[string]bool
}

func (p *postgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodPost:
		var rows []map[string]any
		if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"PGRST102","message":"bad payload"}`))
			return
		}
		if p.conflicts[rows[0]["username"].(string)] {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
			return
		}
		p.rows = append(p.rows, rows[0])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	case http.MethodPatch:
		p.patches = append(p.patches, r.URL.Query().Get("username"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[" + string(body) + "]"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (p *postgrest) upserted() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.rows...)
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type reconcileFixture struct {
	clock      *stepClock
	backend    *postgrest
	reconciler *engine.Reconciler
	recent     *events.RecentSink
	url        string
	client     *http.Client
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		clock:   &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		backend: &postgrest{conflicts: map[string]bool{}},
		recent:  events.NewRecentSink(32),
	}

	backendServer, backendClient := startHandler(t, f.backend)
	push := snapshot.NewPushSource(0)
	push.Clock = f.clock.Now

	f.reconciler = engine.New(engine.Options{
		Source: push,
		Writer: &backend.Writer{
			CollectionURL: backendServer.URL + "/rest/v1/insta_links",
			Credential:    "service-key",
			Columns:       backend.DefaultColumns,
			Client:        backendClient,
		},
		Limiter:      engine.NewRateLimiter(12 * time.Second),
		Sink:         f.recent,
		LinkTemplate: "https://instagram.com/{identity}",
		SettleDelay:  800 * time.Millisecond,
		Clock:        f.clock.Now,
	})

	ts, client := newTestServer(t, server.Options{
		Control: &handlers.ControlHandler{
			Reconciler: f.reconciler,
			Snapshots:  push,
			Feed:       f.recent,
		},
	})
	f.url = ts.URL
	f.client = client
	return f
}

func (f *reconcileFixture) post(t *testing.T, path string, body any, out any) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, f.url+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck // test cleanup
	require.Less(t, resp.StatusCode, 300, "POST %s returned %d", path, resp.StatusCode)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func (f *reconcileFixture) tick(t *testing.T) engine.TickReport {
	t.Helper()
	var report engine.TickReport
	f.post(t, "/v1/tick", nil, &report)
	f.reconciler.Wait()
	return report
}

func TestReconcileOverControlAPI(t *testing.T) {
	f := newReconcileFixture(t)

	var accepted handlers.SnapshotResponse
	f.post(t, "/v1/snapshot", snapshot.Document{
		Page:   "feed",
		Labels: []string{"Story by alice, seen", "bob's story", "   "},
	}, &accepted)
	assert.Equal(t, 2, accepted.Observed)
	assert.Len(t, accepted.Rejected, 1)

	report := f.tick(t)
	assert.Equal(t, "ok", report.Result())
	assert.ElementsMatch(t, []core.Identity{"alice", "bob"}, report.Batch.Entered)
	assert.Len(t, report.Dispatched, 2)

	rows := f.backend.upserted()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, true, row["is_live"])
		assert.Equal(t, "https://instagram.com/"+row["username"].(string), row["link"])
	}

	// alice leaves within the 12s window: the transition is dropped.
	f.clock.Advance(3 * time.Second)
	f.post(t, "/v1/snapshot", snapshot.Document{Page: "feed", Identities: []string{"bob"}}, nil)
	report = f.tick(t)
	assert.Equal(t, []core.Identity{"alice"}, report.Batch.Exited)
	assert.Equal(t, []core.Identity{"alice"}, report.Skipped)
	assert.Len(t, f.backend.upserted(), 2)

	// Once the window has passed, bob's exit goes through.
	f.clock.Advance(12 * time.Second)
	f.post(t, "/v1/snapshot", snapshot.Document{Page: "feed"}, nil)
	report = f.tick(t)
	assert.Equal(t, []core.Identity{"bob"}, report.Batch.Exited)
	rows = f.backend.upserted()
	require.Len(t, rows, 3)
	assert.Equal(t, "bob", rows[2]["username"])
	assert.Equal(t, false, rows[2]["is_live"])

	status := f.reconciler.Status()
	assert.Equal(t, int64(3), status.Written)
	assert.Equal(t, int64(1), status.Skipped)
	assert.Empty(t, status.Observed)
}

func TestReconcileConflictFallsBackToPatch(t *testing.T) {
	f := newReconcileFixture(t)
	f.backend.conflicts["carol"] = true

	f.post(t, "/v1/snapshot", snapshot.Document{Identities: []string{"carol"}}, nil)
	report := f.tick(t)
	require.Len(t, report.Dispatched, 1)

	f.backend.mu.Lock()
	patches := append([]string(nil), f.backend.patches...)
	f.backend.mu.Unlock()
	assert.Equal(t, []string{"eq.carol"}, patches)
	assert.Equal(t, int64(1), f.reconciler.Status().Written)
}

func TestReconcileResetSettlesBeforeNextDiff(t *testing.T) {
	f := newReconcileFixture(t)

	f.post(t, "/v1/snapshot", snapshot.Document{Page: "feed", Identities: []string{"dave"}}, nil)
	f.tick(t)

	f.post(t, "/v1/reset", handlers.ResetRequest{Reason: "operator"}, nil)

	f.clock.Advance(500 * time.Millisecond)
	report := f.tick(t)
	assert.Equal(t, "settling", report.Result())

	// After the settle delay dave is new again but still rate-limited.
	f.clock.Advance(400 * time.Millisecond)
	report = f.tick(t)
	assert.Equal(t, "ok", report.Result())
	assert.Equal(t, []core.Identity{"dave"}, report.Batch.Entered)
	assert.Equal(t, []core.Identity{"dave"}, report.Skipped)
	assert.Len(t, f.backend.upserted(), 1)
}

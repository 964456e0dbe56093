// Package backend implements the persistence writer against a PostgREST-style
// collection: a merge-on-duplicate bulk upsert with a partial-update fallback.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/livetrack/livetrack/internal/core"
)

const (
	preferUpsert = "resolution=merge-duplicates,return=representation"
	preferPatch  = "return=representation"

	maxBodyBytes   = 64 << 10
	maxDetailBytes = 512
)

// Columns maps LiveRecord fields onto backend column names.
type Columns struct {
	Identity string
	Active   string
	Link     string
}

// DefaultColumns matches the insta_links table layout.
var DefaultColumns = Columns{
	Identity: "username",
	Active:   "is_live",
	Link:     "link",
}

// Writer executes the upsert protocol for one LiveRecord at a time.
type Writer struct {
	// CollectionURL is the full resource URL, e.g. https://x.supabase.co/rest/v1/insta_links.
	CollectionURL string
	Credential    string
	Columns       Columns
	// OnConflict, when set, is sent as the on_conflict query parameter of the upsert.
	OnConflict string
	Client     *http.Client
	Clock      func() time.Time
}

// Write persists record. It never returns an error: every failure is folded
// into the returned Outcome. A 409 on the upsert triggers exactly one PATCH.
func (w *Writer) Write(ctx context.Context, record core.LiveRecord) core.Outcome {
	if ctx == nil {
		ctx = context.Background()
	}

	outcome := core.Outcome{
		Record:    record,
		StartedAt: w.now(),
	}
	finish := func(o core.Outcome) core.Outcome {
		o.FinishedAt = w.now()
		return o
	}

	if w == nil || strings.TrimSpace(w.CollectionURL) == "" {
		outcome.Kind = core.OutcomeFailed
		outcome.Reason = core.ReasonTransport
		outcome.Detail = "backend writer is not configured"
		return finish(outcome)
	}

	outcome.Via = core.ViaUpsert
	outcome.Attempts = 1
	status, body, err := w.upsert(ctx, record)
	if err != nil {
		outcome.Kind = core.OutcomeFailed
		outcome.Reason = core.ReasonTransport
		outcome.Detail = err.Error()
		return finish(outcome)
	}
	outcome.StatusCode = status

	if isSuccess(status) {
		outcome.Kind = core.OutcomeWritten
		return finish(outcome)
	}

	if status == http.StatusConflict {
		outcome.Via = core.ViaPatch
		outcome.Attempts = 2
		status, body, err = w.patch(ctx, record)
		if err != nil {
			outcome.Kind = core.OutcomeFailed
			outcome.Reason = core.ReasonTransport
			outcome.StatusCode = 0
			outcome.Detail = err.Error()
			return finish(outcome)
		}
		outcome.StatusCode = status
		if isSuccess(status) {
			outcome.Kind = core.OutcomeWritten
			outcome.Reason = core.ReasonConflictFallback
			return finish(outcome)
		}
		outcome.Kind = core.OutcomeFailed
		outcome.Reason = Classify(status, body)
		outcome.Detail = detail(status, body)
		return finish(outcome)
	}

	outcome.Kind = core.OutcomeFailed
	outcome.Reason = Classify(status, body)
	outcome.Detail = detail(status, body)
	return finish(outcome)
}

func (w *Writer) upsert(ctx context.Context, record core.LiveRecord) (int, []byte, error) {
	cols := w.columns()
	payload := []map[string]any{{
		cols.Identity: string(record.Identity),
		cols.Link:     record.Link,
		cols.Active:   record.IsActive,
	}}

	target, err := w.collectionURL()
	if err != nil {
		return 0, nil, err
	}
	if onConflict := strings.TrimSpace(w.OnConflict); onConflict != "" {
		query := target.Query()
		query.Set("on_conflict", onConflict)
		target.RawQuery = query.Encode()
	}

	return w.do(ctx, http.MethodPost, target.String(), preferUpsert, payload)
}

func (w *Writer) patch(ctx context.Context, record core.LiveRecord) (int, []byte, error) {
	cols := w.columns()
	payload := map[string]any{
		cols.Active: record.IsActive,
		cols.Link:   record.Link,
	}

	target, err := w.collectionURL()
	if err != nil {
		return 0, nil, err
	}
	query := target.Query()
	query.Set(cols.Identity, "eq."+string(record.Identity))
	target.RawQuery = query.Encode()

	return w.do(ctx, http.MethodPatch, target.String(), preferPatch, payload)
}

// Probe reads at most one row of the identity column. It checks the URL,
// the credential and the column mapping without writing anything.
func (w *Writer) Probe(ctx context.Context) (int, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := w.collectionURL()
	if err != nil {
		return 0, "", err
	}
	query := target.Query()
	query.Set("select", w.columns().Identity)
	query.Set("limit", "1")
	target.RawQuery = query.Encode()

	status, body, err := w.do(ctx, http.MethodGet, target.String(), "", nil)
	if err != nil {
		return 0, "", err
	}
	if isSuccess(status) {
		return status, "", nil
	}
	return status, detail(status, body), nil
}

func (w *Writer) do(ctx context.Context, method, target, prefer string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s payload: %w", method, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if credential := strings.TrimSpace(w.Credential); credential != "" {
		req.Header.Set("apikey", credential)
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := w.client().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, redact(target), err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", method, err)
	}

	return resp.StatusCode, body, nil
}

func (w *Writer) collectionURL() (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(w.CollectionURL))
	if err != nil {
		return nil, fmt.Errorf("invalid collection url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.New("collection url must be absolute")
	}
	return parsed, nil
}

func (w *Writer) columns() Columns {
	cols := w.Columns
	if strings.TrimSpace(cols.Identity) == "" {
		cols.Identity = DefaultColumns.Identity
	}
	if strings.TrimSpace(cols.Active) == "" {
		cols.Active = DefaultColumns.Active
	}
	if strings.TrimSpace(cols.Link) == "" {
		cols.Link = DefaultColumns.Link
	}
	return cols
}

func (w *Writer) client() *http.Client {
	if w != nil && w.Client != nil {
		return w.Client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (w *Writer) now() time.Time {
	if w != nil && w.Clock != nil {
		return w.Clock()
	}
	return time.Now().UTC()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func detail(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxDetailBytes {
		cut := maxDetailBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	if text == "" {
		return fmt.Sprintf("status %d", status)
	}
	return fmt.Sprintf("status %d: %s", status, text)
}

// redact drops the query string so identities and filters stay out of error text.
func redact(target string) string {
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		return target[:idx]
	}
	return target
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/engine"
	"github.com/livetrack/livetrack/internal/core/snapshot"
	apperrors "github.com/livetrack/livetrack/internal/errors"
)

// maxSnapshotBytes bounds POST /v1/snapshot bodies.
const maxSnapshotBytes = 1 << 20

// Controller is the reconciler surface exposed over HTTP.
type Controller interface {
	Status() engine.Status
	Tick(ctx context.Context) (engine.TickReport, error)
	Reset(reason string)
	LedgerEntries() []engine.LedgerEntry
}

// SnapshotReceiver accepts pushed observations.
type SnapshotReceiver interface {
	Push(core.Snapshot)
}

// EventFeed returns recent events, newest first.
type EventFeed interface {
	Recent() []core.Event
}

// ControlHandler serves the /v1 control API.
type ControlHandler struct {
	Reconciler Controller
	// Snapshots is nil when observations come from a file.
	Snapshots SnapshotReceiver
	Feed      EventFeed
}

// SnapshotResponse acknowledges a pushed snapshot.
type SnapshotResponse struct {
	Observed int      `json:"observed"`
	Rejected []string `json:"rejected,omitempty"`
}

// ResetRequest is the optional body of POST /v1/reset.
type ResetRequest struct {
	Reason string `json:"reason"`
}

// EventsResponse lists recent events.
type EventsResponse struct {
	Events []core.Event `json:"events"`
}

// LedgerResponse lists in-memory rate ledger entries.
type LedgerResponse struct {
	MinInterval string               `json:"min_update_interval"`
	Entries     []engine.LedgerEntry `json:"entries"`
}

// Status handles GET /v1/status.
func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, h.Reconciler.Status())
}

// PushSnapshot handles POST /v1/snapshot.
func (h *ControlHandler) PushSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	if h.Snapshots == nil {
		apperrors.RespondWithError(w, r, apperrors.NewConflictError("snapshot source is not push; observations are read from a file"))
		return
	}

	var doc snapshot.Document
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxSnapshotBytes))
	if err := decoder.Decode(&doc); err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "snapshot body must be a JSON document with page, identities or labels"))
		return
	}

	snap, rejected := doc.Resolve()
	h.Snapshots.Push(snap)
	writeJSON(w, http.StatusAccepted, SnapshotResponse{Observed: snap.Identities.Len(), Rejected: rejected})
}

// Tick handles POST /v1/tick.
func (h *ControlHandler) Tick(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	report, err := h.Reconciler.Tick(r.Context())
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapServiceUnavailable(r.Context(), err, "snapshot unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Reset handles POST /v1/reset.
func (h *ControlHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req ResetRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			apperrors.RespondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "reset body must be JSON"))
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "requested over HTTP"
	}
	h.Reconciler.Reset(reason)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset", "reason": reason})
}

// Events handles GET /v1/events?limit=N.
func (h *ControlHandler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	events := []core.Event{}
	if h.Feed != nil {
		events = h.Feed.Recent()
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			apperrors.RespondWithError(w, r, apperrors.NewInvalidInputError("limit must be a non-negative integer"))
			return
		}
		if limit < len(events) {
			events = events[:limit]
		}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

// Ledger handles GET /v1/ledger.
func (h *ControlHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	entries := h.Reconciler.LedgerEntries()
	if entries == nil {
		entries = []engine.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, LedgerResponse{
		MinInterval: h.Reconciler.Status().MinInterval,
		Entries:     entries,
	})
}

func (h *ControlHandler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.Reconciler == nil {
		apperrors.RespondWithError(w, r, apperrors.NewServiceUnavailableError("reconciler not running"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

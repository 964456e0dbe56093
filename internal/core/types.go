package core

import "time"

// Identity is the natural key of an observed subject (e.g. a handle).
type Identity string

// LiveRecord is the minimal durable payload written to the backend.
// It never carries timestamps; the backend owns "last updated" semantics.
type LiveRecord struct {
	Identity Identity `json:"identity"`
	IsActive bool     `json:"is_active"`
	Link     string   `json:"link"`
}

// Snapshot is one observation of the external world.
type Snapshot struct {
	// Page identifies the navigation context the snapshot was taken in.
	// Empty means the source does not report navigation.
	Page       string      `json:"page,omitempty" yaml:"page,omitempty"`
	Identities ObservedSet `json:"identities" yaml:"identities"`
}

// OutcomeKind is the terminal state of a write attempt.
type OutcomeKind string

const (
	OutcomeWritten    OutcomeKind = "written"
	OutcomeFailed     OutcomeKind = "failed"
	OutcomeSuperseded OutcomeKind = "superseded"
)

// FailureReason classifies why a write did not land (or how it landed).
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonConflictFallback FailureReason = "conflict_fallback"
	ReasonSchemaMismatch   FailureReason = "schema_mismatch"
	ReasonServerError      FailureReason = "server_error"
	ReasonTransport        FailureReason = "transport"
	ReasonRateLimited      FailureReason = "rate_limited"
)

// WritePath names the backend operation that produced an outcome.
type WritePath string

const (
	ViaUpsert WritePath = "upsert"
	ViaPatch  WritePath = "patch"
)

// Outcome reports the result of one Persistence Writer call.
type Outcome struct {
	Record     LiveRecord    `json:"record"`
	Kind       OutcomeKind   `json:"kind"`
	Reason     FailureReason `json:"reason,omitempty"`
	Via        WritePath     `json:"via,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Written reports whether the record landed in the backend.
func (o Outcome) Written() bool {
	return o.Kind == OutcomeWritten
}

// Duration returns the wall time spent on the write.
func (o Outcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() || o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// Severity is the observability level of an Event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Event is a discrete observability record emitted by the core.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Identity  Identity  `json:"identity,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
	// Skip is set when a transition was dropped before reaching the writer.
	Skip FailureReason `json:"skip,omitempty"`
}

// EventSink receives core events. Implementations must not block for long.
type EventSink interface {
	Emit(event Event)
}

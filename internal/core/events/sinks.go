// Package events fans reconciler events out to logs, metrics, the journal
// and an in-memory ring for the control API.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/core"
)

// DefaultRecentCapacity matches the activity panel size.
const DefaultRecentCapacity = 20

// MultiSink forwards every event to each non-nil sink in order.
type MultiSink []core.EventSink

// Emit implements core.EventSink.
func (m MultiSink) Emit(event core.Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(event)
		}
	}
}

// SinkFunc adapts a function to core.EventSink.
type SinkFunc func(core.Event)

// Emit implements core.EventSink.
func (f SinkFunc) Emit(event core.Event) { f(event) }

// RecentSink keeps the newest events in a bounded ring.
type RecentSink struct {
	mu       sync.RWMutex
	capacity int
	events   []core.Event
}

// NewRecentSink returns a ring holding at most capacity events.
func NewRecentSink(capacity int) *RecentSink {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentSink{capacity: capacity}
}

// Emit implements core.EventSink.
func (r *RecentSink) Emit(event core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if over := len(r.events) - r.capacity; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
}

// Recent returns the buffered events newest first.
func (r *RecentSink) Recent() []core.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Event, 0, len(r.events))
	for i := len(r.events) - 1; i >= 0; i-- {
		out = append(out, r.events[i])
	}
	return out
}

// LogSink writes events to a gofulmen logger.
type LogSink struct {
	Logger *logging.Logger
}

// Emit implements core.EventSink.
func (l LogSink) Emit(event core.Event) {
	if l.Logger == nil {
		return
	}
	fields := []zap.Field{zap.String("severity", string(event.Severity))}
	if event.Identity != "" {
		fields = append(fields, zap.String("identity", string(event.Identity)))
	}
	if o := event.Outcome; o != nil {
		fields = append(fields,
			zap.String("outcome", string(o.Kind)),
			zap.Bool("is_active", o.Record.IsActive),
			zap.Int("attempts", o.Attempts),
		)
		if o.Via != "" {
			fields = append(fields, zap.String("via", string(o.Via)))
		}
		if o.Reason != core.ReasonNone {
			fields = append(fields, zap.String("reason", string(o.Reason)))
		}
		if o.StatusCode != 0 {
			fields = append(fields, zap.Int("status_code", o.StatusCode))
		}
		if d := o.Duration(); d > 0 {
			fields = append(fields, zap.Duration("duration", d))
		}
		if o.Reason == core.ReasonSchemaMismatch {
			fields = append(fields, zap.String("hint", "check the backend column types and that the identity column is the conflict target"))
		}
	}

	switch event.Severity {
	case core.SeverityError:
		l.Logger.Error(event.Message, fields...)
	case core.SeveritySuccess:
		l.Logger.Info(event.Message, fields...)
	default:
		l.Logger.Debug(event.Message, fields...)
	}
}

// OutcomeRecorder persists write outcomes.
type OutcomeRecorder interface {
	AppendOutcome(ctx context.Context, outcome core.Outcome) error
}

// JournalSink persists outcome events. Events without an outcome are ignored.
type JournalSink struct {
	Recorder OutcomeRecorder
	Timeout  time.Duration
	// OnError reports persistence failures; it must not emit back into the
	// same sink.
	OnError func(error)
}

// Emit implements core.EventSink.
func (j JournalSink) Emit(event core.Event) {
	if j.Recorder == nil || event.Outcome == nil {
		return
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := j.Recorder.AppendOutcome(ctx, *event.Outcome); err != nil && j.OnError != nil {
		j.OnError(err)
	}
}

// MetricsHooks receives counters derived from events.
type MetricsHooks struct {
	Write func(core.Outcome)
	Skip  func(core.FailureReason)
}

// MetricsSink turns outcome and rate-limit events into metric updates.
type MetricsSink struct {
	Hooks MetricsHooks
}

// Emit implements core.EventSink.
func (m MetricsSink) Emit(event core.Event) {
	if event.Outcome != nil {
		if m.Hooks.Write != nil {
			m.Hooks.Write(*event.Outcome)
		}
		return
	}
	if event.Skip != core.ReasonNone && m.Hooks.Skip != nil {
		m.Hooks.Skip(event.Skip)
	}
}

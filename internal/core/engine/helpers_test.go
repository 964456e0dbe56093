package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/livetrack/livetrack/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedSource returns whatever snapshot was last set.
type scriptedSource struct {
	mu       sync.Mutex
	snapshot core.Snapshot
	err      error
	calls    int
}

func (s *scriptedSource) Set(ids ...core.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = core.Snapshot{Page: s.snapshot.Page, Identities: core.NewObservedSet(ids...)}
	s.err = nil
}

func (s *scriptedSource) SetPage(page string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Page = page
}

func (s *scriptedSource) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = errors.New(msg)
}

func (s *scriptedSource) Snapshot(ctx context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return core.Snapshot{}, s.err
	}
	return core.Snapshot{Page: s.snapshot.Page, Identities: s.snapshot.Identities.Clone()}, nil
}

// recordingWriter records every record and answers with a fixed kind.
type recordingWriter struct {
	mu      sync.Mutex
	records []core.LiveRecord
	kind    core.OutcomeKind
	reason  core.FailureReason
}

func (w *recordingWriter) Write(ctx context.Context, record core.LiveRecord) core.Outcome {
	w.mu.Lock()
	w.records = append(w.records, record)
	kind := w.kind
	reason := w.reason
	w.mu.Unlock()
	if kind == "" {
		kind = core.OutcomeWritten
	}
	return core.Outcome{Record: record, Kind: kind, Reason: reason, Via: core.ViaUpsert, Attempts: 1}
}

func (w *recordingWriter) Records() []core.LiveRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.LiveRecord, len(w.records))
	copy(out, w.records)
	return out
}

type collectingSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *collectingSink) Emit(event core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectingSink) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *collectingSink) OutcomeEvents() []core.Event {
	var out []core.Event
	for _, event := range s.Events() {
		if event.Outcome != nil {
			out = append(out, event)
		}
	}
	return out
}

type memoryLedger struct {
	mu       sync.Mutex
	attempts map[core.Identity]time.Time
	err      error
}

func (m *memoryLedger) RecordAttempt(ctx context.Context, identity core.Identity, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.attempts == nil {
		m.attempts = make(map[core.Identity]time.Time)
	}
	m.attempts[identity] = at
	return nil
}

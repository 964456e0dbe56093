package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livetrack/livetrack/internal/core"
)

const (
	// DefaultPollInterval is the tick period.
	DefaultPollInterval = 3 * time.Second
	// DefaultSettleDelay gives the snapshot surface time to re-render after a reset.
	DefaultSettleDelay = 800 * time.Millisecond
)

// Source yields the current snapshot. It must not block for long.
type Source interface {
	Snapshot(ctx context.Context) (core.Snapshot, error)
}

// LedgerStore persists rate ledger acquisitions so windows survive restarts.
type LedgerStore interface {
	RecordAttempt(ctx context.Context, identity core.Identity, at time.Time) error
}

// Options configures a Reconciler.
type Options struct {
	Source       Source
	Writer       Writer
	Limiter      *RateLimiter
	Sink         core.EventSink
	Ledger       LedgerStore
	LinkTemplate string
	PollInterval time.Duration
	SettleDelay  time.Duration
	Clock        func() time.Time
	// OnTick observes every tick, including settling and failed ones.
	OnTick func(TickReport)
}

// TickReport summarizes one tick.
type TickReport struct {
	At         time.Time            `json:"at"`
	Settling   bool                 `json:"settling,omitempty"`
	Reset      bool                 `json:"reset,omitempty"`
	Observed   int                  `json:"observed"`
	Batch      core.TransitionBatch `json:"batch"`
	Dispatched []core.LiveRecord    `json:"dispatched"`
	Skipped    []core.Identity      `json:"skipped"`
	Err        string               `json:"error,omitempty"`
}

// Status is a point-in-time view of the reconciler.
type Status struct {
	Page        string          `json:"page,omitempty"`
	Observed    []core.Identity `json:"observed"`
	Ticks       uint64          `json:"ticks"`
	LastTick    *time.Time      `json:"last_tick,omitempty"`
	ResumeAt    *time.Time      `json:"resume_at,omitempty"`
	Written     int64           `json:"written"`
	Failed      int64           `json:"failed"`
	Skipped     int64           `json:"skipped"`
	InFlight    int             `json:"in_flight"`
	LedgerSize  int             `json:"ledger_size"`
	PollEvery   string          `json:"poll_interval"`
	MinInterval string          `json:"min_update_interval"`
}

// Reconciler diffs successive snapshots and persists the transitions.
//
// Tick and Reset serialize on one mutex, which also guards the rate ledger,
// so the ledger is only ever touched from a single critical section. Writes
// run on the dispatcher and never touch the ledger.
type Reconciler struct {
	source       Source
	limiter      *RateLimiter
	dispatcher   *Dispatcher
	sink         core.EventSink
	ledger       LedgerStore
	linkTemplate string
	pollInterval time.Duration
	settleDelay  time.Duration
	clock        func() time.Time
	onTick       func(TickReport)

	mu       sync.Mutex
	previous core.ObservedSet
	page     string
	resumeAt time.Time
	lastTick time.Time
	ticks    uint64

	written atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// New builds a reconciler from opts.
func New(opts Options) *Reconciler {
	r := &Reconciler{
		source:       opts.Source,
		limiter:      opts.Limiter,
		sink:         opts.Sink,
		ledger:       opts.Ledger,
		linkTemplate: opts.LinkTemplate,
		pollInterval: opts.PollInterval,
		settleDelay:  opts.SettleDelay,
		clock:        opts.Clock,
		onTick:       opts.OnTick,
		previous:     core.NewObservedSet(),
	}
	if r.limiter == nil {
		r.limiter = NewRateLimiter(DefaultMinInterval)
	}
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.settleDelay < 0 {
		r.settleDelay = 0
	}
	r.dispatcher = NewDispatcher(opts.Writer, r.handleOutcome)
	r.dispatcher.clock = r.now
	return r
}

// Run ticks immediately and then every poll interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	_, _ = r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = r.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass. Errors from the source are reported as
// events and returned; the previous observed set is left untouched for them.
func (r *Reconciler) Tick(ctx context.Context) (report TickReport, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if err != nil {
			report.Err = err.Error()
		}
		if r.onTick != nil {
			r.onTick(report)
		}
	}()

	now := r.now()
	report = TickReport{
		At:         now,
		Batch:      core.TransitionBatch{Entered: []core.Identity{}, Exited: []core.Identity{}},
		Dispatched: []core.LiveRecord{},
		Skipped:    []core.Identity{},
	}

	if now.Before(r.resumeAt) {
		report.Settling = true
		report.Observed = r.previous.Len()
		return report, nil
	}

	snapshot, err := r.snapshot(ctx)
	if err != nil {
		r.emit(core.Event{
			Timestamp: now,
			Message:   fmt.Sprintf("Snapshot unavailable: %v", err),
			Severity:  core.SeverityError,
		})
		report.Observed = r.previous.Len()
		return report, err
	}

	if snapshot.Page != "" {
		if r.page != "" && snapshot.Page != r.page {
			r.page = snapshot.Page
			r.resetLocked(now, "navigation changed")
			report.Reset = true
			report.Observed = 0
			return report, nil
		}
		r.page = snapshot.Page
	}

	current := snapshot.Identities.Clone()
	report.Batch = core.Diff(r.previous, current)

	for _, id := range report.Batch.Entered {
		r.gate(ctx, id, true, now, &report)
	}
	for _, id := range report.Batch.Exited {
		r.gate(ctx, id, false, now, &report)
	}

	r.previous = current
	r.lastTick = now
	r.ticks++
	report.Observed = current.Len()
	return report, nil
}

// Result names the tick's disposition: "ok", "settling", "reset" or "error".
func (t TickReport) Result() string {
	switch {
	case t.Err != "":
		return "error"
	case t.Settling:
		return "settling"
	case t.Reset:
		return "reset"
	default:
		return "ok"
	}
}

// Reset forgets the observed set (not the rate ledger) and pauses ticking for
// the settle delay.
func (r *Reconciler) Reset(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(r.now(), reason)
}

// Wait blocks until in-flight writes have completed.
func (r *Reconciler) Wait() {
	r.dispatcher.Wait()
}

// Status returns a snapshot of reconciler state.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := Status{
		Page:        r.page,
		Observed:    r.previous.Sorted(),
		Ticks:       r.ticks,
		Written:     r.written.Load(),
		Failed:      r.failed.Load(),
		Skipped:     r.skipped.Load(),
		InFlight:    r.dispatcher.InFlight(),
		LedgerSize:  r.limiter.Len(),
		PollEvery:   r.pollInterval.String(),
		MinInterval: r.limiter.interval().String(),
	}
	if !r.lastTick.IsZero() {
		last := r.lastTick
		status.LastTick = &last
	}
	if r.now().Before(r.resumeAt) {
		resume := r.resumeAt
		status.ResumeAt = &resume
	}
	return status
}

// LedgerEntries returns a copy of the rate ledger.
func (r *Reconciler) LedgerEntries() []LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limiter.Entries()
}

// LastTick returns when the last completed tick ran.
func (r *Reconciler) LastTick() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTick
}

// PollInterval returns the configured tick period.
func (r *Reconciler) PollInterval() time.Duration {
	return r.pollInterval
}

func (r *Reconciler) gate(ctx context.Context, id core.Identity, active bool, now time.Time, report *TickReport) {
	if !r.limiter.TryAcquire(id, now) {
		r.skipped.Add(1)
		report.Skipped = append(report.Skipped, id)
		r.emit(core.Event{
			Timestamp: now,
			Message:   fmt.Sprintf("Skipped update for @%s (rate-limited, %s left)", id, r.limiter.Remaining(id, now).Round(time.Millisecond)),
			Severity:  core.SeverityInfo,
			Identity:  id,
			Skip:      core.ReasonRateLimited,
		})
		return
	}

	if r.ledger != nil {
		if err := r.ledger.RecordAttempt(ctx, id, now); err != nil {
			r.emit(core.Event{
				Timestamp: now,
				Message:   fmt.Sprintf("Ledger persistence failed for @%s: %v", id, err),
				Severity:  core.SeverityError,
				Identity:  id,
			})
		}
	}

	record := core.NewLiveRecord(id, active, r.linkTemplate)
	report.Dispatched = append(report.Dispatched, record)
	r.dispatcher.Submit(record)
}

func (r *Reconciler) resetLocked(now time.Time, reason string) {
	r.previous = core.NewObservedSet()
	r.resumeAt = now.Add(r.settleDelay)
	if reason == "" {
		reason = "reset requested"
	}
	r.emit(core.Event{
		Timestamp: now,
		Message:   fmt.Sprintf("Observed set cleared (%s), resuming in %s", reason, r.settleDelay),
		Severity:  core.SeverityInfo,
	})
}

func (r *Reconciler) snapshot(ctx context.Context) (snapshot core.Snapshot, err error) {
	if r.source == nil {
		return core.Snapshot{}, errors.New("no snapshot source configured")
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("snapshot source panic: %v", recovered)
		}
	}()
	return r.source.Snapshot(ctx)
}

func (r *Reconciler) handleOutcome(outcome core.Outcome) {
	switch outcome.Kind {
	case core.OutcomeWritten:
		r.written.Add(1)
	case core.OutcomeFailed:
		r.failed.Add(1)
	}
	r.emit(OutcomeEvent(outcome))
}

func (r *Reconciler) emit(event core.Event) {
	if r.sink != nil {
		r.sink.Emit(event)
	}
}

func (r *Reconciler) now() time.Time {
	if r.clock != nil {
		return r.clock()
	}
	return time.Now().UTC()
}

// OutcomeEvent renders the single observability event for a write outcome.
func OutcomeEvent(outcome core.Outcome) core.Event {
	id := outcome.Record.Identity
	state := "ended"
	if outcome.Record.IsActive {
		state = "live"
	}

	event := core.Event{
		Timestamp: outcome.FinishedAt,
		Identity:  id,
		Outcome:   &outcome,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	switch outcome.Kind {
	case core.OutcomeWritten:
		event.Severity = core.SeveritySuccess
		if outcome.Via == core.ViaPatch {
			event.Message = fmt.Sprintf("Patched @%s as %s after upsert conflict", id, state)
		} else {
			event.Message = fmt.Sprintf("Upserted @%s as %s", id, state)
		}
	case core.OutcomeSuperseded:
		event.Severity = core.SeverityInfo
		event.Message = fmt.Sprintf("Dropped pending %s write for @%s (superseded)", state, id)
	default:
		event.Severity = core.SeverityError
		switch outcome.Reason {
		case core.ReasonSchemaMismatch:
			event.Message = fmt.Sprintf("Schema mismatch writing @%s: backend rejects the payload shape, not retrying (%s)", id, outcome.Detail)
		case core.ReasonTransport:
			event.Message = fmt.Sprintf("Network error writing @%s via %s: %s", id, outcome.Via, outcome.Detail)
		default:
			event.Message = fmt.Sprintf("Write error @%s via %s: %s", id, outcome.Via, outcome.Detail)
		}
	}
	return event
}

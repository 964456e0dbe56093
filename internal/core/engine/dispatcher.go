package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/observability"
)

// Writer persists a single record and reports a typed outcome.
type Writer interface {
	Write(ctx context.Context, record core.LiveRecord) core.Outcome
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, record core.LiveRecord) core.Outcome

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, record core.LiveRecord) core.Outcome {
	return f(ctx, record)
}

// Dispatcher runs writes in the background without blocking the caller.
//
// Writes are serialized per identity: while a write for an identity is in
// flight, later records for it are parked and only the newest parked record
// is sent once the lane frees up. Parked records that get replaced are
// reported as superseded.
type Dispatcher struct {
	writer    Writer
	onOutcome func(core.Outcome)
	baseCtx   context.Context
	clock     func() time.Time

	mu    sync.Mutex
	lanes map[core.Identity]*lane
	wg    sync.WaitGroup

	reportPanics atomic.Int64
}

type lane struct {
	pending *core.LiveRecord
}

// NewDispatcher builds a dispatcher. onOutcome is called once per record,
// from the write goroutine.
func NewDispatcher(writer Writer, onOutcome func(core.Outcome)) *Dispatcher {
	return &Dispatcher{
		writer:    writer,
		onOutcome: onOutcome,
		baseCtx:   context.Background(),
		lanes:     make(map[core.Identity]*lane),
	}
}

// Submit schedules record for writing and returns immediately.
func (d *Dispatcher) Submit(record core.LiveRecord) {
	d.mu.Lock()
	if l, busy := d.lanes[record.Identity]; busy {
		replaced := l.pending
		next := record
		l.pending = &next
		d.mu.Unlock()
		if replaced != nil {
			now := d.now()
			d.report(core.Outcome{
				Record:     *replaced,
				Kind:       core.OutcomeSuperseded,
				Detail:     "replaced by a newer write before it was sent",
				StartedAt:  now,
				FinishedAt: now,
			})
		}
		return
	}
	d.lanes[record.Identity] = &lane{}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(record)
}

// Wait blocks until every submitted write has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// InFlight returns the number of identities with a write in progress.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

func (d *Dispatcher) run(record core.LiveRecord) {
	defer d.wg.Done()

	for {
		d.report(d.write(record))

		d.mu.Lock()
		l := d.lanes[record.Identity]
		if l == nil || l.pending == nil {
			delete(d.lanes, record.Identity)
			d.mu.Unlock()
			return
		}
		record = *l.pending
		l.pending = nil
		d.mu.Unlock()
	}
}

func (d *Dispatcher) write(record core.LiveRecord) (outcome core.Outcome) {
	started := d.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = core.Outcome{
				Record:     record,
				Kind:       core.OutcomeFailed,
				Reason:     core.ReasonTransport,
				Detail:     fmt.Sprintf("writer panic: %v", recovered),
				StartedAt:  started,
				FinishedAt: d.now(),
			}
		}
	}()

	if d.writer == nil {
		return core.Outcome{
			Record:     record,
			Kind:       core.OutcomeFailed,
			Reason:     core.ReasonTransport,
			Detail:     "no writer configured",
			StartedAt:  started,
			FinishedAt: d.now(),
		}
	}
	return d.writer.Write(d.baseCtx, record)
}

// report hands outcome to the callback. A panicking callback is logged and
// swallowed so the lane is still released.
func (d *Dispatcher) report(outcome core.Outcome) {
	if d.onOutcome == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			d.reportPanics.Add(1)
			if log := observability.Logger(); log != nil {
				log.Error("Outcome handler panicked",
					zap.String("identity", string(outcome.Record.Identity)),
					zap.String("outcome", string(outcome.Kind)),
					zap.String("panic", fmt.Sprint(recovered)))
			}
		}
	}()
	d.onOutcome(outcome)
}

// ReportPanics returns how many outcome callbacks have panicked.
func (d *Dispatcher) ReportPanics() int64 {
	return d.reportPanics.Load()
}

func (d *Dispatcher) now() time.Time {
	if d.clock != nil {
		return d.clock()
	}
	return time.Now().UTC()
}

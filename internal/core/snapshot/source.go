// Package snapshot provides the sources that feed the reconciler.
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/livetrack/livetrack/internal/core"
)

// ErrNoSnapshot is returned by a PushSource before anything has been pushed.
var ErrNoSnapshot = errors.New("no snapshot pushed yet")

// Document is the wire shape accepted by push and file sources. Labels are
// raw accessibility labels run through ExtractIdentity and merged with
// Identities.
type Document struct {
	Page       string   `json:"page,omitempty" yaml:"page,omitempty"`
	Identities []string `json:"identities,omitempty" yaml:"identities,omitempty"`
	Labels     []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Resolve turns the document into a snapshot. Rejected labels are returned
// for diagnostics.
func (d Document) Resolve() (core.Snapshot, []string) {
	set, rejected := ExtractAll(d.Labels)
	for _, raw := range d.Identities {
		for id := range core.NewObservedSet(core.Identity(raw)) {
			set[id] = struct{}{}
		}
	}
	return core.Snapshot{Page: d.Page, Identities: set}, rejected
}

// PushSource holds the most recent snapshot pushed by an external observer.
type PushSource struct {
	mu       sync.RWMutex
	current  core.Snapshot
	pushedAt time.Time
	pushes   uint64
	// MaxAge makes Snapshot fail once the last push is older than this.
	// Zero disables the check.
	MaxAge time.Duration
	Clock  func() time.Time
}

// NewPushSource returns an empty push source.
func NewPushSource(maxAge time.Duration) *PushSource {
	return &PushSource{MaxAge: maxAge}
}

// Push replaces the current snapshot.
func (p *PushSource) Push(snapshot core.Snapshot) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = core.Snapshot{Page: snapshot.Page, Identities: snapshot.Identities.Clone()}
	p.pushedAt = now
	p.pushes++
}

// Snapshot returns a copy of the last pushed snapshot.
func (p *PushSource) Snapshot(ctx context.Context) (core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return core.Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pushes == 0 {
		return core.Snapshot{}, ErrNoSnapshot
	}
	if p.MaxAge > 0 {
		if age := p.now().Sub(p.pushedAt); age > p.MaxAge {
			return core.Snapshot{}, &StaleError{Age: age, MaxAge: p.MaxAge}
		}
	}
	return core.Snapshot{Page: p.current.Page, Identities: p.current.Identities.Clone()}, nil
}

// LastPush reports when the last snapshot arrived and how many were pushed.
func (p *PushSource) LastPush() (time.Time, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pushedAt, p.pushes
}

func (p *PushSource) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

// StaleError reports a push source whose observer stopped pushing.
type StaleError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StaleError) Error() string {
	return "snapshot is stale: last push " + e.Age.Round(time.Millisecond).String() + " ago (max " + e.MaxAge.String() + ")"
}

package engine

import (
	"sort"
	"time"

	"github.com/livetrack/livetrack/internal/core"
)

// DefaultMinInterval is the minimum gap between two write attempts for one identity.
const DefaultMinInterval = 12 * time.Second

// RateLimiter is a per-identity debounce gate. It is not a token bucket: there is
// no burst allowance and nothing is queued. The ledger is updated when a write is
// acquired, so a slow or failing write still consumes its window.
//
// RateLimiter is not safe for concurrent use; the Reconciler serializes access.
type RateLimiter struct {
	MinInterval time.Duration

	ledger map[core.Identity]time.Time
}

// LedgerEntry is one identity's last attempted write instant.
type LedgerEntry struct {
	Identity    core.Identity `json:"identity"`
	LastAttempt time.Time     `json:"last_attempt"`
}

// NewRateLimiter returns a limiter with the given minimum interval.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		MinInterval: minInterval,
		ledger:      make(map[core.Identity]time.Time),
	}
}

// TryAcquire reports whether a write for identity may proceed at now. When it
// may, the attempt is recorded before returning.
func (r *RateLimiter) TryAcquire(identity core.Identity, now time.Time) bool {
	if r == nil {
		return true
	}
	if r.ledger == nil {
		r.ledger = make(map[core.Identity]time.Time)
	}

	if last, ok := r.ledger[identity]; ok && now.Sub(last) < r.interval() {
		return false
	}

	r.ledger[identity] = now
	return true
}

// Remaining returns how long identity must wait before the next acquisition.
func (r *RateLimiter) Remaining(identity core.Identity, now time.Time) time.Duration {
	if r == nil || r.ledger == nil {
		return 0
	}
	last, ok := r.ledger[identity]
	if !ok {
		return 0
	}
	wait := r.interval() - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

// Restore seeds the ledger, keeping the newest instant per identity.
func (r *RateLimiter) Restore(entries []LedgerEntry) {
	if r == nil {
		return
	}
	if r.ledger == nil {
		r.ledger = make(map[core.Identity]time.Time, len(entries))
	}
	for _, entry := range entries {
		if entry.Identity == "" || entry.LastAttempt.IsZero() {
			continue
		}
		if existing, ok := r.ledger[entry.Identity]; ok && existing.After(entry.LastAttempt) {
			continue
		}
		r.ledger[entry.Identity] = entry.LastAttempt
	}
}

// Entries returns a sorted copy of the ledger.
func (r *RateLimiter) Entries() []LedgerEntry {
	if r == nil {
		return nil
	}
	entries := make([]LedgerEntry, 0, len(r.ledger))
	for id, at := range r.ledger {
		entries = append(entries, LedgerEntry{Identity: id, LastAttempt: at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Identity < entries[j].Identity })
	return entries
}

// Len returns the number of identities ever acquired.
func (r *RateLimiter) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ledger)
}

func (r *RateLimiter) interval() time.Duration {
	if r == nil || r.MinInterval <= 0 {
		return DefaultMinInterval
	}
	return r.MinInterval
}

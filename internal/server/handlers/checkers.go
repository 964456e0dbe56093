package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DegradedError marks a check result that should degrade rather than fail
// the aggregate status.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string {
	return "degraded: " + e.Reason
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

// CheckHealth implements HealthChecker.
func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// TickFreshnessChecker reports degraded when the reconciler has not
// completed a tick within MaxAge. Before the first tick it is healthy while
// inside Grace of the start time.
type TickFreshnessChecker struct {
	LastTick func() time.Time
	MaxAge   time.Duration
	Started  time.Time
	Grace    time.Duration
	Clock    func() time.Time
}

// CheckHealth implements HealthChecker.
func (c TickFreshnessChecker) CheckHealth(ctx context.Context) error {
	if c.LastTick == nil {
		return errors.New("reconciler not wired")
	}
	now := time.Now()
	if c.Clock != nil {
		now = c.Clock()
	}
	last := c.LastTick()
	if last.IsZero() {
		if now.Sub(c.Started) <= c.Grace {
			return nil
		}
		return &DegradedError{Reason: "no completed tick yet"}
	}
	if age := now.Sub(last); c.MaxAge > 0 && age > c.MaxAge {
		return &DegradedError{Reason: fmt.Sprintf("last tick %s ago", age.Round(time.Second))}
	}
	return nil
}

// PingChecker wraps a ping function, e.g. the store's database handle.
type PingChecker struct {
	Ping func(ctx context.Context) error
}

// CheckHealth implements HealthChecker.
func (p PingChecker) CheckHealth(ctx context.Context) error {
	if p.Ping == nil {
		return errors.New("ping not configured")
	}
	return p.Ping(ctx)
}

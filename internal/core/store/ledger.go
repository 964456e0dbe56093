package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/core/engine"
)

// RecordAttempt persists the last write attempt for identity. Timestamps are
// stored as Unix milliseconds; an older timestamp never overwrites a newer one.
func (s *Store) RecordAttempt(ctx context.Context, identity core.Identity, at time.Time) error {
	ctx, err := s.use(ctx)
	if err != nil {
		return err
	}

	key := strings.TrimSpace(string(identity))
	if key == "" {
		return errors.New("identity is required")
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO rate_ledger (identity, last_attempt)
		VALUES (?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			last_attempt = MAX(rate_ledger.last_attempt, excluded.last_attempt)
	`, key, at.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store ledger attempt: %w", err)
	}

	return nil
}

// LoadLedger returns every persisted ledger entry, for restoring a RateLimiter.
func (s *Store) LoadLedger(ctx context.Context) ([]engine.LedgerEntry, error) {
	return s.ListLedger(ctx, LedgerQuery{All: true})
}

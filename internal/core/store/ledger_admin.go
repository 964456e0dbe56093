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

// LedgerQuery selects rate ledger rows for the admin commands. At least one
// selector must be set; several narrow the match together.
type LedgerQuery struct {
	All      bool
	Identity string
	Prefix   string
	// Before restricts to entries whose last attempt is older than this.
	Before time.Time
}

var errNoLedgerSelector = errors.New("must specify --all, --identity, --prefix, or --older-than")

// likeEscaper makes a prefix match literally under LIKE ... ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (q LedgerQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Identity) != "" || strings.TrimSpace(q.Prefix) != "" || !q.Before.IsZero() {
		return nil
	}
	return errNoLedgerSelector
}

func (q LedgerQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}

	var (
		conds []string
		args  []any
	)
	if identity := strings.TrimSpace(q.Identity); identity != "" {
		conds = append(conds, "identity = ?")
		args = append(args, identity)
	}
	if prefix := strings.TrimSpace(q.Prefix); prefix != "" {
		conds = append(conds, `identity LIKE ? ESCAPE '\'`)
		args = append(args, likeEscaper.Replace(prefix)+"%")
	}
	if !q.Before.IsZero() {
		conds = append(conds, "last_attempt < ?")
		args = append(args, q.Before.UTC().UnixMilli())
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}

// ListLedger returns matching entries ordered by identity.
func (s *Store) ListLedger(ctx context.Context, q LedgerQuery) ([]engine.LedgerEntry, error) {
	ctx, err := s.use(ctx)
	if err != nil {
		return nil, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		"SELECT identity, last_attempt FROM rate_ledger "+where+" ORDER BY identity", args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []engine.LedgerEntry{}
	for rows.Next() {
		var (
			identity string
			millis   int64
		)
		if err := rows.Scan(&identity, &millis); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		entries = append(entries, engine.LedgerEntry{
			Identity:    core.Identity(identity),
			LastAttempt: time.UnixMilli(millis).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return entries, nil
}

// CountLedger reports how many entries q matches.
func (s *Store) CountLedger(ctx context.Context, q LedgerQuery) (int, error) {
	ctx, err := s.use(ctx)
	if err != nil {
		return 0, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM rate_ledger "+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return count, nil
}

// ResetLedger deletes matching entries so those identities may be written
// again immediately after the next restart.
func (s *Store) ResetLedger(ctx context.Context, q LedgerQuery) (int64, error) {
	ctx, err := s.use(ctx)
	if err != nil {
		return 0, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, "DELETE FROM rate_ledger "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset ledger: %w", err)
	}
	return affected, nil
}

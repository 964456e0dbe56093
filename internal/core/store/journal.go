package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livetrack/livetrack/internal/core"
)

// JournalEntry is one persisted write outcome.
type JournalEntry struct {
	ID      string       `json:"id"`
	Outcome core.Outcome `json:"outcome"`
}

// JournalQuery filters journal listings. Results are newest first.
type JournalQuery struct {
	Identity string
	Since    time.Time
	Limit    int
}

// DefaultJournalLimit caps journal listings when no limit is given.
const DefaultJournalLimit = 50

// AppendOutcome records a write outcome in the journal.
func (s *Store) AppendOutcome(ctx context.Context, outcome core.Outcome) error {
	ctx, err := s.use(ctx)
	if err != nil {
		return err
	}

	identity := strings.TrimSpace(string(outcome.Record.Identity))
	if identity == "" {
		return errors.New("outcome identity is required")
	}

	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	started := outcome.StartedAt
	if started.IsZero() {
		started = finished
	}

	active := 0
	if outcome.Record.IsActive {
		active = 1
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO write_journal (
			id, identity, is_active, link, kind, reason, via,
			status_code, detail, attempts, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(), identity, active, outcome.Record.Link,
		string(outcome.Kind), string(outcome.Reason), string(outcome.Via),
		outcome.StatusCode, outcome.Detail, outcome.Attempts,
		started.UTC().UnixMilli(), finished.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// ListJournal returns journal entries matching q, newest first.
func (s *Store) ListJournal(ctx context.Context, q JournalQuery) ([]JournalEntry, error) {
	ctx, err := s.use(ctx)
	if err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	if identity := strings.TrimSpace(q.Identity); identity != "" {
		conds = append(conds, "identity = ?")
		args = append(args, identity)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "finished_at >= ?")
		args = append(args, q.Since.UTC().UnixMilli())
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultJournalLimit
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, identity, is_active, link, kind, reason, via,
			status_code, detail, attempts, started_at, finished_at
		FROM write_journal
		%s
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			entry              JournalEntry
			identity           string
			active             int
			link, kind, reason string
			via, detail        string
			statusCode         int
			attempts           int
			started, finished  int64
		)
		if err := rows.Scan(&entry.ID, &identity, &active, &link, &kind, &reason, &via,
			&statusCode, &detail, &attempts, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		entry.Outcome = core.Outcome{
			Record: core.LiveRecord{
				Identity: core.Identity(identity),
				IsActive: active == 1,
				Link:     link,
			},
			Kind:       core.OutcomeKind(kind),
			Reason:     core.FailureReason(reason),
			Via:        core.WritePath(via),
			StatusCode: statusCode,
			Detail:     detail,
			Attempts:   attempts,
			StartedAt:  time.UnixMilli(started).UTC(),
			FinishedAt: time.UnixMilli(finished).UTC(),
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	return entries, nil
}

// PruneJournal deletes entries finished before cutoff.
func (s *Store) PruneJournal(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, err := s.use(ctx)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM write_journal WHERE finished_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return affected, nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/wavelink/wavelink/internal/call"
)

// HistoryListFilter narrows and pages a history listing.
type HistoryListFilter struct {
	PeerID  string
	Outcome string
	Search  string // matches peer id or display name
	Limit   int
	Offset  int
}

// HistoryRepository persists finished calls. It implements
// call.HistoryStore for the controller and adds the read side used by the
// control API.
type HistoryRepository interface {
	call.HistoryStore
	List(ctx context.Context, filter HistoryListFilter) ([]call.HistoryEntry, int, error)
	CountByOutcome(ctx context.Context) (map[call.Outcome]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type historyRepo struct {
	db *DB
}

// NewHistoryRepository creates a HistoryRepository backed by db.
func NewHistoryRepository(db *DB) HistoryRepository {
	return &historyRepo{db: db}
}

// Append inserts a finished-call record.
func (r *historyRepo) Append(ctx context.Context, e call.HistoryEntry) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_history (peer_id, peer_name, kind, role, started_at, duration_secs, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.PeerID, e.PeerName, string(e.Kind), string(e.Role),
		e.StartedAt.UTC(), int64(e.Duration.Seconds()), string(e.Outcome),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	if _, err := result.LastInsertId(); err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	return nil
}

// List returns history entries matching the filter, newest first, along
// with the total count.
func (r *historyRepo) List(ctx context.Context, filter HistoryListFilter) ([]call.HistoryEntry, int, error) {
	where := "1=1"
	args := []any{}

	if filter.PeerID != "" {
		where += " AND peer_id = ?"
		args = append(args, filter.PeerID)
	}
	if filter.Outcome != "" {
		where += " AND outcome = ?"
		args = append(args, filter.Outcome)
	}
	if filter.Search != "" {
		where += " AND (peer_id LIKE ? OR peer_name LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM call_history WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting history entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, peer_id, peer_name, kind, role, started_at, duration_secs, outcome
		 FROM call_history WHERE ` + where + ` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing history entries: %w", err)
	}
	defer rows.Close()

	var entries []call.HistoryEntry
	for rows.Next() {
		var (
			e            call.HistoryEntry
			kind, role   string
			outcome      string
			durationSecs int64
		)
		if err := rows.Scan(&e.ID, &e.PeerID, &e.PeerName, &kind, &role,
			&e.StartedAt, &durationSecs, &outcome); err != nil {
			return nil, 0, fmt.Errorf("scanning history row: %w", err)
		}
		e.Kind = call.Kind(kind)
		e.Role = call.Role(role)
		e.Outcome = call.Outcome(outcome)
		e.Duration = time.Duration(durationSecs) * time.Second
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating history rows: %w", err)
	}

	return entries, total, nil
}

// CountByOutcome returns the number of recorded calls per outcome.
func (r *historyRepo) CountByOutcome(ctx context.Context) (map[call.Outcome]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM call_history GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("counting history by outcome: %w", err)
	}
	defer rows.Close()

	counts := make(map[call.Outcome]int64)
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[call.Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}
	return counts, nil
}

// DeleteOlderThan prunes entries started before cutoff and returns how many
// were removed.
func (r *historyRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM call_history WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning history entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return n, nil
}

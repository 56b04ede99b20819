package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout keeps sub-second precision and sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SQLiteRepository implements Repository over the door_state_history and
// access_decisions tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordTransition implements Repository.
func (r *SQLiteRepository) RecordTransition(ctx context.Context, evt door.StateChangeEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO door_state_history
		 (seq, from_state, state, source, command_id, correlation_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(evt.Seq), //nolint:gosec // sequence numbers stay far below MaxInt64
		evt.From.String(),
		evt.State.String(),
		string(evt.Source),
		evt.CommandID,
		evt.CorrelationToken,
		formatTime(evt.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// RecordDecision implements Repository.
func (r *SQLiteRepository) RecordDecision(ctx context.Context, d Decision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_decisions
		 (command_id, kind, source, plate, accepted, reason, outcome, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.CommandID,
		d.Kind,
		d.Source,
		d.Plate,
		boolToInt(d.Accepted),
		d.Reason,
		d.Outcome,
		formatTime(d.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

// Transitions implements Repository.
func (r *SQLiteRepository) Transitions(ctx context.Context, limit int) ([]Transition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, from_state, state, source, command_id, correlation_id, occurred_at
		 FROM door_state_history
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var seq int64
		var occurredAt string
		if err := rows.Scan(&t.ID, &seq, &t.From, &t.State, &t.Source, &t.CommandID, &t.CorrelationID, &occurredAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		t.Seq = uint64(seq) //nolint:gosec // written from a uint64
		if t.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}

// Decisions implements Repository.
func (r *SQLiteRepository) Decisions(ctx context.Context, limit int) ([]Decision, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command_id, kind, source, plate, accepted, reason, outcome, decided_at
		 FROM access_decisions
		 ORDER BY decided_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var accepted int
		var decidedAt string
		if err := rows.Scan(&d.ID, &d.CommandID, &d.Kind, &d.Source, &d.Plate, &accepted, &d.Reason, &d.Outcome, &decidedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Accepted = accepted == 1
		if d.DecidedAt, err = parseTime(decidedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating decisions: %w", err)
	}
	return out, nil
}

// Prune implements Repository.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := formatTime(time.Now().Add(-olderThan))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var total int64
	for _, q := range []string{
		"DELETE FROM door_state_history WHERE occurred_at < ?",
		"DELETE FROM access_decisions WHERE decided_at < ?",
	} {
		res, err := tx.ExecContext(ctx, q, cutoff)
		if err != nil {
			return 0, fmt.Errorf("pruning history: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return total, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", v, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package history keeps a local audit trail of door transitions and of
// every access decision, so the last events remain inspectable even when
// the broker or the telemetry database is unavailable.
package history

import (
	"context"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

// Transition is a stored door state change.
type Transition struct {
	ID            int64     `json:"id"`
	Seq           uint64    `json:"seq"`
	From          string    `json:"from"`
	State         string    `json:"state"`
	Source        string    `json:"source"`
	CommandID     string    `json:"command_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Decision is a stored validator verdict.
type Decision struct {
	ID        int64     `json:"id"`
	CommandID string    `json:"command_id"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Plate     string    `json:"plate,omitempty"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason"`
	Outcome   string    `json:"outcome,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Repository stores and retrieves the audit trail.
type Repository interface {
	RecordTransition(ctx context.Context, evt door.StateChangeEvent) error
	RecordDecision(ctx context.Context, d Decision) error

	// Transitions returns the newest transitions first.
	Transitions(ctx context.Context, limit int) ([]Transition, error)

	// Decisions returns the newest decisions first.
	Decisions(ctx context.Context, limit int) ([]Decision, error)

	// Prune deletes entries older than olderThan and returns how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Package ledger records the outcome of every executed event, including
// events that were acted on but could not be acknowledged.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID             int64
	RunID          uuid.UUID
	EventID        int64
	Action         string
	Outcome        string
	Reason         string
	Detail         string
	Attempts       int
	Acknowledged   bool
	AckError       *string
	WindowOpenedAt *time.Time
	FinishedAt     time.Time
	CreatedAt      time.Time
}

// NeedsReconciliation reports whether the action happened on the third
// party but the scheduling service still lists the event.
func (e Entry) NeedsReconciliation() bool {
	return e.Outcome == "success" && !e.Acknowledged
}

type Store interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Unacknowledged(ctx context.Context, limit int) ([]Entry, error)
}

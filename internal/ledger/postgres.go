package ledger

import (
	"context"
	"fmt"

	"github.com/example/wodify-ap/internal/db"
)

type Postgres struct{ db db.Querier }

func NewPostgres(d db.Querier) *Postgres { return &Postgres{db: d} }

const columns = `id,run_id,event_id,action,outcome,reason,detail,attempts,acknowledged,ack_error,window_opened_at,finished_at,created_at`

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	err := p.db.Exec(ctx, `
INSERT INTO executions(run_id,event_id,action,outcome,reason,detail,attempts,acknowledged,ack_error,window_opened_at,finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.RunID, e.EventID, e.Action, e.Outcome, e.Reason, e.Detail, e.Attempts, e.Acknowledged, e.AckError, e.WindowOpenedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record execution %d: %w", e.EventID, err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return p.list(ctx, `SELECT `+columns+` FROM executions ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

// Unacknowledged returns successful executions whose event is still listed
// by the scheduling service, newest first, one per event.
func (p *Postgres) Unacknowledged(ctx context.Context, limit int) ([]Entry, error) {
	return p.list(ctx, `
SELECT `+columns+` FROM executions e
WHERE outcome='success' AND NOT acknowledged
  AND NOT EXISTS (
    SELECT 1 FROM executions a
    WHERE a.event_id=e.event_id AND a.acknowledged AND a.created_at >= e.created_at
  )
ORDER BY created_at DESC
LIMIT $1`, limit)
}

func (p *Postgres) list(ctx context.Context, sql string, limit int) ([]Entry, error) {
	rows, err := p.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.EventID, &e.Action, &e.Outcome, &e.Reason, &e.Detail, &e.Attempts,
			&e.Acknowledged, &e.AckError, &e.WindowOpenedAt, &e.FinishedAt, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crewforge/engine/internal/domain"
)

// TransitionRepo handles the append-only transition log. Entries are never
// updated or deleted; the log is the canonical history of the pipeline.
type TransitionRepo struct{}

// Append inserts a transition log entry.
func (r *TransitionRepo) Append(ctx context.Context, db *sql.DB, t domain.Transition) error {
	const q = `INSERT INTO transitions (project, from_state, to_state, reason, message_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		t.Project,
		string(t.From),
		string(t.To),
		t.Reason,
		t.MessageID,
		t.CreatedAt,
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "append transition", err)
	}
	return nil
}

// ListByProject returns a project's transitions in log order.
func (r *TransitionRepo) ListByProject(ctx context.Context, db *sql.DB, project string) ([]domain.Transition, error) {
	const q = `SELECT seq, project, from_state, to_state, reason, message_id, created_at
FROM transitions WHERE project = ? ORDER BY seq ASC`

	rows, err := db.QueryContext(ctx, q, project)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var t domain.Transition
		var from, to string
		if err := rows.Scan(&t.Seq, &t.Project, &from, &to, &t.Reason, &t.MessageID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.From = domain.State(from)
		t.To = domain.State(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Last returns the most recent transition for a project, or nil when the log
// is empty.
func (r *TransitionRepo) Last(ctx context.Context, db *sql.DB, project string) (*domain.Transition, error) {
	const q = `SELECT seq, project, from_state, to_state, reason, message_id, created_at
FROM transitions WHERE project = ? ORDER BY seq DESC LIMIT 1`

	row := db.QueryRowContext(ctx, q, project)

	var t domain.Transition
	var from, to string
	err := row.Scan(&t.Seq, &t.Project, &from, &to, &t.Reason, &t.MessageID, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("last transition: %w", err)
	}
	t.From = domain.State(from)
	t.To = domain.State(to)
	return &t, nil
}

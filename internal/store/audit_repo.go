package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/crewforge/engine/internal/domain"
)

// AuditRepo handles persistence for AuditRecord rows.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, project, category, actor, action, detail, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.Project,
		rec.Category,
		rec.Actor,
		rec.Action,
		rec.Detail,
		rec.Severity,
		rec.CreatedAt,
	)
	if err != nil {
		return domain.WrapEngineError(domain.ErrStoreWrite.Code, "record audit", err)
	}
	return nil
}

// ListByProject returns a project's audit records, oldest first.
func (r *AuditRepo) ListByProject(ctx context.Context, db *sql.DB, project string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, project, category, actor, action, detail, severity, created_at
FROM audit_records WHERE project = ? ORDER BY created_at ASC, id ASC`

	rows, err := db.QueryContext(ctx, q, project)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.Project, &rec.Category, &rec.Actor, &rec.Action, &rec.Detail, &rec.Severity, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

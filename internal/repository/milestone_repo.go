package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackhub/internal/model"
)

type MilestoneRepository struct {
	db *pgxpool.Pool
}

func NewMilestoneRepository(db *pgxpool.Pool) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

const milestoneColumns = `id, project_id, name, description, status, blocked, progress, order_index,
        due_date, estimated_hours, actual_hours, completed_at`

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Name,
		&m.Description,
		&m.Status,
		&m.Blocked,
		&m.Progress,
		&m.OrderIndex,
		&m.DueDate,
		&m.EstimatedHours,
		&m.ActualHours,
		&m.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID string) ([]model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE project_id = $1
        ORDER BY order_index, id
    `
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := []model.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

func (r *MilestoneRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, id string) (*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id = $1
        FOR UPDATE
    `
	return scanMilestone(tx.QueryRow(ctx, query, id))
}

// UpdateProgressTx stores a recomputed rollup. completedAt is set when the
// milestone first reaches COMPLETED and cleared when it leaves it.
func (r *MilestoneRepository) UpdateProgressTx(ctx context.Context, tx pgx.Tx, id string, progress int, status model.Status, now time.Time) error {
	_, err := tx.Exec(ctx, `
        UPDATE milestones
        SET progress = $2,
            status = $3,
            completed_at = CASE
                WHEN $3 = 'COMPLETED' THEN COALESCE(completed_at, $4)
                ELSE NULL
            END
        WHERE id = $1
    `, id, progress, string(status), now)
	return err
}

// SetBlockedTx writes the blocked flag and the status derived from it.
// completed_at is left alone; the next recompute maintains it.
func (r *MilestoneRepository) SetBlockedTx(ctx context.Context, tx pgx.Tx, id string, blocked bool, status model.Status) (*model.Milestone, error) {
	query := `
        UPDATE milestones
        SET blocked = $2, status = $3
        WHERE id = $1
        RETURNING ` + milestoneColumns
	return scanMilestone(tx.QueryRow(ctx, query, id, blocked, string(status)))
}

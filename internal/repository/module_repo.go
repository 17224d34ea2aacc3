package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackhub/internal/model"
)

type ModuleRepository struct {
	db *pgxpool.Pool
}

func NewModuleRepository(db *pgxpool.Pool) *ModuleRepository {
	return &ModuleRepository{db: db}
}

const moduleColumns = `id, milestone_id, name, description, status, blocked, progress, order_index,
        estimated_hours, actual_hours`

func scanModule(row pgx.Row) (*model.Module, error) {
	var m model.Module
	err := row.Scan(
		&m.ID,
		&m.MilestoneID,
		&m.Name,
		&m.Description,
		&m.Status,
		&m.Blocked,
		&m.Progress,
		&m.OrderIndex,
		&m.EstimatedHours,
		&m.ActualHours,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectModules(rows pgx.Rows) ([]model.Module, error) {
	defer rows.Close()
	modules := []model.Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, *m)
	}
	return modules, rows.Err()
}

func (r *ModuleRepository) ListByMilestone(ctx context.Context, milestoneID string) ([]model.Module, error) {
	query := `
        SELECT ` + moduleColumns + `
        FROM modules
        WHERE milestone_id = $1
        ORDER BY order_index, id
    `
	rows, err := r.db.Query(ctx, query, milestoneID)
	if err != nil {
		return nil, err
	}
	return collectModules(rows)
}

func (r *ModuleRepository) ListByMilestoneTx(ctx context.Context, tx pgx.Tx, milestoneID string) ([]model.Module, error) {
	query := `
        SELECT ` + moduleColumns + `
        FROM modules
        WHERE milestone_id = $1
        ORDER BY order_index, id
    `
	rows, err := tx.Query(ctx, query, milestoneID)
	if err != nil {
		return nil, err
	}
	return collectModules(rows)
}

// FindByIDTx locks the module row for the rest of the transaction.
func (r *ModuleRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, id string) (*model.Module, error) {
	query := `
        SELECT ` + moduleColumns + `
        FROM modules
        WHERE id = $1
        FOR UPDATE
    `
	return scanModule(tx.QueryRow(ctx, query, id))
}

// ProjectIDTx resolves the project owning a module.
func (r *ModuleRepository) ProjectIDTx(ctx context.Context, tx pgx.Tx, moduleID string) (string, error) {
	var projectID string
	err := tx.QueryRow(ctx, `
        SELECT ms.project_id
        FROM modules m
        JOIN milestones ms ON ms.id = m.milestone_id
        WHERE m.id = $1
    `, moduleID).Scan(&projectID)
	return projectID, err
}

func (r *ModuleRepository) UpdateProgressTx(ctx context.Context, tx pgx.Tx, id string, progress int, status model.Status) error {
	_, err := tx.Exec(ctx, `
        UPDATE modules
        SET progress = $2, status = $3
        WHERE id = $1
    `, id, progress, string(status))
	return err
}

func (r *ModuleRepository) SetBlockedTx(ctx context.Context, tx pgx.Tx, id string, blocked bool, status model.Status) (*model.Module, error) {
	query := `
        UPDATE modules
        SET blocked = $2, status = $3
        WHERE id = $1
        RETURNING ` + moduleColumns
	return scanModule(tx.QueryRow(ctx, query, id, blocked, string(status)))
}

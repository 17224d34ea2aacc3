package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackhub/internal/model"
)

type FeatureRepository struct {
	db *pgxpool.Pool
}

func NewFeatureRepository(db *pgxpool.Pool) *FeatureRepository {
	return &FeatureRepository{db: db}
}

const featureColumns = `id, module_id, name, description, status, blocked, priority, is_completed,
        order_index, estimated_hours, actual_hours, notes, completed_at`

func scanFeature(row pgx.Row) (*model.Feature, error) {
	var f model.Feature
	err := row.Scan(
		&f.ID,
		&f.ModuleID,
		&f.Name,
		&f.Description,
		&f.Status,
		&f.Blocked,
		&f.Priority,
		&f.IsCompleted,
		&f.OrderIndex,
		&f.EstimatedHours,
		&f.ActualHours,
		&f.Notes,
		&f.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func collectFeatures(rows pgx.Rows) ([]model.Feature, error) {
	defer rows.Close()
	features := []model.Feature{}
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, *f)
	}
	return features, rows.Err()
}

func (r *FeatureRepository) ListByModule(ctx context.Context, moduleID string) ([]model.Feature, error) {
	query := `
        SELECT ` + featureColumns + `
        FROM features
        WHERE module_id = $1
        ORDER BY order_index, id
    `
	rows, err := r.db.Query(ctx, query, moduleID)
	if err != nil {
		return nil, err
	}
	return collectFeatures(rows)
}

func (r *FeatureRepository) ListByModuleTx(ctx context.Context, tx pgx.Tx, moduleID string) ([]model.Feature, error) {
	query := `
        SELECT ` + featureColumns + `
        FROM features
        WHERE module_id = $1
        ORDER BY order_index, id
    `
	rows, err := tx.Query(ctx, query, moduleID)
	if err != nil {
		return nil, err
	}
	return collectFeatures(rows)
}

// SetCompletedTx writes the completion flag and the derived status, and
// returns the updated row. pgx.ErrNoRows means the feature does not exist.
func (r *FeatureRepository) SetCompletedTx(ctx context.Context, tx pgx.Tx, id string, completed bool, status model.Status, now time.Time) (*model.Feature, error) {
	query := `
        UPDATE features
        SET is_completed = $2,
            status = $3,
            completed_at = CASE WHEN $2 THEN COALESCE(completed_at, $4) ELSE NULL END
        WHERE id = $1
        RETURNING ` + featureColumns
	return scanFeature(tx.QueryRow(ctx, query, id, completed, string(status), now))
}

// BlockedTx reports the stored blocked flag of a feature.
func (r *FeatureRepository) BlockedTx(ctx context.Context, tx pgx.Tx, id string) (bool, error) {
	var blocked bool
	err := tx.QueryRow(ctx, `SELECT blocked FROM features WHERE id = $1 FOR UPDATE`, id).Scan(&blocked)
	return blocked, err
}

// FindByIDTx locks the feature row for the rest of the transaction.
func (r *FeatureRepository) FindByIDTx(ctx context.Context, tx pgx.Tx, id string) (*model.Feature, error) {
	query := `
        SELECT ` + featureColumns + `
        FROM features
        WHERE id = $1
        FOR UPDATE
    `
	return scanFeature(tx.QueryRow(ctx, query, id))
}

func (r *FeatureRepository) SetBlockedTx(ctx context.Context, tx pgx.Tx, id string, blocked bool, status model.Status) (*model.Feature, error) {
	query := `
        UPDATE features
        SET blocked = $2, status = $3
        WHERE id = $1
        RETURNING ` + featureColumns
	return scanFeature(tx.QueryRow(ctx, query, id, blocked, string(status)))
}

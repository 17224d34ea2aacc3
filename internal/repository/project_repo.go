package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trackhub/internal/model"
)

type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

const projectColumns = `id, owner_id, name, description, completion_percentage, metadata, created_at, updated_at`

func scanProject(row pgx.Row) (*model.Project, error) {
	var p model.Project
	var metadata []byte
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Description,
		&p.CompletionPercentage,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of project %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

// List returns all projects, newest first.
func (r *ProjectRepository) List(ctx context.Context) ([]model.Project, error) {
	query := `
        SELECT ` + projectColumns + `
        FROM projects
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// FindByID returns pgx.ErrNoRows when the project does not exist.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	query := `
        SELECT ` + projectColumns + `
        FROM projects
        WHERE id = $1
    `
	return scanProject(r.db.QueryRow(ctx, query, id))
}

// Create inserts a project with an empty tracking tree.
func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query := `
        INSERT INTO projects (id, owner_id, name, description, metadata)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING completion_percentage, created_at, updated_at
    `
	return r.db.QueryRow(ctx, query, p.ID, p.OwnerID, p.Name, p.Description, metadata).
		Scan(&p.CompletionPercentage, &p.CreatedAt, &p.UpdatedAt)
}

// UpdateResultsFramework replaces the whole results-framework blob.
func (r *ProjectRepository) UpdateResultsFramework(ctx context.Context, id string, blob []byte) (*model.Project, error) {
	query := `
        UPDATE projects
        SET metadata = jsonb_set(metadata, '{resultsFramework}', $2::jsonb, true),
            updated_at = NOW()
        WHERE id = $1
        RETURNING ` + projectColumns
	return scanProject(r.db.QueryRow(ctx, query, id, blob))
}

func (r *ProjectRepository) UpdateCompletion(ctx context.Context, id string, pct int) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE projects
        SET completion_percentage = $2, updated_at = NOW()
        WHERE id = $1
    `, id, pct)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

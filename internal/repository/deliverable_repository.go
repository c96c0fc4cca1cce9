package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-portal-api/internal/models"
)

const deliverableColumns = `id, url, open_at, close_at, team_min_size, team_max_size, team_students_form, team_same_lab,
        team_prefix, repo_prefix, grades_released, policy, custom, created_at, updated_at`

// DeliverableRepository manages persistence for deliverable definitions.
type DeliverableRepository struct {
	db *sqlx.DB
}

// NewDeliverableRepository constructs a DeliverableRepository.
func NewDeliverableRepository(db *sqlx.DB) *DeliverableRepository {
	return &DeliverableRepository{db: db}
}

// FindByID fetches a deliverable by id.
func (r *DeliverableRepository) FindByID(ctx context.Context, id string) (*models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE id = $1`
	var deliverable models.Deliverable
	if err := r.db.GetContext(ctx, &deliverable, query, id); err != nil {
		return nil, err
	}
	return &deliverable, nil
}

// List returns all deliverables ordered by id.
func (r *DeliverableRepository) List(ctx context.Context) ([]models.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables ORDER BY id ASC`
	var deliverables []models.Deliverable
	if err := r.db.SelectContext(ctx, &deliverables, query); err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}
	return deliverables, nil
}

// Upsert inserts or replaces a deliverable definition.
func (r *DeliverableRepository) Upsert(ctx context.Context, deliverable *models.Deliverable) error {
	now := time.Now().UTC()
	if deliverable.CreatedAt.IsZero() {
		deliverable.CreatedAt = now
	}
	deliverable.UpdatedAt = now
	if deliverable.Custom == nil {
		deliverable.Custom = models.CustomData{}
	}
	const query = `INSERT INTO deliverables (id, url, open_at, close_at, team_min_size, team_max_size, team_students_form, team_same_lab,
        team_prefix, repo_prefix, grades_released, policy, custom, created_at, updated_at)
        VALUES (:id, :url, :open_at, :close_at, :team_min_size, :team_max_size, :team_students_form, :team_same_lab,
        :team_prefix, :repo_prefix, :grades_released, :policy, :custom, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, open_at = EXCLUDED.open_at, close_at = EXCLUDED.close_at,
        team_min_size = EXCLUDED.team_min_size, team_max_size = EXCLUDED.team_max_size, team_students_form = EXCLUDED.team_students_form,
        team_same_lab = EXCLUDED.team_same_lab, team_prefix = EXCLUDED.team_prefix, repo_prefix = EXCLUDED.repo_prefix,
        grades_released = EXCLUDED.grades_released, policy = EXCLUDED.policy, custom = EXCLUDED.custom, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, deliverable); err != nil {
		return fmt.Errorf("upsert deliverable: %w", err)
	}
	return nil
}

// UpdatePolicy replaces only the typed policy of a deliverable.
func (r *DeliverableRepository) UpdatePolicy(ctx context.Context, id string, policy models.DeliverablePolicy) error {
	const query = `UPDATE deliverables SET policy = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, policy, time.Now().UTC()); err != nil {
		return fmt.Errorf("update deliverable policy: %w", err)
	}
	return nil
}

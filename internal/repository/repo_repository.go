package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-portal-api/internal/models"
)

const repoColumns = `id, deliverable_id, team_ids, url, flags, assignment, custom, created_at, updated_at`

// RepoRepository manages persistence for hosted repository records.
type RepoRepository struct {
	db *sqlx.DB
}

// NewRepoRepository constructs a RepoRepository.
func NewRepoRepository(db *sqlx.DB) *RepoRepository {
	return &RepoRepository{db: db}
}

// FindByID fetches a repository record by id.
func (r *RepoRepository) FindByID(ctx context.Context, id string) (*models.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE id = $1`
	var repo models.Repository
	if err := r.db.GetContext(ctx, &repo, query, id); err != nil {
		return nil, err
	}
	return &repo, nil
}

// ListByDeliverable returns every repository record of a deliverable.
func (r *RepoRepository) ListByDeliverable(ctx context.Context, deliverableID string) ([]models.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories WHERE deliverable_id = $1 ORDER BY id ASC`
	var repos []models.Repository
	if err := r.db.SelectContext(ctx, &repos, query, deliverableID); err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return repos, nil
}

// ListForPerson returns repositories attached to any team the person is on.
func (r *RepoRepository) ListForPerson(ctx context.Context, personID string) ([]models.Repository, error) {
	query := `SELECT ` + repoColumns + ` FROM repositories
        WHERE team_ids && ARRAY(SELECT t.id FROM teams t WHERE $1 = ANY(t.person_ids))
        ORDER BY deliverable_id ASC, id ASC`
	var repos []models.Repository
	if err := r.db.SelectContext(ctx, &repos, query, personID); err != nil {
		return nil, fmt.Errorf("list repositories for person: %w", err)
	}
	return repos, nil
}

// Upsert inserts or replaces a repository record.
func (r *RepoRepository) Upsert(ctx context.Context, repo *models.Repository) error {
	now := time.Now().UTC()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = now
	}
	repo.UpdatedAt = now
	if repo.Custom == nil {
		repo.Custom = models.CustomData{}
	}
	const query = `INSERT INTO repositories (id, deliverable_id, team_ids, url, flags, assignment, custom, created_at, updated_at)
        VALUES (:id, :deliverable_id, :team_ids, :url, :flags, :assignment, :custom, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET deliverable_id = EXCLUDED.deliverable_id, team_ids = EXCLUDED.team_ids, url = EXCLUDED.url,
        flags = EXCLUDED.flags, assignment = EXCLUDED.assignment, custom = EXCLUDED.custom, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, repo); err != nil {
		return fmt.Errorf("upsert repository: %w", err)
	}
	return nil
}

// Delete removes a repository record.
func (r *RepoRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	return nil
}

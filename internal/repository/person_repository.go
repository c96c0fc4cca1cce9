package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/course-portal-api/internal/models"
)

const personColumns = `id, github_id, first_name, last_name, kind, lab_id, url, custom, created_at, updated_at`

// PersonRepository manages persistence for people in the course.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository constructs a PersonRepository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// FindByID fetches a person by id.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE id = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		return nil, err
	}
	return &person, nil
}

// FindByGitHubID fetches a person by hosting-service handle.
func (r *PersonRepository) FindByGitHubID(ctx context.Context, githubID string) (*models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE github_id = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, githubID); err != nil {
		return nil, err
	}
	return &person, nil
}

// ListByKind returns every person of the given enrollment kind.
func (r *PersonRepository) ListByKind(ctx context.Context, kind models.PersonKind) ([]models.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE kind = $1 ORDER BY id ASC`
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, kind); err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	return people, nil
}

// Upsert inserts or replaces a person record.
func (r *PersonRepository) Upsert(ctx context.Context, person *models.Person) error {
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now
	if person.Custom == nil {
		person.Custom = models.CustomData{}
	}
	const query = `INSERT INTO people (id, github_id, first_name, last_name, kind, lab_id, url, custom, created_at, updated_at)
        VALUES (:id, :github_id, :first_name, :last_name, :kind, :lab_id, :url, :custom, :created_at, :updated_at)
        ON CONFLICT (id) DO UPDATE SET github_id = EXCLUDED.github_id, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
        kind = EXCLUDED.kind, lab_id = EXCLUDED.lab_id, url = EXCLUDED.url, custom = EXCLUDED.custom, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}

// WithdrawStudentsExcept marks every student not listed in activeIDs as
// withdrawn and returns how many changed.
func (r *PersonRepository) WithdrawStudentsExcept(ctx context.Context, activeIDs []string) (int64, error) {
	const query = `UPDATE people SET kind = $1, updated_at = $2 WHERE kind = $3 AND NOT (id = ANY($4))`
	res, err := r.db.ExecContext(ctx, query, models.PersonKindWithdrawn, time.Now().UTC(), models.PersonKindStudent, pq.Array(activeIDs))
	if err != nil {
		return 0, fmt.Errorf("withdraw students: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("withdraw students rows: %w", err)
	}
	return n, nil
}

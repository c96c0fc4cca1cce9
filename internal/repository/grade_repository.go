package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-portal-api/internal/models"
)

const gradeColumns = `person_id, deliverable_id, score, comment, url_name, url, source, timestamp, custom`

// GradeRepository manages the single current grade per person and deliverable.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// Find fetches the grade for a person and deliverable.
func (r *GradeRepository) Find(ctx context.Context, personID, deliverableID string) (*models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE person_id = $1 AND deliverable_id = $2`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, personID, deliverableID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// ListForPerson returns every grade recorded for a person.
func (r *GradeRepository) ListForPerson(ctx context.Context, personID string) ([]models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE person_id = $1 ORDER BY deliverable_id ASC`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, personID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

// Upsert writes the grade, replacing any previous one for the same pair.
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if grade.Timestamp.IsZero() {
		grade.Timestamp = time.Now().UTC()
	}
	if grade.Custom == nil {
		grade.Custom = models.CustomData{}
	}
	const query = `INSERT INTO grades (person_id, deliverable_id, score, comment, url_name, url, source, timestamp, custom)
        VALUES (:person_id, :deliverable_id, :score, :comment, :url_name, :url, :source, :timestamp, :custom)
        ON CONFLICT (person_id, deliverable_id) DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment,
        url_name = EXCLUDED.url_name, url = EXCLUDED.url, source = EXCLUDED.source, timestamp = EXCLUDED.timestamp, custom = EXCLUDED.custom`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

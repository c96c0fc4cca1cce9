package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

const teamColumns = `id, deliverable_id, person_ids, github_team_number, url, status, flags, custom, created_at, updated_at`

const insertTeam = `INSERT INTO teams (id, deliverable_id, person_ids, github_team_number, url, status, flags, custom, created_at, updated_at)
        VALUES (:id, :deliverable_id, :person_ids, :github_team_number, :url, :status, :flags, :custom, :created_at, :updated_at)`

// TeamRepository manages persistence for teams.
type TeamRepository struct {
	db *sqlx.DB
}

// NewTeamRepository constructs a TeamRepository.
func NewTeamRepository(db *sqlx.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// FindByID fetches a team by id.
func (r *TeamRepository) FindByID(ctx context.Context, id string) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	var team models.Team
	if err := r.db.GetContext(ctx, &team, query, id); err != nil {
		return nil, err
	}
	return &team, nil
}

// ListByDeliverable returns every team formed for a deliverable.
func (r *TeamRepository) ListByDeliverable(ctx context.Context, deliverableID string) ([]models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE deliverable_id = $1 ORDER BY id ASC`
	var teams []models.Team
	if err := r.db.SelectContext(ctx, &teams, query, deliverableID); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// ListForPerson returns every team the person belongs to, across deliverables.
func (r *TeamRepository) ListForPerson(ctx context.Context, personID string) ([]models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE $1 = ANY(person_ids) ORDER BY deliverable_id ASC, id ASC`
	var teams []models.Team
	if err := r.db.SelectContext(ctx, &teams, query, personID); err != nil {
		return nil, fmt.Errorf("list teams for person: %w", err)
	}
	return teams, nil
}

// Upsert inserts or replaces a team record.
func (r *TeamRepository) Upsert(ctx context.Context, team *models.Team) error {
	stampTeam(team)
	const query = insertTeam + `
        ON CONFLICT (id) DO UPDATE SET deliverable_id = EXCLUDED.deliverable_id, person_ids = EXCLUDED.person_ids,
        github_team_number = EXCLUDED.github_team_number, url = EXCLUDED.url, status = EXCLUDED.status, flags = EXCLUDED.flags,
        custom = EXCLUDED.custom, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, team); err != nil {
		return fmt.Errorf("upsert team: %w", err)
	}
	return nil
}

// Create inserts a new team and never overwrites. Creations for one
// deliverable are serialised by a transaction-scoped advisory lock; the
// insert fails with ErrTeamConflict when the id is taken or a member already
// belongs to a team for the deliverable.
func (r *TeamRepository) Create(ctx context.Context, team *models.Team) (err error) {
	stampTeam(team)
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create team: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "teams:"+team.DeliverableID); err != nil {
		return fmt.Errorf("lock deliverable teams: %w", err)
	}
	var overlapping int
	if err = tx.GetContext(ctx, &overlapping,
		`SELECT COUNT(*) FROM teams WHERE deliverable_id = $1 AND person_ids && $2`,
		team.DeliverableID, team.PersonIDs); err != nil {
		return fmt.Errorf("check team members: %w", err)
	}
	if overlapping > 0 {
		err = appErrors.Clone(appErrors.ErrTeamConflict, "")
		return err
	}

	res, err := tx.NamedExecContext(ctx, insertTeam+` ON CONFLICT (id) DO NOTHING`, team)
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	if inserted == 0 {
		err = appErrors.Clone(appErrors.ErrTeamConflict, "")
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit team: %w", err)
	}
	return nil
}

func stampTeam(team *models.Team) {
	now := time.Now().UTC()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}
	team.UpdatedAt = now
	if team.Status == "" {
		team.Status = models.TeamNotProvisioned
	}
	if team.Custom == nil {
		team.Custom = models.CustomData{}
	}
}

// Delete removes a team record.
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return nil
}

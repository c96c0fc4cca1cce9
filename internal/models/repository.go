package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// Repository is the course's record of a hosted code repository.
type Repository struct {
	ID            string              `db:"id" json:"id"`
	DeliverableID string              `db:"deliverable_id" json:"deliverable_id"`
	TeamIDs       pq.StringArray      `db:"team_ids" json:"team_ids"`
	URL           string              `db:"url" json:"url"`
	Flags         RepositoryFlags     `db:"flags" json:"flags"`
	Assignment    AssignmentRepoState `db:"assignment" json:"assignment"`
	Custom        CustomData          `db:"custom" json:"custom,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// RepositoryFlags records which stages the repository serves. An enabling
// flag is only written after the hosted side is complete.
type RepositoryFlags struct {
	D0Enabled     bool `json:"d0_enabled"`
	D1Enabled     bool `json:"d1_enabled"`
	D2Enabled     bool `json:"d2_enabled"`
	D3Enabled     bool `json:"d3_enabled"`
	D3PullRequest bool `json:"d3_pull_request"`
	GitHubCreated bool `json:"github_created"`
}

// Value marshals the flags for persistence.
func (f RepositoryFlags) Value() (driver.Value, error) {
	return marshalJSONB(f, "repository flags")
}

// Scan unmarshals JSONB payloads into the flags.
func (f *RepositoryFlags) Scan(value interface{}) error {
	out := RepositoryFlags{}
	if err := scanJSONB(value, &out, "repository flags"); err != nil {
		return err
	}
	*f = out
	return nil
}

// AssignmentRepoState is the per-repository bulk assignment lifecycle.
type AssignmentRepoState struct {
	AssignmentIDs []string         `json:"assignment_ids,omitempty"`
	Status        AssignmentStatus `json:"status,omitempty"`
	AssignedTeams []string         `json:"assigned_teams,omitempty"`
}

// Value marshals the state for persistence.
func (s AssignmentRepoState) Value() (driver.Value, error) {
	return marshalJSONB(s, "assignment repo state")
}

// Scan unmarshals JSONB payloads into the state.
func (s *AssignmentRepoState) Scan(value interface{}) error {
	out := AssignmentRepoState{}
	if err := scanJSONB(value, &out, "assignment repo state"); err != nil {
		return err
	}
	*s = out
	return nil
}

// StatusOrInactive returns the lifecycle status, treating unset as inactive.
func (s AssignmentRepoState) StatusOrInactive() AssignmentStatus {
	if !s.Status.Valid() {
		return AssignmentInactive
	}
	return s.Status
}

// HasTeam reports whether teamID is attached to the repository.
func (r *Repository) HasTeam(teamID string) bool {
	if r == nil {
		return false
	}
	for _, id := range r.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// FullyProvisioned reports whether the hosted repository is complete.
func (r *Repository) FullyProvisioned() bool {
	return r != nil && r.Flags.GitHubCreated && r.URL != ""
}

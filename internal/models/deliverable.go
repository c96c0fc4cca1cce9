package models

import (
	"database/sql/driver"
	"time"
)

// Self-paced ladder deliverable ids.
const (
	DeliverableD0 = "d0"
	DeliverableD1 = "d1"
	DeliverableD2 = "d2"
	DeliverableD3 = "d3"
)

// Deliverable is a milestone definition with its team and grading policy.
type Deliverable struct {
	ID               string            `db:"id" json:"id"`
	URL              string            `db:"url" json:"url"`
	OpenAt           *time.Time        `db:"open_at" json:"open_at,omitempty"`
	CloseAt          *time.Time        `db:"close_at" json:"close_at,omitempty"`
	TeamMinSize      int               `db:"team_min_size" json:"team_min_size"`
	TeamMaxSize      int               `db:"team_max_size" json:"team_max_size"`
	TeamStudentsForm bool              `db:"team_students_form" json:"team_students_form"`
	TeamSameLab      bool              `db:"team_same_lab" json:"team_same_lab"`
	TeamPrefix       string            `db:"team_prefix" json:"team_prefix"`
	RepoPrefix       string            `db:"repo_prefix" json:"repo_prefix"`
	GradesReleased   bool              `db:"grades_released" json:"grades_released"`
	Policy           DeliverablePolicy `db:"policy" json:"policy"`
	Custom           CustomData        `db:"custom" json:"custom,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// DeliverablePolicy is the typed course policy attached to a deliverable.
type DeliverablePolicy struct {
	MinPassingScore *float64          `json:"min_passing_score,omitempty"`
	Requires        string            `json:"requires,omitempty"`
	Assignment      *AssignmentPolicy `json:"assignment,omitempty"`
}

// AssignmentPolicy configures a bulk assignment and caches its aggregate
// status.
type AssignmentPolicy struct {
	SeedRepoURL  string           `json:"seed_repo_url"`
	SeedRepoPath string           `json:"seed_repo_path,omitempty"`
	MainFilePath string           `json:"main_file_path,omitempty"`
	Status       AssignmentStatus `json:"status,omitempty"`
	Repositories []string         `json:"repositories,omitempty"`
}

// Value marshals the policy for persistence.
func (p DeliverablePolicy) Value() (driver.Value, error) {
	return marshalJSONB(p, "deliverable policy")
}

// Scan unmarshals JSONB payloads into the policy.
func (p *DeliverablePolicy) Scan(value interface{}) error {
	out := DeliverablePolicy{}
	if err := scanJSONB(value, &out, "deliverable policy"); err != nil {
		return err
	}
	*p = out
	return nil
}

// PassingScore returns the configured threshold or fallback.
func (d *Deliverable) PassingScore(fallback float64) float64 {
	if d == nil || d.Policy.MinPassingScore == nil {
		return fallback
	}
	return *d.Policy.MinPassingScore
}

// IsAssignment reports whether the deliverable follows the bulk assignment
// lifecycle.
func (d *Deliverable) IsAssignment() bool {
	return d != nil && d.Policy.Assignment != nil
}

// AssignmentStatus returns the cached aggregate, defaulting to inactive.
func (d *Deliverable) AssignmentStatus() AssignmentStatus {
	if !d.IsAssignment() || !d.Policy.Assignment.Status.Valid() {
		return AssignmentInactive
	}
	return d.Policy.Assignment.Status
}

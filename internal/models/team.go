package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// TeamStatus tracks whether the hosted team has been provisioned.
type TeamStatus string

const (
	TeamNotProvisioned TeamStatus = "NOT_PROVISIONED"
	TeamProvisioned    TeamStatus = "PROVISIONED"
)

// Team groups people working together on a deliverable.
type Team struct {
	ID               string         `db:"id" json:"id"`
	DeliverableID    string         `db:"deliverable_id" json:"deliverable_id"`
	PersonIDs        pq.StringArray `db:"person_ids" json:"person_ids"`
	GitHubTeamNumber *int64         `db:"github_team_number" json:"github_team_number,omitempty"`
	URL              string         `db:"url" json:"url"`
	Status           TeamStatus     `db:"status" json:"status"`
	Flags            TeamFlags      `db:"flags" json:"flags"`
	Custom           CustomData     `db:"custom" json:"custom,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// TeamFlags marks which ladder stages the team has been enabled for.
type TeamFlags struct {
	D0             bool `json:"d0"`
	D1             bool `json:"d1"`
	D2             bool `json:"d2"`
	D3             bool `json:"d3"`
	GitHubAttached bool `json:"github_attached"`
}

// Value marshals the flags for persistence.
func (f TeamFlags) Value() (driver.Value, error) {
	return marshalJSONB(f, "team flags")
}

// Scan unmarshals JSONB payloads into the flags.
func (f *TeamFlags) Scan(value interface{}) error {
	out := TeamFlags{}
	if err := scanJSONB(value, &out, "team flags"); err != nil {
		return err
	}
	*f = out
	return nil
}

// HasMember reports whether personID belongs to the team.
func (t *Team) HasMember(personID string) bool {
	if t == nil {
		return false
	}
	for _, id := range t.PersonIDs {
		if id == personID {
			return true
		}
	}
	return false
}

// SameMembers reports whether the team consists of exactly ids, in any order.
func (t *Team) SameMembers(ids []string) bool {
	if t == nil || len(t.PersonIDs) != len(ids) {
		return false
	}
	seen := make(map[string]int, len(ids))
	for _, id := range t.PersonIDs {
		seen[id]++
	}
	for _, id := range ids {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

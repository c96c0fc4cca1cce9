package models

import "time"

// PersonKind captures a person's enrollment in the course.
type PersonKind string

const (
	PersonKindAdmin     PersonKind = "ADMIN"
	PersonKindStaff     PersonKind = "STAFF"
	PersonKindStudent   PersonKind = "STUDENT"
	PersonKindWithdrawn PersonKind = "WITHDRAWN"
)

// UnknownLab tags learners registered before a classlist assigned them a lab.
const UnknownLab = "UNKNOWN"

// Person is anyone the course has seen. People are never deleted;
// withdrawal is recorded through Kind.
type Person struct {
	ID        string     `db:"id" json:"id"`
	GitHubID  string     `db:"github_id" json:"github_id"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Kind      PersonKind `db:"kind" json:"kind"`
	LabID     *string    `db:"lab_id" json:"lab_id,omitempty"`
	URL       string     `db:"url" json:"url"`
	Custom    CustomData `db:"custom" json:"custom,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// IsStudent reports whether the person is an enrolled student.
func (p *Person) IsStudent() bool {
	return p != nil && p.Kind == PersonKindStudent
}

// IsWithdrawn reports whether the person has left the course.
func (p *Person) IsWithdrawn() bool {
	return p != nil && p.Kind == PersonKindWithdrawn
}

// Lab returns the lab id or "" when unset.
func (p *Person) Lab() string {
	if p == nil || p.LabID == nil {
		return ""
	}
	return *p.LabID
}

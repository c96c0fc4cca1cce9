package models

import "time"

// GradeSource identifies where a grade came from.
type GradeSource string

const (
	GradeSourceAutoTest GradeSource = "AUTOTEST"
	GradeSourceStaff    GradeSource = "STAFF"
	GradeSourceSystem   GradeSource = "SYSTEM"
)

// PlaceholderGradeComment marks the grade written when a repository is provisioned.
const PlaceholderGradeComment = "Repo Provisioned"

// Grade is the single current grade for a (person, deliverable) pair.
type Grade struct {
	PersonID      string      `db:"person_id" json:"person_id"`
	DeliverableID string      `db:"deliverable_id" json:"deliverable_id"`
	Score         *float64    `db:"score" json:"score"`
	Comment       string      `db:"comment" json:"comment"`
	URLName       string      `db:"url_name" json:"url_name"`
	URL           string      `db:"url" json:"url"`
	Source        GradeSource `db:"source" json:"source"`
	Timestamp     time.Time   `db:"timestamp" json:"timestamp"`
	Custom        CustomData  `db:"custom" json:"custom,omitempty"`
}

// GradePayload is the per-milestone grade summary shown alongside a stage.
type GradePayload struct {
	Score     *float64   `json:"score"`
	Comment   string     `json:"comment"`
	URLName   string     `json:"url_name"`
	URL       string     `json:"url"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Passes reports whether the grade has a score of at least threshold.
func (g *Grade) Passes(threshold float64) bool {
	return g != nil && g.Score != nil && *g.Score >= threshold
}

// Payload summarises the grade; nil grades produce an empty payload.
func (g *Grade) Payload() GradePayload {
	if g == nil {
		return GradePayload{}
	}
	ts := g.Timestamp
	return GradePayload{
		Score:     g.Score,
		Comment:   g.Comment,
		URLName:   g.URLName,
		URL:       g.URL,
		Timestamp: &ts,
	}
}

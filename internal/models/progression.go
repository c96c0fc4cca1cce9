package models

// StageReport is the resolved ladder position of a learner along with the
// grades that drove it.
type StageReport struct {
	PersonID string       `json:"person_id"`
	Stage    SDMMStage    `json:"stage"`
	D0       GradePayload `json:"d0"`
	D1       GradePayload `json:"d1"`
	D2       GradePayload `json:"d2"`
	D3       GradePayload `json:"d3"`
}

// ProvisionResult reports the outcome of a successful provision call.
type ProvisionResult struct {
	Stage         SDMMStage `json:"stage"`
	Message       string    `json:"message"`
	TeamID        string    `json:"team_id,omitempty"`
	RepositoryID  string    `json:"repository_id,omitempty"`
	RepositoryURL string    `json:"repository_url,omitempty"`
	Changed       bool      `json:"changed"`
}

package models

// AssignmentStatusReport is the refreshed aggregate of a bulk assignment.
type AssignmentStatusReport struct {
	DeliverableID string           `json:"deliverable_id"`
	Aggregate     AssignmentStatus `json:"aggregate_status"`
	Computed      AssignmentStatus `json:"computed_status"`
	TotalSubjects int              `json:"total_subjects"`
	ProvidedCount int              `json:"provided_count"`
	Laggards      []string         `json:"laggards,omitempty"`
}

// BatchOperation names a deliverable-wide operation.
type BatchOperation string

const (
	BatchInitialize BatchOperation = "initialize"
	BatchPublish    BatchOperation = "publish"
	BatchClose      BatchOperation = "close"
	BatchDelete     BatchOperation = "delete"
)

// SubjectFailure describes why one subject of a batch did not complete.
type SubjectFailure struct {
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// BatchResult collects per-subject outcomes of a bulk operation.
type BatchResult struct {
	DeliverableID string           `json:"deliverable_id"`
	Operation     BatchOperation   `json:"operation"`
	Attempted     int              `json:"attempted"`
	Succeeded     []string         `json:"succeeded"`
	Skipped       []string         `json:"skipped"`
	Failures      []SubjectFailure `json:"failures"`
}

// OK is false when any subject failed.
func (r *BatchResult) OK() bool {
	return r != nil && len(r.Failures) == 0
}

// SubjectStatus is one student's repository within a bulk assignment.
type SubjectStatus struct {
	SubjectID     string           `json:"subject_id"`
	RepositoryID  string           `json:"repository_id"`
	RepositoryURL string           `json:"repository_url,omitempty"`
	Status        AssignmentStatus `json:"status"`
}

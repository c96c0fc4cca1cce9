package dto

// ProvisionRequest captures POST /provision payload. An empty member list
// provisions the caller alone.
type ProvisionRequest struct {
	DeliverableID string   `json:"deliverable_id" binding:"required"`
	MemberIDs     []string `json:"member_ids"`
}

// PullRequestResponse reports whether a pull request fact was recorded.
type PullRequestResponse struct {
	RepositoryID string `json:"repository_id"`
	Changed      bool   `json:"changed"`
}

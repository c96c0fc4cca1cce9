package dto

// FormTeamRequest captures POST /teams and POST /admin/teams payloads. On the
// learner route an empty member list forms a team of the caller alone and
// AdminOverride is ignored.
type FormTeamRequest struct {
	DeliverableID string   `json:"deliverable_id" binding:"required"`
	MemberIDs     []string `json:"member_ids"`
	AdminOverride bool     `json:"admin_override"`
}

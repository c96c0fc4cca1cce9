package service

import (
	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// Team formation failure reasons. The checks run in the order listed and the
// first failure is reported.
const (
	ReasonNotInCourse      = "Team not created; some students not members of the course."
	ReasonDuplicateMembers = "Team not created; the same student was listed more than once."
	ReasonTooMany          = "Team not created; too many team members specified for this deliverable."
	ReasonTooFew           = "Team not created; too few team members specified for this deliverable."
	ReasonNoSelfForming    = "Team not created; students cannot form their own teams for this deliverable."
	ReasonWithdrawn        = "Team not created; at least one student is not an active member of the class."
	ReasonDifferentLabs    = "Team not created; all members are not in the same lab."
	ReasonAlreadyOnTeam    = "Team not created; some members are already on existing teams for this deliverable."
)

// TeamProposal is a candidate team for a deliverable. Members is aligned with
// MemberIDs; a nil entry marks an id that resolved to no known person.
type TeamProposal struct {
	TeamID        string
	Deliverable   *models.Deliverable
	MemberIDs     []string
	Members       []*models.Person
	ExistingTeams []models.Team
	AdminOverride bool
}

// ValidateTeam checks a proposed team against its deliverable policy. It
// returns the existing team when the proposal re-creates it exactly, and nil
// when a new team may be created.
func ValidateTeam(p TeamProposal) (*models.Team, error) {
	d := p.Deliverable
	if d == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Team not created; deliverable does not exist.")
	}

	if len(p.Members) != len(p.MemberIDs) {
		return nil, violation(ReasonNotInCourse)
	}
	for _, m := range p.Members {
		if m == nil {
			return nil, violation(ReasonNotInCourse)
		}
	}

	seen := make(map[string]struct{}, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		if _, dup := seen[id]; dup {
			return nil, violation(ReasonDuplicateMembers)
		}
		seen[id] = struct{}{}
	}

	if !p.AdminOverride {
		if len(p.Members) > d.TeamMaxSize {
			return nil, violation(ReasonTooMany)
		}
		if len(p.Members) < d.TeamMinSize {
			return nil, violation(ReasonTooFew)
		}
		if d.TeamMaxSize > 1 && !d.TeamStudentsForm {
			return nil, violation(ReasonNoSelfForming)
		}
		for _, m := range p.Members {
			if m.IsWithdrawn() {
				return nil, violation(ReasonWithdrawn)
			}
		}
		if d.TeamSameLab && !sameLab(p.Members) {
			return nil, violation(ReasonDifferentLabs)
		}
	}

	// Double-booking is never overridable.
	var identical *models.Team
	for i := range p.ExistingTeams {
		team := &p.ExistingTeams[i]
		if team.DeliverableID != d.ID {
			continue
		}
		for _, id := range p.MemberIDs {
			if !team.HasMember(id) {
				continue
			}
			if team.ID == p.TeamID && team.SameMembers(p.MemberIDs) {
				identical = team
				continue
			}
			return nil, violation(ReasonAlreadyOnTeam)
		}
	}
	return identical, nil
}

func sameLab(members []*models.Person) bool {
	lab := ""
	for i, m := range members {
		if m.Lab() == "" {
			return false
		}
		if i == 0 {
			lab = m.Lab()
			continue
		}
		if m.Lab() != lab {
			return false
		}
	}
	return true
}

func violation(reason string) error {
	return appErrors.Clone(appErrors.ErrTeamConstraint, reason)
}

package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	applog "github.com/noah-isme/course-portal-api/pkg/logger"
)

// FormTeamRequest proposes a team of people for a deliverable. AdminOverride
// lifts the size, self-forming, enrolment and lab checks.
type FormTeamRequest struct {
	DeliverableID string   `json:"deliverable_id" validate:"required"`
	MemberIDs     []string `json:"member_ids" validate:"required,min=1,dive,required"`
	AdminOverride bool     `json:"admin_override"`
}

// FormTeamResult is the formed team. Created is false when the same team
// already existed.
type FormTeamResult struct {
	Team    *models.Team `json:"team"`
	Created bool         `json:"created"`
}

// TeamService forms teams outside the milestone ladder. The hosted side of a
// team is created later, by provisioning or an assignment batch.
type TeamService struct {
	store     FactStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeamService constructs TeamService.
func NewTeamService(store FactStore, validate *validator.Validate, logger *zap.Logger) *TeamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamService{store: store, validator: validate, logger: logger}
}

// FormTeam validates the proposal against the deliverable's team policy and
// records the team. Re-forming an existing team returns it unchanged. Two
// racing proposals that share a member leave one winner; the other gets a
// retryable conflict.
func (s *TeamService) FormTeam(ctx context.Context, req FormTeamRequest) (*FormTeamResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid team payload")
	}
	log := applog.FromContext(ctx, s.logger).With(
		zap.String("deliverable_id", req.DeliverableID),
		zap.Strings("member_ids", req.MemberIDs),
		zap.Bool("admin_override", req.AdminOverride),
	)

	d, err := s.store.Deliverables.FindByID(ctx, req.DeliverableID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d = nil
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	if d != nil && isLadderDeliverable(d.ID) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Teams for "+d.ID+" are formed when the repository is provisioned.")
	}

	members := make([]*models.Person, len(req.MemberIDs))
	for i, id := range req.MemberIDs {
		p, err := s.store.People.FindByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
		}
		members[i] = p
	}

	var existing []models.Team
	seen := map[string]bool{}
	for _, p := range members {
		if p == nil || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		teams, err := s.store.Teams.ListForPerson(ctx, p.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams")
		}
		existing = append(existing, teams...)
	}

	name := ""
	if d != nil {
		name, err = s.teamName(ctx, d, req.MemberIDs, members, existing)
		if err != nil {
			return nil, err
		}
	}

	identical, err := ValidateTeam(TeamProposal{
		TeamID:        name,
		Deliverable:   d,
		MemberIDs:     req.MemberIDs,
		Members:       members,
		ExistingTeams: existing,
		AdminOverride: req.AdminOverride,
	})
	if err != nil {
		log.Info("team rejected", zap.Error(err))
		return nil, err
	}
	if identical != nil {
		return &FormTeamResult{Team: identical}, nil
	}

	team := &models.Team{
		ID:            name,
		DeliverableID: d.ID,
		PersonIDs:     append([]string(nil), req.MemberIDs...),
		Status:        models.TeamNotProvisioned,
	}
	if err := s.store.Teams.Create(ctx, team); err != nil {
		if errors.Is(err, appErrors.ErrTeamConflict) {
			log.Warn("team formed concurrently", zap.String("team", name))
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create team")
	}
	log.Info("team formed", zap.String("team", team.ID))
	return &FormTeamResult{Team: team, Created: true}, nil
}

// teamName reuses the name of an identical team. Otherwise a single-member
// team is named the way assignment batches do, so a batch adopts it. Larger
// teams, or a single member whose usual name is held by another team, get a
// random name.
func (s *TeamService) teamName(ctx context.Context, d *models.Deliverable, ids []string, members []*models.Person, existing []models.Team) (string, error) {
	for i := range existing {
		if existing[i].DeliverableID == d.ID && existing[i].SameMembers(ids) {
			return existing[i].ID, nil
		}
	}
	if len(members) == 1 && members[0] != nil {
		name := assignmentTeamPrefix(d) + members[0].GitHubID
		if members[0].GitHubID == "" {
			name = assignmentTeamPrefix(d) + members[0].ID
		}
		held, err := s.store.Teams.FindByID(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return name, nil
		}
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check team name")
		}
		if held.DeliverableID == d.ID && held.SameMembers(ids) {
			return name, nil
		}
	}
	names, err := generatedNames(ctx, s.store.Teams, &models.Deliverable{TeamPrefix: assignmentTeamPrefix(d)})
	if err != nil {
		return "", err
	}
	return names.Team, nil
}

func assignmentTeamPrefix(d *models.Deliverable) string {
	if d.TeamPrefix == "" {
		return d.ID + "_"
	}
	return d.TeamPrefix
}

func isLadderDeliverable(id string) bool {
	for _, ladder := range ladderDeliverables {
		if id == ladder {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type studentDirectory interface {
	ListByKind(ctx context.Context, kind models.PersonKind) ([]models.Person, error)
	WithdrawStudentsExcept(ctx context.Context, activeIDs []string) (int64, error)
}

type orgDirectory interface {
	ListOrgMembers(ctx context.Context) ([]string, error)
}

// MembershipSync reports the outcome of reconciling students against the
// hosting organisation.
type MembershipSync struct {
	Active    []string `json:"active"`
	Withdrawn int64    `json:"withdrawn"`
}

// MembershipService withdraws students who have left the organisation.
type MembershipService struct {
	people studentDirectory
	org    orgDirectory
	logger *zap.Logger
}

// NewMembershipService constructs MembershipService.
func NewMembershipService(people studentDirectory, org orgDirectory, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{people: people, org: org, logger: logger}
}

// Sync marks every student whose handle is no longer an organisation member
// as withdrawn. An empty member list is treated as a hosting failure so a
// bad response cannot withdraw the whole course.
func (s *MembershipService) Sync(ctx context.Context) (*MembershipSync, error) {
	members, err := s.org.ListOrgMembers(ctx)
	if err != nil {
		return nil, appErrors.Hosting(err)
	}
	if len(members) == 0 {
		return nil, appErrors.Clone(appErrors.ErrHostingUnavailable, "organisation returned no members")
	}
	inOrg := make(map[string]struct{}, len(members))
	for _, m := range members {
		inOrg[strings.ToLower(m)] = struct{}{}
	}

	students, err := s.people.ListByKind(ctx, models.PersonKindStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	active := make([]string, 0, len(students))
	for _, p := range students {
		if _, ok := inOrg[strings.ToLower(p.GitHubID)]; ok {
			active = append(active, p.ID)
		}
	}

	n, err := s.people.WithdrawStudentsExcept(ctx, active)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw students")
	}
	s.logger.Info("membership synced", zap.Int("active", len(active)), zap.Int64("withdrawn", n))
	return &MembershipSync{Active: active, Withdrawn: n}, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	applog "github.com/noah-isme/course-portal-api/pkg/logger"
)

// Learner-facing provisioning messages.
const (
	msgInvalidPeopleCount = "Invalid # of people; contact course staff."
	msgRepoNotNeeded      = "Repo not needed; contact course staff."
	msgD1Duplicate        = "D1 duplicate users; if you wish to work alone, please select 'work individually'."
	msgD1TooMany          = "D1 can only be performed by single students or pairs of students."
	msgD0GradeTooLow      = "Current d0 grade is not sufficient to move on to d1."
	msgInvalidD0Team      = "Invalid team updating d0 repo; contact course staff."
	msgTeammatesNotReady  = "All teammates must be eligible to join a team and must not already be performing d1 in another team or on their own."

	msgD0Created  = "Repository successfully created."
	msgD1Upgraded = "D0 repo successfully updated to D1."
	msgD1Created  = "D1 repository successfully provisioned."
)

// ProvisionRequest asks for the resources of a deliverable for a set of learners.
type ProvisionRequest struct {
	DeliverableID string   `json:"deliverable_id" validate:"required"`
	MemberIDs     []string `json:"member_ids" validate:"omitempty,dive,required"`
}

// ProvisioningOptions carries the seed content for new ladder repositories.
type ProvisioningOptions struct {
	SeedRepoURL  string
	SeedRepoPath string
}

// ProvisioningService moves a single learner or pair up the d0..d3 ladder by
// creating teams and repositories.
type ProvisioningService struct {
	store     FactStore
	gateway   HostingGateway
	resolver  *StageResolver
	opts      ProvisioningOptions
	metrics   provisioningObserver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProvisioningService constructs ProvisioningService.
func NewProvisioningService(store FactStore, gateway HostingGateway, resolver *StageResolver, opts ProvisioningOptions, metrics provisioningObserver, validate *validator.Validate, logger *zap.Logger) *ProvisioningService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopObserver{}
	}
	return &ProvisioningService{
		store:     store,
		gateway:   gateway,
		resolver:  resolver,
		opts:      opts,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Status resolves the learner's current stage.
func (s *ProvisioningService) Status(ctx context.Context, personID string) (*models.StageReport, error) {
	return s.resolver.Resolve(ctx, personID)
}

// Provision creates or upgrades the repository a deliverable needs for the
// given members. Repeating a completed call is a no-op that reports the
// stage already reached.
func (s *ProvisioningService) Provision(ctx context.Context, req ProvisionRequest) (*models.ProvisionResult, error) {
	result, err := s.provision(ctx, req)
	outcome := "success"
	switch {
	case err != nil && appErrors.IsRetryable(err):
		outcome = "retryable_error"
	case err != nil:
		outcome = "rejected"
	case !result.Changed:
		outcome = "noop"
	}
	s.metrics.RecordProvisioning("provision_"+req.DeliverableID, outcome)
	if err != nil {
		s.logger.Warn("provision failed",
			zap.String("deliverable_id", req.DeliverableID),
			zap.Strings("member_ids", req.MemberIDs),
			zap.Error(err),
		)
	}
	return result, err
}

func (s *ProvisioningService) provision(ctx context.Context, req ProvisionRequest) (*models.ProvisionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid provision payload")
	}
	if len(req.MemberIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, msgInvalidPeopleCount)
	}

	people := make([]*models.Person, 0, len(req.MemberIDs))
	for _, id := range req.MemberIDs {
		person, err := s.store.People.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrUnknownSubject, "Username ( "+id+" ) not registered; contact course staff.")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
		}
		people = append(people, person)
	}

	if req.DeliverableID != models.DeliverableD0 && req.DeliverableID != models.DeliverableD1 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, msgRepoNotNeeded)
	}
	deliverable, err := s.loadDeliverable(ctx, req.DeliverableID)
	if err != nil {
		return nil, err
	}

	if len(people) > 1 && (deliverable.ID == models.DeliverableD0 || deliverable.TeamMaxSize == 1) {
		return nil, appErrors.Clone(appErrors.ErrTeamConstraint, strings.ToUpper(deliverable.ID)+" for individuals only; contact course staff.")
	}

	if deliverable.ID == models.DeliverableD0 {
		return s.provisionD0(ctx, deliverable, people[0])
	}

	switch len(people) {
	case 1:
		return s.upgradeD0ToD1(ctx, people[0])
	case 2:
		if people[0].ID == people[1].ID {
			return nil, appErrors.Clone(appErrors.ErrTeamConstraint, msgD1Duplicate)
		}
		return s.provisionD1Pair(ctx, deliverable, people)
	default:
		return nil, appErrors.Clone(appErrors.ErrTeamConstraint, msgD1TooMany)
	}
}

func (s *ProvisioningService) provisionD0(ctx context.Context, d0 *models.Deliverable, person *models.Person) (*models.ProvisionResult, error) {
	log := applog.FromContext(ctx, s.logger).With(zap.String("deliverable_id", d0.ID), zap.String("subject_id", person.ID))
	names := individualNames(d0, person.ID)

	teams, err := s.store.Teams.ListForPerson(ctx, person.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams")
	}
	team := teamFor(teams, d0.ID)
	if team == nil {
		existing, err := ValidateTeam(TeamProposal{
			TeamID:        names.Team,
			Deliverable:   d0,
			MemberIDs:     []string{person.ID},
			Members:       []*models.Person{person},
			ExistingTeams: teams,
		})
		if err != nil {
			return nil, err
		}
		team = existing
		if team == nil {
			team = &models.Team{
				ID:            names.Team,
				DeliverableID: d0.ID,
				PersonIDs:     []string{person.ID},
				Status:        models.TeamNotProvisioned,
				Flags:         models.TeamFlags{D0: true},
			}
			if err := s.store.Teams.Upsert(ctx, team); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create team")
			}
			log.Info("team created", zap.String("team", team.ID))
		}
	}

	repo, err := s.findOrCreateRepo(ctx, names.Repo, d0.ID, team.ID)
	if err != nil {
		return nil, err
	}
	if repo.Flags.D0Enabled && repo.FullyProvisioned() {
		return s.result(ctx, person.ID, msgD0Created, team, repo, false)
	}

	if err := s.host(ctx, team, repo, []*models.Person{person}); err != nil {
		return nil, err
	}
	repo.Flags.D0Enabled = true
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enable repository")
	}
	if err := s.writePlaceholders(ctx, repo, models.DeliverableD0); err != nil {
		return nil, err
	}

	log.Info("d0 repository provisioned", zap.String("repo", repo.ID))
	return s.result(ctx, person.ID, msgD0Created, team, repo, true)
}

func (s *ProvisioningService) upgradeD0ToD1(ctx context.Context, person *models.Person) (*models.ProvisionResult, error) {
	log := applog.FromContext(ctx, s.logger).With(zap.String("deliverable_id", models.DeliverableD1), zap.String("subject_id", person.ID))

	d0, err := s.loadDeliverable(ctx, models.DeliverableD0)
	if err != nil {
		return nil, err
	}
	passes, err := s.passesD0(ctx, d0, person.ID)
	if err != nil {
		return nil, err
	}
	if !passes {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, msgD0GradeTooLow)
	}

	repos, err := s.store.Repos.ListForPerson(ctx, person.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repositories")
	}
	for _, r := range repos {
		if r.Flags.D1Enabled {
			return nil, appErrors.Clone(appErrors.ErrConflict, "D1 repo has already been assigned: "+r.ID)
		}
	}

	teams, err := s.store.Teams.ListForPerson(ctx, person.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams")
	}
	if teamFor(teams, models.DeliverableD1) != nil {
		return nil, violation(ReasonAlreadyOnTeam)
	}

	// The d0 resources are upgraded in place.
	names := individualNames(d0, person.ID)
	team, err := s.store.Teams.FindByID(ctx, names.Team)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	repo, rerr := s.store.Repos.FindByID(ctx, names.Repo)
	if rerr != nil && !errors.Is(rerr, sql.ErrNoRows) {
		return nil, appErrors.Wrap(rerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
	}
	if team == nil || repo == nil || !repo.FullyProvisioned() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, msgInvalidD0Team)
	}

	// Team first: a failure before the repository write leaves the learner
	// at D1TEAMSET.
	team.Flags.D1, team.Flags.D2, team.Flags.D3 = true, true, true
	if err := s.store.Teams.Upsert(ctx, team); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update team")
	}
	repo.Flags.D1Enabled, repo.Flags.D2Enabled, repo.Flags.D3Enabled = true, true, true
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update repository")
	}
	if err := s.writePlaceholders(ctx, repo, models.DeliverableD1, models.DeliverableD2, models.DeliverableD3); err != nil {
		return nil, err
	}

	log.Info("d0 repository upgraded to d1", zap.String("repo", repo.ID))
	return s.result(ctx, person.ID, msgD1Upgraded, team, repo, true)
}

func (s *ProvisioningService) provisionD1Pair(ctx context.Context, d1 *models.Deliverable, people []*models.Person) (*models.ProvisionResult, error) {
	ids := []string{people[0].ID, people[1].ID}
	log := applog.FromContext(ctx, s.logger).With(zap.String("deliverable_id", d1.ID), zap.Strings("member_ids", ids))

	d0, err := s.loadDeliverable(ctx, models.DeliverableD0)
	if err != nil {
		return nil, err
	}
	for _, p := range people {
		passes, err := s.passesD0(ctx, d0, p.ID)
		if err != nil {
			return nil, err
		}
		if !passes {
			threshold := strconv.FormatFloat(d0.PassingScore(s.resolver.gradeToAdvance), 'f', -1, 64)
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
				"All teammates must have achieved a score of "+threshold+"% or more to join a team.")
		}
	}

	var (
		known []models.Team
		team  *models.Team
	)
	seen := map[string]bool{}
	for _, p := range people {
		teams, err := s.store.Teams.ListForPerson(ctx, p.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams")
		}
		for i := range teams {
			if seen[teams[i].ID] {
				continue
			}
			seen[teams[i].ID] = true
			known = append(known, teams[i])
			if teams[i].DeliverableID == d1.ID && teams[i].SameMembers(ids) {
				t := teams[i]
				team = &t
			}
		}
	}

	if team == nil {
		for _, p := range people {
			report, err := s.resolver.Resolve(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			if report.Stage != models.StageD1Unlocked {
				log.Info("teammate not eligible", zap.String("subject_id", p.ID), zap.Stringer("stage", report.Stage))
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, msgTeammatesNotReady)
			}
		}

		names, err := generatedNames(ctx, s.store.Teams, d1)
		if err != nil {
			return nil, err
		}
		if _, err := ValidateTeam(TeamProposal{
			TeamID:        names.Team,
			Deliverable:   d1,
			MemberIDs:     ids,
			Members:       people,
			ExistingTeams: known,
		}); err != nil {
			return nil, err
		}
		team = &models.Team{
			ID:            names.Team,
			DeliverableID: d1.ID,
			PersonIDs:     ids,
			Status:        models.TeamNotProvisioned,
			Flags:         models.TeamFlags{D1: true, D2: true, D3: true},
		}
		if err := s.store.Teams.Create(ctx, team); err != nil {
			if errors.Is(err, appErrors.ErrTeamConflict) {
				log.Warn("pair team formed concurrently", zap.String("team", team.ID))
				return nil, err
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create team")
		}
		log.Info("pair team created", zap.String("team", team.ID))
	}

	repo, err := s.findOrCreateRepo(ctx, d1.RepoPrefix+team.ID, d1.ID, team.ID)
	if err != nil {
		return nil, err
	}
	if repo.Flags.D1Enabled && repo.FullyProvisioned() {
		return s.result(ctx, ids[0], msgD1Created, team, repo, false)
	}

	if err := s.host(ctx, team, repo, people); err != nil {
		return nil, err
	}
	repo.Flags.D1Enabled, repo.Flags.D2Enabled, repo.Flags.D3Enabled = true, true, true
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enable repository")
	}
	if err := s.writePlaceholders(ctx, repo, models.DeliverableD1, models.DeliverableD2, models.DeliverableD3); err != nil {
		return nil, err
	}

	log.Info("d1 pair repository provisioned", zap.String("repo", repo.ID))
	return s.result(ctx, ids[0], msgD1Created, team, repo, true)
}

// host reconciles the hosted team and repository, then records what the host
// now holds. Stage-enabling flags are left to the caller.
func (s *ProvisioningService) host(ctx context.Context, team *models.Team, repo *models.Repository, members []*models.Person) error {
	handles := make([]string, 0, len(members))
	for _, m := range members {
		handles = append(handles, m.GitHubID)
	}

	hosted, err := reconcileHosted(ctx, s.gateway, hostedRepo{
		Repo:       repo.ID,
		Team:       team.ID,
		Members:    handles,
		AttachTeam: true,
		SeedURL:    s.opts.SeedRepoURL,
		SeedPath:   s.opts.SeedRepoPath,
	}, s.logger)
	if err != nil {
		return appErrors.Hosting(err)
	}

	number := hosted.TeamNumber
	team.GitHubTeamNumber = &number
	team.URL = hosted.TeamURL
	team.Status = models.TeamProvisioned
	team.Flags.GitHubAttached = true
	if err := s.store.Teams.Upsert(ctx, team); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record hosted team")
	}

	repo.URL = hosted.RepoURL
	repo.Flags.GitHubCreated = true
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record hosted repository")
	}
	return nil
}

func (s *ProvisioningService) findOrCreateRepo(ctx context.Context, id, deliverableID, teamID string) (*models.Repository, error) {
	repo, err := s.store.Repos.FindByID(ctx, id)
	if err == nil {
		if !repo.HasTeam(teamID) {
			return nil, appErrors.Clone(appErrors.ErrInconsistentState,
				fmt.Sprintf("repository %s is not attached to team %s; contact course staff.", id, teamID))
		}
		return repo, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
	}
	repo = &models.Repository{ID: id, DeliverableID: deliverableID, TeamIDs: []string{teamID}}
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create repository")
	}
	return repo, nil
}

// writePlaceholders records a scoreless grade for the repository on each
// deliverable it serves, keeping any grade already present.
func (s *ProvisioningService) writePlaceholders(ctx context.Context, repo *models.Repository, deliverableIDs ...string) error {
	for _, id := range deliverableIDs {
		_, err := s.store.Grades.Find(ctx, repo.ID, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
		}
		grade := &models.Grade{
			PersonID:      repo.ID,
			DeliverableID: id,
			Comment:       models.PlaceholderGradeComment,
			URLName:       repo.ID,
			URL:           repo.URL,
			Source:        models.GradeSourceSystem,
			Timestamp:     time.Now().UTC(),
		}
		if err := s.store.Grades.Upsert(ctx, grade); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write placeholder grade")
		}
	}
	return nil
}

func (s *ProvisioningService) passesD0(ctx context.Context, d0 *models.Deliverable, personID string) (bool, error) {
	grade, err := s.store.Grades.Find(ctx, personID, models.DeliverableD0)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade.Passes(d0.PassingScore(s.resolver.gradeToAdvance)), nil
}

func (s *ProvisioningService) loadDeliverable(ctx context.Context, id string) (*models.Deliverable, error) {
	d, err := s.store.Deliverables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable "+id+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	return d, nil
}

func (s *ProvisioningService) result(ctx context.Context, personID, message string, team *models.Team, repo *models.Repository, changed bool) (*models.ProvisionResult, error) {
	report, err := s.resolver.Resolve(ctx, personID)
	if err != nil {
		return nil, err
	}
	return &models.ProvisionResult{
		Stage:         report.Stage,
		Message:       message,
		TeamID:        team.ID,
		RepositoryID:  repo.ID,
		RepositoryURL: repo.URL,
		Changed:       changed,
	}, nil
}

// RegisterLearner records a person seen for the first time through the
// hosting service. Known handles are returned unchanged.
func (s *ProvisioningService) RegisterLearner(ctx context.Context, githubID string) (*models.Person, bool, error) {
	githubID = strings.TrimSpace(githubID)
	if githubID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "github handle required")
	}
	person, err := s.store.People.FindByGitHubID(ctx, githubID)
	if err == nil {
		return person, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}

	lab := models.UnknownLab
	person = &models.Person{
		ID:       githubID,
		GitHubID: githubID,
		Kind:     models.PersonKindStudent,
		LabID:    &lab,
	}
	if err := s.store.People.Upsert(ctx, person); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register person")
	}
	s.logger.Info("learner registered", zap.String("subject_id", person.ID))
	return person, true, nil
}

// RecordPullRequest marks that a d1 repository has opened its d3 pull
// request. It reports whether anything changed.
func (s *ProvisioningService) RecordPullRequest(ctx context.Context, repoID string) (bool, error) {
	repo, err := s.store.Repos.FindByID(ctx, repoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "repository not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
	}
	if !repo.Flags.D1Enabled {
		return false, appErrors.Clone(appErrors.ErrPreconditionFailed, "pull requests only count for d1 repositories")
	}
	if repo.Flags.D3PullRequest {
		return false, nil
	}
	repo.Flags.D3PullRequest = true
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record pull request")
	}
	s.logger.Info("d3 pull request recorded", zap.String("repo", repo.ID))
	return true, nil
}

func teamFor(teams []models.Team, deliverableID string) *models.Team {
	for i := range teams {
		if teams[i].DeliverableID == deliverableID {
			t := teams[i]
			return &t
		}
	}
	return nil
}

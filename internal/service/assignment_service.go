package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/course-portal-api/internal/hosting"
	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

const (
	defaultBatchConcurrency = 4
	defaultSubjectTimeout   = 2 * time.Minute
)

// AssignmentOptions bounds the per-subject fan-out of batch operations.
type AssignmentOptions struct {
	Concurrency    int
	SubjectTimeout time.Duration
}

// AssignmentService drives every student's repository of a bulk assignment
// through INACTIVE, CREATED, RELEASED and CLOSED.
type AssignmentService struct {
	store   FactStore
	gateway HostingGateway
	opts    AssignmentOptions
	metrics provisioningObserver
	logger  *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(store FactStore, gateway HostingGateway, opts AssignmentOptions, metrics provisioningObserver, logger *zap.Logger) *AssignmentService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultBatchConcurrency
	}
	if opts.SubjectTimeout <= 0 {
		opts.SubjectTimeout = defaultSubjectTimeout
	}
	if metrics == nil {
		metrics = noopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{store: store, gateway: gateway, opts: opts, metrics: metrics, logger: logger}
}

// assignmentSubject is one student of an assignment with the names of the
// resources provisioned for them.
type assignmentSubject struct {
	Person   models.Person
	TeamName string
	RepoName string
}

// batchItem is one independent unit of a batch. run reports skipped when the
// subject was already at the target status.
type batchItem struct {
	ID  string
	run func(ctx context.Context) (skipped bool, err error)
}

// InitializeAllRepositories creates the team and repository of every
// eligible student that does not have one yet.
func (s *AssignmentService) InitializeAllRepositories(ctx context.Context, deliverableID string) (*models.BatchResult, error) {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	if d.AssignmentStatus() == models.AssignmentClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Assignment "+d.ID+" is closed; repositories can no longer be created.")
	}
	subjects, err := s.subjects(ctx, d)
	if err != nil {
		return nil, err
	}

	result := s.initialize(ctx, d, subjects)
	if _, err := s.refresh(ctx, d, subjects); err != nil {
		return result, err
	}
	return result, nil
}

// PublishAllRepositories grants every assigned team push access. It first
// initializes the assignment when nothing has been created yet, and refuses
// to publish while any repository is missing.
func (s *AssignmentService) PublishAllRepositories(ctx context.Context, deliverableID string) (*models.BatchResult, error) {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects(ctx, d)
	if err != nil {
		return nil, err
	}

	report, err := s.refresh(ctx, d, subjects)
	if err != nil {
		return nil, err
	}
	if report.Aggregate == models.AssignmentClosed {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "Assignment "+d.ID+" is closed; it cannot be published.")
	}
	if report.Aggregate == models.AssignmentInactive {
		s.logger.Info("assignment not initialized; initializing before publish", zap.String("deliverable_id", d.ID))
		initResult := s.initialize(ctx, d, subjects)
		if report, err = s.refresh(ctx, d, subjects); err != nil {
			return initResult, err
		}
		if report.Aggregate < models.AssignmentCreated {
			return initResult, appErrors.Clone(appErrors.ErrPreconditionFailed,
				"Assignment "+d.ID+" cannot be published until every repository has been created.")
		}
	}

	items := make([]batchItem, 0, len(subjects))
	for _, subj := range subjects {
		subj := subj
		items = append(items, batchItem{ID: subj.Person.ID, run: func(ctx context.Context) (bool, error) {
			return s.publishSubject(ctx, d, subj)
		}})
	}
	result := s.runBatch(ctx, d.ID, models.BatchPublish, items)
	if _, err := s.refresh(ctx, d, subjects); err != nil {
		return result, err
	}
	return result, nil
}

// CloseAllRepositories drops every assigned team to read-only access.
func (s *AssignmentService) CloseAllRepositories(ctx context.Context, deliverableID string) (*models.BatchResult, error) {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects(ctx, d)
	if err != nil {
		return nil, err
	}

	report, err := s.refresh(ctx, d, subjects)
	if err != nil {
		return nil, err
	}
	if report.Aggregate < models.AssignmentReleased {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			"Assignment "+d.ID+" cannot be closed before it has been published.")
	}

	items := make([]batchItem, 0, len(subjects))
	for _, subj := range subjects {
		subj := subj
		items = append(items, batchItem{ID: subj.Person.ID, run: func(ctx context.Context) (bool, error) {
			return s.closeSubject(ctx, subj)
		}})
	}
	result := s.runBatch(ctx, d.ID, models.BatchClose, items)
	if _, err := s.refresh(ctx, d, subjects); err != nil {
		return result, err
	}
	return result, nil
}

// UpdateAssignmentStatus recomputes the aggregate as the least-progressed
// status over all eligible students and caches it on the deliverable.
func (s *AssignmentService) UpdateAssignmentStatus(ctx context.Context, deliverableID string) (*models.AssignmentStatusReport, error) {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects(ctx, d)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, d, subjects)
}

// Roster lists every eligible student's repository status. It reads only and
// leaves the cached aggregate untouched.
func (s *AssignmentService) Roster(ctx context.Context, deliverableID string) ([]models.SubjectStatus, error) {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	subjects, err := s.subjects(ctx, d)
	if err != nil {
		return nil, err
	}

	out := make([]models.SubjectStatus, 0, len(subjects))
	for _, subj := range subjects {
		row := models.SubjectStatus{SubjectID: subj.Person.ID, RepositoryID: subj.RepoName, Status: models.AssignmentInactive}
		repo, err := s.store.Repos.FindByID(ctx, subj.RepoName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
		}
		if repo != nil {
			row.RepositoryURL = repo.URL
			row.Status = repo.Assignment.StatusOrInactive()
		}
		out = append(out, row)
	}
	return out, nil
}

// DeleteAllAssignmentRepositories removes every hosted repository, record and
// team of the assignment.
func (s *AssignmentService) DeleteAllAssignmentRepositories(ctx context.Context, deliverableID string) (*models.BatchResult, error) {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	repos, err := s.store.Repos.ListByDeliverable(ctx, d.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list repositories")
	}

	items := make([]batchItem, 0, len(repos))
	for _, repo := range repos {
		repoID := repo.ID
		items = append(items, batchItem{ID: repoID, run: func(ctx context.Context) (bool, error) {
			return false, s.deleteRepository(ctx, repoID)
		}})
	}
	result := s.runBatch(ctx, d.ID, models.BatchDelete, items)

	teams, err := s.store.Teams.ListByDeliverable(ctx, d.ID)
	if err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teams")
	}
	for _, team := range teams {
		if err := s.deleteTeam(ctx, team.ID); err != nil {
			result.Failures = append(result.Failures, failureFor(team.ID, err))
		}
	}

	policy := d.Policy
	if result.OK() {
		info := *policy.Assignment
		info.Repositories = nil
		info.Status = models.AssignmentInactive
		policy.Assignment = &info
		if err := s.store.Deliverables.UpdatePolicy(ctx, d.ID, policy); err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear assignment repositories")
		}
		s.metrics.SetAssignmentStatus(d.ID, models.AssignmentInactive)
	}
	return result, nil
}

// DeleteAssignmentRepository removes one repository of the assignment.
func (s *AssignmentService) DeleteAssignmentRepository(ctx context.Context, deliverableID, repoID string) error {
	d, err := s.loadAssignment(ctx, deliverableID)
	if err != nil {
		return err
	}
	repo, err := s.store.Repos.FindByID(ctx, repoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "repository not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
	}
	if repo.DeliverableID != d.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "repository "+repoID+" does not belong to "+d.ID)
	}
	if err := s.deleteRepository(ctx, repoID); err != nil {
		return err
	}

	policy := d.Policy
	info := *policy.Assignment
	info.Repositories = without(info.Repositories, repoID)
	policy.Assignment = &info
	if err := s.store.Deliverables.UpdatePolicy(ctx, d.ID, policy); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment repositories")
	}
	return nil
}

func (s *AssignmentService) initialize(ctx context.Context, d *models.Deliverable, subjects []assignmentSubject) *models.BatchResult {
	items := make([]batchItem, 0, len(subjects))
	for _, subj := range subjects {
		subj := subj
		items = append(items, batchItem{ID: subj.Person.ID, run: func(ctx context.Context) (bool, error) {
			return s.initializeSubject(ctx, d, subj)
		}})
	}
	return s.runBatch(ctx, d.ID, models.BatchInitialize, items)
}

func (s *AssignmentService) initializeSubject(ctx context.Context, d *models.Deliverable, subj assignmentSubject) (bool, error) {
	repo, err := s.store.Repos.FindByID(ctx, subj.RepoName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
	}
	if repo != nil && repo.Assignment.StatusOrInactive() >= models.AssignmentCreated {
		return true, nil
	}

	team, err := s.store.Teams.FindByID(ctx, subj.TeamName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	if team == nil {
		existing, err := s.store.Teams.ListForPerson(ctx, subj.Person.ID)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams")
		}
		member := subj.Person
		if _, err := ValidateTeam(TeamProposal{
			TeamID:        subj.TeamName,
			Deliverable:   d,
			MemberIDs:     []string{member.ID},
			Members:       []*models.Person{&member},
			ExistingTeams: existing,
			AdminOverride: true,
		}); err != nil {
			return false, err
		}
		team = &models.Team{
			ID:            subj.TeamName,
			DeliverableID: d.ID,
			PersonIDs:     []string{member.ID},
			Status:        models.TeamNotProvisioned,
		}
		if err := s.store.Teams.Upsert(ctx, team); err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create team")
		}
	}

	if repo == nil {
		repo = &models.Repository{
			ID:            subj.RepoName,
			DeliverableID: d.ID,
			TeamIDs:       []string{team.ID},
			Assignment: models.AssignmentRepoState{
				AssignmentIDs: []string{d.ID},
				Status:        models.AssignmentInactive,
				AssignedTeams: []string{team.ID},
			},
		}
		if err := s.store.Repos.Upsert(ctx, repo); err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create repository")
		}
	}

	// Student teams are attached at publish time.
	hosted, err := reconcileHosted(ctx, s.gateway, hostedRepo{
		Repo:     repo.ID,
		Team:     team.ID,
		Members:  []string{subj.Person.GitHubID},
		SeedURL:  d.Policy.Assignment.SeedRepoURL,
		SeedPath: d.Policy.Assignment.SeedRepoPath,
	}, s.logger)
	if err != nil {
		return false, appErrors.Hosting(err)
	}

	number := hosted.TeamNumber
	team.GitHubTeamNumber = &number
	team.URL = hosted.TeamURL
	team.Status = models.TeamProvisioned
	if err := s.store.Teams.Upsert(ctx, team); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record hosted team")
	}

	repo.URL = hosted.RepoURL
	repo.Flags.GitHubCreated = true
	repo.Assignment.Status = models.AssignmentCreated
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record hosted repository")
	}
	return false, nil
}

func (s *AssignmentService) publishSubject(ctx context.Context, d *models.Deliverable, subj assignmentSubject) (bool, error) {
	repo, err := s.subjectRepo(ctx, subj)
	if err != nil {
		return false, err
	}
	status := repo.Assignment.StatusOrInactive()
	if status >= models.AssignmentReleased {
		return true, nil
	}
	if status < models.AssignmentCreated {
		return false, appErrors.Clone(appErrors.ErrPreconditionFailed, "repository "+repo.ID+" has not been created")
	}

	teams := repo.Assignment.AssignedTeams
	if len(teams) == 0 {
		teams = repo.TeamIDs
	}
	for _, team := range teams {
		if err := ensureTeamAccess(ctx, s.gateway, team, repo.ID, hosting.PermissionPush); err != nil {
			return false, appErrors.Hosting(err)
		}
	}

	repo.Assignment.Status = models.AssignmentReleased
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record released repository")
	}
	return false, nil
}

func (s *AssignmentService) closeSubject(ctx context.Context, subj assignmentSubject) (bool, error) {
	repo, err := s.subjectRepo(ctx, subj)
	if err != nil {
		return false, err
	}
	status := repo.Assignment.StatusOrInactive()
	if status >= models.AssignmentClosed {
		return true, nil
	}
	if status < models.AssignmentReleased {
		return false, appErrors.Clone(appErrors.ErrPreconditionFailed, "repository "+repo.ID+" has not been released")
	}

	if err := s.gateway.SetRepoPermission(ctx, repo.ID, hosting.PermissionPull); err != nil {
		return false, appErrors.Hosting(err)
	}

	repo.Assignment.Status = models.AssignmentClosed
	if err := s.store.Repos.Upsert(ctx, repo); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record closed repository")
	}
	return false, nil
}

func (s *AssignmentService) deleteRepository(ctx context.Context, repoID string) error {
	if _, err := s.gateway.DeleteRepo(ctx, repoID); err != nil {
		return appErrors.Hosting(err)
	}
	if err := s.store.Repos.Delete(ctx, repoID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete repository record")
	}
	return nil
}

func (s *AssignmentService) deleteTeam(ctx context.Context, teamID string) error {
	if _, err := s.gateway.DeleteTeam(ctx, teamID); err != nil {
		return appErrors.Hosting(err)
	}
	if err := s.store.Teams.Delete(ctx, teamID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete team record")
	}
	return nil
}

// runBatch executes items with bounded parallelism. A failing item never
// cancels its siblings; each gets its own timeout.
func (s *AssignmentService) runBatch(ctx context.Context, deliverableID string, op models.BatchOperation, items []batchItem) *models.BatchResult {
	type outcome struct {
		skipped bool
		err     error
	}
	outcomes := make([]outcome, len(items))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			subjectCtx, cancel := context.WithTimeout(ctx, s.opts.SubjectTimeout)
			defer cancel()
			skipped, err := item.run(subjectCtx)
			outcomes[i] = outcome{skipped: skipped, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BatchResult{
		DeliverableID: deliverableID,
		Operation:     op,
		Attempted:     len(items),
		Succeeded:     []string{},
		Skipped:       []string{},
		Failures:      []models.SubjectFailure{},
	}
	for i, o := range outcomes {
		id := items[i].ID
		switch {
		case o.err != nil:
			result.Failures = append(result.Failures, failureFor(id, o.err))
			s.metrics.RecordBatchSubject(string(op), "failed")
			s.logger.Warn("batch subject failed",
				zap.String("deliverable_id", deliverableID),
				zap.String("operation", string(op)),
				zap.String("subject_id", id),
				zap.Error(o.err),
			)
		case o.skipped:
			result.Skipped = append(result.Skipped, id)
			s.metrics.RecordBatchSubject(string(op), "skipped")
		default:
			result.Succeeded = append(result.Succeeded, id)
			s.metrics.RecordBatchSubject(string(op), "succeeded")
		}
	}

	s.logger.Info("batch finished",
		zap.String("deliverable_id", deliverableID),
		zap.String("operation", string(op)),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failures)),
	)
	return result
}

// refresh computes the aggregate over subjects and writes the deliverable
// record once. CLOSED stays cached once reached; an empty roster keeps the
// cached value.
func (s *AssignmentService) refresh(ctx context.Context, d *models.Deliverable, subjects []assignmentSubject) (*models.AssignmentStatusReport, error) {
	cached := d.AssignmentStatus()
	report := &models.AssignmentStatusReport{DeliverableID: d.ID, TotalSubjects: len(subjects)}

	statuses := make([]models.AssignmentStatus, 0, len(subjects))
	var provided []string
	for _, subj := range subjects {
		repo, err := s.store.Repos.FindByID(ctx, subj.RepoName)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
		}
		status := models.AssignmentInactive
		if repo != nil {
			status = repo.Assignment.StatusOrInactive()
			provided = append(provided, repo.ID)
		}
		if status < models.AssignmentCreated {
			report.Laggards = append(report.Laggards, subj.Person.ID)
		} else {
			report.ProvidedCount++
		}
		statuses = append(statuses, status)
	}

	report.Computed = cached
	if len(statuses) > 0 {
		report.Computed = models.MinAssignmentStatus(statuses...)
	}
	report.Aggregate = report.Computed
	if cached == models.AssignmentClosed {
		report.Aggregate = models.AssignmentClosed
	}

	info := *d.Policy.Assignment
	info.Status = report.Aggregate
	info.Repositories = mergeIDs(info.Repositories, provided)
	if info.Status != d.Policy.Assignment.Status || len(info.Repositories) != len(d.Policy.Assignment.Repositories) {
		policy := d.Policy
		policy.Assignment = &info
		if err := s.store.Deliverables.UpdatePolicy(ctx, d.ID, policy); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cache assignment status")
		}
		d.Policy = policy
	}
	s.metrics.SetAssignmentStatus(d.ID, report.Aggregate)

	if len(report.Laggards) > 0 {
		s.logger.Info("assignment has subjects awaiting provisioning",
			zap.String("deliverable_id", d.ID),
			zap.Strings("laggards", report.Laggards),
		)
	}
	return report, nil
}

func (s *AssignmentService) subjectRepo(ctx context.Context, subj assignmentSubject) (*models.Repository, error) {
	repo, err := s.store.Repos.FindByID(ctx, subj.RepoName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "repository "+subj.RepoName+" has not been created")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repository")
	}
	return repo, nil
}

// subjects lists enrolled students who are members of the host organisation.
func (s *AssignmentService) subjects(ctx context.Context, d *models.Deliverable) ([]assignmentSubject, error) {
	students, err := s.store.People.ListByKind(ctx, models.PersonKindStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	members, err := s.gateway.ListOrgMembers(ctx)
	if err != nil {
		return nil, appErrors.Hosting(err)
	}

	teamPrefix := assignmentTeamPrefix(d)
	repoPrefix := d.RepoPrefix
	if repoPrefix == "" {
		repoPrefix = d.ID + "_"
	}

	subjects := make([]assignmentSubject, 0, len(students))
	for _, p := range students {
		if p.GitHubID == "" || !containsFold(members, p.GitHubID) {
			s.logger.Debug("student not in organisation; skipped", zap.String("deliverable_id", d.ID), zap.String("subject_id", p.ID))
			continue
		}
		subjects = append(subjects, assignmentSubject{
			Person:   p,
			TeamName: teamPrefix + p.GitHubID,
			RepoName: repoPrefix + p.GitHubID,
		})
	}
	return subjects, nil
}

func (s *AssignmentService) loadAssignment(ctx context.Context, id string) (*models.Deliverable, error) {
	d, err := s.store.Deliverables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable "+id+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	if !d.IsAssignment() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "deliverable "+id+" is not an assignment")
	}
	return d, nil
}

func failureFor(id string, err error) models.SubjectFailure {
	retryable := appErrors.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
	return models.SubjectFailure{
		SubjectID: id,
		Reason:    appErrors.FromError(err).Message,
		Retryable: retryable,
	}
}

func mergeIDs(current, extra []string) []string {
	seen := make(map[string]struct{}, len(current)+len(extra))
	out := make([]string, 0, len(current)+len(extra))
	for _, list := range [][]string{current, extra} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

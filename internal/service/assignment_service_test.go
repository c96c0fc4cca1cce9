package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type assignmentFixture struct {
	store   *memStore
	gateway *fakeGateway
	svc     *AssignmentService
}

func newAssignmentFixture(t *testing.T, students ...string) *assignmentFixture {
	t.Helper()
	store := newMemStore()
	store.addDeliverable(models.Deliverable{
		ID: "a1", TeamMinSize: 1, TeamMaxSize: 1,
		Policy: models.DeliverablePolicy{Assignment: &models.AssignmentPolicy{
			SeedRepoURL:  "https://github.com/course/a1_seed",
			SeedRepoPath: "*",
		}},
	})
	for _, s := range students {
		store.addStudent(s)
	}
	gateway := newFakeGateway(students...)
	svc := NewAssignmentService(store.facts(), gateway, AssignmentOptions{Concurrency: 2, SubjectTimeout: time.Second}, nil, nil)
	return &assignmentFixture{store: store, gateway: gateway, svc: svc}
}

func (f *assignmentFixture) cached(t *testing.T) models.AssignmentStatus {
	t.Helper()
	d, err := f.store.deliverables.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	return d.AssignmentStatus()
}

func (f *assignmentFixture) repoStatus(id string) models.AssignmentStatus {
	return f.store.repos.snapshot(id).Assignment.StatusOrInactive()
}

func TestInitializeAllRepositories(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	ctx := context.Background()

	res, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.ElementsMatch(t, []string{"s1", "s2"}, res.Succeeded)
	assert.Equal(t, models.AssignmentCreated, f.repoStatus("a1_s1"))
	assert.Equal(t, models.AssignmentCreated, f.cached(t))

	d, err := f.store.deliverables.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1_s1", "a1_s2"}, d.Policy.Assignment.Repositories)

	// Student teams only get access on publish.
	_, attached := f.gateway.permission("a1_s1", "a1_s1")
	assert.False(t, attached)

	res, err = f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, res.Skipped)
	assert.Empty(t, res.Succeeded)
	assert.Equal(t, 2, f.gateway.count("CreateRepo"))
}

func TestInitializeSkipsStudentsOutsideOrganisation(t *testing.T) {
	f := newAssignmentFixture(t, "s1")
	f.store.addStudent("outsider")

	res, err := f.svc.InitializeAllRepositories(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)

	report, err := f.svc.UpdateAssignmentStatus(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSubjects)
	assert.Equal(t, models.AssignmentCreated, report.Aggregate)
}

func TestInitializeFailureDoesNotAbortBatch(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2", "s3")
	f.gateway.failAlways["CreateRepo:a1_s2"] = errFakeHosting
	ctx := context.Background()

	res, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, res.OK())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "s2", res.Failures[0].SubjectID)
	assert.True(t, res.Failures[0].Retryable)
	assert.ElementsMatch(t, []string{"s1", "s3"}, res.Succeeded)

	assert.Equal(t, models.AssignmentCreated, f.repoStatus("a1_s1"))
	assert.Equal(t, models.AssignmentInactive, f.repoStatus("a1_s2"))
	assert.Equal(t, models.AssignmentInactive, f.cached(t))

	delete(f.gateway.failAlways, "CreateRepo:a1_s2")
	res, err = f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"s2"}, res.Succeeded)
	assert.Equal(t, models.AssignmentCreated, f.cached(t))
}

func TestUpdateAssignmentStatusIsMinimumOverStudents(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2", "s3")
	ctx := context.Background()
	_, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)

	for _, id := range []string{"a1_s1", "a1_s2"} {
		repo := f.store.repos.snapshot(id)
		repo.Assignment.Status = models.AssignmentReleased
		require.NoError(t, f.store.repos.Upsert(ctx, &repo))
	}

	report, err := f.svc.UpdateAssignmentStatus(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentCreated, report.Aggregate)
	assert.Equal(t, 3, report.TotalSubjects)
	assert.Equal(t, 3, report.ProvidedCount)

	repo := f.store.repos.snapshot("a1_s3")
	repo.Assignment.Status = models.AssignmentReleased
	require.NoError(t, f.store.repos.Upsert(ctx, &repo))

	report, err = f.svc.UpdateAssignmentStatus(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentReleased, report.Aggregate)
	assert.Equal(t, models.AssignmentReleased, f.cached(t))
}

func TestDriftDetectionAndReconciliation(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	ctx := context.Background()
	_, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)
	before := f.store.repos.snapshot("a1_s1")

	f.store.addStudent("late")
	f.gateway.addOrgMember("late")

	report, err := f.svc.UpdateAssignmentStatus(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentInactive, report.Aggregate)
	assert.Equal(t, 3, report.TotalSubjects)
	assert.Equal(t, 2, report.ProvidedCount)
	assert.Equal(t, []string{"late"}, report.Laggards)
	assert.Equal(t, models.AssignmentInactive, f.cached(t))

	res, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, res.Succeeded)
	assert.ElementsMatch(t, []string{"s1", "s2"}, res.Skipped)
	assert.Equal(t, 3, f.gateway.count("CreateRepo"))
	assert.Equal(t, before, f.store.repos.snapshot("a1_s1"))
	assert.Equal(t, models.AssignmentCreated, f.cached(t))
}

func TestPublishAndCloseLifecycle(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	ctx := context.Background()

	_, err := f.svc.CloseAllRepositories(ctx, "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	// Publishing an uninitialised assignment creates the repositories first.
	res, err := f.svc.PublishAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, models.AssignmentReleased, f.cached(t))
	perm, ok := f.gateway.permission("a1_s1", "a1_s1")
	require.True(t, ok)
	assert.Equal(t, "push", string(perm))

	res, err = f.svc.PublishAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, res.Skipped)

	res, err = f.svc.CloseAllRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, models.AssignmentClosed, f.cached(t))
	perm, _ = f.gateway.permission("a1_s2", "a1_s2")
	assert.Equal(t, "pull", string(perm))
	perm, _ = f.gateway.permission("a1_s2", "staff")
	assert.Equal(t, "admin", string(perm))

	_, err = f.svc.PublishAllRepositories(ctx, "a1")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	_, err = f.svc.InitializeAllRepositories(ctx, "a1")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

func TestClosedStatusIsSticky(t *testing.T) {
	f := newAssignmentFixture(t, "s1")
	ctx := context.Background()
	_, err := f.svc.PublishAllRepositories(ctx, "a1")
	require.NoError(t, err)
	_, err = f.svc.CloseAllRepositories(ctx, "a1")
	require.NoError(t, err)

	f.store.addStudent("late")
	f.gateway.addOrgMember("late")
	report, err := f.svc.UpdateAssignmentStatus(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AssignmentClosed, report.Aggregate)
	assert.Equal(t, models.AssignmentInactive, report.Computed)
}

func TestPublishRefusesWhileRepositoriesMissing(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	f.gateway.failAlways["CreateTeam:a1_s2"] = errFakeHosting

	res, err := f.svc.PublishAllRepositories(context.Background(), "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	require.NotNil(t, res)
	assert.Len(t, res.Failures, 1)
	assert.Equal(t, models.AssignmentInactive, f.cached(t))
	assert.Equal(t, models.AssignmentCreated, f.repoStatus("a1_s1"))
	assert.Equal(t, 0, f.gateway.count("SetRepoPermission"))
}

func TestDeleteAllAssignmentRepositories(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	ctx := context.Background()
	_, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)

	res, err := f.svc.DeleteAllAssignmentRepositories(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, res.OK())

	repos, _ := f.store.repos.ListByDeliverable(ctx, "a1")
	assert.Empty(t, repos)
	teams, _ := f.store.teams.ListByDeliverable(ctx, "a1")
	assert.Empty(t, teams)
	exists, _ := f.gateway.RepoExists(ctx, "a1_s1")
	assert.False(t, exists)

	d, err := f.store.deliverables.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, d.Policy.Assignment.Repositories)
	assert.Equal(t, models.AssignmentInactive, d.AssignmentStatus())
}

func TestDeleteAssignmentRepository(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	ctx := context.Background()
	_, err := f.svc.InitializeAllRepositories(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAssignmentRepository(ctx, "a1", "a1_s1"))
	d, err := f.store.deliverables.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1_s2"}, d.Policy.Assignment.Repositories)

	err = f.svc.DeleteAssignmentRepository(ctx, "a1", "a1_s1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAssignmentOperationsRequireAssignmentPolicy(t *testing.T) {
	f := newAssignmentFixture(t, "s1")
	f.store.addDeliverable(models.Deliverable{ID: "d0", TeamMinSize: 1, TeamMaxSize: 1})

	_, err := f.svc.UpdateAssignmentStatus(context.Background(), "d0")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
	_, err = f.svc.UpdateAssignmentStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/jobs"
)

func TestAssignmentRunDispatchesByOperation(t *testing.T) {
	f := newAssignmentFixture(t, "s1")
	ctx := context.Background()

	res, err := f.svc.Run(ctx, models.BatchInitialize, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchInitialize, res.Operation)

	res, err = f.svc.Run(ctx, models.BatchPublish, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchPublish, res.Operation)
	assert.Equal(t, models.AssignmentReleased, f.cached(t))

	_, err = f.svc.Run(ctx, models.BatchOperation("archive"), "a1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAssignmentHandleJobRetriesOnlyRetryableFailures(t *testing.T) {
	f := newAssignmentFixture(t, "s1", "s2")
	f.gateway.failAlways["CreateRepo:a1_s2"] = errFakeHosting
	job := jobs.Job{ID: "j1", Type: AssignmentJobType, Payload: AssignmentJob{DeliverableID: "a1", Operation: models.BatchInitialize}}

	out, err := f.svc.HandleJob(context.Background(), job)
	assert.ErrorIs(t, err, appErrors.ErrHostingUnavailable)
	res := out.(*models.BatchResult)
	assert.Equal(t, []string{"s1"}, res.Succeeded)

	delete(f.gateway.failAlways, "CreateRepo:a1_s2")
	out, err = f.svc.HandleJob(context.Background(), job)
	require.NoError(t, err)
	res = out.(*models.BatchResult)
	assert.Equal(t, []string{"s2"}, res.Succeeded)
	assert.Equal(t, []string{"s1"}, res.Skipped)
}

func TestAssignmentHandleJobRejectsForeignPayload(t *testing.T) {
	f := newAssignmentFixture(t)
	_, err := f.svc.HandleJob(context.Background(), jobs.Job{ID: "j2", Payload: "initialize"})
	assert.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
}

func TestAssignmentHandleJobFailsUnfixableBatchOnce(t *testing.T) {
	f := newAssignmentFixture(t, "s1")
	job := jobs.Job{ID: "j3", Type: AssignmentJobType, Payload: AssignmentJob{DeliverableID: "missing", Operation: models.BatchClose}}

	_, err := f.svc.HandleJob(context.Background(), job)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.True(t, jobs.IsPermanent(err))

	q := jobs.NewQueue("assignments", f.svc.HandleJob, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(job))
	var state jobs.State
	require.Eventually(t, func() bool {
		var ok bool
		state, ok = q.State("j3")
		return ok && state.Status == jobs.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, state.Attempts)
	assert.Contains(t, state.Error, "deliverable missing not found")
}

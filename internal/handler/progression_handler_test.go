package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/dto"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type progressionStub struct {
	provisioned  []service.ProvisionRequest
	provisionErr error
	pullRequests map[string]bool
}

func (s *progressionStub) Status(_ context.Context, personID string) (*models.StageReport, error) {
	if personID == "ghost" {
		return nil, appErrors.ErrUnknownSubject
	}
	return &models.StageReport{PersonID: personID, Stage: models.StageD1Unlocked}, nil
}

func (s *progressionStub) Provision(_ context.Context, req service.ProvisionRequest) (*models.ProvisionResult, error) {
	s.provisioned = append(s.provisioned, req)
	if s.provisionErr != nil {
		return nil, s.provisionErr
	}
	return &models.ProvisionResult{Stage: models.StageD1, Message: "D1 repository successfully provisioned.", Changed: true}, nil
}

func (s *progressionStub) RecordPullRequest(_ context.Context, repoID string) (bool, error) {
	changed, ok := s.pullRequests[repoID]
	if !ok {
		return false, appErrors.ErrNotFound
	}
	return changed, nil
}

func TestProgressionHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewProgressionHandler(&progressionStub{})

	c, w := newGinContext(http.MethodGet, "/learners/u1/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}}
	h.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	var report models.StageReport
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &report))
	assert.Equal(t, models.StageD1Unlocked, report.Stage)

	c, w = newGinContext(http.MethodGet, "/learners/ghost/status", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}
	h.Status(c)
	assert.Equal(t, appErrors.ErrUnknownSubject.Status, w.Code)
}

func TestProgressionHandlerProvisionDefaultsToCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &progressionStub{}
	h := NewProgressionHandler(stub)

	body, _ := json.Marshal(dto.ProvisionRequest{DeliverableID: "d1"})
	c, w := newGinContext(http.MethodPost, "/provision", body)
	asUser(c, "u1", models.RoleStudent)
	h.Provision(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, stub.provisioned, 1)
	assert.Equal(t, []string{"u1"}, stub.provisioned[0].MemberIDs)
}

func TestProgressionHandlerProvisionRequiresMembership(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &progressionStub{}
	h := NewProgressionHandler(stub)
	body, _ := json.Marshal(dto.ProvisionRequest{DeliverableID: "d1", MemberIDs: []string{"u2", "u3"}})

	c, w := newGinContext(http.MethodPost, "/provision", body)
	asUser(c, "u1", models.RoleStudent)
	h.Provision(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.provisioned)

	c, w = newGinContext(http.MethodPost, "/provision", body)
	asUser(c, "ta", models.RoleStaff)
	h.Provision(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, stub.provisioned, 1)
}

func TestProgressionHandlerProvisionSurfacesReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &progressionStub{provisionErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "All teammates must be eligible to join this team.")}
	h := NewProgressionHandler(stub)

	c, w := newGinContext(http.MethodPost, "/provision", []byte(`{"deliverable_id":"d1","member_ids":["u1","u2"]}`))
	asUser(c, "u1", models.RoleStudent)
	h.Provision(c)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "All teammates must be eligible to join this team.", env.Error.Message)
}

func TestProgressionHandlerRecordPullRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewProgressionHandler(&progressionStub{pullRequests: map[string]bool{"secap_u1": true}})

	c, w := newGinContext(http.MethodPost, "/repositories/secap_u1/pull-request", nil)
	c.Params = gin.Params{{Key: "id", Value: "secap_u1"}}
	h.RecordPullRequest(c)
	require.Equal(t, http.StatusOK, w.Code)
	var res dto.PullRequestResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &res))
	assert.True(t, res.Changed)

	c, w = newGinContext(http.MethodPost, "/repositories/other/pull-request", nil)
	c.Params = gin.Params{{Key: "id", Value: "other"}}
	h.RecordPullRequest(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

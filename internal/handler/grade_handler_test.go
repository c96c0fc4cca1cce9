package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type gradeStub struct {
	recorded []service.GradeRequest
}

func (s *gradeStub) Record(_ context.Context, req service.GradeRequest) (*service.GradeResult, error) {
	s.recorded = append(s.recorded, req)
	return &service.GradeResult{Grade: &models.Grade{PersonID: req.PersonID, DeliverableID: req.DeliverableID, Score: req.Score}, Changed: true}, nil
}

func (s *gradeStub) Get(_ context.Context, personID, deliverableID string) (*models.Grade, error) {
	for _, r := range s.recorded {
		if r.PersonID == personID && r.DeliverableID == deliverableID {
			return &models.Grade{PersonID: personID, DeliverableID: deliverableID, Score: r.Score}, nil
		}
	}
	return nil, appErrors.ErrNotFound
}

func TestGradeHandlerRecordAndGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &gradeStub{}
	h := NewGradeHandler(stub)

	c, w := newGinContext(http.MethodPost, "/grades", []byte(`{"person_id":"u1","deliverable_id":"d0","score":75}`))
	h.Record(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, stub.recorded, 1)
	assert.Equal(t, 75.0, *stub.recorded[0].Score)

	c, w = newGinContext(http.MethodGet, "/learners/u1/grades/d0", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}, {Key: "deliverableId", Value: "d0"}}
	h.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/learners/u1/grades/d9", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}, {Key: "deliverableId", Value: "d9"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGradeHandlerRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(&gradeStub{})

	c, w := newGinContext(http.MethodPost, "/grades", []byte(`{"score":"high"}`))
	h.Record(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

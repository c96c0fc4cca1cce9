package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

type gradeRecorder interface {
	Record(ctx context.Context, req service.GradeRequest) (*service.GradeResult, error)
	Get(ctx context.Context, personID, deliverableID string) (*models.Grade, error)
}

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades gradeRecorder
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades gradeRecorder) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Record godoc
// @Summary Record a grade
// @Description Staff grades overwrite; auto-test grades only ever raise the stored score
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Record(c *gin.Context) {
	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	res, err := h.grades.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Get a learner's grade for a deliverable
// @Tags Grades
// @Produce json
// @Param id path string true "Person ID"
// @Param deliverableId path string true "Deliverable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /learners/{id}/grades/{deliverableId} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.grades.Get(c.Request.Context(), c.Param("id"), c.Param("deliverableId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

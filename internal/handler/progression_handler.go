package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-portal-api/internal/dto"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

type progressionService interface {
	Status(ctx context.Context, personID string) (*models.StageReport, error)
	Provision(ctx context.Context, req service.ProvisionRequest) (*models.ProvisionResult, error)
	RecordPullRequest(ctx context.Context, repoID string) (bool, error)
}

// ProgressionHandler exposes the self-paced milestone ladder.
type ProgressionHandler struct {
	progression progressionService
}

// NewProgressionHandler constructs handler.
func NewProgressionHandler(progression progressionService) *ProgressionHandler {
	return &ProgressionHandler{progression: progression}
}

// Status godoc
// @Summary Resolve a learner's ladder stage
// @Tags Progression
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /learners/{id}/status [get]
func (h *ProgressionHandler) Status(c *gin.Context) {
	report, err := h.progression.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Provision godoc
// @Summary Provision the next milestone repository
// @Description Learners may only provision teams they belong to; staff may provision any team
// @Tags Progression
// @Accept json
// @Produce json
// @Param payload body dto.ProvisionRequest true "Provision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /provision [post]
func (h *ProgressionHandler) Provision(c *gin.Context) {
	var req dto.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	members := req.MemberIDs
	if len(members) == 0 {
		members = []string{claims.UserID}
	}
	if !claims.IsStaff() && !containsID(members, claims.UserID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "learners can only provision teams they belong to"))
		return
	}

	res, err := h.progression.Provision(c.Request.Context(), service.ProvisionRequest{
		DeliverableID: req.DeliverableID,
		MemberIDs:     members,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// RecordPullRequest godoc
// @Summary Record a milestone pull request
// @Tags Progression
// @Produce json
// @Param id path string true "Repository ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /repositories/{id}/pull-request [post]
func (h *ProgressionHandler) RecordPullRequest(c *gin.Context) {
	repoID := c.Param("id")
	changed, err := h.progression.RecordPullRequest(c.Request.Context(), repoID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.PullRequestResponse{RepositoryID: repoID, Changed: changed}, nil)
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if strings.EqualFold(candidate, id) {
			return true
		}
	}
	return false
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-portal-api/internal/dto"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

type teamService interface {
	FormTeam(ctx context.Context, req service.FormTeamRequest) (*service.FormTeamResult, error)
}

// TeamHandler exposes team formation to learners and staff.
type TeamHandler struct {
	teams teamService
}

// NewTeamHandler constructs handler.
func NewTeamHandler(teams teamService) *TeamHandler {
	return &TeamHandler{teams: teams}
}

// Form godoc
// @Summary Form a team
// @Description Learners may only form teams they join; deliverable policy always applies
// @Tags Teams
// @Accept json
// @Produce json
// @Param payload body dto.FormTeamRequest true "Team payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /teams [post]
func (h *TeamHandler) Form(c *gin.Context) {
	var req dto.FormTeamRequest
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
	if !containsID(members, claims.UserID) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "Users cannot form teams they are not going to join."))
		return
	}
	h.form(c, service.FormTeamRequest{DeliverableID: req.DeliverableID, MemberIDs: members})
}

// AdminForm godoc
// @Summary Form a team for any learners
// @Description admin_override lifts the size, self-forming, enrolment and lab checks
// @Tags Teams
// @Accept json
// @Produce json
// @Param payload body dto.FormTeamRequest true "Team payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admin/teams [post]
func (h *TeamHandler) AdminForm(c *gin.Context) {
	var req dto.FormTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	h.form(c, service.FormTeamRequest{
		DeliverableID: req.DeliverableID,
		MemberIDs:     req.MemberIDs,
		AdminOverride: req.AdminOverride,
	})
}

func (h *TeamHandler) form(c *gin.Context, req service.FormTeamRequest) {
	res, err := h.teams.FormTeam(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Created {
		response.Created(c, res.Team)
		return
	}
	response.JSON(c, http.StatusOK, res.Team, nil)
}

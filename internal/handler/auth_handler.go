package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-portal-api/internal/dto"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

type identityVerifier interface {
	Login(ctx context.Context, accessToken string) (string, error)
}

type learnerRegistry interface {
	RegisterLearner(ctx context.Context, githubID string) (*models.Person, bool, error)
}

type tokenIssuer interface {
	Issue(person *models.Person) (*service.IssuedToken, error)
}

// AuthHandler signs learners in with their hosting-service identity.
type AuthHandler struct {
	identity identityVerifier
	learners learnerRegistry
	tokens   tokenIssuer
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(identity identityVerifier, learners learnerRegistry, tokens tokenIssuer) *AuthHandler {
	return &AuthHandler{identity: identity, learners: learners, tokens: tokens}
}

// Register godoc
// @Summary Register or sign in a learner
// @Description Exchanges a hosting-service access token for a portal token, recording first-time learners
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body dto.SignInRequest true "Sign-in payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /learners/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign-in payload"))
		return
	}

	login, err := h.identity.Login(c.Request.Context(), req.AccessToken)
	if err != nil {
		response.Error(c, err)
		return
	}
	person, created, err := h.learners.RegisterLearner(c.Request.Context(), login)
	if err != nil {
		response.Error(c, err)
		return
	}
	token, err := h.tokens.Issue(person)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, dto.SignInResponse{Person: person, Created: created, Token: token}, nil)
}

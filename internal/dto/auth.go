package dto

import (
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
)

// SignInRequest captures POST /learners/register payload. The access token
// is a hosting-service user token obtained by the client's OAuth flow.
type SignInRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// SignInResponse returns the portal token for the caller.
type SignInResponse struct {
	Person  *models.Person       `json:"person"`
	Created bool                 `json:"created"`
	Token   *service.IssuedToken `json:"token"`
}

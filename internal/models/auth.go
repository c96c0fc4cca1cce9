package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles carried in access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStaff   UserRole = "STAFF"
	RoleStudent UserRole = "STUDENT"
)

// JWTClaims represents the JWT payload for access tokens. UserID is the
// person id of the caller.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	GitHubID string   `json:"github_id,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the caller may run course staff operations.
func (c *JWTClaims) IsStaff() bool {
	if c == nil {
		return false
	}
	return c.Role == RoleAdmin || c.Role == RoleStaff
}

package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// TokenConfig defines how access tokens are signed.
type TokenConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// IssuedToken is a signed access token and its expiry.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenService issues and validates HS256 access tokens. Identity comes from
// the hosting service login; the portal never stores credentials.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig) *TokenService {
	if config.Expiry <= 0 {
		config.Expiry = 24 * time.Hour
	}
	return &TokenService{config: config, now: time.Now}
}

// Issue signs a token for person. Withdrawn people cannot sign in.
func (s *TokenService) Issue(person *models.Person) (*IssuedToken, error) {
	role, err := roleFor(person)
	if err != nil {
		return nil, err
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiry)
	claims := &models.JWTClaims{
		UserID:   person.ID,
		Role:     role,
		GitHubID: person.GitHubID,
		FullName: strings.TrimSpace(person.FirstName + " " + person.LastName),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   person.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return &IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if s.config.Issuer != "" && claims.Issuer != s.config.Issuer {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token issuer")
	}
	return claims, nil
}

func roleFor(person *models.Person) (models.UserRole, error) {
	if person == nil {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "unknown person")
	}
	switch person.Kind {
	case models.PersonKindAdmin:
		return models.RoleAdmin, nil
	case models.PersonKindStaff:
		return models.RoleStaff, nil
	case models.PersonKindStudent:
		return models.RoleStudent, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "person is not an active member of the course")
	}
}

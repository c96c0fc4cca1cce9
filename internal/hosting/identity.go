package hosting

import (
	"context"
	"strings"

	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// IdentityVerifier resolves a user access token to the hosting handle that
// owns it.
type IdentityVerifier struct {
	apiURL string
}

// NewIdentityVerifier builds a verifier against the public or enterprise API.
func NewIdentityVerifier(apiURL string) *IdentityVerifier {
	return &IdentityVerifier{apiURL: apiURL}
}

// Login returns the handle of the token's owner.
func (v *IdentityVerifier) Login(ctx context.Context, accessToken string) (string, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "access token required")
	}
	client, err := NewGitHubClient(ctx, accessToken, v.apiURL)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build hosting client")
	}
	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil && resp.StatusCode == 401 {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "hosting service rejected the access token")
		}
		return "", appErrors.Hosting(err)
	}
	login := user.GetLogin()
	if login == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "access token has no user")
	}
	return login, nil
}

package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

const maxNameAttempts = 32

type resourceNames struct {
	Team string
	Repo string
}

// individualNames derives team and repository names for a single learner.
func individualNames(d *models.Deliverable, personID string) resourceNames {
	return resourceNames{Team: d.TeamPrefix + personID, Repo: d.RepoPrefix + personID}
}

// generatedNames draws a random team name not yet used by any team.
func generatedNames(ctx context.Context, teams teamStore, d *models.Deliverable) (resourceNames, error) {
	for i := 0; i < maxNameAttempts; i++ {
		suffix, err := randomHex(3)
		if err != nil {
			return resourceNames{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate team name")
		}
		name := d.TeamPrefix + suffix
		_, err = teams.FindByID(ctx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return resourceNames{Team: name, Repo: d.RepoPrefix + name}, nil
		}
		if err != nil {
			return resourceNames{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check team name")
		}
	}
	return resourceNames{}, appErrors.Clone(appErrors.ErrInternal, "unable to find an unused team name")
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

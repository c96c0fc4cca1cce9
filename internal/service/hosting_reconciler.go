package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/hosting"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// hostedRepo is the desired hosted state of one repository.
type hostedRepo struct {
	Repo       string
	Team       string
	Members    []string
	AttachTeam bool
	SeedURL    string
	SeedPath   string
}

type hostedResult struct {
	RepoURL    string
	TeamURL    string
	TeamNumber int64
	Created    []string
}

// reconcileHosted drives the host toward want. Each step checks what already
// exists first, so a retry after partial failure performs only the missing
// remainder.
func reconcileHosted(ctx context.Context, gw HostingGateway, want hostedRepo, logger *zap.Logger) (hostedResult, error) {
	res := hostedResult{RepoURL: gw.RepoURL(want.Repo), TeamURL: gw.TeamURL(want.Team)}
	log := logger.With(zap.String("repo", want.Repo), zap.String("team", want.Team))

	exists, err := gw.RepoExists(ctx, want.Repo)
	if err != nil {
		return res, err
	}
	if !exists {
		url, err := gw.CreateRepo(ctx, want.Repo)
		if err != nil {
			return res, err
		}
		if url != "" {
			res.RepoURL = url
		}
		res.Created = append(res.Created, "repo")
	}

	if err := ensureTeam(ctx, gw, want.Team, &res); err != nil {
		return res, err
	}
	err = ensureMembers(ctx, gw, want.Team, want.Members)
	if errors.Is(err, appErrors.ErrNotFound) {
		// A cached team number outlived the team; the gateway has dropped
		// it, so the second lookup asks the host.
		log.Warn("team vanished on host, re-creating", zap.Error(err))
		if err := ensureTeam(ctx, gw, want.Team, &res); err != nil {
			return res, err
		}
		err = ensureMembers(ctx, gw, want.Team, want.Members)
	}
	if err != nil {
		return res, err
	}

	attached, err := gw.ListRepoTeams(ctx, want.Repo)
	if err != nil {
		return res, err
	}
	for _, staff := range gw.StaffTeams() {
		if !hasTeamAccess(attached, staff) {
			if err := gw.AddTeamToRepo(ctx, staff, want.Repo, hosting.PermissionAdmin); err != nil {
				return res, err
			}
		}
	}
	if want.AttachTeam && !hasTeamAccess(attached, want.Team) {
		if err := gw.AddTeamToRepo(ctx, want.Team, want.Repo, hosting.PermissionPush); err != nil {
			return res, err
		}
	}

	if hook := gw.WebhookURL(); hook != "" {
		hooks, err := gw.ListWebhooks(ctx, want.Repo)
		if err != nil {
			return res, err
		}
		if !containsFold(hooks, hook) {
			if err := gw.AddWebhook(ctx, want.Repo, hook); err != nil {
				return res, err
			}
			res.Created = append(res.Created, "webhook")
		}
	}

	if want.SeedURL != "" {
		seeded, err := gw.RepoHasCommits(ctx, want.Repo)
		if err != nil {
			return res, err
		}
		if !seeded {
			if err := gw.ImportRepoFS(ctx, want.SeedURL, want.Repo, want.SeedPath); err != nil {
				return res, err
			}
			res.Created = append(res.Created, "seed")
		}
	}

	log.Info("hosted repository reconciled", zap.Strings("created", res.Created))
	return res, nil
}

func ensureTeam(ctx context.Context, gw HostingGateway, team string, res *hostedResult) error {
	number, found, err := gw.TeamNumber(ctx, team)
	if err != nil {
		return err
	}
	if !found {
		ref, err := gw.CreateTeam(ctx, team, hosting.PermissionPush)
		if err != nil {
			return err
		}
		number = ref.Number
		res.Created = append(res.Created, "team")
	}
	res.TeamNumber = number
	return nil
}

func ensureMembers(ctx context.Context, gw HostingGateway, team string, members []string) error {
	if len(members) == 0 {
		return nil
	}
	current, err := gw.ListTeamMembers(ctx, team)
	if err != nil {
		return err
	}
	var missing []string
	for _, m := range members {
		if !containsFold(current, m) {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return gw.AddMembersToTeam(ctx, team, missing)
}

// ensureTeamAccess grants a team permission on the repository unless it
// already holds it.
func ensureTeamAccess(ctx context.Context, gw HostingGateway, team, repo string, permission hosting.Permission) error {
	attached, err := gw.ListRepoTeams(ctx, repo)
	if err != nil {
		return err
	}
	for _, a := range attached {
		if teamMatches(a, team) && a.Permission == permission {
			return nil
		}
	}
	return gw.AddTeamToRepo(ctx, team, repo, permission)
}

func hasTeamAccess(attached []hosting.TeamAccess, team string) bool {
	for _, a := range attached {
		if teamMatches(a, team) {
			return true
		}
	}
	return false
}

func teamMatches(a hosting.TeamAccess, team string) bool {
	return strings.EqualFold(a.Name, team) || strings.EqualFold(a.Slug, team)
}

func containsFold(values []string, needle string) bool {
	for _, v := range values {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}

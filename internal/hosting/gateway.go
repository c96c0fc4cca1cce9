package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// Permission is a team's access level on a repository.
type Permission string

const (
	PermissionPull  Permission = "pull"
	PermissionPush  Permission = "push"
	PermissionAdmin Permission = "admin"
)

// TeamRef identifies a hosted team.
type TeamRef struct {
	Name   string `json:"name"`
	Number int64  `json:"number"`
}

// TeamAccess is a team attached to a repository with its permission.
type TeamAccess struct {
	Name       string     `json:"name"`
	Slug       string     `json:"slug"`
	Number     int64      `json:"number"`
	Permission Permission `json:"permission"`
}

var webhookEvents = []string{"commit_comment", "push", "issue_comment", "pull_request"}

const pageSize = 100

type teamNumberCache interface {
	LookupTeamNumber(ctx context.Context, org, teamName string) (int64, bool)
	StoreTeamNumber(ctx context.Context, org, teamName string, number int64, ttl time.Duration)
	ForgetTeamNumber(ctx context.Context, org, teamName string)
}

type noCache struct{}

func (noCache) LookupTeamNumber(context.Context, string, string) (int64, bool) { return 0, false }
func (noCache) StoreTeamNumber(context.Context, string, string, int64, time.Duration) {}
func (noCache) ForgetTeamNumber(context.Context, string, string) {}

type callObserver interface {
	ObserveHostingCall(call, outcome string, elapsed time.Duration)
}

type seedImporter interface {
	Import(ctx context.Context, sourceURL, targetURL, seedPath string) error
}

// Gateway implements repository hosting operations on the GitHub REST API.
// Every call is rate limited, retried on transient failures and mapped onto
// the application error taxonomy.
type Gateway struct {
	client   *github.Client
	cfg      Config
	limiter  *rate.Limiter
	cache    teamNumberCache
	metrics  callObserver
	importer seedImporter
	logger   *zap.Logger
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithTeamCache caches team numbers by name.
func WithTeamCache(cache teamNumberCache) GatewayOption {
	return func(g *Gateway) { g.cache = cache }
}

// WithMetrics records call outcomes and latency.
func WithMetrics(metrics callObserver) GatewayOption {
	return func(g *Gateway) { g.metrics = metrics }
}

// WithImporter sets the seed content importer.
func WithImporter(importer seedImporter) GatewayOption {
	return func(g *Gateway) { g.importer = importer }
}

// NewGateway constructs a Gateway for the configured organisation.
func NewGateway(client *github.Client, cfg Config, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if cfg.Host == "" {
		cfg.Host = "https://github.com"
	}
	g := &Gateway{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("component", "github_gateway"), zap.String("org", cfg.Org)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cache == nil {
		g.cache = noCache{}
	}
	return g
}

// Org returns the organisation the gateway manages.
func (g *Gateway) Org() string { return g.cfg.Org }

// RepoURL returns the browse URL of a repository.
func (g *Gateway) RepoURL(repoName string) string {
	return g.cfg.Host + "/" + g.cfg.Org + "/" + repoName
}

// TeamURL returns the browse URL of a team.
func (g *Gateway) TeamURL(teamName string) string {
	return g.cfg.Host + "/orgs/" + g.cfg.Org + "/teams/" + slug(teamName)
}

// RepoExists reports whether the repository exists on the host.
func (g *Gateway) RepoExists(ctx context.Context, repoName string) (bool, error) {
	err := g.call(ctx, "repos.get", func() (*github.Response, error) {
		_, resp, err := g.client.Repositories.Get(ctx, g.cfg.Org, repoName)
		return resp, err
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateRepo creates a private repository and returns its browse URL. A
// repository that already exists surfaces as a retryable conflict.
func (g *Gateway) CreateRepo(ctx context.Context, repoName string) (string, error) {
	var created *github.Repository
	err := g.call(ctx, "repos.create", func() (*github.Response, error) {
		repo, resp, err := g.client.Repositories.Create(ctx, g.cfg.Org, &github.Repository{
			Name:         github.String(repoName),
			Private:      github.Bool(true),
			HasIssues:    github.Bool(true),
			HasWiki:      github.Bool(false),
			HasDownloads: github.Bool(false),
			AutoInit:     github.Bool(false),
		})
		created = repo
		return resp, err
	})
	if err != nil {
		return "", err
	}
	g.logger.Info("repository created", zap.String("repo", repoName))
	if url := created.GetHTMLURL(); url != "" {
		return url, nil
	}
	return g.RepoURL(repoName), nil
}

// DeleteRepo removes a repository. It reports false when nothing was there.
func (g *Gateway) DeleteRepo(ctx context.Context, repoName string) (bool, error) {
	err := g.call(ctx, "repos.delete", func() (*github.Response, error) {
		return g.client.Repositories.Delete(ctx, g.cfg.Org, repoName)
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	g.logger.Info("repository deleted", zap.String("repo", repoName))
	return true, nil
}

// RepoHasCommits reports whether any branch exists, meaning content has
// already been pushed.
func (g *Gateway) RepoHasCommits(ctx context.Context, repoName string) (bool, error) {
	var branches []*github.Branch
	err := g.call(ctx, "repos.list_branches", func() (*github.Response, error) {
		list, resp, err := g.client.Repositories.ListBranches(ctx, g.cfg.Org, repoName, &github.BranchListOptions{
			ListOptions: github.ListOptions{PerPage: 1},
		})
		branches = list
		return resp, err
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(branches) > 0, nil
}

// TeamNumber looks a team up by name. The boolean is false when the team
// does not exist.
func (g *Gateway) TeamNumber(ctx context.Context, teamName string) (int64, bool, error) {
	if number, ok := g.cache.LookupTeamNumber(ctx, g.cfg.Org, teamName); ok {
		return number, true, nil
	}

	var team *github.Team
	err := g.call(ctx, "teams.get", func() (*github.Response, error) {
		t, resp, err := g.client.Teams.GetTeamBySlug(ctx, g.cfg.Org, slug(teamName))
		team = t
		return resp, err
	})
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	number := team.GetID()
	g.cache.StoreTeamNumber(ctx, g.cfg.Org, teamName, number, g.cfg.TeamCacheTTL)
	return number, true, nil
}

// CreateTeam creates a closed team with the given default permission.
func (g *Gateway) CreateTeam(ctx context.Context, teamName string, permission Permission) (TeamRef, error) {
	if err := validPermission(permission, true); err != nil {
		return TeamRef{}, err
	}

	var team *github.Team
	err := g.call(ctx, "teams.create", func() (*github.Response, error) {
		t, resp, err := g.client.Teams.CreateTeam(ctx, g.cfg.Org, github.NewTeam{
			Name:       teamName,
			Privacy:    github.String("closed"),
			Permission: github.String(string(permission)),
		})
		team = t
		return resp, err
	})
	if err != nil {
		return TeamRef{}, err
	}

	ref := TeamRef{Name: teamName, Number: team.GetID()}
	g.cache.StoreTeamNumber(ctx, g.cfg.Org, teamName, ref.Number, g.cfg.TeamCacheTTL)
	g.logger.Info("team created", zap.String("team", teamName), zap.Int64("team_number", ref.Number))
	return ref, nil
}

// DeleteTeam removes a team. It reports false when nothing was there.
func (g *Gateway) DeleteTeam(ctx context.Context, teamName string) (bool, error) {
	g.cache.ForgetTeamNumber(ctx, g.cfg.Org, teamName)
	err := g.call(ctx, "teams.delete", func() (*github.Response, error) {
		return g.client.Teams.DeleteTeamBySlug(ctx, g.cfg.Org, slug(teamName))
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// teamCall runs a team-scoped call. A team the host no longer knows is
// dropped from the number cache so the next TeamNumber asks the host.
func (g *Gateway) teamCall(ctx context.Context, teamName, name string, op func() (*github.Response, error)) error {
	err := g.call(ctx, name, op)
	if isNotFound(err) {
		g.cache.ForgetTeamNumber(ctx, g.cfg.Org, teamName)
		g.logger.Warn("team missing on host, cached number dropped", zap.String("team", teamName), zap.String("call", name))
	}
	return err
}

// ListTeamMembers returns the handles of a team's members.
func (g *Gateway) ListTeamMembers(ctx context.Context, teamName string) ([]string, error) {
	var members []string
	opts := &github.TeamListTeamMembersOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	for {
		var (
			users []*github.User
			next  int
		)
		err := g.teamCall(ctx, teamName, "teams.list_members", func() (*github.Response, error) {
			list, resp, err := g.client.Teams.ListTeamMembersBySlug(ctx, g.cfg.Org, slug(teamName), opts)
			users = list
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			members = append(members, u.GetLogin())
		}
		if next == 0 {
			return members, nil
		}
		opts.Page = next
	}
}

// AddMembersToTeam adds each member to the team. Membership writes are
// idempotent on the host.
func (g *Gateway) AddMembersToTeam(ctx context.Context, teamName string, members []string) error {
	for _, member := range members {
		err := g.teamCall(ctx, teamName, "teams.add_membership", func() (*github.Response, error) {
			_, resp, err := g.client.Teams.AddTeamMembershipBySlug(ctx, g.cfg.Org, slug(teamName), member,
				&github.TeamAddTeamMembershipOptions{Role: "member"})
			return resp, err
		})
		if err != nil {
			return err
		}
	}
	g.logger.Info("team members added", zap.String("team", teamName), zap.Strings("members", members))
	return nil
}

// AddTeamToRepo grants a team access to a repository.
func (g *Gateway) AddTeamToRepo(ctx context.Context, teamName, repoName string, permission Permission) error {
	if err := validPermission(permission, true); err != nil {
		return err
	}
	err := g.teamCall(ctx, teamName, "teams.add_repo", func() (*github.Response, error) {
		return g.client.Teams.AddTeamRepoBySlug(ctx, g.cfg.Org, slug(teamName), g.cfg.Org, repoName,
			&github.TeamAddTeamRepoOptions{Permission: string(permission)})
	})
	if err != nil {
		return err
	}
	g.logger.Info("team added to repository", zap.String("team", teamName), zap.String("repo", repoName), zap.String("permission", string(permission)))
	return nil
}

// ListRepoTeams returns the teams attached to a repository.
func (g *Gateway) ListRepoTeams(ctx context.Context, repoName string) ([]TeamAccess, error) {
	var access []TeamAccess
	opts := &github.ListOptions{PerPage: pageSize}
	for {
		var (
			teams []*github.Team
			next  int
		)
		err := g.call(ctx, "repos.list_teams", func() (*github.Response, error) {
			list, resp, err := g.client.Repositories.ListTeams(ctx, g.cfg.Org, repoName, opts)
			teams = list
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			access = append(access, TeamAccess{
				Name:       t.GetName(),
				Slug:       t.GetSlug(),
				Number:     t.GetID(),
				Permission: Permission(t.GetPermission()),
			})
		}
		if next == 0 {
			return access, nil
		}
		opts.Page = next
	}
}

// SetRepoPermission changes every non-admin team on the repository to the
// given permission.
func (g *Gateway) SetRepoPermission(ctx context.Context, repoName string, permission Permission) error {
	if err := validPermission(permission, false); err != nil {
		return err
	}
	teams, err := g.ListRepoTeams(ctx, repoName)
	if err != nil {
		return err
	}
	for _, team := range teams {
		if team.Permission == PermissionAdmin || team.Permission == permission {
			continue
		}
		teamSlug := team.Slug
		if teamSlug == "" {
			teamSlug = slug(team.Name)
		}
		err := g.teamCall(ctx, team.Name, "teams.add_repo", func() (*github.Response, error) {
			return g.client.Teams.AddTeamRepoBySlug(ctx, g.cfg.Org, teamSlug, g.cfg.Org, repoName,
				&github.TeamAddTeamRepoOptions{Permission: string(permission)})
		})
		if err != nil {
			return err
		}
		g.logger.Info("team permission changed", zap.String("team", team.Name), zap.String("repo", repoName), zap.String("permission", string(permission)))
	}
	return nil
}

// ListWebhooks returns the delivery URLs of the repository's webhooks.
func (g *Gateway) ListWebhooks(ctx context.Context, repoName string) ([]string, error) {
	var hooks []*github.Hook
	err := g.call(ctx, "repos.list_hooks", func() (*github.Response, error) {
		list, resp, err := g.client.Repositories.ListHooks(ctx, g.cfg.Org, repoName, &github.ListOptions{PerPage: pageSize})
		hooks = list
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(hooks))
	for _, h := range hooks {
		if u, ok := h.Config["url"].(string); ok {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// AddWebhook registers the course webhook on a repository.
func (g *Gateway) AddWebhook(ctx context.Context, repoName, endpoint string) error {
	hookConfig := map[string]interface{}{
		"url":          endpoint,
		"content_type": "json",
	}
	if g.cfg.WebhookSecret != "" {
		hookConfig["secret"] = g.cfg.WebhookSecret
	}
	err := g.call(ctx, "repos.create_hook", func() (*github.Response, error) {
		_, resp, err := g.client.Repositories.CreateHook(ctx, g.cfg.Org, repoName, &github.Hook{
			Events: webhookEvents,
			Active: github.Bool(true),
			Config: hookConfig,
		})
		return resp, err
	})
	if err != nil {
		return err
	}
	g.logger.Info("webhook added", zap.String("repo", repoName))
	return nil
}

// WebhookURL returns the configured webhook endpoint.
func (g *Gateway) WebhookURL() string { return g.cfg.WebhookURL }

// StaffTeams returns the configured staff and admin team names.
func (g *Gateway) StaffTeams() []string {
	var teams []string
	for _, name := range []string{g.cfg.StaffTeam, g.cfg.AdminTeam} {
		if name != "" {
			teams = append(teams, name)
		}
	}
	return teams
}

// ListOrgMembers returns the handles of every organisation member.
func (g *Gateway) ListOrgMembers(ctx context.Context) ([]string, error) {
	var members []string
	opts := &github.ListMembersOptions{ListOptions: github.ListOptions{PerPage: pageSize}}
	for {
		var (
			users []*github.User
			next  int
		)
		err := g.call(ctx, "orgs.list_members", func() (*github.Response, error) {
			list, resp, err := g.client.Organizations.ListMembers(ctx, g.cfg.Org, opts)
			users = list
			if resp != nil {
				next = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			members = append(members, u.GetLogin())
		}
		if next == 0 {
			return members, nil
		}
		opts.Page = next
	}
}

// ImportRepoFS seeds a repository from sourceURL, optionally restricted to
// seedPath.
func (g *Gateway) ImportRepoFS(ctx context.Context, sourceURL, repoName, seedPath string) error {
	if sourceURL == "" {
		g.logger.Info("seed import skipped; no source", zap.String("repo", repoName))
		return nil
	}
	if g.importer == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "seed importer not configured")
	}
	start := time.Now()
	err := g.importer.Import(ctx, sourceURL, g.RepoURL(repoName)+".git", seedPath)
	g.observe("git.import", err, time.Since(start))
	if err != nil {
		return appErrors.Hosting(fmt.Errorf("import seed into %s: %w", repoName, err))
	}
	g.logger.Info("seed imported", zap.String("repo", repoName), zap.Duration("took", time.Since(start)))
	return nil
}

// call runs a rate-limited, retried API call and maps its failure.
func (g *Gateway) call(ctx context.Context, name string, op func() (*github.Response, error)) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		g.observe(name, err, time.Since(start))
		return appErrors.Hosting(fmt.Errorf("%s: wait for rate limiter: %w", name, err))
	}
	resp, err := retryOperation(ctx, g.cfg.Retry, g.logger, name, op)
	if err != nil && statusCode(resp) == http.StatusNotFound {
		g.observe(name, nil, time.Since(start))
		notFound := appErrors.Clone(appErrors.ErrNotFound, name+": not found on host")
		notFound.Err = err
		return notFound
	}
	g.observe(name, err, time.Since(start))
	if err == nil {
		return nil
	}
	if statusCode(resp) == http.StatusUnprocessableEntity {
		conflict := appErrors.Clone(appErrors.ErrHostingConflict, "")
		conflict.Err = fmt.Errorf("%s: %w", name, err)
		return conflict
	}
	return appErrors.Hosting(fmt.Errorf("%s: %w", name, err))
}

func (g *Gateway) observe(name string, err error, elapsed time.Duration) {
	if g.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	g.metrics.ObserveHostingCall(name, outcome, elapsed)
}

func isNotFound(err error) bool {
	return errors.Is(err, appErrors.ErrNotFound)
}

func validPermission(p Permission, allowAdmin bool) error {
	switch p {
	case PermissionPull, PermissionPush:
		return nil
	case PermissionAdmin:
		if allowAdmin {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid permission %q", p))
}

// slug mirrors how the host derives team slugs from names.
func slug(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

package hosting

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/noah-isme/course-portal-api/pkg/config"
)

// Config holds the gateway settings derived from application config.
type Config struct {
	Org           string
	Host          string
	WebhookURL    string
	WebhookSecret string
	StaffTeam     string
	AdminTeam     string
	RateLimit     float64
	RateBurst     int
	Retry         RetryConfig
	TeamCacheTTL  time.Duration
}

// ConfigFrom maps application config onto gateway settings.
func ConfigFrom(cfg config.GitHubConfig) Config {
	host := cfg.Host
	if host == "" {
		host = "https://github.com"
	}
	return Config{
		Org:           cfg.Org,
		Host:          strings.TrimRight(host, "/"),
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecret,
		StaffTeam:     cfg.StaffTeam,
		AdminTeam:     cfg.AdminTeam,
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
		Retry: RetryConfig{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.RetryBackoff,
		},
		TeamCacheTTL: cfg.TeamCacheTTL,
	}
}

// NewGitHubClient creates an authenticated GitHub client. apiURL overrides
// the public API endpoint for enterprise installs.
func NewGitHubClient(ctx context.Context, token, apiURL string) (*github.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if apiURL != "" {
		base, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

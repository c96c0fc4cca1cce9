package hosting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

type memTeamCache struct {
	mu      sync.Mutex
	numbers map[string]int64
}

func (c *memTeamCache) LookupTeamNumber(_ context.Context, org, name string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.numbers[org+"/"+name]
	return n, ok
}

func (c *memTeamCache) StoreTeamNumber(_ context.Context, org, name string, number int64, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numbers[org+"/"+name] = number
}

func (c *memTeamCache) ForgetTeamNumber(_ context.Context, org, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.numbers, org+"/"+name)
}

type recordedCall struct {
	call    string
	outcome string
}

type callRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *callRecorder) ObserveHostingCall(call, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{call, outcome})
}

func newTestGateway(t *testing.T, mux *http.ServeMux, opts ...GatewayOption) *Gateway {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	cfg := Config{
		Org:        "course",
		Host:       "https://github.example.com",
		WebhookURL: "https://portal.example.com/githubWebhook",
		Retry:      RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}
	return NewGateway(client, cfg, nil, opts...)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestGatewayRepoExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/course/d0_u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": "d0_u1"})
	})
	mux.HandleFunc("/repos/course/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	recorder := &callRecorder{}
	gw := newTestGateway(t, mux, WithMetrics(recorder))

	exists, err := gw.RepoExists(context.Background(), "d0_u1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = gw.RepoExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []recordedCall{{"repos.get", "success"}, {"repos.get", "success"}}, recorder.calls)
}

func TestGatewayCreateRepoConflictIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/course/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "name already exists on this account"})
	})
	gw := newTestGateway(t, mux)

	_, err := gw.CreateRepo(context.Background(), "d0_u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrHostingConflict)
	assert.True(t, appErrors.IsRetryable(err))
}

func TestGatewayCreateRepoReturnsURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/course/repos", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "d0_u1", body["name"])
		assert.Equal(t, true, body["private"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{"name": "d0_u1", "html_url": "https://github.example.com/course/d0_u1"})
	})
	gw := newTestGateway(t, mux)

	repoURL, err := gw.CreateRepo(context.Background(), "d0_u1")
	require.NoError(t, err)
	assert.Equal(t, "https://github.example.com/course/d0_u1", repoURL)
}

func TestGatewayServerErrorsSurfaceAsUnavailable(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/course/d0_u1", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
	})
	gw := newTestGateway(t, mux)

	_, err := gw.RepoExists(context.Background(), "d0_u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrHostingUnavailable)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "repository hosting request failed; please try again", appErrors.FromError(err).Message)
}

func TestGatewayTeamNumberUsesCache(t *testing.T) {
	lookups := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/course/teams/t_d0_u1", func(w http.ResponseWriter, r *http.Request) {
		lookups++
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": 77, "name": "t_d0_u1", "slug": "t_d0_u1"})
	})
	mux.HandleFunc("/orgs/course/teams/absent", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	cache := &memTeamCache{numbers: map[string]int64{}}
	gw := newTestGateway(t, mux, WithTeamCache(cache))

	for i := 0; i < 2; i++ {
		number, ok, err := gw.TeamNumber(context.Background(), "t_d0_u1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(77), number)
	}
	assert.Equal(t, 1, lookups)

	_, ok, err := gw.TeamNumber(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGatewayDropsCachedTeamMissingOnHost(t *testing.T) {
	lookups := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/course/teams/t_d0_u1/members", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("/orgs/course/teams/t_d0_u1", func(w http.ResponseWriter, r *http.Request) {
		lookups++
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	cache := &memTeamCache{numbers: map[string]int64{"course/t_d0_u1": 42}}
	gw := newTestGateway(t, mux, WithTeamCache(cache))

	number, ok, err := gw.TeamNumber(context.Background(), "t_d0_u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), number)

	_, err = gw.ListTeamMembers(context.Background(), "t_d0_u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, cached := cache.LookupTeamNumber(context.Background(), "course", "t_d0_u1")
	assert.False(t, cached)

	_, ok, err = gw.TeamNumber(context.Background(), "t_d0_u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, lookups)
}

func TestGatewaySetRepoPermissionSkipsAdminTeams(t *testing.T) {
	var changed []string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/course/a1_u1/teams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": 1, "name": "staff", "slug": "staff", "permission": "admin"},
			{"id": 2, "name": "a1_u1", "slug": "a1_u1", "permission": "push"},
			{"id": 3, "name": "a1_tas", "slug": "a1_tas", "permission": "pull"},
		})
	})
	mux.HandleFunc("/orgs/course/teams/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		changed = append(changed, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	gw := newTestGateway(t, mux)

	require.NoError(t, gw.SetRepoPermission(context.Background(), "a1_u1", PermissionPull))
	assert.Equal(t, []string{"/orgs/course/teams/a1_u1/repos/course/a1_u1"}, changed)

	err := gw.SetRepoPermission(context.Background(), "a1_u1", PermissionAdmin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestGatewayWebhooks(t *testing.T) {
	var created map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/course/d0_u1/hooks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 9})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{"id": 9, "config": map[string]string{"url": "https://portal.example.com/githubWebhook"}},
		})
	})
	gw := newTestGateway(t, mux)

	hooks, err := gw.ListWebhooks(context.Background(), "d0_u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://portal.example.com/githubWebhook"}, hooks)

	require.NoError(t, gw.AddWebhook(context.Background(), "d0_u1", gw.WebhookURL()))
	cfg, ok := created["config"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json", cfg["content_type"])
}

func TestGatewayURLsAndSlug(t *testing.T) {
	gw := NewGateway(github.NewClient(nil), Config{Org: "course", Host: "https://github.example.com"}, nil)
	assert.Equal(t, "https://github.example.com/course/d1_ab12cd", gw.RepoURL("d1_ab12cd"))
	assert.Equal(t, "https://github.example.com/orgs/course/teams/t_d1_ab12cd", gw.TeamURL("t_d1_ab12cd"))
	assert.Equal(t, "cpsc-310_staff", slug("CPSC 310_staff"))
}

func TestGatewayImportWithoutSourceIsNoop(t *testing.T) {
	gw := NewGateway(github.NewClient(nil), Config{Org: "course"}, nil)
	require.NoError(t, gw.ImportRepoFS(context.Background(), "", "d0_u1", ""))
	err := gw.ImportRepoFS(context.Background(), "https://github.com/c/seed.git", "d0_u1", "")
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)
}

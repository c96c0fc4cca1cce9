package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

const maxWebhookBody = 1 << 20

type pullRequestRecorder interface {
	RecordPullRequest(ctx context.Context, repoID string) (bool, error)
}

// WebhookHandler receives signed repository events from the hosting service.
type WebhookHandler struct {
	recorder pullRequestRecorder
	secret   []byte
	logger   *zap.Logger

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

// NewWebhookHandler constructs handler. An empty secret rejects every delivery.
func NewWebhookHandler(recorder pullRequestRecorder, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		recorder:    recorder,
		secret:      []byte(secret),
		logger:      logger,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Receive godoc
// @Summary Hosting service webhook
// @Description Records milestone pull requests opened on ladder repositories
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Hub-Signature-256 header string true "HMAC signature"
// @Param X-GitHub-Event header string true "Event type"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /githubWebhook [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	if !h.limiter(c.ClientIP()).Allow() {
		response.Error(c, appErrors.New("RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded"))
		return
	}
	if len(h.secret) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "webhooks are not configured"))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := github.ValidatePayload(c.Request, h.secret)
	if err != nil {
		h.logger.Warn("invalid webhook signature", zap.String("ip", c.ClientIP()), zap.Error(err))
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid signature"))
		return
	}
	event, err := github.ParseWebHook(github.WebHookType(c.Request), payload)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	switch e := event.(type) {
	case *github.PingEvent:
		response.JSON(c, http.StatusOK, gin.H{"status": "pong"}, nil)
	case *github.PullRequestEvent:
		h.pullRequest(c, e)
	default:
		response.JSON(c, http.StatusOK, gin.H{"status": "ignored"}, nil)
	}
}

func (h *WebhookHandler) pullRequest(c *gin.Context, e *github.PullRequestEvent) {
	action := e.GetAction()
	repoName := e.GetRepo().GetName()
	if (action != "opened" && action != "reopened") || repoName == "" {
		response.JSON(c, http.StatusOK, gin.H{"status": "ignored"}, nil)
		return
	}

	changed, err := h.recorder.RecordPullRequest(c.Request.Context(), repoName)
	switch {
	case errors.Is(err, appErrors.ErrNotFound), errors.Is(err, appErrors.ErrPreconditionFailed):
		// Repositories outside the ladder also send events.
		h.logger.Debug("pull request on untracked repository", zap.String("repo", repoName), zap.Error(err))
		response.JSON(c, http.StatusOK, gin.H{"status": "ignored"}, nil)
	case err != nil:
		response.Error(c, err)
	default:
		response.JSON(c, http.StatusOK, gin.H{"status": "recorded", "repository_id": repoName, "changed": changed}, nil)
	}
}

// limiter allows one delivery per second per caller with a burst of ten.
func (h *WebhookHandler) limiter(ip string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if time.Since(h.lastCleanup) > time.Hour {
		h.limiters = make(map[string]*rate.Limiter)
		h.lastCleanup = time.Now()
	}
	l, ok := h.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(1), 10)
		h.limiters[ip] = l
	}
	return l
}

package hosting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// RetryConfig configures retry behaviour for GitHub API calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// selects the default; a negative value disables retries.
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()

	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// retryOperation retries a GitHub API call with exponential backoff. Rate
// limit responses wait for the advertised reset, capped at MaxBackoff.
func retryOperation(ctx context.Context, cfg RetryConfig, logger *zap.Logger, call string, operation func() (*github.Response, error)) (*github.Response, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		lastErr  error
		lastResp *github.Response
	)
	backoff := cfg.InitialBackoff
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info("github call recovered after retries",
					zap.String("call", call),
					zap.Int("attempts", attempt+1),
					zap.Duration("total_time", time.Since(start)),
				)
			}
			return resp, nil
		}

		lastErr = err
		lastResp = resp

		if !isRetryable(err, resp) {
			logger.Debug("github call failed with non-retryable error",
				zap.String("call", call),
				zap.Int("status_code", statusCode(resp)),
				zap.Error(err),
			)
			return resp, err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		if isRateLimited(resp) {
			backoff = rateLimitBackoff(resp, cfg.MaxBackoff)
			logger.Info("github rate limit hit",
				zap.String("call", call),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
		} else {
			logger.Info("retrying github call after transient error",
				zap.String("call", call),
				zap.Int("attempt", attempt+1),
				zap.Int("status_code", statusCode(resp)),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastResp, fmt.Errorf("%s canceled: %w", call, ctx.Err())
		case <-timer.C:
			next := time.Duration(float64(backoff) * cfg.BackoffMultiplier)
			if next > cfg.MaxBackoff {
				next = cfg.MaxBackoff
			}
			backoff = next
		}
	}

	logger.Warn("github call failed after retries",
		zap.String("call", call),
		zap.Int("total_attempts", cfg.MaxRetries+1),
		zap.Duration("total_time", time.Since(start)),
		zap.Int("status_code", statusCode(lastResp)),
		zap.Error(lastErr),
	)

	return lastResp, fmt.Errorf("%s failed after %d retries: %w", call, cfg.MaxRetries, lastErr)
}

func isRetryable(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if resp == nil || resp.Response == nil {
		// Transport failures carry no response.
		return true
	}

	switch code := resp.Response.StatusCode; code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity:
		return false
	case http.StatusForbidden:
		// Secondary rate limits come back as 403 with rate headers.
		return resp.Rate.Limit > 0
	default:
		return code >= 500 && code < 600
	}
}

func isRateLimited(resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	switch resp.Response.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Rate.Limit > 0
	}
	return false
}

func rateLimitBackoff(resp *github.Response, maxBackoff time.Duration) time.Duration {
	if resp == nil || (resp.Rate.Limit == 0 && resp.Rate.Remaining == 0) {
		return maxBackoff
	}

	backoff := time.Until(resp.Rate.Reset.Time) + time.Second
	if backoff < time.Second {
		backoff = time.Second
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func statusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.Response.StatusCode
	}
	return 0
}

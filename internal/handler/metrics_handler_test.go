package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-portal-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	healthy.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	degraded := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	degraded.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordProvisioning("provision_d0", "success")
	h := NewMetricsHandler(metrics, nil)

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "provisioning_operations_total")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

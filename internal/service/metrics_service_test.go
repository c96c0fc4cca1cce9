package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
)

func gathered(t *testing.T, m *MetricsService) map[string]int {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]int, len(families))
	for _, f := range families {
		out[f.GetName()] = len(f.GetMetric())
	}
	return out
}

func TestMetricsServiceRegistersDomainCollectors(t *testing.T) {
	m := NewMetricsService()

	m.RecordProvisioning("provision_d0", "success")
	m.RecordProvisioning("provision_d0", "noop")
	m.RecordBatchSubject("initialize", "failed")
	m.ObserveHostingCall("create_repo", "ok", 20*time.Millisecond)
	m.SetAssignmentStatus("a1", models.AssignmentReleased)
	m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)

	got := gathered(t, m)
	assert.Equal(t, 2, got["provisioning_operations_total"])
	assert.Equal(t, 1, got["batch_subjects_total"])
	assert.Equal(t, 1, got["hosting_calls_total"])
	assert.Equal(t, 1, got["hosting_call_duration_seconds"])
	assert.Equal(t, 1, got["assignment_aggregate_status"])
	assert.Equal(t, 1, got["http_requests_total"])
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordProvisioning("x", "y")
	m.SetAssignmentStatus("a1", models.AssignmentClosed)
	m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)
	assert.NotNil(t, m.Handler())
	assert.Nil(t, m.Registry())
}

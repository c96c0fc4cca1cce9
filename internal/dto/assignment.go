package dto

import "github.com/noah-isme/course-portal-api/internal/models"

// BatchJobResponse is returned when a bulk operation is queued.
type BatchJobResponse struct {
	JobID         string                `json:"job_id"`
	DeliverableID string                `json:"deliverable_id"`
	Operation     models.BatchOperation `json:"operation"`
	StatusURL     string                `json:"status_url"`
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/jobs"
)

// AssignmentJobType is the queue job type for bulk assignment operations.
const AssignmentJobType = "assignment_batch"

// AssignmentJob is the payload of a queued bulk assignment operation.
type AssignmentJob struct {
	DeliverableID string                `json:"deliverable_id"`
	Operation     models.BatchOperation `json:"operation"`
}

// Run dispatches a bulk operation by name.
func (s *AssignmentService) Run(ctx context.Context, op models.BatchOperation, deliverableID string) (*models.BatchResult, error) {
	switch op {
	case models.BatchInitialize:
		return s.InitializeAllRepositories(ctx, deliverableID)
	case models.BatchPublish:
		return s.PublishAllRepositories(ctx, deliverableID)
	case models.BatchClose:
		return s.CloseAllRepositories(ctx, deliverableID)
	case models.BatchDelete:
		return s.DeleteAllAssignmentRepositories(ctx, deliverableID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assignment operation "+string(op))
	}
}

// HandleJob is the queue handler for AssignmentJob payloads. A batch with
// retryable subject failures is reported as an error so the queue runs it
// again; completed subjects are skipped on the rerun. Errors a rerun cannot
// fix fail the job at once.
func (s *AssignmentService) HandleJob(ctx context.Context, job jobs.Job) (interface{}, error) {
	payload, ok := job.Payload.(AssignmentJob)
	if !ok {
		return nil, jobs.Permanent(fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload))
	}
	result, err := s.Run(ctx, payload.Operation, payload.DeliverableID)
	if err != nil {
		if !appErrors.IsRetryable(err) {
			s.logger.Warn("assignment job cannot succeed",
				zap.String("job_id", job.ID),
				zap.String("deliverable_id", payload.DeliverableID),
				zap.Error(err),
			)
			return result, jobs.Permanent(err)
		}
		return result, err
	}
	for _, f := range result.Failures {
		if f.Retryable {
			s.logger.Warn("assignment job has retryable failures",
				zap.String("job_id", job.ID),
				zap.String("deliverable_id", payload.DeliverableID),
				zap.Int("failures", len(result.Failures)),
			)
			return result, appErrors.Clone(appErrors.ErrHostingUnavailable, fmt.Sprintf("%d subjects failed", len(result.Failures)))
		}
	}
	return result, nil
}

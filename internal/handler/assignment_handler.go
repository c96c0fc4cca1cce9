package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/course-portal-api/internal/dto"
	"github.com/noah-isme/course-portal-api/internal/models"
	"github.com/noah-isme/course-portal-api/internal/service"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/jobs"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

type assignmentService interface {
	Run(ctx context.Context, op models.BatchOperation, deliverableID string) (*models.BatchResult, error)
	UpdateAssignmentStatus(ctx context.Context, deliverableID string) (*models.AssignmentStatusReport, error)
	DeleteAssignmentRepository(ctx context.Context, deliverableID, repoID string) error
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
	State(id string) (jobs.State, bool)
}

// AssignmentHandler exposes bulk assignment lifecycle endpoints.
type AssignmentHandler struct {
	assignments assignmentService
	queue       jobQueue
	jobsPath    string
}

// NewAssignmentHandler constructs handler. jobsPath is the route prefix
// under which queued job states are served.
func NewAssignmentHandler(assignments assignmentService, queue jobQueue, jobsPath string) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, queue: queue, jobsPath: jobsPath}
}

// Initialize godoc
// @Summary Create every student's assignment repository
// @Tags Assignments
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param async query bool false "Queue the batch and return immediately"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assignments/{id}/initialize [post]
func (h *AssignmentHandler) Initialize(c *gin.Context) {
	h.run(c, models.BatchInitialize)
}

// Publish godoc
// @Summary Grant students push access to their assignment repositories
// @Tags Assignments
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param async query bool false "Queue the batch and return immediately"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assignments/{id}/publish [post]
func (h *AssignmentHandler) Publish(c *gin.Context) {
	h.run(c, models.BatchPublish)
}

// Close godoc
// @Summary Drop students to read-only access
// @Tags Assignments
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param async query bool false "Queue the batch and return immediately"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /assignments/{id}/close [post]
func (h *AssignmentHandler) Close(c *gin.Context) {
	h.run(c, models.BatchClose)
}

// DeleteAll godoc
// @Summary Delete every repository and team of an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Deliverable ID"
// @Param async query bool false "Queue the batch and return immediately"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /assignments/{id}/repositories [delete]
func (h *AssignmentHandler) DeleteAll(c *gin.Context) {
	h.run(c, models.BatchDelete)
}

// DeleteOne godoc
// @Summary Delete one assignment repository
// @Tags Assignments
// @Param id path string true "Deliverable ID"
// @Param repoId path string true "Repository ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id}/repositories/{repoId} [delete]
func (h *AssignmentHandler) DeleteOne(c *gin.Context) {
	if err := h.assignments.DeleteAssignmentRepository(c.Request.Context(), c.Param("id"), c.Param("repoId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Status godoc
// @Summary Refresh and return the aggregate assignment status
// @Tags Assignments
// @Produce json
// @Param id path string true "Deliverable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id}/status [get]
func (h *AssignmentHandler) Status(c *gin.Context) {
	report, err := h.assignments.UpdateAssignmentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Job godoc
// @Summary Get a queued batch job
// @Tags Assignments
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /jobs/{jobId} [get]
func (h *AssignmentHandler) Job(c *gin.Context) {
	if h.queue == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "job not found"))
		return
	}
	state, ok := h.queue.State(c.Param("jobId"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "job not found"))
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

func (h *AssignmentHandler) run(c *gin.Context, op models.BatchOperation) {
	deliverableID := c.Param("id")
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))

	if async && h.queue != nil {
		jobID := uuid.NewString()
		err := h.queue.Enqueue(jobs.Job{
			ID:      jobID,
			Type:    service.AssignmentJobType,
			Payload: service.AssignmentJob{DeliverableID: deliverableID, Operation: op},
		})
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue batch"))
			return
		}
		response.Accepted(c, dto.BatchJobResponse{
			JobID:         jobID,
			DeliverableID: deliverableID,
			Operation:     op,
			StatusURL:     h.jobsPath + "/" + jobID,
		})
		return
	}

	result, err := h.assignments.Run(c.Request.Context(), op, deliverableID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{"success": result.OK()})
}

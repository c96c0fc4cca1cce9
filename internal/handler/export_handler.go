package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-portal-api/internal/service"
	"github.com/noah-isme/course-portal-api/pkg/export"
	"github.com/noah-isme/course-portal-api/pkg/response"
)

type rosterExporter interface {
	LadderRoster(ctx context.Context, format export.Format) (*service.RenderedFile, error)
	AssignmentRoster(ctx context.Context, deliverableID string, format export.Format) (*service.RenderedFile, error)
}

// ExportHandler streams roster downloads.
type ExportHandler struct {
	exports rosterExporter
}

// NewExportHandler constructs handler.
func NewExportHandler(exports rosterExporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// LadderRoster godoc
// @Summary Download every learner's ladder stage
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /roster [get]
func (h *ExportHandler) LadderRoster(c *gin.Context) {
	format, err := service.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.LadderRoster(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// AssignmentRoster godoc
// @Summary Download the repository status of every student in an assignment
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Deliverable ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id}/roster [get]
func (h *ExportHandler) AssignmentRoster(c *gin.Context) {
	format, err := service.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.AssignmentRoster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

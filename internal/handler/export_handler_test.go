package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/service"
	"github.com/noah-isme/course-portal-api/pkg/export"
)

type exporterStub struct {
	formats []export.Format
}

func (s *exporterStub) LadderRoster(_ context.Context, format export.Format) (*service.RenderedFile, error) {
	s.formats = append(s.formats, format)
	return &service.RenderedFile{Filename: "ladder_roster." + string(format), ContentType: format.ContentType(), Payload: []byte("person\n")}, nil
}

func (s *exporterStub) AssignmentRoster(_ context.Context, deliverableID string, format export.Format) (*service.RenderedFile, error) {
	s.formats = append(s.formats, format)
	return &service.RenderedFile{Filename: deliverableID + "_roster." + string(format), ContentType: format.ContentType(), Payload: []byte("%PDF-1.3")}, nil
}

func TestExportHandlerStreamsAttachment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &exporterStub{}
	h := NewExportHandler(stub)

	c, w := newGinContext(http.MethodGet, "/roster", nil)
	h.LadderRoster(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="ladder_roster.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "person\n", w.Body.String())

	c, w = newGinContext(http.MethodGet, "/assignments/a1/roster?format=pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	h.AssignmentRoster(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, []export.Format{export.FormatCSV, export.FormatPDF}, stub.formats)
}

func TestExportHandlerRejectsUnknownFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &exporterStub{}
	h := NewExportHandler(stub)

	c, w := newGinContext(http.MethodGet, "/roster?format=xlsx", nil)
	h.LadderRoster(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, stub.formats)
}

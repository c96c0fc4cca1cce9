package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
	"github.com/noah-isme/course-portal-api/pkg/export"
)

type assignmentRoster interface {
	Roster(ctx context.Context, deliverableID string) ([]models.SubjectStatus, error)
}

// RenderedFile is an export ready to stream to the caller.
type RenderedFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders course rosters as CSV or PDF.
type ExportService struct {
	store       FactStore
	resolver    *StageResolver
	assignments assignmentRoster
	renderers   map[export.Format]export.Renderer
	logger      *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(store FactStore, resolver *StageResolver, assignments assignmentRoster, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		store:       store,
		resolver:    resolver,
		assignments: assignments,
		renderers: map[export.Format]export.Renderer{
			export.FormatCSV: export.NewCSVExporter(),
			export.FormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
	}
}

// ParseFormat resolves a requested format, defaulting to CSV.
func ParseFormat(raw string) (export.Format, error) {
	switch export.Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", export.FormatCSV:
		return export.FormatCSV, nil
	case export.FormatPDF:
		return export.FormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+raw)
	}
}

// LadderRoster lists every student with their resolved ladder stage.
// Students whose records are inconsistent are listed rather than dropped.
func (s *ExportService) LadderRoster(ctx context.Context, format export.Format) (*RenderedFile, error) {
	students, err := s.store.People.ListByKind(ctx, models.PersonKindStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	data := export.Dataset{
		Title:   "Milestone progress",
		Headers: []string{"person", "github", "lab", "stage", "d0", "d1", "d2", "d3"},
	}
	for _, p := range students {
		row := map[string]string{"person": p.ID, "github": p.GitHubID, "lab": p.Lab()}
		report, err := s.resolver.Resolve(ctx, p.ID)
		switch {
		case errors.Is(err, appErrors.ErrInconsistentState):
			row["stage"] = "INCONSISTENT"
		case err != nil:
			return nil, err
		default:
			row["stage"] = report.Stage.String()
			row["d0"] = formatScore(report.D0.Score)
			row["d1"] = formatScore(report.D1.Score)
			row["d2"] = formatScore(report.D2.Score)
			row["d3"] = formatScore(report.D3.Score)
		}
		data.Rows = append(data.Rows, row)
	}
	return s.render("ladder_roster", format, data)
}

// AssignmentRoster lists each student's repository status for an assignment.
func (s *ExportService) AssignmentRoster(ctx context.Context, deliverableID string, format export.Format) (*RenderedFile, error) {
	rows, err := s.assignments.Roster(ctx, deliverableID)
	if err != nil {
		return nil, err
	}
	data := export.Dataset{
		Title:   "Assignment " + deliverableID + " repositories",
		Headers: []string{"student", "repository", "status", "url"},
	}
	for _, r := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"student":    r.SubjectID,
			"repository": r.RepositoryID,
			"status":     r.Status.String(),
			"url":        r.RepositoryURL,
		})
	}
	return s.render(deliverableID+"_roster", format, data)
}

func (s *ExportService) render(name string, format export.Format, data export.Dataset) (*RenderedFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+string(format))
	}
	payload, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("roster rendered", zap.String("export", name), zap.String("format", string(format)), zap.Int("rows", len(data.Rows)))
	return &RenderedFile{
		Filename:    name + "." + string(format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', -1, 64)
}

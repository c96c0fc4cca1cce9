package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// GradeRequest records the current grade of a person for a deliverable.
type GradeRequest struct {
	PersonID      string             `json:"person_id" validate:"required"`
	DeliverableID string             `json:"deliverable_id" validate:"required"`
	Score         *float64           `json:"score" validate:"omitempty,gte=0,lte=100"`
	Comment       string             `json:"comment" validate:"max=2000"`
	URLName       string             `json:"url_name"`
	URL           string             `json:"url" validate:"omitempty,url"`
	Source        models.GradeSource `json:"source" validate:"omitempty,oneof=AUTOTEST STAFF"`
	Custom        models.CustomData  `json:"custom"`
}

// GradeResult is the stored grade and, for ladder learners, the stage it
// leaves them at.
type GradeResult struct {
	Grade   *models.Grade     `json:"grade"`
	Changed bool              `json:"changed"`
	Stage   *models.SDMMStage `json:"stage,omitempty"`
}

// GradeService maintains the single current grade per (person, deliverable).
type GradeService struct {
	store     FactStore
	resolver  *StageResolver
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradeService constructs GradeService. resolver may be nil.
func NewGradeService(store FactStore, resolver *StageResolver, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{store: store, resolver: resolver, validator: validate, logger: logger, now: time.Now}
}

// Record writes a grade. Auto-test results only replace a lower score; staff
// grades always overwrite.
func (s *GradeService) Record(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if req.Source == "" {
		req.Source = models.GradeSourceStaff
	}

	if _, err := s.store.People.FindByID(ctx, req.PersonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownSubject, "Unknown person: "+req.PersonID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	if _, err := s.store.Deliverables.FindByID(ctx, req.DeliverableID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable "+req.DeliverableID+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}

	current, err := s.store.Grades.Find(ctx, req.PersonID, req.DeliverableID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}

	result := &GradeResult{Grade: current}
	if !keepsCurrent(current, req) {
		grade := &models.Grade{
			PersonID:      req.PersonID,
			DeliverableID: req.DeliverableID,
			Score:         req.Score,
			Comment:       req.Comment,
			URLName:       req.URLName,
			URL:           req.URL,
			Source:        req.Source,
			Timestamp:     s.now().UTC(),
			Custom:        req.Custom,
		}
		if err := s.store.Grades.Upsert(ctx, grade); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write grade")
		}
		result.Grade = grade
		result.Changed = true
		s.logger.Info("grade recorded",
			zap.String("subject_id", req.PersonID),
			zap.String("deliverable_id", req.DeliverableID),
			zap.String("source", string(req.Source)),
		)
	}

	if s.resolver != nil {
		// The grade is already stored; a failed stage lookup only leaves
		// Stage unset.
		report, err := s.resolver.Resolve(ctx, req.PersonID)
		if err != nil {
			s.logger.Warn("stage resolve after grade failed",
				zap.String("subject_id", req.PersonID),
				zap.String("deliverable_id", req.DeliverableID),
				zap.Error(err),
			)
			return result, nil
		}
		result.Stage = &report.Stage
	}
	return result, nil
}

// Get returns the current grade of a person for a deliverable.
func (s *GradeService) Get(ctx context.Context, personID, deliverableID string) (*models.Grade, error) {
	grade, err := s.store.Grades.Find(ctx, personID, deliverableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

func keepsCurrent(current *models.Grade, req GradeRequest) bool {
	if current == nil || req.Source != models.GradeSourceAutoTest {
		return false
	}
	if current.Score == nil {
		return false
	}
	return req.Score == nil || *req.Score <= *current.Score
}

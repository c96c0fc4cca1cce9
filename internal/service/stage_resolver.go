package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

// DefaultGradeToAdvance is the passing score used when a deliverable sets none.
const DefaultGradeToAdvance = 60.0

var ladderDeliverables = []string{models.DeliverableD0, models.DeliverableD1, models.DeliverableD2, models.DeliverableD3}

// learnerFacts is the committed state a stage is derived from.
type learnerFacts struct {
	PersonID   string
	Teams      []models.Team
	Repos      []models.Repository
	Grades     map[string]*models.Grade
	Thresholds map[string]float64
}

func (f learnerFacts) passes(deliverableID string) bool {
	return f.Grades[deliverableID].Passes(f.Thresholds[deliverableID])
}

func (f learnerFacts) anyRepo(pred func(models.Repository) bool) bool {
	for _, r := range f.Repos {
		if pred(r) {
			return true
		}
	}
	return false
}

func (f learnerFacts) anyTeam(pred func(models.Team) bool) bool {
	for _, t := range f.Teams {
		if pred(t) {
			return true
		}
	}
	return false
}

// rung is one step of the ladder: the stage is reached when its own
// predicate and every lower rung's predicate hold.
type rung struct {
	stage models.SDMMStage
	holds func(learnerFacts) bool
}

var sdmmLadder = []rung{
	{models.StageD0Pre, func(learnerFacts) bool { return true }},
	{models.StageD0, func(f learnerFacts) bool {
		return f.anyRepo(func(r models.Repository) bool { return r.Flags.D0Enabled })
	}},
	{models.StageD1Unlocked, func(f learnerFacts) bool { return f.passes(models.DeliverableD0) }},
	{models.StageD1TeamSet, func(f learnerFacts) bool {
		return f.anyTeam(func(t models.Team) bool { return t.Flags.D1 })
	}},
	{models.StageD1, func(f learnerFacts) bool {
		return f.anyRepo(func(r models.Repository) bool { return r.Flags.D1Enabled })
	}},
	{models.StageD2, func(f learnerFacts) bool { return f.passes(models.DeliverableD1) }},
	{models.StageD3Pre, func(f learnerFacts) bool { return f.passes(models.DeliverableD2) }},
	{models.StageD3, func(f learnerFacts) bool {
		return f.anyRepo(func(r models.Repository) bool { return r.Flags.D1Enabled && r.Flags.D3PullRequest })
	}},
}

// resolveStage walks the ladder from the top and returns the highest stage
// whose predicates all hold. It has no side effects.
func resolveStage(f learnerFacts) (models.SDMMStage, error) {
	perDeliverable := make(map[string]string, len(f.Teams))
	for _, t := range f.Teams {
		if other, ok := perDeliverable[t.DeliverableID]; ok {
			return 0, appErrors.Clone(appErrors.ErrInconsistentState,
				fmt.Sprintf("%s is on teams %s and %s for deliverable %s; contact course staff.", f.PersonID, other, t.ID, t.DeliverableID))
		}
		perDeliverable[t.DeliverableID] = t.ID
	}

	for top := len(sdmmLadder) - 1; top > 0; top-- {
		reached := true
		for i := 0; i <= top; i++ {
			if !sdmmLadder[i].holds(f) {
				reached = false
				break
			}
		}
		if reached {
			return sdmmLadder[top].stage, nil
		}
	}
	return sdmmLadder[0].stage, nil
}

// StageResolver derives a learner's ladder stage from stored facts.
type StageResolver struct {
	store          FactStore
	gradeToAdvance float64
	logger         *zap.Logger
}

// NewStageResolver constructs a StageResolver. gradeToAdvance applies to
// deliverables without their own passing score.
func NewStageResolver(store FactStore, gradeToAdvance float64, logger *zap.Logger) *StageResolver {
	if gradeToAdvance <= 0 {
		gradeToAdvance = DefaultGradeToAdvance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageResolver{store: store, gradeToAdvance: gradeToAdvance, logger: logger}
}

// Resolve returns the learner's current stage and per-milestone grades.
func (r *StageResolver) Resolve(ctx context.Context, personID string) (*models.StageReport, error) {
	facts, err := r.load(ctx, personID)
	if err != nil {
		return nil, err
	}
	stage, err := resolveStage(facts)
	if err != nil {
		r.logger.Error("inconsistent progression facts", zap.String("subject_id", personID), zap.Error(err))
		return nil, err
	}

	report := &models.StageReport{
		PersonID: personID,
		Stage:    stage,
		D0:       facts.Grades[models.DeliverableD0].Payload(),
		D1:       facts.Grades[models.DeliverableD1].Payload(),
		D2:       facts.Grades[models.DeliverableD2].Payload(),
		D3:       facts.Grades[models.DeliverableD3].Payload(),
	}
	return report, nil
}

// Threshold returns the passing score for a deliverable.
func (r *StageResolver) Threshold(ctx context.Context, deliverableID string) (float64, error) {
	deliverable, err := r.store.Deliverables.FindByID(ctx, deliverableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.gradeToAdvance, nil
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	return deliverable.PassingScore(r.gradeToAdvance), nil
}

func (r *StageResolver) load(ctx context.Context, personID string) (learnerFacts, error) {
	facts := learnerFacts{
		PersonID:   personID,
		Grades:     map[string]*models.Grade{},
		Thresholds: map[string]float64{},
	}

	if _, err := r.store.People.FindByID(ctx, personID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return facts, appErrors.Clone(appErrors.ErrUnknownSubject, "Unknown person: "+personID)
		}
		return facts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}

	teams, err := r.store.Teams.ListForPerson(ctx, personID)
	if err != nil {
		return facts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teams")
	}
	facts.Teams = teams

	repos, err := r.store.Repos.ListForPerson(ctx, personID)
	if err != nil {
		return facts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load repositories")
	}
	facts.Repos = repos

	grades, err := r.store.Grades.ListForPerson(ctx, personID)
	if err != nil {
		return facts, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	for i := range grades {
		facts.Grades[grades[i].DeliverableID] = &grades[i]
	}

	for _, id := range ladderDeliverables {
		threshold, err := r.Threshold(ctx, id)
		if err != nil {
			return facts, err
		}
		facts.Thresholds[id] = threshold
	}
	return facts, nil
}

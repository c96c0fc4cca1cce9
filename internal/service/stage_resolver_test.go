package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
	appErrors "github.com/noah-isme/course-portal-api/pkg/errors"
)

func ladderFacts() learnerFacts {
	return learnerFacts{
		PersonID: "u1",
		Grades:   map[string]*models.Grade{},
		Thresholds: map[string]float64{
			models.DeliverableD0: 60,
			models.DeliverableD1: 60,
			models.DeliverableD2: 60,
			models.DeliverableD3: 60,
		},
	}
}

func score(personID, deliverableID string, v float64) *models.Grade {
	return &models.Grade{PersonID: personID, DeliverableID: deliverableID, Score: &v}
}

func TestResolveStageLadder(t *testing.T) {
	f := ladderFacts()
	stage, err := resolveStage(f)
	require.NoError(t, err)
	assert.Equal(t, models.StageD0Pre, stage)

	f.Teams = []models.Team{{ID: "t_u1", DeliverableID: "d0", PersonIDs: []string{"u1"}, Flags: models.TeamFlags{D0: true}}}
	f.Repos = []models.Repository{{ID: "r_u1", DeliverableID: "d0", TeamIDs: []string{"t_u1"}, Flags: models.RepositoryFlags{D0Enabled: true}}}
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD0, stage)

	f.Grades["d0"] = score("u1", "d0", 59)
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD0, stage)

	f.Grades["d0"] = score("u1", "d0", 61)
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD1Unlocked, stage)

	f.Teams[0].Flags.D1 = true
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD1TeamSet, stage)

	f.Repos[0].Flags.D1Enabled = true
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD1, stage)

	f.Grades["d1"] = score("u1", "d1", 80)
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD2, stage)

	f.Grades["d2"] = score("u1", "d2", 70)
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD3Pre, stage)

	f.Repos[0].Flags.D3PullRequest = true
	stage, _ = resolveStage(f)
	assert.Equal(t, models.StageD3, stage)
}

func TestResolveStageRequiresEveryLowerRung(t *testing.T) {
	f := ladderFacts()
	// Grades alone never skip the repository rungs.
	f.Grades["d0"] = score("u1", "d0", 100)
	f.Grades["d1"] = score("u1", "d1", 100)
	f.Grades["d2"] = score("u1", "d2", 100)

	stage, err := resolveStage(f)
	require.NoError(t, err)
	assert.Equal(t, models.StageD0Pre, stage)
}

func TestResolveStagePartialUpgradeStaysLower(t *testing.T) {
	f := ladderFacts()
	f.Teams = []models.Team{{ID: "t_u1", DeliverableID: "d0", PersonIDs: []string{"u1"}, Flags: models.TeamFlags{D0: true}}}
	// Repository record written but the hosted side never completed.
	f.Repos = []models.Repository{{ID: "r_u1", DeliverableID: "d0", TeamIDs: []string{"t_u1"}}}
	f.Grades["d0"] = score("u1", "d0", 90)

	stage, err := resolveStage(f)
	require.NoError(t, err)
	assert.Equal(t, models.StageD0Pre, stage)
}

func TestResolveStageDuplicateTeamsIsInconsistent(t *testing.T) {
	f := ladderFacts()
	f.Teams = []models.Team{
		{ID: "t_a", DeliverableID: "d1", PersonIDs: []string{"u1"}},
		{ID: "t_b", DeliverableID: "d1", PersonIDs: []string{"u1", "u2"}},
	}
	_, err := resolveStage(f)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInconsistentState)
}

func TestStageResolverUnknownSubject(t *testing.T) {
	store := newMemStore()
	resolver := NewStageResolver(store.facts(), 60, nil)

	_, err := resolver.Resolve(context.Background(), "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUnknownSubject)
}

func TestStageResolverKnownSubjectWithoutRecords(t *testing.T) {
	store := newMemStore()
	store.addStudent("u1")
	resolver := NewStageResolver(store.facts(), 60, nil)

	report, err := resolver.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StageD0Pre, report.Stage)
	assert.Nil(t, report.D0.Score)
}

func TestStageResolverUsesDeliverableThreshold(t *testing.T) {
	store := newMemStore()
	store.addStudent("u1")
	store.addDeliverable(models.Deliverable{ID: "d0", TeamMinSize: 1, TeamMaxSize: 1, Policy: models.DeliverablePolicy{MinPassingScore: ptrFloat(75)}})
	store.teams.items["t_u1"] = models.Team{ID: "t_u1", DeliverableID: "d0", PersonIDs: []string{"u1"}}
	store.repos.items["r_u1"] = models.Repository{ID: "r_u1", DeliverableID: "d0", TeamIDs: []string{"t_u1"}, Flags: models.RepositoryFlags{D0Enabled: true}}
	store.setGrade("u1", "d0", 70)

	resolver := NewStageResolver(store.facts(), 60, nil)
	report, err := resolver.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StageD0, report.Stage)
	require.NotNil(t, report.D0.Score)
	assert.Equal(t, 70.0, *report.D0.Score)

	store.setGrade("u1", "d0", 75)
	report, err = resolver.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StageD1Unlocked, report.Stage)
}

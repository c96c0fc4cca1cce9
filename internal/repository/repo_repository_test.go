package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
)

var repoRowColumns = []string{"id", "deliverable_id", "team_ids", "url", "flags", "assignment", "custom", "created_at", "updated_at"}

func TestRepoRepositoryListByDeliverable(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewRepoRepository(db)

	rows := sqlmock.NewRows(repoRowColumns).
		AddRow("a1_u1", "a1", []byte("{a1_u1}"), "https://github.com/c/a1_u1", []byte(`{"github_created":true}`), []byte(`{"status":"RELEASED","assigned_teams":["a1_u1"]}`), []byte(`{}`), time.Now(), time.Now()).
		AddRow("a1_u2", "a1", []byte("{a1_u2}"), "", []byte(`{}`), []byte(`{"status":"INITIALIZED"}`), []byte(`{}`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM repositories WHERE deliverable_id = $1")).
		WithArgs("a1").
		WillReturnRows(rows)

	repos, err := repo.ListByDeliverable(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, models.AssignmentReleased, repos[0].Assignment.StatusOrInactive())
	assert.True(t, repos[0].FullyProvisioned())
	assert.Equal(t, models.AssignmentCreated, repos[1].Assignment.StatusOrInactive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoRepositoryListForPerson(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewRepoRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE team_ids && ARRAY(SELECT t.id FROM teams t WHERE $1 = ANY(t.person_ids))")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(repoRowColumns))

	repos, err := repo.ListForPerson(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, repos)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoRepositoryUpsertPropagatesError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewRepoRepository(db)

	mock.ExpectExec("INSERT INTO repositories").
		WithArgs(anyArgs(9)...).
		WillReturnError(errors.New("connection reset"))

	err := repo.Upsert(context.Background(), &models.Repository{ID: "r1", DeliverableID: "d0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert repository")
	assert.NoError(t, mock.ExpectationsWereMet())
}

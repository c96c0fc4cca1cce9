package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-portal-api/internal/models"
)

var personRowColumns = []string{"id", "github_id", "first_name", "last_name", "kind", "lab_id", "url", "custom", "created_at", "updated_at"}

func TestPersonRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	rows := sqlmock.NewRows(personRowColumns).
		AddRow("u1", "u1gh", "Ada", "L", "STUDENT", "L1A", "", []byte(`{"note":"x"}`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM people WHERE id = $1")).
		WithArgs("u1").
		WillReturnRows(rows)

	person, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PersonKindStudent, person.Kind)
	assert.Equal(t, "L1A", person.Lab())
	assert.Equal(t, "x", person.Custom.String("note"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM people WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	mock.ExpectExec("INSERT INTO people .* ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs(anyArgs(10)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	person := &models.Person{ID: "u1", GitHubID: "u1", Kind: models.PersonKindStudent}
	require.NoError(t, repo.Upsert(context.Background(), person))
	assert.False(t, person.CreatedAt.IsZero())
	assert.NotNil(t, person.Custom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersonRepositoryWithdrawStudentsExcept(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewPersonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE people SET kind = $1")).
		WithArgs(models.PersonKindWithdrawn, sqlmock.AnyArg(), models.PersonKindStudent, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.WithdrawStudentsExcept(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

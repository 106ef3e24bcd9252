package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "postgres")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByEmailLoadsRoles(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "active", "site_id", "time_zone", "email_suspended", "created_at", "updated_at"}).
		AddRow("u1", "teacher@example.com", "hash", "Alice", true, "site-1", "UTC", false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE lower(email) = lower($1)")).
		WithArgs("Teacher@example.com").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("CURATOR").AddRow("TEACHER"))

	user, err := repo.FindByEmail(context.Background(), "Teacher@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, user.HasRole(models.RoleTeacher))
	assert.True(t, user.HasRole(models.RoleCurator))
	assert.False(t, user.HasRole(models.RoleStudent))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecipientsSkipsEmptyInput(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	recipients, err := repo.ListRecipients(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, recipients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecipients(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ANY($1)")).
		WithArgs(pq.Array([]string{"u1", "u2"})).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "full_name", "site_id", "email_suspended"}).
			AddRow("u1", "a@example.com", "A", "site-1", false).
			AddRow("u2", "b@example.com", "B", "site-2", true))

	recipients, err := repo.ListRecipients(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.True(t, recipients[1].EmailSuspended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

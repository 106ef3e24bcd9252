package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

func TestEnrollmentCreateWithPersonalAssignments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO personal_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{CourseID: "c-1", StudentID: "s-1", StudentProfileID: "p-1", StudentGroupID: "g-1"}
	personal := []models.PersonalAssignment{{AssignmentID: "a-1"}}
	err := repo.Create(context.Background(), enrollment, personal)
	require.NoError(t, err)
	assert.True(t, enrollment.Active)
	assert.Equal(t, "s-1", personal[0].StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateRejectsActiveDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Enrollment{CourseID: "c-1", StudentID: "s-1", StudentGroupID: "g-1"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyEnrolled))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentDeactivateDropsNotifications(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET active = FALSE")).
		WithArgs("c-1", "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM assignment_notifications").WithArgs("c-1", "s-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM course_news_notifications").WithArgs("c-1", "s-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Deactivate(context.Background(), "c-1", "s-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentDeactivateMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET active = FALSE")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Deactivate(context.Background(), "c-1", "s-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveStudentsUpdatesGroupAndAddsPersonalAssignments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET student_group_id = $3")).
		WithArgs("c-1", "g-a", "g-b", pq.Array([]string{"s-1"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO personal_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MoveStudents(context.Background(), "c-1", "g-a", "g-b", []string{"s-1"},
		[]models.PersonalAssignment{{AssignmentID: "a-2", StudentID: "s-1"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

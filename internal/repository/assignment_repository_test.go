package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
)

func TestClaimReviewerWinsWhenEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE personal_assignments SET reviewer_id = $2 WHERE id = $1 AND reviewer_id IS NULL")).
		WithArgs("pa-1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := repo.ClaimReviewer(context.Background(), "pa-1", "alice")
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReviewerLosesWhenAlreadySet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE personal_assignments SET reviewer_id = $2 WHERE id = $1 AND reviewer_id IS NULL")).
		WithArgs("pa-1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.ClaimReviewer(context.Background(), "pa-1", "bob")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDeadlineReportsChange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	deadline := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignments SET deadline_at = $2 WHERE id = $1 AND deadline_at IS DISTINCT FROM $2")).
		WithArgs("a-1", deadline).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.UpdateDeadline(context.Background(), "a-1", deadline)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentStoresSnapshotAndPersonalAssignments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	assignment := &models.Assignment{
		CourseID:        "c-1",
		Title:           "Homework 1",
		MaxScore:        10,
		DeadlineAt:      time.Now().Add(72 * time.Hour),
		ResponsibleMode: models.ResponsibleModeManual,
		RestrictedTo:    []string{"g-1"},
	}
	personal := []models.PersonalAssignment{{StudentID: "s-1", Assignees: []string{"alice"}}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assignments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignment_groups").WithArgs(sqlmock.AnyArg(), "g-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignment_notify_settings").WithArgs(sqlmock.AnyArg(), "alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO personal_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO personal_assignment_assignees").WithArgs(sqlmock.AnyArg(), "alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), assignment, []string{"alice"}, personal)
	require.NoError(t, err)
	assert.NotEmpty(t, assignment.ID)
	assert.Equal(t, assignment.ID, personal[0].AssignmentID)
	assert.Equal(t, models.PersonalAssignmentNotSubmitted, personal[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentStoresGroupAssignees(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	assignment := &models.Assignment{
		CourseID:        "c-1",
		Title:           "Homework 2",
		MaxScore:        5,
		DeadlineAt:      time.Now().Add(24 * time.Hour),
		ResponsibleMode: models.ResponsibleModeStudentGroupCustom,
		GroupAssignees: map[string][]string{
			"g-2": {"carol"},
			"g-1": {"alice", "bob"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assignments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignment_group_assignees").WithArgs(sqlmock.AnyArg(), "g-1", "alice").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignment_group_assignees").WithArgs(sqlmock.AnyArg(), "g-1", "bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO assignment_group_assignees").WithArgs(sqlmock.AnyArg(), "g-2", "carol").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), assignment, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListGroupAssignees(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT teacher_id FROM assignment_group_assignees WHERE assignment_id = $1 AND group_id = $2")).
		WithArgs("a-1", "g-1").
		WillReturnRows(sqlmock.NewRows([]string{"teacher_id"}).AddRow("alice").AddRow("bob"))

	ids, err := repo.ListGroupAssignees(context.Background(), "a-1", "g-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPersonalAssignmentsSkipsAssigneesOfExistingRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO personal_assignments").WillReturnResult(sqlmock.NewResult(0, 0))

	err := insertPersonalAssignments(context.Background(), db, []models.PersonalAssignment{
		{AssignmentID: "a-1", StudentID: "s-1", Assignees: []string{"alice"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByCourseAttachesRestrictions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assignments a WHERE a.course_id = $1")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "title", "text", "max_score", "deadline_at", "responsible_mode", "created_at"}).
			AddRow("a-1", "c-1", "HW1", "", 10, now, "off", now).
			AddRow("a-2", "c-1", "HW2", "", 5, now, "off", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT assignment_id, group_id FROM assignment_groups WHERE assignment_id = ANY($1)")).
		WithArgs(pq.Array([]string{"a-1", "a-2"})).
		WillReturnRows(sqlmock.NewRows([]string{"assignment_id", "group_id"}).AddRow("a-2", "g-1"))

	list, err := repo.ListByCourse(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Empty(t, list[0].RestrictedTo)
	assert.Equal(t, []string{"g-1"}, list[1].RestrictedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

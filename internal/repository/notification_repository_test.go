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

func TestPendingAssignmentEvents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	columns := []string{"id", "user_id", "personal_assignment_id", "kind", "is_unread", "is_notified", "created_at",
		"recipient_email", "recipient_name", "recipient_suspended", "recipient_time_zone",
		"student_id", "student_name", "student_site_id",
		"assignment_id", "assignment_title", "assignment_text", "deadline_at",
		"course_id", "course_name"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM assignment_notifications n")).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("n-1", "alice", "pa-1", "NEW_COMMENT", true, false, now,
				"alice@example.com", "Alice", false, "UTC",
				"s-1", "Student", "site-2",
				"a-1", "HW1", "", now, "c-1", "Algorithms"))

	events, err := repo.PendingAssignmentEvents(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "site-2", event.SiteKey())
	assert.Equal(t, models.TemplateNewCommentForTeacher, event.Template())
	assert.Equal(t, models.DeliverableAssignmentEvent, event.Kind())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAssignmentNotified(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignment_notifications SET is_notified = TRUE WHERE id = ANY($1)")).
		WithArgs(pq.Array([]string{"n-1", "n-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkAssignmentNotified(context.Background(), []string{"n-1", "n-2"}))
	require.NoError(t, repo.MarkAssignmentNotified(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentNotificationsResetsFlags(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assignment_notifications").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items := []models.AssignmentNotification{{UserID: "s-1", PersonalAssignmentID: "pa-1", Kind: models.NotificationNewAssignment, IsNotified: true}}
	require.NoError(t, repo.CreateAssignmentNotifications(context.Background(), items))
	assert.True(t, items[0].IsUnread)
	assert.False(t, items[0].IsNotified)
	assert.NotEmpty(t, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReadBeforeSumsBothTables(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM assignment_notifications").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM course_news_notifications").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteReadBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 5, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

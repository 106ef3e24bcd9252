package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

// NotificationRepository persists assignment and course news notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateAssignmentNotifications inserts unread, not yet emailed rows.
func (r *NotificationRepository) CreateAssignmentNotifications(ctx context.Context, items []models.AssignmentNotification) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO assignment_notifications (id, user_id, personal_assignment_id, kind, is_unread, is_notified, created_at)
VALUES (:id, :user_id, :personal_assignment_id, :kind, :is_unread, :is_notified, :created_at)`
		for i := range items {
			item := &items[i]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.IsUnread = true
			item.IsNotified = false
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			if _, err := sqlx.NamedExecContext(ctx, tx, insert, item); err != nil {
				return fmt.Errorf("create assignment notification: %w", err)
			}
		}
		return nil
	})
}

// CreateCourseNewsNotifications inserts unread, not yet emailed rows.
func (r *NotificationRepository) CreateCourseNewsNotifications(ctx context.Context, items []models.CourseNewsNotification) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO course_news_notifications (id, user_id, course_news_id, is_unread, is_notified, created_at)
VALUES (:id, :user_id, :course_news_id, :is_unread, :is_notified, :created_at)`
		for i := range items {
			item := &items[i]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.IsUnread = true
			item.IsNotified = false
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			if _, err := sqlx.NamedExecContext(ctx, tx, insert, item); err != nil {
				return fmt.Errorf("create course news notification: %w", err)
			}
		}
		return nil
	})
}

// PendingAssignmentEvents loads unread notifications that were not emailed
// yet, oldest first, joined with their render data.
func (r *NotificationRepository) PendingAssignmentEvents(ctx context.Context, limit int) ([]models.AssignmentEvent, error) {
	const query = `SELECT n.id, n.user_id, n.personal_assignment_id, n.kind, n.is_unread, n.is_notified, n.created_at,
ru.email AS recipient_email, ru.full_name AS recipient_name, ru.email_suspended AS recipient_suspended, ru.time_zone AS recipient_time_zone,
su.id AS student_id, su.full_name AS student_name, su.site_id AS student_site_id,
a.id AS assignment_id, a.title AS assignment_title, a.text AS assignment_text, a.deadline_at,
c.id AS course_id, c.name AS course_name
FROM assignment_notifications n
JOIN users ru ON ru.id = n.user_id
JOIN personal_assignments pa ON pa.id = n.personal_assignment_id
JOIN users su ON su.id = pa.student_id
JOIN assignments a ON a.id = pa.assignment_id
JOIN courses c ON c.id = a.course_id
WHERE n.is_notified = FALSE AND n.is_unread = TRUE
ORDER BY n.created_at, n.id
LIMIT $1`
	var events []models.AssignmentEvent
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("load pending assignment notifications: %w", err)
	}
	return events, nil
}

// PendingCourseNewsEvents loads unread course news notifications that were
// not emailed yet, oldest first.
func (r *NotificationRepository) PendingCourseNewsEvents(ctx context.Context, limit int) ([]models.CourseNewsEvent, error) {
	const query = `SELECT n.id, n.user_id, n.course_news_id, n.is_unread, n.is_notified, n.created_at,
u.email AS recipient_email, u.full_name AS recipient_name, u.email_suspended AS recipient_suspended, u.site_id AS recipient_site_id,
c.id AS course_id, c.name AS course_name, cn.title AS news_title, cn.text AS news_text
FROM course_news_notifications n
JOIN users u ON u.id = n.user_id
JOIN course_news cn ON cn.id = n.course_news_id
JOIN courses c ON c.id = cn.course_id
WHERE n.is_notified = FALSE AND n.is_unread = TRUE
ORDER BY n.created_at, n.id
LIMIT $1`
	var events []models.CourseNewsEvent
	if err := r.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("load pending course news notifications: %w", err)
	}
	return events, nil
}

// MarkAssignmentNotified flags rows as emailed.
func (r *NotificationRepository) MarkAssignmentNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE assignment_notifications SET is_notified = TRUE WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return fmt.Errorf("mark assignment notifications: %w", err)
	}
	return nil
}

// MarkCourseNewsNotified flags rows as emailed.
func (r *NotificationRepository) MarkCourseNewsNotified(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE course_news_notifications SET is_notified = TRUE WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return fmt.Errorf("mark course news notifications: %w", err)
	}
	return nil
}

// DeleteReadBefore removes read notifications created before the cutoff and
// returns how many rows were deleted.
func (r *NotificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, query := range []string{
		"DELETE FROM assignment_notifications WHERE is_unread = FALSE AND created_at < $1",
		"DELETE FROM course_news_notifications WHERE is_unread = FALSE AND created_at < $1",
	} {
		res, err := r.db.ExecContext(ctx, query, before)
		if err != nil {
			return total, fmt.Errorf("delete read notifications: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			total += affected
		}
	}
	return total, nil
}

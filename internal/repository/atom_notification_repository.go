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

// AtomNotificationRepository persists project activity notifications.
type AtomNotificationRepository struct {
	db *sqlx.DB
}

// NewAtomNotificationRepository constructs the repository.
func NewAtomNotificationRepository(db *sqlx.DB) *AtomNotificationRepository {
	return &AtomNotificationRepository{db: db}
}

// Create inserts notifications and returns how many were stored. Reminder
// verbs are unique per (recipient, project) so repeated runs are no-ops.
func (r *AtomNotificationRepository) Create(ctx context.Context, items []models.AtomNotification) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	created := 0
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO notifications (id, recipient_id, verb, project_id, report_id, public, emailed, unread, deleted, created_at)
VALUES (:id, :recipient_id, :verb, :project_id, :report_id, :public, :emailed, :unread, :deleted, :created_at)
ON CONFLICT DO NOTHING`
		for i := range items {
			item := &items[i]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.Public = true
			item.Unread = true
			if item.CreatedAt.IsZero() {
				item.CreatedAt = now
			}
			res, err := sqlx.NamedExecContext(ctx, tx, insert, item)
			if err != nil {
				return fmt.Errorf("create notification: %w", err)
			}
			if affected, err := res.RowsAffected(); err == nil {
				created += int(affected)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// PendingProjectReminders loads public notifications that were not emailed
// or deleted, oldest first, with their project data.
func (r *AtomNotificationRepository) PendingProjectReminders(ctx context.Context, limit int) ([]models.ProjectReminder, error) {
	const query = `SELECT n.id, n.recipient_id, n.verb, n.project_id, n.report_id, n.public, n.emailed, n.unread, n.deleted, n.created_at,
u.email AS recipient_email, u.full_name AS recipient_name, u.email_suspended AS recipient_suspended,
COALESCE(p.name, '') AS project_name, COALESCE(p.site_id, u.site_id) AS project_site_id,
p.report_starts_at, p.report_ends_at
FROM notifications n
JOIN users u ON u.id = n.recipient_id
LEFT JOIN projects p ON p.id = n.project_id
WHERE n.emailed = FALSE AND n.deleted = FALSE AND n.public = TRUE
ORDER BY n.created_at, n.id
LIMIT $1`
	var reminders []models.ProjectReminder
	if err := r.db.SelectContext(ctx, &reminders, query, limit); err != nil {
		return nil, fmt.Errorf("load pending notifications: %w", err)
	}
	return reminders, nil
}

// MarkEmailed flags notifications as sent.
func (r *AtomNotificationRepository) MarkEmailed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE notifications SET emailed = TRUE WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return fmt.Errorf("mark notifications emailed: %w", err)
	}
	return nil
}

// MarkDeleted soft-deletes notifications that can never be emailed.
func (r *AtomNotificationRepository) MarkDeleted(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE notifications SET deleted = TRUE WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return fmt.Errorf("mark notifications deleted: %w", err)
	}
	return nil
}

// DeleteReadBefore removes read notifications created before the cutoff.
func (r *AtomNotificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM notifications WHERE unread = FALSE AND created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

// EmailQueueRepository persists the generic outbound mail queue.
type EmailQueueRepository struct {
	db *sqlx.DB
}

// NewEmailQueueRepository constructs the repository.
func NewEmailQueueRepository(db *sqlx.DB) *EmailQueueRepository {
	return &EmailQueueRepository{db: db}
}

// Enqueue stores pending emails.
func (r *EmailQueueRepository) Enqueue(ctx context.Context, emails []models.QueuedEmail) error {
	if len(emails) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO email_queue (id, to_email, to_name, template, context, status, attempts, created_at)
VALUES (:id, :to_email, :to_name, :template, :context, :status, :attempts, :created_at)`
		for i := range emails {
			email := &emails[i]
			if email.ID == "" {
				email.ID = uuid.NewString()
			}
			if len(email.Context) == 0 {
				email.Context = []byte("{}")
			}
			email.Status = models.QueuedEmailPending
			if email.CreatedAt.IsZero() {
				email.CreatedAt = now
			}
			if _, err := sqlx.NamedExecContext(ctx, tx, insert, email); err != nil {
				return fmt.Errorf("enqueue email: %w", err)
			}
		}
		return nil
	})
}

// Pending loads pending emails, oldest first. Addresses that belong to a
// suspended user are flagged.
func (r *EmailQueueRepository) Pending(ctx context.Context, limit int) ([]models.GenericMail, error) {
	const query = `SELECT q.id, q.to_email, q.to_name, q.template, q.context, q.status, q.attempts, q.last_error, q.created_at, q.sent_at,
COALESCE(u.email_suspended, FALSE) AS recipient_suspended
FROM email_queue q
LEFT JOIN users u ON lower(u.email) = lower(q.to_email)
WHERE q.status = $1
ORDER BY q.created_at, q.id
LIMIT $2`
	var mails []models.GenericMail
	if err := r.db.SelectContext(ctx, &mails, query, models.QueuedEmailPending, limit); err != nil {
		return nil, fmt.Errorf("load pending emails: %w", err)
	}
	return mails, nil
}

// MarkSent flags an email as delivered.
func (r *EmailQueueRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	const query = "UPDATE email_queue SET status = $2, sent_at = $3, attempts = attempts + 1 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, models.QueuedEmailSent, at); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// RecordFailure keeps the email pending so the next pass retries it.
func (r *EmailQueueRepository) RecordFailure(ctx context.Context, id, reason string) error {
	const query = "UPDATE email_queue SET attempts = attempts + 1, last_error = $2 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, reason); err != nil {
		return fmt.Errorf("record email failure: %w", err)
	}
	return nil
}

// MarkFailed takes an email out of the queue for good.
func (r *EmailQueueRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = "UPDATE email_queue SET status = $2, last_error = $3 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, models.QueuedEmailFailed, reason); err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	return nil
}

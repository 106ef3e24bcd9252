package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

const userColumns = "id, email, password_hash, full_name, active, site_id, time_zone, email_suspended, created_at, updated_at"

// UserRepository handles persistence for users and their roles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail retrieves a user by email together with its roles.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE lower(email) = lower($1)", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	roles, err := r.ListRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return &user, nil
}

// FindByID retrieves a user by id together with its roles.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	roles, err := r.ListRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return &user, nil
}

// ListRoles returns the roles granted to a user.
func (r *UserRepository) ListRoles(ctx context.Context, userID string) ([]models.UserRole, error) {
	const query = "SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role"
	var roles []models.UserRole
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

// ListIDsByRole returns active users holding role.
func (r *UserRepository) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	const query = `SELECT u.id FROM users u
JOIN user_roles ur ON ur.user_id = u.id
WHERE ur.role = $1 AND u.active = TRUE
ORDER BY u.id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, role); err != nil {
		return nil, fmt.Errorf("list users by role: %w", err)
	}
	return ids, nil
}

// ListRecipients loads delivery details for the given users.
func (r *UserRepository) ListRecipients(ctx context.Context, ids []string) ([]models.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id AS user_id, email, full_name, site_id, email_suspended FROM users WHERE id = ANY($1) ORDER BY id`
	var recipients []models.Recipient
	if err := r.db.SelectContext(ctx, &recipients, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return recipients, nil
}

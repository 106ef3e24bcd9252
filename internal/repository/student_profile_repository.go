package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

const profileColumns = "id, user_id, type, status, department_id, site_id, student_number, year_of_admission, year_of_graduation, city_id, created_at"

// StudentProfileRepository manages student profiles and alumni promotion.
type StudentProfileRepository struct {
	db *sqlx.DB
}

// NewStudentProfileRepository constructs the repository.
func NewStudentProfileRepository(db *sqlx.DB) *StudentProfileRepository {
	return &StudentProfileRepository{db: db}
}

// FindByID returns a profile by id.
func (r *StudentProfileRepository) FindByID(ctx context.Context, id string) (*models.StudentProfile, error) {
	query := fmt.Sprintf("SELECT %s FROM student_profiles WHERE id = $1", profileColumns)
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindCurrent returns the most recent regular profile of a user.
func (r *StudentProfileRepository) FindCurrent(ctx context.Context, userID string) (*models.StudentProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_profiles
WHERE user_id = $1 AND type = $2
ORDER BY year_of_admission DESC, created_at DESC LIMIT 1`, profileColumns)
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID, models.StudentTypeRegular); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateStudentNumber sets the official student number of a profile.
func (r *StudentProfileRepository) UpdateStudentNumber(ctx context.Context, id, number string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE student_profiles SET student_number = $2 WHERE id = $1", id, number)
	if err != nil {
		return fmt.Errorf("update student number: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student number rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAlumni returns alumni profiles with pagination.
func (r *StudentProfileRepository) ListAlumni(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniProfile, int, error) {
	conditions := []string{"sp.type = $1"}
	args := []interface{}{models.StudentTypeAlumni}
	if filter.SiteID != "" {
		conditions = append(conditions, fmt.Sprintf("sp.site_id = $%d", len(args)+1))
		args = append(args, filter.SiteID)
	}
	if filter.YearOfGraduation != nil {
		conditions = append(conditions, fmt.Sprintf("sp.year_of_graduation = $%d", len(args)+1))
		args = append(args, *filter.YearOfGraduation)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT sp.id, sp.user_id, sp.type, sp.status, sp.department_id, sp.site_id, sp.student_number,
sp.year_of_admission, sp.year_of_graduation, sp.city_id, sp.created_at, u.full_name, u.email
FROM student_profiles sp JOIN users u ON u.id = sp.user_id%s
ORDER BY sp.year_of_graduation DESC NULLS LAST, u.full_name ASC LIMIT %d OFFSET %d`, where, size, (page-1)*size)

	var alumni []models.AlumniProfile
	if err := r.db.SelectContext(ctx, &alumni, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list alumni: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM student_profiles sp"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count alumni: %w", err)
	}
	return alumni, total, nil
}

// PromoteToAlumni graduates a profile and creates the alumni profile and
// role once. It reports whether the alumni profile was created by this call.
func (r *StudentProfileRepository) PromoteToAlumni(ctx context.Context, profileID string, year int) (*models.StudentProfile, bool, error) {
	var alumni models.StudentProfile
	created := false
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var profile models.StudentProfile
		query := fmt.Sprintf("SELECT %s FROM student_profiles WHERE id = $1 FOR UPDATE", profileColumns)
		if err := tx.GetContext(ctx, &profile, query, profileID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE student_profiles SET status = $2, year_of_graduation = $3 WHERE id = $1",
			profileID, models.StudentStatusGraduated, year); err != nil {
			return fmt.Errorf("graduate profile: %w", err)
		}

		existing := fmt.Sprintf("SELECT %s FROM student_profiles WHERE user_id = $1 AND type = $2 LIMIT 1", profileColumns)
		err := tx.GetContext(ctx, &alumni, existing, profile.UserID, models.StudentTypeAlumni)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("find alumni profile: %w", err)
		}
		if err == sql.ErrNoRows {
			alumni = models.StudentProfile{
				ID:               uuid.NewString(),
				UserID:           profile.UserID,
				Type:             models.StudentTypeAlumni,
				Status:           models.StudentStatusNormal,
				DepartmentID:     profile.DepartmentID,
				SiteID:           profile.SiteID,
				StudentNumber:    profile.StudentNumber,
				YearOfAdmission:  profile.YearOfAdmission,
				YearOfGraduation: &year,
				CityID:           profile.CityID,
			}
			const insert = `INSERT INTO student_profiles (id, user_id, type, status, department_id, site_id, student_number, year_of_admission, year_of_graduation, city_id)
VALUES (:id, :user_id, :type, :status, :department_id, :site_id, :student_number, :year_of_admission, :year_of_graduation, :city_id)`
			if _, err := sqlx.NamedExecContext(ctx, tx, insert, &alumni); err != nil {
				return fmt.Errorf("create alumni profile: %w", err)
			}
			created = true
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			profile.UserID, models.RoleAlumni); err != nil {
			return fmt.Errorf("grant alumni role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &alumni, created, nil
}

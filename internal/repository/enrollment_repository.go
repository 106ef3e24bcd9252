package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

const enrollmentColumns = "e.id, e.course_id, e.student_id, e.student_profile_id, e.student_group_id, e.active, e.created_at"

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByCourseAndStudent returns the enrollment of a student, active or not.
func (r *EnrollmentRepository) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.course_id = $1 AND e.student_id = $2", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByCourse returns the active enrollments of a course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s, u.full_name AS student_name, g.name AS student_group_name
FROM enrollments e
JOIN users u ON u.id = e.student_id
JOIN student_groups g ON g.id = e.student_group_id
WHERE e.course_id = $1 AND e.active = TRUE
ORDER BY u.full_name`, enrollmentColumns)
	var list []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &list, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return list, nil
}

// ListByGroup returns the active enrollments of a student group.
func (r *EnrollmentRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments e WHERE e.student_group_id = $1 AND e.active = TRUE ORDER BY e.created_at", enrollmentColumns)
	var list []models.Enrollment
	if err := r.db.SelectContext(ctx, &list, query, groupID); err != nil {
		return nil, fmt.Errorf("list group enrollments: %w", err)
	}
	return list, nil
}

// Create enrolls a student and creates the personal assignments of the
// assignments already available to the student's group. An inactive
// enrollment of the same student is reactivated.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment, personal []models.PersonalAssignment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	enrollment.Active = true

	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO enrollments (id, course_id, student_id, student_profile_id, student_group_id, active, created_at)
VALUES (:id, :course_id, :student_id, :student_profile_id, :student_group_id, :active, :created_at)
ON CONFLICT (course_id, student_id) DO UPDATE
SET student_profile_id = EXCLUDED.student_profile_id, student_group_id = EXCLUDED.student_group_id, active = TRUE
WHERE enrollments.active = FALSE`
		res, err := sqlx.NamedExecContext(ctx, tx, insert, enrollment)
		if err != nil {
			if isUniqueViolation(err) {
				return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
			}
			return fmt.Errorf("create enrollment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("create enrollment rows: %w", err)
		}
		if affected == 0 {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
		}
		for i := range personal {
			personal[i].StudentID = enrollment.StudentID
		}
		return insertPersonalAssignments(ctx, tx, personal)
	})
}

// Deactivate marks the enrollment inactive and drops the student's
// notifications about the course.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, courseID, studentID string) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE enrollments SET active = FALSE WHERE course_id = $1 AND student_id = $2 AND active = TRUE",
			courseID, studentID)
		if err != nil {
			return fmt.Errorf("deactivate enrollment: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		const dropAssignment = `DELETE FROM assignment_notifications n
USING personal_assignments pa, assignments a
WHERE n.personal_assignment_id = pa.id AND pa.assignment_id = a.id
AND a.course_id = $1 AND n.user_id = $2`
		if _, err := tx.ExecContext(ctx, dropAssignment, courseID, studentID); err != nil {
			return fmt.Errorf("delete assignment notifications: %w", err)
		}
		const dropNews = `DELETE FROM course_news_notifications n
USING course_news cn
WHERE n.course_news_id = cn.id AND cn.course_id = $1 AND n.user_id = $2`
		if _, err := tx.ExecContext(ctx, dropNews, courseID, studentID); err != nil {
			return fmt.Errorf("delete course news notifications: %w", err)
		}
		return nil
	})
}

// MoveStudents transfers students between groups of a course and creates
// the personal assignments that became visible in the target group.
func (r *EnrollmentRepository) MoveStudents(ctx context.Context, courseID, fromGroupID, toGroupID string, studentIDs []string, personal []models.PersonalAssignment) error {
	if len(studentIDs) == 0 {
		return nil
	}
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const update = `UPDATE enrollments SET student_group_id = $3
WHERE course_id = $1 AND student_group_id = $2 AND student_id = ANY($4) AND active = TRUE`
		if _, err := tx.ExecContext(ctx, update, courseID, fromGroupID, toGroupID, pq.Array(studentIDs)); err != nil {
			return fmt.Errorf("move students: %w", err)
		}
		return insertPersonalAssignments(ctx, tx, personal)
	})
}

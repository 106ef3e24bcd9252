package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

const courseColumns = "id, name, site_id, group_mode, notifications_disabled, created_at"

// CourseRepository provides access to courses, their teachers, news and surveys.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns every course, newest first.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses ORDER BY created_at DESC", courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListForTeacher returns courses taught by teacherID.
func (r *CourseRepository) ListForTeacher(ctx context.Context, teacherID string) ([]models.Course, error) {
	const query = `SELECT c.id, c.name, c.site_id, c.group_mode, c.notifications_disabled, c.created_at
FROM courses c JOIN course_teachers ct ON ct.course_id = c.id
WHERE ct.teacher_id = $1 ORDER BY c.created_at DESC`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}
	return courses, nil
}

// ListTeachers returns the teachers of a course.
func (r *CourseRepository) ListTeachers(ctx context.Context, courseID string) ([]models.CourseTeacher, error) {
	const query = `SELECT ct.course_id, ct.teacher_id, ct.auto_subscribe, u.full_name
FROM course_teachers ct JOIN users u ON u.id = ct.teacher_id
WHERE ct.course_id = $1 ORDER BY u.full_name`
	var teachers []models.CourseTeacher
	if err := r.db.SelectContext(ctx, &teachers, query, courseID); err != nil {
		return nil, fmt.Errorf("list course teachers: %w", err)
	}
	return teachers, nil
}

// ListActiveStudentIDs returns students with an active enrollment.
func (r *CourseRepository) ListActiveStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	const query = "SELECT student_id FROM enrollments WHERE course_id = $1 AND active = TRUE ORDER BY created_at"
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	return ids, nil
}

// CreateNews persists course news.
func (r *CourseRepository) CreateNews(ctx context.Context, news *models.CourseNews) error {
	if news.ID == "" {
		news.ID = uuid.NewString()
	}
	if news.CreatedAt.IsZero() {
		news.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_news (id, course_id, author_id, title, text, created_at)
VALUES (:id, :course_id, :author_id, :title, :text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, news); err != nil {
		return fmt.Errorf("create course news: %w", err)
	}
	return nil
}

// FindSurvey returns a survey.
func (r *CourseRepository) FindSurvey(ctx context.Context, id string) (*models.Survey, error) {
	const query = "SELECT id, course_id, title, status, published_at FROM surveys WHERE id = $1"
	var survey models.Survey
	if err := r.db.GetContext(ctx, &survey, query, id); err != nil {
		return nil, err
	}
	return &survey, nil
}

// PublishSurvey moves a survey to published. It reports false when the
// survey was already published, so callers fan out exactly once.
func (r *CourseRepository) PublishSurvey(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = "UPDATE surveys SET status = $2, published_at = $3 WHERE id = $1 AND status <> $2"
	res, err := r.db.ExecContext(ctx, query, id, models.SurveyStatusPublished, at)
	if err != nil {
		return false, fmt.Errorf("publish survey: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("publish survey rows: %w", err)
	}
	return affected == 1, nil
}

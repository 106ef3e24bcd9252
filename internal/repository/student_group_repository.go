package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

const groupColumns = "id, course_id, type, name, department_id, created_at"

// StudentGroupRepository persists student groups and their supervisors.
type StudentGroupRepository struct {
	db *sqlx.DB
}

// NewStudentGroupRepository constructs the repository.
func NewStudentGroupRepository(db *sqlx.DB) *StudentGroupRepository {
	return &StudentGroupRepository{db: db}
}

// FindByID returns a group with its supervisors.
func (r *StudentGroupRepository) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	query := fmt.Sprintf("SELECT %s FROM student_groups WHERE id = $1", groupColumns)
	var group models.StudentGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	supervisors, err := r.ListSupervisors(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Supervisors = supervisors
	return &group, nil
}

// FindByDepartment returns the department group of a course, or
// sql.ErrNoRows when the department is not offered.
func (r *StudentGroupRepository) FindByDepartment(ctx context.Context, courseID, departmentID string) (*models.StudentGroup, error) {
	query := fmt.Sprintf("SELECT %s FROM student_groups WHERE course_id = $1 AND type = $2 AND department_id = $3", groupColumns)
	var group models.StudentGroup
	if err := r.db.GetContext(ctx, &group, query, courseID, models.StudentGroupTypeDepartment, departmentID); err != nil {
		return nil, err
	}
	return &group, nil
}

// GetOrCreateDefault returns the system "Others" group, creating it on first use.
func (r *StudentGroupRepository) GetOrCreateDefault(ctx context.Context, courseID string) (*models.StudentGroup, error) {
	const insert = `INSERT INTO student_groups (id, course_id, type, name, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (course_id) WHERE type = 'SYSTEM' DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), courseID, models.StudentGroupTypeSystem, models.DefaultStudentGroupName, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("create default student group: %w", err)
	}
	query := fmt.Sprintf("SELECT %s FROM student_groups WHERE course_id = $1 AND type = $2", groupColumns)
	var group models.StudentGroup
	if err := r.db.GetContext(ctx, &group, query, courseID, models.StudentGroupTypeSystem); err != nil {
		return nil, fmt.Errorf("load default student group: %w", err)
	}
	return &group, nil
}

// AttachDepartment offers a department in a course and creates its group.
func (r *StudentGroupRepository) AttachDepartment(ctx context.Context, courseID string, department models.Department) (*models.StudentGroup, error) {
	group := models.StudentGroup{
		ID:           uuid.NewString(),
		CourseID:     courseID,
		Type:         models.StudentGroupTypeDepartment,
		Name:         department.Name,
		DepartmentID: &department.ID,
		CreatedAt:    time.Now().UTC(),
	}
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO course_departments (course_id, department_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			courseID, department.ID); err != nil {
			return fmt.Errorf("bind department: %w", err)
		}
		const insert = `INSERT INTO student_groups (id, course_id, type, name, department_id, created_at)
VALUES (:id, :course_id, :type, :name, :department_id, :created_at)
ON CONFLICT (course_id, department_id) WHERE type = 'DEPARTMENT' DO NOTHING`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, &group); err != nil {
			return fmt.Errorf("create department group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.FindByDepartment(ctx, courseID, department.ID)
}

// ListByCourse returns every group of a course.
func (r *StudentGroupRepository) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	query := fmt.Sprintf("SELECT %s FROM student_groups WHERE course_id = $1 ORDER BY type, name", groupColumns)
	var groups []models.StudentGroup
	if err := r.db.SelectContext(ctx, &groups, query, courseID); err != nil {
		return nil, fmt.Errorf("list student groups: %w", err)
	}
	return groups, nil
}

// ListSupervisors returns supervisors in their configured order.
func (r *StudentGroupRepository) ListSupervisors(ctx context.Context, groupID string) ([]string, error) {
	const query = "SELECT teacher_id FROM student_group_supervisors WHERE group_id = $1 ORDER BY position, teacher_id"
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, groupID); err != nil {
		return nil, fmt.Errorf("list supervisors: %w", err)
	}
	return ids, nil
}

// Update renames a group and replaces its supervisors atomically.
func (r *StudentGroupRepository) Update(ctx context.Context, groupID, name string, supervisors []string) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "UPDATE student_groups SET name = $2 WHERE id = $1", groupID, name); err != nil {
			return fmt.Errorf("rename student group: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM student_group_supervisors WHERE group_id = $1", groupID); err != nil {
			return fmt.Errorf("clear supervisors: %w", err)
		}
		for i, teacherID := range supervisors {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO student_group_supervisors (group_id, teacher_id, position) VALUES ($1, $2, $3)",
				groupID, teacherID, i); err != nil {
				return fmt.Errorf("add supervisor: %w", err)
			}
		}
		return nil
	})
}

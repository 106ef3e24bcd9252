package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lms-api/internal/models"
)

const (
	assignmentColumns = "a.id, a.course_id, a.title, a.text, a.max_score, a.deadline_at, a.responsible_mode, a.created_at"
	personalColumns   = "id, assignment_id, student_id, reviewer_id, score, status, created_at"
)

// AssignmentRepository persists assignments, personal assignments and their threads.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create stores an assignment with its group restrictions, the notification
// settings snapshot and the personal assignments of enrolled students.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment, notify []string, personal []models.PersonalAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO assignments (id, course_id, title, text, max_score, deadline_at, responsible_mode, created_at)
VALUES (:id, :course_id, :title, :text, :max_score, :deadline_at, :responsible_mode, :created_at)`
		if _, err := sqlx.NamedExecContext(ctx, tx, insert, assignment); err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		for _, groupID := range assignment.RestrictedTo {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO assignment_groups (assignment_id, group_id) VALUES ($1, $2)",
				assignment.ID, groupID); err != nil {
				return fmt.Errorf("restrict assignment: %w", err)
			}
		}
		for _, teacherID := range notify {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO assignment_notify_settings (assignment_id, teacher_id) VALUES ($1, $2)",
				assignment.ID, teacherID); err != nil {
				return fmt.Errorf("create notify setting: %w", err)
			}
		}
		groupIDs := make([]string, 0, len(assignment.GroupAssignees))
		for groupID := range assignment.GroupAssignees {
			groupIDs = append(groupIDs, groupID)
		}
		sort.Strings(groupIDs)
		for _, groupID := range groupIDs {
			for _, teacherID := range assignment.GroupAssignees[groupID] {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO assignment_group_assignees (assignment_id, group_id, teacher_id) VALUES ($1, $2, $3)",
					assignment.ID, groupID, teacherID); err != nil {
					return fmt.Errorf("create group assignee: %w", err)
				}
			}
		}
		for i := range personal {
			personal[i].AssignmentID = assignment.ID
		}
		return insertPersonalAssignments(ctx, tx, personal)
	})
}

// insertPersonalAssignments creates personal assignments with their
// assignees. Existing (assignment, student) pairs are left untouched.
func insertPersonalAssignments(ctx context.Context, exec sqlx.ExtContext, personal []models.PersonalAssignment) error {
	now := time.Now().UTC()
	const insert = `INSERT INTO personal_assignments (id, assignment_id, student_id, reviewer_id, status, created_at)
VALUES (:id, :assignment_id, :student_id, :reviewer_id, :status, :created_at)
ON CONFLICT (assignment_id, student_id) DO NOTHING`
	for i := range personal {
		pa := &personal[i]
		if pa.ID == "" {
			pa.ID = uuid.NewString()
		}
		if pa.Status == "" {
			pa.Status = models.PersonalAssignmentNotSubmitted
		}
		if pa.CreatedAt.IsZero() {
			pa.CreatedAt = now
		}
		res, err := sqlx.NamedExecContext(ctx, exec, insert, pa)
		if err != nil {
			return fmt.Errorf("create personal assignment: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil || affected == 0 {
			continue
		}
		for _, teacherID := range pa.Assignees {
			if _, err := exec.ExecContext(ctx,
				"INSERT INTO personal_assignment_assignees (personal_assignment_id, teacher_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				pa.ID, teacherID); err != nil {
				return fmt.Errorf("add assignee: %w", err)
			}
		}
	}
	return nil
}

// FindByID returns an assignment with its group restrictions.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments a WHERE a.id = $1", assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	list := []models.Assignment{assignment}
	if err := r.attachRestrictions(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// ListByCourse returns every assignment of a course.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments a WHERE a.course_id = $1 ORDER BY a.deadline_at, a.id", assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if err := r.attachRestrictions(ctx, assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListForTeacher returns the assignments whose notification settings
// include teacherID.
func (r *AssignmentRepository) ListForTeacher(ctx context.Context, courseID, teacherID string) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments a
JOIN assignment_notify_settings ns ON ns.assignment_id = a.id
WHERE a.course_id = $1 AND ns.teacher_id = $2
ORDER BY a.deadline_at, a.id`, assignmentColumns)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher assignments: %w", err)
	}
	if err := r.attachRestrictions(ctx, assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *AssignmentRepository) attachRestrictions(ctx context.Context, assignments []models.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	ids := make([]string, len(assignments))
	index := make(map[string]int, len(assignments))
	for i, a := range assignments {
		ids[i] = a.ID
		index[a.ID] = i
	}
	var rows []struct {
		AssignmentID string `db:"assignment_id"`
		GroupID      string `db:"group_id"`
	}
	const query = "SELECT assignment_id, group_id FROM assignment_groups WHERE assignment_id = ANY($1) ORDER BY group_id"
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list assignment restrictions: %w", err)
	}
	for _, row := range rows {
		if i, ok := index[row.AssignmentID]; ok {
			assignments[i].RestrictedTo = append(assignments[i].RestrictedTo, row.GroupID)
		}
	}
	return nil
}

// ListNotifySettings returns the teachers subscribed to an assignment.
func (r *AssignmentRepository) ListNotifySettings(ctx context.Context, assignmentID string) ([]string, error) {
	var ids []string
	const query = "SELECT teacher_id FROM assignment_notify_settings WHERE assignment_id = $1 ORDER BY teacher_id"
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list notify settings: %w", err)
	}
	return ids, nil
}

// ListGroupAssignees returns the teachers set for one group of an
// assignment, empty when the group keeps its supervisors.
func (r *AssignmentRepository) ListGroupAssignees(ctx context.Context, assignmentID, groupID string) ([]string, error) {
	var ids []string
	const query = "SELECT teacher_id FROM assignment_group_assignees WHERE assignment_id = $1 AND group_id = $2 ORDER BY teacher_id"
	if err := r.db.SelectContext(ctx, &ids, query, assignmentID, groupID); err != nil {
		return nil, fmt.Errorf("list group assignees: %w", err)
	}
	return ids, nil
}

// UpdateDeadline sets a new deadline and reports whether it changed.
func (r *AssignmentRepository) UpdateDeadline(ctx context.Context, id string, deadline time.Time) (bool, error) {
	const query = "UPDATE assignments SET deadline_at = $2 WHERE id = $1 AND deadline_at IS DISTINCT FROM $2"
	res, err := r.db.ExecContext(ctx, query, id, deadline)
	if err != nil {
		return false, fmt.Errorf("update deadline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update deadline rows: %w", err)
	}
	return affected == 1, nil
}

// FindPersonal returns a personal assignment with its assignees.
func (r *AssignmentRepository) FindPersonal(ctx context.Context, id string) (*models.PersonalAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM personal_assignments WHERE id = $1", personalColumns)
	var pa models.PersonalAssignment
	if err := r.db.GetContext(ctx, &pa, query, id); err != nil {
		return nil, err
	}
	assignees, err := r.ListAssignees(ctx, id)
	if err != nil {
		return nil, err
	}
	pa.Assignees = assignees
	return &pa, nil
}

// FindPersonalByStudent returns the personal assignment of a student.
func (r *AssignmentRepository) FindPersonalByStudent(ctx context.Context, assignmentID, studentID string) (*models.PersonalAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM personal_assignments WHERE assignment_id = $1 AND student_id = $2", personalColumns)
	var pa models.PersonalAssignment
	if err := r.db.GetContext(ctx, &pa, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &pa, nil
}

// ListPersonalByAssignment returns all personal assignments of an assignment.
func (r *AssignmentRepository) ListPersonalByAssignment(ctx context.Context, assignmentID string) ([]models.PersonalAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM personal_assignments WHERE assignment_id = $1 ORDER BY created_at", personalColumns)
	var list []models.PersonalAssignment
	if err := r.db.SelectContext(ctx, &list, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list personal assignments: %w", err)
	}
	return list, nil
}

// ListPersonalByStudent returns a student's personal assignments in a course.
func (r *AssignmentRepository) ListPersonalByStudent(ctx context.Context, courseID, studentID string) ([]models.PersonalAssignment, error) {
	const query = `SELECT pa.id, pa.assignment_id, pa.student_id, pa.reviewer_id, pa.score, pa.status, pa.created_at
FROM personal_assignments pa JOIN assignments a ON a.id = pa.assignment_id
WHERE a.course_id = $1 AND pa.student_id = $2 ORDER BY pa.created_at`
	var list []models.PersonalAssignment
	if err := r.db.SelectContext(ctx, &list, query, courseID, studentID); err != nil {
		return nil, fmt.Errorf("list student personal assignments: %w", err)
	}
	return list, nil
}

// ListAssignees returns the candidate reviewers of a personal assignment.
func (r *AssignmentRepository) ListAssignees(ctx context.Context, personalID string) ([]string, error) {
	var ids []string
	const query = "SELECT teacher_id FROM personal_assignment_assignees WHERE personal_assignment_id = $1 ORDER BY teacher_id"
	if err := r.db.SelectContext(ctx, &ids, query, personalID); err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	return ids, nil
}

// ClaimReviewer sets the reviewer only while it is still empty. It reports
// whether this call won; a lost race or an already set reviewer yields false.
func (r *AssignmentRepository) ClaimReviewer(ctx context.Context, personalID, teacherID string) (bool, error) {
	const query = "UPDATE personal_assignments SET reviewer_id = $2 WHERE id = $1 AND reviewer_id IS NULL"
	res, err := r.db.ExecContext(ctx, query, personalID, teacherID)
	if err != nil {
		return false, fmt.Errorf("claim reviewer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim reviewer rows: %w", err)
	}
	return affected == 1, nil
}

// AddComment stores a comment or solution.
func (r *AssignmentRepository) AddComment(ctx context.Context, comment *models.AssignmentComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO assignment_comments (id, personal_assignment_id, author_id, kind, text, created_at)
VALUES (:id, :personal_assignment_id, :author_id, :kind, :text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, comment); err != nil {
		return fmt.Errorf("create assignment comment: %w", err)
	}
	if comment.Kind == models.CommentKindSolution {
		if _, err := r.db.ExecContext(ctx,
			"UPDATE personal_assignments SET status = $2 WHERE id = $1 AND status = $3",
			comment.PersonalAssignmentID, models.PersonalAssignmentOnChecking, models.PersonalAssignmentNotSubmitted); err != nil {
			return fmt.Errorf("mark solution submitted: %w", err)
		}
	}
	return nil
}

// UpdateGrade stores the score and status of a personal assignment.
func (r *AssignmentRepository) UpdateGrade(ctx context.Context, personalID string, score *float64, status models.PersonalAssignmentStatus) error {
	const query = "UPDATE personal_assignments SET score = $2, status = $3 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, personalID, score, status); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Gradebook returns one row per (student, assignment) of a course.
func (r *AssignmentRepository) Gradebook(ctx context.Context, courseID string) ([]models.GradebookRow, error) {
	const query = `SELECT u.id AS student_id, u.full_name AS student_name, a.id AS assignment_id, a.title AS assignment_title,
a.max_score, pa.score, pa.status
FROM personal_assignments pa
JOIN assignments a ON a.id = pa.assignment_id
JOIN users u ON u.id = pa.student_id
JOIN enrollments e ON e.course_id = a.course_id AND e.student_id = pa.student_id AND e.active = TRUE
WHERE a.course_id = $1
ORDER BY u.full_name, a.deadline_at, a.id`
	var rows []models.GradebookRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, fmt.Errorf("load gradebook: %w", err)
	}
	return rows, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lms-api/internal/models"
)

const projectColumns = "id, name, site_id, canceled, report_starts_at, report_ends_at"

// ProjectRepository persists projects and their reports.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindByID returns a project.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE id = $1", projectColumns)
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// IsParticipant reports whether a student takes part in a project.
func (r *ProjectRepository) IsParticipant(ctx context.Context, projectID, studentID string) (bool, error) {
	var exists bool
	const query = "SELECT EXISTS (SELECT 1 FROM project_students WHERE project_id = $1 AND student_id = $2)"
	if err := r.db.GetContext(ctx, &exists, query, projectID, studentID); err != nil {
		return false, fmt.Errorf("check project participant: %w", err)
	}
	return exists, nil
}

// ListReportStartingBetween returns active projects whose report period
// starts within [from, to).
func (r *ProjectRepository) ListReportStartingBetween(ctx context.Context, from, to time.Time) ([]models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE canceled = FALSE AND report_starts_at >= $1 AND report_starts_at < $2 ORDER BY report_starts_at", projectColumns)
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, from, to); err != nil {
		return nil, fmt.Errorf("list projects by report start: %w", err)
	}
	return projects, nil
}

// ListReportEndingBetween returns active projects whose report deadline
// falls within [from, to).
func (r *ProjectRepository) ListReportEndingBetween(ctx context.Context, from, to time.Time) ([]models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE canceled = FALSE AND report_ends_at >= $1 AND report_ends_at < $2 ORDER BY report_ends_at", projectColumns)
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, from, to); err != nil {
		return nil, fmt.Errorf("list projects by report deadline: %w", err)
	}
	return projects, nil
}

// ListEligibleStudents returns participants of a non-canceled project
// without a negative final score.
func (r *ProjectRepository) ListEligibleStudents(ctx context.Context, projectID string) ([]string, error) {
	const query = `SELECT ps.student_id FROM project_students ps
JOIN projects p ON p.id = ps.project_id
WHERE ps.project_id = $1 AND p.canceled = FALSE AND (ps.final_score IS NULL OR ps.final_score >= 0)
ORDER BY ps.student_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, projectID); err != nil {
		return nil, fmt.Errorf("list eligible project students: %w", err)
	}
	return ids, nil
}

// ListSubscribedReviewers returns the reviewers following a project.
func (r *ProjectRepository) ListSubscribedReviewers(ctx context.Context, projectID string) ([]string, error) {
	const query = "SELECT reviewer_id FROM project_reviewers WHERE project_id = $1 AND subscribed = TRUE ORDER BY reviewer_id"
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, projectID); err != nil {
		return nil, fmt.Errorf("list project reviewers: %w", err)
	}
	return ids, nil
}

// FindReport returns a project report.
func (r *ProjectRepository) FindReport(ctx context.Context, id string) (*models.ProjectReport, error) {
	const query = "SELECT id, project_id, author_id, status, text, created_at FROM project_reports WHERE id = $1"
	var report models.ProjectReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// CreateReport stores a submitted report.
func (r *ProjectRepository) CreateReport(ctx context.Context, report *models.ProjectReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ProjectReportSent
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO project_reports (id, project_id, author_id, status, text, created_at)
VALUES (:id, :project_id, :author_id, :status, :text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, report); err != nil {
		return fmt.Errorf("create project report: %w", err)
	}
	return nil
}

// CreateReportComment stores a comment on a report.
func (r *ProjectRepository) CreateReportComment(ctx context.Context, comment *models.ProjectReportComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO project_report_comments (id, report_id, author_id, text, created_at)
VALUES (:id, :report_id, :author_id, :text, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, insert, comment); err != nil {
		return fmt.Errorf("create report comment: %w", err)
	}
	return nil
}

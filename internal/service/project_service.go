package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	applog "github.com/noah-isme/lms-api/pkg/logger"
)

type projectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
	IsParticipant(ctx context.Context, projectID, studentID string) (bool, error)
	FindReport(ctx context.Context, id string) (*models.ProjectReport, error)
	CreateReport(ctx context.Context, report *models.ProjectReport) error
	CreateReportComment(ctx context.Context, comment *models.ProjectReportComment) error
}

type projectNotifier interface {
	ReportSubmitted(ctx context.Context, report *models.ProjectReport) (int, error)
	ReportCommented(ctx context.Context, report *models.ProjectReport, comment *models.ProjectReportComment) (int, error)
}

// ProjectReportRequest carries the text of a report or a report comment.
type ProjectReportRequest struct {
	Text string `json:"text" validate:"required"`
}

// ProjectService accepts project reports and their comments.
type ProjectService struct {
	repo      projectRepository
	notifier  projectNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProjectService constructs ProjectService.
func NewProjectService(repo projectRepository, notifier projectNotifier, validate *validator.Validate, logger *zap.Logger) *ProjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{repo: repo, notifier: notifier, validator: validate, logger: logger}
}

// SubmitReport stores a report from a participant of an active project.
func (s *ProjectService) SubmitReport(ctx context.Context, projectID, studentID string, req ProjectReportRequest) (*models.ProjectReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	project, err := s.repo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Internal(err, "failed to load project")
	}
	if project.Canceled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "project is canceled")
	}
	ok, err := s.repo.IsParticipant(ctx, project.ID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check project participant")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this project")
	}

	report := &models.ProjectReport{ProjectID: project.ID, AuthorID: studentID, Text: req.Text}
	if err := s.repo.CreateReport(ctx, report); err != nil {
		return nil, appErrors.Internal(err, "failed to create report")
	}
	if _, err := s.notifier.ReportSubmitted(ctx, report); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out project report", zap.String("report_id", report.ID), zap.Error(err))
	}
	return report, nil
}

// CommentReport stores a comment on a report.
func (s *ProjectService) CommentReport(ctx context.Context, reportID, authorID string, req ProjectReportRequest) (*models.ProjectReportComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	report, err := s.repo.FindReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Internal(err, "failed to load report")
	}

	comment := &models.ProjectReportComment{ReportID: report.ID, AuthorID: authorID, Text: req.Text}
	if err := s.repo.CreateReportComment(ctx, comment); err != nil {
		return nil, appErrors.Internal(err, "failed to create report comment")
	}
	if _, err := s.notifier.ReportCommented(ctx, report, comment); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out report comment", zap.String("report_id", report.ID), zap.Error(err))
	}
	return comment, nil
}

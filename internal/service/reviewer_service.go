package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

const (
	claimSourceAuto   = "auto"
	claimSourceManual = "manual"
)

type reviewerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindPersonal(ctx context.Context, id string) (*models.PersonalAssignment, error)
	ClaimReviewer(ctx context.Context, personalID, teacherID string) (bool, error)
}

type courseTeacherLister interface {
	ListTeachers(ctx context.Context, courseID string) ([]models.CourseTeacher, error)
}

// ReviewerService settles who reviews a personal assignment. The reviewer
// is written with a set-if-empty update, so the first writer wins and the
// field never changes afterwards.
type ReviewerService struct {
	repo     reviewerRepository
	teachers courseTeacherLister
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReviewerService constructs ReviewerService.
func NewReviewerService(repo reviewerRepository, teachers courseTeacherLister, metrics *MetricsService, logger *zap.Logger) *ReviewerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewerService{repo: repo, teachers: teachers, metrics: metrics, logger: logger}
}

// OnActivity runs on a student's comment or solution. With exactly one
// assignee and no reviewer, that assignee becomes the reviewer. The
// returned personal assignment reflects the stored reviewer.
func (s *ReviewerService) OnActivity(ctx context.Context, pa *models.PersonalAssignment) (*models.PersonalAssignment, error) {
	if pa.ReviewerID != nil || len(pa.Assignees) != 1 {
		return pa, nil
	}

	candidate := pa.Assignees[0]
	won, err := s.repo.ClaimReviewer(ctx, pa.ID, candidate)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to assign reviewer")
	}
	s.metrics.ReviewerClaim(claimSourceAuto, won)
	if won {
		updated := *pa
		updated.ReviewerID = &candidate
		s.logger.Info("reviewer assigned automatically", zap.String("personal_assignment_id", pa.ID), zap.String("reviewer_id", candidate))
		return &updated, nil
	}
	return s.reload(ctx, pa.ID)
}

// Claim is the "become reviewer" action. It fails with
// ErrReviewerAlreadySet once any other teacher holds the slot.
func (s *ReviewerService) Claim(ctx context.Context, personalID, teacherID string) (*models.PersonalAssignment, error) {
	pa, err := s.reload(ctx, personalID)
	if err != nil {
		return nil, err
	}
	if pa.ReviewerID != nil {
		if *pa.ReviewerID == teacherID {
			return pa, nil
		}
		return nil, appErrors.Clone(appErrors.ErrReviewerAlreadySet, "")
	}

	assignment, err := s.repo.FindByID(ctx, pa.AssignmentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load assignment")
	}
	ok, err := isCourseTeacher(ctx, s.teachers, assignment.CourseID, teacherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only course teachers can review")
	}

	won, err := s.repo.ClaimReviewer(ctx, pa.ID, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to assign reviewer")
	}
	s.metrics.ReviewerClaim(claimSourceManual, won)
	if !won {
		current, err := s.reload(ctx, pa.ID)
		if err == nil && current.ReviewerID != nil && *current.ReviewerID == teacherID {
			return current, nil
		}
		return nil, appErrors.Clone(appErrors.ErrReviewerAlreadySet, "")
	}
	pa.ReviewerID = &teacherID
	s.logger.Info("reviewer claimed", zap.String("personal_assignment_id", pa.ID), zap.String("reviewer_id", teacherID))
	return pa, nil
}

func (s *ReviewerService) reload(ctx context.Context, personalID string) (*models.PersonalAssignment, error) {
	pa, err := s.repo.FindPersonal(ctx, personalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "personal assignment not found")
		}
		return nil, appErrors.Internal(err, "failed to load personal assignment")
	}
	return pa, nil
}

func isCourseTeacher(ctx context.Context, teachers courseTeacherLister, courseID, teacherID string) (bool, error) {
	list, err := teachers.ListTeachers(ctx, courseID)
	if err != nil {
		return false, appErrors.Internal(err, "failed to list course teachers")
	}
	for _, t := range list {
		if t.TeacherID == teacherID {
			return true, nil
		}
	}
	return false, nil
}

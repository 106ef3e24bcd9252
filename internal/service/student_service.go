package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type studentProfileRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentProfile, error)
	UpdateStudentNumber(ctx context.Context, id, number string) error
	ListAlumni(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniProfile, int, error)
	PromoteToAlumni(ctx context.Context, profileID string, year int) (*models.StudentProfile, bool, error)
}

// UpdateStudentNumberRequest sets the official student number.
type UpdateStudentNumberRequest struct {
	StudentNumber string `json:"student_id" validate:"required,max=64"`
}

// PromoteAlumniRequest names the profile to graduate.
type PromoteAlumniRequest struct {
	StudentProfileID string `json:"student_profile_id" validate:"required"`
}

// StudentService handles student profile use-cases.
type StudentService struct {
	repo      studentProfileRepository
	users     userReader
	mail      mailQueue
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentProfileRepository, users userReader, mail mailQueue, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, mail: mail, validator: validate, logger: logger, now: time.Now}
}

// UpdateStudentNumber changes the student number of a profile.
func (s *StudentService) UpdateStudentNumber(ctx context.Context, profileID string, req UpdateStudentNumberRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student number payload")
	}
	if err := s.repo.UpdateStudentNumber(ctx, profileID, req.StudentNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to update student number")
	}
	profile, err := s.repo.FindByID(ctx, profileID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load student profile")
	}
	return profile, nil
}

// ListAlumni returns alumni and pagination metadata.
func (s *StudentService) ListAlumni(ctx context.Context, filter models.AlumniFilter) ([]models.AlumniProfile, *models.Pagination, error) {
	alumni, total, err := s.repo.ListAlumni(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list alumni")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return alumni, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Promote graduates a profile in the current year. The congratulation
// email is queued only when the alumni profile is created.
func (s *StudentService) Promote(ctx context.Context, req PromoteAlumniRequest) (*models.StudentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	year := s.now().Year()
	alumni, created, err := s.repo.PromoteToAlumni(ctx, req.StudentProfileID, year)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Internal(err, "failed to promote student")
	}
	if !created {
		return alumni, nil
	}

	s.logger.Info("student promoted to alumni", zap.String("user_id", alumni.UserID), zap.Int("year", year))
	user, err := s.users.FindByID(ctx, alumni.UserID)
	if err != nil {
		s.logger.Warn("skip alumni email", zap.String("user_id", alumni.UserID), zap.Error(err))
		return alumni, nil
	}
	email, err := newQueuedEmail(user.Email, user.FullName, models.TemplateAlumniPromoted, map[string]interface{}{
		"student_name":       user.FullName,
		"year_of_graduation": year,
	})
	if err == nil {
		err = s.mail.Enqueue(ctx, []models.QueuedEmail{email})
	}
	if err != nil {
		s.logger.Warn("failed to queue alumni email", zap.String("user_id", alumni.UserID), zap.Error(err))
	}
	return alumni, nil
}

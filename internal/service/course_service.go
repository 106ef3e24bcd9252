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
	applog "github.com/noah-isme/lms-api/pkg/logger"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]models.Course, error)
	ListTeachers(ctx context.Context, courseID string) ([]models.CourseTeacher, error)
	CreateNews(ctx context.Context, news *models.CourseNews) error
	FindSurvey(ctx context.Context, id string) (*models.Survey, error)
	PublishSurvey(ctx context.Context, id string, at time.Time) (bool, error)
}

type courseNotifier interface {
	CourseNewsCreated(ctx context.Context, news *models.CourseNews) (int, error)
	SurveyPublished(ctx context.Context, course *models.Course, survey *models.Survey) (int, error)
}

// CreateCourseNewsRequest is the payload of a course announcement.
type CreateCourseNewsRequest struct {
	Title string `json:"title" validate:"required,max=255"`
	Text  string `json:"text" validate:"required"`
}

// CourseService exposes course listings, news and surveys.
type CourseService struct {
	repo      courseRepository
	notifier  courseNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, notifier courseNotifier, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// List returns every course for curators and the taught courses otherwise.
func (s *CourseService) List(ctx context.Context, claims *models.TokenClaims) ([]models.Course, error) {
	var (
		courses []models.Course
		err     error
	)
	if claims.HasRole(models.RoleCurator) {
		courses, err = s.repo.List(ctx)
	} else {
		courses, err = s.repo.ListForTeacher(ctx, claims.UserID)
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, nil
}

// PostNews publishes an announcement and notifies the course.
func (s *CourseService) PostNews(ctx context.Context, courseID, authorID string, req CreateCourseNewsRequest) (*models.CourseNews, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid news payload")
	}
	course, err := s.find(ctx, courseID)
	if err != nil {
		return nil, err
	}
	ok, err := isCourseTeacher(ctx, s.repo, course.ID, authorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a teacher of this course")
	}

	news := &models.CourseNews{CourseID: course.ID, AuthorID: authorID, Title: req.Title, Text: req.Text}
	if err := s.repo.CreateNews(ctx, news); err != nil {
		return nil, appErrors.Internal(err, "failed to create course news")
	}
	if _, err := s.notifier.CourseNewsCreated(ctx, news); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out course news", zap.String("news_id", news.ID), zap.Error(err))
	}
	return news, nil
}

// PublishSurvey moves a draft survey to published. Students are notified
// only by the call that performs the transition.
func (s *CourseService) PublishSurvey(ctx context.Context, surveyID, teacherID string) (*models.Survey, error) {
	survey, err := s.repo.FindSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "survey not found")
		}
		return nil, appErrors.Internal(err, "failed to load survey")
	}
	course, err := s.find(ctx, survey.CourseID)
	if err != nil {
		return nil, err
	}
	ok, err := isCourseTeacher(ctx, s.repo, course.ID, teacherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a teacher of this course")
	}

	at := s.now().UTC()
	published, err := s.repo.PublishSurvey(ctx, survey.ID, at)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to publish survey")
	}
	if !published {
		return survey, nil
	}
	survey.Status = models.SurveyStatusPublished
	survey.PublishedAt = &at
	if _, err := s.notifier.SurveyPublished(ctx, course, survey); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out survey", zap.String("survey_id", survey.ID), zap.Error(err))
	}
	return survey, nil
}

func (s *CourseService) find(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type studentProfileReader interface {
	FindCurrent(ctx context.Context, userID string) (*models.StudentProfile, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type groupResolver interface {
	Resolve(ctx context.Context, course *models.Course, profile *models.StudentProfile, admin bool) (*models.StudentGroup, error)
}

type enrollmentRepository interface {
	FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment, personal []models.PersonalAssignment) error
	Deactivate(ctx context.Context, courseID, studentID string) error
}

type enrollmentAssignmentReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	ListNotifySettings(ctx context.Context, assignmentID string) ([]string, error)
	ListGroupAssignees(ctx context.Context, assignmentID, groupID string) ([]string, error)
}

type mailQueue interface {
	Enqueue(ctx context.Context, emails []models.QueuedEmail) error
}

// AdminEnrollRequest names the student enrolled by a curator.
type AdminEnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// EnrollmentService places students into courses and their groups.
type EnrollmentService struct {
	courses     courseReader
	profiles    studentProfileReader
	users       userReader
	groups      groupResolver
	supervisors supervisorLister
	repo        enrollmentRepository
	assignments enrollmentAssignmentReader
	mail        mailQueue
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(courses courseReader, profiles studentProfileReader, users userReader, groups groupResolver, supervisors supervisorLister, repo enrollmentRepository, assignments enrollmentAssignmentReader, mail mailQueue, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		courses:     courses,
		profiles:    profiles,
		users:       users,
		groups:      groups,
		supervisors: supervisors,
		repo:        repo,
		assignments: assignments,
		mail:        mail,
		logger:      logger,
	}
}

// List returns the active enrollments of a course with their groups.
func (s *EnrollmentService) List(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.course(ctx, courseID); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return enrollments, nil
}

// Enroll is the self-service path. It fails with ErrNoEligibleGroup when a
// department-mode course does not offer the student's department.
func (s *EnrollmentService) Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	return s.enroll(ctx, courseID, studentID, false)
}

// AdminEnroll enrolls on behalf of a curator, falling back to the course's
// "Others" group when no department group matches.
func (s *EnrollmentService) AdminEnroll(ctx context.Context, courseID string, req AdminEnrollRequest) (*models.Enrollment, error) {
	if req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	return s.enroll(ctx, courseID, req.StudentID, true)
}

func (s *EnrollmentService) enroll(ctx context.Context, courseID, studentID string, admin bool) (*models.Enrollment, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.FindCurrent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no active profile")
		}
		return nil, appErrors.Internal(err, "failed to load student profile")
	}

	existing, err := s.repo.FindByCourseAndStudent(ctx, courseID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check enrollment")
	}
	if existing != nil && existing.Active {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	group, err := s.groups.Resolve(ctx, course, profile, admin)
	if err != nil {
		return nil, err
	}

	assignments, err := s.assignments.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assignments")
	}
	resolver := newAssigneeResolver(s.supervisors, s.assignments)
	var personal []models.PersonalAssignment
	for i := range assignments {
		a := &assignments[i]
		if !a.AvailableTo(group.ID) {
			continue
		}
		assignees, err := resolver.assignees(ctx, a, group.ID)
		if err != nil {
			return nil, err
		}
		personal = append(personal, models.PersonalAssignment{AssignmentID: a.ID, Assignees: assignees})
	}

	enrollment := &models.Enrollment{
		CourseID:         courseID,
		StudentID:        studentID,
		StudentProfileID: profile.ID,
		StudentGroupID:   group.ID,
	}
	if err := s.repo.Create(ctx, enrollment, personal); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to create enrollment")
	}

	s.logger.Info("student enrolled",
		zap.String("course_id", courseID),
		zap.String("student_id", studentID),
		zap.String("group_id", group.ID),
		zap.Bool("admin", admin),
		zap.Int("personal_assignments", len(personal)),
	)
	s.queueConfirmation(ctx, course, studentID)
	return enrollment, nil
}

func (s *EnrollmentService) queueConfirmation(ctx context.Context, course *models.Course, studentID string) {
	if s.mail == nil || s.users == nil {
		return
	}
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		s.logger.Warn("skip enrollment confirmation", zap.String("student_id", studentID), zap.Error(err))
		return
	}
	email, err := newQueuedEmail(student.Email, student.FullName, models.TemplateEnrollmentConfirmed, map[string]interface{}{
		"student_name": student.FullName,
		"course_name":  course.Name,
	})
	if err == nil {
		err = s.mail.Enqueue(ctx, []models.QueuedEmail{email})
	}
	if err != nil {
		s.logger.Warn("failed to queue enrollment confirmation", zap.String("student_id", studentID), zap.Error(err))
	}
}

// Leave deactivates the enrollment and removes the student's notifications
// about the course.
func (s *EnrollmentService) Leave(ctx context.Context, courseID, studentID string) error {
	if err := s.repo.Deactivate(ctx, courseID, studentID); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Internal(err, "failed to leave course")
	}
	s.logger.Info("student left course", zap.String("course_id", courseID), zap.String("student_id", studentID))
	return nil
}

func (s *EnrollmentService) course(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

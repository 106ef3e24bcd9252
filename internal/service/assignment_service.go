package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	applog "github.com/noah-isme/lms-api/pkg/logger"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment, notify []string, personal []models.PersonalAssignment) error
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListForTeacher(ctx context.Context, courseID, teacherID string) ([]models.Assignment, error)
	ListNotifySettings(ctx context.Context, assignmentID string) ([]string, error)
	ListGroupAssignees(ctx context.Context, assignmentID, groupID string) ([]string, error)
	UpdateDeadline(ctx context.Context, id string, deadline time.Time) (bool, error)
	FindPersonal(ctx context.Context, id string) (*models.PersonalAssignment, error)
	FindPersonalByStudent(ctx context.Context, assignmentID, studentID string) (*models.PersonalAssignment, error)
	AddComment(ctx context.Context, comment *models.AssignmentComment) error
	UpdateGrade(ctx context.Context, personalID string, score *float64, status models.PersonalAssignmentStatus) error
}

type assignmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListTeachers(ctx context.Context, courseID string) ([]models.CourseTeacher, error)
}

type courseEnrollmentLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

type courseGroupLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error)
	ListSupervisors(ctx context.Context, groupID string) ([]string, error)
}

type reviewerResolver interface {
	OnActivity(ctx context.Context, pa *models.PersonalAssignment) (*models.PersonalAssignment, error)
}

type assignmentNotifier interface {
	AssignmentCreated(ctx context.Context, assignment *models.Assignment) (int, error)
	DeadlineChanged(ctx context.Context, assignment *models.Assignment) (int, error)
	CommentAdded(ctx context.Context, course *models.Course, pa *models.PersonalAssignment, comment *models.AssignmentComment) (int, error)
}

// CreateAssignmentRequest is the payload of a new assignment.
type CreateAssignmentRequest struct {
	Title           string                 `json:"title" validate:"required,max=255"`
	Text            string                 `json:"text"`
	MaxScore        int                    `json:"max_score" validate:"required,min=1"`
	DeadlineAt      time.Time              `json:"deadline_at" validate:"required"`
	ResponsibleMode models.ResponsibleMode `json:"responsible_mode" validate:"omitempty,oneof=off manual sg_default sg_custom"`
	RestrictedTo    []string               `json:"restricted_to" validate:"omitempty,dive,required"`
	// GroupAssignees maps a student group to the teachers responsible for
	// it on this assignment. Requires sg_custom.
	GroupAssignees map[string][]string `json:"group_assignees" validate:"omitempty,dive,keys,required,endkeys,min=1,dive,required"`
}

// ChangeDeadlineRequest moves an assignment deadline.
type ChangeDeadlineRequest struct {
	DeadlineAt time.Time `json:"deadline_at" validate:"required"`
}

// AddCommentRequest is a comment or solution on a personal assignment.
type AddCommentRequest struct {
	Text string             `json:"text" validate:"required"`
	Kind models.CommentKind `json:"kind" validate:"omitempty,oneof=COMMENT SOLUTION"`
}

// UpdateGradeRequest sets the score and status of a personal assignment.
type UpdateGradeRequest struct {
	Score  *float64                        `json:"score" validate:"omitempty,min=0"`
	Status models.PersonalAssignmentStatus `json:"status" validate:"required,oneof=NOT_SUBMITTED ON_CHECKING NEED_FIXES COMPLETED"`
}

// AssignmentService manages assignments and the activity on personal
// assignments.
type AssignmentService struct {
	repo        assignmentRepository
	courses     assignmentCourseReader
	enrollments courseEnrollmentLister
	groups      courseGroupLister
	reviewers   reviewerResolver
	notifier    assignmentNotifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs AssignmentService.
func NewAssignmentService(repo assignmentRepository, courses assignmentCourseReader, enrollments courseEnrollmentLister, groups courseGroupLister, reviewers reviewerResolver, notifier assignmentNotifier, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		repo:        repo,
		courses:     courses,
		enrollments: enrollments,
		groups:      groups,
		reviewers:   reviewers,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
	}
}

// ListForTeacher returns the assignments of a course whose notification
// settings include the teacher.
func (s *AssignmentService) ListForTeacher(ctx context.Context, courseID, teacherID string) ([]models.Assignment, error) {
	if _, err := s.teacherCourse(ctx, courseID, teacherID); err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListForTeacher(ctx, courseID, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assignments")
	}
	return assignments, nil
}

// Create stores a new assignment. The teachers subscribed by default at
// this moment become its notification settings, and every active student
// of a group the assignment is available to gets a personal assignment.
func (s *AssignmentService) Create(ctx context.Context, courseID, teacherID string, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	course, err := s.teacherCourse(ctx, courseID, teacherID)
	if err != nil {
		return nil, err
	}

	mode := req.ResponsibleMode
	if mode == "" {
		mode = models.ResponsibleModeStudentGroup
	}
	if len(req.GroupAssignees) > 0 && mode != models.ResponsibleModeStudentGroupCustom {
		return nil, appErrors.Clone(appErrors.ErrValidation, "group assignees require the sg_custom responsible mode")
	}

	if len(req.RestrictedTo) > 0 || len(req.GroupAssignees) > 0 {
		groups, err := s.groups.ListByCourse(ctx, course.ID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list student groups")
		}
		known := make(map[string]struct{}, len(groups))
		for _, g := range groups {
			known[g.ID] = struct{}{}
		}
		for _, id := range req.RestrictedTo {
			if _, ok := known[id]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, "student group "+id+" does not belong to the course")
			}
		}
		for id := range req.GroupAssignees {
			if _, ok := known[id]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, "student group "+id+" does not belong to the course")
			}
		}
	}

	teachers, err := s.courses.ListTeachers(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list course teachers")
	}
	notify := make([]string, 0, len(teachers))
	teaching := make(map[string]struct{}, len(teachers))
	for _, t := range teachers {
		teaching[t.TeacherID] = struct{}{}
		if t.AutoSubscribe {
			notify = append(notify, t.TeacherID)
		}
	}
	for groupID, ids := range req.GroupAssignees {
		for _, id := range ids {
			if _, ok := teaching[id]; !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, "assignee "+id+" of group "+groupID+" does not teach the course")
			}
		}
	}

	assignment := &models.Assignment{
		ID:              uuid.NewString(),
		CourseID:        course.ID,
		Title:           req.Title,
		Text:            req.Text,
		MaxScore:        req.MaxScore,
		DeadlineAt:      req.DeadlineAt.UTC(),
		ResponsibleMode: mode,
		RestrictedTo:    req.RestrictedTo,
		GroupAssignees:  req.GroupAssignees,
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	resolver := newAssigneeResolver(s.groups, s.repo)
	resolver.seed(assignment, notify)
	personal := make([]models.PersonalAssignment, 0, len(enrollments))
	for _, e := range enrollments {
		if !assignment.AvailableTo(e.StudentGroupID) {
			continue
		}
		assignees, err := resolver.assignees(ctx, assignment, e.StudentGroupID)
		if err != nil {
			return nil, err
		}
		personal = append(personal, models.PersonalAssignment{StudentID: e.StudentID, Assignees: assignees})
	}

	if err := s.repo.Create(ctx, assignment, notify, personal); err != nil {
		return nil, appErrors.Internal(err, "failed to create assignment")
	}
	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID),
		zap.String("course_id", course.ID),
		zap.Int("notify_settings", len(notify)),
		zap.Int("personal_assignments", len(personal)),
	)

	if _, err := s.notifier.AssignmentCreated(ctx, assignment); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out new assignment", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
	return assignment, nil
}

// ChangeDeadline updates the deadline and notifies students only when the
// stored value actually changed.
func (s *AssignmentService) ChangeDeadline(ctx context.Context, assignmentID, teacherID string, req ChangeDeadlineRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deadline payload")
	}
	assignment, err := s.assignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.teacherCourse(ctx, assignment.CourseID, teacherID); err != nil {
		return nil, err
	}

	deadline := req.DeadlineAt.UTC()
	changed, err := s.repo.UpdateDeadline(ctx, assignment.ID, deadline)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update deadline")
	}
	assignment.DeadlineAt = deadline
	if !changed {
		return assignment, nil
	}
	if _, err := s.notifier.DeadlineChanged(ctx, assignment); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out deadline change", zap.String("assignment_id", assignment.ID), zap.Error(err))
	}
	return assignment, nil
}

// AddComment stores a comment or solution by the owning student or a course
// teacher. Student activity settles the reviewer before notifying.
func (s *AssignmentService) AddComment(ctx context.Context, authorID, personalID string, req AddCommentRequest) (*models.AssignmentComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	pa, err := s.personal(ctx, personalID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assignment(ctx, pa.AssignmentID)
	if err != nil {
		return nil, err
	}
	course, err := s.course(ctx, assignment.CourseID)
	if err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = models.CommentKindComment
	}
	fromStudent := authorID == pa.StudentID
	if !fromStudent {
		ok, err := isCourseTeacher(ctx, s.courses, course.ID, authorID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to comment on this assignment")
		}
		if kind == models.CommentKindSolution {
			return nil, appErrors.Clone(appErrors.ErrValidation, "only the student can submit a solution")
		}
	}

	comment := &models.AssignmentComment{
		PersonalAssignmentID: pa.ID,
		AuthorID:             authorID,
		Kind:                 kind,
		Text:                 req.Text,
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, appErrors.Internal(err, "failed to store comment")
	}

	if fromStudent {
		pa, err = s.reviewers.OnActivity(ctx, pa)
		if err != nil {
			return nil, err
		}
	}
	if _, err := s.notifier.CommentAdded(ctx, course, pa, comment); err != nil {
		applog.WithRequest(ctx, s.logger).Error("failed to fan out comment", zap.String("personal_assignment_id", pa.ID), zap.Error(err))
	}
	return comment, nil
}

// UpdateGrade sets the score of a student's personal assignment. The score
// must lie within [0, MaxScore].
func (s *AssignmentService) UpdateGrade(ctx context.Context, courseID, assignmentID, studentID, teacherID string, req UpdateGradeRequest) (*models.PersonalAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	assignment, err := s.assignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	if _, err := s.teacherCourse(ctx, courseID, teacherID); err != nil {
		return nil, err
	}
	if req.Score != nil && *req.Score > float64(assignment.MaxScore) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score exceeds the assignment maximum")
	}

	pa, err := s.repo.FindPersonalByStudent(ctx, assignment.ID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "personal assignment not found")
		}
		return nil, appErrors.Internal(err, "failed to load personal assignment")
	}
	if err := s.repo.UpdateGrade(ctx, pa.ID, req.Score, req.Status); err != nil {
		return nil, appErrors.Internal(err, "failed to update grade")
	}
	pa.Score = req.Score
	pa.Status = req.Status
	return pa, nil
}

func (s *AssignmentService) teacherCourse(ctx context.Context, courseID, teacherID string) (*models.Course, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	ok, err := isCourseTeacher(ctx, s.courses, course.ID, teacherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a teacher of this course")
	}
	return course, nil
}

func (s *AssignmentService) course(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	return course, nil
}

func (s *AssignmentService) assignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assignment")
	}
	return assignment, nil
}

func (s *AssignmentService) personal(ctx context.Context, id string) (*models.PersonalAssignment, error) {
	pa, err := s.repo.FindPersonal(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "personal assignment not found")
		}
		return nil, appErrors.Internal(err, "failed to load personal assignment")
	}
	return pa, nil
}

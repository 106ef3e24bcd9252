package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type studentGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentGroup, error)
	FindByDepartment(ctx context.Context, courseID, departmentID string) (*models.StudentGroup, error)
	GetOrCreateDefault(ctx context.Context, courseID string) (*models.StudentGroup, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error)
	ListSupervisors(ctx context.Context, groupID string) ([]string, error)
	Update(ctx context.Context, groupID, name string, supervisors []string) error
	AttachDepartment(ctx context.Context, courseID string, department models.Department) (*models.StudentGroup, error)
}

type groupMembershipRepository interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error)
	MoveStudents(ctx context.Context, courseID, fromGroupID, toGroupID string, studentIDs []string, personal []models.PersonalAssignment) error
}

type groupAssignmentReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error)
	ListNotifySettings(ctx context.Context, assignmentID string) ([]string, error)
	ListGroupAssignees(ctx context.Context, assignmentID, groupID string) ([]string, error)
	ListPersonalByStudent(ctx context.Context, courseID, studentID string) ([]models.PersonalAssignment, error)
}

// TransferStudentsRequest moves students to another group of the same course.
type TransferStudentsRequest struct {
	TargetGroupID string   `json:"target_group_id" validate:"required"`
	StudentIDs    []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

// UpdateStudentGroupRequest is the public edit form of a group.
type UpdateStudentGroupRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Supervisors []string `json:"supervisors" validate:"omitempty,dive,required"`
}

// AttachDepartmentRequest offers a department in a course.
type AttachDepartmentRequest struct {
	DepartmentID string `json:"department_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=255"`
}

// StudentGroupService resolves and maintains the partition of enrolled
// students into groups.
type StudentGroupService struct {
	groups      studentGroupRepository
	members     groupMembershipRepository
	assignments groupAssignmentReader
	teachers    courseTeacherLister
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentGroupService constructs StudentGroupService.
func NewStudentGroupService(groups studentGroupRepository, members groupMembershipRepository, assignments groupAssignmentReader, teachers courseTeacherLister, validate *validator.Validate, logger *zap.Logger) *StudentGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentGroupService{groups: groups, members: members, assignments: assignments, teachers: teachers, validator: validate, logger: logger}
}

// Resolve picks the group a student joins when enrolling in course. In
// department mode an unmatched department fails with ErrNoEligibleGroup
// unless admin is set, in which case the student lands in "Others".
func (s *StudentGroupService) Resolve(ctx context.Context, course *models.Course, profile *models.StudentProfile, admin bool) (*models.StudentGroup, error) {
	if course.GroupMode == models.GroupModeManual {
		return s.defaultGroup(ctx, course.ID)
	}

	if profile != nil && profile.DepartmentID != nil {
		group, err := s.groups.FindByDepartment(ctx, course.ID, *profile.DepartmentID)
		if err == nil {
			return group, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Internal(err, "failed to resolve student group")
		}
	}
	if !admin {
		return nil, appErrors.Clone(appErrors.ErrNoEligibleGroup, "")
	}
	return s.defaultGroup(ctx, course.ID)
}

func (s *StudentGroupService) defaultGroup(ctx context.Context, courseID string) (*models.StudentGroup, error) {
	group, err := s.groups.GetOrCreateDefault(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load default student group")
	}
	return group, nil
}

// Get returns a group with its supervisors.
func (s *StudentGroupService) Get(ctx context.Context, groupID string) (*models.StudentGroup, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student group not found")
		}
		return nil, appErrors.Internal(err, "failed to load student group")
	}
	return group, nil
}

// managed loads a group that teacherID is allowed to maintain.
func (s *StudentGroupService) managed(ctx context.Context, groupID, teacherID string) (*models.StudentGroup, error) {
	group, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := isCourseTeacher(ctx, s.teachers, group.CourseID, teacherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a teacher of this course")
	}
	return group, nil
}

// SafeTargets lists the groups of the same course that students of groupID
// can be moved to without any assignment they see becoming hidden.
func (s *StudentGroupService) SafeTargets(ctx context.Context, groupID, teacherID string) ([]models.StudentGroup, error) {
	source, err := s.managed(ctx, groupID, teacherID)
	if err != nil {
		return nil, err
	}
	groups, err := s.groups.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list student groups")
	}
	assignments, err := s.assignments.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assignments")
	}

	targets := make([]models.StudentGroup, 0, len(groups))
	for _, group := range groups {
		if group.ID == source.ID {
			continue
		}
		if isSafeTransfer(assignments, source.ID, group.ID) {
			targets = append(targets, group)
		}
	}
	return targets, nil
}

func isSafeTransfer(assignments []models.Assignment, fromGroupID, toGroupID string) bool {
	for i := range assignments {
		if assignments[i].AvailableTo(fromGroupID) && !assignments[i].AvailableTo(toGroupID) {
			return false
		}
	}
	return true
}

// MoveStudents transfers students of groupID into the target group. The
// move only ever adds personal assignments for assignments newly visible
// in the target; existing ones are kept.
func (s *StudentGroupService) MoveStudents(ctx context.Context, groupID, teacherID string, req TransferStudentsRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}
	source, err := s.managed(ctx, groupID, teacherID)
	if err != nil {
		return err
	}
	target, err := s.Get(ctx, req.TargetGroupID)
	if err != nil {
		return err
	}
	if source.ID == target.ID {
		return appErrors.Clone(appErrors.ErrValidation, "target group must differ from source group")
	}
	if source.CourseID != target.CourseID {
		return appErrors.Clone(appErrors.ErrValidation, "groups belong to different courses")
	}

	assignments, err := s.assignments.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return appErrors.Internal(err, "failed to list assignments")
	}
	if !isSafeTransfer(assignments, source.ID, target.ID) {
		return appErrors.Clone(appErrors.ErrUnsafeTransfer, "")
	}

	members, err := s.members.ListByGroup(ctx, source.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to list group members")
	}
	inGroup := make(map[string]struct{}, len(members))
	for _, m := range members {
		inGroup[m.StudentID] = struct{}{}
	}

	resolver := newAssigneeResolver(s.groups, s.assignments)
	var moved []string
	var personal []models.PersonalAssignment
	for _, studentID := range req.StudentIDs {
		if _, ok := inGroup[studentID]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, "student "+studentID+" is not a member of the group")
		}
		existing, err := s.assignments.ListPersonalByStudent(ctx, source.CourseID, studentID)
		if err != nil {
			return appErrors.Internal(err, "failed to list personal assignments")
		}
		has := make(map[string]struct{}, len(existing))
		for _, pa := range existing {
			has[pa.AssignmentID] = struct{}{}
		}
		for i := range assignments {
			a := &assignments[i]
			if _, ok := has[a.ID]; ok || !a.AvailableTo(target.ID) {
				continue
			}
			assignees, err := resolver.assignees(ctx, a, target.ID)
			if err != nil {
				return err
			}
			personal = append(personal, models.PersonalAssignment{AssignmentID: a.ID, StudentID: studentID, Assignees: assignees})
		}
		moved = append(moved, studentID)
	}

	if err := s.members.MoveStudents(ctx, source.CourseID, source.ID, target.ID, moved, personal); err != nil {
		return appErrors.Internal(err, "failed to move students")
	}
	s.logger.Info("students moved",
		zap.String("course_id", source.CourseID),
		zap.String("from_group", source.ID),
		zap.String("to_group", target.ID),
		zap.Int("students", len(moved)),
		zap.Int("personal_assignments_added", len(personal)),
	)
	return nil
}

// Update applies the public edit form. The form holds a single supervisor
// slot, so any supervisors beyond the first are dropped on save.
func (s *StudentGroupService) Update(ctx context.Context, groupID, teacherID string, req UpdateStudentGroupRequest) (*models.StudentGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student group payload")
	}
	group, err := s.managed(ctx, groupID, teacherID)
	if err != nil {
		return nil, err
	}

	supervisors := req.Supervisors
	if supervisors == nil {
		supervisors = group.Supervisors
	}
	if len(supervisors) > 1 {
		s.logger.Warn("truncating student group supervisors",
			zap.String("group_id", groupID),
			zap.Strings("dropped", supervisors[1:]),
		)
		supervisors = supervisors[:1]
	}

	if err := s.groups.Update(ctx, groupID, req.Name, supervisors); err != nil {
		return nil, appErrors.Internal(err, "failed to update student group")
	}
	group.Name = req.Name
	group.Supervisors = append([]string(nil), supervisors...)
	return group, nil
}

// AttachDepartment offers a department in a course and returns its group.
// Attaching an already offered department returns the existing group.
func (s *StudentGroupService) AttachDepartment(ctx context.Context, courseID string, req AttachDepartmentRequest) (*models.StudentGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	group, err := s.groups.AttachDepartment(ctx, courseID, models.Department{ID: req.DepartmentID, Name: req.Name})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to attach department")
	}
	return group, nil
}

type supervisorLister interface {
	ListSupervisors(ctx context.Context, groupID string) ([]string, error)
}

type assignmentAssigneeReader interface {
	ListNotifySettings(ctx context.Context, assignmentID string) ([]string, error)
	ListGroupAssignees(ctx context.Context, assignmentID, groupID string) ([]string, error)
}

// assigneeResolver computes the candidate reviewers of new personal
// assignments, memoizing lookups for one operation.
type assigneeResolver struct {
	supervisors supervisorLister
	settings    assignmentAssigneeReader
	byGroup     map[string][]string
	byAssign    map[string][]string
	custom      map[string][]string
}

func newAssigneeResolver(supervisors supervisorLister, settings assignmentAssigneeReader) *assigneeResolver {
	return &assigneeResolver{
		supervisors: supervisors,
		settings:    settings,
		byGroup:     make(map[string][]string),
		byAssign:    make(map[string][]string),
		custom:      make(map[string][]string),
	}
}

// seed records a known notification settings snapshot and the group
// overrides of a new assignment.
func (r *assigneeResolver) seed(a *models.Assignment, teacherIDs []string) {
	r.byAssign[a.ID] = teacherIDs
	for groupID, ids := range a.GroupAssignees {
		r.custom[a.ID+"/"+groupID] = ids
	}
}

func (r *assigneeResolver) assignees(ctx context.Context, a *models.Assignment, groupID string) ([]string, error) {
	switch a.ResponsibleMode {
	case models.ResponsibleModeManual:
		ids, ok := r.byAssign[a.ID]
		if !ok {
			var err error
			ids, err = r.settings.ListNotifySettings(ctx, a.ID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to load notification settings")
			}
			r.byAssign[a.ID] = ids
		}
		return append([]string(nil), ids...), nil
	case models.ResponsibleModeStudentGroup:
		return r.groupSupervisors(ctx, groupID)
	case models.ResponsibleModeStudentGroupCustom:
		key := a.ID + "/" + groupID
		ids, ok := r.custom[key]
		if !ok {
			var err error
			ids, err = r.settings.ListGroupAssignees(ctx, a.ID, groupID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to load group assignees")
			}
			r.custom[key] = ids
		}
		// Overrides replace the supervisors entirely.
		if len(ids) > 0 {
			return append([]string(nil), ids...), nil
		}
		return r.groupSupervisors(ctx, groupID)
	default:
		return nil, nil
	}
}

func (r *assigneeResolver) groupSupervisors(ctx context.Context, groupID string) ([]string, error) {
	ids, ok := r.byGroup[groupID]
	if !ok {
		var err error
		ids, err = r.supervisors.ListSupervisors(ctx, groupID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load group supervisors")
		}
		r.byGroup[groupID] = ids
	}
	return append([]string(nil), ids...), nil
}

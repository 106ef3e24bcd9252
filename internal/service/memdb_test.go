package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

// memDB is an in-memory store shared by the mock repositories below.
type memDB struct {
	mu  sync.Mutex
	seq int

	courses     map[string]models.Course
	teachers    map[string][]models.CourseTeacher
	users       map[string]models.User
	profiles    map[string]models.StudentProfile
	groups      map[string]models.StudentGroup
	enrollments []models.Enrollment
	assignments map[string]models.Assignment
	notify      map[string][]string
	personal    map[string]models.PersonalAssignment
	comments    []models.AssignmentComment
	news        []models.CourseNews
	surveys     map[string]models.Survey

	assignmentNotes []models.AssignmentNotification
	newsNotes       []models.CourseNewsNotification
	atoms           []models.AtomNotification
	emails          []models.QueuedEmail

	projects  map[string]models.Project
	eligible  map[string][]string
	reviewers map[string][]string
}

func newMemDB() *memDB {
	return &memDB{
		courses:     map[string]models.Course{},
		teachers:    map[string][]models.CourseTeacher{},
		users:       map[string]models.User{},
		profiles:    map[string]models.StudentProfile{},
		groups:      map[string]models.StudentGroup{},
		assignments: map[string]models.Assignment{},
		notify:      map[string][]string{},
		personal:    map[string]models.PersonalAssignment{},
		surveys:     map[string]models.Survey{},
		projects:    map[string]models.Project{},
		eligible:    map[string][]string{},
		reviewers:   map[string][]string{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) addCourse(c models.Course, teachers ...models.CourseTeacher) {
	db.courses[c.ID] = c
	for i := range teachers {
		teachers[i].CourseID = c.ID
	}
	db.teachers[c.ID] = teachers
}

func (db *memDB) addUser(id, name string, roles ...models.UserRole) {
	db.users[id] = models.User{ID: id, Email: id + "@lms.test", FullName: name, Active: true, Roles: roles}
}

func (db *memDB) addStudent(id, name string, department *string) {
	db.addUser(id, name, models.RoleStudent)
	db.profiles[id] = models.StudentProfile{ID: "profile-" + id, UserID: id, Type: models.StudentTypeRegular, DepartmentID: department, SiteID: "main"}
}

func (db *memDB) groupOf(courseID, studentID string) string {
	for _, e := range db.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID && e.Active {
			return e.StudentGroupID
		}
	}
	return ""
}

func (db *memDB) personalOf(assignmentID, studentID string) *models.PersonalAssignment {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, pa := range db.personal {
		if pa.AssignmentID == assignmentID && pa.StudentID == studentID {
			copied := pa
			return &copied
		}
	}
	return nil
}

func (db *memDB) assignmentRecipients(paID string) []string {
	var ids []string
	for _, n := range db.assignmentNotes {
		if n.PersonalAssignmentID == paID {
			ids = append(ids, n.UserID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (db *memDB) insertPersonal(list []models.PersonalAssignment) {
	for _, pa := range list {
		exists := false
		for _, existing := range db.personal {
			if existing.AssignmentID == pa.AssignmentID && existing.StudentID == pa.StudentID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		pa.ID = db.nextID("pa")
		if pa.Status == "" {
			pa.Status = models.PersonalAssignmentNotSubmitted
		}
		db.personal[pa.ID] = pa
	}
}

type memCourses struct{ *memDB }

func (m memCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (m memCourses) List(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	for _, c := range m.courses {
		out = append(out, c)
	}
	return out, nil
}

func (m memCourses) ListForTeacher(ctx context.Context, teacherID string) ([]models.Course, error) {
	var out []models.Course
	for id, teachers := range m.teachers {
		for _, t := range teachers {
			if t.TeacherID == teacherID {
				out = append(out, m.courses[id])
			}
		}
	}
	return out, nil
}

func (m memCourses) ListTeachers(ctx context.Context, courseID string) ([]models.CourseTeacher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CourseTeacher(nil), m.teachers[courseID]...), nil
}

func (m memCourses) ListActiveStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	var ids []string
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.Active {
			ids = append(ids, e.StudentID)
		}
	}
	return ids, nil
}

func (m memCourses) CreateNews(ctx context.Context, news *models.CourseNews) error {
	news.ID = m.nextID("news")
	m.news = append(m.news, *news)
	return nil
}

func (m memCourses) FindSurvey(ctx context.Context, id string) (*models.Survey, error) {
	s, ok := m.surveys[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m memCourses) PublishSurvey(ctx context.Context, id string, at time.Time) (bool, error) {
	s, ok := m.surveys[id]
	if !ok || s.Status != models.SurveyStatusDraft {
		return false, nil
	}
	s.Status = models.SurveyStatusPublished
	s.PublishedAt = &at
	m.surveys[id] = s
	return true, nil
}

type memProfiles struct{ *memDB }

func (m memProfiles) FindCurrent(ctx context.Context, userID string) (*models.StudentProfile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

type memUsers struct{ *memDB }

func (m memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m memUsers) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	var ids []string
	for _, u := range m.users {
		if u.HasRole(role) {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m memUsers) ListRecipients(ctx context.Context, ids []string) ([]models.Recipient, error) {
	var out []models.Recipient
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, models.Recipient{UserID: u.ID, Email: u.Email, FullName: u.FullName, EmailSuspended: u.EmailSuspended})
		}
	}
	return out, nil
}

type memGroups struct{ *memDB }

func (m memGroups) FindByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	g.Supervisors = append([]string(nil), g.Supervisors...)
	return &g, nil
}

func (m memGroups) FindByDepartment(ctx context.Context, courseID, departmentID string) (*models.StudentGroup, error) {
	for _, g := range m.groups {
		if g.CourseID == courseID && g.Type == models.StudentGroupTypeDepartment && g.DepartmentID != nil && *g.DepartmentID == departmentID {
			return &g, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memGroups) GetOrCreateDefault(ctx context.Context, courseID string) (*models.StudentGroup, error) {
	for _, g := range m.groups {
		if g.CourseID == courseID && g.Type == models.StudentGroupTypeSystem {
			return &g, nil
		}
	}
	g := models.StudentGroup{ID: m.nextID("group"), CourseID: courseID, Type: models.StudentGroupTypeSystem, Name: models.DefaultStudentGroupName}
	m.groups[g.ID] = g
	return &g, nil
}

func (m memGroups) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	var out []models.StudentGroup
	for _, g := range m.groups {
		if g.CourseID == courseID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memGroups) ListSupervisors(ctx context.Context, groupID string) ([]string, error) {
	return append([]string(nil), m.groups[groupID].Supervisors...), nil
}

func (m memGroups) Update(ctx context.Context, groupID, name string, supervisors []string) error {
	g, ok := m.groups[groupID]
	if !ok {
		return sql.ErrNoRows
	}
	g.Name = name
	g.Supervisors = append([]string(nil), supervisors...)
	m.groups[groupID] = g
	return nil
}

func (m memGroups) AttachDepartment(ctx context.Context, courseID string, department models.Department) (*models.StudentGroup, error) {
	if g, err := m.FindByDepartment(ctx, courseID, department.ID); err == nil {
		return g, nil
	}
	deptID := department.ID
	g := models.StudentGroup{ID: m.nextID("group"), CourseID: courseID, Type: models.StudentGroupTypeDepartment, Name: department.Name, DepartmentID: &deptID}
	m.groups[g.ID] = g
	return &g, nil
}

type memEnrollments struct{ *memDB }

func (m memEnrollments) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID {
			return &e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m memEnrollments) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if e.CourseID == courseID && e.Active {
			out = append(out, models.EnrollmentDetail{Enrollment: e, StudentName: m.users[e.StudentID].FullName, StudentGroupName: m.groups[e.StudentGroupID].Name})
		}
	}
	return out, nil
}

func (m memEnrollments) ListByGroup(ctx context.Context, groupID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentGroupID == groupID && e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m memEnrollments) Create(ctx context.Context, enrollment *models.Enrollment, personal []models.PersonalAssignment) error {
	for i, e := range m.enrollments {
		if e.CourseID == enrollment.CourseID && e.StudentID == enrollment.StudentID {
			if e.Active {
				return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
			}
			m.enrollments = append(m.enrollments[:i], m.enrollments[i+1:]...)
			break
		}
	}
	enrollment.ID = m.nextID("enrollment")
	enrollment.Active = true
	m.enrollments = append(m.enrollments, *enrollment)
	for i := range personal {
		personal[i].StudentID = enrollment.StudentID
	}
	m.insertPersonal(personal)
	return nil
}

func (m memEnrollments) Deactivate(ctx context.Context, courseID, studentID string) error {
	for i, e := range m.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID && e.Active {
			m.enrollments[i].Active = false
			kept := m.assignmentNotes[:0]
			for _, n := range m.assignmentNotes {
				pa := m.personal[n.PersonalAssignmentID]
				if n.UserID == studentID && m.assignments[pa.AssignmentID].CourseID == courseID {
					continue
				}
				kept = append(kept, n)
			}
			m.assignmentNotes = kept
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
}

func (m memEnrollments) MoveStudents(ctx context.Context, courseID, fromGroupID, toGroupID string, studentIDs []string, personal []models.PersonalAssignment) error {
	moving := map[string]bool{}
	for _, id := range studentIDs {
		moving[id] = true
	}
	for i, e := range m.enrollments {
		if e.CourseID == courseID && e.StudentGroupID == fromGroupID && moving[e.StudentID] {
			m.enrollments[i].StudentGroupID = toGroupID
		}
	}
	m.insertPersonal(personal)
	return nil
}

type memAssignments struct{ *memDB }

func (m memAssignments) Create(ctx context.Context, a *models.Assignment, notify []string, personal []models.PersonalAssignment) error {
	if a.ID == "" {
		a.ID = m.nextID("assignment")
	}
	m.assignments[a.ID] = *a
	m.notify[a.ID] = append([]string(nil), notify...)
	for i := range personal {
		personal[i].AssignmentID = a.ID
	}
	m.insertPersonal(personal)
	return nil
}

func (m memAssignments) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (m memAssignments) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range m.assignments {
		if a.CourseID == courseID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memAssignments) ListForTeacher(ctx context.Context, courseID, teacherID string) ([]models.Assignment, error) {
	var out []models.Assignment
	for _, a := range m.assignments {
		if a.CourseID != courseID {
			continue
		}
		for _, id := range m.notify[a.ID] {
			if id == teacherID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (m memAssignments) ListNotifySettings(ctx context.Context, assignmentID string) ([]string, error) {
	return append([]string(nil), m.notify[assignmentID]...), nil
}

func (m memAssignments) ListGroupAssignees(ctx context.Context, assignmentID, groupID string) ([]string, error) {
	return append([]string(nil), m.assignments[assignmentID].GroupAssignees[groupID]...), nil
}

func (m memAssignments) UpdateDeadline(ctx context.Context, id string, deadline time.Time) (bool, error) {
	a, ok := m.assignments[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if a.DeadlineAt.Equal(deadline) {
		return false, nil
	}
	a.DeadlineAt = deadline
	m.assignments[id] = a
	return true, nil
}

func (m memAssignments) FindPersonal(ctx context.Context, id string) (*models.PersonalAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pa, ok := m.personal[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	pa.Assignees = append([]string(nil), pa.Assignees...)
	return &pa, nil
}

func (m memAssignments) FindPersonalByStudent(ctx context.Context, assignmentID, studentID string) (*models.PersonalAssignment, error) {
	if pa := m.personalOf(assignmentID, studentID); pa != nil {
		return pa, nil
	}
	return nil, sql.ErrNoRows
}

func (m memAssignments) ListPersonalByAssignment(ctx context.Context, assignmentID string) ([]models.PersonalAssignment, error) {
	var out []models.PersonalAssignment
	for _, pa := range m.personal {
		if pa.AssignmentID == assignmentID {
			out = append(out, pa)
		}
	}
	return out, nil
}

func (m memAssignments) ListPersonalByStudent(ctx context.Context, courseID, studentID string) ([]models.PersonalAssignment, error) {
	var out []models.PersonalAssignment
	for _, pa := range m.personal {
		if pa.StudentID == studentID && m.assignments[pa.AssignmentID].CourseID == courseID {
			out = append(out, pa)
		}
	}
	return out, nil
}

func (m memAssignments) ClaimReviewer(ctx context.Context, personalID, teacherID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pa, ok := m.personal[personalID]
	if !ok || pa.ReviewerID != nil {
		return false, nil
	}
	reviewer := teacherID
	pa.ReviewerID = &reviewer
	m.personal[personalID] = pa
	return true, nil
}

func (m memAssignments) AddComment(ctx context.Context, comment *models.AssignmentComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment.ID = m.nextID("comment")
	m.comments = append(m.comments, *comment)
	return nil
}

func (m memAssignments) UpdateGrade(ctx context.Context, personalID string, score *float64, status models.PersonalAssignmentStatus) error {
	pa := m.personal[personalID]
	pa.Score = score
	pa.Status = status
	m.personal[personalID] = pa
	return nil
}

type memNotifications struct{ *memDB }

func (m memNotifications) CreateAssignmentNotifications(ctx context.Context, items []models.AssignmentNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range items {
		n.ID = m.nextID("an")
		n.IsUnread = true
		m.assignmentNotes = append(m.assignmentNotes, n)
	}
	return nil
}

func (m memNotifications) CreateCourseNewsNotifications(ctx context.Context, items []models.CourseNewsNotification) error {
	for _, n := range items {
		n.ID = m.nextID("cn")
		n.IsUnread = true
		m.newsNotes = append(m.newsNotes, n)
	}
	return nil
}

type memAtoms struct{ *memDB }

func (m memAtoms) Create(ctx context.Context, items []models.AtomNotification) (int, error) {
	created := 0
	for _, item := range items {
		duplicate := false
		for _, existing := range m.atoms {
			if existing.RecipientID == item.RecipientID && existing.Verb == item.Verb &&
				derefString(existing.ProjectID) == derefString(item.ProjectID) && derefString(existing.ReportID) == derefString(item.ReportID) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		item.ID = m.nextID("atom")
		m.atoms = append(m.atoms, item)
		created++
	}
	return created, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type memMail struct{ *memDB }

func (m memMail) Enqueue(ctx context.Context, emails []models.QueuedEmail) error {
	m.emails = append(m.emails, emails...)
	return nil
}

type memProjects struct {
	*memDB
	starting []models.Project
	ending   []models.Project
	windows  [][2]time.Time
}

func (m *memProjects) ListEligibleStudents(ctx context.Context, projectID string) ([]string, error) {
	return m.eligible[projectID], nil
}

func (m *memProjects) ListSubscribedReviewers(ctx context.Context, projectID string) ([]string, error) {
	return m.reviewers[projectID], nil
}

func (m *memProjects) ListReportStartingBetween(ctx context.Context, from, to time.Time) ([]models.Project, error) {
	m.windows = append(m.windows, [2]time.Time{from, to})
	return m.starting, nil
}

func (m *memProjects) ListReportEndingBetween(ctx context.Context, from, to time.Time) ([]models.Project, error) {
	m.windows = append(m.windows, [2]time.Time{from, to})
	return m.ending, nil
}

// testServices wires the services the way main does, over one memDB.
type testServices struct {
	db            *memDB
	groups        *StudentGroupService
	enrollments   *EnrollmentService
	reviewers     *ReviewerService
	notifications *NotificationService
	assignments   *AssignmentService
	courses       *CourseService
	projects      *memProjects
}

func newTestServices(db *memDB) *testServices {
	validate := validator.New()
	logger := zap.NewNop()
	metrics := NewMetricsService()

	courses := memCourses{db}
	groups := memGroups{db}
	enrollments := memEnrollments{db}
	assignments := memAssignments{db}
	projects := &memProjects{memDB: db}

	groupSvc := NewStudentGroupService(groups, enrollments, assignments, courses, validate, logger)
	notifySvc := NewNotificationService(courses, assignments, memNotifications{db}, memAtoms{db}, memUsers{db}, projects, memMail{db}, metrics, logger)
	reviewerSvc := NewReviewerService(assignments, courses, metrics, logger)
	return &testServices{
		db:            db,
		groups:        groupSvc,
		enrollments:   NewEnrollmentService(courses, memProfiles{db}, memUsers{db}, groupSvc, groups, enrollments, assignments, memMail{db}, logger),
		reviewers:     reviewerSvc,
		notifications: notifySvc,
		assignments:   NewAssignmentService(assignments, courses, enrollments, groups, reviewerSvc, notifySvc, validate, logger),
		courses:       NewCourseService(courses, notifySvc, validate, logger),
		projects:      projects,
	}
}

func strPtr(s string) *string { return &s }

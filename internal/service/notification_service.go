package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type fanoutCourseReader interface {
	ListTeachers(ctx context.Context, courseID string) ([]models.CourseTeacher, error)
	ListActiveStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type fanoutPersonalReader interface {
	ListPersonalByAssignment(ctx context.Context, assignmentID string) ([]models.PersonalAssignment, error)
}

type notificationWriter interface {
	CreateAssignmentNotifications(ctx context.Context, items []models.AssignmentNotification) error
	CreateCourseNewsNotifications(ctx context.Context, items []models.CourseNewsNotification) error
}

type atomWriter interface {
	Create(ctx context.Context, items []models.AtomNotification) (int, error)
}

type fanoutUserReader interface {
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
	ListRecipients(ctx context.Context, ids []string) ([]models.Recipient, error)
}

type fanoutProjectReader interface {
	ListEligibleStudents(ctx context.Context, projectID string) ([]string, error)
	ListSubscribedReviewers(ctx context.Context, projectID string) ([]string, error)
	ListReportStartingBetween(ctx context.Context, from, to time.Time) ([]models.Project, error)
	ListReportEndingBetween(ctx context.Context, from, to time.Time) ([]models.Project, error)
}

// NotificationService expands events into one persisted notification per
// recipient. Emails are rendered later by the dispatch jobs.
type NotificationService struct {
	courses       fanoutCourseReader
	personal      fanoutPersonalReader
	notifications notificationWriter
	atoms         atomWriter
	users         fanoutUserReader
	projects      fanoutProjectReader
	mail          mailQueue
	metrics       *MetricsService
	logger        *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(courses fanoutCourseReader, personal fanoutPersonalReader, notifications notificationWriter, atoms atomWriter, users fanoutUserReader, projects fanoutProjectReader, mail mailQueue, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		courses:       courses,
		personal:      personal,
		notifications: notifications,
		atoms:         atoms,
		users:         users,
		projects:      projects,
		mail:          mail,
		metrics:       metrics,
		logger:        logger,
	}
}

// CourseNewsCreated notifies the active students and every teacher of the
// course. The course notification switch does not apply.
func (s *NotificationService) CourseNewsCreated(ctx context.Context, news *models.CourseNews) (int, error) {
	students, err := s.courses.ListActiveStudentIDs(ctx, news.CourseID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list course students")
	}
	teachers, err := s.courses.ListTeachers(ctx, news.CourseID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list course teachers")
	}
	recipients := newRecipientSet()
	recipients.add(students...)
	for _, t := range teachers {
		recipients.add(t.TeacherID)
	}

	items := make([]models.CourseNewsNotification, 0, recipients.len())
	for _, userID := range recipients.list() {
		items = append(items, models.CourseNewsNotification{UserID: userID, CourseNewsID: news.ID})
	}
	if err := s.notifications.CreateCourseNewsNotifications(ctx, items); err != nil {
		return 0, appErrors.Internal(err, "failed to create course news notifications")
	}
	s.metrics.NotificationsCreated("course_news", len(items))
	return len(items), nil
}

// AssignmentCreated notifies enrolled students holding a personal
// assignment. Teachers are not notified.
func (s *NotificationService) AssignmentCreated(ctx context.Context, assignment *models.Assignment) (int, error) {
	return s.notifyStudents(ctx, assignment, models.NotificationNewAssignment)
}

// DeadlineChanged notifies enrolled students holding a personal assignment.
func (s *NotificationService) DeadlineChanged(ctx context.Context, assignment *models.Assignment) (int, error) {
	return s.notifyStudents(ctx, assignment, models.NotificationDeadlineChanged)
}

func (s *NotificationService) notifyStudents(ctx context.Context, assignment *models.Assignment, kind models.AssignmentNotificationKind) (int, error) {
	active, err := s.courses.ListActiveStudentIDs(ctx, assignment.CourseID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list course students")
	}
	enrolled := newRecipientSet()
	enrolled.add(active...)

	personal, err := s.personal.ListPersonalByAssignment(ctx, assignment.ID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list personal assignments")
	}
	items := make([]models.AssignmentNotification, 0, len(personal))
	for _, pa := range personal {
		if !enrolled.has(pa.StudentID) {
			continue
		}
		items = append(items, models.AssignmentNotification{UserID: pa.StudentID, PersonalAssignmentID: pa.ID, Kind: kind})
	}
	if err := s.notifications.CreateAssignmentNotifications(ctx, items); err != nil {
		return 0, appErrors.Internal(err, "failed to create assignment notifications")
	}
	s.metrics.NotificationsCreated(string(kind), len(items))
	return len(items), nil
}

// CommentAdded routes a comment or solution on a personal assignment.
// A teacher's comment reaches the student. A student's activity reaches the
// reviewer when set, otherwise every current assignee.
// When the course has notifications disabled nothing is created.
func (s *NotificationService) CommentAdded(ctx context.Context, course *models.Course, pa *models.PersonalAssignment, comment *models.AssignmentComment) (int, error) {
	if course.NotificationsDisabled {
		s.logger.Debug("comment notifications disabled for course", zap.String("course_id", course.ID))
		return 0, nil
	}

	kind := models.NotificationNewComment
	recipients := newRecipientSet()
	if comment.AuthorID == pa.StudentID {
		if comment.Kind == models.CommentKindSolution {
			kind = models.NotificationSolutionPassed
		}
		if pa.ReviewerID != nil {
			recipients.add(*pa.ReviewerID)
		} else {
			recipients.add(pa.Assignees...)
		}
	} else {
		recipients.add(pa.StudentID)
	}
	recipients.remove(comment.AuthorID)

	items := make([]models.AssignmentNotification, 0, recipients.len())
	for _, userID := range recipients.list() {
		items = append(items, models.AssignmentNotification{UserID: userID, PersonalAssignmentID: pa.ID, Kind: kind})
	}
	if err := s.notifications.CreateAssignmentNotifications(ctx, items); err != nil {
		return 0, appErrors.Internal(err, "failed to create comment notifications")
	}
	s.metrics.NotificationsCreated(string(kind), len(items))
	return len(items), nil
}

// ReportSubmitted notifies every project curator.
func (s *NotificationService) ReportSubmitted(ctx context.Context, report *models.ProjectReport) (int, error) {
	curators, err := s.users.ListIDsByRole(ctx, models.RoleProjectCurator)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list project curators")
	}
	recipients := newRecipientSet()
	recipients.add(curators...)
	recipients.remove(report.AuthorID)
	return s.createAtoms(ctx, recipients, models.VerbNewProjectReport, report.ProjectID, &report.ID)
}

// ReportCommented notifies the report author and the project curators, plus
// the subscribed reviewers while the report is under review.
func (s *NotificationService) ReportCommented(ctx context.Context, report *models.ProjectReport, comment *models.ProjectReportComment) (int, error) {
	curators, err := s.users.ListIDsByRole(ctx, models.RoleProjectCurator)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list project curators")
	}
	recipients := newRecipientSet()
	recipients.add(report.AuthorID)
	recipients.add(curators...)
	if report.Status == models.ProjectReportReview {
		reviewers, err := s.projects.ListSubscribedReviewers(ctx, report.ProjectID)
		if err != nil {
			return 0, appErrors.Internal(err, "failed to list project reviewers")
		}
		recipients.add(reviewers...)
	}
	recipients.remove(comment.AuthorID)
	return s.createAtoms(ctx, recipients, models.VerbNewReportComment, report.ProjectID, &report.ID)
}

// ProjectReminders creates the report period reminders due on the day of
// now: three days before the period opens and one day before it closes.
// Each reminder is stored once per student and project.
func (s *NotificationService) ProjectReminders(ctx context.Context, now time.Time) (int, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	starting, err := s.projects.ListReportStartingBetween(ctx, day.AddDate(0, 0, 3), day.AddDate(0, 0, 4))
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list projects opening soon")
	}
	ending, err := s.projects.ListReportEndingBetween(ctx, day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list projects closing soon")
	}

	total := 0
	for _, batch := range []struct {
		verb     models.AtomVerb
		projects []models.Project
	}{
		{models.VerbProjectPeriodStarts, starting},
		{models.VerbProjectDeadlineSoon, ending},
	} {
		for _, project := range batch.projects {
			students, err := s.projects.ListEligibleStudents(ctx, project.ID)
			if err != nil {
				return total, appErrors.Internal(err, "failed to list project students")
			}
			recipients := newRecipientSet()
			recipients.add(students...)
			n, err := s.createAtoms(ctx, recipients, batch.verb, project.ID, nil)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

func (s *NotificationService) createAtoms(ctx context.Context, recipients *recipientSet, verb models.AtomVerb, projectID string, reportID *string) (int, error) {
	if recipients.len() == 0 {
		return 0, nil
	}
	project := projectID
	items := make([]models.AtomNotification, 0, recipients.len())
	for _, userID := range recipients.list() {
		items = append(items, models.AtomNotification{RecipientID: userID, Verb: verb, ProjectID: &project, ReportID: reportID})
	}
	created, err := s.atoms.Create(ctx, items)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to create project notifications")
	}
	s.metrics.NotificationsCreated(string(verb), created)
	return created, nil
}

// SurveyPublished queues one email per active student of the course.
// Callers invoke it only on the draft to published transition.
func (s *NotificationService) SurveyPublished(ctx context.Context, course *models.Course, survey *models.Survey) (int, error) {
	students, err := s.courses.ListActiveStudentIDs(ctx, course.ID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list course students")
	}
	recipients, err := s.users.ListRecipients(ctx, students)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to load recipients")
	}
	emails := make([]models.QueuedEmail, 0, len(recipients))
	for _, r := range recipients {
		email, err := newQueuedEmail(r.Email, r.FullName, models.TemplateSurveyPublished, map[string]interface{}{
			"student_name": r.FullName,
			"course_name":  course.Name,
			"survey_title": survey.Title,
		})
		if err != nil {
			return 0, appErrors.Internal(err, "failed to build survey email")
		}
		emails = append(emails, email)
	}
	if err := s.mail.Enqueue(ctx, emails); err != nil {
		return 0, appErrors.Internal(err, "failed to queue survey emails")
	}
	s.metrics.NotificationsCreated(models.TemplateSurveyPublished, len(emails))
	return len(emails), nil
}

func newQueuedEmail(toEmail, toName, template string, data map[string]interface{}) (models.QueuedEmail, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return models.QueuedEmail{}, fmt.Errorf("marshal email context: %w", err)
	}
	return models.QueuedEmail{ToEmail: toEmail, ToName: toName, Template: template, Context: payload}, nil
}

// recipientSet deduplicates user ids and lists them in a stable order.
type recipientSet struct {
	ids map[string]struct{}
}

func newRecipientSet() *recipientSet {
	return &recipientSet{ids: make(map[string]struct{})}
}

func (r *recipientSet) add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			r.ids[id] = struct{}{}
		}
	}
}

func (r *recipientSet) remove(id string) { delete(r.ids, id) }

func (r *recipientSet) has(id string) bool {
	_, ok := r.ids[id]
	return ok
}

func (r *recipientSet) len() int { return len(r.ids) }

func (r *recipientSet) list() []string {
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

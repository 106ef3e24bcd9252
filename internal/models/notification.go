package models

import (
	"encoding/json"
	"time"
)

// AssignmentNotificationKind tells what happened to a personal assignment.
type AssignmentNotificationKind string

const (
	NotificationNewAssignment   AssignmentNotificationKind = "NEW_ASSIGNMENT"
	NotificationDeadlineChanged AssignmentNotificationKind = "DEADLINE_CHANGED"
	NotificationNewComment      AssignmentNotificationKind = "NEW_COMMENT"
	NotificationSolutionPassed  AssignmentNotificationKind = "SOLUTION_PASSED"
)

// AssignmentNotification is a per-recipient row about a personal assignment.
type AssignmentNotification struct {
	ID                   string                     `db:"id" json:"id"`
	UserID               string                     `db:"user_id" json:"user_id"`
	PersonalAssignmentID string                     `db:"personal_assignment_id" json:"personal_assignment_id"`
	Kind                 AssignmentNotificationKind `db:"kind" json:"kind"`
	IsUnread             bool                       `db:"is_unread" json:"is_unread"`
	IsNotified           bool                       `db:"is_notified" json:"is_notified"`
	CreatedAt            time.Time                  `db:"created_at" json:"created_at"`
}

// CourseNewsNotification is a per-recipient row about course news.
type CourseNewsNotification struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	CourseNewsID string    `db:"course_news_id" json:"course_news_id"`
	IsUnread     bool      `db:"is_unread" json:"is_unread"`
	IsNotified   bool      `db:"is_notified" json:"is_notified"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AtomVerb names the activity of a project notification.
type AtomVerb string

const (
	VerbProjectPeriodStarts AtomVerb = "PROJECT_PERIOD_STARTS"
	VerbProjectDeadlineSoon AtomVerb = "PROJECT_DEADLINE_SOON"
	VerbNewProjectReport    AtomVerb = "NEW_PROJECT_REPORT"
	VerbNewReportComment    AtomVerb = "NEW_REPORT_COMMENT"
)

// AtomNotification is an activity-stream notification used by projects.
type AtomNotification struct {
	ID          string    `db:"id" json:"id"`
	RecipientID string    `db:"recipient_id" json:"recipient_id"`
	Verb        AtomVerb  `db:"verb" json:"verb"`
	ProjectID   *string   `db:"project_id" json:"project_id,omitempty"`
	ReportID    *string   `db:"report_id" json:"report_id,omitempty"`
	Public      bool      `db:"public" json:"public"`
	Emailed     bool      `db:"emailed" json:"emailed"`
	Unread      bool      `db:"unread" json:"unread"`
	Deleted     bool      `db:"deleted" json:"deleted"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// QueuedEmailStatus tracks a generic outbound message.
type QueuedEmailStatus string

const (
	QueuedEmailPending QueuedEmailStatus = "PENDING"
	QueuedEmailSent    QueuedEmailStatus = "SENT"
	QueuedEmailFailed  QueuedEmailStatus = "FAILED"
)

// QueuedEmail is a row of the generic outbound mail queue.
type QueuedEmail struct {
	ID        string            `db:"id" json:"id"`
	ToEmail   string            `db:"to_email" json:"to_email"`
	ToName    string            `db:"to_name" json:"to_name"`
	Template  string            `db:"template" json:"template"`
	Context   json.RawMessage   `db:"context" json:"context"`
	Status    QueuedEmailStatus `db:"status" json:"status"`
	Attempts  int               `db:"attempts" json:"attempts"`
	LastError *string           `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	SentAt    *time.Time        `db:"sent_at" json:"sent_at,omitempty"`
}

// DeliverableKind tags the variant behind a Deliverable.
type DeliverableKind string

const (
	DeliverableAssignmentEvent DeliverableKind = "assignment_event"
	DeliverableCourseNewsEvent DeliverableKind = "course_news_event"
	DeliverableGenericMail     DeliverableKind = "generic_mail"
	DeliverableProjectReminder DeliverableKind = "project_reminder"
)

// Email template selectors, rendered at send time.
const (
	TemplateNewCommentForStudent = "new_comment_for_student"
	TemplateAssignmentPassed     = "assignment_passed"
	TemplateNewCommentForTeacher = "new_comment_for_teacher"
	TemplateNewCourseNews        = "new_course_news"
	TemplateDeadlineChanged      = "deadline_changed"
	TemplateNewAssignment        = "new_assignment"
	TemplateProjectPeriodStarts  = "project_period_starts"
	TemplateProjectDeadlineSoon  = "project_deadline_soon"
	TemplateNewProjectReport     = "new_project_report"
	TemplateNewReportComment     = "new_report_comment"
	TemplateEnrollmentConfirmed  = "enrollment_confirmed"
	TemplateSurveyPublished      = "survey_published"
	TemplateAlumniPromoted       = "alumni_promoted"
)

// Deliverable is a pending notification ready to be emailed. Every storage
// shape is loaded into one of the variants below so dispatch can treat them
// uniformly.
type Deliverable interface {
	DeliverableID() string
	Kind() DeliverableKind
	Recipient() Recipient
	// Template selects the email template rendered at send time.
	Template() string
	// SiteKey is the site whose mail identity must be used. Empty means the
	// fixed provider.
	SiteKey() string
}

// AssignmentEvent is a pending AssignmentNotification joined with the data
// needed to render it.
type AssignmentEvent struct {
	AssignmentNotification
	RecipientEmail     string    `db:"recipient_email"`
	RecipientName      string    `db:"recipient_name"`
	RecipientSuspended bool      `db:"recipient_suspended"`
	RecipientTimeZone  string    `db:"recipient_time_zone"`
	StudentID          string    `db:"student_id"`
	StudentName        string    `db:"student_name"`
	StudentSiteID      string    `db:"student_site_id"`
	AssignmentID       string    `db:"assignment_id"`
	AssignmentTitle    string    `db:"assignment_title"`
	AssignmentText     string    `db:"assignment_text"`
	DeadlineAt         time.Time `db:"deadline_at"`
	CourseID           string    `db:"course_id"`
	CourseName         string    `db:"course_name"`
}

func (e *AssignmentEvent) DeliverableID() string { return e.ID }
func (e *AssignmentEvent) Kind() DeliverableKind { return DeliverableAssignmentEvent }

func (e *AssignmentEvent) Recipient() Recipient {
	return Recipient{UserID: e.UserID, Email: e.RecipientEmail, FullName: e.RecipientName, SiteID: e.StudentSiteID, EmailSuspended: e.RecipientSuspended}
}

func (e *AssignmentEvent) Template() string {
	switch e.AssignmentNotification.Kind {
	case NotificationNewAssignment:
		return TemplateNewAssignment
	case NotificationDeadlineChanged:
		return TemplateDeadlineChanged
	case NotificationSolutionPassed:
		return TemplateAssignmentPassed
	}
	if e.UserID == e.StudentID {
		return TemplateNewCommentForStudent
	}
	return TemplateNewCommentForTeacher
}

// SiteKey routes through the site of the student the assignment belongs to,
// whoever the recipient is.
func (e *AssignmentEvent) SiteKey() string { return e.StudentSiteID }

// CourseNewsEvent is a pending CourseNewsNotification with render data.
type CourseNewsEvent struct {
	CourseNewsNotification
	RecipientEmail     string `db:"recipient_email"`
	RecipientName      string `db:"recipient_name"`
	RecipientSuspended bool   `db:"recipient_suspended"`
	RecipientSiteID    string `db:"recipient_site_id"`
	CourseID           string `db:"course_id"`
	CourseName         string `db:"course_name"`
	NewsTitle          string `db:"news_title"`
	NewsText           string `db:"news_text"`
}

func (e *CourseNewsEvent) DeliverableID() string { return e.ID }
func (e *CourseNewsEvent) Kind() DeliverableKind { return DeliverableCourseNewsEvent }

func (e *CourseNewsEvent) Recipient() Recipient {
	return Recipient{UserID: e.UserID, Email: e.RecipientEmail, FullName: e.RecipientName, SiteID: e.RecipientSiteID, EmailSuspended: e.RecipientSuspended}
}

func (e *CourseNewsEvent) Template() string { return TemplateNewCourseNews }
func (e *CourseNewsEvent) SiteKey() string  { return e.RecipientSiteID }

// GenericMail wraps a queued email. It always goes through the fixed provider.
type GenericMail struct {
	QueuedEmail
	RecipientSuspended bool `db:"recipient_suspended"`
}

func (m *GenericMail) DeliverableID() string { return m.ID }
func (m *GenericMail) Kind() DeliverableKind { return DeliverableGenericMail }

func (m *GenericMail) Recipient() Recipient {
	return Recipient{Email: m.ToEmail, FullName: m.ToName, EmailSuspended: m.RecipientSuspended}
}

func (m *GenericMail) Template() string { return m.QueuedEmail.Template }
func (m *GenericMail) SiteKey() string  { return "" }

// ProjectReminder is a pending Atom notification with render data.
type ProjectReminder struct {
	AtomNotification
	RecipientEmail     string     `db:"recipient_email"`
	RecipientName      string     `db:"recipient_name"`
	RecipientSuspended bool       `db:"recipient_suspended"`
	ProjectName        string     `db:"project_name"`
	ProjectSiteID      string     `db:"project_site_id"`
	ReportStartsAt     *time.Time `db:"report_starts_at"`
	ReportEndsAt       *time.Time `db:"report_ends_at"`
}

func (r *ProjectReminder) DeliverableID() string { return r.ID }
func (r *ProjectReminder) Kind() DeliverableKind { return DeliverableProjectReminder }

func (r *ProjectReminder) Recipient() Recipient {
	return Recipient{UserID: r.RecipientID, Email: r.RecipientEmail, FullName: r.RecipientName, SiteID: r.ProjectSiteID, EmailSuspended: r.RecipientSuspended}
}

// Template returns an empty selector for verbs that have no email.
func (r *ProjectReminder) Template() string {
	switch r.Verb {
	case VerbProjectPeriodStarts:
		return TemplateProjectPeriodStarts
	case VerbProjectDeadlineSoon:
		return TemplateProjectDeadlineSoon
	case VerbNewProjectReport:
		return TemplateNewProjectReport
	case VerbNewReportComment:
		return TemplateNewReportComment
	}
	return ""
}

func (r *ProjectReminder) SiteKey() string { return r.ProjectSiteID }

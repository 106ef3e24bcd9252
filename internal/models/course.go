package models

import "time"

// GroupMode controls how enrolled students are distributed into groups.
type GroupMode string

const (
	GroupModeDepartment GroupMode = "DEPARTMENT"
	GroupModeManual     GroupMode = "MANUAL"
)

// Course is a single course offering.
type Course struct {
	ID                    string    `db:"id" json:"id"`
	Name                  string    `db:"name" json:"name"`
	SiteID                string    `db:"site_id" json:"site_id"`
	GroupMode             GroupMode `db:"group_mode" json:"group_mode"`
	NotificationsDisabled bool      `db:"notifications_disabled" json:"notifications_disabled"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// CourseTeacher is a teacher's membership in a course.
type CourseTeacher struct {
	CourseID      string `db:"course_id" json:"course_id"`
	TeacherID     string `db:"teacher_id" json:"teacher_id"`
	AutoSubscribe bool   `db:"auto_subscribe" json:"auto_subscribe"`
	FullName      string `db:"full_name" json:"full_name,omitempty"`
}

// CourseNews is an announcement posted to a course.
type CourseNews struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Title     string    `db:"title" json:"title"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SurveyStatus tracks survey publication.
type SurveyStatus string

const (
	SurveyStatusDraft     SurveyStatus = "DRAFT"
	SurveyStatusPublished SurveyStatus = "PUBLISHED"
)

// Survey is a course feedback form.
type Survey struct {
	ID          string       `db:"id" json:"id"`
	CourseID    string       `db:"course_id" json:"course_id"`
	Title       string       `db:"title" json:"title"`
	Status      SurveyStatus `db:"status" json:"status"`
	PublishedAt *time.Time   `db:"published_at" json:"published_at,omitempty"`
}

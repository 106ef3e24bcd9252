package models

import "time"

// Project is a student project with a report submission window.
type Project struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	SiteID         string    `db:"site_id" json:"site_id"`
	Canceled       bool      `db:"canceled" json:"canceled"`
	ReportStartsAt time.Time `db:"report_starts_at" json:"report_starts_at"`
	ReportEndsAt   time.Time `db:"report_ends_at" json:"report_ends_at"`
}

// ProjectReportStatus is the review stage of a report.
type ProjectReportStatus string

const (
	ProjectReportSent      ProjectReportStatus = "SENT"
	ProjectReportReview    ProjectReportStatus = "REVIEW"
	ProjectReportRating    ProjectReportStatus = "RATING"
	ProjectReportCompleted ProjectReportStatus = "COMPLETED"
)

// ProjectReport is submitted by a project participant.
type ProjectReport struct {
	ID        string              `db:"id" json:"id"`
	ProjectID string              `db:"project_id" json:"project_id"`
	AuthorID  string              `db:"author_id" json:"author_id"`
	Status    ProjectReportStatus `db:"status" json:"status"`
	Text      string              `db:"text" json:"text"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
}

// ProjectReportComment is a message on a report.
type ProjectReportComment struct {
	ID        string    `db:"id" json:"id"`
	ReportID  string    `db:"report_id" json:"report_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package models

import "time"

// Enrollment links a student to a course and exactly one group of it.
type Enrollment struct {
	ID               string    `db:"id" json:"id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	StudentProfileID string    `db:"student_profile_id" json:"student_profile_id"`
	StudentGroupID   string    `db:"student_group_id" json:"student_group_id"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// EnrollmentDetail adds display fields for listings.
type EnrollmentDetail struct {
	Enrollment
	StudentName      string `db:"student_name" json:"student_name"`
	StudentGroupName string `db:"student_group_name" json:"student_group_name"`
}

package models

import "time"

// StudentGroupType describes where a group came from.
type StudentGroupType string

const (
	StudentGroupTypeDepartment StudentGroupType = "DEPARTMENT"
	StudentGroupTypeManual     StudentGroupType = "MANUAL"
	// StudentGroupTypeSystem is the per-course fallback group ("Others").
	StudentGroupTypeSystem StudentGroupType = "SYSTEM"
)

// DefaultStudentGroupName names the system group of every course.
const DefaultStudentGroupName = "Others"

// StudentGroup partitions the students enrolled in a course.
type StudentGroup struct {
	ID           string           `db:"id" json:"id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	Type         StudentGroupType `db:"type" json:"type"`
	Name         string           `db:"name" json:"name"`
	DepartmentID *string          `db:"department_id" json:"department_id,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	Supervisors  []string         `db:"-" json:"supervisors"`
}

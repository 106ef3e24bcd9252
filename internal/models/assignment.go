package models

import "time"

// ResponsibleMode decides how the initial assignee list of a personal
// assignment is formed.
type ResponsibleMode string

const (
	ResponsibleModeOff          ResponsibleMode = "off"
	ResponsibleModeManual       ResponsibleMode = "manual"
	ResponsibleModeStudentGroup ResponsibleMode = "sg_default"
	// ResponsibleModeStudentGroupCustom uses per-assignment group assignees
	// where set and the group supervisors elsewhere.
	ResponsibleModeStudentGroupCustom ResponsibleMode = "sg_custom"
)

// Assignment is a homework task of a course.
type Assignment struct {
	ID              string          `db:"id" json:"id"`
	CourseID        string          `db:"course_id" json:"course_id"`
	Title           string          `db:"title" json:"title"`
	Text            string          `db:"text" json:"text"`
	MaxScore        int             `db:"max_score" json:"max_score"`
	DeadlineAt      time.Time       `db:"deadline_at" json:"deadline_at"`
	ResponsibleMode ResponsibleMode `db:"responsible_mode" json:"responsible_mode"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	// RestrictedTo lists the student groups the assignment is visible to.
	// Empty means every group of the course.
	RestrictedTo []string `db:"-" json:"restricted_to"`

	// GroupAssignees overrides the supervisors of a group for this
	// assignment. Only used in sg_custom mode.
	GroupAssignees map[string][]string `db:"-" json:"group_assignees,omitempty"`
}

// AvailableTo reports whether members of groupID receive this assignment.
func (a *Assignment) AvailableTo(groupID string) bool {
	if len(a.RestrictedTo) == 0 {
		return true
	}
	for _, id := range a.RestrictedTo {
		if id == groupID {
			return true
		}
	}
	return false
}

// PersonalAssignmentStatus is the grading state of a personal assignment.
type PersonalAssignmentStatus string

const (
	PersonalAssignmentNotSubmitted PersonalAssignmentStatus = "NOT_SUBMITTED"
	PersonalAssignmentOnChecking   PersonalAssignmentStatus = "ON_CHECKING"
	PersonalAssignmentNeedFixes    PersonalAssignmentStatus = "NEED_FIXES"
	PersonalAssignmentCompleted    PersonalAssignmentStatus = "COMPLETED"
)

// PersonalAssignment is an assignment instance scoped to one student.
type PersonalAssignment struct {
	ID           string                   `db:"id" json:"id"`
	AssignmentID string                   `db:"assignment_id" json:"assignment_id"`
	StudentID    string                   `db:"student_id" json:"student_id"`
	ReviewerID   *string                  `db:"reviewer_id" json:"reviewer_id,omitempty"`
	Score        *float64                 `db:"score" json:"score,omitempty"`
	Status       PersonalAssignmentStatus `db:"status" json:"status"`
	CreatedAt    time.Time                `db:"created_at" json:"created_at"`
	Assignees    []string                 `db:"-" json:"assignees"`
}

// CommentKind separates plain comments from solution submissions.
type CommentKind string

const (
	CommentKindComment  CommentKind = "COMMENT"
	CommentKindSolution CommentKind = "SOLUTION"
)

// AssignmentComment is a message on a personal assignment thread.
type AssignmentComment struct {
	ID                   string      `db:"id" json:"id"`
	PersonalAssignmentID string      `db:"personal_assignment_id" json:"personal_assignment_id"`
	AuthorID             string      `db:"author_id" json:"author_id"`
	Kind                 CommentKind `db:"kind" json:"kind"`
	Text                 string      `db:"text" json:"text"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
}

// GradebookRow is a flattened score cell used by exports.
type GradebookRow struct {
	StudentID       string                   `db:"student_id"`
	StudentName     string                   `db:"student_name"`
	AssignmentID    string                   `db:"assignment_id"`
	AssignmentTitle string                   `db:"assignment_title"`
	MaxScore        int                      `db:"max_score"`
	Score           *float64                 `db:"score"`
	Status          PersonalAssignmentStatus `db:"status"`
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

func TestCreateAssignmentSnapshotsAutoSubscribedTeachers(t *testing.T) {
	svc := enrolledCourse(t)
	ctx := context.Background()

	assignment, err := svc.assignments.Create(ctx, "c1", "dan", CreateAssignmentRequest{
		Title:           "Graphs",
		MaxScore:        5,
		DeadlineAt:      time.Now().Add(time.Hour),
		ResponsibleMode: models.ResponsibleModeManual,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, svc.db.notify[assignment.ID])
	assert.ElementsMatch(t, []string{"alice", "bob"}, svc.db.personalOf(assignment.ID, "s").Assignees)

	// Subscribing later does not add dan to existing assignments.
	svc.db.teachers["c1"][2].AutoSubscribe = true
	visible, err := svc.assignments.ListForTeacher(ctx, "c1", "dan")
	require.NoError(t, err)
	assert.Empty(t, visible)

	visible, err = svc.assignments.ListForTeacher(ctx, "c1", "alice")
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, assignment.ID, visible[0].ID)
}

func TestCreateAssignmentOffModeHasNoAssignees(t *testing.T) {
	svc := enrolledCourse(t)

	assignment, err := svc.assignments.Create(context.Background(), "c1", "alice", CreateAssignmentRequest{
		Title:           "Graphs",
		MaxScore:        5,
		DeadlineAt:      time.Now().Add(time.Hour),
		ResponsibleMode: models.ResponsibleModeOff,
	})
	require.NoError(t, err)
	assert.Empty(t, svc.db.personalOf(assignment.ID, "s").Assignees)
}

func TestCreateAssignmentCustomGroupAssignees(t *testing.T) {
	svc := enrolledCourse(t)
	ctx := context.Background()
	for id, supervisors := range map[string][]string{"g-math": {"alice"}, "g-cs": {"bob"}} {
		g := svc.db.groups[id]
		g.Supervisors = supervisors
		svc.db.groups[id] = g
	}

	assignment, err := svc.assignments.Create(ctx, "c1", "alice", CreateAssignmentRequest{
		Title:           "Graphs",
		MaxScore:        5,
		DeadlineAt:      time.Now().Add(time.Hour),
		ResponsibleMode: models.ResponsibleModeStudentGroupCustom,
		GroupAssignees:  map[string][]string{"g-math": {"dan"}},
	})
	require.NoError(t, err)
	// The override replaces the Math supervisors; CS keeps its own.
	assert.Equal(t, []string{"dan"}, svc.db.personalOf(assignment.ID, "s").Assignees)
	assert.Equal(t, []string{"bob"}, svc.db.personalOf(assignment.ID, "u").Assignees)

	svc.db.addStudent("v", "Vic", strPtr("math"))
	_, err = svc.enrollments.Enroll(ctx, "c1", "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"dan"}, svc.db.personalOf(assignment.ID, "v").Assignees)
}

func TestCreateAssignmentGroupAssigneeRejections(t *testing.T) {
	svc := enrolledCourse(t)
	ctx := context.Background()
	base := CreateAssignmentRequest{Title: "Graphs", MaxScore: 5, DeadlineAt: time.Now().Add(time.Hour)}

	req := base
	req.GroupAssignees = map[string][]string{"g-math": {"dan"}}
	_, err := svc.assignments.Create(ctx, "c1", "alice", req)
	assert.ErrorIs(t, err, appErrors.ErrValidation, "overrides need sg_custom")

	req.ResponsibleMode = models.ResponsibleModeStudentGroupCustom
	req.GroupAssignees = map[string][]string{"g-elsewhere": {"dan"}}
	_, err = svc.assignments.Create(ctx, "c1", "alice", req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req.GroupAssignees = map[string][]string{"g-math": {"mallory"}}
	_, err = svc.assignments.Create(ctx, "c1", "alice", req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	req.GroupAssignees = map[string][]string{"g-math": {}}
	_, err = svc.assignments.Create(ctx, "c1", "alice", req)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	balanced := base
	balanced.ResponsibleMode = "sg_balance"
	_, err = svc.assignments.Create(ctx, "c1", "alice", balanced)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	assert.Empty(t, svc.db.assignments)
}

func TestCreateAssignmentRejections(t *testing.T) {
	svc := enrolledCourse(t)
	ctx := context.Background()
	valid := CreateAssignmentRequest{Title: "Graphs", MaxScore: 5, DeadlineAt: time.Now().Add(time.Hour)}

	_, err := svc.assignments.Create(ctx, "c1", "mallory", valid)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.assignments.Create(ctx, "missing", "alice", valid)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	invalid := valid
	invalid.ResponsibleMode = "everyone"
	_, err = svc.assignments.Create(ctx, "c1", "alice", invalid)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	foreign := valid
	foreign.RestrictedTo = []string{"g-elsewhere"}
	_, err = svc.assignments.Create(ctx, "c1", "alice", foreign)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, svc.db.assignments)
}

func TestUpdateGrade(t *testing.T) {
	svc := enrolledCourse(t)
	ctx := context.Background()
	assignment, err := svc.assignments.Create(ctx, "c1", "alice", CreateAssignmentRequest{Title: "Graphs", MaxScore: 5, DeadlineAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	score := 4.5
	pa, err := svc.assignments.UpdateGrade(ctx, "c1", assignment.ID, "s", "bob", UpdateGradeRequest{Score: &score, Status: models.PersonalAssignmentCompleted})
	require.NoError(t, err)
	assert.Equal(t, 4.5, *pa.Score)
	assert.Equal(t, models.PersonalAssignmentCompleted, svc.db.personalOf(assignment.ID, "s").Status)

	tooHigh := 6.0
	_, err = svc.assignments.UpdateGrade(ctx, "c1", assignment.ID, "s", "bob", UpdateGradeRequest{Score: &tooHigh, Status: models.PersonalAssignmentCompleted})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	negative := -1.0
	_, err = svc.assignments.UpdateGrade(ctx, "c1", assignment.ID, "s", "bob", UpdateGradeRequest{Score: &negative, Status: models.PersonalAssignmentCompleted})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.assignments.UpdateGrade(ctx, "c1", assignment.ID, "s", "bob", UpdateGradeRequest{Score: &score, Status: "GREAT"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.assignments.UpdateGrade(ctx, "c1", assignment.ID, "nobody", "bob", UpdateGradeRequest{Status: models.PersonalAssignmentNeedFixes})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.assignments.UpdateGrade(ctx, "c2", assignment.ID, "s", "bob", UpdateGradeRequest{Status: models.PersonalAssignmentNeedFixes})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

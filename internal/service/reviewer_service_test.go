package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

// reviewerFixture enrolls Sam into the Math group supervised by supervisors
// and creates one assignment in the given mode.
func reviewerFixture(t *testing.T, supervisors ...string) (*testServices, *models.PersonalAssignment) {
	t.Helper()
	db := newMemDB()
	departmentCourse(db)
	db.addUser("carol", "Carol", models.RoleTeacher)
	db.teachers["c1"] = append(db.teachers["c1"], models.CourseTeacher{CourseID: "c1", TeacherID: "carol"})
	g := db.groups["g-math"]
	g.Supervisors = supervisors
	db.groups["g-math"] = g
	db.addStudent("s", "Sam", strPtr("math"))
	svc := newTestServices(db)
	ctx := context.Background()

	_, err := svc.enrollments.Enroll(ctx, "c1", "s")
	require.NoError(t, err)
	assignment, err := svc.assignments.Create(ctx, "c1", "alice", CreateAssignmentRequest{
		Title:           "Heaps",
		MaxScore:        10,
		DeadlineAt:      time.Now().Add(48 * time.Hour),
		ResponsibleMode: models.ResponsibleModeStudentGroup,
	})
	require.NoError(t, err)
	pa := db.personalOf(assignment.ID, "s")
	require.NotNil(t, pa)
	db.assignmentNotes = nil
	return svc, pa
}

func TestSingleAssigneeBecomesReviewerOnFirstActivity(t *testing.T) {
	svc, pa := reviewerFixture(t, "alice")
	ctx := context.Background()
	assert.Nil(t, pa.ReviewerID)

	_, err := svc.assignments.AddComment(ctx, "s", pa.ID, AddCommentRequest{Text: "my solution", Kind: models.CommentKindSolution})
	require.NoError(t, err)

	stored := svc.db.personalOf(pa.AssignmentID, "s")
	require.NotNil(t, stored.ReviewerID)
	assert.Equal(t, "alice", *stored.ReviewerID)

	var kinds []models.AssignmentNotificationKind
	for _, n := range svc.db.assignmentNotes {
		if n.PersonalAssignmentID == pa.ID {
			kinds = append(kinds, n.Kind)
		}
	}
	assert.Equal(t, []models.AssignmentNotificationKind{models.NotificationSolutionPassed}, kinds)
	assert.Equal(t, []string{"alice"}, svc.db.assignmentRecipients(pa.ID))
}

func TestMultipleAssigneesNotifiedUntilClaim(t *testing.T) {
	svc, pa := reviewerFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := svc.assignments.AddComment(ctx, "s", pa.ID, AddCommentRequest{Text: "question"})
	require.NoError(t, err)
	assert.Nil(t, svc.db.personalOf(pa.AssignmentID, "s").ReviewerID)
	assert.Equal(t, []string{"alice", "bob"}, svc.db.assignmentRecipients(pa.ID))

	claimed, err := svc.reviewers.Claim(ctx, pa.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", *claimed.ReviewerID)

	svc.db.assignmentNotes = nil
	_, err = svc.assignments.AddComment(ctx, "s", pa.ID, AddCommentRequest{Text: "another question"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, svc.db.assignmentRecipients(pa.ID))
}

func TestReviewerNeverChangesOnceSet(t *testing.T) {
	svc, pa := reviewerFixture(t, "alice", "bob")
	ctx := context.Background()

	_, err := svc.reviewers.Claim(ctx, pa.ID, "bob")
	require.NoError(t, err)

	_, err = svc.reviewers.Claim(ctx, pa.ID, "alice")
	assert.ErrorIs(t, err, appErrors.ErrReviewerAlreadySet)

	again, err := svc.reviewers.Claim(ctx, pa.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", *again.ReviewerID)

	_, err = svc.assignments.AddComment(ctx, "s", pa.ID, AddCommentRequest{Text: "done", Kind: models.CommentKindSolution})
	require.NoError(t, err)
	assert.Equal(t, "bob", *svc.db.personalOf(pa.AssignmentID, "s").ReviewerID)
}

func TestClaimRequiresCourseTeacher(t *testing.T) {
	svc, pa := reviewerFixture(t, "alice", "bob")

	_, err := svc.reviewers.Claim(context.Background(), pa.ID, "mallory")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.reviewers.Claim(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestConcurrentClaimsHaveSingleWinner(t *testing.T) {
	svc, pa := reviewerFixture(t, "alice", "bob")
	teachers := []string{"alice", "bob", "carol", "alice", "bob", "carol"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners = map[string]bool{}
	)
	for _, teacher := range teachers {
		wg.Add(1)
		go func(teacher string) {
			defer wg.Done()
			got, err := svc.reviewers.Claim(context.Background(), pa.ID, teacher)
			if err != nil {
				assert.ErrorIs(t, err, appErrors.ErrReviewerAlreadySet)
				return
			}
			mu.Lock()
			winners[*got.ReviewerID] = true
			mu.Unlock()
		}(teacher)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	stored := svc.db.personalOf(pa.AssignmentID, "s")
	for winner := range winners {
		assert.Equal(t, winner, *stored.ReviewerID)
	}
}

func TestOnActivityLosingRaceReloads(t *testing.T) {
	svc, pa := reviewerFixture(t, "alice")
	ctx := context.Background()

	_, err := svc.reviewers.Claim(ctx, pa.ID, "carol")
	require.NoError(t, err)

	// pa is the stale copy read before carol claimed it.
	got, err := svc.reviewers.OnActivity(ctx, pa)
	require.NoError(t, err)
	assert.Equal(t, "carol", *got.ReviewerID)
}

func TestOnActivityWithoutAssigneesKeepsReviewerEmpty(t *testing.T) {
	svc, pa := reviewerFixture(t)

	got, err := svc.reviewers.OnActivity(context.Background(), pa)
	require.NoError(t, err)
	assert.Nil(t, got.ReviewerID)
}

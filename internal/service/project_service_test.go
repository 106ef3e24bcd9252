package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type mockProjectRepo struct {
	projects     map[string]models.Project
	participants map[string]bool
	reports      map[string]models.ProjectReport
	comments     []models.ProjectReportComment
}

func (m *mockProjectRepo) FindByID(ctx context.Context, id string) (*models.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *mockProjectRepo) IsParticipant(ctx context.Context, projectID, studentID string) (bool, error) {
	return m.participants[projectID+"/"+studentID], nil
}

func (m *mockProjectRepo) FindReport(ctx context.Context, id string) (*models.ProjectReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *mockProjectRepo) CreateReport(ctx context.Context, report *models.ProjectReport) error {
	report.ID = "r-new"
	m.reports[report.ID] = *report
	return nil
}

func (m *mockProjectRepo) CreateReportComment(ctx context.Context, comment *models.ProjectReportComment) error {
	comment.ID = "rc-new"
	m.comments = append(m.comments, *comment)
	return nil
}

type recordingProjectNotifier struct {
	submitted []string
	commented []string
}

func (n *recordingProjectNotifier) ReportSubmitted(ctx context.Context, report *models.ProjectReport) (int, error) {
	n.submitted = append(n.submitted, report.ID)
	return 1, nil
}

func (n *recordingProjectNotifier) ReportCommented(ctx context.Context, report *models.ProjectReport, comment *models.ProjectReportComment) (int, error) {
	n.commented = append(n.commented, comment.ID)
	return 1, nil
}

func newProjectFixture() (*ProjectService, *mockProjectRepo, *recordingProjectNotifier) {
	repo := &mockProjectRepo{
		projects: map[string]models.Project{
			"p1": {ID: "p1", Name: "Compiler"},
			"p2": {ID: "p2", Name: "Dropped", Canceled: true},
		},
		participants: map[string]bool{"p1/s1": true, "p2/s1": true},
		reports:      map[string]models.ProjectReport{"r1": {ID: "r1", ProjectID: "p1", AuthorID: "s1"}},
	}
	notifier := &recordingProjectNotifier{}
	return NewProjectService(repo, notifier, nil, nil), repo, notifier
}

func TestSubmitReportFansOut(t *testing.T) {
	svc, repo, notifier := newProjectFixture()

	report, err := svc.SubmitReport(context.Background(), "p1", "s1", ProjectReportRequest{Text: "week 1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", report.AuthorID)
	assert.Contains(t, repo.reports, "r-new")
	assert.Equal(t, []string{"r-new"}, notifier.submitted)
}

func TestSubmitReportRejections(t *testing.T) {
	svc, _, notifier := newProjectFixture()
	ctx := context.Background()

	_, err := svc.SubmitReport(ctx, "p1", "s1", ProjectReportRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.SubmitReport(ctx, "missing", "s1", ProjectReportRequest{Text: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.SubmitReport(ctx, "p2", "s1", ProjectReportRequest{Text: "x"})
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = svc.SubmitReport(ctx, "p1", "s2", ProjectReportRequest{Text: "x"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	assert.Empty(t, notifier.submitted)
}

func TestCommentReport(t *testing.T) {
	svc, repo, notifier := newProjectFixture()
	ctx := context.Background()

	comment, err := svc.CommentReport(ctx, "r1", "rev1", ProjectReportRequest{Text: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, "r1", comment.ReportID)
	assert.Len(t, repo.comments, 1)
	assert.Equal(t, []string{"rc-new"}, notifier.commented)

	_, err = svc.CommentReport(ctx, "missing", "rev1", ProjectReportRequest{Text: "x"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

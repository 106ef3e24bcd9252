package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type studentGroupServiceMock struct {
	calls []string
	err   error
}

func (m *studentGroupServiceMock) SafeTargets(ctx context.Context, groupID, teacherID string) ([]models.StudentGroup, error) {
	m.calls = append(m.calls, "targets:"+groupID+":"+teacherID)
	if m.err != nil {
		return nil, m.err
	}
	return []models.StudentGroup{{ID: "g-b"}}, nil
}

func (m *studentGroupServiceMock) MoveStudents(ctx context.Context, groupID, teacherID string, req service.TransferStudentsRequest) error {
	m.calls = append(m.calls, "move:"+groupID+":"+teacherID+":"+req.TargetGroupID)
	return m.err
}

func (m *studentGroupServiceMock) Update(ctx context.Context, groupID, teacherID string, req service.UpdateStudentGroupRequest) (*models.StudentGroup, error) {
	m.calls = append(m.calls, "update:"+groupID+":"+teacherID)
	if m.err != nil {
		return nil, m.err
	}
	return &models.StudentGroup{ID: groupID, Name: req.Name}, nil
}

func (m *studentGroupServiceMock) AttachDepartment(ctx context.Context, courseID string, req service.AttachDepartmentRequest) (*models.StudentGroup, error) {
	return &models.StudentGroup{ID: "g-new", CourseID: courseID, Name: req.Name}, m.err
}

func TestStudentGroupHandlerPassesCaller(t *testing.T) {
	mockSvc := &studentGroupServiceMock{}
	handler := NewStudentGroupHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/student-groups/g-a/safe-targets/", nil, teacherClaims("alice"))
	c.Params = gin.Params{{Key: "id", Value: "g-a"}}
	handler.SafeTargets(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newJSONContext(http.MethodPost, "/student-groups/g-a/transfer/", service.TransferStudentsRequest{TargetGroupID: "g-b", StudentIDs: []string{"s"}}, teacherClaims("alice"))
	c.Params = gin.Params{{Key: "id", Value: "g-a"}}
	handler.Transfer(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)

	c, w = newJSONContext(http.MethodPut, "/student-groups/g-a/", service.UpdateStudentGroupRequest{Name: "Algebra"}, teacherClaims("alice"))
	c.Params = gin.Params{{Key: "id", Value: "g-a"}}
	handler.Update(c)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"targets:g-a:alice", "move:g-a:alice:g-b", "update:g-a:alice"}, mockSvc.calls)
}

func TestStudentGroupHandlerForbidden(t *testing.T) {
	handler := NewStudentGroupHandler(&studentGroupServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "not a teacher of this course")})

	c, w := newJSONContext(http.MethodPut, "/student-groups/g-a/", service.UpdateStudentGroupRequest{Name: "hijacked"}, teacherClaims("mallory"))
	c.Params = gin.Params{{Key: "id", Value: "g-a"}}
	handler.Update(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestStudentGroupHandlerRequiresUser(t *testing.T) {
	mockSvc := &studentGroupServiceMock{}
	handler := NewStudentGroupHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/student-groups/g-a/safe-targets/", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "g-a"}}
	handler.SafeTargets(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mockSvc.calls)
}

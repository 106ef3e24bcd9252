package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

type studentGroupService interface {
	SafeTargets(ctx context.Context, groupID, teacherID string) ([]models.StudentGroup, error)
	MoveStudents(ctx context.Context, groupID, teacherID string, req service.TransferStudentsRequest) error
	Update(ctx context.Context, groupID, teacherID string, req service.UpdateStudentGroupRequest) (*models.StudentGroup, error)
	AttachDepartment(ctx context.Context, courseID string, req service.AttachDepartmentRequest) (*models.StudentGroup, error)
}

// StudentGroupHandler exposes group maintenance endpoints.
type StudentGroupHandler struct {
	groups studentGroupService
}

// NewStudentGroupHandler constructs StudentGroupHandler.
func NewStudentGroupHandler(groups studentGroupService) *StudentGroupHandler {
	return &StudentGroupHandler{groups: groups}
}

// SafeTargets godoc
// @Summary List groups students can be moved to without losing assignments
// @Tags StudentGroups
// @Produce json
// @Param id path string true "Student group ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /student-groups/{id}/safe-targets/ [get]
func (h *StudentGroupHandler) SafeTargets(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	groups, err := h.groups.SafeTargets(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, groups)
}

// Transfer godoc
// @Summary Move students to another group
// @Tags StudentGroups
// @Accept json
// @Param id path string true "Source group ID"
// @Param payload body service.TransferStudentsRequest true "Transfer payload"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /student-groups/{id}/transfer/ [post]
func (h *StudentGroupHandler) Transfer(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.TransferStudentsRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.groups.MoveStudents(c.Request.Context(), c.Param("id"), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Update godoc
// @Summary Edit a student group
// @Description Only the first supervisor is kept.
// @Tags StudentGroups
// @Accept json
// @Produce json
// @Param id path string true "Student group ID"
// @Param payload body service.UpdateStudentGroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /student-groups/{id}/ [put]
func (h *StudentGroupHandler) Update(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateStudentGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, group)
}

// AttachDepartment godoc
// @Summary Offer a department in a course
// @Tags StudentGroups
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.AttachDepartmentRequest true "Department"
// @Success 201 {object} response.Envelope
// @Router /admin/courses/{id}/departments/ [post]
func (h *StudentGroupHandler) AttachDepartment(c *gin.Context) {
	var req service.AttachDepartmentRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.AttachDepartment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
	Enroll(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	AdminEnroll(ctx context.Context, courseID string, req service.AdminEnrollRequest) (*models.Enrollment, error)
	Leave(ctx context.Context, courseID, studentID string) error
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List course enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments/ [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	enrollments, err := h.enrollments.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Enroll godoc
// @Summary Enroll the current student
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{id}/enrollments/ [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Leave godoc
// @Summary Leave a course
// @Tags Enrollments
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id}/enrollments/ [delete]
func (h *EnrollmentHandler) Leave(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.enrollments.Leave(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AdminEnroll godoc
// @Summary Enroll a student on their behalf
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.AdminEnrollRequest true "Student"
// @Success 201 {object} response.Envelope
// @Router /admin/courses/{id}/enrollments/ [post]
func (h *EnrollmentHandler) AdminEnroll(c *gin.Context) {
	var req service.AdminEnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.enrollments.AdminEnroll(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

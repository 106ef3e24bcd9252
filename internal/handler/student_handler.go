package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

// StudentHandler exposes curator tools for student profiles.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// UpdateStudentNumber godoc
// @Summary Set a student's recorded ID
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student profile ID"
// @Param payload body service.UpdateStudentNumberRequest true "Student number"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/student-id/ [put]
func (h *StudentHandler) UpdateStudentNumber(c *gin.Context) {
	var req service.UpdateStudentNumberRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.students.UpdateStudentNumber(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// ListAlumni godoc
// @Summary List alumni
// @Tags Students
// @Produce json
// @Param site_id query string false "Filter by site"
// @Param year query int false "Filter by graduation year"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /alumni/ [get]
func (h *StudentHandler) ListAlumni(c *gin.Context) {
	filter := models.AlumniFilter{SiteID: c.Query("site_id")}
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.YearOfGraduation = &year
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	alumni, pagination, err := h.students.ListAlumni(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alumni, pagination)
}

// Promote godoc
// @Summary Promote a graduate to alumni
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.PromoteAlumniRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /alumni/promote/ [post]
func (h *StudentHandler) Promote(c *gin.Context) {
	var req service.PromoteAlumniRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.students.Promote(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

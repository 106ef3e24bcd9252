package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, claims *models.TokenClaims) ([]models.Course, error)
	PostNews(ctx context.Context, courseID, authorID string, req service.CreateCourseNewsRequest) (*models.CourseNews, error)
	PublishSurvey(ctx context.Context, surveyID, teacherID string) (*models.Survey, error)
}

// CourseHandler exposes course listings, news and surveys.
type CourseHandler struct {
	courses courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Description Courses taught by the caller. Curators see every course.
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses/ [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	courses, err := h.courses.List(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// PostNews godoc
// @Summary Publish course news
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CreateCourseNewsRequest true "News payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/news/ [post]
func (h *CourseHandler) PostNews(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateCourseNewsRequest
	if !bindJSON(c, &req) {
		return
	}
	news, err := h.courses.PostNews(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, news)
}

// PublishSurvey godoc
// @Summary Publish a course survey
// @Tags Courses
// @Produce json
// @Param id path string true "Survey ID"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/publish/ [post]
func (h *CourseHandler) PublishSurvey(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	survey, err := h.courses.PublishSurvey(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, survey)
}

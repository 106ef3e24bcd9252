package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

// ProjectHandler exposes project report endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
}

// NewProjectHandler constructs ProjectHandler.
func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// SubmitReport godoc
// @Summary Submit a project report
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body service.ProjectReportRequest true "Report"
// @Success 201 {object} response.Envelope
// @Router /projects/{id}/reports/ [post]
func (h *ProjectHandler) SubmitReport(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ProjectReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.projects.SubmitReport(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// CommentReport godoc
// @Summary Comment on a project report
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body service.ProjectReportRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /project-reports/{id}/comments/ [post]
func (h *ProjectHandler) CommentReport(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ProjectReportRequest
	if !bindJSON(c, &req) {
		return
	}
	comment, err := h.projects.CommentReport(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

type gradebookExporter interface {
	Gradebook(ctx context.Context, courseID, teacherID string, format service.ExportFormat) (*service.ExportResult, error)
}

// ExportHandler streams rendered documents.
type ExportHandler struct {
	exports gradebookExporter
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports gradebookExporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Gradebook godoc
// @Summary Export a course gradebook
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/gradebook/export [get]
func (h *ExportHandler) Gradebook(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	result, err := h.exports.Gradebook(c.Request.Context(), c.Param("id"), claims.UserID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

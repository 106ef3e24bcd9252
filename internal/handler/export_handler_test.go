package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/service"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
)

type gradebookExporterMock struct {
	format service.ExportFormat
}

func (m *gradebookExporterMock) Gradebook(ctx context.Context, courseID, teacherID string, format service.ExportFormat) (*service.ExportResult, error) {
	m.format = format
	if format != service.ExportFormatCSV && format != service.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.ExportResult{Filename: "algorithms_gradebook.csv", ContentType: "text/csv; charset=utf-8", Body: []byte("Student\nSam\n")}, nil
}

func TestExportHandlerStreamsDocument(t *testing.T) {
	mockSvc := &gradebookExporterMock{}
	handler := NewExportHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/courses/c1/gradebook/export", nil, teacherClaims("alice"))
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Gradebook(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatCSV, mockSvc.format)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="algorithms_gradebook.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student\nSam\n", w.Body.String())
}

func TestExportHandlerRejectsFormat(t *testing.T) {
	mockSvc := &gradebookExporterMock{}
	handler := NewExportHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/courses/c1/gradebook/export?format=XLSX", nil, teacherClaims("alice"))
	handler.Gradebook(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ExportFormat("xlsx"), mockSvc.format)
}

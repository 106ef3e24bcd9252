package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/internal/models"
	appErrors "github.com/noah-isme/lms-api/pkg/errors"
	"github.com/noah-isme/lms-api/pkg/export"
)

// ExportFormat selects the rendered gradebook document.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type gradebookRepository interface {
	Gradebook(ctx context.Context, courseID string) ([]models.GradebookRow, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders course gradebooks.
type ExportService struct {
	grades    gradebookRepository
	courses   assignmentCourseReader
	renderers map[ExportFormat]datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(grades gradebookRepository, courses assignmentCourseReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		grades:  grades,
		courses: courses,
		renderers: map[ExportFormat]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Gradebook renders one row per student and one column per assignment of
// the course. Only course teachers may export.
func (s *ExportService) Gradebook(ctx context.Context, courseID, teacherID string, format ExportFormat) (*ExportResult, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	allowed, err := isCourseTeacher(ctx, s.courses, course.ID, teacherID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a teacher of this course")
	}

	rows, err := s.grades.Gradebook(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load gradebook")
	}
	body, err := renderer.Render(buildGradebookDataset(course.Name, rows))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render gradebook")
	}
	s.logger.Info("gradebook exported", zap.String("course_id", course.ID), zap.String("format", string(format)), zap.Int("rows", len(rows)))
	return &ExportResult{
		Filename:    fmt.Sprintf("%s_gradebook_%s.%s", sanitizeFilename(course.Name), s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// buildGradebookDataset pivots score cells into a student x assignment
// table. Rows arrive ordered by student then deadline.
func buildGradebookDataset(courseName string, rows []models.GradebookRow) export.Dataset {
	var (
		columns  []string
		colIndex = map[string]int{}
		students []string
		names    = map[string]string{}
		cells    = map[string]map[string]string{}
	)
	for _, row := range rows {
		if _, ok := colIndex[row.AssignmentID]; !ok {
			colIndex[row.AssignmentID] = len(columns)
			columns = append(columns, fmt.Sprintf("%s (/%d)", row.AssignmentTitle, row.MaxScore))
		}
		if _, ok := cells[row.StudentID]; !ok {
			cells[row.StudentID] = map[string]string{}
			names[row.StudentID] = row.StudentName
			students = append(students, row.StudentID)
		}
		cells[row.StudentID][row.AssignmentID] = formatScore(row)
	}

	ids := make([]string, len(columns))
	for id, idx := range colIndex {
		ids[idx] = id
	}
	data := export.Dataset{
		Title:   courseName + " gradebook",
		Headers: append([]string{"Student"}, columns...),
	}
	for _, studentID := range students {
		record := make([]string, 0, len(columns)+1)
		record = append(record, names[studentID])
		for _, assignmentID := range ids {
			record = append(record, cells[studentID][assignmentID])
		}
		data.Rows = append(data.Rows, record)
	}
	return data
}

func formatScore(row models.GradebookRow) string {
	if row.Score == nil {
		return strings.ReplaceAll(strings.ToLower(string(row.Status)), "_", " ")
	}
	return strconv.FormatFloat(*row.Score, 'f', -1, 64)
}

func sanitizeFilename(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, raw)
	if cleaned == "" {
		return "course"
	}
	return strings.ToLower(cleaned)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/models"
	"github.com/noah-isme/lms-api/internal/service"
	"github.com/noah-isme/lms-api/pkg/response"
)

type assignmentService interface {
	ListForTeacher(ctx context.Context, courseID, teacherID string) ([]models.Assignment, error)
	Create(ctx context.Context, courseID, teacherID string, req service.CreateAssignmentRequest) (*models.Assignment, error)
	ChangeDeadline(ctx context.Context, assignmentID, teacherID string, req service.ChangeDeadlineRequest) (*models.Assignment, error)
	AddComment(ctx context.Context, authorID, personalID string, req service.AddCommentRequest) (*models.AssignmentComment, error)
	UpdateGrade(ctx context.Context, courseID, assignmentID, studentID, teacherID string, req service.UpdateGradeRequest) (*models.PersonalAssignment, error)
}

type reviewerClaimer interface {
	Claim(ctx context.Context, personalID, teacherID string) (*models.PersonalAssignment, error)
}

// AssignmentHandler exposes assignments and personal assignment activity.
type AssignmentHandler struct {
	assignments assignmentService
	reviewers   reviewerClaimer
}

// NewAssignmentHandler constructs AssignmentHandler.
func NewAssignmentHandler(assignments assignmentService, reviewers reviewerClaimer) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, reviewers: reviewers}
}

// List godoc
// @Summary List course assignments
// @Description Assignments whose notification settings include the caller.
// @Tags Assignments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/assignments/ [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	assignments, err := h.assignments.ListForTeacher(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Create godoc
// @Summary Create an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CreateAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/assignments/ [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateAssignmentRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.assignments.Create(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// ChangeDeadline godoc
// @Summary Change an assignment deadline
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.ChangeDeadlineRequest true "New deadline"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/deadline/ [patch]
func (h *AssignmentHandler) ChangeDeadline(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ChangeDeadlineRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.assignments.ChangeDeadline(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, assignment)
}

// UpdateGrade godoc
// @Summary Grade a student's assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param aid path string true "Assignment ID"
// @Param sid path string true "Student ID"
// @Param payload body service.UpdateGradeRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/assignments/{aid}/students/{sid}/ [put]
func (h *AssignmentHandler) UpdateGrade(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateGradeRequest
	if !bindJSON(c, &req) {
		return
	}
	pa, err := h.assignments.UpdateGrade(c.Request.Context(), c.Param("id"), c.Param("aid"), c.Param("sid"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pa)
}

// AddComment godoc
// @Summary Comment on or submit a personal assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Personal assignment ID"
// @Param payload body service.AddCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /personal-assignments/{id}/comments/ [post]
func (h *AssignmentHandler) AddComment(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.AddCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	comment, err := h.assignments.AddComment(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// ClaimReviewer godoc
// @Summary Become the reviewer of a personal assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Personal assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /personal-assignments/{id}/reviewer/ [post]
func (h *AssignmentHandler) ClaimReviewer(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	pa, err := h.reviewers.Claim(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pa)
}

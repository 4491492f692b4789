package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// SubmissionHandler serves the student exam-taking endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
	log         zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		log:         log.With().Str("component", "submission_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/student/exams/:exam_id/start
// Creates the submission, or returns the one already in progress.
func (h *SubmissionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// The body is optional for exams without a password.
	var req model.StartExamRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	payload, err := h.submissions.Start(c.Request.Context(), examID, claims.UserID, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// Resume godoc
// POST /api/v1/student/submissions/:id/resume
func (h *SubmissionHandler) Resume(c *gin.Context) {
	claims, submissionID, ok := h.submissionScope(c)
	if !ok {
		return
	}

	payload, err := h.submissions.Resume(c.Request.Context(), submissionID, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// GetQuestion godoc
// GET /api/v1/student/submissions/:id/questions/:order
func (h *SubmissionHandler) GetQuestion(c *gin.Context) {
	claims, submissionID, ok := h.submissionScope(c)
	if !ok {
		return
	}

	order, err := strconv.Atoi(c.Param("order"))
	if err != nil || order < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.submissions.GetQuestion(c.Request.Context(), submissionID, claims.UserID, order)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// SaveAnswer godoc
// PUT /api/v1/student/submissions/:id/answers
// Upserts one answer. Retrying the same content is harmless.
func (h *SubmissionHandler) SaveAnswer(c *gin.Context) {
	claims, submissionID, ok := h.submissionScope(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.submissions.SaveAnswer(c.Request.Context(), submissionID, claims.UserID, &req); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// UpdateRemainingTime godoc
// PUT /api/v1/student/submissions/:id/remaining-time
// Advisory: the server keeps the lower of its own clock and the report.
func (h *SubmissionHandler) UpdateRemainingTime(c *gin.Context) {
	claims, submissionID, ok := h.submissionScope(c)
	if !ok {
		return
	}

	var req model.RemainingTimeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	remaining, err := h.submissions.UpdateRemainingTime(c.Request.Context(), submissionID, claims.UserID, *req.Seconds)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"remaining_seconds": remaining})
}

// Submit godoc
// POST /api/v1/student/submissions/:id/submit
// A second call answers 409 SUBMISSION_ALREADY_FINALIZED.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims, submissionID, ok := h.submissionScope(c)
	if !ok {
		return
	}

	result, err := h.submissions.Submit(c.Request.Context(), submissionID, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

func (h *SubmissionHandler) submissionScope(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	submissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, submissionID, true
}

func (h *SubmissionHandler) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Submission request failed")
	}
	response.Fail(c, status, code)
}

// errorStatus maps service errors to the HTTP status and code the exam taker
// matches on.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusForbidden, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrInvalidExamPassword):
		return http.StatusForbidden, response.ErrInvalidExamPassword
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusConflict, response.ErrNoQuestions
	case errors.Is(err, service.ErrSubmissionNotFound):
		return http.StatusNotFound, response.ErrSubmissionNotFound
	case errors.Is(err, service.ErrNotSubmissionOwner):
		return http.StatusForbidden, response.ErrNotSubmissionOwner
	case errors.Is(err, service.ErrSubmissionFinalized):
		return http.StatusConflict, response.ErrSubmissionAlreadyFinal
	case errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, service.ErrQuestionNotInExam):
		return http.StatusBadRequest, response.ErrQuestionNotInExam
	case errors.Is(err, service.ErrTimeExhausted):
		return http.StatusConflict, response.ErrSubmissionTimeExhausted
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

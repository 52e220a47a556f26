package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/review"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/session"
	"github.com/stemsi/exstem-quiz/internal/validator"
)

// AttemptHandler serves the student attempt endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// caller extracts the student identity and exam id shared by every route.
// It writes the error response itself and returns ok=false on failure.
func (h *AttemptHandler) caller(c *gin.Context) (model.Identity, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return model.Identity{}, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return model.Identity{}, uuid.Nil, false
	}
	return claims.Identity(), examID, true
}

// Open godoc
// GET /api/v1/student/exams/:exam_id/attempt
// Returns the student's position on the exam, restoring a running attempt.
func (h *AttemptHandler) Open(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	op, err := h.attempts.Open(c.Request.Context(), id, examID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, op)
}

// Start godoc
// POST /api/v1/student/exams/:exam_id/attempt/start
// Starts an attempt with the chosen optional subjects.
func (h *AttemptHandler) Start(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	op, err := h.attempts.Start(c.Request.Context(), id, examID, req.OptionalSubjects)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, op)
}

// Answer godoc
// POST /api/v1/student/exams/:exam_id/attempt/answers
// Records one selection. The first answer to a question is final.
func (h *AttemptHandler) Answer(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.Answer(c.Request.Context(), id, examID, req.QuestionID, *req.Option)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// ToggleReview godoc
// POST /api/v1/student/exams/:exam_id/attempt/review
func (h *AttemptHandler) ToggleReview(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.ToggleReview(c.Request.Context(), id, examID, req.QuestionID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Paginate godoc
// POST /api/v1/student/exams/:exam_id/attempt/paginate
// Steps one page with {direction} or jumps to a subject tab with {subject}.
func (h *AttemptHandler) Paginate(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	var req model.PaginateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var (
		page *service.PageResult
		err  error
	)
	if req.Subject != nil {
		page, err = h.attempts.JumpToSubject(c.Request.Context(), id, examID, *req.Subject)
	} else {
		page, err = h.attempts.Paginate(c.Request.Context(), id, examID, session.Direction(req.Direction))
	}
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, page)
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/attempt/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	out, err := h.attempts.Submit(c.Request.Context(), id, examID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// Result godoc
// GET /api/v1/student/exams/:exam_id/result?filter=all|correct|wrong|skipped
func (h *AttemptHandler) Result(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	var q model.ResultQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	filter, _ := review.ParseFilter(q.Filter)

	view, err := h.attempts.Result(c.Request.Context(), id, examID, filter)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Rank godoc
// GET /api/v1/student/exams/:exam_id/rank
func (h *AttemptHandler) Rank(c *gin.Context) {
	id, examID, ok := h.caller(c)
	if !ok {
		return
	}

	rank, err := h.attempts.Rank(c.Request.Context(), id, examID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, rank)
}

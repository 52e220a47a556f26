package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/selection"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/session"
)

// resultPendingRetry is how long a client waits before starting again while
// the previous attempt's result is still queued.
const resultPendingRetry = 2 * time.Second

// attemptErrors maps domain errors to HTTP status and error code.
var attemptErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrUnauthorized, http.StatusForbidden, response.ErrForbidden},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrExamNotStarted, http.StatusForbidden, response.ErrExamNotStarted},
	{service.ErrExamEnded, http.StatusForbidden, response.ErrExamEnded},
	{service.ErrAttemptUsed, http.StatusConflict, response.ErrAttemptUsed},
	{service.ErrSubjectSelectionRequired, http.StatusBadRequest, response.ErrSubjectsRequired},
	{selection.ErrInvalidChoices, http.StatusBadRequest, response.ErrInvalidSubjects},
	{service.ErrNoAttempt, http.StatusNotFound, response.ErrNoAttempt},
	{service.ErrNoResult, http.StatusNotFound, response.ErrNoResult},
	{service.ErrResultPending, http.StatusConflict, response.ErrResultPending},
	{session.ErrNotInProgress, http.StatusConflict, response.ErrNotInProgress},
	{session.ErrAlreadySubmitted, http.StatusConflict, response.ErrAlreadySubmitted},
	{session.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{session.ErrInvalidOption, http.StatusBadRequest, response.ErrInvalidOption},
}

// classify returns the status and code for err. Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, m := range attemptErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failAttempt writes the error response for a service error.
func failAttempt(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Attempt request failed")
	}
	if code == response.ErrResultPending {
		response.RetryLater(c, status, code, resultPendingRetry)
		return
	}
	response.Fail(c, status, code)
}

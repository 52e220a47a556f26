package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/session"
	ws "github.com/stemsi/exstem-quiz/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler drives the countdown of a running attempt over a WebSocket.
// The server pushes a tick every interval, one-time warnings, and the
// result when the deadline submits the attempt. Clients may answer, mark
// for review and submit over the same connection.
type StreamHandler struct {
	attempts *service.AttemptService
	interval time.Duration
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(attempts *service.AttemptService, interval time.Duration, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	if interval <= 0 {
		interval = time.Second
	}
	return &StreamHandler{
		attempts: attempts,
		interval: interval,
		log:      log.With().Str("component", "stream_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
func (h *StreamHandler) ExamStream(c *gin.Context) {
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
	id := claims.Identity()

	// Refuse the upgrade when there is nothing to stream.
	first, err := h.attempts.Tick(c.Request.Context(), id, examID)
	if err != nil {
		failAttempt(c, h.log, err)
		return
	}
	if first.Finished {
		failAttempt(c, h.log, session.ErrAlreadySubmitted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	streamLog := h.log.With().
		Str("student_id", id.StudentID).
		Str("exam_id", examID.String()).
		Logger()
	streamLog.Info().Msg("Student connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &stream{h: h, conn: conn, id: id, examID: examID, log: streamLog}
	if st.writeTick(first) {
		return
	}

	actions := make(chan ws.Request)
	go st.readLoop(ctx, actions)

	var ticks <-chan time.Time
	if !first.Untimed {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ticks:
			res, err := h.attempts.Tick(ctx, id, examID)
			if err != nil {
				st.end(err)
				return
			}
			if st.writeTick(res) {
				return
			}

		case req, ok := <-actions:
			if !ok {
				streamLog.Debug().Msg("Connection closed")
				return
			}
			if st.handle(ctx, req) {
				return
			}
		}
	}
}

// stream is the per-connection state. Only the handler goroutine writes.
type stream struct {
	h      *StreamHandler
	conn   *websocket.Conn
	id     model.Identity
	examID uuid.UUID
	log    zerolog.Logger
}

func (st *stream) readLoop(ctx context.Context, out chan<- ws.Request) {
	defer close(out)
	for {
		var req ws.Request
		if err := ws.ReadJSON(st.conn, &req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				st.log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		select {
		case out <- req:
		case <-ctx.Done():
			return
		}
	}
}

// writeTick sends the countdown and any warnings. It returns true once the
// attempt is over and the stream has been closed.
func (st *stream) writeTick(res session.TickResult) bool {
	if res.Finished {
		st.end(session.ErrAlreadySubmitted)
		return true
	}
	_ = ws.WriteTyped(st.conn, ws.TickResponse{
		Event:            ws.EventTick,
		Untimed:          res.Untimed,
		RemainingSeconds: int64(res.Remaining / time.Second),
	})
	for _, w := range res.Warnings {
		_ = ws.WriteTyped(st.conn, ws.WarningResponse{Event: ws.EventWarning, Warning: w})
	}

	switch {
	case res.Submit != nil:
		st.submitted(res.Submit)
		return true
	case res.Expired:
		st.end(session.ErrAlreadySubmitted)
		return true
	}
	return false
}

// handle runs one client action. It returns true when the stream is over.
func (st *stream) handle(ctx context.Context, req ws.Request) bool {
	switch req.Action {
	case ws.ActionPing:
		_ = ws.WriteTyped(st.conn, ws.PongResponse{Event: ws.EventPong})

	case ws.ActionAnswer:
		if req.QuestionID == "" || req.Option == nil {
			_ = ws.WriteError(st.conn, string(response.ErrInvalidPayload), "question_id and option are required")
			return false
		}
		res, err := st.h.attempts.Answer(ctx, st.id, st.examID, req.QuestionID, *req.Option)
		if err != nil {
			return st.fail(err)
		}
		_ = ws.WriteTyped(st.conn, ws.AnsweredResponse{
			Event:      ws.EventAnswered,
			QuestionID: req.QuestionID,
			Accepted:   res.Accepted,
			Notices:    res.Notices,
		})

	case ws.ActionReview:
		if req.QuestionID == "" {
			_ = ws.WriteError(st.conn, string(response.ErrInvalidPayload), "question_id is required")
			return false
		}
		res, err := st.h.attempts.ToggleReview(ctx, st.id, st.examID, req.QuestionID)
		if err != nil {
			return st.fail(err)
		}
		_ = ws.WriteTyped(st.conn, ws.ReviewResponse{
			Event:      ws.EventReview,
			QuestionID: res.QuestionID,
			Marked:     res.Marked,
			Notices:    res.Notices,
		})

	case ws.ActionSubmit:
		out, err := st.h.attempts.Submit(ctx, st.id, st.examID)
		if err != nil {
			return st.fail(err)
		}
		st.submitted(out)
		return true

	default:
		st.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		_ = ws.WriteError(st.conn, string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
	}
	return false
}

// fail reports an action error. Errors meaning the attempt is over end the
// stream; anything else is sent back and the stream continues.
func (st *stream) fail(err error) bool {
	if errors.Is(err, session.ErrAlreadySubmitted) || errors.Is(err, service.ErrNoAttempt) {
		st.end(err)
		return true
	}
	_, code := classify(err)
	_ = ws.WriteError(st.conn, string(code), response.GetMessage(code))
	return false
}

func (st *stream) submitted(out *session.SubmitOutcome) {
	_ = ws.WriteTyped(st.conn, ws.SubmittedResponse{
		Event:   ws.EventSubmitted,
		Trigger: out.Trigger,
		Result:  out.Result,
		Notices: out.Notices,
	})
	st.log.Info().Str("trigger", string(out.Trigger)).Float64("score", out.Result.Score).Msg("Attempt submitted")
	ws.Close(st.conn, "submitted")
}

func (st *stream) end(err error) {
	_, code := classify(err)
	_ = ws.WriteTyped(st.conn, ws.ClosedResponse{Event: ws.EventClosed, Reason: string(code)})
	ws.Close(st.conn, string(code))
}

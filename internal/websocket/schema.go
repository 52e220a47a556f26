package websocket

import (
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionReview Action = "review"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is every client message. Fields are read per action.
type Request struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Option     *int   `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick      Event = "tick"
	EventWarning   Event = "warning"
	EventAnswered  Event = "answered"
	EventReview    Event = "review"
	EventSubmitted Event = "submitted"
	EventClosed    Event = "closed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

type TickResponse struct {
	Event            Event `json:"event"`
	Untimed          bool  `json:"untimed"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type WarningResponse struct {
	Event   Event           `json:"event"`
	Warning session.Warning `json:"warning"`
}

type AnsweredResponse struct {
	Event      Event            `json:"event"`
	QuestionID string           `json:"question_id"`
	Accepted   bool             `json:"accepted"`
	Notices    []session.Notice `json:"notices,omitempty"`
}

type ReviewResponse struct {
	Event      Event            `json:"event"`
	QuestionID string           `json:"question_id"`
	Marked     bool             `json:"marked"`
	Notices    []session.Notice `json:"notices,omitempty"`
}

type SubmittedResponse struct {
	Event   Event            `json:"event"`
	Trigger session.Trigger  `json:"trigger"`
	Result  model.Result     `json:"result"`
	Notices []session.Notice `json:"notices,omitempty"`
}

// ClosedResponse is the last message before the server ends the stream.
type ClosedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// AttemptState enumerates the lifecycle states of one attempt.
type AttemptState string

const (
	AttemptUnauthorized             AttemptState = "UNAUTHORIZED"
	AttemptAwaitingSubjectSelection AttemptState = "AWAITING_SUBJECT_SELECTION"
	AttemptNotStarted               AttemptState = "NOT_STARTED"
	AttemptInProgress               AttemptState = "IN_PROGRESS"
	AttemptSubmitting               AttemptState = "SUBMITTING"
	AttemptSubmitted                AttemptState = "SUBMITTED"
)

// AttemptStatus is the durable status column of an attempt row.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Identity is the caller as seen by the attempt engine.
type Identity struct {
	StudentID string `json:"student_id"`
	Guest     bool   `json:"guest"`
}

// Cursor is the current subject tab and page within it.
type Cursor struct {
	Subject int `json:"subject"`
	Page    int `json:"page"`
}

// WarningFlags records which countdown warnings were already shown.
type WarningFlags struct {
	TenPercent bool `json:"ten_percent"`
	LastMinute bool `json:"last_minute"`
}

// AttemptShape is the rarely changing half of a resumable attempt snapshot.
type AttemptShape struct {
	AttemptID        uuid.UUID    `json:"attempt_id"`
	ExamID           uuid.UUID    `json:"exam_id"`
	StudentID        string       `json:"student_id"`
	State            AttemptState `json:"state"`
	SelectedSubjects []string     `json:"selected_subjects,omitempty"`
	Questions        []Question   `json:"questions"`
	SubjectOrder     []string     `json:"subject_order,omitempty"`
	Deadline         *time.Time   `json:"deadline,omitempty"`
	StartedAt        time.Time    `json:"started_at"`
	SubmittedAt      *time.Time   `json:"submitted_at,omitempty"`
	Cursor           Cursor       `json:"cursor"`
	Warned           WarningFlags `json:"warned"`
	Result           *Result      `json:"result,omitempty"`
}

// QuestionOrder lists the questions in attempt order with the subject label
// each one was scored under.
func (s *AttemptShape) QuestionOrder() []QuestionRef {
	refs := make([]QuestionRef, len(s.Questions))
	for i, q := range s.Questions {
		refs[i] = QuestionRef{ID: q.ID, Subject: q.Subject}
	}
	return refs
}

// QuestionRef is one entry of a recorded question order.
type QuestionRef struct {
	ID      string `json:"id"`
	Subject string `json:"subject,omitempty"`
}

// AnswerSheet is the frequently written half of a resumable attempt snapshot.
type AnswerSheet struct {
	Answers         map[string]int `json:"answers"`
	MarkedForReview []string       `json:"marked_for_review,omitempty"`
}

// NewAnswerSheet returns an empty sheet.
func NewAnswerSheet() *AnswerSheet {
	return &AnswerSheet{Answers: make(map[string]int)}
}

// Records flattens the answers into rows sorted by question id.
func (a *AnswerSheet) Records() []AnswerRecord {
	out := make([]AnswerRecord, 0, len(a.Answers))
	for qid, opt := range a.Answers {
		out = append(out, AnswerRecord{QuestionID: qid, Option: opt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// Result is the scored outcome of an attempt.
type Result struct {
	Correct            int     `json:"correct"`
	Wrong              int     `json:"wrong"`
	Unattempted        int     `json:"unattempted"`
	Score              float64 `json:"score"`
	ValidQuestionCount int     `json:"valid_question_count"`
}

// AnswerRecord is one recorded selection.
type AnswerRecord struct {
	QuestionID string `json:"question_id"`
	Option     int    `json:"option"`
}

// AttemptStart is the best-effort "attempt started" marker.
type AttemptStart struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentID        string        `json:"student_id"`
	StartedAt        time.Time     `json:"started_at"`
	SelectedSubjects []string      `json:"selected_subjects,omitempty"`
	QuestionOrder    []QuestionRef `json:"question_order,omitempty"`
}

// AttemptRecord is the outcome written on submit.
type AttemptRecord struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentID        string        `json:"student_id"`
	Result           Result        `json:"result"`
	StartedAt        time.Time     `json:"started_at"`
	SubmittedAt      time.Time     `json:"submitted_at"`
	SelectedSubjects []string      `json:"selected_subjects,omitempty"`
	QuestionOrder    []QuestionRef `json:"question_order,omitempty"`
}

// PriorAttempt is a completed attempt read back from durable storage.
type PriorAttempt struct {
	AttemptID        uuid.UUID      `json:"attempt_id"`
	Answers          map[string]int `json:"answers"`
	Result           *Result        `json:"result,omitempty"`
	SelectedSubjects []string       `json:"selected_subjects,omitempty"`
	QuestionOrder    []QuestionRef  `json:"question_order,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	SubmittedAt      *time.Time     `json:"submitted_at,omitempty"`
}

// Rank is a student's live position on an exam leaderboard.
type Rank struct {
	Rank  int `json:"rank"`
	Total int `json:"total"`
}

// AnswerBatch is the answers of one attempt queued for durable storage.
type AnswerBatch struct {
	AttemptID uuid.UUID      `json:"attempt_id"`
	ExamID    uuid.UUID      `json:"exam_id"`
	StudentID string         `json:"student_id"`
	Answers   []AnswerRecord `json:"answers"`
}

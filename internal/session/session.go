// Package session runs one in-progress attempt: answer capture, review
// marks, pagination, the countdown and the single submit path.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
)

var (
	ErrNotInProgress    = errors.New("attempt is not in progress")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrUnknownQuestion  = errors.New("question is not part of this attempt")
	ErrInvalidOption    = errors.New("option index out of range")
)

// DefaultPerPage is the page size used when none is configured.
const DefaultPerPage = 10

// Notice is a non-fatal problem surfaced to the student.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	NoticeProgressNotSaved = "PROGRESS_NOT_SAVED"
	NoticeStartNotRecorded = "START_NOT_RECORDED"
	NoticeResultNotSaved   = "RESULT_NOT_SAVED"
)

// Options wires a session to its collaborators. Clock defaults to
// SystemClock, Store to an in-memory store, PerPage to DefaultPerPage. A nil
// Guard relies on the in-process guard alone; a nil Finalizer keeps results
// local.
type Options struct {
	Clock     Clock
	Store     SnapshotStore
	Guard     SubmitGuard
	Finalizer Finalizer
	PerPage   int
	Log       zerolog.Logger
}

func (o *Options) defaults() {
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Store == nil {
		o.Store = NewMemorySnapshotStore()
	}
	if o.PerPage <= 0 {
		o.PerPage = DefaultPerPage
	}
}

// Session is one student's live attempt. It is safe for concurrent use.
type Session struct {
	mu     sync.Mutex
	exam   *model.Exam
	shape  *model.AttemptShape
	sheet  *model.AnswerSheet
	marked map[string]bool
	index  map[string]int
	groups []group

	opts Options
	log  zerolog.Logger

	// submitted flips once, before any scoring or persistence runs.
	submitted atomic.Bool
}

// Begin starts a fresh attempt from a resolved shape. StartedAt is set to
// now and the deadline is computed once, unless the shape already has one.
// Snapshot write failures are returned as notices.
func Begin(ctx context.Context, exam *model.Exam, shape *model.AttemptShape, opts Options) (*Session, []Notice) {
	opts.defaults()
	now := opts.Clock.Now()

	if shape.AttemptID == uuid.Nil {
		shape.AttemptID = uuid.New()
	}
	shape.State = model.AttemptInProgress
	if shape.StartedAt.IsZero() {
		shape.StartedAt = now
	}
	if shape.Deadline == nil && exam.IsTimed() {
		deadline := shape.StartedAt.Add(exam.Duration())
		shape.Deadline = &deadline
	}

	s := newSession(exam, shape, model.NewAnswerSheet(), opts)

	var notices []Notice
	if err := s.opts.Store.SaveShape(ctx, shape); err != nil {
		s.log.Warn().Err(err).Msg("Failed to save attempt shape")
		notices = append(notices, progressNotice())
	}
	if err := s.opts.Store.SaveAnswers(ctx, shape.StudentID, shape.ExamID, s.sheet); err != nil {
		s.log.Warn().Err(err).Msg("Failed to save answer sheet")
		if len(notices) == 0 {
			notices = append(notices, progressNotice())
		}
	}
	return s, notices
}

// Restore rebuilds a session from its snapshots. The stored deadline is kept
// as is; an already expired attempt submits on its next Tick.
func Restore(exam *model.Exam, shape *model.AttemptShape, sheet *model.AnswerSheet, opts Options) *Session {
	opts.defaults()
	if sheet == nil {
		sheet = model.NewAnswerSheet()
	}
	if sheet.Answers == nil {
		sheet.Answers = make(map[string]int)
	}
	s := newSession(exam, shape, sheet, opts)
	if shape.State == model.AttemptSubmitting || shape.State == model.AttemptSubmitted {
		// A submit was interrupted or its durable write failed; the
		// outcome already lives in the shape.
		s.submitted.Store(true)
		shape.State = model.AttemptSubmitted
	}
	return s
}

func newSession(exam *model.Exam, shape *model.AttemptShape, sheet *model.AnswerSheet, opts Options) *Session {
	s := &Session{
		exam:   exam,
		shape:  shape,
		sheet:  sheet,
		marked: make(map[string]bool, len(sheet.MarkedForReview)),
		index:  make(map[string]int, len(shape.Questions)),
		opts:   opts,
		log: opts.Log.With().
			Str("component", "attempt_session").
			Str("attempt_id", shape.AttemptID.String()).
			Str("student_id", shape.StudentID).
			Logger(),
	}
	for _, id := range sheet.MarkedForReview {
		s.marked[id] = true
	}
	for i, q := range shape.Questions {
		if _, dup := s.index[q.ID]; !dup {
			s.index[q.ID] = i
		}
	}
	s.groups = buildGroups(shape)
	s.clampCursorLocked()
	return s
}

func progressNotice() Notice {
	return Notice{Code: NoticeProgressNotSaved, Message: "Progress could not be saved; it is kept in memory and will be retried."}
}

// AttemptID returns the attempt's id.
func (s *Session) AttemptID() uuid.UUID { return s.shape.AttemptID }

// Exam returns the exam the attempt belongs to.
func (s *Session) Exam() *model.Exam { return s.exam }

// State returns the current lifecycle state.
func (s *Session) State() model.AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shape.State
}

// Answer records option for question id. The first recorded answer wins: a
// second call for the same question is a no-op reporting false. Recording
// clears the question's review mark.
func (s *Session) Answer(ctx context.Context, questionID string, option int) (bool, []Notice, error) {
	if s.expired() {
		s.Submit(ctx, TriggerTimer)
		return false, nil, ErrAlreadySubmitted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgressLocked(); err != nil {
		return false, nil, err
	}
	i, ok := s.index[questionID]
	if !ok {
		return false, nil, ErrUnknownQuestion
	}
	if option < 0 || option >= len(s.shape.Questions[i].Options) {
		return false, nil, ErrInvalidOption
	}
	if _, done := s.sheet.Answers[questionID]; done {
		return false, nil, nil
	}

	s.sheet.Answers[questionID] = option
	delete(s.marked, questionID)
	return true, s.saveAnswersLocked(ctx), nil
}

// ToggleReview flips the review mark of a question, answered or not, and
// reports the new mark.
func (s *Session) ToggleReview(ctx context.Context, questionID string) (bool, []Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireInProgressLocked(); err != nil {
		return false, nil, err
	}
	if _, ok := s.index[questionID]; !ok {
		return false, nil, ErrUnknownQuestion
	}

	marked := !s.marked[questionID]
	if marked {
		s.marked[questionID] = true
	} else {
		delete(s.marked, questionID)
	}
	return marked, s.saveAnswersLocked(ctx), nil
}

func (s *Session) requireInProgressLocked() error {
	switch s.shape.State {
	case model.AttemptInProgress:
		return nil
	case model.AttemptSubmitting, model.AttemptSubmitted:
		return ErrAlreadySubmitted
	default:
		return ErrNotInProgress
	}
}

func (s *Session) saveAnswersLocked(ctx context.Context) []Notice {
	s.sheet.MarkedForReview = s.markedLocked()
	if err := s.opts.Store.SaveAnswers(ctx, s.shape.StudentID, s.shape.ExamID, s.sheet); err != nil {
		s.log.Warn().Err(err).Msg("Failed to save answer sheet")
		return []Notice{progressNotice()}
	}
	return nil
}

func (s *Session) saveShapeLocked(ctx context.Context) []Notice {
	if err := s.opts.Store.SaveShape(ctx, s.shape); err != nil {
		s.log.Warn().Err(err).Msg("Failed to save attempt shape")
		return []Notice{progressNotice()}
	}
	return nil
}

func (s *Session) markedLocked() []string {
	out := make([]string, 0, len(s.marked))
	for id := range s.marked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// View is a read-only copy of the attempt for presentation.
type View struct {
	AttemptID        uuid.UUID                  `json:"attempt_id"`
	ExamID           uuid.UUID                  `json:"exam_id"`
	State            model.AttemptState         `json:"state"`
	SelectedSubjects []string                   `json:"selected_subjects,omitempty"`
	SubjectOrder     []string                   `json:"subject_order,omitempty"`
	Questions        []model.QuestionForStudent `json:"questions,omitempty"`
	Answers          map[string]int             `json:"answers"`
	MarkedForReview  []string                   `json:"marked_for_review"`
	StartedAt        time.Time                  `json:"started_at"`
	Deadline         *time.Time                 `json:"deadline,omitempty"`
	RemainingSeconds *int64                     `json:"remaining_seconds,omitempty"`
	SubmittedAt      *time.Time                 `json:"submitted_at,omitempty"`
	Result           *model.Result              `json:"result,omitempty"`
	Cursor           model.Cursor               `json:"cursor"`
}

// Snapshot returns the current view. Questions are included only when
// withQuestions is set.
func (s *Session) Snapshot(withQuestions bool) View {
	now := s.opts.Clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		AttemptID:        s.shape.AttemptID,
		ExamID:           s.shape.ExamID,
		State:            s.shape.State,
		SelectedSubjects: append([]string(nil), s.shape.SelectedSubjects...),
		SubjectOrder:     append([]string(nil), s.shape.SubjectOrder...),
		Answers:          make(map[string]int, len(s.sheet.Answers)),
		MarkedForReview:  s.markedLocked(),
		StartedAt:        s.shape.StartedAt,
		Deadline:         s.shape.Deadline,
		SubmittedAt:      s.shape.SubmittedAt,
		Result:           s.shape.Result,
		Cursor:           s.shape.Cursor,
	}
	for k, val := range s.sheet.Answers {
		v.Answers[k] = val
	}
	if s.shape.Deadline != nil {
		secs := int64(Remaining(*s.shape.Deadline, now) / time.Second)
		v.RemainingSeconds = &secs
	}
	if withQuestions {
		v.Questions = make([]model.QuestionForStudent, len(s.shape.Questions))
		for i := range s.shape.Questions {
			v.Questions[i] = s.shape.Questions[i].ForStudent()
		}
	}
	return v
}

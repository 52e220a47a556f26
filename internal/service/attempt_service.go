package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/question"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/scoring"
	"github.com/stemsi/exstem-quiz/internal/selection"
	"github.com/stemsi/exstem-quiz/internal/session"
)

// Attempt errors.
var (
	ErrUnauthorized             = errors.New("not authorized to take this exam")
	ErrExamNotFound             = errors.New("exam not found")
	ErrExamNotStarted           = errors.New("exam has not started yet")
	ErrExamEnded                = errors.New("exam has ended")
	ErrAttemptUsed              = errors.New("exam allows a single attempt and it was already used")
	ErrSubjectSelectionRequired = errors.New("optional subjects must be chosen before starting")
	ErrNoAttempt                = errors.New("no attempt in progress")
	ErrNoResult                 = errors.New("no submitted attempt for this exam")
	ErrResultPending            = errors.New("previous attempt result is not saved yet")
)

// AttemptDeps wires an AttemptService.
type AttemptDeps struct {
	Exams       ExamSource
	Questions   QuestionSource
	Enrollment  EnrollmentSource
	Attempts    AttemptStore
	Leaderboard Leaderboard
	Queue       Queue
	Snapshots   session.SnapshotStore
	Guard       session.SubmitGuard
	Clock       session.Clock

	// NewShuffler returns the shuffler for one attempt. Defaults to a
	// time-seeded math/rand source.
	NewShuffler func() selection.Shuffler

	PerPage       int
	RemoteTimeout time.Duration
	IdleTimeout   time.Duration
	Log           zerolog.Logger
}

// AttemptService runs student attempts: access checks, start, answering,
// submit, result review and rank.
type AttemptService struct {
	deps      AttemptDeps
	finalizer *finalizer
	log       zerolog.Logger

	mu    sync.Mutex
	live  map[string]*liveAttempt
	locks [lockStripes]sync.Mutex
}

const lockStripes = 256

type liveAttempt struct {
	sess     *session.Session
	lastSeen time.Time
}

// NewAttemptService creates an AttemptService.
func NewAttemptService(deps AttemptDeps) *AttemptService {
	if deps.Clock == nil {
		deps.Clock = session.SystemClock{}
	}
	if deps.Snapshots == nil {
		deps.Snapshots = session.NewMemorySnapshotStore()
	}
	if deps.NewShuffler == nil {
		deps.NewShuffler = func() selection.Shuffler {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	}
	if deps.RemoteTimeout <= 0 {
		deps.RemoteTimeout = 3 * time.Second
	}
	if deps.IdleTimeout <= 0 {
		deps.IdleTimeout = 30 * time.Minute
	}

	log := deps.Log.With().Str("component", "attempt_service").Logger()
	return &AttemptService{
		deps: deps,
		finalizer: &finalizer{
			attempts: deps.Attempts,
			board:    deps.Leaderboard,
			queue:    deps.Queue,
			timeout:  deps.RemoteTimeout,
			log:      log,
		},
		log:  log,
		live: make(map[string]*liveAttempt),
	}
}

func attemptKey(studentID string, examID uuid.UUID) string {
	return studentID + "|" + examID.String()
}

// lockAttempt serializes open/start/restore for one student and exam.
func (s *AttemptService) lockAttempt(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	l := &s.locks[h.Sum32()%lockStripes]
	l.Lock()
	return l.Unlock
}

func (s *AttemptService) sessionOptions() session.Options {
	return session.Options{
		Clock:     s.deps.Clock,
		Store:     s.deps.Snapshots,
		Guard:     s.deps.Guard,
		Finalizer: s.finalizer,
		PerPage:   s.deps.PerPage,
		Log:       s.deps.Log,
	}
}

func (s *AttemptService) loadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.deps.Exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Opening is what a student sees when opening an exam.
type Opening struct {
	Exam    ExamSummary        `json:"exam"`
	State   model.AttemptState `json:"state"`
	Blocked string             `json:"blocked,omitempty"`
	Attempt *session.View      `json:"attempt,omitempty"`
	Page    *session.Page      `json:"page,omitempty"`
	Result  *model.Result      `json:"result,omitempty"`
	Notices []session.Notice   `json:"notices,omitempty"`
}

// SubjectChoice is one subject section as offered to the student.
type SubjectChoice struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

// ExamSummary is the student-facing exam configuration.
type ExamSummary struct {
	ID                uuid.UUID           `json:"id"`
	Title             string              `json:"title"`
	Mode              model.ExamMode      `json:"mode"`
	IsPractice        bool                `json:"is_practice"`
	DurationMinutes   int                 `json:"duration_minutes"`
	StartAt           *time.Time          `json:"start_at,omitempty"`
	EndAt             *time.Time          `json:"end_at,omitempty"`
	MarksPerQuestion  float64             `json:"marks_per_question"`
	NegativeMarks     float64             `json:"negative_marks_per_wrong"`
	NumberOfAttempts  model.AttemptPolicy `json:"number_of_attempts"`
	Custom            bool                `json:"custom"`
	OptionalPickCount int                 `json:"optional_pick_count,omitempty"`
	MandatorySubjects []SubjectChoice     `json:"mandatory_subjects,omitempty"`
	OptionalSubjects  []SubjectChoice     `json:"optional_subjects,omitempty"`
}

func summarize(exam *model.Exam, now time.Time) ExamSummary {
	out := ExamSummary{
		ID:                exam.ID,
		Title:             exam.Title,
		Mode:              exam.Mode(now),
		IsPractice:        exam.IsPractice,
		DurationMinutes:   exam.DurationMinutes,
		StartAt:           exam.StartAt,
		EndAt:             exam.EndAt,
		MarksPerQuestion:  scoring.DefaultMark(exam),
		NegativeMarks:     scoring.Penalty(exam),
		NumberOfAttempts:  exam.NumberOfAttempts,
		Custom:            exam.IsCustom(),
		OptionalPickCount: exam.OptionalPickCount(),
	}
	for _, s := range exam.MandatorySubjects {
		out.MandatorySubjects = append(out.MandatorySubjects, SubjectChoice{ID: s.ID, Name: s.DisplayName(), Count: s.Count})
	}
	for _, s := range exam.OptionalSubjects {
		out.OptionalSubjects = append(out.OptionalSubjects, SubjectChoice{ID: s.ID, Name: s.DisplayName(), Count: s.Count})
	}
	return out
}

// Open returns the student's current position on an exam. A running
// attempt is restored from its snapshot and submitted if its deadline has
// passed; otherwise the pre-start state is reported along with any reason a
// start would be refused right now.
func (s *AttemptService) Open(ctx context.Context, id model.Identity, examID uuid.UUID) (*Opening, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, id, exam); err != nil {
		return nil, err
	}

	now := s.deps.Clock.Now()
	op := &Opening{Exam: summarize(exam, now)}

	unlock := s.lockAttempt(attemptKey(id.StudentID, examID))
	sess, err := s.resume(ctx, exam, id.StudentID)
	unlock()
	if err != nil {
		return nil, err
	}
	if sess != nil {
		tick := sess.Tick(ctx)
		if tick.Submit != nil {
			op.Notices = append(op.Notices, tick.Submit.Notices...)
			s.forget(id.StudentID, examID)
		}
		s.fillFromSession(op, sess)
		return op, nil
	}

	if blocked := s.startBlock(ctx, exam, id.StudentID, now); blocked != nil {
		op.Blocked = errorCode(blocked)
		if errors.Is(blocked, ErrAttemptUsed) {
			op.State = model.AttemptSubmitted
			if prior, _ := s.deps.Attempts.FetchPrior(ctx, examID, id.StudentID); prior != nil {
				op.Result = prior.Result
			}
			return op, nil
		}
	}

	if exam.IsCustom() {
		op.State = model.AttemptAwaitingSubjectSelection
	} else {
		op.State = model.AttemptNotStarted
	}
	return op, nil
}

func (s *AttemptService) fillFromSession(op *Opening, sess *session.Session) {
	view := sess.Snapshot(false)
	op.State = view.State
	op.Attempt = &view
	op.Result = view.Result
	if view.State == model.AttemptInProgress {
		page := sess.CurrentPage()
		op.Page = &page
	}
}

// Start begins a new attempt, or returns the running one. For custom exams
// choices must name exactly the required number of optional subjects.
func (s *AttemptService) Start(ctx context.Context, id model.Identity, examID uuid.UUID, choices []string) (*Opening, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, id, exam); err != nil {
		return nil, err
	}

	key := attemptKey(id.StudentID, examID)
	unlock := s.lockAttempt(key)
	defer unlock()

	now := s.deps.Clock.Now()
	op := &Opening{Exam: summarize(exam, now)}

	existing, err := s.resume(ctx, exam, id.StudentID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.State() == model.AttemptInProgress {
		s.fillFromSession(op, existing)
		return op, nil
	}

	if err := s.startBlock(ctx, exam, id.StudentID, now); err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.settlePending(ctx, exam.ID, id.StudentID, existing.AttemptID()); err != nil {
			return nil, err
		}
	}

	var selected []string
	if exam.IsCustom() {
		if len(choices) == 0 && exam.OptionalPickCount() > 0 {
			return nil, ErrSubjectSelectionRequired
		}
		if err := selection.ValidateChoices(exam, choices); err != nil {
			return nil, err
		}
		selected = selection.SelectedSubjects(exam, choices)
	}

	raws, err := s.deps.Questions.FetchBank(ctx, exam.BankCriteria())
	if err != nil {
		return nil, fmt.Errorf("fetch question bank: %w", err)
	}
	bank := question.NormalizeAll(raws, exam.SubjectNames)
	res := selection.Resolve(exam, bank, choices, s.deps.NewShuffler())

	shape := &model.AttemptShape{
		AttemptID:        uuid.New(),
		ExamID:           exam.ID,
		StudentID:        id.StudentID,
		SelectedSubjects: selected,
		Questions:        res.Questions,
		SubjectOrder:     res.SubjectOrder,
	}
	sess, notices := session.Begin(ctx, exam, shape, s.sessionOptions())
	op.Notices = append(op.Notices, notices...)

	s.mu.Lock()
	s.live[key] = &liveAttempt{sess: sess, lastSeen: now}
	s.mu.Unlock()

	if notice := s.recordStart(ctx, shape); notice != nil {
		op.Notices = append(op.Notices, *notice)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("student_id", id.StudentID).
		Str("attempt_id", shape.AttemptID.String()).
		Int("questions", len(shape.Questions)).
		Msg("Attempt started")

	s.fillFromSession(op, sess)
	return op, nil
}

// settlePending lets a new attempt replace the submitted snapshot of an
// earlier one only after that attempt's result is durable. Until then the
// snapshot is the only local copy of the queued result.
func (s *AttemptService) settlePending(ctx context.Context, examID uuid.UUID, studentID string, attemptID uuid.UUID) error {
	prior, err := s.deps.Attempts.FetchPrior(ctx, examID, studentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID.String()).
			Str("student_id", studentID).
			Msg("Prior attempt lookup failed, keeping pending snapshot")
		return ErrResultPending
	}
	if prior == nil || prior.AttemptID != attemptID {
		return ErrResultPending
	}
	if err := s.deps.Snapshots.ClearAttempt(ctx, studentID, examID, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to clear settled snapshot")
	}
	return nil
}

// recordStart hands the start marker to the start worker. Failure is
// reported as a notice and never blocks the attempt.
func (s *AttemptService) recordStart(ctx context.Context, shape *model.AttemptShape) *session.Notice {
	if s.deps.Queue == nil {
		return nil
	}
	err := s.deps.Queue.EnqueueStart(ctx, model.AttemptStart{
		AttemptID:        shape.AttemptID,
		ExamID:           shape.ExamID,
		StudentID:        shape.StudentID,
		StartedAt:        shape.StartedAt,
		SelectedSubjects: shape.SelectedSubjects,
		QuestionOrder:    shape.QuestionOrder(),
	})
	if err == nil {
		return nil
	}
	s.log.Warn().Err(err).
		Str("exam_id", shape.ExamID.String()).
		Str("student_id", shape.StudentID).
		Msg("Failed to record attempt start")
	return &session.Notice{
		Code:    session.NoticeStartNotRecorded,
		Message: "Your attempt started but could not be registered with the server yet. Your progress is saved.",
	}
}

// resume returns the live session, restoring it from the snapshot store when
// this process does not hold it. Returns nil, nil when there is none.
func (s *AttemptService) resume(ctx context.Context, exam *model.Exam, studentID string) (*session.Session, error) {
	key := attemptKey(studentID, exam.ID)
	now := s.deps.Clock.Now()

	s.mu.Lock()
	if la, ok := s.live[key]; ok {
		la.lastSeen = now
		s.mu.Unlock()
		return la.sess, nil
	}
	s.mu.Unlock()

	shape, err := s.deps.Snapshots.LoadShape(ctx, studentID, exam.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Str("student_id", studentID).Msg("Failed to load attempt snapshot")
		return nil, nil
	}
	if shape == nil {
		return nil, nil
	}
	sheet, err := s.deps.Snapshots.LoadAnswers(ctx, studentID, exam.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Str("student_id", studentID).Msg("Failed to load answer snapshot")
	}

	sess := session.Restore(exam, shape, sheet, s.sessionOptions())
	if sess.State() == model.AttemptInProgress {
		s.mu.Lock()
		s.live[key] = &liveAttempt{sess: sess, lastSeen: now}
		s.mu.Unlock()
	}
	return sess, nil
}

// active returns the in-progress session of a student, restoring it if
// needed.
func (s *AttemptService) active(ctx context.Context, id model.Identity, examID uuid.UUID) (*session.Session, error) {
	s.mu.Lock()
	la, ok := s.live[attemptKey(id.StudentID, examID)]
	if ok {
		la.lastSeen = s.deps.Clock.Now()
	}
	s.mu.Unlock()
	if ok {
		return la.sess, nil
	}

	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	unlock := s.lockAttempt(attemptKey(id.StudentID, examID))
	sess, err := s.resume(ctx, exam, id.StudentID)
	unlock()
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoAttempt
	}
	return sess, nil
}

func (s *AttemptService) forget(studentID string, examID uuid.UUID) {
	s.mu.Lock()
	delete(s.live, attemptKey(studentID, examID))
	s.mu.Unlock()
}

// AnswerResult reports whether an answer was recorded.
type AnswerResult struct {
	Accepted bool             `json:"accepted"`
	Notices  []session.Notice `json:"notices,omitempty"`
}

// Answer records an answer. A question that already has one is left as is.
func (s *AttemptService) Answer(ctx context.Context, id model.Identity, examID uuid.UUID, questionID string, option int) (*AnswerResult, error) {
	sess, err := s.active(ctx, id, examID)
	if err != nil {
		return nil, err
	}
	accepted, notices, err := sess.Answer(ctx, questionID, option)
	if sess.Submitted() {
		s.forget(id.StudentID, examID)
	}
	if err != nil {
		return nil, err
	}
	return &AnswerResult{Accepted: accepted, Notices: notices}, nil
}

// ReviewMark is the review flag of one question after a toggle.
type ReviewMark struct {
	QuestionID string           `json:"question_id"`
	Marked     bool             `json:"marked"`
	Notices    []session.Notice `json:"notices,omitempty"`
}

// ToggleReview flips a question's review mark.
func (s *AttemptService) ToggleReview(ctx context.Context, id model.Identity, examID uuid.UUID, questionID string) (*ReviewMark, error) {
	sess, err := s.active(ctx, id, examID)
	if err != nil {
		return nil, err
	}
	marked, notices, err := sess.ToggleReview(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return &ReviewMark{QuestionID: questionID, Marked: marked, Notices: notices}, nil
}

// PageResult is a page plus any persistence notices.
type PageResult struct {
	session.Page
	Notices []session.Notice `json:"notices,omitempty"`
}

// Paginate moves the attempt cursor one page.
func (s *AttemptService) Paginate(ctx context.Context, id model.Identity, examID uuid.UUID, dir session.Direction) (*PageResult, error) {
	sess, err := s.active(ctx, id, examID)
	if err != nil {
		return nil, err
	}
	page, notices, err := sess.Paginate(ctx, dir)
	if err != nil {
		return nil, err
	}
	return &PageResult{Page: page, Notices: notices}, nil
}

// JumpToSubject moves the attempt cursor to a subject tab.
func (s *AttemptService) JumpToSubject(ctx context.Context, id model.Identity, examID uuid.UUID, subject int) (*PageResult, error) {
	sess, err := s.active(ctx, id, examID)
	if err != nil {
		return nil, err
	}
	page, notices, err := sess.JumpToSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &PageResult{Page: page, Notices: notices}, nil
}

// Tick advances the countdown of a running attempt.
func (s *AttemptService) Tick(ctx context.Context, id model.Identity, examID uuid.UUID) (session.TickResult, error) {
	sess, err := s.active(ctx, id, examID)
	if err != nil {
		return session.TickResult{}, err
	}
	res := sess.Tick(ctx)
	if sess.Submitted() {
		s.forget(id.StudentID, examID)
	}
	return res, nil
}

// Submit finalizes the attempt.
func (s *AttemptService) Submit(ctx context.Context, id model.Identity, examID uuid.UUID) (*session.SubmitOutcome, error) {
	sess, err := s.active(ctx, id, examID)
	if err != nil {
		return nil, err
	}
	out, err := sess.Submit(ctx, session.TriggerManual)
	s.forget(id.StudentID, examID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sweep drops in-memory sessions idle for longer than the idle timeout.
// Their snapshots stay in the store and are restored on next use.
func (s *AttemptService) Sweep() int {
	cutoff := s.deps.Clock.Now().Add(-s.deps.IdleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, la := range s.live {
		if la.lastSeen.Before(cutoff) || la.sess.Submitted() {
			delete(s.live, key)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *AttemptService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug().Int("count", n).Msg("Evicted idle attempts")
			}
		}
	}
}

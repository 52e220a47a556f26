// Package memstore is an in-process implementation of the attempt
// service's storage ports for tests. The server always runs on Postgres and
// Redis.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
)

// Failures injects errors into individual operations.
type Failures struct {
	GetExam       error
	FetchBank     error
	Enrollment    error
	FetchPrior    error
	RecordResult  error
	RecordAnswers error
	Enqueue       error
	Rank          error
}

type bankRow struct {
	examID *uuid.UUID
	q      model.RawQuestion
}

// Store holds exams, the question bank, enrollments, attempts, the
// leaderboard and the persistence queues.
type Store struct {
	mu sync.RWMutex

	exams       map[uuid.UUID]model.Exam
	bank        []bankRow
	batches     map[uuid.UUID]bool
	enrollments map[string][]uuid.UUID
	results     map[uuid.UUID]model.AttemptRecord
	answers     map[uuid.UUID]map[string]int
	board       map[uuid.UUID]map[string]float64

	queuedStarts  []model.AttemptStart
	queuedResults []model.AttemptRecord
	queuedAnswers []model.AnswerBatch

	fail Failures
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		exams:       make(map[uuid.UUID]model.Exam),
		batches:     make(map[uuid.UUID]bool),
		enrollments: make(map[string][]uuid.UUID),
		results:     make(map[uuid.UUID]model.AttemptRecord),
		answers:     make(map[uuid.UUID]map[string]int),
		board:       make(map[uuid.UUID]map[string]float64),
	}
}

// SetFailures replaces the injected errors.
func (s *Store) SetFailures(f Failures) {
	s.mu.Lock()
	s.fail = f
	s.mu.Unlock()
}

// PutExam stores an exam, minting an id when it has none.
func (s *Store) PutExam(e model.Exam) uuid.UUID {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.mu.Lock()
	s.exams[e.ID] = e
	s.mu.Unlock()
	return e.ID
}

// PutQuestions adds raw records to the bank, optionally owned by an exam.
func (s *Store) PutQuestions(examID *uuid.UUID, qs ...model.RawQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range qs {
		s.bank = append(s.bank, bankRow{examID: examID, q: q})
	}
}

// PutBatch registers a batch.
func (s *Store) PutBatch(id uuid.UUID, public bool) {
	s.mu.Lock()
	s.batches[id] = public
	s.mu.Unlock()
}

// Enroll adds students to a batch.
func (s *Store) Enroll(batchID uuid.UUID, studentIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sid := range studentIDs {
		if !slices.Contains(s.enrollments[sid], batchID) {
			s.enrollments[sid] = append(s.enrollments[sid], batchID)
		}
	}
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail.GetExam != nil {
		return nil, s.fail.GetExam
	}
	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *Store) FetchBank(_ context.Context, c model.BankCriteria) ([]model.RawQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail.FetchBank != nil {
		return nil, s.fail.FetchBank
	}

	var match func(bankRow) bool
	switch {
	case len(c.IDs) > 0:
		match = func(r bankRow) bool { return slices.Contains(c.IDs, r.q.ID) }
	case c.SetID != "":
		match = func(r bankRow) bool { return r.q.SetID == c.SetID }
	case c.ExamID != nil:
		match = func(r bankRow) bool { return r.examID != nil && *r.examID == *c.ExamID }
	default:
		return nil, nil
	}

	var out []model.RawQuestion
	for _, r := range s.bank {
		if match(r) {
			out = append(out, r.q)
		}
	}
	return out, nil
}

func (s *Store) EnrolledBatchIDs(_ context.Context, studentID string) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail.Enrollment != nil {
		return nil, s.fail.Enrollment
	}
	return slices.Clone(s.enrollments[studentID]), nil
}

func (s *Store) BatchVisibility(_ context.Context, batchID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail.Enrollment != nil {
		return false, s.fail.Enrollment
	}
	public, ok := s.batches[batchID]
	if !ok {
		return false, repository.ErrNotFound
	}
	return public, nil
}

// FetchPrior returns the latest recorded result of the student.
func (s *Store) FetchPrior(_ context.Context, examID uuid.UUID, studentID string) (*model.PriorAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail.FetchPrior != nil {
		return nil, s.fail.FetchPrior
	}

	var latest *model.AttemptRecord
	for _, rec := range s.results {
		if rec.ExamID != examID || rec.StudentID != studentID {
			continue
		}
		if latest == nil || rec.SubmittedAt.After(latest.SubmittedAt) {
			r := rec
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}

	answers := make(map[string]int, len(s.answers[latest.AttemptID]))
	for k, v := range s.answers[latest.AttemptID] {
		answers[k] = v
	}
	result := latest.Result
	submitted := latest.SubmittedAt
	return &model.PriorAttempt{
		AttemptID:        latest.AttemptID,
		Answers:          answers,
		Result:           &result,
		SelectedSubjects: slices.Clone(latest.SelectedSubjects),
		QuestionOrder:    slices.Clone(latest.QuestionOrder),
		StartedAt:        latest.StartedAt,
		SubmittedAt:      &submitted,
	}, nil
}

func (s *Store) RecordResult(_ context.Context, rec model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail.RecordResult != nil {
		return s.fail.RecordResult
	}
	s.results[rec.AttemptID] = rec
	return nil
}

func (s *Store) RecordAnswers(_ context.Context, b model.AnswerBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail.RecordAnswers != nil {
		return s.fail.RecordAnswers
	}
	m := s.answers[b.AttemptID]
	if m == nil {
		m = make(map[string]int, len(b.Answers))
		s.answers[b.AttemptID] = m
	}
	for _, a := range b.Answers {
		if _, ok := m[a.QuestionID]; !ok {
			m[a.QuestionID] = a.Option
		}
	}
	return nil
}

// Record keeps the best score per student.
func (s *Store) Record(_ context.Context, examID uuid.UUID, studentID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := s.board[examID]
	if scores == nil {
		scores = make(map[string]float64)
		s.board[examID] = scores
	}
	if best, ok := scores[studentID]; !ok || score > best {
		scores[studentID] = score
	}
	return nil
}

// Rank is one plus the number of students with a strictly higher score.
func (s *Store) Rank(_ context.Context, examID uuid.UUID, studentID string) (*model.Rank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail.Rank != nil {
		return nil, s.fail.Rank
	}
	scores := s.board[examID]
	mine, ok := scores[studentID]
	if !ok {
		return nil, nil
	}
	higher := 0
	for _, sc := range scores {
		if sc > mine {
			higher++
		}
	}
	return &model.Rank{Rank: higher + 1, Total: len(scores)}, nil
}

func (s *Store) EnqueueStart(_ context.Context, start model.AttemptStart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail.Enqueue != nil {
		return s.fail.Enqueue
	}
	s.queuedStarts = append(s.queuedStarts, start)
	return nil
}

func (s *Store) EnqueueResult(_ context.Context, rec model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail.Enqueue != nil {
		return s.fail.Enqueue
	}
	s.queuedResults = append(s.queuedResults, rec)
	return nil
}

func (s *Store) EnqueueAnswers(_ context.Context, b model.AnswerBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail.Enqueue != nil {
		return s.fail.Enqueue
	}
	s.queuedAnswers = append(s.queuedAnswers, b)
	return nil
}

// Results returns the recorded results.
func (s *Store) Results() []model.AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AttemptRecord, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	return out
}

// QueuedResults returns a copy of the queued result records.
func (s *Store) QueuedResults() []model.AttemptRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.queuedResults)
}

// Queued returns the number of queued starts, results and answer batches.
func (s *Store) Queued() (starts, results, answers int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queuedStarts), len(s.queuedResults), len(s.queuedAnswers)
}

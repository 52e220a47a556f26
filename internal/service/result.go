package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/question"
	"github.com/stemsi/exstem-quiz/internal/review"
	"github.com/stemsi/exstem-quiz/internal/selection"
	"github.com/stemsi/exstem-quiz/internal/session"
)

// ResultSource tells where the reviewed answers were read from.
type ResultSource string

const (
	SourceRemote ResultSource = "remote"
	SourceLocal  ResultSource = "local"
)

// ResultView is the review screen of a submitted attempt.
type ResultView struct {
	Exam           ExamSummary        `json:"exam"`
	Summary        model.Result       `json:"summary"`
	Recomputed     float64            `json:"recomputed_score"`
	ScoreSource    review.ScoreSource `json:"score_source"`
	Source         ResultSource       `json:"source"`
	Filter         review.Filter      `json:"filter"`
	Items          []review.Item      `json:"items"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	SubmittedAt    *time.Time         `json:"submitted_at,omitempty"`
	ElapsedSeconds *int64             `json:"elapsed_seconds,omitempty"`
	Notices        []session.Notice   `json:"notices,omitempty"`
}

// reviewInput is everything the reconciler needs from one source.
type reviewInput struct {
	source      ResultSource
	answers     map[string]int
	persisted   *model.Result
	order       []model.QuestionRef
	questions   []model.Question
	startedAt   time.Time
	submittedAt *time.Time
}

// Result rebuilds the review of the student's submitted attempt. Answers
// come from durable storage when available, else from the local snapshot of
// a submitted attempt.
func (s *AttemptService) Result(ctx context.Context, id model.Identity, examID uuid.UUID, filter review.Filter) (*ResultView, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, id, exam); err != nil {
		return nil, err
	}

	var notices []session.Notice
	in, err := s.remoteReviewInput(ctx, exam.ID, id.StudentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", exam.ID.String()).
			Str("student_id", id.StudentID).
			Msg("Prior attempt lookup failed, using local snapshot")
		notices = append(notices, session.Notice{
			Code:    "RESULT_FROM_LOCAL",
			Message: "Showing your locally saved answers; the server copy is unavailable.",
		})
	}
	if in == nil {
		in = s.localReviewInput(ctx, exam.ID, id.StudentID)
	}
	if in == nil {
		return nil, ErrNoResult
	}

	questions := in.questions
	if questions == nil {
		raws, err := s.deps.Questions.FetchBank(ctx, exam.BankCriteria())
		if err != nil {
			return nil, fmt.Errorf("fetch question bank: %w", err)
		}
		bank := question.NormalizeAll(raws, exam.SubjectNames)
		questions = selection.ResolveForReview(exam, bank, in.order)
	}

	rv := review.Reconcile(exam, questions, in.answers, in.persisted)

	view := &ResultView{
		Exam:        summarize(exam, s.deps.Clock.Now()),
		Summary:     rv.Summary,
		Recomputed:  rv.Recomputed,
		ScoreSource: rv.ScoreSource,
		Source:      in.source,
		Filter:      filter,
		Items:       rv.Apply(filter),
		SubmittedAt: in.submittedAt,
		Notices:     notices,
	}
	if !in.startedAt.IsZero() {
		started := in.startedAt
		view.StartedAt = &started
		if in.submittedAt != nil {
			secs := int64(in.submittedAt.Sub(started) / time.Second)
			view.ElapsedSeconds = &secs
		}
	}
	return view, nil
}

func (s *AttemptService) remoteReviewInput(ctx context.Context, examID uuid.UUID, studentID string) (*reviewInput, error) {
	prior, err := s.deps.Attempts.FetchPrior(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, nil
	}
	return &reviewInput{
		source:      SourceRemote,
		answers:     prior.Answers,
		persisted:   prior.Result,
		order:       prior.QuestionOrder,
		startedAt:   prior.StartedAt,
		submittedAt: prior.SubmittedAt,
	}, nil
}

// localReviewInput reads a submitted snapshot. Its question list is already
// resolved and labelled, so no bank fetch is needed.
func (s *AttemptService) localReviewInput(ctx context.Context, examID uuid.UUID, studentID string) *reviewInput {
	shape, err := s.deps.Snapshots.LoadShape(ctx, studentID, examID)
	if err != nil || shape == nil || shape.State != model.AttemptSubmitted {
		return nil
	}
	in := &reviewInput{
		source:      SourceLocal,
		answers:     map[string]int{},
		persisted:   shape.Result,
		questions:   shape.Questions,
		startedAt:   shape.StartedAt,
		submittedAt: shape.SubmittedAt,
	}
	if sheet, err := s.deps.Snapshots.LoadAnswers(ctx, studentID, examID); err == nil && sheet != nil {
		in.answers = sheet.Answers
	}
	return in
}

// RankView is the student's live standing.
type RankView struct {
	Rank    *model.Rank      `json:"rank,omitempty"`
	Notices []session.Notice `json:"notices,omitempty"`
}

// Rank returns the student's live position. A failed lookup is reported as
// a notice, not an error.
func (s *AttemptService) Rank(ctx context.Context, id model.Identity, examID uuid.UUID) (*RankView, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, id, exam); err != nil {
		return nil, err
	}
	if s.deps.Leaderboard == nil {
		return &RankView{}, nil
	}

	rank, err := s.deps.Leaderboard.Rank(ctx, examID, id.StudentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("exam_id", examID.String()).
			Str("student_id", id.StudentID).
			Msg("Rank lookup failed")
		return &RankView{Notices: []session.Notice{{
			Code:    "RANK_UNAVAILABLE",
			Message: "Live rank is unavailable right now.",
		}}}, nil
	}
	return &RankView{Rank: rank}, nil
}

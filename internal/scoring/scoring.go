// Package scoring computes attempt outcomes. Everything here is a pure
// function of its inputs so submit-time and review-time figures agree.
package scoring

import (
	"math"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Status classifies one eligible question.
type Status string

const (
	StatusCorrect Status = "correct"
	StatusWrong   Status = "wrong"
	StatusSkipped Status = "skipped"
)

// Evaluation is the marking of one eligible question.
type Evaluation struct {
	Question model.Question
	Selected int
	Answered bool
	Status   Status
	Delta    float64
}

// Outcome is the full result of scoring one answer map.
type Outcome struct {
	model.Result
	Evaluations []Evaluation
}

// Score evaluates answers against questions using the exam's eligibility and
// marking rules. Score in the returned result is rounded to two places;
// accumulation is unrounded.
func Score(exam *model.Exam, questions []model.Question, answers map[string]int) Outcome {
	eligible := Eligible(exam, questions, answers)
	mark := DefaultMark(exam)
	penalty := Penalty(exam)

	var out Outcome
	var total float64
	out.Evaluations = make([]Evaluation, 0, len(eligible))

	for _, q := range eligible {
		ev := Evaluation{Question: q, Selected: model.NoAnswer}
		sel, ok := recorded(answers, q.ID)
		switch {
		case !ok:
			ev.Status = StatusSkipped
			out.Unattempted++
		case q.Answer >= 0 && sel == q.Answer:
			ev.Selected, ev.Answered = sel, true
			ev.Status = StatusCorrect
			ev.Delta = questionMark(q, mark)
			out.Correct++
		default:
			ev.Selected, ev.Answered = sel, true
			ev.Status = StatusWrong
			ev.Delta = -penalty
			out.Wrong++
		}
		total += ev.Delta
		out.Evaluations = append(out.Evaluations, ev)
	}

	out.ValidQuestionCount = len(eligible)
	out.Score = RoundScore(total)
	return out
}

// Eligible filters questions down to those that count toward the score.
//
// Without subject configuration every question counts. Otherwise questions of
// a mandatory subject count, questions of an optional subject count only when
// at least one of that subject's questions was answered, and questions
// matching no configured subject count.
func Eligible(exam *model.Exam, questions []model.Question, answers map[string]int) []model.Question {
	if !exam.HasSubjectConfig() {
		return questions
	}

	attempted := make(map[string]bool, len(exam.OptionalSubjects))
	for _, q := range questions {
		if _, ok := recorded(answers, q.ID); !ok {
			continue
		}
		if opt, ok := matchOptional(exam, q.Subject); ok {
			attempted[opt] = true
		}
	}

	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if matchMandatory(exam, q.Subject) {
			out = append(out, q)
			continue
		}
		if opt, ok := matchOptional(exam, q.Subject); ok {
			if attempted[opt] {
				out = append(out, q)
			}
			continue
		}
		out = append(out, q)
	}
	return out
}

// DefaultMark is the exam-wide mark per question; 1 when unset or NaN.
func DefaultMark(exam *model.Exam) float64 {
	if exam.MarksPerQuestion == nil || !finite(*exam.MarksPerQuestion) {
		return 1
	}
	return *exam.MarksPerQuestion
}

// Penalty is the deduction per wrong answer; 0 when unset or NaN. A negative
// configured value is read as its magnitude.
func Penalty(exam *model.Exam) float64 {
	if exam.NegativeMarksPerWrong == nil || !finite(*exam.NegativeMarksPerWrong) {
		return 0
	}
	return math.Abs(*exam.NegativeMarksPerWrong)
}

// RoundScore rounds to two decimal places for display and persistence.
func RoundScore(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // no negative zero
	}
	return r
}

func questionMark(q model.Question, fallback float64) float64 {
	if q.MarksOverride != nil && finite(*q.MarksOverride) {
		return *q.MarksOverride
	}
	return fallback
}

// recorded returns the student's selection; negative values are not answers.
func recorded(answers map[string]int, id string) (int, bool) {
	sel, ok := answers[id]
	if !ok || sel < 0 {
		return 0, false
	}
	return sel, true
}

func matchMandatory(exam *model.Exam, label string) bool {
	for _, s := range exam.MandatorySubjects {
		if s.Matches(label) {
			return true
		}
	}
	return false
}

func matchOptional(exam *model.Exam, label string) (string, bool) {
	for _, s := range exam.OptionalSubjects {
		if s.Matches(label) {
			return s.ID, true
		}
	}
	return "", false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Package review rebuilds the result view of a finished attempt.
package review

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/scoring"
)

// Filter narrows the answer-review list.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterCorrect Filter = "correct"
	FilterWrong   Filter = "wrong"
	FilterSkipped Filter = "skipped"
)

// ParseFilter reads a filter name; empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterCorrect, FilterWrong, FilterSkipped:
		return f, nil
	default:
		return "", fmt.Errorf("unknown review filter %q", s)
	}
}

// ScoreSource tells where the displayed score came from.
type ScoreSource string

const (
	ScorePersisted  ScoreSource = "persisted"
	ScoreRecomputed ScoreSource = "recomputed"
)

// Item is one eligible question in the answer-review list.
type Item struct {
	Question    model.Question `json:"question"`
	Selected    int            `json:"selected"`
	Status      scoring.Status `json:"status"`
	MarksDelta  float64        `json:"marks_delta"`
	Explanation string         `json:"explanation,omitempty"`
}

// Review is the reconciled result of an attempt.
type Review struct {
	Summary     model.Result `json:"summary"`
	Recomputed  float64      `json:"recomputed_score"`
	ScoreSource ScoreSource  `json:"score_source"`
	Items       []Item       `json:"items"`
}

// Reconcile recomputes the breakdown from the recorded answers with the same
// rules used at submit. A persisted score, when present, replaces the
// recomputed one in the summary.
func Reconcile(exam *model.Exam, questions []model.Question, answers map[string]int, persisted *model.Result) Review {
	out := scoring.Score(exam, questions, answers)

	rv := Review{
		Summary:     out.Result,
		Recomputed:  out.Score,
		ScoreSource: ScoreRecomputed,
		Items:       make([]Item, len(out.Evaluations)),
	}
	if persisted != nil {
		rv.Summary.Score = persisted.Score
		rv.ScoreSource = ScorePersisted
	}

	for i, ev := range out.Evaluations {
		rv.Items[i] = Item{
			Question:    ev.Question,
			Selected:    ev.Selected,
			Status:      ev.Status,
			MarksDelta:  ev.Delta,
			Explanation: ev.Question.Explanation,
		}
	}
	return rv
}

// Apply returns the items matching f, preserving order.
func (r Review) Apply(f Filter) []Item {
	if f == FilterAll || f == "" {
		return r.Items
	}
	want := scoring.Status(f)
	out := make([]Item, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Status == want {
			out = append(out, it)
		}
	}
	return out
}

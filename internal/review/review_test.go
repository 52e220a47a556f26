package review

import (
	"testing"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/scoring"
)

func ptr(f float64) *float64 { return &f }

func fixture() (*model.Exam, []model.Question, map[string]int) {
	exam := &model.Exam{
		TotalSubjects:         2,
		NegativeMarksPerWrong: ptr(0.25),
		MandatorySubjects:     []model.SubjectConfig{{ID: "phy"}},
		OptionalSubjects:      []model.SubjectConfig{{ID: "chem"}, {ID: "bio"}},
	}
	questions := []model.Question{
		{ID: "p1", Subject: "Physics", Options: []string{"a", "b"}, Answer: 0, Explanation: "because"},
		{ID: "p2", Subject: "Physics", Options: []string{"a", "b"}, Answer: 1},
		{ID: "p3", Subject: "Physics", Options: []string{"a", "b"}, Answer: 1},
		{ID: "c1", Subject: "Chemistry", Options: []string{"a", "b"}, Answer: 0},
		{ID: "b1", Subject: "Biology", Options: []string{"a", "b"}, Answer: 0},
	}
	answers := map[string]int{"p1": 0, "p2": 0, "c1": 0}
	return exam, questions, answers
}

func TestReconcileRecomputes(t *testing.T) {
	exam, questions, answers := fixture()

	rv := Reconcile(exam, questions, answers, nil)

	want := model.Result{Correct: 2, Wrong: 1, Unattempted: 1, Score: 1.75, ValidQuestionCount: 4}
	if rv.Summary != want {
		t.Fatalf("summary = %+v, want %+v", rv.Summary, want)
	}
	if rv.ScoreSource != ScoreRecomputed {
		t.Fatalf("score source = %s", rv.ScoreSource)
	}
	if len(rv.Items) != 4 {
		t.Fatalf("items = %d, want 4 (biology excluded)", len(rv.Items))
	}
	if rv.Items[0].Explanation != "because" {
		t.Errorf("explanation not carried: %+v", rv.Items[0])
	}
}

func TestReconcilePrefersPersistedScore(t *testing.T) {
	exam, questions, answers := fixture()

	// An admin adjusted the score and the stored counts went stale.
	persisted := &model.Result{Correct: 9, Wrong: 9, Score: 3}
	rv := Reconcile(exam, questions, answers, persisted)

	if rv.Summary.Score != 3 || rv.ScoreSource != ScorePersisted {
		t.Fatalf("expected persisted score 3, got %v (%s)", rv.Summary.Score, rv.ScoreSource)
	}
	if rv.Summary.Correct != 2 || rv.Summary.Wrong != 1 {
		t.Fatalf("breakdown must be recomputed, got %+v", rv.Summary)
	}
	if rv.Recomputed != 1.75 {
		t.Fatalf("recomputed = %v, want 1.75", rv.Recomputed)
	}
}

func TestApplyFilters(t *testing.T) {
	exam, questions, answers := fixture()
	rv := Reconcile(exam, questions, answers, nil)

	tests := []struct {
		filter Filter
		want   []string
	}{
		{filter: FilterAll, want: []string{"p1", "p2", "p3", "c1"}},
		{filter: FilterCorrect, want: []string{"p1", "c1"}},
		{filter: FilterWrong, want: []string{"p2"}},
		{filter: FilterSkipped, want: []string{"p3"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.filter), func(t *testing.T) {
			got := rv.Apply(tc.filter)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d items, want %d", len(got), len(tc.want))
			}
			for i, it := range got {
				if it.Question.ID != tc.want[i] {
					t.Fatalf("item %d = %s, want %s", i, it.Question.ID, tc.want[i])
				}
			}
		})
	}
}

func TestApplyNeverShowsIneligible(t *testing.T) {
	exam, questions, answers := fixture()
	rv := Reconcile(exam, questions, answers, nil)

	for _, it := range rv.Apply(FilterSkipped) {
		if it.Question.ID == "b1" {
			t.Fatal("unselected optional question listed as skipped")
		}
	}
}

func TestItemStatusMatchesScoring(t *testing.T) {
	exam, questions, answers := fixture()
	rv := Reconcile(exam, questions, answers, nil)
	out := scoring.Score(exam, questions, answers)

	for i, it := range rv.Items {
		if it.Status != out.Evaluations[i].Status {
			t.Fatalf("item %s status %s, scoring says %s", it.Question.ID, it.Status, out.Evaluations[i].Status)
		}
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{in: "", want: FilterAll},
		{in: "Wrong", want: FilterWrong},
		{in: " skipped ", want: FilterSkipped},
		{in: "bogus", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseFilter(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFilter(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseFilter(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

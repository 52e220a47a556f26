package selection

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/scoring"
)

func q(id, subject string) model.Question {
	return model.Question{ID: id, Subject: subject, Options: []string{"a", "b"}, Answer: 0}
}

func ids(qs []model.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

// reverser is a deterministic Shuffler that reverses the slice.
type reverser struct{}

func (reverser) Shuffle(n int, swap func(i, j int)) {
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		swap(i, j)
	}
}

func customExam() *model.Exam {
	return &model.Exam{
		TotalSubjects: 4,
		MandatorySubjects: []model.SubjectConfig{
			{ID: "A", Kind: model.SubjectMandatory},
			{ID: "B", Kind: model.SubjectMandatory},
		},
		OptionalSubjects: []model.SubjectConfig{
			{ID: "C", Kind: model.SubjectOptional},
			{ID: "D", Kind: model.SubjectOptional},
			{ID: "E", Kind: model.SubjectOptional},
		},
	}
}

func TestResolveConcatenationOrder(t *testing.T) {
	exam := customExam()
	bank := []model.Question{
		q("c1", "C"), q("a1", "A"), q("d1", "D"), q("b1", "B"),
		q("a2", "A"), q("c2", "C"), q("d2", "D"), q("e1", "E"),
	}

	res := Resolve(exam, bank, []string{"D", "C"}, nil)

	wantIDs := []string{"a1", "a2", "b1", "d1", "d2", "c1", "c2"}
	if got := ids(res.Questions); !reflect.DeepEqual(got, wantIDs) {
		t.Fatalf("question order = %v, want %v", got, wantIDs)
	}
	if want := []string{"A", "B", "D", "C"}; !reflect.DeepEqual(res.SubjectOrder, want) {
		t.Fatalf("subject order = %v, want %v", res.SubjectOrder, want)
	}
}

func TestResolveOmitsEmptySubjects(t *testing.T) {
	exam := customExam()
	bank := []model.Question{q("a1", "A"), q("c1", "C")}

	res := Resolve(exam, bank, []string{"D", "C"}, nil)

	if want := []string{"A", "C"}; !reflect.DeepEqual(res.SubjectOrder, want) {
		t.Fatalf("subject order = %v, want %v", res.SubjectOrder, want)
	}
}

func TestResolvePinnedQuestionsInBankOrder(t *testing.T) {
	exam := &model.Exam{
		TotalSubjects: 1,
		MandatorySubjects: []model.SubjectConfig{
			{ID: "phy", QuestionIDs: []string{"q9", "q1", "q5"}, Count: 1},
		},
	}
	bank := []model.Question{
		q("q1", "Chemistry"), q("q2", "Physics"), q("q5", ""), q("q9", "Physics"),
	}

	res := Resolve(exam, bank, nil, nil)

	// Pinned ids ignore the bank tag and are never truncated by count.
	if want := []string{"q1", "q5", "q9"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("got %v, want %v", ids(res.Questions), want)
	}
	for _, got := range res.Questions {
		if got.Subject != "Physics" {
			t.Errorf("question %s labelled %q, want Physics", got.ID, got.Subject)
		}
	}
}

func TestResolveMatchesIDOrDisplayName(t *testing.T) {
	exam := &model.Exam{
		TotalSubjects: 1,
		MandatorySubjects: []model.SubjectConfig{
			{ID: "chem", Name: "Chem Paper"},
		},
	}
	bank := []model.Question{
		q("1", "chem"), q("2", "Chemistry"), q("3", "chem paper"), q("4", "Physics"),
	}

	res := Resolve(exam, bank, nil, nil)

	if want := []string{"1", "2", "3"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("got %v, want %v", ids(res.Questions), want)
	}
	for _, got := range res.Questions {
		if got.Subject != "Chem Paper" {
			t.Errorf("question %s labelled %q, want Chem Paper", got.ID, got.Subject)
		}
	}
	if bank[1].Subject != "Chemistry" {
		t.Errorf("bank question was mutated: %q", bank[1].Subject)
	}
}

func TestResolveTruncatesToCount(t *testing.T) {
	exam := &model.Exam{
		TotalSubjects:     1,
		MandatorySubjects: []model.SubjectConfig{{ID: "A", Count: 2}},
	}
	bank := []model.Question{q("1", "A"), q("2", "A"), q("3", "A"), q("4", "A")}

	res := Resolve(exam, bank, nil, nil)
	if want := []string{"1", "2"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("unshuffled truncation = %v, want prefix %v", ids(res.Questions), want)
	}

	exam.ShuffleQuestions = true
	res = Resolve(exam, bank, nil, reverser{})
	if want := []string{"4", "3"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("shuffled truncation = %v, want %v", ids(res.Questions), want)
	}
}

func TestResolveSkipsQuestionsAlreadyTaken(t *testing.T) {
	exam := &model.Exam{
		TotalSubjects: 2,
		MandatorySubjects: []model.SubjectConfig{
			{ID: "A", QuestionIDs: []string{"x"}},
			{ID: "B"},
		},
	}
	bank := []model.Question{q("x", "B"), q("y", "B")}

	res := Resolve(exam, bank, nil, nil)

	if want := []string{"x", "y"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("got %v, want %v", ids(res.Questions), want)
	}
	if res.Questions[0].Subject != "A" {
		t.Errorf("first subject should own x, got %q", res.Questions[0].Subject)
	}
}

func TestResolveShuffleIgnoredWhenDisabled(t *testing.T) {
	exam := &model.Exam{}
	bank := []model.Question{q("1", "A"), q("2", "A")}

	res := Resolve(exam, bank, nil, reverser{})
	if want := []string{"1", "2"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("got %v, want %v", ids(res.Questions), want)
	}
}

func TestResolveFlatShufflesWithinGroups(t *testing.T) {
	exam := &model.Exam{ShuffleQuestions: true}
	bank := []model.Question{
		q("p1", "Physics"), q("c1", "Chemistry"), q("p2", "Physics"), q("c2", "Chemistry"), q("p3", "Physics"),
	}

	res := Resolve(exam, bank, nil, reverser{})

	if want := []string{"p3", "p2", "p1", "c2", "c1"}; !reflect.DeepEqual(ids(res.Questions), want) {
		t.Fatalf("got %v, want %v", ids(res.Questions), want)
	}
	if want := []string{"Physics", "Chemistry"}; !reflect.DeepEqual(res.SubjectOrder, want) {
		t.Fatalf("subject order = %v, want %v", res.SubjectOrder, want)
	}
}

func TestResolveFlatRandomKeepsGroupsContiguous(t *testing.T) {
	exam := &model.Exam{ShuffleQuestions: true}
	var bank []model.Question
	for i := 0; i < 20; i++ {
		subject := "Physics"
		if i%2 == 1 {
			subject = "Chemistry"
		}
		bank = append(bank, q(string(rune('a'+i)), subject))
	}

	res := Resolve(exam, bank, nil, rand.New(rand.NewSource(7)))

	if len(res.Questions) != len(bank) {
		t.Fatalf("expected %d questions, got %d", len(bank), len(res.Questions))
	}
	for i := 0; i < 10; i++ {
		if res.Questions[i].Subject != "Physics" || res.Questions[i+10].Subject != "Chemistry" {
			t.Fatalf("subjects interleaved: %v", res.Questions)
		}
	}
}

func TestValidateChoices(t *testing.T) {
	exam := customExam()
	tests := []struct {
		name    string
		choices []string
		wantErr bool
	}{
		{name: "exact", choices: []string{"D", "C"}},
		{name: "too few", choices: []string{"C"}, wantErr: true},
		{name: "too many", choices: []string{"C", "D", "E"}, wantErr: true},
		{name: "duplicate", choices: []string{"C", "C"}, wantErr: true},
		{name: "mandatory id", choices: []string{"A", "C"}, wantErr: true},
		{name: "unknown", choices: []string{"Z", "C"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateChoices(exam, tc.choices)
			if tc.wantErr && !errors.Is(err, ErrInvalidChoices) {
				t.Fatalf("expected ErrInvalidChoices, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateChoicesNoneRequired(t *testing.T) {
	exam := &model.Exam{TotalSubjects: 1, MandatorySubjects: []model.SubjectConfig{{ID: "A"}}}
	if err := ValidateChoices(exam, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveForReviewFollowsRecordedOrder(t *testing.T) {
	exam := customExam()
	exam.OptionalSubjects[0].Count = 1
	bank := []model.Question{q("c1", "C"), q("c2", "C"), q("a1", "A")}

	order := []model.QuestionRef{{ID: "c2"}, {ID: "a1"}, {ID: "gone"}}

	got := ResolveForReview(exam, bank, order)

	if want := []string{"c2", "a1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
	if got[0].Subject != "C" {
		t.Errorf("expected rewritten label C, got %q", got[0].Subject)
	}
}

func TestResolveForReviewKeepsRecordedLabels(t *testing.T) {
	exam := customExam()
	bank := []model.Question{q("c1", "C"), q("x1", "unknown")}
	order := []model.QuestionRef{{ID: "c1", Subject: "D"}, {ID: "x1", Subject: "E"}}

	got := ResolveForReview(exam, bank, order)

	if len(got) != 2 || got[0].Subject != "D" || got[1].Subject != "E" {
		t.Fatalf("got %+v, want labels D and E", got)
	}
}

// A truncated mandatory pool leaves p3 to an optional subject that pins it.
// Review must label p3 the way the attempt did.
func TestReviewScoresMatchSubmit(t *testing.T) {
	exam := &model.Exam{
		TotalSubjects:     2,
		MandatorySubjects: []model.SubjectConfig{{ID: "phy", Name: "Physics", Count: 2}},
		OptionalSubjects: []model.SubjectConfig{
			{ID: "bonus", Name: "Bonus", QuestionIDs: []string{"p3"}},
			{ID: "che", Name: "Chemistry"},
		},
	}
	bank := []model.Question{q("p1", "Physics"), q("p2", "Physics"), q("p3", "Physics"), q("c1", "Chemistry")}

	tests := []struct {
		name    string
		choices []string
		answers map[string]int
	}{
		{name: "pinned optional untouched", choices: []string{"bonus"}, answers: map[string]int{"p1": 0, "p2": 1}},
		{name: "pinned optional answered", choices: []string{"bonus"}, answers: map[string]int{"p1": 0, "p3": 1}},
		{name: "other optional", choices: []string{"che"}, answers: map[string]int{"p2": 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(exam, bank, tc.choices, nil)
			shape := model.AttemptShape{Questions: res.Questions}

			reviewed := ResolveForReview(exam, bank, shape.QuestionOrder())

			if len(reviewed) != len(res.Questions) {
				t.Fatalf("review has %d questions, submit had %d", len(reviewed), len(res.Questions))
			}
			for i := range res.Questions {
				if reviewed[i].ID != res.Questions[i].ID || reviewed[i].Subject != res.Questions[i].Subject {
					t.Fatalf("question %d: submit %s/%s review %s/%s", i,
						res.Questions[i].ID, res.Questions[i].Subject, reviewed[i].ID, reviewed[i].Subject)
				}
			}
			submit := scoring.Score(exam, res.Questions, tc.answers)
			again := scoring.Score(exam, reviewed, tc.answers)
			if submit.Result != again.Result {
				t.Errorf("submit = %+v, review = %+v", submit, again)
			}
		})
	}
}

func TestResolveForReviewWithoutOrder(t *testing.T) {
	exam := customExam()
	bank := []model.Question{q("e1", "E"), q("a1", "A"), q("c1", "C")}

	got := ResolveForReview(exam, bank, nil)

	if want := []string{"a1", "c1", "e1"}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
}

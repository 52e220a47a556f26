// Package selection builds the ordered question list of an attempt from an
// exam's subject configuration and the student's optional choices.
package selection

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// ErrInvalidChoices is returned when optional subject choices do not satisfy
// the exam's subject rules.
var ErrInvalidChoices = errors.New("invalid optional subject choices")

// Shuffler permutes n elements in place. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Resolution is the materialized question sequence of an attempt.
type Resolution struct {
	Questions    []model.Question
	SubjectOrder []string
}

// ValidateChoices checks that exactly OptionalPickCount distinct optional
// subject ids were chosen.
func ValidateChoices(exam *model.Exam, choices []string) error {
	want := exam.OptionalPickCount()
	if len(choices) != want {
		return fmt.Errorf("%w: expected %d optional subjects, got %d", ErrInvalidChoices, want, len(choices))
	}

	optional := make(map[string]bool, len(exam.OptionalSubjects))
	for _, s := range exam.OptionalSubjects {
		optional[s.ID] = true
	}

	seen := make(map[string]bool, len(choices))
	for _, id := range choices {
		if !optional[id] {
			return fmt.Errorf("%w: %q is not an optional subject", ErrInvalidChoices, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: %q chosen twice", ErrInvalidChoices, id)
		}
		seen[id] = true
	}
	return nil
}

// SelectedSubjects lists subject ids in attempt order: mandatory subjects in
// configured order, then the chosen optional ones in choice order.
func SelectedSubjects(exam *model.Exam, choices []string) []string {
	out := make([]string, 0, len(exam.MandatorySubjects)+len(choices))
	for _, s := range exam.MandatorySubjects {
		out = append(out, s.ID)
	}
	return append(out, choices...)
}

// Resolve materializes the question list for a new attempt. choices are
// assumed valid. A nil shuffler disables shuffling.
func Resolve(exam *model.Exam, bank []model.Question, choices []string, shuffler Shuffler) Resolution {
	if !exam.ShuffleQuestions {
		shuffler = nil
	}
	if !exam.IsCustom() {
		return resolveFlat(bank, shuffler)
	}
	return resolveSubjects(exam, bank, SelectedSubjects(exam, choices), shuffler, true)
}

// ResolveForReview rebuilds the labelled question list of a past attempt.
// A recorded order is followed exactly and its subject labels are reused, so
// review scores every question under the subject it was submitted with.
// Entries recorded without a label take the label of the exam's subject
// configuration and are dropped when no subject claims them. Without a
// recorded order every subject is treated as selected, leaving optional
// subjects to the scoring eligibility filter.
func ResolveForReview(exam *model.Exam, bank []model.Question, order []model.QuestionRef) []model.Question {
	if len(order) == 0 {
		if !exam.IsCustom() {
			return resolveFlat(bank, nil).Questions
		}
		return resolveSubjects(exam, bank, allSubjects(exam), nil, true).Questions
	}

	byID := make(map[string]model.Question, len(bank))
	for _, q := range bank {
		if _, ok := byID[q.ID]; !ok {
			byID[q.ID] = q
		}
	}

	var configured map[string]string
	out := make([]model.Question, 0, len(order))
	for _, ref := range order {
		q, ok := byID[ref.ID]
		if !ok {
			continue
		}
		switch {
		case ref.Subject != "":
			q.Subject = ref.Subject
		case exam.IsCustom():
			if configured == nil {
				configured = configuredLabels(exam, bank)
			}
			label, ok := configured[q.ID]
			if !ok {
				continue
			}
			q.Subject = label
		}
		out = append(out, q)
	}
	return out
}

// configuredLabels maps question ids to the label the exam's subject
// configuration gives them when every subject is selected.
func configuredLabels(exam *model.Exam, bank []model.Question) map[string]string {
	labelled := resolveSubjects(exam, bank, allSubjects(exam), nil, false).Questions
	out := make(map[string]string, len(labelled))
	for _, q := range labelled {
		if _, ok := out[q.ID]; !ok {
			out[q.ID] = q.Subject
		}
	}
	return out
}

func allSubjects(exam *model.Exam) []string {
	ids := make([]string, 0, len(exam.MandatorySubjects)+len(exam.OptionalSubjects))
	for _, s := range exam.MandatorySubjects {
		ids = append(ids, s.ID)
	}
	for _, s := range exam.OptionalSubjects {
		ids = append(ids, s.ID)
	}
	return ids
}

func resolveSubjects(exam *model.Exam, bank []model.Question, subjectIDs []string, shuffler Shuffler, truncate bool) Resolution {
	var res Resolution
	taken := make(map[string]bool)
	seenLabel := make(map[string]bool)

	for _, id := range subjectIDs {
		cfg, ok := exam.FindSubject(id)
		if !ok {
			continue
		}

		slice := subjectSlice(cfg, bank, taken)
		if shuffler != nil && len(slice) > 1 {
			shuffler.Shuffle(len(slice), func(i, j int) { slice[i], slice[j] = slice[j], slice[i] })
		}
		if truncate && len(cfg.QuestionIDs) == 0 && cfg.Count > 0 && len(slice) > cfg.Count {
			slice = slice[:cfg.Count]
		}
		if len(slice) == 0 {
			continue
		}

		label := cfg.DisplayName()
		for i := range slice {
			slice[i].Subject = label
			taken[slice[i].ID] = true
		}
		if !seenLabel[label] {
			seenLabel[label] = true
			res.SubjectOrder = append(res.SubjectOrder, label)
		}
		res.Questions = append(res.Questions, slice...)
	}
	return res
}

// subjectSlice copies the bank questions of one subject in bank order.
// Pinned ids take priority over label matching.
func subjectSlice(cfg model.SubjectConfig, bank []model.Question, taken map[string]bool) []model.Question {
	var out []model.Question
	if len(cfg.QuestionIDs) > 0 {
		pinned := make(map[string]bool, len(cfg.QuestionIDs))
		for _, id := range cfg.QuestionIDs {
			pinned[id] = true
		}
		for _, q := range bank {
			if pinned[q.ID] && !taken[q.ID] {
				out = append(out, q)
				delete(pinned, q.ID)
			}
		}
		return out
	}

	for _, q := range bank {
		if !taken[q.ID] && cfg.Matches(q.Subject) {
			out = append(out, q)
		}
	}
	return out
}

// resolveFlat keeps every question. Shuffling happens inside each subject
// group; groups stay in first-seen order.
func resolveFlat(bank []model.Question, shuffler Shuffler) Resolution {
	var res Resolution
	groups := make(map[string][]model.Question)
	for _, q := range bank {
		if _, ok := groups[q.Subject]; !ok {
			res.SubjectOrder = append(res.SubjectOrder, q.Subject)
		}
		groups[q.Subject] = append(groups[q.Subject], q)
	}

	if shuffler == nil {
		res.Questions = append([]model.Question(nil), bank...)
	} else {
		res.Questions = make([]model.Question, 0, len(bank))
		for _, label := range res.SubjectOrder {
			group := groups[label]
			shuffler.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
			res.Questions = append(res.Questions, group...)
		}
	}

	order := res.SubjectOrder[:0]
	for _, label := range res.SubjectOrder {
		if label != "" {
			order = append(order, label)
		}
	}
	res.SubjectOrder = order
	return res
}

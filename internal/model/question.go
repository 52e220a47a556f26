package model

import "github.com/google/uuid"

// NoAnswer is the canonical answer index of a question whose correct option
// could not be resolved. It never matches a selection.
const NoAnswer = -1

// MaxLegacyOptions is the number of positional option columns older banks use.
const MaxLegacyOptions = 5

// Question is the canonical shape every bank record is normalized into.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	Answer        int      `json:"answer"`
	Subject       string   `json:"subject,omitempty"`
	MarksOverride *float64 `json:"marks_override,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Images        []string `json:"images,omitempty"`
}

// HasValidAnswer reports whether Answer points at one of the options.
func (q Question) HasValidAnswer() bool {
	return q.Answer >= 0 && q.Answer < len(q.Options)
}

// ForStudent strips the answer key and explanation from a question.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:      q.ID,
		Text:    q.Text,
		Options: q.Options,
		Subject: q.Subject,
		Marks:   q.MarksOverride,
		Images:  q.Images,
	}
}

// QuestionForStudent is a question without the correct answer, sent to students
// while an attempt is running.
type QuestionForStudent struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Subject string   `json:"subject,omitempty"`
	Marks   *float64 `json:"marks,omitempty"`
	Images  []string `json:"images,omitempty"`
}

// RawQuestion is a bank record as it arrives from storage or an import file.
// Options, Answer, Marks and Images come in several encodings and are only
// interpreted by the question normalizer.
type RawQuestion struct {
	ID          string `json:"id"`
	SetID       string `json:"set_id,omitempty"`
	Text        string `json:"question"`
	Options     any    `json:"options,omitempty"`
	Option1     string `json:"option_1,omitempty"`
	Option2     string `json:"option_2,omitempty"`
	Option3     string `json:"option_3,omitempty"`
	Option4     string `json:"option_4,omitempty"`
	Option5     string `json:"option_5,omitempty"`
	Answer      any    `json:"answer"`
	Subject     string `json:"subject,omitempty"`
	Marks       any    `json:"marks,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Images      any    `json:"images,omitempty"`
	OrderNum    int    `json:"order_num,omitempty"`
}

// LegacyOptions returns the positional option columns in order.
func (r RawQuestion) LegacyOptions() [MaxLegacyOptions]string {
	return [MaxLegacyOptions]string{r.Option1, r.Option2, r.Option3, r.Option4, r.Option5}
}

// BankCriteria selects a slice of the question bank. IDs win over SetID,
// SetID wins over ExamID. An empty criteria selects nothing.
type BankCriteria struct {
	SetID  string     `json:"set_id,omitempty"`
	ExamID *uuid.UUID `json:"exam_id,omitempty"`
	IDs    []string   `json:"ids,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (c BankCriteria) IsEmpty() bool {
	return c.SetID == "" && c.ExamID == nil && len(c.IDs) == 0
}

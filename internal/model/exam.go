package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubjectKind tells whether a subject section is required or elective.
type SubjectKind string

const (
	SubjectMandatory SubjectKind = "mandatory"
	SubjectOptional  SubjectKind = "optional"
)

// AttemptPolicy limits how many times a student may sit a live exam.
type AttemptPolicy string

const (
	AttemptsOneTime  AttemptPolicy = "one_time"
	AttemptsMultiple AttemptPolicy = "multiple"
)

// ExamMode is how an exam is presented to students.
type ExamMode string

const (
	ExamModeLive     ExamMode = "live"
	ExamModePractice ExamMode = "practice"
)

// SubjectConfig is one section of a subject-structured exam.
type SubjectConfig struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Count       int         `json:"count,omitempty"`
	QuestionIDs []string    `json:"question_ids,omitempty"`
	Kind        SubjectKind `json:"kind,omitempty"`
}

// DisplayName is the label questions of this subject are grouped under:
// the configured name, else the known name of the id code, else the raw id.
func (s SubjectConfig) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	if name, ok := LookupSubjectCode(s.ID); ok {
		return name
	}
	return strings.TrimSpace(s.ID)
}

// Matches reports whether a subject label refers to this section.
func (s SubjectConfig) Matches(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return false
	}
	if strings.EqualFold(label, strings.TrimSpace(s.ID)) || strings.EqualFold(label, s.DisplayName()) {
		return true
	}
	if name, ok := LookupSubjectCode(s.ID); ok && strings.EqualFold(label, name) {
		return true
	}
	return false
}

// Exam is the configuration of one assessable unit.
type Exam struct {
	ID                    uuid.UUID         `json:"id"`
	Title                 string            `json:"title"`
	BatchID               *uuid.UUID        `json:"batch_id,omitempty"`
	DurationMinutes       int               `json:"duration_minutes"`
	MarksPerQuestion      *float64          `json:"marks_per_question,omitempty"`
	NegativeMarksPerWrong *float64          `json:"negative_marks_per_wrong,omitempty"`
	IsPractice            bool              `json:"is_practice"`
	StartAt               *time.Time        `json:"start_at,omitempty"`
	EndAt                 *time.Time        `json:"end_at,omitempty"`
	MandatorySubjects     []SubjectConfig   `json:"mandatory_subjects,omitempty"`
	OptionalSubjects      []SubjectConfig   `json:"optional_subjects,omitempty"`
	TotalSubjects         int               `json:"total_subjects,omitempty"`
	NumberOfAttempts      AttemptPolicy     `json:"number_of_attempts"`
	ShuffleQuestions      bool              `json:"shuffle_questions"`
	QuestionSetID         string            `json:"question_set_id,omitempty"`
	SubjectNames          map[string]string `json:"subject_names,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// IsCustom reports whether students pick subjects before the timer starts.
func (e *Exam) IsCustom() bool {
	return e.TotalSubjects > 0
}

// HasSubjectConfig reports whether any subject section is configured.
func (e *Exam) HasSubjectConfig() bool {
	return len(e.MandatorySubjects) > 0 || len(e.OptionalSubjects) > 0
}

// OptionalPickCount is the number of optional subjects a student must choose.
func (e *Exam) OptionalPickCount() int {
	n := e.TotalSubjects - len(e.MandatorySubjects)
	if n < 0 {
		return 0
	}
	return n
}

// IsTimed reports whether attempts run against a deadline.
func (e *Exam) IsTimed() bool {
	return e.DurationMinutes > 0
}

// Duration returns the attempt length; zero for untimed exams.
func (e *Exam) Duration() time.Duration {
	if e.DurationMinutes <= 0 {
		return 0
	}
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Mode returns practice for practice exams and for live exams whose window
// has elapsed. Only IsPractice lets an attempt bypass the window.
func (e *Exam) Mode(now time.Time) ExamMode {
	if e.IsPractice {
		return ExamModePractice
	}
	if e.EndAt != nil && now.After(*e.EndAt) {
		return ExamModePractice
	}
	return ExamModeLive
}

// FindSubject looks a section up by id across mandatory and optional lists.
func (e *Exam) FindSubject(id string) (SubjectConfig, bool) {
	for _, s := range e.MandatorySubjects {
		if s.ID == id {
			return s, true
		}
	}
	for _, s := range e.OptionalSubjects {
		if s.ID == id {
			return s, true
		}
	}
	return SubjectConfig{}, false
}

// BankCriteria returns the bank filter this exam draws its questions from.
func (e *Exam) BankCriteria() BankCriteria {
	if e.QuestionSetID != "" {
		return BankCriteria{SetID: e.QuestionSetID}
	}
	id := e.ID
	return BankCriteria{ExamID: &id}
}

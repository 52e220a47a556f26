// Package question turns heterogeneous bank records into canonical questions.
//
// Every shape decision about raw records is made here; nothing downstream
// inspects RawQuestion.
package question

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// maxLetterIndex is the last option letter accepted as an answer key (H).
const maxLetterIndex = 7

// Normalize converts a raw record into a Question. It never fails: missing or
// unreadable fields degrade to empty values and model.NoAnswer.
// subjectNames holds exam-defined names keyed by subject id and may be nil.
func Normalize(raw model.RawQuestion, subjectNames map[string]string) model.Question {
	options := ResolveOptions(raw)
	return model.Question{
		ID:            strings.TrimSpace(raw.ID),
		Text:          strings.TrimSpace(raw.Text),
		Options:       options,
		Answer:        ResolveAnswer(raw.Answer, len(options)),
		Subject:       ResolveSubject(raw.Subject, subjectNames),
		MarksOverride: ResolveMarks(raw.Marks),
		Explanation:   strings.TrimSpace(raw.Explanation),
		Images:        resolveImages(raw.Images),
	}
}

// NormalizeAll normalizes a batch, preserving order.
func NormalizeAll(raws []model.RawQuestion, subjectNames map[string]string) []model.Question {
	out := make([]model.Question, len(raws))
	for i := range raws {
		out[i] = Normalize(raws[i], subjectNames)
	}
	return out
}

// ResolveAnswer maps an answer key to a zero-based option index.
//
// Non-negative integers are already indices. Digit strings are 1-based ("0"
// still maps to 0). A single letter A..H maps to 0..7. Anything else, and any
// index outside [0, optionCount), yields model.NoAnswer.
func ResolveAnswer(v any, optionCount int) int {
	idx := parseAnswer(v)
	if idx < 0 || idx >= optionCount {
		return model.NoAnswer
	}
	return idx
}

func parseAnswer(v any) int {
	switch t := v.(type) {
	case nil:
		return model.NoAnswer
	case int:
		return nonNegative(t)
	case int32:
		return nonNegative(int(t))
	case int64:
		return nonNegative(int(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return model.NoAnswer
		}
		return nonNegative(int(t))
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return model.NoAnswer
		}
		return nonNegative(int(n))
	case string:
		return parseAnswerString(t)
	default:
		return model.NoAnswer
	}
}

func parseAnswerString(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.NoAnswer
	}
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.NoAnswer
		}
		if n == 0 {
			return 0
		}
		return n - 1
	}
	if len(s) == 1 {
		c := s[0] | 0x20 // lower-case ASCII letters
		if c >= 'a' && c <= 'a'+maxLetterIndex {
			return int(c - 'a')
		}
	}
	return model.NoAnswer
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func nonNegative(n int) int {
	if n < 0 {
		return model.NoAnswer
	}
	return n
}

// ResolveOptions prefers an explicit, non-empty options list. Otherwise it
// collects the legacy positional fields, dropping blank ones; remaining
// options keep their relative order, so indices after a dropped field shift.
func ResolveOptions(raw model.RawQuestion) []string {
	if explicit := explicitOptions(raw.Options); len(explicit) > 0 {
		return explicit
	}
	legacy := raw.LegacyOptions()
	out := make([]string, 0, len(legacy))
	for _, opt := range legacy {
		if opt = strings.TrimSpace(opt); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}

func explicitOptions(v any) []string {
	var list []string
	switch t := v.(type) {
	case []string:
		list = t
	case []any:
		list = make([]string, len(t))
		for i, item := range t {
			list[i] = stringify(item)
		}
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "[") {
			return nil
		}
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			var items []any
			if err := json.Unmarshal([]byte(s), &items); err != nil {
				return nil
			}
			return explicitOptions(items)
		}
	default:
		return nil
	}

	out := make([]string, len(list))
	nonBlank := false
	for i, opt := range list {
		out[i] = strings.TrimSpace(opt)
		if out[i] != "" {
			nonBlank = true
		}
	}
	if !nonBlank {
		return nil
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// ResolveSubject maps a raw subject label to its display name. Exam-defined
// names keyed by id win over the built-in code table; unknown labels pass
// through trimmed.
func ResolveSubject(raw string, subjectNames map[string]string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if name, ok := subjectNames[raw]; ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	if name, ok := model.LookupSubjectCode(raw); ok {
		return name
	}
	return raw
}

// ResolveMarks reads a per-question mark override. Non-numeric, NaN and
// infinite values mean "no override".
func ResolveMarks(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case *float64:
		if t == nil {
			return nil
		}
		f = *t
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func resolveImages(v any) []string {
	switch t := v.(type) {
	case []string:
		return compact(t)
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		return compact(list)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var list []string
			if err := json.Unmarshal([]byte(s), &list); err == nil {
				return compact(list)
			}
			return nil
		}
		return []string{s}
	default:
		return nil
	}
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

package validator

import (
	"testing"

	govalidator "github.com/go-playground/validator/v10"
)

type answerBody struct {
	QuestionID string `json:"question_id" binding:"required,qid" validate:"required,qid"`
	Option     *int   `json:"option" validate:"required,min=0"`
}

func TestQuestionIDRule(t *testing.T) {
	v := govalidator.New()
	Register(v)

	zero := 0
	neg := -1
	tests := []struct {
		name   string
		body   answerBody
		fields []string
	}{
		{name: "valid", body: answerBody{QuestionID: "Physics-1", Option: &zero}},
		{name: "spaces", body: answerBody{QuestionID: "Physics 1", Option: &zero}, fields: []string{"question_id"}},
		{name: "missing option", body: answerBody{QuestionID: "q1"}, fields: []string{"option"}},
		{name: "negative option", body: answerBody{QuestionID: "q1", Option: &neg}, fields: []string{"option"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(tc.body)
			if len(tc.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			got := TranslateErrors(err)
			for _, f := range tc.fields {
				if got[f] == "" {
					t.Errorf("missing message for %q in %v", f, got)
				}
			}
		})
	}
}

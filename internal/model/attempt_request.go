package model

// StartAttemptRequest is the body of POST .../attempt/start.
type StartAttemptRequest struct {
	OptionalSubjects []string `json:"optional_subjects" binding:"omitempty,dive,required"`
}

// AnswerRequest records one selection.
type AnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,qid"`
	Option     *int   `json:"option" binding:"required,min=0"`
}

// ReviewRequest toggles the review mark of one question.
type ReviewRequest struct {
	QuestionID string `json:"question_id" binding:"required,qid"`
}

// PaginateRequest either steps one page or jumps to a subject tab.
type PaginateRequest struct {
	Direction string `json:"direction" binding:"required_without=Subject,omitempty,oneof=next prev"`
	Subject   *int   `json:"subject" binding:"omitempty,min=0"`
}

// ResultQuery filters the review list.
type ResultQuery struct {
	Filter string `form:"filter" binding:"omitempty,oneof=all correct wrong skipped"`
}

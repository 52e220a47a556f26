package model

import "github.com/google/uuid"

// Batch is a cohort of students that can own exams.
type Batch struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	IsPublic bool      `json:"is_public"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// TestDataset is an ordered list of questions bound to a workspace.
type TestDataset struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkspaceID uuid.UUID `json:"workspace_id" gorm:"type:uuid;index;not null"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Questions []TestQuestion `json:"questions,omitempty" gorm:"foreignKey:DatasetID;constraint:OnDelete:CASCADE"`
}

type TestQuestion struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DatasetID        uuid.UUID `json:"dataset_id" gorm:"type:uuid;index;not null"`
	QuestionIndex    int       `json:"question_index" gorm:"not null"`
	QuestionText     string    `json:"question_text" gorm:"not null"`
	ExpectedAnswer   *string   `json:"expected_answer,omitempty"`
	ContextReference *string   `json:"context_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type CreateDatasetRequest struct {
	WorkspaceID uuid.UUID `json:"workspace_id" binding:"required"`
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
}

type AddQuestionRequest struct {
	QuestionText     string  `json:"question_text" binding:"required"`
	ExpectedAnswer   *string `json:"expected_answer,omitempty"`
	ContextReference *string `json:"context_reference,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxUploadBytes caps a single document upload at 50 MiB.
const MaxUploadBytes = 50 << 20

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is one uploaded source file. Lifecycle:
// pending -> processing -> {completed | failed}, exactly once per ingestion
// attempt. Only pending and failed documents may be (re-)driven.
type Document struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkspaceID  uuid.UUID      `json:"workspace_id" gorm:"type:uuid;index;not null"`
	FileName     string         `json:"file_name" gorm:"not null"`
	ContentType  string         `json:"content_type" gorm:"not null"`
	SourcePath   string         `json:"-" gorm:"not null"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DocumentStatus `json:"status" gorm:"index;not null;default:'pending'"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	TotalChunks  int            `json:"total_chunks"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Chunk is a bounded span of a document's extracted text, immutable once
// written. ChunkIndex is 0-based and contiguous within a document.
type Chunk struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DocumentID uuid.UUID `json:"document_id" gorm:"type:uuid;index;not null"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null"`
	Text       string    `json:"text" gorm:"not null"`
	TokenCount int       `json:"token_count" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int64      `json:"total"`
}

// IsTerminal reports whether the document reached a final ingestion state.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is the configuration for an ingestion corpus. The embedding
// settings become immutable once the first document has been embedded:
// changing dimensions would invalidate every vector in the index.
type Workspace struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OwnerID            uuid.UUID `json:"owner_id" gorm:"type:uuid;index;not null"`
	Name               string    `json:"name" gorm:"not null"`
	EmbeddingProvider  string    `json:"embedding_provider" gorm:"not null"`
	EmbeddingModel     string    `json:"embedding_model" gorm:"not null"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	ChunkSize          int       `json:"chunk_size" gorm:"not null"`
	ChunkOverlap       int       `json:"chunk_overlap" gorm:"not null"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Documents []Document `json:"documents,omitempty" gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE"`
}

type CreateWorkspaceRequest struct {
	Name              string `json:"name" binding:"required"`
	EmbeddingProvider string `json:"embedding_provider" binding:"required"`
	EmbeddingModel    string `json:"embedding_model" binding:"required"`
	ChunkSize         int    `json:"chunk_size"`
	ChunkOverlap      int    `json:"chunk_overlap"`
}

type WorkspaceListResponse struct {
	Workspaces []Workspace `json:"workspaces"`
	Total      int64       `json:"total"`
}

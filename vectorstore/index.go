package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSchemaConflict is returned when an upsert's vector dimension differs
// from the dimension already established for the workspace.
var ErrSchemaConflict = errors.New("vector dimension conflicts with workspace index")

// Record is one chunk vector plus the metadata retrieval needs.
type Record struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// Match is one retrieval hit, scored by cosine similarity.
type Match struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Text       string
	Score      float64
}

// Index is a workspace-scoped vector store.
//
// Query results are ordered by descending score with ties broken by
// ascending (document_id, chunk_index), so identical inputs always produce
// identical result lists. Upsert is atomic per call: observers see either
// all records of the call or none.
type Index interface {
	Upsert(ctx context.Context, workspaceID uuid.UUID, records []Record) error
	Query(ctx context.Context, workspaceID uuid.UUID, embedding []float32, topK int, threshold *float64) ([]Match, error)
	DeleteWorkspace(ctx context.Context, workspaceID uuid.UUID) error
	DeleteDocument(ctx context.Context, workspaceID, documentID uuid.UUID) error
}

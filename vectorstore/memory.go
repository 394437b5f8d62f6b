package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process Index with the same ordering and dimension
// semantics as the Postgres implementation. It backs tests and single-node
// deployments without a vector database.
type MemoryIndex struct {
	mu         sync.RWMutex
	records    map[uuid.UUID]map[uuid.UUID]Record // workspace -> chunk -> record
	dimensions map[uuid.UUID]int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records:    map[uuid.UUID]map[uuid.UUID]Record{},
		dimensions: map[uuid.UUID]int{},
	}
}

func (m *MemoryIndex) Upsert(_ context.Context, workspaceID uuid.UUID, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim, ok := m.dimensions[workspaceID]
	if !ok {
		dim = len(records[0].Embedding)
	}
	for _, r := range records {
		if len(r.Embedding) != dim {
			return fmt.Errorf("%w: expected %d, got %d", ErrSchemaConflict, dim, len(r.Embedding))
		}
	}

	ws := m.records[workspaceID]
	if ws == nil {
		ws = map[uuid.UUID]Record{}
		m.records[workspaceID] = ws
	}
	for _, r := range records {
		ws[r.ChunkID] = r
	}
	m.dimensions[workspaceID] = dim
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, workspaceID uuid.UUID, embedding []float32, topK int, threshold *float64) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ws := m.records[workspaceID]
	if len(ws) == 0 {
		return nil, nil
	}
	if dim := m.dimensions[workspaceID]; len(embedding) != dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", ErrSchemaConflict, len(embedding), dim)
	}

	matches := make([]Match, 0, len(ws))
	for _, r := range ws {
		score := cosine(embedding, r.Embedding)
		if threshold != nil && score < *threshold {
			continue
		}
		matches = append(matches, Match{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Score:      score,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].DocumentID != matches[j].DocumentID {
			return matches[i].DocumentID.String() < matches[j].DocumentID.String()
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) DeleteWorkspace(_ context.Context, workspaceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, workspaceID)
	delete(m.dimensions, workspaceID)
	return nil
}

func (m *MemoryIndex) DeleteDocument(_ context.Context, workspaceID, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chunkID, r := range m.records[workspaceID] {
		if r.DocumentID == documentID {
			delete(m.records[workspaceID], chunkID)
		}
	}
	return nil
}

// Count reports the number of records stored for a workspace.
func (m *MemoryIndex) Count(workspaceID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[workspaceID])
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(doc uuid.UUID, idx int, text string, embedding ...float32) Record {
	return Record{
		ChunkID:    uuid.New(),
		DocumentID: doc,
		ChunkIndex: idx,
		Text:       text,
		Embedding:  embedding,
	}
}

func TestMemoryIndex_QueryOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws := uuid.New()
	doc := uuid.New()

	require.NoError(t, idx.Upsert(ctx, ws, []Record{
		rec(doc, 0, "exact", 1, 0, 0),
		rec(doc, 1, "close", 0.9, 0.1, 0),
		rec(doc, 2, "far", 0, 1, 0),
	}))

	matches, err := idx.Query(ctx, ws, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "exact", matches[0].Text)
	assert.Equal(t, "close", matches[1].Text)
	assert.Equal(t, "far", matches[2].Text)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestMemoryIndex_TieBreakByDocumentThenChunk(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws := uuid.New()

	docA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	docB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	// Identical vectors: every score ties.
	require.NoError(t, idx.Upsert(ctx, ws, []Record{
		rec(docB, 0, "b0", 1, 0),
		rec(docA, 1, "a1", 1, 0),
		rec(docA, 0, "a0", 1, 0),
	}))

	matches, err := idx.Query(ctx, ws, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"a0", "a1", "b0"}, []string{matches[0].Text, matches[1].Text, matches[2].Text})
}

func TestMemoryIndex_QueryDeterministic(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws := uuid.New()

	for d := 0; d < 3; d++ {
		doc := uuid.New()
		require.NoError(t, idx.Upsert(ctx, ws, []Record{
			rec(doc, 0, "x", 0.5, 0.5),
			rec(doc, 1, "y", 0.3, 0.7),
		}))
	}

	first, err := idx.Query(ctx, ws, []float32{0.4, 0.6}, 5, nil)
	require.NoError(t, err)
	second, err := idx.Query(ctx, ws, []float32{0.4, 0.6}, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMemoryIndex_TopKAndThreshold(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws := uuid.New()
	doc := uuid.New()

	require.NoError(t, idx.Upsert(ctx, ws, []Record{
		rec(doc, 0, "hit", 1, 0),
		rec(doc, 1, "mid", 0.7, 0.7),
		rec(doc, 2, "miss", 0, 1),
	}))

	matches, err := idx.Query(ctx, ws, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	threshold := 0.9
	matches, err = idx.Query(ctx, ws, []float32{1, 0}, 10, &threshold)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "hit", matches[0].Text)
}

func TestMemoryIndex_DimensionConflict(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws := uuid.New()
	doc := uuid.New()

	require.NoError(t, idx.Upsert(ctx, ws, []Record{rec(doc, 0, "a", 1, 0, 0)}))

	err := idx.Upsert(ctx, ws, []Record{rec(doc, 1, "b", 1, 0)})
	assert.ErrorIs(t, err, ErrSchemaConflict)

	// Mixed dimensions within one call fail too, atomically.
	other := uuid.New()
	err = idx.Upsert(ctx, other, []Record{rec(doc, 0, "a", 1, 0), rec(doc, 1, "b", 1, 0, 0)})
	assert.ErrorIs(t, err, ErrSchemaConflict)
	assert.Equal(t, 0, idx.Count(other))
}

func TestMemoryIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	ws := uuid.New()
	docA, docB := uuid.New(), uuid.New()

	require.NoError(t, idx.Upsert(ctx, ws, []Record{
		rec(docA, 0, "a0", 1, 0),
		rec(docB, 0, "b0", 0, 1),
	}))

	require.NoError(t, idx.DeleteDocument(ctx, ws, docA))
	matches, err := idx.Query(ctx, ws, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b0", matches[0].Text)

	require.NoError(t, idx.DeleteWorkspace(ctx, ws))
	assert.Equal(t, 0, idx.Count(ws))
}

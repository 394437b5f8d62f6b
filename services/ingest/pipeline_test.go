package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/providers"
	"github.com/ragbench/vectorstore"
)

// setupPipelineTest connects to the database named by TEST_DATABASE_DSN and
// skips the test when it is not set. These tests exercise the real status
// transitions, so they need Postgres rather than a mock.
func setupPipelineTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set, skipping pipeline integration test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Workspace{}, &models.Document{}, &models.Chunk{},
	))
	return db
}

func createTestDocument(t *testing.T, db *gorm.DB, content string, status models.DocumentStatus) (*models.Document, *models.Workspace) {
	t.Helper()

	ws := &models.Workspace{
		ID:                uuid.New(),
		OwnerID:           uuid.New(),
		Name:              "pipeline-test",
		EmbeddingProvider: providers.ProviderNameLocal,
		EmbeddingModel:    "feature-hash-384",
		ChunkSize:         64,
		ChunkOverlap:      8,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	require.NoError(t, db.Create(ws).Error)
	t.Cleanup(func() {
		db.Where("workspace_id = ?", ws.ID).Delete(&models.Document{})
		db.Delete(ws)
	})

	sourcePath := filepath.Join(t.TempDir(), "source.txt")
	require.NoError(t, os.WriteFile(sourcePath, []byte(content), 0o644))

	doc := &models.Document{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		FileName:    "source.txt",
		ContentType: "text/plain",
		SourcePath:  sourcePath,
		SizeBytes:   int64(len(content)),
		Status:      status,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, db.Create(doc).Error)
	t.Cleanup(func() {
		db.Where("document_id = ?", doc.ID).Delete(&models.Chunk{})
		db.Delete(doc)
	})
	return doc, ws
}

func TestPipeline_HappyPath(t *testing.T) {
	db := setupPipelineTest(t)
	index := vectorstore.NewMemoryIndex()
	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	pipeline := NewPipeline(db, index, registry)

	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 80)
	doc, _ := createTestDocument(t, db, content, models.DocumentStatusPending)

	claimed, ws, err := pipeline.Begin(context.Background(), doc.ID)
	require.NoError(t, err)
	pipeline.Run(context.Background(), claimed, ws)

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, models.DocumentStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
	assert.Greater(t, got.TotalChunks, 1)

	var chunkCount int64
	require.NoError(t, db.Model(&models.Chunk{}).Where("document_id = ?", doc.ID).Count(&chunkCount).Error)
	assert.Equal(t, int64(got.TotalChunks), chunkCount)
	assert.Equal(t, got.TotalChunks, index.Count(ws.ID))

	// Workspace dimension is pinned by the first embedding.
	var freshWs models.Workspace
	require.NoError(t, db.First(&freshWs, "id = ?", ws.ID).Error)
	assert.Equal(t, providers.LocalDimension, freshWs.EmbeddingDimension)
}

func TestPipeline_RejectsProcessingDocument(t *testing.T) {
	db := setupPipelineTest(t)
	pipeline := NewPipeline(db, vectorstore.NewMemoryIndex(), providers.NewRegistry(providers.Config{}, nil, nil))

	doc, _ := createTestDocument(t, db, "some text", models.DocumentStatusProcessing)

	_, _, err := pipeline.Begin(context.Background(), doc.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestPipeline_RejectsCompletedDocument(t *testing.T) {
	db := setupPipelineTest(t)
	pipeline := NewPipeline(db, vectorstore.NewMemoryIndex(), providers.NewRegistry(providers.Config{}, nil, nil))

	doc, _ := createTestDocument(t, db, "some text", models.DocumentStatusCompleted)

	_, _, err := pipeline.Begin(context.Background(), doc.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestPipeline_RedriveWipesPartialState(t *testing.T) {
	db := setupPipelineTest(t)
	index := vectorstore.NewMemoryIndex()
	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	pipeline := NewPipeline(db, index, registry)

	doc, ws := createTestDocument(t, db, "fresh text to ingest after a failure", models.DocumentStatusFailed)

	// Leftovers from the failed attempt.
	stale := models.Chunk{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		ChunkIndex: 0,
		Text:       "stale chunk",
		TokenCount: 2,
	}
	require.NoError(t, db.Create(&stale).Error)
	embedding := make([]float32, providers.LocalDimension)
	embedding[0] = 1
	require.NoError(t, index.Upsert(context.Background(), ws.ID, []vectorstore.Record{{
		ChunkID:    stale.ID,
		DocumentID: doc.ID,
		ChunkIndex: 0,
		Text:       stale.Text,
		Embedding:  embedding,
	}}))

	claimed, claimedWs, err := pipeline.Begin(context.Background(), doc.ID)
	require.NoError(t, err)
	pipeline.Run(context.Background(), claimed, claimedWs)

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, models.DocumentStatusCompleted, got.Status)

	// The stale chunk must be gone.
	var staleCount int64
	require.NoError(t, db.Model(&models.Chunk{}).Where("id = ?", stale.ID).Count(&staleCount).Error)
	assert.Zero(t, staleCount)
	assert.Equal(t, got.TotalChunks, index.Count(ws.ID))
}

func TestPipeline_UnreadableSourceFails(t *testing.T) {
	db := setupPipelineTest(t)
	pipeline := NewPipeline(db, vectorstore.NewMemoryIndex(), providers.NewRegistry(providers.Config{}, nil, nil))

	doc, _ := createTestDocument(t, db, "text", models.DocumentStatusPending)
	require.NoError(t, db.Model(doc).Update("source_path", "/nonexistent/path").Error)

	claimed, ws, err := pipeline.Begin(context.Background(), doc.ID)
	require.NoError(t, err)
	pipeline.Run(context.Background(), claimed, ws)

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, models.DocumentStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "read source bytes")
}

func TestPipeline_WhitespaceOnlyDocumentFails(t *testing.T) {
	db := setupPipelineTest(t)
	pipeline := NewPipeline(db, vectorstore.NewMemoryIndex(), providers.NewRegistry(providers.Config{}, nil, nil))

	doc, _ := createTestDocument(t, db, "   \n\t  \n", models.DocumentStatusPending)

	claimed, ws, err := pipeline.Begin(context.Background(), doc.ID)
	require.NoError(t, err)
	pipeline.Run(context.Background(), claimed, ws)

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, models.DocumentStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
}

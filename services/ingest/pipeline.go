package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/chunker"
	"github.com/ragbench/extract"
	"github.com/ragbench/models"
	"github.com/ragbench/providers"
	"github.com/ragbench/vectorstore"
)

// embedBatchSize bounds the number of chunk texts sent per embedding call so
// a large document never produces an oversized request.
const embedBatchSize = 64

// Pipeline drives a document from pending to completed or failed:
// extract -> chunk -> embed -> upsert, with per-batch retry handled by the
// provider layer. Batches run sequentially per document; different documents
// may run concurrent pipelines.
type Pipeline struct {
	db       *gorm.DB
	index    vectorstore.Index
	registry *providers.Registry
}

func NewPipeline(db *gorm.DB, index vectorstore.Index, registry *providers.Registry) *Pipeline {
	return &Pipeline{db: db, index: index, registry: registry}
}

// Begin claims the document for processing. Only pending and failed
// documents may be driven; the claim is a compare-and-set on the status
// column so two concurrent triggers cannot both win. Re-driving a failed
// document wipes its partial chunks and vectors first.
func (p *Pipeline) Begin(ctx context.Context, documentID uuid.UUID) (*models.Document, *models.Workspace, error) {
	var doc models.Document
	if err := p.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: document %s", models.ErrNotFound, documentID)
		}
		return nil, nil, err
	}

	switch doc.Status {
	case models.DocumentStatusProcessing:
		return nil, nil, fmt.Errorf("%w: document %s is already processing", models.ErrStateConflict, documentID)
	case models.DocumentStatusCompleted:
		return nil, nil, fmt.Errorf("%w: document %s is completed; delete and re-upload instead", models.ErrStateConflict, documentID)
	}

	var ws models.Workspace
	if err := p.db.WithContext(ctx).First(&ws, "id = ?", doc.WorkspaceID).Error; err != nil {
		return nil, nil, err
	}

	res := p.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status IN ?", documentID, []models.DocumentStatus{models.DocumentStatusPending, models.DocumentStatusFailed}).
		Updates(map[string]any{
			"status":        models.DocumentStatusProcessing,
			"error_message": nil,
			"total_chunks":  0,
			"completed_at":  nil,
		})
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil, fmt.Errorf("%w: document %s changed state concurrently", models.ErrStateConflict, documentID)
	}

	// Wipe partials from a previous failed attempt before re-running.
	if err := p.wipePartial(ctx, &doc); err != nil {
		p.fail(doc.ID, fmt.Sprintf("reset partial state: %v", err))
		return nil, nil, err
	}

	doc.Status = models.DocumentStatusProcessing
	return &doc, &ws, nil
}

func (p *Pipeline) wipePartial(ctx context.Context, doc *models.Document) error {
	if err := p.db.WithContext(ctx).Where("document_id = ?", doc.ID).Delete(&models.Chunk{}).Error; err != nil {
		return err
	}
	return p.index.DeleteDocument(ctx, doc.WorkspaceID, doc.ID)
}

// Run executes the stages for a document already claimed by Begin. Errors
// never propagate: any stage failure lands in the document's error_message
// with status failed, observable by polling clients.
func (p *Pipeline) Run(ctx context.Context, doc *models.Document, ws *models.Workspace) {
	if err := p.run(ctx, doc, ws); err != nil {
		log.Printf("Ingestion failed for document %s: %v", doc.ID, err)
		p.fail(doc.ID, err.Error())
	}
}

func (p *Pipeline) run(ctx context.Context, doc *models.Document, ws *models.Workspace) error {
	// Stage 1: extract.
	data, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		return fmt.Errorf("read source bytes: %v", err)
	}

	extractor, err := extract.ForContentType(doc.ContentType, doc.FileName)
	if err != nil {
		return err
	}
	text, err := extractor.Extract(data)
	if err != nil {
		return err
	}

	// Stage 2: chunk.
	ck, err := chunker.New(ws.ChunkSize, ws.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunker config: %v", err)
	}
	chunks := ck.Split(text)
	if len(chunks) == 0 {
		return extract.ErrEmpty
	}

	// Stage 3: embed and persist, batch by batch.
	embedder, err := p.registry.Embedder(ws.EmbeddingProvider)
	if err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion cancelled: %v", err)
		}

		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		result, err := embedder.Embed(ctx, ws.EmbeddingModel, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d: %v", start/embedBatchSize, err)
		}
		if err := p.checkDimension(ctx, ws, result.Dimension); err != nil {
			return err
		}

		if err := p.persistBatch(ctx, doc, ws, batch, result.Vectors); err != nil {
			return err
		}
	}

	// Stage 4: finalize.
	now := time.Now().UTC()
	res := p.db.WithContext(context.WithoutCancel(ctx)).Model(&models.Document{}).
		Where("id = ? AND status = ?", doc.ID, models.DocumentStatusProcessing).
		Updates(map[string]any{
			"status":       models.DocumentStatusCompleted,
			"total_chunks": len(chunks),
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("finalize: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: document %s left processing state mid-run", models.ErrStateConflict, doc.ID)
	}

	log.Printf("Ingestion completed for document %s: %d chunks", doc.ID, len(chunks))
	return nil
}

// checkDimension pins the workspace's embedding dimension on first use and
// rejects later mismatches before they reach the index.
func (p *Pipeline) checkDimension(ctx context.Context, ws *models.Workspace, dim int) error {
	if ws.EmbeddingDimension == 0 {
		res := p.db.WithContext(ctx).Model(&models.Workspace{}).
			Where("id = ? AND embedding_dimension = 0", ws.ID).
			Update("embedding_dimension", dim)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another document established the dimension first; re-read it.
			var fresh models.Workspace
			if err := p.db.WithContext(ctx).First(&fresh, "id = ?", ws.ID).Error; err != nil {
				return err
			}
			ws.EmbeddingDimension = fresh.EmbeddingDimension
		} else {
			ws.EmbeddingDimension = dim
		}
	}
	if dim != ws.EmbeddingDimension {
		return fmt.Errorf("%w: workspace dimension %d, embedding dimension %d",
			vectorstore.ErrSchemaConflict, ws.EmbeddingDimension, dim)
	}
	return nil
}

// persistBatch writes a batch's chunk rows and vector records as one logical
// write: the chunk rows commit first and the vector upsert follows
// immediately; total_chunks is only set at finalize, after every upsert
// succeeded, so observers never see a completed count ahead of the vectors.
func (p *Pipeline) persistBatch(ctx context.Context, doc *models.Document, ws *models.Workspace, batch []chunker.Chunk, vectors [][]float32) error {
	rows := make([]models.Chunk, len(batch))
	records := make([]vectorstore.Record, len(batch))
	for i, c := range batch {
		id := uuid.New()
		rows[i] = models.Chunk{
			ID:         id,
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			TokenCount: c.TokenCount,
		}
		records[i] = vectorstore.Record{
			ChunkID:    id,
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Embedding:  vectors[i],
		}
	}

	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("persist chunks: %v", err)
	}
	if err := p.index.Upsert(ctx, ws.ID, records); err != nil {
		return fmt.Errorf("upsert vectors: %v", err)
	}
	return nil
}

// fail records the stage error verbatim and moves the document to failed.
// Uses a detached context so cancellation itself can still be recorded.
func (p *Pipeline) fail(documentID uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := p.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND status = ?", documentID, models.DocumentStatusProcessing).
		Updates(map[string]any{
			"status":        models.DocumentStatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		log.Printf("Failed to record ingestion error for document %s: %v", documentID, res.Error)
	}
}

package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/extract"
	"github.com/ragbench/models"
	"github.com/ragbench/services"
	"github.com/ragbench/services/ingest"
	"github.com/ragbench/vectorstore"
)

type documentServiceImpl struct {
	db         *gorm.DB
	index      vectorstore.Index
	pipeline   *ingest.Pipeline
	tracker    *JobTracker
	uploadRoot string
}

func NewDocumentService(db *gorm.DB, index vectorstore.Index, pipeline *ingest.Pipeline, tracker *JobTracker, uploadRoot string) services.DocumentService {
	return &documentServiceImpl{
		db:         db,
		index:      index,
		pipeline:   pipeline,
		tracker:    tracker,
		uploadRoot: uploadRoot,
	}
}

func (s *documentServiceImpl) UploadDocument(ctx context.Context, workspaceID, ownerID uuid.UUID, fileName, contentType string, data []byte) (*models.Document, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("%w: file name is required", models.ErrInputInvalid)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: uploaded file is empty", models.ErrInputInvalid)
	}
	if len(data) > models.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", models.ErrInputInvalid, models.MaxUploadBytes)
	}
	// Reject unsupported formats at upload time instead of letting the
	// pipeline fail minutes later.
	if _, err := extract.ForContentType(contentType, fileName); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInputInvalid, err)
	}

	var ws models.Workspace
	if err := s.db.WithContext(ctx).First(&ws, "id = ? AND owner_id = ?", workspaceID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s", models.ErrNotFound, workspaceID)
		}
		return nil, err
	}

	docID := uuid.New()
	dir := filepath.Join(s.uploadRoot, ws.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	sourcePath := filepath.Join(dir, docID.String())
	if err := os.WriteFile(sourcePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc := &models.Document{
		ID:          docID,
		WorkspaceID: ws.ID,
		FileName:    filepath.Base(fileName),
		ContentType: contentType,
		SourcePath:  sourcePath,
		SizeBytes:   int64(len(data)),
		Status:      models.DocumentStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		os.Remove(sourcePath)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.startIngestion(doc.ID, ws.ID)
	return doc, nil
}

func (s *documentServiceImpl) GetDocument(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Document, error) {
	doc, _, err := s.getOwned(ctx, id, ownerID)
	return doc, err
}

// ProcessDocument re-drives ingestion. The claim happens in the request path
// so a processing or completed document answers with a state conflict instead
// of failing silently in the background.
func (s *documentServiceImpl) ProcessDocument(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Document, error) {
	doc, ws, err := s.getOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	jobCtx, release := s.tracker.Track(context.Background(), doc.ID, ws.ID)

	claimed, claimedWs, err := s.pipeline.Begin(ctx, doc.ID)
	if err != nil {
		release()
		return nil, err
	}

	go func() {
		defer release()
		s.pipeline.Run(jobCtx, claimed, claimedWs)
	}()

	return claimed, nil
}

func (s *documentServiceImpl) DeleteDocument(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	doc, _, err := s.getOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}

	s.tracker.Cancel(doc.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", doc.ID).Delete(&models.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Document{}, "id = ?", doc.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.index.DeleteDocument(ctx, doc.WorkspaceID, doc.ID); err != nil {
		log.Printf("Failed to delete vector records for document %s: %v", doc.ID, err)
	}
	if err := os.Remove(doc.SourcePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove source file for document %s: %v", doc.ID, err)
	}
	return nil
}

func (s *documentServiceImpl) getOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Document, *models.Workspace, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
		}
		return nil, nil, err
	}

	var ws models.Workspace
	if err := s.db.WithContext(ctx).First(&ws, "id = ? AND owner_id = ?", doc.WorkspaceID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
		}
		return nil, nil, err
	}
	return &doc, &ws, nil
}

// startIngestion claims the document and runs the pipeline on its own
// goroutine. The job is tracked under both the document and its workspace so
// deleting either cancels it.
func (s *documentServiceImpl) startIngestion(documentID, workspaceID uuid.UUID) {
	ctx, release := s.tracker.Track(context.Background(), documentID, workspaceID)

	go func() {
		defer release()

		doc, ws, err := s.pipeline.Begin(ctx, documentID)
		if err != nil {
			if !errors.Is(err, models.ErrStateConflict) {
				log.Printf("Ingestion start failed for document %s: %v", documentID, err)
			}
			return
		}
		s.pipeline.Run(ctx, doc, ws)
	}()
}

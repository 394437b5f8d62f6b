package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/services"
	"github.com/ragbench/vectorstore"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
)

type workspaceServiceImpl struct {
	db         *gorm.DB
	index      vectorstore.Index
	tracker    *JobTracker
	uploadRoot string
}

func NewWorkspaceService(db *gorm.DB, index vectorstore.Index, tracker *JobTracker, uploadRoot string) services.WorkspaceService {
	return &workspaceServiceImpl{
		db:         db,
		index:      index,
		tracker:    tracker,
		uploadRoot: uploadRoot,
	}
}

func (s *workspaceServiceImpl) CreateWorkspace(ctx context.Context, req models.CreateWorkspaceRequest, ownerID uuid.UUID) (*models.Workspace, error) {
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}
	chunkOverlap := req.ChunkOverlap
	if chunkOverlap == 0 && req.ChunkSize == 0 {
		chunkOverlap = defaultChunkOverlap
	}

	if chunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk_size must be positive", models.ErrInputInvalid)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < chunk_size", models.ErrInputInvalid)
	}

	ws := &models.Workspace{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Name:              req.Name,
		EmbeddingProvider: req.EmbeddingProvider,
		EmbeddingModel:    req.EmbeddingModel,
		ChunkSize:         chunkSize,
		ChunkOverlap:      chunkOverlap,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(ws).Error; err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return ws, nil
}

func (s *workspaceServiceImpl) GetWorkspace(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Workspace, error) {
	var ws models.Workspace
	err := s.db.WithContext(ctx).First(&ws, "id = ? AND owner_id = ?", id, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return &ws, nil
}

func (s *workspaceServiceImpl) ListWorkspaces(ctx context.Context, ownerID uuid.UUID) (*models.WorkspaceListResponse, error) {
	var workspaces []models.Workspace
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&workspaces).Error
	if err != nil {
		return nil, err
	}
	return &models.WorkspaceListResponse{
		Workspaces: workspaces,
		Total:      int64(len(workspaces)),
	}, nil
}

func (s *workspaceServiceImpl) ListDocuments(ctx context.Context, workspaceID uuid.UUID, ownerID uuid.UUID) (*models.DocumentListResponse, error) {
	if _, err := s.GetWorkspace(ctx, workspaceID, ownerID); err != nil {
		return nil, err
	}

	var documents []models.Document
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&documents).Error
	if err != nil {
		return nil, err
	}
	return &models.DocumentListResponse{
		Documents: documents,
		Total:     int64(len(documents)),
	}, nil
}

// DeleteWorkspace cancels running work for the workspace, then removes its
// documents, chunks, datasets, questions, evaluations with their stored
// results, vector records and uploaded files. The row deletes happen first so
// no new work can be started against a half-deleted workspace.
func (s *workspaceServiceImpl) DeleteWorkspace(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	ws, err := s.GetWorkspace(ctx, id, ownerID)
	if err != nil {
		return err
	}

	s.tracker.Cancel(ws.ID)

	var documentIDs []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("workspace_id = ?", ws.ID).
		Pluck("id", &documentIDs).Error; err != nil {
		return err
	}
	var datasetIDs []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.TestDataset{}).
		Where("workspace_id = ?", ws.ID).
		Pluck("id", &datasetIDs).Error; err != nil {
		return err
	}
	var evaluationIDs []uuid.UUID
	if len(datasetIDs) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Evaluation{}).
			Where("dataset_id IN ?", datasetIDs).
			Pluck("id", &evaluationIDs).Error; err != nil {
			return err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(documentIDs) > 0 {
			if err := tx.Where("document_id IN ?", documentIDs).Delete(&models.Chunk{}).Error; err != nil {
				return err
			}
			if err := tx.Where("workspace_id = ?", ws.ID).Delete(&models.Document{}).Error; err != nil {
				return err
			}
		}
		if len(evaluationIDs) > 0 {
			if err := tx.Where("evaluation_id IN ?", evaluationIDs).Delete(&models.QuestionMetrics{}).Error; err != nil {
				return err
			}
			if err := tx.Where("evaluation_id IN ?", evaluationIDs).Delete(&models.ModelResult{}).Error; err != nil {
				return err
			}
			if err := tx.Where("evaluation_id IN ?", evaluationIDs).Delete(&models.EvaluationSummary{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", evaluationIDs).Delete(&models.Evaluation{}).Error; err != nil {
				return err
			}
		}
		if len(datasetIDs) > 0 {
			if err := tx.Where("dataset_id IN ?", datasetIDs).Delete(&models.TestQuestion{}).Error; err != nil {
				return err
			}
			if err := tx.Where("workspace_id = ?", ws.ID).Delete(&models.TestDataset{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Workspace{}, "id = ?", ws.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	if err := s.index.DeleteWorkspace(ctx, ws.ID); err != nil {
		log.Printf("Failed to delete vector records for workspace %s: %v", ws.ID, err)
	}
	if err := os.RemoveAll(filepath.Join(s.uploadRoot, ws.ID.String())); err != nil {
		log.Printf("Failed to remove uploads for workspace %s: %v", ws.ID, err)
	}
	return nil
}

package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/services"
)

type datasetServiceImpl struct {
	db *gorm.DB
}

func NewDatasetService(db *gorm.DB) services.DatasetService {
	return &datasetServiceImpl{db: db}
}

func (s *datasetServiceImpl) CreateDataset(ctx context.Context, req models.CreateDatasetRequest, ownerID uuid.UUID) (*models.TestDataset, error) {
	var ws models.Workspace
	err := s.db.WithContext(ctx).First(&ws, "id = ? AND owner_id = ?", req.WorkspaceID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s", models.ErrNotFound, req.WorkspaceID)
		}
		return nil, err
	}

	dataset := &models.TestDataset{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(dataset).Error; err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	return dataset, nil
}

func (s *datasetServiceImpl) GetDataset(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.TestDataset, error) {
	var dataset models.TestDataset
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("question_index ASC")
		}).
		First(&dataset, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dataset %s", models.ErrNotFound, id)
		}
		return nil, err
	}

	// Ownership flows through the workspace.
	var ws models.Workspace
	err = s.db.WithContext(ctx).First(&ws, "id = ? AND owner_id = ?", dataset.WorkspaceID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dataset %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return &dataset, nil
}

// AddQuestion appends a question at the next index. The index assignment and
// insert share a transaction so concurrent appends cannot collide.
func (s *datasetServiceImpl) AddQuestion(ctx context.Context, datasetID uuid.UUID, req models.AddQuestionRequest, ownerID uuid.UUID) (*models.TestQuestion, error) {
	if strings.TrimSpace(req.QuestionText) == "" {
		return nil, fmt.Errorf("%w: question_text is required", models.ErrInputInvalid)
	}

	if _, err := s.GetDataset(ctx, datasetID, ownerID); err != nil {
		return nil, err
	}

	question := &models.TestQuestion{
		ID:               uuid.New(),
		DatasetID:        datasetID,
		QuestionText:     req.QuestionText,
		ExpectedAnswer:   req.ExpectedAnswer,
		ContextReference: req.ContextReference,
		CreatedAt:        time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TestQuestion{}).
			Where("dataset_id = ?", datasetID).
			Count(&count).Error; err != nil {
			return err
		}
		question.QuestionIndex = int(count)
		return tx.Create(question).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add question: %w", err)
	}
	return question, nil
}

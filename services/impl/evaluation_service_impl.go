package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/providers"
	"github.com/ragbench/services"
	"github.com/ragbench/services/eval"
)

type evaluationServiceImpl struct {
	db       *gorm.DB
	registry *providers.Registry
	executor *eval.Executor
	tracker  *JobTracker
}

func NewEvaluationService(db *gorm.DB, registry *providers.Registry, executor *eval.Executor, tracker *JobTracker) services.EvaluationService {
	return &evaluationServiceImpl{
		db:       db,
		registry: registry,
		executor: executor,
		tracker:  tracker,
	}
}

func (s *evaluationServiceImpl) CreateEvaluation(ctx context.Context, req models.CreateEvaluationRequest, ownerID uuid.UUID) (*models.Evaluation, error) {
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("%w: at least one candidate model is required", models.ErrInputInvalid)
	}
	seen := map[string]bool{}
	for _, c := range req.Candidates {
		if c.Provider == "" || c.Model == "" {
			return nil, fmt.Errorf("%w: candidate provider and model are required", models.ErrInputInvalid)
		}
		if seen[c.Key()] {
			return nil, fmt.Errorf("%w: duplicate candidate %s", models.ErrInputInvalid, c.Key())
		}
		seen[c.Key()] = true
		// Provider names are checked here so typos answer with a 4xx instead
		// of a failed run minutes later.
		if _, err := s.registry.Generator(c.Provider); err != nil {
			return nil, fmt.Errorf("%w: candidate %s: %v", models.ErrInputInvalid, c.Key(), err)
		}
	}
	if _, err := s.registry.Judge(req.JudgeProvider); err != nil {
		return nil, fmt.Errorf("%w: judge %s: %v", models.ErrInputInvalid, req.JudgeProvider, err)
	}

	// Ownership of the dataset flows through its workspace.
	var dataset models.TestDataset
	if err := s.db.WithContext(ctx).First(&dataset, "id = ?", req.DatasetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dataset %s", models.ErrNotFound, req.DatasetID)
		}
		return nil, err
	}
	var ws models.Workspace
	if err := s.db.WithContext(ctx).First(&ws, "id = ? AND owner_id = ?", dataset.WorkspaceID, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dataset %s", models.ErrNotFound, req.DatasetID)
		}
		return nil, err
	}

	settings := models.DefaultEvaluationSettings()
	if req.Settings != nil {
		settings = mergeSettings(settings, *req.Settings)
	}
	if settings.TopK < 1 {
		return nil, fmt.Errorf("%w: top_k must be positive", models.ErrInputInvalid)
	}
	if settings.Temperature < 0 || settings.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature must be in [0,2]", models.ErrInputInvalid)
	}
	if settings.MaxTokens < 1 {
		return nil, fmt.Errorf("%w: max_tokens must be positive", models.ErrInputInvalid)
	}

	evaluation := &models.Evaluation{
		ID:            uuid.New(),
		DatasetID:     dataset.ID,
		OwnerID:       ownerID,
		Name:          req.Name,
		Candidates:    models.CandidateModelList(req.Candidates),
		JudgeProvider: req.JudgeProvider,
		JudgeModel:    req.JudgeModel,
		Settings:      settings,
		Status:        models.EvaluationStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(evaluation).Error; err != nil {
		return nil, fmt.Errorf("failed to create evaluation: %w", err)
	}

	// Run in the background, cancellable by deleting the evaluation or the
	// workspace it reads from.
	jobCtx, release := s.tracker.Track(context.Background(), evaluation.ID, ws.ID)
	go func() {
		defer release()
		s.executor.Run(jobCtx, evaluation.ID)
	}()

	return evaluation, nil
}

func (s *evaluationServiceImpl) GetEvaluation(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	err := s.db.WithContext(ctx).First(&evaluation, "id = ? AND owner_id = ?", id, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: evaluation %s", models.ErrNotFound, id)
		}
		return nil, err
	}
	return &evaluation, nil
}

// DeleteEvaluation cancels a running evaluation and removes the run with all
// its results, metrics and summaries.
func (s *evaluationServiceImpl) DeleteEvaluation(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	evaluation, err := s.GetEvaluation(ctx, id, ownerID)
	if err != nil {
		return err
	}

	s.tracker.Cancel(evaluation.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("evaluation_id = ?", evaluation.ID).Delete(&models.QuestionMetrics{}).Error; err != nil {
			return err
		}
		if err := tx.Where("evaluation_id = ?", evaluation.ID).Delete(&models.ModelResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("evaluation_id = ?", evaluation.ID).Delete(&models.EvaluationSummary{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Evaluation{}, "id = ?", evaluation.ID).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}

	log.Printf("Deleted evaluation %s", evaluation.ID)
	return nil
}

// mergeSettings overlays the request's explicit fields onto the defaults.
// Zero values mean "not provided" for every knob except temperature, where 0
// is a meaningful choice; callers wanting greedy decoding set it explicitly
// and the default only applies when the settings object is absent entirely.
func mergeSettings(base models.EvaluationSettings, req models.EvaluationSettings) models.EvaluationSettings {
	out := req
	if out.TopK == 0 {
		out.TopK = base.TopK
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = base.MaxTokens
	}
	if out.WorkerPoolSize == 0 {
		out.WorkerPoolSize = base.WorkerPoolSize
	}
	return out
}

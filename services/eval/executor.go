package eval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/providers"
	"github.com/ragbench/services"
)

// DefaultWorkerPoolSize bounds concurrent (question, candidate) units within
// one evaluation run unless the run's settings override it.
const DefaultWorkerPoolSize = 8

// Executor drives an evaluation run: every dataset question through every
// candidate model, scored by the judge, then aggregated into a ranked
// summary. Units run concurrently on a bounded worker pool; the four judge
// calls inside a unit run in parallel unconditionally.
type Executor struct {
	db        *gorm.DB
	retrieval services.RetrievalService
	registry  *providers.Registry
	workers   int
}

func NewExecutor(db *gorm.DB, retrieval services.RetrievalService, registry *providers.Registry, workers int) *Executor {
	if workers < 1 {
		workers = DefaultWorkerPoolSize
	}
	return &Executor{
		db:        db,
		retrieval: retrieval,
		registry:  registry,
		workers:   workers,
	}
}

// unit is one (question, candidate) pair awaiting execution.
type unit struct {
	question  models.TestQuestion
	candidate models.CandidateModel
	candIndex int
}

// Run claims the evaluation and executes it to a terminal state. Errors never
// propagate: setup failures mark the evaluation failed with the cause in
// error_message; unit failures only count against the per-candidate totals.
func (e *Executor) Run(ctx context.Context, evaluationID uuid.UUID) {
	if err := e.run(ctx, evaluationID); err != nil {
		log.Printf("Evaluation %s failed: %v", evaluationID, err)
		e.fail(evaluationID, err.Error())
	}
}

func (e *Executor) run(ctx context.Context, evaluationID uuid.UUID) error {
	eval, err := e.claim(ctx, evaluationID)
	if err != nil {
		return err
	}

	// Setup: dataset, questions, workspace and provider adapters. Any failure
	// here is unrecoverable and fails the whole run.
	var dataset models.TestDataset
	if err := e.db.WithContext(ctx).First(&dataset, "id = ?", eval.DatasetID).Error; err != nil {
		return fmt.Errorf("load dataset: %v", err)
	}
	var questions []models.TestQuestion
	if err := e.db.WithContext(ctx).
		Where("dataset_id = ?", dataset.ID).
		Order("question_index ASC").
		Find(&questions).Error; err != nil {
		return fmt.Errorf("load questions: %v", err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("dataset %s has no questions", dataset.ID)
	}

	generators := make([]providers.Generator, len(eval.Candidates))
	for i, c := range eval.Candidates {
		g, err := e.registry.Generator(c.Provider)
		if err != nil {
			return fmt.Errorf("candidate %s: %v", c.Key(), err)
		}
		generators[i] = g
	}
	judgeGen, err := e.registry.Judge(eval.JudgeProvider)
	if err != nil {
		return fmt.Errorf("judge %s/%s: %v", eval.JudgeProvider, eval.JudgeModel, err)
	}
	judge := NewJudge(judgeGen, eval.JudgeModel)

	settings := eval.Settings
	workers := settings.WorkerPoolSize
	if workers < 1 {
		workers = e.workers
	}

	units := make(chan unit)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		abortErr error
	)
	abort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range units {
				mu.Lock()
				stopped := abortErr != nil
				mu.Unlock()
				if stopped || ctx.Err() != nil {
					continue
				}
				if err := e.runUnit(ctx, eval, dataset.WorkspaceID, settings, generators[u.candIndex], judge, u); err != nil {
					abort(err)
				}
			}
		}()
	}

	for _, q := range questions {
		for ci, c := range eval.Candidates {
			units <- unit{question: q, candidate: c, candIndex: ci}
		}
	}
	close(units)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluation cancelled: %v", err)
	}
	if abortErr != nil {
		return abortErr
	}

	if err := e.aggregate(ctx, eval, len(questions)); err != nil {
		return fmt.Errorf("aggregate: %v", err)
	}

	now := time.Now().UTC()
	res := e.db.WithContext(context.WithoutCancel(ctx)).Model(&models.Evaluation{}).
		Where("id = ? AND status = ?", eval.ID, models.EvaluationStatusRunning).
		Updates(map[string]any{
			"status":       models.EvaluationStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("finalize: %v", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: evaluation %s left running state mid-run", models.ErrStateConflict, eval.ID)
	}

	log.Printf("Evaluation %s completed: %d questions x %d candidates", eval.ID, len(questions), len(eval.Candidates))
	return nil
}

// claim moves the evaluation from pending to running with a compare-and-set
// so a duplicated submission cannot run twice.
func (e *Executor) claim(ctx context.Context, evaluationID uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := e.db.WithContext(ctx).First(&eval, "id = ?", evaluationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: evaluation %s", models.ErrNotFound, evaluationID)
		}
		return nil, err
	}

	res := e.db.WithContext(ctx).Model(&models.Evaluation{}).
		Where("id = ? AND status = ?", evaluationID, models.EvaluationStatusPending).
		Update("status", models.EvaluationStatusRunning)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: evaluation %s is not pending", models.ErrStateConflict, evaluationID)
	}
	eval.Status = models.EvaluationStatusRunning
	return &eval, nil
}

// runUnit executes retrieve -> generate -> judge for one unit and persists
// its ModelResult (and QuestionMetrics when generation succeeded). The
// returned error is non-nil only for run-aborting conditions.
func (e *Executor) runUnit(ctx context.Context, eval *models.Evaluation, workspaceID uuid.UUID, settings models.EvaluationSettings, generator providers.Generator, judge *Judge, u unit) error {
	result := models.ModelResult{
		ID:             uuid.New(),
		EvaluationID:   eval.ID,
		QuestionID:     u.question.ID,
		QuestionIndex:  u.question.QuestionIndex,
		Provider:       u.candidate.Provider,
		Model:          u.candidate.Model,
		CandidateIndex: u.candIndex,
		CreatedAt:      time.Now(),
	}

	// Retrieve.
	matches, err := e.retrieval.Retrieve(ctx, workspaceID, u.question.QuestionText, settings.TopK, settings.SimilarityThreshold)
	if err != nil {
		return e.persistFailedUnit(ctx, &result, fmt.Sprintf("retrieve: %v", err))
	}
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	result.RetrievedContext = strings.Join(texts, "\n\n")

	// Generate. Latency covers the generate call only.
	prompt := fmt.Sprintf("Context: %s\n\nQuestion: %s\n\nAnswer:", result.RetrievedContext, u.question.QuestionText)
	start := time.Now()
	gen, err := generator.Generate(ctx, u.candidate.Model, prompt, providers.GenerateOptions{
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	result.LatencyMs = int64(math.Round(float64(time.Since(start)) / float64(time.Millisecond)))
	if err != nil {
		return e.persistFailedUnit(ctx, &result, fmt.Sprintf("generate: %v", err))
	}

	result.GeneratedAnswer = gen.Text
	result.PromptTokens = gen.PromptTokens
	result.CompletionTokens = gen.CompletionTokens
	result.CostUSD = e.registry.Pricing().CostForSplit(u.candidate.Provider, u.candidate.Model, gen.PromptTokens, gen.CompletionTokens)

	if err := e.db.WithContext(ctx).Create(&result).Error; err != nil {
		return fmt.Errorf("persist result: %v", err)
	}

	// Judge. Per-metric failures leave the metric null; only judge auth
	// failure or cancellation aborts the run.
	metrics := models.QuestionMetrics{
		ID:            uuid.New(),
		EvaluationID:  eval.ID,
		ModelResultID: result.ID,
		CreatedAt:     time.Now(),
	}
	err = judge.ScoreAll(ctx, unitAnswer{
		Question:       u.question.QuestionText,
		ExpectedAnswer: u.question.ExpectedAnswer,
		Context:        result.RetrievedContext,
		Answer:         result.GeneratedAnswer,
	}, &metrics)
	if err != nil {
		if errors.Is(err, providers.ErrAuth) {
			return fmt.Errorf("judge %s/%s: %w", eval.JudgeProvider, eval.JudgeModel, err)
		}
		return fmt.Errorf("judge: %v", err)
	}

	if err := e.db.WithContext(ctx).Create(&metrics).Error; err != nil {
		return fmt.Errorf("persist metrics: %v", err)
	}
	return nil
}

// persistFailedUnit records a unit that produced no answer. Failed units
// carry no metrics row and count against failed_count at aggregation.
func (e *Executor) persistFailedUnit(ctx context.Context, result *models.ModelResult, message string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("evaluation cancelled: %v", ctx.Err())
	}
	result.Error = &message
	if err := e.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("persist failed unit: %v", err)
	}
	return nil
}

// fail records the terminal error. Detached context so a cancelled run can
// still be marked failed.
func (e *Executor) fail(evaluationID uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := e.db.WithContext(ctx).Model(&models.Evaluation{}).
		Where("id = ? AND status = ?", evaluationID, models.EvaluationStatusRunning).
		Updates(map[string]any{
			"status":        models.EvaluationStatusFailed,
			"error_message": message,
		})
	if res.Error != nil {
		log.Printf("Failed to record evaluation error for %s: %v", evaluationID, res.Error)
	}
}

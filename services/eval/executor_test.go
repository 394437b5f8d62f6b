package eval

import (
	"context"
	"fmt"
	"os"
	"sync"
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

func setupExecutorTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set, skipping executor integration test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Workspace{}, &models.TestDataset{}, &models.TestQuestion{},
		&models.Evaluation{}, &models.ModelResult{}, &models.QuestionMetrics{},
		&models.EvaluationSummary{},
	))
	return db
}

type fixedRetrieval struct {
	matches []vectorstore.Match
}

func (r *fixedRetrieval) Retrieve(_ context.Context, _ uuid.UUID, _ string, _ int, _ *float64) ([]vectorstore.Match, error) {
	return r.matches, nil
}

func createEvaluationFixture(t *testing.T, db *gorm.DB, candidates []models.CandidateModel, expectedAnswers bool) *models.Evaluation {
	t.Helper()

	ws := &models.Workspace{
		ID:                uuid.New(),
		OwnerID:           uuid.New(),
		Name:              "executor-test",
		EmbeddingProvider: providers.ProviderNameLocal,
		EmbeddingModel:    "feature-hash-384",
		ChunkSize:         64,
		ChunkOverlap:      8,
	}
	require.NoError(t, db.Create(ws).Error)
	t.Cleanup(func() { db.Delete(ws) })

	dataset := &models.TestDataset{
		ID:          uuid.New(),
		WorkspaceID: ws.ID,
		Name:        "executor-test",
	}
	require.NoError(t, db.Create(dataset).Error)
	t.Cleanup(func() {
		db.Where("dataset_id = ?", dataset.ID).Delete(&models.TestQuestion{})
		db.Delete(dataset)
	})

	for i := 0; i < 2; i++ {
		q := models.TestQuestion{
			ID:            uuid.New(),
			DatasetID:     dataset.ID,
			QuestionIndex: i,
			QuestionText:  fmt.Sprintf("question %d", i),
		}
		if expectedAnswers {
			ans := fmt.Sprintf("answer %d", i)
			q.ExpectedAnswer = &ans
		}
		require.NoError(t, db.Create(&q).Error)
	}

	evaluation := &models.Evaluation{
		ID:            uuid.New(),
		DatasetID:     dataset.ID,
		OwnerID:       ws.OwnerID,
		Candidates:    candidates,
		JudgeProvider: "stub",
		JudgeModel:    "stub-judge",
		Settings:      models.DefaultEvaluationSettings(),
		Status:        models.EvaluationStatusPending,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, db.Create(evaluation).Error)
	t.Cleanup(func() {
		db.Where("evaluation_id = ?", evaluation.ID).Delete(&models.QuestionMetrics{})
		db.Where("evaluation_id = ?", evaluation.ID).Delete(&models.ModelResult{})
		db.Where("evaluation_id = ?", evaluation.ID).Delete(&models.EvaluationSummary{})
		db.Delete(evaluation)
	})
	return evaluation
}

func TestExecutor_CompletesAndRanks(t *testing.T) {
	db := setupExecutorTest(t)

	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	registry.RegisterGenerator("stub", generatorFunc(func(_ context.Context, model, prompt string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		// Judge prompts ask for a JSON verdict; candidate prompts do not.
		if model == "stub-judge" {
			return &providers.GenerateResult{Text: `{"score": 0.8, "explanation": "fine"}`}, nil
		}
		return &providers.GenerateResult{
			Text:             "generated answer",
			PromptTokens:     100,
			CompletionTokens: 20,
		}, nil
	}))

	candidates := []models.CandidateModel{
		{Provider: "stub", Model: "model-a"},
		{Provider: "stub", Model: "model-b"},
	}
	evaluation := createEvaluationFixture(t, db, candidates, true)

	retrieval := &fixedRetrieval{matches: []vectorstore.Match{
		{ChunkID: uuid.New(), DocumentID: uuid.New(), ChunkIndex: 0, Score: 0.9, Text: "context passage"},
	}}
	executor := NewExecutor(db, retrieval, registry, 4)
	executor.Run(context.Background(), evaluation.ID)

	var got models.Evaluation
	require.NoError(t, db.First(&got, "id = ?", evaluation.ID).Error)
	assert.Equal(t, models.EvaluationStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// 2 questions x 2 candidates.
	var results []models.ModelResult
	require.NoError(t, db.Where("evaluation_id = ?", evaluation.ID).Find(&results).Error)
	assert.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Succeeded())
		assert.Equal(t, "generated answer", r.GeneratedAnswer)
		assert.Contains(t, r.RetrievedContext, "context passage")
	}

	var metrics []models.QuestionMetrics
	require.NoError(t, db.Where("evaluation_id = ?", evaluation.ID).Find(&metrics).Error)
	assert.Len(t, metrics, 4)
	for _, m := range metrics {
		require.NotNil(t, m.Accuracy)
		assert.Equal(t, 0.8, *m.Accuracy)
	}

	var summaries []models.EvaluationSummary
	require.NoError(t, db.Where("evaluation_id = ?", evaluation.ID).Order("rank ASC").Find(&summaries).Error)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[0].Rank)
	assert.Equal(t, 2, summaries[1].Rank)
	for _, s := range summaries {
		assert.Equal(t, 2, s.TotalCount)
		assert.Equal(t, 2, s.SuccessfulCount)
		assert.Zero(t, s.FailedCount)
		assert.InDelta(t, 0.8, s.OverallScore, 1e-9)
	}
}

func TestExecutor_FailedUnitsCounted(t *testing.T) {
	db := setupExecutorTest(t)

	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	registry.RegisterGenerator("stub", generatorFunc(func(_ context.Context, model, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		switch model {
		case "stub-judge":
			return &providers.GenerateResult{Text: `{"score": 0.5, "explanation": "ok"}`}, nil
		case "broken-model":
			return nil, fmt.Errorf("%w: upstream down", providers.ErrUnavailable)
		default:
			return &providers.GenerateResult{Text: "answer", PromptTokens: 10, CompletionTokens: 5}, nil
		}
	}))

	candidates := []models.CandidateModel{
		{Provider: "stub", Model: "working-model"},
		{Provider: "stub", Model: "broken-model"},
	}
	evaluation := createEvaluationFixture(t, db, candidates, false)

	executor := NewExecutor(db, &fixedRetrieval{}, registry, 2)
	executor.Run(context.Background(), evaluation.ID)

	var got models.Evaluation
	require.NoError(t, db.First(&got, "id = ?", evaluation.ID).Error)
	// Unit failures do not fail the run.
	assert.Equal(t, models.EvaluationStatusCompleted, got.Status)

	var summaries []models.EvaluationSummary
	require.NoError(t, db.Where("evaluation_id = ?", evaluation.ID).Find(&summaries).Error)
	require.Len(t, summaries, 2)
	byModel := map[string]models.EvaluationSummary{}
	for _, s := range summaries {
		byModel[s.Model] = s
	}
	assert.Equal(t, 2, byModel["working-model"].SuccessfulCount)
	assert.Equal(t, 2, byModel["broken-model"].FailedCount)
	assert.Zero(t, byModel["broken-model"].SuccessfulCount)
	// No expected answers: accuracy stays null, renormalized overall score.
	assert.Nil(t, byModel["working-model"].MeanAccuracy)
	assert.InDelta(t, 0.5, byModel["working-model"].OverallScore, 1e-9)
}

func TestExecutor_CancellationFailsRunWithoutFurtherWrites(t *testing.T) {
	db := setupExecutorTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The second candidate call cancels the run mid-units.
	var candidateCalls int32
	var mu sync.Mutex
	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	registry.RegisterGenerator("stub", generatorFunc(func(ctx context.Context, model, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		if model == "stub-judge" {
			return &providers.GenerateResult{Text: `{"score": 0.7, "explanation": "ok"}`}, nil
		}
		mu.Lock()
		candidateCalls++
		second := candidateCalls == 2
		mu.Unlock()
		if second {
			cancel()
			return nil, ctx.Err()
		}
		return &providers.GenerateResult{Text: "answer", PromptTokens: 10, CompletionTokens: 5}, nil
	}))

	evaluation := createEvaluationFixture(t, db, []models.CandidateModel{{Provider: "stub", Model: "m"}}, false)

	// A single worker keeps the unit order deterministic: the first unit
	// completes, the second cancels.
	executor := NewExecutor(db, &fixedRetrieval{}, registry, 1)
	executor.Run(ctx, evaluation.ID)

	var got models.Evaluation
	require.NoError(t, db.First(&got, "id = ?", evaluation.ID).Error)
	assert.Equal(t, models.EvaluationStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "cancelled")

	// Only the pre-cancel unit was persisted; nothing is written after the
	// cancellation, so no summaries exist either.
	var resultCount int64
	require.NoError(t, db.Model(&models.ModelResult{}).Where("evaluation_id = ?", evaluation.ID).Count(&resultCount).Error)
	assert.Equal(t, int64(1), resultCount)

	var summaryCount int64
	require.NoError(t, db.Model(&models.EvaluationSummary{}).Where("evaluation_id = ?", evaluation.ID).Count(&summaryCount).Error)
	assert.Zero(t, summaryCount)
}

func TestExecutor_UnknownProviderFailsRun(t *testing.T) {
	db := setupExecutorTest(t)

	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	candidates := []models.CandidateModel{{Provider: "nonexistent", Model: "x"}}
	evaluation := createEvaluationFixture(t, db, candidates, false)

	executor := NewExecutor(db, &fixedRetrieval{}, registry, 2)
	executor.Run(context.Background(), evaluation.ID)

	var got models.Evaluation
	require.NoError(t, db.First(&got, "id = ?", evaluation.ID).Error)
	assert.Equal(t, models.EvaluationStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "unknown provider")
}

func TestExecutor_NotPendingRejected(t *testing.T) {
	db := setupExecutorTest(t)

	registry := providers.NewRegistry(providers.Config{}, nil, nil)
	registry.RegisterGenerator("stub", generatorFunc(func(_ context.Context, _, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		return &providers.GenerateResult{Text: `{"score": 1, "explanation": "x"}`}, nil
	}))
	evaluation := createEvaluationFixture(t, db, []models.CandidateModel{{Provider: "stub", Model: "m"}}, false)
	require.NoError(t, db.Model(evaluation).Update("status", models.EvaluationStatusCompleted).Error)

	executor := NewExecutor(db, &fixedRetrieval{}, registry, 2)
	_, err := executor.claim(context.Background(), evaluation.ID)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

package impl

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/services"
)

type resultsServiceImpl struct {
	db *gorm.DB
}

func NewResultsService(db *gorm.DB) services.ResultsService {
	return &resultsServiceImpl{db: db}
}

func (s *resultsServiceImpl) getOwned(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	err := s.db.WithContext(ctx).First(&evaluation, "id = ? AND owner_id = ?", evaluationID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: evaluation %s", models.ErrNotFound, evaluationID)
		}
		return nil, err
	}
	return &evaluation, nil
}

// GetSummary returns the ranked per-candidate aggregates, best first.
func (s *resultsServiceImpl) GetSummary(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) ([]models.EvaluationSummary, error) {
	if _, err := s.getOwned(ctx, evaluationID, ownerID); err != nil {
		return nil, err
	}

	var summaries []models.EvaluationSummary
	err := s.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("rank ASC").
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// GetDetailed returns every unit result joined with its metrics, ordered by
// question index then candidate declaration order. Temporal execution order
// is not preserved anywhere; this is the canonical read order.
func (s *resultsServiceImpl) GetDetailed(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) ([]models.DetailedResult, error) {
	if _, err := s.getOwned(ctx, evaluationID, ownerID); err != nil {
		return nil, err
	}

	var results []models.ModelResult
	err := s.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("question_index ASC, candidate_index ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	var metricRows []models.QuestionMetrics
	err = s.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Find(&metricRows).Error
	if err != nil {
		return nil, err
	}
	metricsByResult := make(map[uuid.UUID]*models.QuestionMetrics, len(metricRows))
	for i := range metricRows {
		metricsByResult[metricRows[i].ModelResultID] = &metricRows[i]
	}

	questionIDs := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		questionIDs = append(questionIDs, r.QuestionID)
	}
	questionsByID := map[uuid.UUID]models.TestQuestion{}
	if len(questionIDs) > 0 {
		var questions []models.TestQuestion
		if err := s.db.WithContext(ctx).Where("id IN ?", questionIDs).Find(&questions).Error; err != nil {
			return nil, err
		}
		for _, q := range questions {
			questionsByID[q.ID] = q
		}
	}

	detailed := make([]models.DetailedResult, 0, len(results))
	for _, r := range results {
		q := questionsByID[r.QuestionID]
		detailed = append(detailed, models.DetailedResult{
			QuestionIndex:  r.QuestionIndex,
			QuestionText:   q.QuestionText,
			ExpectedAnswer: q.ExpectedAnswer,
			Result:         r,
			Metrics:        metricsByResult[r.ID],
		})
	}
	return detailed, nil
}

// GetMetricsByModel groups the detailed results under each candidate's
// "{provider}/{model}" key, each group ordered by question index.
func (s *resultsServiceImpl) GetMetricsByModel(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) (map[string][]models.DetailedResult, error) {
	detailed, err := s.GetDetailed(ctx, evaluationID, ownerID)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]models.DetailedResult{}
	for _, d := range detailed {
		key := models.CandidateModel{Provider: d.Result.Provider, Model: d.Result.Model}.Key()
		grouped[key] = append(grouped[key], d)
	}
	for key := range grouped {
		group := grouped[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].QuestionIndex < group[j].QuestionIndex
		})
		grouped[key] = group
	}
	return grouped, nil
}

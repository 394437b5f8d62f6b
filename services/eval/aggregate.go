package eval

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ragbench/models"
)

// Metric weights for the overall score. When a metric has no scored values
// for a candidate (accuracy on datasets without expected answers, or a judge
// that never produced the metric), the remaining weights renormalize to sum
// to 1.
const (
	weightAccuracy           = 0.30
	weightFaithfulness       = 0.30
	weightReasoning          = 0.20
	weightContextUtilization = 0.20
)

// meanAgg accumulates an optional mean: metrics with zero samples stay nil.
type meanAgg struct {
	sum   float64
	count int
}

func (a *meanAgg) add(v *float64) {
	if v == nil {
		return
	}
	a.sum += *v
	a.count++
}

func (a *meanAgg) mean() *float64 {
	if a.count == 0 {
		return nil
	}
	m := a.sum / float64(a.count)
	return &m
}

type candidateAgg struct {
	accuracy     meanAgg
	faithfulness meanAgg
	reasoning    meanAgg
	contextUtil  meanAgg

	latencySum float64
	costSum    float64
	successful int
	failed     int
}

// overallScore is the weighted mean over the metric means that exist,
// renormalized so the applied weights always sum to 1. A candidate with no
// scored metrics gets 0.
func overallScore(acc, faith, reason, ctxUtil *float64) float64 {
	var weighted, weightSum float64
	add := func(v *float64, w float64) {
		if v == nil {
			return
		}
		weighted += *v * w
		weightSum += w
	}
	add(acc, weightAccuracy)
	add(faith, weightFaithfulness)
	add(reason, weightReasoning)
	add(ctxUtil, weightContextUtilization)

	if weightSum == 0 {
		return 0
	}
	return weighted / weightSum
}

// aggregate builds one EvaluationSummary per candidate from the stored unit
// results, ranks them and persists the summaries.
func (e *Executor) aggregate(ctx context.Context, eval *models.Evaluation, questionCount int) error {
	var results []models.ModelResult
	if err := e.db.WithContext(ctx).
		Where("evaluation_id = ?", eval.ID).
		Find(&results).Error; err != nil {
		return err
	}

	var metricRows []models.QuestionMetrics
	if err := e.db.WithContext(ctx).
		Where("evaluation_id = ?", eval.ID).
		Find(&metricRows).Error; err != nil {
		return err
	}
	metricsByResult := make(map[uuid.UUID]*models.QuestionMetrics, len(metricRows))
	for i := range metricRows {
		metricsByResult[metricRows[i].ModelResultID] = &metricRows[i]
	}

	aggs := make([]candidateAgg, len(eval.Candidates))
	for i := range results {
		r := &results[i]
		if r.CandidateIndex < 0 || r.CandidateIndex >= len(aggs) {
			continue
		}
		agg := &aggs[r.CandidateIndex]

		if !r.Succeeded() {
			agg.failed++
			continue
		}
		agg.successful++
		agg.latencySum += float64(r.LatencyMs)
		agg.costSum += r.CostUSD

		if m := metricsByResult[r.ID]; m != nil {
			agg.accuracy.add(m.Accuracy)
			agg.faithfulness.add(m.Faithfulness)
			agg.reasoning.add(m.Reasoning)
			agg.contextUtil.add(m.ContextUtilization)
		}
	}

	summaries := make([]models.EvaluationSummary, len(eval.Candidates))
	for i, c := range eval.Candidates {
		agg := &aggs[i]
		s := models.EvaluationSummary{
			ID:              uuid.New(),
			EvaluationID:    eval.ID,
			Provider:        c.Provider,
			Model:           c.Model,
			CandidateIndex:  i,
			TotalCount:      questionCount,
			SuccessfulCount: agg.successful,
			FailedCount:     agg.failed,
			CreatedAt:       time.Now(),
		}
		if agg.successful > 0 {
			s.MeanLatencyMs = agg.latencySum / float64(agg.successful)
			s.MeanCostUSD = agg.costSum / float64(agg.successful)
		}
		s.TotalCostUSD = agg.costSum
		s.MeanAccuracy = agg.accuracy.mean()
		s.MeanFaithfulness = agg.faithfulness.mean()
		s.MeanReasoning = agg.reasoning.mean()
		s.MeanContextUtilization = agg.contextUtil.mean()
		s.OverallScore = overallScore(s.MeanAccuracy, s.MeanFaithfulness, s.MeanReasoning, s.MeanContextUtilization)
		summaries[i] = s
	}

	rankSummaries(summaries)

	return e.db.WithContext(ctx).Create(&summaries).Error
}

// rankSummaries assigns 1-based ranks: overall score descending, ties broken
// by lower mean latency, then lower mean cost.
func rankSummaries(summaries []models.EvaluationSummary) {
	order := make([]*models.EvaluationSummary, len(summaries))
	for i := range summaries {
		order[i] = &summaries[i]
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		if a.MeanLatencyMs != b.MeanLatencyMs {
			return a.MeanLatencyMs < b.MeanLatencyMs
		}
		return a.MeanCostUSD < b.MeanCostUSD
	})
	for rank, s := range order {
		s.Rank = rank + 1
	}
}

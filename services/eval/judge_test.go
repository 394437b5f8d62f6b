package eval

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbench/models"
	"github.com/ragbench/providers"
)

type generatorFunc func(ctx context.Context, model, prompt string, opts providers.GenerateOptions) (*providers.GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, model, prompt string, opts providers.GenerateOptions) (*providers.GenerateResult, error) {
	return f(ctx, model, prompt, opts)
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		score float64
		ok    bool
	}{
		{"bare object", `{"score": 0.8, "explanation": "good"}`, 0.8, true},
		{"prose prefix", `Here is my verdict: {"score": 0.5, "explanation": "mixed"}`, 0.5, true},
		{"markdown fence", "```json\n{\"score\": 1, \"explanation\": \"perfect\"}\n```", 1, true},
		{"trailing prose", `{"score": 0.25, "explanation": "weak"} Overall a weak answer.`, 0.25, true},
		{"no object", `the answer is fine`, 0, false},
		{"malformed", `{"score": "not a number"}`, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := parseVerdict(tc.text)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.score, v.Score)
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.3))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.42, clamp01(0.42))
}

func TestScoreAll_AllMetrics(t *testing.T) {
	stub := generatorFunc(func(_ context.Context, _, _ string, opts providers.GenerateOptions) (*providers.GenerateResult, error) {
		assert.Equal(t, 0.0, opts.Temperature)
		return &providers.GenerateResult{Text: `{"score": 0.9, "explanation": "solid"}`}, nil
	})
	judge := NewJudge(stub, "judge-model")

	expected := "forty-two"
	var metrics models.QuestionMetrics
	err := judge.ScoreAll(context.Background(), unitAnswer{
		Question:       "what is the answer?",
		ExpectedAnswer: &expected,
		Context:        "the answer is forty-two",
		Answer:         "forty-two",
	}, &metrics)
	require.NoError(t, err)

	require.NotNil(t, metrics.Accuracy)
	require.NotNil(t, metrics.Faithfulness)
	require.NotNil(t, metrics.Reasoning)
	require.NotNil(t, metrics.ContextUtilization)
	assert.Equal(t, 0.9, *metrics.Accuracy)
	assert.Equal(t, "solid", *metrics.FaithfulnessNote)
	assert.NotEmpty(t, metrics.RawVerdicts)
}

func TestScoreAll_SkipsAccuracyWithoutExpectedAnswer(t *testing.T) {
	stub := generatorFunc(func(_ context.Context, _, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		return &providers.GenerateResult{Text: `{"score": 0.6, "explanation": "ok"}`}, nil
	})
	judge := NewJudge(stub, "judge-model")

	var metrics models.QuestionMetrics
	err := judge.ScoreAll(context.Background(), unitAnswer{
		Question: "why?",
		Context:  "because",
		Answer:   "because",
	}, &metrics)
	require.NoError(t, err)

	assert.Nil(t, metrics.Accuracy)
	assert.Nil(t, metrics.AccuracyNote)
	assert.NotNil(t, metrics.Faithfulness)
	assert.NotNil(t, metrics.Reasoning)
	assert.NotNil(t, metrics.ContextUtilization)
}

func TestScoreAll_UnparseableLeavesMetricNull(t *testing.T) {
	var calls atomic.Int32
	stub := generatorFunc(func(_ context.Context, _, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		calls.Add(1)
		return &providers.GenerateResult{Text: "no JSON here"}, nil
	})
	judge := NewJudge(stub, "judge-model")

	var metrics models.QuestionMetrics
	err := judge.ScoreAll(context.Background(), unitAnswer{
		Question: "q", Context: "c", Answer: "a",
	}, &metrics)
	require.NoError(t, err)

	assert.Nil(t, metrics.Faithfulness)
	assert.Nil(t, metrics.Reasoning)
	assert.Nil(t, metrics.ContextUtilization)
	assert.Empty(t, metrics.RawVerdicts)
	// 3 metrics, 2 attempts each.
	assert.Equal(t, int32(6), calls.Load())
}

func TestScoreAll_ProviderFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	stub := generatorFunc(func(_ context.Context, _, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		calls.Add(1)
		return nil, fmt.Errorf("%w: upstream down", providers.ErrUnavailable)
	})
	judge := NewJudge(stub, "judge-model")

	var metrics models.QuestionMetrics
	err := judge.ScoreAll(context.Background(), unitAnswer{
		Question: "q", Context: "c", Answer: "a",
	}, &metrics)
	require.NoError(t, err)

	assert.Nil(t, metrics.Faithfulness)
	assert.Nil(t, metrics.Reasoning)
	assert.Nil(t, metrics.ContextUtilization)
	// Generate already carries the retry policy, so a provider error here is
	// final: one call per metric, no second attempt.
	assert.Equal(t, int32(3), calls.Load())
}

func TestScoreAll_ClampsOutOfRangeScores(t *testing.T) {
	stub := generatorFunc(func(_ context.Context, _, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		return &providers.GenerateResult{Text: `{"score": 3.5, "explanation": "overshoot"}`}, nil
	})
	judge := NewJudge(stub, "judge-model")

	var metrics models.QuestionMetrics
	err := judge.ScoreAll(context.Background(), unitAnswer{
		Question: "q", Context: "c", Answer: "a",
	}, &metrics)
	require.NoError(t, err)
	require.NotNil(t, metrics.Faithfulness)
	assert.Equal(t, 1.0, *metrics.Faithfulness)
}

func TestScoreAll_AuthFailureAborts(t *testing.T) {
	stub := generatorFunc(func(_ context.Context, _, _ string, _ providers.GenerateOptions) (*providers.GenerateResult, error) {
		return nil, fmt.Errorf("%w: no key", providers.ErrAuth)
	})
	judge := NewJudge(stub, "judge-model")

	var metrics models.QuestionMetrics
	err := judge.ScoreAll(context.Background(), unitAnswer{
		Question: "q", Context: "c", Answer: "a",
	}, &metrics)
	assert.ErrorIs(t, err, providers.ErrAuth)
}

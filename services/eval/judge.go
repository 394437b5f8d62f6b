package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ragbench/models"
	"github.com/ragbench/providers"
)

// Metric is one of the four judged quality dimensions.
type Metric string

const (
	MetricAccuracy           Metric = "accuracy"
	MetricFaithfulness       Metric = "faithfulness"
	MetricReasoning          Metric = "reasoning"
	MetricContextUtilization Metric = "context_utilization"
)

// judgeMaxTokens bounds the judge completion; a score object is tiny.
const judgeMaxTokens = 512

// Judge scores generated answers with an LLM, one call per metric. Judge
// calls always run at temperature 0 so repeated runs agree as much as the
// model allows.
type Judge struct {
	generator providers.Generator
	model     string
}

func NewJudge(generator providers.Generator, model string) *Judge {
	return &Judge{generator: generator, model: model}
}

type judgeVerdict struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// unit is the judged material for one (question, candidate) pair.
type unitAnswer struct {
	Question       string
	ExpectedAnswer *string
	Context        string
	Answer         string
}

func (m Metric) prompt(u unitAnswer) string {
	var b strings.Builder
	b.WriteString("You are an impartial evaluator of question-answering systems. ")

	switch m {
	case MetricAccuracy:
		b.WriteString("Judge whether the answer is semantically correct compared to the expected answer. Superficial wording differences do not matter; factual agreement does.\n\n")
		fmt.Fprintf(&b, "Question: %s\n\nExpected answer: %s\n\nActual answer: %s\n\n", u.Question, *u.ExpectedAnswer, u.Answer)
	case MetricFaithfulness:
		b.WriteString("Judge whether every claim in the answer is grounded in the provided context. Penalize any claim the context does not support, even if it happens to be true.\n\n")
		fmt.Fprintf(&b, "Context:\n%s\n\nQuestion: %s\n\nAnswer: %s\n\n", u.Context, u.Question, u.Answer)
	case MetricReasoning:
		b.WriteString("Judge the quality of the answer's logical flow: does it reason coherently from the question to its conclusion?\n\n")
		fmt.Fprintf(&b, "Question: %s\n\nAnswer: %s\n\n", u.Question, u.Answer)
	case MetricContextUtilization:
		b.WriteString("Judge how effectively the answer makes use of the provided context: does it draw on the relevant passages rather than ignoring them?\n\n")
		fmt.Fprintf(&b, "Context:\n%s\n\nQuestion: %s\n\nAnswer: %s\n\n", u.Context, u.Question, u.Answer)
	}

	b.WriteString(`Respond with a single JSON object and nothing else: {"score": <number between 0 and 1>, "explanation": "<one sentence>"}`)
	return b.String()
}

// scoreMetric runs one judge call for one metric, retrying the parse once
// with a fresh call. Provider failures are not retried here: Generate already
// sits behind the retry policy, so a provider error at this level is final and
// the metric stays null. A metric that cannot be scored comes back nil; auth
// errors are reported so the run can abort on a misconfigured judge.
func (j *Judge) scoreMetric(ctx context.Context, m Metric, u unitAnswer) (*judgeVerdict, error) {
	prompt := m.prompt(u)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, err := j.generator.Generate(ctx, j.model, prompt, providers.GenerateOptions{
			Temperature: 0,
			MaxTokens:   judgeMaxTokens,
		})
		if err != nil {
			if errors.Is(err, providers.ErrAuth) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			break
		}

		verdict, err := parseVerdict(result.Text)
		if err != nil {
			lastErr = err
			continue
		}
		return verdict, nil
	}

	log.Printf("Judge metric %s unscored: %v", m, lastErr)
	return nil, nil
}

// parseVerdict extracts the first JSON object from the judge's output. Judges
// occasionally wrap the object in prose or a markdown fence; everything
// before the first '{' is discarded and a single object is decoded.
func parseVerdict(text string) (*judgeVerdict, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in judge output")
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var v judgeVerdict
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode judge output: %w", err)
	}
	return &v, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScoreAll runs the four metric judgements in parallel and fills a
// QuestionMetrics. Accuracy is skipped when the question carries no expected
// answer. The returned error is non-nil only for abort conditions (judge
// auth failure, cancellation); individual unscored metrics stay null.
func (j *Judge) ScoreAll(ctx context.Context, u unitAnswer, metrics *models.QuestionMetrics) error {
	type slot struct {
		metric Metric
		score  **float64
		note   **string
	}
	slots := []slot{
		{MetricFaithfulness, &metrics.Faithfulness, &metrics.FaithfulnessNote},
		{MetricReasoning, &metrics.Reasoning, &metrics.ReasoningNote},
		{MetricContextUtilization, &metrics.ContextUtilization, &metrics.ContextNote},
	}
	if u.ExpectedAnswer != nil {
		slots = append(slots, slot{MetricAccuracy, &metrics.Accuracy, &metrics.AccuracyNote})
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		abortErr error
		verdicts = map[string]judgeVerdict{}
	)
	for _, sl := range slots {
		wg.Add(1)
		go func(sl slot) {
			defer wg.Done()
			verdict, err := j.scoreMetric(ctx, sl.metric, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if abortErr == nil {
					abortErr = err
				}
				return
			}
			if verdict == nil {
				return
			}
			score := clamp01(verdict.Score)
			note := verdict.Explanation
			*sl.score = &score
			*sl.note = &note
			verdicts[string(sl.metric)] = *verdict
		}(sl)
	}
	wg.Wait()

	if abortErr != nil {
		return abortErr
	}

	if len(verdicts) > 0 {
		raw, err := models.ConvertToJSON(verdicts)
		if err == nil {
			metrics.RawVerdicts = raw
		}
	}
	return nil
}

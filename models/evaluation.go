package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EvaluationStatus string

const (
	EvaluationStatusPending   EvaluationStatus = "pending"
	EvaluationStatusRunning   EvaluationStatus = "running"
	EvaluationStatusCompleted EvaluationStatus = "completed"
	EvaluationStatusFailed    EvaluationStatus = "failed"
)

// CandidateModel identifies one model under evaluation.
type CandidateModel struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Key renders the "{provider}/{model}" form used to index results.
func (m CandidateModel) Key() string {
	return fmt.Sprintf("%s/%s", m.Provider, m.Model)
}

// CandidateModelList is a JSONB column holding the candidates in declaration
// order. Declaration order is a tie-break key for stored results, so the
// order round-trips through the database unchanged.
type CandidateModelList []CandidateModel

func (l CandidateModelList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]CandidateModel{})
	}
	return json.Marshal(l)
}

func (l *CandidateModelList) Scan(value interface{}) error {
	if value == nil {
		*l = CandidateModelList{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), l)
	}

	return json.Unmarshal(bytes, l)
}

// EvaluationSettings holds per-run knobs for retrieval and generation.
type EvaluationSettings struct {
	TopK                int      `json:"top_k"`
	Temperature         float64  `json:"temperature"`
	MaxTokens           int      `json:"max_tokens"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	WorkerPoolSize      int      `json:"worker_pool_size,omitempty"`
}

func (s EvaluationSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *EvaluationSettings) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), s)
	}

	return json.Unmarshal(bytes, s)
}

// DefaultEvaluationSettings returns the settings applied when a field is
// omitted from the create request.
func DefaultEvaluationSettings() EvaluationSettings {
	return EvaluationSettings{
		TopK:        5,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

// Evaluation is a run definition: a dataset driven through every candidate
// model, scored by the judge model.
type Evaluation struct {
	ID            uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DatasetID     uuid.UUID          `json:"dataset_id" gorm:"type:uuid;index;not null"`
	OwnerID       uuid.UUID          `json:"owner_id" gorm:"type:uuid;index;not null"`
	Name          string             `json:"name"`
	Candidates    CandidateModelList `json:"candidate_models" gorm:"type:jsonb;not null"`
	JudgeProvider string             `json:"judge_provider" gorm:"not null"`
	JudgeModel    string             `json:"judge_model" gorm:"not null"`
	Settings      EvaluationSettings `json:"settings" gorm:"type:jsonb"`
	Status        EvaluationStatus   `json:"status" gorm:"index;not null;default:'pending'"`
	ErrorMessage  *string            `json:"error_message,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// ModelResult is the outcome of one (question, candidate) unit: the generated
// answer plus the automated latency/cost/token measurements.
type ModelResult struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EvaluationID     uuid.UUID `json:"evaluation_id" gorm:"type:uuid;index;not null"`
	QuestionID       uuid.UUID `json:"question_id" gorm:"type:uuid;index;not null"`
	QuestionIndex    int       `json:"question_index" gorm:"not null"`
	Provider         string    `json:"provider" gorm:"not null"`
	Model            string    `json:"model" gorm:"not null"`
	CandidateIndex   int       `json:"candidate_index" gorm:"not null"`
	GeneratedAnswer  string    `json:"generated_answer"`
	RetrievedContext string    `json:"retrieved_context"`
	LatencyMs        int64     `json:"latency_ms"`
	CostUSD          float64   `json:"cost_usd"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Error            *string   `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Succeeded reports whether the unit produced an answer. Judge-only failures
// do not fail the unit.
func (r *ModelResult) Succeeded() bool {
	return r.Error == nil
}

// QuestionMetrics holds the judge scores for one ModelResult. Each score is
// in [0,1] or null when the judge call failed after retries; Accuracy is null
// when the question has no expected answer.
type QuestionMetrics struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EvaluationID       uuid.UUID `json:"evaluation_id" gorm:"type:uuid;index;not null"`
	ModelResultID      uuid.UUID `json:"model_result_id" gorm:"type:uuid;uniqueIndex;not null"`
	Accuracy           *float64  `json:"accuracy,omitempty"`
	AccuracyNote       *string   `json:"accuracy_note,omitempty"`
	Faithfulness       *float64  `json:"faithfulness,omitempty"`
	FaithfulnessNote   *string   `json:"faithfulness_note,omitempty"`
	Reasoning          *float64  `json:"reasoning,omitempty"`
	ReasoningNote      *string   `json:"reasoning_note,omitempty"`
	ContextUtilization *float64  `json:"context_utilization,omitempty"`
	ContextNote        *string   `json:"context_utilization_note,omitempty"`
	// RawVerdicts keeps the judge's verbatim verdict objects keyed by metric
	// for audits of the parsed scores.
	RawVerdicts datatypes.JSON `json:"raw_verdicts,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time      `json:"created_at"`
}

// EvaluationSummary is the per-candidate aggregate for a completed run.
type EvaluationSummary struct {
	ID                     uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EvaluationID           uuid.UUID `json:"evaluation_id" gorm:"type:uuid;index;not null"`
	Provider               string    `json:"provider" gorm:"not null"`
	Model                  string    `json:"model" gorm:"not null"`
	CandidateIndex         int       `json:"candidate_index" gorm:"not null"`
	Rank                   int       `json:"rank"`
	MeanAccuracy           *float64  `json:"mean_accuracy,omitempty"`
	MeanFaithfulness       *float64  `json:"mean_faithfulness,omitempty"`
	MeanReasoning          *float64  `json:"mean_reasoning,omitempty"`
	MeanContextUtilization *float64  `json:"mean_context_utilization,omitempty"`
	MeanLatencyMs          float64   `json:"mean_latency_ms"`
	MeanCostUSD            float64   `json:"mean_cost_usd"`
	TotalCostUSD           float64   `json:"total_cost_usd"`
	OverallScore           float64   `json:"overall_score"`
	TotalCount             int       `json:"total_count"`
	SuccessfulCount        int       `json:"successful_count"`
	FailedCount            int       `json:"failed_count"`
	CreatedAt              time.Time `json:"created_at"`
}

type CreateEvaluationRequest struct {
	DatasetID     uuid.UUID           `json:"dataset_id" binding:"required"`
	Name          string              `json:"name"`
	Candidates    []CandidateModel    `json:"candidate_models" binding:"required,min=1"`
	JudgeProvider string              `json:"judge_provider" binding:"required"`
	JudgeModel    string              `json:"judge_model" binding:"required"`
	Settings      *EvaluationSettings `json:"settings,omitempty"`
}

// DetailedResult pairs one ModelResult with its judge metrics for the
// per-question results endpoint.
type DetailedResult struct {
	QuestionIndex  int              `json:"question_index"`
	QuestionText   string           `json:"question_text"`
	ExpectedAnswer *string          `json:"expected_answer,omitempty"`
	Result         ModelResult      `json:"result"`
	Metrics        *QuestionMetrics `json:"metrics,omitempty"`
}

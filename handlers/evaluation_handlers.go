package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragbench/models"
	"github.com/ragbench/services"
)

type EvaluationHandlers struct {
	datasetService    services.DatasetService
	evaluationService services.EvaluationService
	resultsService    services.ResultsService
}

func NewEvaluationHandlers(datasetService services.DatasetService, evaluationService services.EvaluationService, resultsService services.ResultsService) *EvaluationHandlers {
	return &EvaluationHandlers{
		datasetService:    datasetService,
		evaluationService: evaluationService,
		resultsService:    resultsService,
	}
}

func (h *EvaluationHandlers) CreateDataset(c *gin.Context) {
	var req models.CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	dataset, err := h.datasetService.CreateDataset(c.Request.Context(), req, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dataset)
}

func (h *EvaluationHandlers) GetDataset(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	dataset, err := h.datasetService.GetDataset(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataset)
}

func (h *EvaluationHandlers) AddQuestion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req models.AddQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	question, err := h.datasetService.AddQuestion(c.Request.Context(), id, req, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, question)
}

// CreateEvaluation persists the run and starts it in the background. The
// response is the pending evaluation row; clients poll GET /evaluation/{id}.
func (h *EvaluationHandlers) CreateEvaluation(c *gin.Context) {
	var req models.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	evaluation, err := h.evaluationService.CreateEvaluation(c.Request.Context(), req, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, evaluation)
}

func (h *EvaluationHandlers) GetEvaluation(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	evaluation, err := h.evaluationService.GetEvaluation(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

func (h *EvaluationHandlers) DeleteEvaluation(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.evaluationService.DeleteEvaluation(c.Request.Context(), id, ownerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Evaluation deleted"})
}

func (h *EvaluationHandlers) GetSummary(c *gin.Context) {
	id, ok := pathUUID(c, "eval_id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	summaries, err := h.resultsService.GetSummary(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": summaries})
}

func (h *EvaluationHandlers) GetDetailed(c *gin.Context) {
	id, ok := pathUUID(c, "eval_id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	detailed, err := h.resultsService.GetDetailed(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": detailed})
}

func (h *EvaluationHandlers) GetMetricsByModel(c *gin.Context) {
	id, ok := pathUUID(c, "eval_id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	grouped, err := h.resultsService.GetMetricsByModel(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics_by_model": grouped})
}

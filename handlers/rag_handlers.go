package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ragbench/services"
)

type RAGHandlers struct {
	documentService  services.DocumentService
	retrievalService services.RetrievalService
	workspaceService services.WorkspaceService
}

func NewRAGHandlers(documentService services.DocumentService, retrievalService services.RetrievalService, workspaceService services.WorkspaceService) *RAGHandlers {
	return &RAGHandlers{
		documentService:  documentService,
		retrievalService: retrievalService,
		workspaceService: workspaceService,
	}
}

func (h *RAGHandlers) GetDocument(c *gin.Context) {
	id, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ProcessDocument re-drives ingestion for a pending or failed document. A
// processing or completed document answers 409.
func (h *RAGHandlers) ProcessDocument(c *gin.Context) {
	id, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.ProcessDocument(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *RAGHandlers) DeleteDocument(c *gin.Context) {
	id, ok := pathUUID(c, "document_id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), id, ownerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

type queryRequest struct {
	WorkspaceID         uuid.UUID `json:"workspace_id" binding:"required"`
	Query               string    `json:"query" binding:"required"`
	TopK                int       `json:"top_k"`
	SimilarityThreshold *float64  `json:"similarity_threshold,omitempty"`
}

type queryMatch struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Score      float64   `json:"score"`
	Text       string    `json:"text"`
}

// Query answers ad-hoc retrieval against a workspace's index.
func (h *RAGHandlers) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}

	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}
	if _, err := h.workspaceService.GetWorkspace(c.Request.Context(), req.WorkspaceID, ownerID); err != nil {
		respondError(c, err)
		return
	}

	matches, err := h.retrievalService.Retrieve(c.Request.Context(), req.WorkspaceID, req.Query, req.TopK, req.SimilarityThreshold)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]queryMatch, len(matches))
	for i, m := range matches {
		out[i] = queryMatch{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			ChunkIndex: m.ChunkIndex,
			Score:      m.Score,
			Text:       m.Text,
		}
	}
	c.JSON(http.StatusOK, gin.H{"matches": out, "total": len(out)})
}

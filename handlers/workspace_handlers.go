package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ragbench/models"
	"github.com/ragbench/services"
)

type WorkspaceHandlers struct {
	workspaceService services.WorkspaceService
	documentService  services.DocumentService
}

func NewWorkspaceHandlers(workspaceService services.WorkspaceService, documentService services.DocumentService) *WorkspaceHandlers {
	return &WorkspaceHandlers{
		workspaceService: workspaceService,
		documentService:  documentService,
	}
}

func (h *WorkspaceHandlers) CreateWorkspace(c *gin.Context) {
	var req models.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	ws, err := h.workspaceService.CreateWorkspace(c.Request.Context(), req, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ws)
}

func (h *WorkspaceHandlers) GetWorkspace(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	ws, err := h.workspaceService.GetWorkspace(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}

func (h *WorkspaceHandlers) ListWorkspaces(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	list, err := h.workspaceService.ListWorkspaces(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *WorkspaceHandlers) DeleteWorkspace(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.workspaceService.DeleteWorkspace(c.Request.Context(), id, ownerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Workspace deleted"})
}

func (h *WorkspaceHandlers) ListDocuments(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	list, err := h.workspaceService.ListDocuments(c.Request.Context(), id, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UploadDocument accepts a multipart form with a "file" part, stores the
// bytes and triggers ingestion. The response is the pending document row;
// clients poll it for terminal state.
func (h *WorkspaceHandlers) UploadDocument(c *gin.Context) {
	workspaceID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Multipart form must include a 'file' part", "details": err.Error()})
		return
	}
	if fileHeader.Size > models.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large", "details": fmt.Sprintf("uploads are capped at %d bytes", models.MaxUploadBytes)})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	// The size check above trusts the multipart header; the limited reader
	// bounds the buffer even when the header lies.
	data, err := io.ReadAll(io.LimitReader(file, models.MaxUploadBytes+1))
	if err != nil {
		respondError(c, err)
		return
	}

	doc, err := h.documentService.UploadDocument(
		c.Request.Context(),
		workspaceID,
		ownerID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		data,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

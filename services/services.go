package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ragbench/models"
	"github.com/ragbench/vectorstore"
)

type WorkspaceService interface {
	CreateWorkspace(ctx context.Context, req models.CreateWorkspaceRequest, ownerID uuid.UUID) (*models.Workspace, error)
	GetWorkspace(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Workspace, error)
	ListWorkspaces(ctx context.Context, ownerID uuid.UUID) (*models.WorkspaceListResponse, error)
	// DeleteWorkspace cancels in-flight work for the workspace and cascades
	// to documents, chunks, vector records and uploaded files.
	DeleteWorkspace(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error
	ListDocuments(ctx context.Context, workspaceID uuid.UUID, ownerID uuid.UUID) (*models.DocumentListResponse, error)
}

type DocumentService interface {
	// UploadDocument persists the source bytes, creates the pending row and
	// triggers ingestion in the background.
	UploadDocument(ctx context.Context, workspaceID, ownerID uuid.UUID, fileName, contentType string, data []byte) (*models.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Document, error)
	// ProcessDocument re-drives ingestion for a pending or failed document.
	ProcessDocument(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error
}

type DatasetService interface {
	CreateDataset(ctx context.Context, req models.CreateDatasetRequest, ownerID uuid.UUID) (*models.TestDataset, error)
	GetDataset(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.TestDataset, error)
	AddQuestion(ctx context.Context, datasetID uuid.UUID, req models.AddQuestionRequest, ownerID uuid.UUID) (*models.TestQuestion, error)
}

// RetrievalService answers ad-hoc and evaluation-time retrieval: embed the
// query with the workspace's embedding model, then top-k against the index.
type RetrievalService interface {
	Retrieve(ctx context.Context, workspaceID uuid.UUID, query string, topK int, threshold *float64) ([]vectorstore.Match, error)
}

type EvaluationService interface {
	// CreateEvaluation validates the request, persists the pending row and
	// starts the run in the background.
	CreateEvaluation(ctx context.Context, req models.CreateEvaluationRequest, ownerID uuid.UUID) (*models.Evaluation, error)
	GetEvaluation(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Evaluation, error)
	DeleteEvaluation(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error
}

type ResultsService interface {
	GetSummary(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) ([]models.EvaluationSummary, error)
	GetDetailed(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) ([]models.DetailedResult, error)
	GetMetricsByModel(ctx context.Context, evaluationID uuid.UUID, ownerID uuid.UUID) (map[string][]models.DetailedResult, error)
}

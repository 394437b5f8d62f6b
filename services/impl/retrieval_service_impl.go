package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ragbench/models"
	"github.com/ragbench/providers"
	"github.com/ragbench/services"
	"github.com/ragbench/vectorstore"
)

type retrievalServiceImpl struct {
	db       *gorm.DB
	index    vectorstore.Index
	registry *providers.Registry
}

func NewRetrievalService(db *gorm.DB, index vectorstore.Index, registry *providers.Registry) services.RetrievalService {
	return &retrievalServiceImpl{
		db:       db,
		index:    index,
		registry: registry,
	}
}

// Retrieve embeds the query with the workspace's embedding model and returns
// the top-k matches. The query must be embedded by the same model that
// embedded the corpus or the similarity scores are meaningless.
func (s *retrievalServiceImpl) Retrieve(ctx context.Context, workspaceID uuid.UUID, query string, topK int, threshold *float64) ([]vectorstore.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrInputInvalid)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be positive", models.ErrInputInvalid)
	}
	if threshold != nil && (*threshold < -1 || *threshold > 1) {
		return nil, fmt.Errorf("%w: similarity_threshold must be in [-1,1]", models.ErrInputInvalid)
	}

	var ws models.Workspace
	if err := s.db.WithContext(ctx).First(&ws, "id = ?", workspaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: workspace %s", models.ErrNotFound, workspaceID)
		}
		return nil, err
	}

	embedder, err := s.registry.Embedder(ws.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	result, err := embedder.Embed(ctx, ws.EmbeddingModel, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(result.Vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(result.Vectors))
	}

	matches, err := s.index.Query(ctx, ws.ID, result.Vectors[0], topK, threshold)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// QueryUsecase serves nearest-neighbour retrieval for the downstream QA
// surface: embed the query text, search the tenant's vectors.
type QueryUsecase struct {
	embedder ports.Embedder
	vectors  ports.VectorStore

	defaultTopK int
	logger      *slog.Logger
}

func NewQueryUsecase(embedder ports.Embedder, vectors ports.VectorStore, defaultTopK int, logger *slog.Logger) *QueryUsecase {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &QueryUsecase{
		embedder:    embedder,
		vectors:     vectors,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
}

func (u *QueryUsecase) Search(ctx context.Context, tenantID, query string, topK int) ([]domain.ScoredChunk, error) {
	if tenantID == "" || query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search",
			fmt.Errorf("tenant and query are required"))
	}
	if topK <= 0 {
		topK = u.defaultTopK
	}

	vector, err := u.embedder.EmbedQuery(ctx, tenantID, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := u.vectors.Query(ctx, tenantID, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	u.logger.Debug("search served", "tenant_id", tenantID, "top_k", topK, "results", len(results))
	return results, nil
}

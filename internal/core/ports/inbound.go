package ports

import (
	"context"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// SourceSyncer runs a full ingestion pass over one source.
type SourceSyncer interface {
	Sync(ctx context.Context, msg IngestMessage) error
}

// EmbedIndexer handles one dispatched embedding batch.
type EmbedIndexer interface {
	HandleBatch(ctx context.Context, msg EmbedBatchMessage) error
}

// LargeFileProcessor handles one deferred large-file unit.
type LargeFileProcessor interface {
	HandleLargeFile(ctx context.Context, msg LargeFileMessage) error
}

// Sweeper detects and removes chunks and documents orphaned by deleted
// sources.
type Sweeper interface {
	FindOrphans(ctx context.Context, tenantID string) ([]domain.OrphanGroup, error)
	Reconcile(ctx context.Context, tenantID string, dryRun bool) (domain.ReconcileReport, error)
}

// Reindexer re-chunks and re-embeds one document from its stored blob.
type Reindexer interface {
	Reindex(ctx context.Context, tenantID, documentID string) error
}

// Searcher serves nearest-neighbour lookups for the downstream QA interface.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, topK int) ([]domain.ScoredChunk, error)
}

// JobCanceller requests cooperative cancellation of a run.
type JobCanceller interface {
	Cancel(ctx context.Context, jobID string) error
}

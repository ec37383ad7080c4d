package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// EmbedUsecase consumes dispatched embedding batches: embed the chunk texts,
// persist the vectors on the chunk rows and index them for retrieval.
// Failures here are absorbed into job error counts; the embedding stage never
// fails a job.
type EmbedUsecase struct {
	chunks   ports.ChunkRepository
	embedder ports.Embedder
	vectors  ports.VectorStore
	jobs     ports.IngestJobRepository

	serviceName string
	telemetry   Telemetry
	logger      *slog.Logger
}

func NewEmbedUsecase(
	chunks ports.ChunkRepository,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	jobs ports.IngestJobRepository,
	serviceName string,
	telemetry Telemetry,
	logger *slog.Logger,
) *EmbedUsecase {
	if serviceName == "" {
		serviceName = "worker"
	}
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	return &EmbedUsecase{
		chunks:      chunks,
		embedder:    embedder,
		vectors:     vectors,
		jobs:        jobs,
		serviceName: serviceName,
		telemetry:   telemetry,
		logger:      logger,
	}
}

func (u *EmbedUsecase) HandleBatch(ctx context.Context, msg ports.EmbedBatchMessage) error {
	if !msg.DispatchedAt.IsZero() {
		u.telemetry.ObserveQueueLag(u.serviceName, "embed", time.Since(msg.DispatchedAt))
	}

	// Batches dispatched by a reindex carry no job; only job-owned batches
	// honor cancellation.
	if msg.JobID != "" {
		cancelled, err := u.jobs.IsCancelled(ctx, msg.JobID)
		if err != nil {
			return fmt.Errorf("check cancellation: %w", err)
		}
		if cancelled {
			u.logger.Info("embed batch dropped, job cancelled",
				"job_id", msg.JobID, "chunks", len(msg.ChunkIDs))
			return nil
		}
	}

	chunks, err := u.chunks.GetByIDs(ctx, msg.TenantID, msg.ChunkIDs)
	if err != nil {
		return fmt.Errorf("load chunk batch: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := u.embedder.EmbedBatch(ctx, msg.TenantID, texts)
	if err != nil {
		u.telemetry.EmbedBatchError(u.serviceName)
		u.absorb(ctx, msg.JobID, len(chunks))
		u.logger.Error("embed batch failed",
			"job_id", msg.JobID, "tenant_id", msg.TenantID, "chunks", len(chunks), "error", err)
		return nil
	}

	embeddings := make(map[string][]float32, len(chunks))
	records := make([]domain.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		embeddings[chunk.ID] = vectors[i]
		records[i] = domain.VectorRecord{
			ID:       chunk.ID,
			Vector:   vectors[i],
			Metadata: chunk.Metadata(),
		}
	}

	if err := u.chunks.SaveEmbeddings(ctx, msg.TenantID, embeddings); err != nil {
		u.absorb(ctx, msg.JobID, len(chunks))
		u.logger.Error("persist embeddings failed",
			"job_id", msg.JobID, "tenant_id", msg.TenantID, "chunks", len(chunks), "error", err)
		return nil
	}

	if err := u.vectors.Upsert(ctx, msg.TenantID, records); err != nil {
		u.telemetry.IndexError(u.serviceName)
		u.absorb(ctx, msg.JobID, len(records))
		u.logger.Error("vector index failed",
			"job_id", msg.JobID, "tenant_id", msg.TenantID, "chunks", len(records), "error", err)
		return nil
	}

	u.telemetry.AddChunksIndexed(u.serviceName, len(records))
	return nil
}

func (u *EmbedUsecase) absorb(ctx context.Context, jobID string, _ int) {
	if jobID == "" {
		return
	}
	if _, err := u.jobs.ApplyStatsDelta(ctx, jobID, domain.StatsDelta{Errors: 1}); err != nil {
		u.logger.Error("stats update failed", "job_id", jobID, "error", err)
	}
}

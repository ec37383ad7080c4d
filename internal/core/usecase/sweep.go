package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// SweepUsecase removes chunks and documents left behind by deleted sources.
// Deletion runs vectors first, then chunk rows, then the now-childless
// document, so an interruption at any point leaves only referencable data.
type SweepUsecase struct {
	chunks    ports.ChunkRepository
	documents ports.DocumentRepository
	vectors   ports.VectorStore
	storage   ports.ObjectStorage
	logger    *slog.Logger
}

func NewSweepUsecase(
	chunks ports.ChunkRepository,
	documents ports.DocumentRepository,
	vectors ports.VectorStore,
	storage ports.ObjectStorage,
	logger *slog.Logger,
) *SweepUsecase {
	return &SweepUsecase{
		chunks:    chunks,
		documents: documents,
		vectors:   vectors,
		storage:   storage,
		logger:    logger,
	}
}

func (u *SweepUsecase) FindOrphans(ctx context.Context, tenantID string) ([]domain.OrphanGroup, error) {
	return u.chunks.ListOrphans(ctx, tenantID)
}

// Reconcile deletes everything FindOrphans reports. A dry run produces the
// identical report without touching any store.
func (u *SweepUsecase) Reconcile(ctx context.Context, tenantID string, dryRun bool) (domain.ReconcileReport, error) {
	report := domain.ReconcileReport{DryRun: dryRun}

	groups, err := u.chunks.ListOrphans(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("find orphans: %w", err)
	}

	for _, group := range groups {
		report.DocumentIDs = append(report.DocumentIDs, group.DocumentID)
		report.DeletedChunks += len(group.ChunkIDs)
	}
	report.DeletedDocuments = len(groups)

	if dryRun {
		u.logger.Info("sweep dry run",
			"tenant_id", tenantID, "documents", report.DeletedDocuments, "chunks", report.DeletedChunks)
		return report, nil
	}

	for _, group := range groups {
		if err := u.reconcileGroup(ctx, tenantID, group); err != nil {
			return report, err
		}
	}
	u.logger.Info("sweep reconciled",
		"tenant_id", tenantID, "documents", report.DeletedDocuments, "chunks", report.DeletedChunks)
	return report, nil
}

func (u *SweepUsecase) reconcileGroup(ctx context.Context, tenantID string, group domain.OrphanGroup) error {
	if err := u.vectors.Delete(ctx, tenantID, group.ChunkIDs); err != nil {
		return fmt.Errorf("delete vectors for document %s: %w", group.DocumentID, err)
	}
	if _, err := u.chunks.DeleteByDocument(ctx, tenantID, group.DocumentID); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", group.DocumentID, err)
	}

	doc, err := u.documents.GetByID(ctx, tenantID, group.DocumentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("load orphaned document %s: %w", group.DocumentID, err)
	}
	if doc.StorageKey != "" {
		if err := u.storage.Remove(ctx, tenantID, doc.StorageKey); err != nil {
			// The blob is unreachable once the row is gone; log and move on.
			u.logger.Warn("orphaned blob removal failed",
				"tenant_id", tenantID, "document_id", group.DocumentID, "error", err)
		}
	}
	if err := u.documents.Delete(ctx, tenantID, group.DocumentID); err != nil {
		return fmt.Errorf("delete orphaned document %s: %w", group.DocumentID, err)
	}
	return nil
}

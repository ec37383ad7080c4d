package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/chunking"
)

// ReindexUsecase re-chunks and re-embeds one document in place, for example
// after a chunking parameter change. It prefers the stored blob; when the
// blob is gone it reassembles the text from the existing chunk windows.
type ReindexUsecase struct {
	documents ports.DocumentRepository
	chunks    ports.ChunkRepository
	vectors   ports.VectorStore
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	chunker   ports.Chunker
	queue     ports.MessageQueue

	embedBatchSize int
	logger         *slog.Logger
}

func NewReindexUsecase(
	documents ports.DocumentRepository,
	chunks ports.ChunkRepository,
	vectors ports.VectorStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	queue ports.MessageQueue,
	embedBatchSize int,
	logger *slog.Logger,
) *ReindexUsecase {
	if embedBatchSize <= 0 {
		embedBatchSize = 100
	}
	return &ReindexUsecase{
		documents:      documents,
		chunks:         chunks,
		vectors:        vectors,
		storage:        storage,
		extractor:      extractor,
		chunker:        chunker,
		queue:          queue,
		embedBatchSize: embedBatchSize,
		logger:         logger,
	}
}

func (u *ReindexUsecase) Reindex(ctx context.Context, tenantID, documentID string) error {
	doc, err := u.documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return err
	}

	old, err := u.chunks.ListByDocument(ctx, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("list existing chunks: %w", err)
	}

	text, err := u.recoverText(ctx, doc, old)
	if err != nil {
		return err
	}

	if len(old) > 0 {
		ids := make([]string, len(old))
		for i, chunk := range old {
			ids[i] = chunk.ID
		}
		if err := u.vectors.Delete(ctx, tenantID, ids); err != nil {
			return fmt.Errorf("delete old vectors: %w", err)
		}
		if _, err := u.chunks.DeleteByDocument(ctx, tenantID, documentID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
	}

	if strings.TrimSpace(text) == "" {
		u.logger.Info("reindex produced no text", "tenant_id", tenantID, "document_id", documentID)
		return nil
	}

	windows, err := u.chunker.Split(text)
	if err != nil {
		return fmt.Errorf("re-chunk document: %w", err)
	}

	now := time.Now().UTC()
	batch := make([]domain.Chunk, len(windows))
	for i, window := range windows {
		batch[i] = domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			TenantID:   tenantID,
			Index:      i,
			Text:       window.Text,
			CharStart:  window.CharStart,
			CharEnd:    window.CharEnd,
			WordCount:  len(strings.Fields(window.Text)),
			CreatedAt:  now,
		}
	}
	if err := u.chunks.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("persist rechunked batch: %w", err)
	}

	for start := 0; start < len(batch); start += u.embedBatchSize {
		end := start + u.embedBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		ids := make([]string, 0, end-start)
		for _, chunk := range batch[start:end] {
			ids = append(ids, chunk.ID)
		}
		err := u.queue.PublishEmbedBatch(ctx, ports.EmbedBatchMessage{
			TenantID: tenantID, ChunkIDs: ids, DispatchedAt: now,
		})
		if err != nil {
			return fmt.Errorf("dispatch embed batch: %w", err)
		}
	}

	u.logger.Info("document reindexed",
		"tenant_id", tenantID, "document_id", documentID, "chunks", len(batch))
	return nil
}

// recoverText loads the original blob when it still exists, otherwise it
// inverts the previous chunking using the stored offsets.
func (u *ReindexUsecase) recoverText(ctx context.Context, doc *domain.Document, old []domain.Chunk) (string, error) {
	data, err := u.storage.Load(ctx, doc.TenantID, doc.StorageKey)
	if err == nil {
		text, extractErr := u.extractor.Extract(ctx, data, doc.MimeType, doc.Title)
		if extractErr != nil {
			return "", fmt.Errorf("re-extract document: %w", extractErr)
		}
		return text, nil
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return "", fmt.Errorf("load blob: %w", err)
	}

	if len(old) == 0 {
		return "", domain.WrapError(domain.ErrDocumentNotFound, "reindex",
			fmt.Errorf("document %s has neither blob nor chunks", doc.ID))
	}
	windows := make([]domain.ChunkWindow, len(old))
	for i, chunk := range old {
		windows[i] = domain.ChunkWindow{Text: chunk.Text, CharStart: chunk.CharStart, CharEnd: chunk.CharEnd}
	}
	text, err := chunking.Reassemble(windows)
	if err != nil {
		return "", fmt.Errorf("reassemble text from chunks: %w", err)
	}
	return text, nil
}

package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// FileProcessor is the stage shared by the inline and large-file lanes:
// extract, dedupe by content hash, persist the document and its chunks, and
// dispatch embedding batches. Per-file failures are returned to the caller
// to absorb; nothing here fails a job.
type FileProcessor struct {
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

func NewFileProcessor(
	documents ports.DocumentRepository,
	chunks ports.ChunkRepository,
	vectors ports.VectorStore,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	queue ports.MessageQueue,
	embedBatchSize int,
	logger *slog.Logger,
) *FileProcessor {
	if embedBatchSize <= 0 {
		embedBatchSize = 100
	}
	return &FileProcessor{
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

// ProcessFile ingests one fetched file. The bool result reports an
// unchanged-hash skip, which counts as neither a document nor an error.
func (p *FileProcessor) ProcessFile(ctx context.Context, tenantID, sourceID, jobID string, file domain.FileDescriptor, content []byte) (domain.StageResult, bool, error) {
	return p.process(ctx, tenantID, sourceID, jobID, file, content, false)
}

// ProcessLargeFile is the deferred-lane variant. Extracted text is split into
// paragraphs first so chunk windows prefer paragraph boundaries over hard
// character cuts.
func (p *FileProcessor) ProcessLargeFile(ctx context.Context, tenantID, sourceID, jobID string, file domain.FileDescriptor, content []byte) (domain.StageResult, bool, error) {
	return p.process(ctx, tenantID, sourceID, jobID, file, content, true)
}

func (p *FileProcessor) process(ctx context.Context, tenantID, sourceID, jobID string, file domain.FileDescriptor, content []byte, segmented bool) (domain.StageResult, bool, error) {
	var result domain.StageResult

	hash := contentHash(content)
	existing, err := p.documents.FindBySourceIdentity(ctx, tenantID, sourceID, file.Name)
	if err != nil && !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return result, false, fmt.Errorf("lookup document for %s: %w", file.RemoteID, err)
	}
	if existing != nil && existing.ContentHash == hash {
		p.logger.Debug("unchanged file skipped",
			"tenant_id", tenantID, "source_id", sourceID, "file", file.RemoteID)
		return result, true, nil
	}

	text, err := p.extractor.Extract(ctx, content, file.MimeType, file.Name)
	if err != nil {
		return result, false, fmt.Errorf("extract %s: %w", file.RemoteID, err)
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		SourceID:    sourceID,
		Title:       file.Name,
		MimeType:    file.MimeType,
		ContentHash: hash,
		SizeBytes:   int64(len(content)),
		StorageKey:  storageKey(sourceID, file.RemoteID),
		FetchedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}

	if err := p.storage.Save(ctx, tenantID, doc.StorageKey, content); err != nil {
		return result, false, fmt.Errorf("store blob for %s: %w", file.RemoteID, err)
	}
	if err := p.documents.Upsert(ctx, &doc); err != nil {
		return result, false, fmt.Errorf("upsert document for %s: %w", file.RemoteID, err)
	}

	if existing != nil {
		if err := p.clearStaleChunks(ctx, tenantID, doc.ID); err != nil {
			return result, false, err
		}
	}
	result.Documents = 1

	// An empty extraction is a valid document with zero chunks.
	if strings.TrimSpace(text) == "" {
		return result, false, nil
	}

	windows, err := p.splitText(text, segmented)
	if err != nil {
		return result, false, fmt.Errorf("chunk %s: %w", file.RemoteID, err)
	}

	batch := make([]domain.Chunk, len(windows))
	for i, window := range windows {
		batch[i] = domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			TenantID:   tenantID,
			Index:      i,
			Text:       window.Text,
			CharStart:  window.CharStart,
			CharEnd:    window.CharEnd,
			WordCount:  len(strings.Fields(window.Text)),
			CreatedAt:  now,
		}
	}
	if err := p.chunks.CreateBatch(ctx, batch); err != nil {
		return result, false, fmt.Errorf("persist chunks for %s: %w", file.RemoteID, err)
	}
	result.Chunks = len(batch)

	if err := p.dispatchEmbedBatches(ctx, tenantID, jobID, batch); err != nil {
		return result, false, err
	}
	return result, false, nil
}

// clearStaleChunks removes the previous revision's chunks and their vectors
// before the new revision is chunked. Vectors go first so a crash between the
// two deletes leaves no vector without a chunk row.
func (p *FileProcessor) clearStaleChunks(ctx context.Context, tenantID, documentID string) error {
	stale, err := p.chunks.ListByDocument(ctx, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("list stale chunks: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	ids := make([]string, len(stale))
	for i, chunk := range stale {
		ids[i] = chunk.ID
	}
	if err := p.vectors.Delete(ctx, tenantID, ids); err != nil {
		return fmt.Errorf("delete stale vectors: %w", err)
	}
	if _, err := p.chunks.DeleteByDocument(ctx, tenantID, documentID); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	return nil
}

func (p *FileProcessor) dispatchEmbedBatches(ctx context.Context, tenantID, jobID string, batch []domain.Chunk) error {
	for start := 0; start < len(batch); start += p.embedBatchSize {
		end := start + p.embedBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		ids := make([]string, 0, end-start)
		for _, chunk := range batch[start:end] {
			ids = append(ids, chunk.ID)
		}
		msg := ports.EmbedBatchMessage{
			JobID: jobID, TenantID: tenantID, ChunkIDs: ids, DispatchedAt: time.Now().UTC(),
		}
		if err := p.queue.PublishEmbedBatch(ctx, msg); err != nil {
			return fmt.Errorf("dispatch embed batch: %w", err)
		}
	}
	return nil
}

func (p *FileProcessor) splitText(text string, segmented bool) ([]domain.ChunkWindow, error) {
	if segmented {
		if segments := paragraphs(text); len(segments) > 1 {
			return p.chunker.SplitSegments(segments)
		}
	}
	return p.chunker.Split(text)
}

// paragraphs splits on blank lines, dropping all-whitespace segments.
func paragraphs(text string) []string {
	var out []string
	for _, segment := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(segment) != "" {
			out = append(out, segment)
		}
	}
	return out
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func storageKey(sourceID, remoteID string) string {
	return sourceID + "/" + remoteID
}

package ports

import (
	"context"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// IngestMessage triggers one ingestion run for a source+tenant pair.
type IngestMessage struct {
	SourceID string `json:"source_id"`
	TenantID string `json:"tenant_id"`
}

// EmbedBatchMessage dispatches one embedding batch of already-created chunks.
type EmbedBatchMessage struct {
	JobID        string    `json:"job_id"`
	TenantID     string    `json:"tenant_id"`
	ChunkIDs     []string  `json:"chunk_ids"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// LargeFileMessage defers one oversized file onto the long-timeout lane.
// Credentials travel encrypted and are decrypted by the consuming worker.
type LargeFileMessage struct {
	SourceID     string                `json:"source_id"`
	TenantID     string                `json:"tenant_id"`
	JobID        string                `json:"job_id"`
	File         domain.FileDescriptor `json:"file"`
	Credentials  []byte                `json:"credentials"`
	DispatchedAt time.Time             `json:"dispatched_at"`
}

// MessageQueue is the internal dispatch surface. The small-file and
// large-file lanes are separate subjects so a stalled large file cannot
// starve small-file throughput.
type MessageQueue interface {
	PublishIngest(ctx context.Context, msg IngestMessage) error
	PublishEmbedBatch(ctx context.Context, msg EmbedBatchMessage) error
	PublishLargeFile(ctx context.Context, msg LargeFileMessage) error

	SubscribeIngest(ctx context.Context, handler func(context.Context, IngestMessage) error) error
	SubscribeEmbedBatch(ctx context.Context, handler func(context.Context, EmbedBatchMessage) error) error
	SubscribeLargeFile(ctx context.Context, handler func(context.Context, LargeFileMessage) error) error
}

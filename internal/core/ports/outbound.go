package ports

import (
	"context"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// DocumentRepository persists ingested document state.
type DocumentRepository interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
	FindBySourceIdentity(ctx context.Context, tenantID, sourceID, title string) (*domain.Document, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ChunkRepository persists chunk rows. Embeddings are filled in by a later
// asynchronous step, so a chunk may exist without one.
type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []domain.Chunk) error
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.Chunk, error)
	ListByDocument(ctx context.Context, tenantID, documentID string) ([]domain.Chunk, error)
	SaveEmbeddings(ctx context.Context, tenantID string, embeddings map[string][]float32) error
	DeleteByDocument(ctx context.Context, tenantID, documentID string) (int, error)
	ListOrphans(ctx context.Context, tenantID string) ([]domain.OrphanGroup, error)
}

// IngestJobRepository tracks job state. Status transitions are monotonic and
// stats updates are serialized increments so concurrent inline and deferred
// workers never lose a count.
type IngestJobRepository interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
	TransitionStatus(ctx context.Context, id string, from []domain.JobStatus, to domain.JobStatus, errMessage string) error
	ApplyStatsDelta(ctx context.Context, id string, delta domain.StatsDelta) (domain.JobStats, error)
	IsCancelled(ctx context.Context, id string) (bool, error)
}

// SourceCatalog reads connector registrations. A source absent from the
// catalog is treated as deleted, which is what drives the sweeper.
type SourceCatalog interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Source, error)
	ListLiveIDs(ctx context.Context, tenantID string) ([]string, error)
}

// SourceConnector enumerates and fetches files from one source type.
type SourceConnector interface {
	ListFiles(ctx context.Context, credentials []byte, limit int) ([]domain.FileDescriptor, error)
	FetchContent(ctx context.Context, credentials []byte, file domain.FileDescriptor) ([]byte, error)
}

// ConnectorRegistry resolves a connector from the descriptor discriminator.
type ConnectorRegistry interface {
	Resolve(sourceType domain.SourceType) (SourceConnector, error)
}

// CredentialStore encrypts and decrypts opaque source credentials.
type CredentialStore interface {
	Encrypt(tenantID, sourceID string, plaintext []byte) ([]byte, error)
	Decrypt(tenantID, sourceID string, ciphertext []byte) ([]byte, error)
}

// TextExtractor turns raw bytes into plain text. An empty result is "no
// content extracted", not an error.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType, filename string) (string, error)
}

// Chunker splits text into offset-stable windows.
type Chunker interface {
	Split(text string) ([]domain.ChunkWindow, error)
	SplitSegments(segments []string) ([]domain.ChunkWindow, error)
}

// Embedder builds vectors for chunk text and query text. EmbedBatch is
// order-preserving and 1:1 with its input; it never returns a shorter list.
type Embedder interface {
	EmbedBatch(ctx context.Context, tenantID string, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, tenantID, text string) ([]float32, error)
}

// VectorStore persists vectors per tenant and serves similarity search.
// Upsert is idempotent by record id; Delete ignores missing ids.
type VectorStore interface {
	Upsert(ctx context.Context, tenantID string, records []domain.VectorRecord) error
	Query(ctx context.Context, tenantID string, vector []float32, topK int) ([]domain.ScoredChunk, error)
	Delete(ctx context.Context, tenantID string, ids []string) error
}

// ObjectStorage stores the raw fetched blob behind Document.StorageKey.
type ObjectStorage interface {
	Save(ctx context.Context, tenantID, key string, data []byte) error
	Load(ctx context.Context, tenantID, key string) ([]byte, error)
	Remove(ctx context.Context, tenantID, key string) error
}

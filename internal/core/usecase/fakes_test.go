package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*domain.IngestJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*domain.IngestJob)}
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.IngestJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, id string) (*domain.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "get job", fmt.Errorf("id=%s", id))
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobRepo) TransitionStatus(_ context.Context, id string, from []domain.JobStatus, to domain.JobStatus, errMessage string) error {
	if len(from) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "transition", fmt.Errorf("empty from set"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.WrapError(domain.ErrJobNotFound, "transition", fmt.Errorf("id=%s", id))
	}
	for _, s := range from {
		if job.Status == s {
			job.Status = to
			job.Error = errMessage
			return nil
		}
	}
	return domain.WrapError(domain.ErrJobTerminal, "transition",
		fmt.Errorf("status %s not in from set", job.Status))
}

func (f *fakeJobRepo) ApplyStatsDelta(_ context.Context, id string, delta domain.StatsDelta) (domain.JobStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.JobStats{}, domain.WrapError(domain.ErrJobNotFound, "stats", fmt.Errorf("id=%s", id))
	}
	job.Stats.Documents += delta.Documents
	job.Stats.Chunks += delta.Chunks
	job.Stats.Errors += delta.Errors
	job.Stats.PendingLargeFiles += delta.PendingLargeFiles
	if job.Stats.PendingLargeFiles < 0 {
		job.Stats.PendingLargeFiles = 0
	}
	if delta.CurrentFile != "" {
		job.Stats.CurrentFile = delta.CurrentFile
	}
	return job.Stats, nil
}

func (f *fakeJobRepo) IsCancelled(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false, domain.WrapError(domain.ErrJobNotFound, "is cancelled", fmt.Errorf("id=%s", id))
	}
	return job.Status == domain.JobCancelled, nil
}

func (f *fakeJobRepo) single() *domain.IngestJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		copied := *job
		return &copied
	}
	return nil
}

type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*domain.Document)}
}

func (f *fakeDocRepo) Upsert(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, tenantID, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocRepo) FindBySourceIdentity(_ context.Context, tenantID, sourceID, title string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.TenantID == tenantID && doc.SourceID == sourceID && doc.Title == title {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "find document", fmt.Errorf("title=%s", title))
}

func (f *fakeDocRepo) Delete(_ context.Context, tenantID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

type fakeChunkRepo struct {
	mu                sync.Mutex
	chunks            map[string]domain.Chunk
	orphans           []domain.OrphanGroup
	saveEmbeddingsErr error
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{chunks: make(map[string]domain.Chunk)}
}

func (f *fakeChunkRepo) CreateBatch(_ context.Context, batch []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chunk := range batch {
		f.chunks[chunk.ID] = chunk
	}
	return nil
}

func (f *fakeChunkRepo) GetByIDs(_ context.Context, tenantID string, ids []string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, id := range ids {
		if chunk, ok := f.chunks[id]; ok && chunk.TenantID == tenantID {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) ListByDocument(_ context.Context, tenantID, documentID string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Chunk
	for _, chunk := range f.chunks {
		if chunk.TenantID == tenantID && chunk.DocumentID == documentID {
			out = append(out, chunk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (f *fakeChunkRepo) SaveEmbeddings(_ context.Context, tenantID string, embeddings map[string][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveEmbeddingsErr != nil {
		return f.saveEmbeddingsErr
	}
	for id, vector := range embeddings {
		chunk, ok := f.chunks[id]
		if !ok || chunk.TenantID != tenantID {
			continue
		}
		chunk.Embedding = vector
		f.chunks[id] = chunk
	}
	return nil
}

func (f *fakeChunkRepo) DeleteByDocument(_ context.Context, tenantID, documentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, chunk := range f.chunks {
		if chunk.TenantID == tenantID && chunk.DocumentID == documentID {
			delete(f.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeChunkRepo) ListOrphans(_ context.Context, tenantID string) ([]domain.OrphanGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orphans, nil
}

type fakeVectorStore struct {
	mu        sync.Mutex
	vectors   map[string]domain.VectorRecord
	upserts   int
	upsertErr error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{vectors: make(map[string]domain.VectorRecord)}
}

func (f *fakeVectorStore) Upsert(_ context.Context, tenantID string, records []domain.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	for _, record := range records {
		f.vectors[tenantID+"/"+record.ID] = record
	}
	return nil
}

func (f *fakeVectorStore) Query(_ context.Context, tenantID string, vector []float32, topK int) ([]domain.ScoredChunk, error) {
	return nil, nil
}

func (f *fakeVectorStore) Delete(_ context.Context, tenantID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.vectors, tenantID+"/"+id)
	}
	return nil
}

func (f *fakeVectorStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors)
}

type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{blobs: make(map[string][]byte)}
}

func (f *fakeStorage) Save(_ context.Context, tenantID, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[tenantID+"/"+key] = data
	return nil
}

func (f *fakeStorage) Load(_ context.Context, tenantID, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[tenantID+"/"+key]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "load blob", fmt.Errorf("key=%s", key))
	}
	return data, nil
}

func (f *fakeStorage) Remove(_ context.Context, tenantID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, tenantID+"/"+key)
	return nil
}

type fakeQueue struct {
	mu             sync.Mutex
	embedBatches   []ports.EmbedBatchMessage
	largeFiles     []ports.LargeFileMessage
	failLargeFiles bool
}

func (f *fakeQueue) PublishIngest(_ context.Context, _ ports.IngestMessage) error { return nil }

func (f *fakeQueue) PublishEmbedBatch(_ context.Context, msg ports.EmbedBatchMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedBatches = append(f.embedBatches, msg)
	return nil
}

func (f *fakeQueue) PublishLargeFile(_ context.Context, msg ports.LargeFileMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLargeFiles {
		return fmt.Errorf("queue unavailable")
	}
	f.largeFiles = append(f.largeFiles, msg)
	return nil
}

func (f *fakeQueue) SubscribeIngest(context.Context, func(context.Context, ports.IngestMessage) error) error {
	return nil
}

func (f *fakeQueue) SubscribeEmbedBatch(context.Context, func(context.Context, ports.EmbedBatchMessage) error) error {
	return nil
}

func (f *fakeQueue) SubscribeLargeFile(context.Context, func(context.Context, ports.LargeFileMessage) error) error {
	return nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, _ string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string, text string) ([]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("provider unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeCatalog struct {
	source *domain.Source
}

func (f *fakeCatalog) GetByID(_ context.Context, tenantID, id string) (*domain.Source, error) {
	if f.source == nil || f.source.ID != id {
		return nil, domain.WrapError(domain.ErrSourceNotFound, "get source", fmt.Errorf("id=%s", id))
	}
	copied := *f.source
	return &copied, nil
}

func (f *fakeCatalog) ListLiveIDs(context.Context, string) ([]string, error) {
	if f.source == nil {
		return nil, nil
	}
	return []string{f.source.ID}, nil
}

type fakeConnector struct {
	mu       sync.Mutex
	files    []domain.FileDescriptor
	contents map[string][]byte
	listErr  error
	fetchErr map[string]error
	fetched  []string
	onFetch  func(remoteID string)
}

func (f *fakeConnector) ListFiles(_ context.Context, _ []byte, limit int) ([]domain.FileDescriptor, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	files := f.files
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (f *fakeConnector) FetchContent(_ context.Context, _ []byte, file domain.FileDescriptor) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fetchErr[file.RemoteID]; ok {
		return nil, err
	}
	f.fetched = append(f.fetched, file.RemoteID)
	if f.onFetch != nil {
		f.onFetch(file.RemoteID)
	}
	return f.contents[file.RemoteID], nil
}

type fakeRegistry struct {
	connector ports.SourceConnector
}

func (f *fakeRegistry) Resolve(domain.SourceType) (ports.SourceConnector, error) {
	if f.connector == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve connector", fmt.Errorf("none registered"))
	}
	return f.connector, nil
}

// fakeTelemetry records skip lanes; everything else is a no-op.
type fakeTelemetry struct {
	NopTelemetry
	mu    sync.Mutex
	skips []string
}

func (f *fakeTelemetry) SkipFile(_, lane string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips = append(f.skips, lane)
}

func (f *fakeTelemetry) skipped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.skips...)
}

// fakeCredentials passes material through unchanged.
type fakeCredentials struct{}

func (fakeCredentials) Encrypt(_, _ string, plaintext []byte) ([]byte, error) { return plaintext, nil }
func (fakeCredentials) Decrypt(_, _ string, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

// fakeExtractor treats every payload as plain text.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, data []byte, _, _ string) (string, error) {
	return string(data), nil
}

package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/chunking"
)

type syncHarness struct {
	jobs      *fakeJobRepo
	docs      *fakeDocRepo
	chunks    *fakeChunkRepo
	vectors   *fakeVectorStore
	queue     *fakeQueue
	connector *fakeConnector
	telemetry *fakeTelemetry
	usecase   *SyncUsecase
}

func newSyncHarness(t *testing.T, files []domain.FileDescriptor, contents map[string][]byte) *syncHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	splitter, err := chunking.NewSplitter(50, 10)
	if err != nil {
		t.Fatalf("NewSplitter() error = %v", err)
	}

	h := &syncHarness{
		jobs:    newFakeJobRepo(),
		docs:    newFakeDocRepo(),
		chunks:  newFakeChunkRepo(),
		vectors: newFakeVectorStore(),
		queue:   &fakeQueue{},
		connector: &fakeConnector{
			files:    files,
			contents: contents,
			fetchErr: map[string]error{},
		},
		telemetry: &fakeTelemetry{},
	}

	processor := NewFileProcessor(
		h.docs, h.chunks, h.vectors, newFakeStorage(), fakeExtractor{}, splitter, h.queue, 10, logger)

	h.usecase = NewSyncUsecase(
		&fakeCatalog{source: &domain.Source{
			ID: "src-1", TenantID: "tenant-a", Type: domain.SourceTypeFilesystem, Credentials: []byte(`{}`),
		}},
		&fakeRegistry{connector: h.connector},
		fakeCredentials{},
		h.jobs,
		h.queue,
		processor,
		SyncConfig{
			SmallFileMaxBytes: 1000,
			LargeFileMaxBytes: 10000,
			SyncWorkers:       1,
		},
		h.telemetry,
		logger,
	)
	return h
}

func smallFile(remoteID string, size int64) domain.FileDescriptor {
	return domain.FileDescriptor{
		RemoteID:   remoteID,
		Name:       remoteID,
		MimeType:   "text/plain",
		SizeBytes:  size,
		SourceType: domain.SourceTypeFilesystem,
	}
}

func TestSyncCompletesWithSmallFiles(t *testing.T) {
	contents := map[string][]byte{
		"a.txt": []byte(strings.Repeat("alpha beta gamma ", 10)),
		"b.txt": []byte("short note"),
	}
	h := newSyncHarness(t, []domain.FileDescriptor{
		smallFile("a.txt", 100),
		smallFile("b.txt", 100),
	}, contents)

	err := h.usecase.Sync(context.Background(), ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	job := h.jobs.single()
	if job.Status != domain.JobCompleted {
		t.Fatalf("expected completed, got %s (error=%q)", job.Status, job.Error)
	}
	if job.Stats.Documents != 2 {
		t.Fatalf("expected 2 documents, got %d", job.Stats.Documents)
	}
	if job.Stats.Chunks == 0 {
		t.Fatalf("expected chunks to be counted")
	}
	if job.Stats.PendingLargeFiles != 0 {
		t.Fatalf("expected no pending large files, got %d", job.Stats.PendingLargeFiles)
	}
	if len(h.queue.embedBatches) == 0 {
		t.Fatalf("expected embed batches dispatched")
	}
}

func TestSyncUnchangedFilesAreSkipped(t *testing.T) {
	contents := map[string][]byte{"a.txt": []byte("stable content")}
	h := newSyncHarness(t, []domain.FileDescriptor{smallFile("a.txt", 100)}, contents)
	ctx := context.Background()
	msg := ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"}

	if err := h.usecase.Sync(ctx, msg); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	firstBatches := len(h.queue.embedBatches)

	// Second pass over identical content must not produce new documents,
	// chunks or embed work.
	h.jobs = newFakeJobRepo()
	h.usecase.jobs = h.jobs
	if err := h.usecase.Sync(ctx, msg); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	job := h.jobs.single()
	if job.Status != domain.JobCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.Stats.Documents != 0 || job.Stats.Errors != 0 {
		t.Fatalf("expected re-sync to skip unchanged file, stats=%+v", job.Stats)
	}
	if len(h.queue.embedBatches) != firstBatches {
		t.Fatalf("expected no new embed batches on unchanged re-sync")
	}
}

func TestSyncEnumerationFailureFailsJob(t *testing.T) {
	h := newSyncHarness(t, nil, nil)
	h.connector.listErr = context.DeadlineExceeded

	err := h.usecase.Sync(context.Background(), ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"})
	if !domain.IsKind(err, domain.ErrEnumeration) {
		t.Fatalf("expected ErrEnumeration, got %v", err)
	}

	job := h.jobs.single()
	if job.Status != domain.JobFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.Error == "" {
		t.Fatalf("expected error message recorded on the job")
	}
}

func TestSyncRoutesFilesBySize(t *testing.T) {
	contents := map[string][]byte{"small.txt": []byte("inline content")}
	h := newSyncHarness(t, []domain.FileDescriptor{
		smallFile("small.txt", 100),
		smallFile("medium.txt", 5000),
		smallFile("huge.txt", 50000),
	}, contents)

	err := h.usecase.Sync(context.Background(), ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(h.queue.largeFiles) != 1 || h.queue.largeFiles[0].File.RemoteID != "medium.txt" {
		t.Fatalf("expected medium.txt deferred, got %+v", h.queue.largeFiles)
	}
	for _, fetched := range h.connector.fetched {
		if fetched != "small.txt" {
			t.Fatalf("only the small file should be fetched inline, got %q", fetched)
		}
	}

	job := h.jobs.single()
	if job.Status != domain.JobRunning {
		t.Fatalf("job must stay running while a large file is pending, got %s", job.Status)
	}
	if job.Stats.PendingLargeFiles != 1 {
		t.Fatalf("expected 1 pending large file, got %d", job.Stats.PendingLargeFiles)
	}
	if job.Stats.Documents != 1 {
		t.Fatalf("expected 1 inline document, got %d", job.Stats.Documents)
	}
	// The over-cap skip is a routing decision, not an inline-lane event.
	if skips := h.telemetry.skipped(); len(skips) != 1 || skips[0] != "oversize" {
		t.Fatalf("expected one oversize skip, got %v", skips)
	}
}

func TestSyncLargeFileDispatchFailureIsAbsorbed(t *testing.T) {
	h := newSyncHarness(t, []domain.FileDescriptor{smallFile("medium.txt", 5000)}, nil)
	h.queue.failLargeFiles = true

	err := h.usecase.Sync(context.Background(), ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	job := h.jobs.single()
	if job.Status != domain.JobCompleted {
		t.Fatalf("dispatch failure must not leave the job running, got %s", job.Status)
	}
	if job.Stats.Errors != 1 {
		t.Fatalf("expected 1 absorbed error, got %d", job.Stats.Errors)
	}
	if job.Stats.PendingLargeFiles != 0 {
		t.Fatalf("expected pending slot rolled back, got %d", job.Stats.PendingLargeFiles)
	}
}

func TestSyncPerFileFailuresAreAbsorbed(t *testing.T) {
	contents := map[string][]byte{"good.txt": []byte("fine")}
	h := newSyncHarness(t, []domain.FileDescriptor{
		smallFile("bad.txt", 100),
		smallFile("good.txt", 100),
	}, contents)
	h.connector.fetchErr["bad.txt"] = context.DeadlineExceeded

	err := h.usecase.Sync(context.Background(), ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	job := h.jobs.single()
	if job.Status != domain.JobCompleted {
		t.Fatalf("expected completed despite per-file failure, got %s", job.Status)
	}
	if job.Stats.Errors != 1 || job.Stats.Documents != 1 {
		t.Fatalf("expected 1 error and 1 document, stats=%+v", job.Stats)
	}
}

func TestSyncHonorsCancellationBetweenFiles(t *testing.T) {
	contents := map[string][]byte{
		"1.txt": []byte("one"),
		"2.txt": []byte("two"),
		"3.txt": []byte("three"),
	}
	h := newSyncHarness(t, []domain.FileDescriptor{
		smallFile("1.txt", 100),
		smallFile("2.txt", 100),
		smallFile("3.txt", 100),
	}, contents)

	// Cancel the job as a side effect of the first fetch; with one worker the
	// remaining files must observe it at their batch boundary and stop.
	h.connector.onFetch = func(string) {
		job := h.jobs.single()
		_ = h.jobs.TransitionStatus(context.Background(), job.ID,
			[]domain.JobStatus{domain.JobQueued, domain.JobRunning}, domain.JobCancelled, "")
	}

	err := h.usecase.Sync(context.Background(), ports.IngestMessage{SourceID: "src-1", TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if len(h.connector.fetched) != 1 {
		t.Fatalf("expected processing to stop after the in-flight file, fetched %v", h.connector.fetched)
	}
	job := h.jobs.single()
	if job.Status != domain.JobCancelled {
		t.Fatalf("cancelled status must stick, got %s", job.Status)
	}
}

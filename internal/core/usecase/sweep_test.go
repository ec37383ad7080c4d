package usecase

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func newSweepHarness(t *testing.T) (*SweepUsecase, *fakeChunkRepo, *fakeDocRepo, *fakeVectorStore, *fakeStorage) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chunks := newFakeChunkRepo()
	docs := newFakeDocRepo()
	vectors := newFakeVectorStore()
	storage := newFakeStorage()
	return NewSweepUsecase(chunks, docs, vectors, storage, logger), chunks, docs, vectors, storage
}

func seedOrphan(t *testing.T, chunks *fakeChunkRepo, docs *fakeDocRepo, vectors *fakeVectorStore, storage *fakeStorage) {
	t.Helper()
	ctx := context.Background()

	if err := docs.Upsert(ctx, &domain.Document{
		ID: "doc-1", TenantID: "tenant-a", SourceID: "dead-source",
		Title: "stale.txt", StorageKey: "dead-source/stale.txt",
	}); err != nil {
		t.Fatal(err)
	}
	if err := storage.Save(ctx, "tenant-a", "dead-source/stale.txt", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := chunks.CreateBatch(ctx, []domain.Chunk{
		{ID: "c1", TenantID: "tenant-a", DocumentID: "doc-1"},
		{ID: "c2", TenantID: "tenant-a", DocumentID: "doc-1"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := vectors.Upsert(ctx, "tenant-a", []domain.VectorRecord{
		{ID: "c1", Vector: []float32{1}},
		{ID: "c2", Vector: []float32{1}},
	}); err != nil {
		t.Fatal(err)
	}
	chunks.orphans = []domain.OrphanGroup{
		{DocumentID: "doc-1", SourceID: "dead-source", ChunkIDs: []string{"c1", "c2"}},
	}
}

func TestDryRunReportsWithoutDeleting(t *testing.T) {
	u, chunks, docs, vectors, storage := newSweepHarness(t)
	seedOrphan(t, chunks, docs, vectors, storage)

	report, err := u.Reconcile(context.Background(), "tenant-a", true)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if !report.DryRun || report.DeletedChunks != 2 || report.DeletedDocuments != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if vectors.count() != 2 {
		t.Fatalf("dry run must not delete vectors")
	}
	if _, err := docs.GetByID(context.Background(), "tenant-a", "doc-1"); err != nil {
		t.Fatalf("dry run must not delete documents: %v", err)
	}
}

func TestReconcileDeletesOrphanedData(t *testing.T) {
	u, chunks, docs, vectors, storage := newSweepHarness(t)
	seedOrphan(t, chunks, docs, vectors, storage)

	wet, err := u.Reconcile(context.Background(), "tenant-a", false)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if wet.DeletedChunks != 2 || wet.DeletedDocuments != 1 {
		t.Fatalf("unexpected report: %+v", wet)
	}
	if vectors.count() != 0 {
		t.Fatalf("expected vectors removed")
	}
	if remaining, _ := chunks.ListByDocument(context.Background(), "tenant-a", "doc-1"); len(remaining) != 0 {
		t.Fatalf("expected chunks removed, got %d", len(remaining))
	}
	if _, err := docs.GetByID(context.Background(), "tenant-a", "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected document removed, got %v", err)
	}
	if _, err := storage.Load(context.Background(), "tenant-a", "dead-source/stale.txt"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected blob removed, got %v", err)
	}
}

func TestReconcileDeletesChunklessOrphanDocument(t *testing.T) {
	u, chunks, docs, _, storage := newSweepHarness(t)
	ctx := context.Background()

	// An empty extraction leaves a document row and blob but no chunks.
	if err := docs.Upsert(ctx, &domain.Document{
		ID: "doc-empty", TenantID: "tenant-a", SourceID: "dead-source",
		Title: "empty.txt", StorageKey: "dead-source/empty.txt",
	}); err != nil {
		t.Fatal(err)
	}
	if err := storage.Save(ctx, "tenant-a", "dead-source/empty.txt", []byte("raw")); err != nil {
		t.Fatal(err)
	}
	chunks.orphans = []domain.OrphanGroup{
		{DocumentID: "doc-empty", SourceID: "dead-source"},
	}

	report, err := u.Reconcile(ctx, "tenant-a", false)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.DeletedChunks != 0 || report.DeletedDocuments != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, err := docs.GetByID(ctx, "tenant-a", "doc-empty"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected document removed, got %v", err)
	}
	if _, err := storage.Load(ctx, "tenant-a", "dead-source/empty.txt"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected blob removed, got %v", err)
	}
}

func TestDryRunAndWetRunReportTheSameScope(t *testing.T) {
	u, chunks, docs, vectors, storage := newSweepHarness(t)
	seedOrphan(t, chunks, docs, vectors, storage)
	ctx := context.Background()

	dry, err := u.Reconcile(ctx, "tenant-a", true)
	if err != nil {
		t.Fatalf("dry Reconcile() error = %v", err)
	}
	wet, err := u.Reconcile(ctx, "tenant-a", false)
	if err != nil {
		t.Fatalf("wet Reconcile() error = %v", err)
	}

	if dry.DeletedChunks != wet.DeletedChunks || dry.DeletedDocuments != wet.DeletedDocuments {
		t.Fatalf("dry and wet runs disagree: dry=%+v wet=%+v", dry, wet)
	}
}

func TestReconcileWithNoOrphansIsEmpty(t *testing.T) {
	u, _, _, _, _ := newSweepHarness(t)

	report, err := u.Reconcile(context.Background(), "tenant-a", false)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.DeletedChunks != 0 || report.DeletedDocuments != 0 || len(report.DocumentIDs) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

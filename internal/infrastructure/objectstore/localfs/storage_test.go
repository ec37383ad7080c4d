package localfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func TestSaveLoadRemove(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "tenant-a", "docs/report.pdf", []byte("blob")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := storage.Load(ctx, "tenant-a", "docs/report.pdf")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !bytes.Equal(data, []byte("blob")) {
		t.Fatalf("Load() = %q", data)
	}

	if err := storage.Remove(ctx, "tenant-a", "docs/report.pdf"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := storage.Load(ctx, "tenant-a", "docs/report.pdf"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound after removal, got %v", err)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "tenant-a", "same-key", []byte("a")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := storage.Load(ctx, "tenant-b", "same-key"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected tenant-b miss, got %v", err)
	}
}

func TestRemoveMissingBlobIsNoOp(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := storage.Remove(context.Background(), "tenant-a", "never-saved"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestKeyEscapeRejected(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := storage.Save(context.Background(), "tenant-a", "../escape", []byte("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for escaping key, got %v", err)
	}
}

package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newChunkRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestListOrphansGroupsByDocument(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"document_id", "source_id", "id"}).
		AddRow("doc-1", "gone-source", "c1").
		AddRow("doc-1", "gone-source", "c2").
		AddRow("doc-1", "gone-source", "c3").
		AddRow("doc-2", "gone-source", "c4")

	mock.ExpectQuery("SELECT c.document_id, d.source_id, c.id").
		WithArgs("tenant-a").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT d.id, d.source_id").
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_id"}).
			AddRow("doc-empty", "gone-source"))

	groups, err := repo.ListOrphans(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("ListOrphans() error = %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 orphan groups, got %d", len(groups))
	}
	if groups[0].DocumentID != "doc-1" || len(groups[0].ChunkIDs) != 3 {
		t.Fatalf("expected doc-1 with 3 chunks, got %+v", groups[0])
	}
	if groups[1].DocumentID != "doc-2" || len(groups[1].ChunkIDs) != 1 {
		t.Fatalf("expected doc-2 with 1 chunk, got %+v", groups[1])
	}
	if groups[2].DocumentID != "doc-empty" || len(groups[2].ChunkIDs) != 0 {
		t.Fatalf("expected chunkless doc-empty, got %+v", groups[2])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteByDocumentReturnsCount(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM chunks").
		WithArgs("tenant-a", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 5))

	deleted, err := repo.DeleteByDocument(context.Background(), "tenant-a", "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	if deleted != 5 {
		t.Fatalf("expected 5 deleted chunks, got %d", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDsEmptyInputSkipsSQL(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	chunks, err := repo.GetByIDs(context.Background(), "tenant-a", nil)
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if chunks != nil {
		t.Fatalf("expected nil for empty id set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

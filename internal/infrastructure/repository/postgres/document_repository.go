package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert creates the document or, on re-sync of the same id, refreshes its
// hash, size, blob pointer and fetch time.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, tenant_id, source_id, title, mime_type, content_hash, size_bytes, storage_key, fetched_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id)
DO UPDATE SET
	mime_type = EXCLUDED.mime_type,
	content_hash = EXCLUDED.content_hash,
	size_bytes = EXCLUDED.size_bytes,
	storage_key = EXCLUDED.storage_key,
	fetched_at = EXCLUDED.fetched_at,
	updated_at = EXCLUDED.updated_at
`,
		doc.ID, doc.TenantID, nullable(doc.SourceID), doc.Title, doc.MimeType, doc.ContentHash,
		doc.SizeBytes, doc.StorageKey, doc.FetchedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, source_id, title, mime_type, content_hash, size_bytes, storage_key, fetched_at, created_at, updated_at
FROM documents
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get document by id: %w", err)
	}
	return doc, nil
}

// FindBySourceIdentity locates the document a source file maps onto, keyed by
// source id and title. Used for the unchanged-hash skip during re-sync.
func (r *DocumentRepository) FindBySourceIdentity(ctx context.Context, tenantID, sourceID, title string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, source_id, title, mime_type, content_hash, size_bytes, storage_key, fetched_at, created_at, updated_at
FROM documents
WHERE tenant_id = $1 AND source_id = $2 AND title = $3
`, tenantID, sourceID, title)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "find document by source identity", fmt.Errorf("source=%s title=%s", sourceID, title))
		}
		return nil, fmt.Errorf("find document by source identity: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, tenantID, id string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM documents
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var sourceID sql.NullString
	err := row.Scan(
		&doc.ID, &doc.TenantID, &sourceID, &doc.Title, &doc.MimeType, &doc.ContentHash,
		&doc.SizeBytes, &doc.StorageKey, &doc.FetchedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.SourceID = sourceID.String
	return &doc, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

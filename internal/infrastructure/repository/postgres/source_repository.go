package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// SourceCatalogRepository reads connector registrations. Deleting a row is
// how a source disappears; the sweeper treats any document pointing at a
// missing row as orphaned.
type SourceCatalogRepository struct {
	db *sql.DB
}

func NewSourceCatalogRepository(db *sql.DB) *SourceCatalogRepository {
	return &SourceCatalogRepository{db: db}
}

func (r *SourceCatalogRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Source, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, type, name, credentials, created_at
FROM sources
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)

	var source domain.Source
	var sourceType string
	err := row.Scan(&source.ID, &source.TenantID, &sourceType, &source.Name, &source.Credentials, &source.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSourceNotFound, "get source", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	source.Type = domain.SourceType(sourceType)
	return &source, nil
}

func (r *SourceCatalogRepository) ListLiveIDs(ctx context.Context, tenantID string) ([]string, error) {
	query := `SELECT id FROM sources`
	args := []any{}
	if tenantID != "" {
		query += ` WHERE tenant_id = $1`
		args = append(args, tenantID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list live sources: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source ids: %w", err)
	}
	return out, nil
}

// Register inserts or refreshes a catalog entry; used by seeding tools.
func (r *SourceCatalogRepository) Register(ctx context.Context, source *domain.Source) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sources (id, tenant_id, type, name, credentials, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id)
DO UPDATE SET type = EXCLUDED.type, name = EXCLUDED.name, credentials = EXCLUDED.credentials
`, source.ID, source.TenantID, string(source.Type), source.Name, source.Credentials, source.CreatedAt)
	if err != nil {
		return fmt.Errorf("register source: %w", err)
	}
	return nil
}

// Remove deletes a source from the catalog, which is what orphans its
// documents and chunks for the next sweep.
func (r *SourceCatalogRepository) Remove(ctx context.Context, tenantID, id string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM sources WHERE tenant_id = $1 AND id = $2
`, tenantID, id)
	if err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

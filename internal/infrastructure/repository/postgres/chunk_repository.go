package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	vectorpg "github.com/kirillkom/knowledge-ingest/internal/infrastructure/vector/postgres"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO chunks (
	id, document_id, tenant_id, chunk_index, text, char_start, char_end, word_count, embedding, visibility, workspace, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
			chunk.ID, chunk.DocumentID, chunk.TenantID, chunk.Index, chunk.Text,
			chunk.CharStart, chunk.CharEnd, chunk.WordCount, encodeEmbedding(chunk.Embedding),
			chunk.Visibility, chunk.Workspace, chunk.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return nil
}

func (r *ChunkRepository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, document_id, tenant_id, chunk_index, text, char_start, char_end, word_count, embedding, visibility, workspace, created_at
FROM chunks
WHERE tenant_id = $1 AND id IN (%s)
ORDER BY document_id, chunk_index
`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks by ids: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, tenantID, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, tenant_id, chunk_index, text, char_start, char_end, word_count, embedding, visibility, workspace, created_at
FROM chunks
WHERE tenant_id = $1 AND document_id = $2
ORDER BY chunk_index
`, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by document: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func (r *ChunkRepository) SaveEmbeddings(ctx context.Context, tenantID string, embeddings map[string][]float32) error {
	for id, vector := range embeddings {
		_, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET embedding = $3
WHERE tenant_id = $1 AND id = $2
`, tenantID, id, encodeEmbedding(vector))
		if err != nil {
			return fmt.Errorf("save embedding for chunk %s: %w", id, err)
		}
	}
	return nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, tenantID, documentID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM chunks
WHERE tenant_id = $1 AND document_id = $2
`, tenantID, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks by document: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks rows affected: %w", err)
	}
	return int(deleted), nil
}

// ListOrphans reports documents whose source id is no longer present in the
// catalog, each with its chunk ids. A source merely marked inactive still
// exists and does not orphan anything. Documents that never produced chunks
// (empty extraction) are reported as groups with no chunk ids so the sweeper
// can reclaim the row and its blob. Empty tenantID scans all tenants.
func (r *ChunkRepository) ListOrphans(ctx context.Context, tenantID string) ([]domain.OrphanGroup, error) {
	query := `
SELECT c.document_id, d.source_id, c.id
FROM chunks c
JOIN documents d ON d.id = c.document_id AND d.tenant_id = c.tenant_id
WHERE d.source_id IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM sources s WHERE s.id = d.source_id)
`
	args := []any{}
	if tenantID != "" {
		query += "  AND c.tenant_id = $1\n"
		args = append(args, tenantID)
	}
	query += "ORDER BY c.document_id, c.chunk_index"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orphan chunks: %w", err)
	}
	defer rows.Close()

	var groups []domain.OrphanGroup
	index := map[string]int{}
	for rows.Next() {
		var documentID, sourceID, chunkID string
		if err := rows.Scan(&documentID, &sourceID, &chunkID); err != nil {
			return nil, fmt.Errorf("scan orphan row: %w", err)
		}
		i, ok := index[documentID]
		if !ok {
			i = len(groups)
			index[documentID] = i
			groups = append(groups, domain.OrphanGroup{DocumentID: documentID, SourceID: sourceID})
		}
		groups[i].ChunkIDs = append(groups[i].ChunkIDs, chunkID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan rows: %w", err)
	}

	chunkless, err := r.listChunklessOrphans(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return append(groups, chunkless...), nil
}

func (r *ChunkRepository) listChunklessOrphans(ctx context.Context, tenantID string) ([]domain.OrphanGroup, error) {
	query := `
SELECT d.id, d.source_id
FROM documents d
WHERE d.source_id IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM sources s WHERE s.id = d.source_id)
  AND NOT EXISTS (SELECT 1 FROM chunks c WHERE c.document_id = d.id AND c.tenant_id = d.tenant_id)
`
	args := []any{}
	if tenantID != "" {
		query += "  AND d.tenant_id = $1\n"
		args = append(args, tenantID)
	}
	query += "ORDER BY d.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orphan documents: %w", err)
	}
	defer rows.Close()

	var groups []domain.OrphanGroup
	for rows.Next() {
		var documentID, sourceID string
		if err := rows.Scan(&documentID, &sourceID); err != nil {
			return nil, fmt.Errorf("scan orphan document row: %w", err)
		}
		groups = append(groups, domain.OrphanGroup{DocumentID: documentID, SourceID: sourceID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan document rows: %w", err)
	}
	return groups, nil
}

// Chunk embeddings share the vector store's packed float32 wire format so a
// row can be re-indexed without re-embedding.
func encodeEmbedding(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	return vectorpg.EncodeVector(vector)
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	return vectorpg.DecodeVector(blob)
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0)
	for rows.Next() {
		var chunk domain.Chunk
		var embedding []byte
		err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.TenantID, &chunk.Index, &chunk.Text,
			&chunk.CharStart, &chunk.CharEnd, &chunk.WordCount, &embedding,
			&chunk.Visibility, &chunk.Workspace, &chunk.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(embedding) > 0 {
			vector, err := decodeEmbedding(embedding)
			if err != nil {
				return nil, fmt.Errorf("decode chunk embedding %s: %w", chunk.ID, err)
			}
			chunk.Embedding = vector
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

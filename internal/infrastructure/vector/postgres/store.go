package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// Store keeps chunk vectors in a plain relational table and answers
// similarity queries with a linear scan over the tenant's rows. For bounded
// corpus sizes this is an accepted tradeoff; a specialized index (pgvector,
// HNSW) can later replace the scan inside Query without touching the
// VectorStore contract.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vector schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker/sweeper startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083102)); err != nil {
		return fmt.Errorf("acquire vector schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chunk_vectors (
	tenant_id TEXT NOT NULL,
	chunk_id TEXT NOT NULL,
	embedding BYTEA NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	seq BIGINT NOT NULL DEFAULT nextval('chunk_vectors_seq'),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_chunk_vectors_tenant ON chunk_vectors(tenant_id);
`
	if _, err := tx.ExecContext(ctx, `CREATE SEQUENCE IF NOT EXISTS chunk_vectors_seq`); err != nil {
		return fmt.Errorf("create vector sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute vector schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vector schema tx: %w", err)
	}
	return nil
}

// Upsert writes records idempotently by (tenant, chunk id): a second write
// for the same id replaces the prior value and refreshes its recency.
func (s *Store) Upsert(ctx context.Context, tenantID string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshal vector metadata: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO chunk_vectors (tenant_id, chunk_id, embedding, metadata, seq, updated_at)
VALUES ($1, $2, $3, $4, nextval('chunk_vectors_seq'), now())
ON CONFLICT (tenant_id, chunk_id)
DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, seq = EXCLUDED.seq, updated_at = now()
`, tenantID, record.ID, EncodeVector(record.Vector), metadata)
		if err != nil {
			return fmt.Errorf("upsert vector %s: %w", record.ID, err)
		}
	}
	return nil
}

// Query scans the tenant's rows, scores them in process and returns up to
// topK hits in descending score order. Every row outside the tenant is
// excluded in SQL, so colliding ids across tenants can never leak.
func (s *Store) Query(ctx context.Context, tenantID string, vector []float32, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, embedding, metadata, seq
FROM chunk_vectors
WHERE tenant_id = $1
`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("scan tenant vectors: %w", err)
	}
	defer rows.Close()

	var candidates []scoredRow
	for rows.Next() {
		var (
			chunkID  string
			blob     []byte
			metadata []byte
			seq      int64
		)
		if err := rows.Scan(&chunkID, &blob, &metadata, &seq); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		stored, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector %s: %w", chunkID, err)
		}
		var meta domain.ChunkMetadata
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &meta); err != nil {
				return nil, fmt.Errorf("unmarshal vector metadata %s: %w", chunkID, err)
			}
		}
		candidates = append(candidates, scoredRow{
			chunkID: chunkID,
			score:   cosineSimilarity(vector, stored),
			seq:     seq,
			meta:    meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector rows: %w", err)
	}

	return rankRows(candidates, topK), nil
}

// Delete removes vectors for the given ids. Missing ids are a no-op.
func (s *Store) Delete(ctx context.Context, tenantID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
DELETE FROM chunk_vectors
WHERE tenant_id = $1 AND chunk_id IN (%s)
`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

type scoredRow struct {
	chunkID string
	score   float64
	seq     int64
	meta    domain.ChunkMetadata
}

// rankRows orders by descending score; equal scores fall back to insertion
// recency, newest first, for deterministic results.
func rankRows(candidates []scoredRow, topK int) []domain.ScoredChunk {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq > candidates[j].seq
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]domain.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.ScoredChunk{
			ChunkID:    c.chunkID,
			DocumentID: c.meta.DocumentID,
			Score:      c.score,
			Metadata:   c.meta,
		})
	}
	return out
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

type IngestJobRepository struct {
	db *sql.DB
}

func NewIngestJobRepository(db *sql.DB) *IngestJobRepository {
	return &IngestJobRepository{db: db}
}

func (r *IngestJobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ingest_jobs (
	id, source_id, tenant_id, status, error_message,
	documents, chunks, errors, pending_large_files, current_file,
	started_at, finished_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		job.ID, job.SourceID, job.TenantID, string(job.Status), job.Error,
		job.Stats.Documents, job.Stats.Chunks, job.Stats.Errors, job.Stats.PendingLargeFiles, job.Stats.CurrentFile,
		job.StartedAt, job.FinishedAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ingest job: %w", err)
	}
	return nil
}

func (r *IngestJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, source_id, tenant_id, status, error_message,
	documents, chunks, errors, pending_large_files, current_file,
	started_at, finished_at, created_at, updated_at
FROM ingest_jobs
WHERE id = $1
`, id)

	var job domain.IngestJob
	var status string
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&job.ID, &job.SourceID, &job.TenantID, &status, &job.Error,
		&job.Stats.Documents, &job.Stats.Chunks, &job.Stats.Errors, &job.Stats.PendingLargeFiles, &job.Stats.CurrentFile,
		&startedAt, &finishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get ingest job", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan ingest job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	return &job, nil
}

// TransitionStatus moves a job forward only from one of the expected states.
// A zero-row update means the job was already past the transition (terminal,
// or raced with cancellation) and surfaces as ErrJobTerminal so callers can
// observe it cooperatively.
func (r *IngestJobRepository) TransitionStatus(
	ctx context.Context,
	id string,
	from []domain.JobStatus,
	to domain.JobStatus,
	errMessage string,
) error {
	if len(from) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "transition status", errors.New("empty from-state set"))
	}

	placeholders := make([]string, len(from))
	args := []any{id, string(to), errMessage, time.Now().UTC()}
	for i, status := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, string(status))
	}

	query := fmt.Sprintf(`
UPDATE ingest_jobs
SET status = $2,
	error_message = CASE WHEN $3 <> '' THEN $3 ELSE error_message END,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $4 ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('completed','failed','cancelled') THEN $4 ELSE finished_at END,
	updated_at = $4
WHERE id = $1 AND status IN (%s)
`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition ingest job status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrJobTerminal, "transition status",
			fmt.Errorf("job %s not in %v", id, from))
	}
	return nil
}

// ApplyStatsDelta increments stats inside a single UPDATE so concurrent
// inline and deferred workers are serialized on the row and no decrement of
// pending_large_files can be lost. Returns the post-update stats snapshot.
func (r *IngestJobRepository) ApplyStatsDelta(ctx context.Context, id string, delta domain.StatsDelta) (domain.JobStats, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE ingest_jobs
SET documents = documents + $2,
	chunks = chunks + $3,
	errors = errors + $4,
	pending_large_files = GREATEST(pending_large_files + $5, 0),
	current_file = CASE WHEN $6 <> '' THEN $6 ELSE current_file END,
	updated_at = $7
WHERE id = $1
RETURNING documents, chunks, errors, pending_large_files, current_file
`, id, delta.Documents, delta.Chunks, delta.Errors, delta.PendingLargeFiles, delta.CurrentFile, time.Now().UTC())

	var stats domain.JobStats
	err := row.Scan(&stats.Documents, &stats.Chunks, &stats.Errors, &stats.PendingLargeFiles, &stats.CurrentFile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.JobStats{}, domain.WrapError(domain.ErrJobNotFound, "apply stats delta", fmt.Errorf("id=%s", id))
		}
		return domain.JobStats{}, fmt.Errorf("apply stats delta: %w", err)
	}
	return stats, nil
}

func (r *IngestJobRepository) IsCancelled(ctx context.Context, id string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT status FROM ingest_jobs WHERE id = $1
`, id)

	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.WrapError(domain.ErrJobNotFound, "check cancellation", fmt.Errorf("id=%s", id))
		}
		return false, fmt.Errorf("check cancellation: %w", err)
	}
	return domain.JobStatus(status) == domain.JobCancelled, nil
}

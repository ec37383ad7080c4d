package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// CancelUsecase requests cooperative cancellation: the status flips
// immediately, and workers drain at their next batch boundary. Work already
// indexed stays queryable until a sweep or reindex replaces it.
type CancelUsecase struct {
	jobs   ports.IngestJobRepository
	logger *slog.Logger
}

func NewCancelUsecase(jobs ports.IngestJobRepository, logger *slog.Logger) *CancelUsecase {
	return &CancelUsecase{jobs: jobs, logger: logger}
}

func (u *CancelUsecase) Cancel(ctx context.Context, jobID string) error {
	err := u.jobs.TransitionStatus(ctx, jobID,
		[]domain.JobStatus{domain.JobQueued, domain.JobRunning}, domain.JobCancelled, "")
	if err != nil {
		return err
	}
	u.logger.Info("job cancellation requested", "job_id", jobID)
	return nil
}

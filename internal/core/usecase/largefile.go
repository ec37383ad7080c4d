package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

// LargeFileConfig carries the deferred lane's timeout. Retry policy lives in
// the executor passed to the usecase.
type LargeFileConfig struct {
	Timeout     time.Duration
	ServiceName string
}

func (c *LargeFileConfig) normalize() {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Hour
	}
	if c.ServiceName == "" {
		c.ServiceName = "worker"
	}
}

// LargeFileUsecase consumes deferred large-file units. Whatever the outcome,
// each unit decrements the owning job's pending counter exactly once, and the
// worker that drives it to zero completes the job.
type LargeFileUsecase struct {
	connectors  ports.ConnectorRegistry
	credentials ports.CredentialStore
	jobs        ports.IngestJobRepository
	processor   *FileProcessor
	executor    *resilience.Executor

	cfg       LargeFileConfig
	telemetry Telemetry
	logger    *slog.Logger
}

func NewLargeFileUsecase(
	connectors ports.ConnectorRegistry,
	credentials ports.CredentialStore,
	jobs ports.IngestJobRepository,
	processor *FileProcessor,
	executor *resilience.Executor,
	cfg LargeFileConfig,
	telemetry Telemetry,
	logger *slog.Logger,
) *LargeFileUsecase {
	cfg.normalize()
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	return &LargeFileUsecase{
		connectors:  connectors,
		credentials: credentials,
		jobs:        jobs,
		processor:   processor,
		executor:    executor,
		cfg:         cfg,
		telemetry:   telemetry,
		logger:      logger,
	}
}

func (u *LargeFileUsecase) HandleLargeFile(ctx context.Context, msg ports.LargeFileMessage) error {
	if !msg.DispatchedAt.IsZero() {
		u.telemetry.ObserveQueueLag(u.cfg.ServiceName, "large", time.Since(msg.DispatchedAt))
	}

	cancelled, err := u.jobs.IsCancelled(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if cancelled {
		u.logger.Info("large file dropped, job cancelled",
			"job_id", msg.JobID, "file", msg.File.RemoteID)
		u.settle(ctx, msg.JobID, domain.StatsDelta{PendingLargeFiles: -1})
		return nil
	}

	u.telemetry.StartFile()
	started := time.Now()
	stage, skipped, procErr := u.process(ctx, msg)
	u.telemetry.FinishFile(u.cfg.ServiceName, "large", time.Since(started), procErr)
	if skipped {
		u.telemetry.SkipFile(u.cfg.ServiceName, "large")
	}

	delta := domain.StatsDelta{
		Documents:         stage.Documents,
		Chunks:            stage.Chunks,
		PendingLargeFiles: -1,
		CurrentFile:       msg.File.Name,
	}
	if procErr != nil {
		delta.Errors = 1
		u.logger.Error("large file processing failed",
			"job_id", msg.JobID, "file", msg.File.RemoteID, "error", procErr)
	}
	u.settle(ctx, msg.JobID, delta)
	return nil
}

func (u *LargeFileUsecase) process(ctx context.Context, msg ports.LargeFileMessage) (domain.StageResult, bool, error) {
	var stage domain.StageResult

	connector, err := u.connectors.Resolve(msg.File.SourceType)
	if err != nil {
		return stage, false, err
	}
	creds, err := u.credentials.Decrypt(msg.TenantID, msg.SourceID, msg.Credentials)
	if err != nil {
		return stage, false, err
	}

	fileCtx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	var content []byte
	fetch := func(callCtx context.Context) error {
		var fetchErr error
		content, fetchErr = connector.FetchContent(callCtx, creds, msg.File)
		return fetchErr
	}
	if u.executor != nil {
		err = u.executor.Execute(fileCtx, "largefile.fetch", fetch, classifyFetchError)
	} else {
		err = fetch(fileCtx)
	}
	if err != nil {
		return stage, false, fmt.Errorf("fetch %s: %w", msg.File.RemoteID, err)
	}

	return u.processor.ProcessLargeFile(fileCtx, msg.TenantID, msg.SourceID, msg.JobID, msg.File, content)
}

// settle applies the final stats delta for one unit and, when the pending
// counter reaches zero on a still-running job, completes it.
func (u *LargeFileUsecase) settle(ctx context.Context, jobID string, delta domain.StatsDelta) {
	stats, err := u.jobs.ApplyStatsDelta(ctx, jobID, delta)
	if err != nil {
		u.logger.Error("stats update failed", "job_id", jobID, "error", err)
		return
	}
	u.telemetry.SetPendingLargeFiles(u.cfg.ServiceName, stats.PendingLargeFiles)

	if stats.PendingLargeFiles > 0 {
		return
	}
	err = u.jobs.TransitionStatus(ctx, jobID,
		[]domain.JobStatus{domain.JobRunning}, domain.JobCompleted, "")
	if err != nil {
		if domain.IsKind(err, domain.ErrJobTerminal) {
			return
		}
		u.logger.Error("complete job after last large file", "job_id", jobID, "error", err)
		return
	}
	u.logger.Info("ingest job completed", "job_id", jobID,
		"documents", stats.Documents, "chunks", stats.Chunks, "errors", stats.Errors)
}

func classifyFetchError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

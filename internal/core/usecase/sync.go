package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

// SyncConfig carries the size-routing thresholds and inline concurrency of
// one ingestion run.
type SyncConfig struct {
	SmallFileMaxBytes int64
	LargeFileMaxBytes int64
	SmallFileTimeout  time.Duration
	SyncWorkers       int
	SourceListLimit   int
	ServiceName       string
}

func (c *SyncConfig) normalize() {
	if c.SmallFileMaxBytes <= 0 {
		c.SmallFileMaxBytes = 10 << 20
	}
	if c.LargeFileMaxBytes <= c.SmallFileMaxBytes {
		c.LargeFileMaxBytes = 100 << 20
	}
	if c.SmallFileTimeout <= 0 {
		c.SmallFileTimeout = 5 * time.Minute
	}
	if c.SyncWorkers <= 0 {
		c.SyncWorkers = 4
	}
	if c.ServiceName == "" {
		c.ServiceName = "worker"
	}
}

// SyncUsecase runs one full ingestion pass over a source: create the job,
// enumerate, route every file by size, process the small ones inline and
// defer the large ones, then finalize if nothing is still pending.
type SyncUsecase struct {
	sources     ports.SourceCatalog
	connectors  ports.ConnectorRegistry
	credentials ports.CredentialStore
	jobs        ports.IngestJobRepository
	queue       ports.MessageQueue
	processor   *FileProcessor

	cfg       SyncConfig
	telemetry Telemetry
	logger    *slog.Logger
}

func NewSyncUsecase(
	sources ports.SourceCatalog,
	connectors ports.ConnectorRegistry,
	credentials ports.CredentialStore,
	jobs ports.IngestJobRepository,
	queue ports.MessageQueue,
	processor *FileProcessor,
	cfg SyncConfig,
	telemetry Telemetry,
	logger *slog.Logger,
) *SyncUsecase {
	cfg.normalize()
	if telemetry == nil {
		telemetry = NopTelemetry{}
	}
	return &SyncUsecase{
		sources:     sources,
		connectors:  connectors,
		credentials: credentials,
		jobs:        jobs,
		queue:       queue,
		processor:   processor,
		cfg:         cfg,
		telemetry:   telemetry,
		logger:      logger,
	}
}

func (u *SyncUsecase) Sync(ctx context.Context, msg ports.IngestMessage) error {
	job := &domain.IngestJob{
		ID:        uuid.NewString(),
		SourceID:  msg.SourceID,
		TenantID:  msg.TenantID,
		Status:    domain.JobQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := u.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create ingest job: %w", err)
	}

	// The run holds one pending unit of its own for its whole duration, so a
	// fast large-file worker can never drive the counter to zero and complete
	// the job while routing is still in progress.
	if _, err := u.jobs.ApplyStatsDelta(ctx, job.ID, domain.StatsDelta{PendingLargeFiles: 1}); err != nil {
		return fmt.Errorf("reserve run guard: %w", err)
	}

	result := u.run(ctx, job)
	if result.Fatal != nil {
		u.failJob(ctx, job.ID, result.Fatal)
		return result.Fatal
	}
	return u.finalize(ctx, job.ID)
}

func (u *SyncUsecase) run(ctx context.Context, job *domain.IngestJob) domain.StageResult {
	var result domain.StageResult

	if err := u.jobs.TransitionStatus(ctx, job.ID,
		[]domain.JobStatus{domain.JobQueued}, domain.JobRunning, ""); err != nil {
		// Someone cancelled before the run started. Nothing was ingested.
		if domain.IsKind(err, domain.ErrJobTerminal) {
			return result
		}
		result.Fatal = err
		return result
	}

	source, err := u.sources.GetByID(ctx, job.TenantID, job.SourceID)
	if err != nil {
		result.Fatal = err
		return result
	}
	connector, err := u.connectors.Resolve(source.Type)
	if err != nil {
		result.Fatal = err
		return result
	}
	creds, err := u.credentials.Decrypt(job.TenantID, job.SourceID, source.Credentials)
	if err != nil {
		result.Fatal = err
		return result
	}

	files, err := connector.ListFiles(ctx, creds, u.cfg.SourceListLimit)
	if err != nil {
		// Enumeration failure means the run cannot make progress at all.
		result.Fatal = domain.WrapError(domain.ErrEnumeration, "enumerate source", err)
		return result
	}
	u.logger.Info("source enumerated",
		"job_id", job.ID, "source_id", job.SourceID, "tenant_id", job.TenantID, "files", len(files))

	inline := make([]domain.FileDescriptor, 0, len(files))
	for _, file := range files {
		switch {
		case file.SizeBytes > u.cfg.LargeFileMaxBytes:
			u.logger.Warn("file exceeds hard cap, skipped",
				"job_id", job.ID, "file", file.RemoteID, "size_bytes", file.SizeBytes)
			u.telemetry.SkipFile(u.cfg.ServiceName, "oversize")
		case file.SizeBytes > u.cfg.SmallFileMaxBytes:
			result.Merge(u.deferLargeFile(ctx, job, source, file))
		default:
			inline = append(inline, file)
		}
	}

	result.Merge(u.processInline(ctx, job, creds, connector, inline))
	return result
}

// deferLargeFile reserves a pending slot before publishing so the finalizer
// can never observe zero pending while a dispatch is still in flight.
func (u *SyncUsecase) deferLargeFile(ctx context.Context, job *domain.IngestJob, source *domain.Source, file domain.FileDescriptor) domain.StageResult {
	var result domain.StageResult

	stats, err := u.jobs.ApplyStatsDelta(ctx, job.ID, domain.StatsDelta{PendingLargeFiles: 1})
	if err != nil {
		result.Errors++
		u.logger.Error("reserve pending slot failed", "job_id", job.ID, "file", file.RemoteID, "error", err)
		return result
	}
	u.telemetry.SetPendingLargeFiles(u.cfg.ServiceName, stats.PendingLargeFiles)

	err = u.queue.PublishLargeFile(ctx, ports.LargeFileMessage{
		SourceID:     job.SourceID,
		TenantID:     job.TenantID,
		JobID:        job.ID,
		File:         file,
		Credentials:  source.Credentials,
		DispatchedAt: time.Now().UTC(),
	})
	if err != nil {
		result.Errors++
		u.logger.Error("large file dispatch failed", "job_id", job.ID, "file", file.RemoteID, "error", err)
		if stats, undoErr := u.jobs.ApplyStatsDelta(ctx, job.ID, domain.StatsDelta{PendingLargeFiles: -1}); undoErr == nil {
			u.telemetry.SetPendingLargeFiles(u.cfg.ServiceName, stats.PendingLargeFiles)
		}
		return result
	}

	u.logger.Info("large file deferred",
		"job_id", job.ID, "file", file.RemoteID, "size_bytes", file.SizeBytes)
	return result
}

func (u *SyncUsecase) processInline(ctx context.Context, job *domain.IngestJob, creds []byte, connector ports.SourceConnector, files []domain.FileDescriptor) domain.StageResult {
	var mu sync.Mutex
	var result domain.StageResult

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(u.cfg.SyncWorkers)

	for _, file := range files {
		file := file
		group.Go(func() error {
			// Cancellation is honored between files, never mid-file.
			cancelled, err := u.jobs.IsCancelled(groupCtx, job.ID)
			if err == nil && cancelled {
				return errJobCancelled
			}

			stage, err := u.processOne(groupCtx, job, creds, connector, file)
			mu.Lock()
			result.Merge(stage)
			if err != nil {
				result.Errors++
			}
			mu.Unlock()

			if err != nil {
				u.logger.Error("file processing failed",
					"job_id", job.ID, "file", file.RemoteID, "error", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, errJobCancelled) {
		mu.Lock()
		if result.Fatal == nil {
			result.Fatal = err
		}
		mu.Unlock()
	}
	return result
}

func (u *SyncUsecase) processOne(ctx context.Context, job *domain.IngestJob, creds []byte, connector ports.SourceConnector, file domain.FileDescriptor) (domain.StageResult, error) {
	fileCtx, cancel := context.WithTimeout(ctx, u.cfg.SmallFileTimeout)
	defer cancel()

	u.telemetry.StartFile()
	started := time.Now()

	stage, skipped, err := u.fetchAndProcess(fileCtx, job, creds, connector, file)
	if skipped {
		u.telemetry.FinishFile(u.cfg.ServiceName, "inline", time.Since(started), nil)
		u.telemetry.SkipFile(u.cfg.ServiceName, "inline")
		return stage, nil
	}
	u.telemetry.FinishFile(u.cfg.ServiceName, "inline", time.Since(started), err)

	if err == nil {
		if _, statsErr := u.jobs.ApplyStatsDelta(ctx, job.ID, domain.StatsDelta{
			Documents:   stage.Documents,
			Chunks:      stage.Chunks,
			CurrentFile: file.Name,
		}); statsErr != nil {
			u.logger.Error("stats update failed", "job_id", job.ID, "error", statsErr)
		}
	} else {
		if _, statsErr := u.jobs.ApplyStatsDelta(ctx, job.ID, domain.StatsDelta{
			Errors:      1,
			CurrentFile: file.Name,
		}); statsErr != nil {
			u.logger.Error("stats update failed", "job_id", job.ID, "error", statsErr)
		}
	}
	return stage, err
}

func (u *SyncUsecase) fetchAndProcess(ctx context.Context, job *domain.IngestJob, creds []byte, connector ports.SourceConnector, file domain.FileDescriptor) (domain.StageResult, bool, error) {
	content, err := connector.FetchContent(ctx, creds, file)
	if err != nil {
		return domain.StageResult{}, false, fmt.Errorf("fetch %s: %w", file.RemoteID, err)
	}
	return u.processor.ProcessFile(ctx, job.TenantID, job.SourceID, job.ID, file, content)
}

func (u *SyncUsecase) failJob(ctx context.Context, jobID string, fatal error) {
	err := u.jobs.TransitionStatus(ctx, jobID,
		[]domain.JobStatus{domain.JobQueued, domain.JobRunning}, domain.JobFailed, fatal.Error())
	if err != nil && !domain.IsKind(err, domain.ErrJobTerminal) {
		u.logger.Error("mark job failed", "job_id", jobID, "error", err)
	}
}

// finalize releases the run guard. If that leaves no deferred large file
// outstanding the run completes here; otherwise the last large-file worker
// to report back completes it.
func (u *SyncUsecase) finalize(ctx context.Context, jobID string) error {
	stats, err := u.jobs.ApplyStatsDelta(ctx, jobID, domain.StatsDelta{PendingLargeFiles: -1})
	if err != nil {
		return fmt.Errorf("release run guard: %w", err)
	}
	u.telemetry.SetPendingLargeFiles(u.cfg.ServiceName, stats.PendingLargeFiles)
	if stats.PendingLargeFiles > 0 {
		return nil
	}

	err = u.jobs.TransitionStatus(ctx, jobID,
		[]domain.JobStatus{domain.JobRunning}, domain.JobCompleted, "")
	if err != nil {
		if domain.IsKind(err, domain.ErrJobTerminal) {
			return nil
		}
		return err
	}
	u.logger.Info("ingest job completed", "job_id", jobID,
		"documents", stats.Documents, "chunks", stats.Chunks, "errors", stats.Errors)
	return nil
}

var errJobCancelled = errors.New("job cancelled")

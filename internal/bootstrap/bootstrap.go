package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
	"github.com/kirillkom/knowledge-ingest/internal/core/usecase"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/chunking"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/credentials"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/embedding/ollama"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/extractor"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/objectstore/localfs"
	natsqueue "github.com/kirillkom/knowledge-ingest/internal/infrastructure/queue/nats"
	repo "github.com/kirillkom/knowledge-ingest/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/source"
	vectorpg "github.com/kirillkom/knowledge-ingest/internal/infrastructure/vector/postgres"
	"github.com/kirillkom/knowledge-ingest/internal/observability/logging"
	"github.com/kirillkom/knowledge-ingest/internal/observability/metrics"
)

// App wires the full pipeline once per binary. Close releases the shared
// connections; usecases are safe to use from multiple goroutines.
type App struct {
	Cfg    config.Config
	Logger *slog.Logger

	DB      *sql.DB
	Queue   *natsqueue.Queue
	Metrics *metrics.WorkerMetrics

	Syncer        ports.SourceSyncer
	EmbedIndexer  ports.EmbedIndexer
	LargeFiles    ports.LargeFileProcessor
	Sweeper       ports.Sweeper
	Reindexer     ports.Reindexer
	Searcher      ports.Searcher
	Canceller     ports.JobCanceller
	SourceCatalog *repo.SourceCatalogRepository
	Credentials   *credentials.Store
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := mustLogger(cfg, service)

	db, err := repo.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := repo.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	vectors := vectorpg.NewStore(db)
	if err := vectors.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure vector schema: %w", err)
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, natsqueue.Subjects{
		Ingest:     cfg.NATSIngestSubject,
		EmbedBatch: cfg.NATSEmbedSubject,
		LargeFile:  cfg.NATSLargeFileSubject,
	}, natsqueue.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect queue: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	credStore, err := credentials.NewStore(cfg.CredentialKey)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init credential store: %w", err)
	}
	splitter, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	embedder := ollama.New(
		cfg.OllamaURL, cfg.OllamaEmbedModel,
		ollama.WithBatchLimit(cfg.EmbedBatchSize),
		ollama.WithDimensions(cfg.EmbedDimensions),
		ollama.WithExecutor(resilience.NewExecutor(resilience.DefaultConfig())),
		ollama.WithLogger(logger),
	)

	connectors := source.NewRegistry()
	connectors.Register(domain.SourceTypeFilesystem, source.NewFilesystem(cfg.SourceFetchRPS))
	connectors.Register(domain.SourceTypeHTTPDir, source.NewHTTPDir(cfg.SourceFetchRPS))

	documents := repo.NewDocumentRepository(db)
	chunks := repo.NewChunkRepository(db)
	jobs := repo.NewIngestJobRepository(db)
	catalog := repo.NewSourceCatalogRepository(db)

	workerMetrics := metrics.NewWorkerMetrics(service)

	processor := usecase.NewFileProcessor(
		documents, chunks, vectors, storage, extractor.NewRegistry(), splitter, queue,
		cfg.EmbedBatchSize, logger)

	app := &App{
		Cfg:           cfg,
		Logger:        logger,
		DB:            db,
		Queue:         queue,
		Metrics:       workerMetrics,
		SourceCatalog: catalog,
		Credentials:   credStore,
	}

	app.Syncer = usecase.NewSyncUsecase(
		catalog, connectors, credStore, jobs, queue, processor,
		usecase.SyncConfig{
			SmallFileMaxBytes: cfg.SmallFileMaxBytes,
			LargeFileMaxBytes: cfg.LargeFileMaxBytes,
			SmallFileTimeout:  cfg.SmallFileTimeout,
			SyncWorkers:       cfg.SyncWorkers,
			SourceListLimit:   cfg.SourceListLimit,
			ServiceName:       service,
		},
		workerMetrics, logger)

	app.EmbedIndexer = usecase.NewEmbedUsecase(
		chunks, embedder, vectors, jobs, service, workerMetrics, logger)

	app.LargeFiles = usecase.NewLargeFileUsecase(
		connectors, credStore, jobs, processor,
		resilience.NewExecutor(resilience.LargeFileConfig(cfg.LargeFileAttempts)),
		usecase.LargeFileConfig{Timeout: cfg.LargeFileTimeout, ServiceName: service},
		workerMetrics, logger)

	app.Sweeper = usecase.NewSweepUsecase(chunks, documents, vectors, storage, logger)
	app.Reindexer = usecase.NewReindexUsecase(
		documents, chunks, vectors, storage, extractor.NewRegistry(), splitter, queue,
		cfg.EmbedBatchSize, logger)
	app.Searcher = usecase.NewQueryUsecase(embedder, vectors, cfg.SearchTopK, logger)
	app.Canceller = usecase.NewCancelUsecase(jobs, logger)

	return app, nil
}

func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func mustLogger(cfg config.Config, service string) *slog.Logger {
	return logging.NewJSONLogger(service, cfg.LogLevel)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/knowledge-ingest/internal/bootstrap"
	"github.com/kirillkom/knowledge-ingest/internal/config"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		os.Stderr.WriteString("worker bootstrap failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer app.Close()
	logger := app.Logger

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.Metrics.Handler(),
	}
	go func() {
		logger.Info("metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	subscribe := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("subscription started", "lane", name)
			if err := fn(ctx); err != nil {
				logger.Error("subscription ended with error", "lane", name, "error", err)
				stop()
			}
		}()
	}

	subscribe("ingest", func(ctx context.Context) error {
		return app.Queue.SubscribeIngest(ctx, app.Syncer.Sync)
	})
	subscribe("embed", func(ctx context.Context) error {
		return app.Queue.SubscribeEmbedBatch(ctx, app.EmbedIndexer.HandleBatch)
	})
	subscribe("largefile", func(ctx context.Context) error {
		return app.Queue.SubscribeLargeFile(ctx, app.LargeFiles.HandleLargeFile)
	})

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	wg.Wait()
	logger.Info("worker stopped")
}

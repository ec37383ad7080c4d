package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/kirillkom/knowledge-ingest/internal/bootstrap"
	"github.com/kirillkom/knowledge-ingest/internal/config"
)

func main() {
	_ = godotenv.Load()

	once := flag.Bool("once", false, "run a single sweep and exit")
	dryRun := flag.Bool("dry-run", false, "report orphans without deleting")
	tenant := flag.String("tenant", "", "restrict the sweep to one tenant")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	app, err := bootstrap.New(ctx, cfg, "sweeper")
	if err != nil {
		os.Stderr.WriteString("sweeper bootstrap failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer app.Close()
	logger := app.Logger

	dry := *dryRun || cfg.SweepDryRun
	sweep := func() {
		report, err := app.Sweeper.Reconcile(ctx, *tenant, dry)
		if err != nil {
			logger.Error("sweep failed", "error", err)
			return
		}
		logger.Info("sweep finished",
			"dry_run", report.DryRun,
			"deleted_documents", report.DeletedDocuments,
			"deleted_chunks", report.DeletedChunks)
	}

	if *once {
		sweep()
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, sweep); err != nil {
		logger.Error("invalid sweep schedule", "schedule", cfg.SweepSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("sweeper scheduled", "schedule", cfg.SweepSchedule, "dry_run", dry)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Info("sweeper stopped")
}

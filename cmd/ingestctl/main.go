package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/kirillkom/knowledge-ingest/internal/bootstrap"
	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/core/ports"
)

const usage = `usage: ingestctl <command> [flags]

commands:
  add-source     register a source and encrypt its credentials
  remove-source  delete a source from the catalog (orphans its data)
  list-sources   print the live source ids for a tenant
  sync           dispatch an ingestion run for a source
  search         run a similarity query
  orphans        report chunks orphaned by deleted sources
  cancel         request cancellation of a job
  reindex        re-chunk and re-embed one document
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		os.Stderr.WriteString(usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	ctx := context.Background()
	app, err := bootstrap.New(ctx, config.Load(), "ingestctl")
	if err != nil {
		fail("bootstrap: %v", err)
	}
	defer app.Close()

	switch command {
	case "add-source":
		addSource(ctx, app, args)
	case "remove-source":
		removeSource(ctx, app, args)
	case "list-sources":
		listSources(ctx, app, args)
	case "sync":
		sync(ctx, app, args)
	case "search":
		search(ctx, app, args)
	case "orphans":
		orphans(ctx, app, args)
	case "cancel":
		cancel(ctx, app, args)
	case "reindex":
		reindex(ctx, app, args)
	default:
		os.Stderr.WriteString(usage)
		os.Exit(2)
	}
}

func addSource(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("add-source", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id")
	name := fs.String("name", "", "source name")
	sourceType := fs.String("type", "filesystem", "source type (filesystem|httpdir)")
	credsFile := fs.String("credentials", "", "path to a JSON credentials file")
	_ = fs.Parse(args)

	if *tenant == "" || *name == "" || *credsFile == "" {
		fail("add-source requires -tenant, -name and -credentials")
	}
	plaintext, err := os.ReadFile(*credsFile)
	if err != nil {
		fail("read credentials: %v", err)
	}
	if !json.Valid(plaintext) {
		fail("credentials file must contain valid JSON")
	}

	id := uuid.NewString()
	sealed, err := app.Credentials.Encrypt(*tenant, id, plaintext)
	if err != nil {
		fail("encrypt credentials: %v", err)
	}
	err = app.SourceCatalog.Register(ctx, &domain.Source{
		ID:          id,
		TenantID:    *tenant,
		Type:        domain.SourceType(*sourceType),
		Name:        *name,
		Credentials: sealed,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		fail("register source: %v", err)
	}
	fmt.Println(id)
}

func removeSource(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("remove-source", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id")
	id := fs.String("id", "", "source id")
	_ = fs.Parse(args)

	if *tenant == "" || *id == "" {
		fail("remove-source requires -tenant and -id")
	}
	if err := app.SourceCatalog.Remove(ctx, *tenant, *id); err != nil {
		fail("remove source: %v", err)
	}
	fmt.Println("removed; run the sweeper to reclaim its documents")
}

func listSources(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("list-sources", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id (empty = all tenants)")
	_ = fs.Parse(args)

	ids, err := app.SourceCatalog.ListLiveIDs(ctx, *tenant)
	if err != nil {
		fail("list sources: %v", err)
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func sync(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id")
	id := fs.String("source", "", "source id")
	_ = fs.Parse(args)

	if *tenant == "" || *id == "" {
		fail("sync requires -tenant and -source")
	}
	err := app.Queue.PublishIngest(ctx, ports.IngestMessage{SourceID: *id, TenantID: *tenant})
	if err != nil {
		fail("dispatch sync: %v", err)
	}
	fmt.Println("sync dispatched")
}

func search(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id")
	query := fs.String("query", "", "query text")
	topK := fs.Int("top-k", 0, "result count (0 = default)")
	_ = fs.Parse(args)

	results, err := app.Searcher.Search(ctx, *tenant, *query, *topK)
	if err != nil {
		fail("search: %v", err)
	}
	for _, result := range results {
		fmt.Printf("%.4f  chunk=%s document=%s\n", result.Score, result.ChunkID, result.DocumentID)
	}
}

func orphans(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("orphans", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id (empty = all tenants)")
	_ = fs.Parse(args)

	groups, err := app.Sweeper.FindOrphans(ctx, *tenant)
	if err != nil {
		fail("find orphans: %v", err)
	}
	for _, group := range groups {
		fmt.Printf("document=%s source=%s chunks=%d\n", group.DocumentID, group.SourceID, len(group.ChunkIDs))
	}
}

func cancel(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	jobID := fs.String("job", "", "job id")
	_ = fs.Parse(args)

	if *jobID == "" {
		fail("cancel requires -job")
	}
	if err := app.Canceller.Cancel(ctx, *jobID); err != nil {
		fail("cancel: %v", err)
	}
	fmt.Println("cancellation requested")
}

func reindex(ctx context.Context, app *bootstrap.App, args []string) {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	tenant := fs.String("tenant", "", "tenant id")
	document := fs.String("document", "", "document id")
	_ = fs.Parse(args)

	if *tenant == "" || *document == "" {
		fail("reindex requires -tenant and -document")
	}
	if err := app.Reindexer.Reindex(ctx, *tenant, *document); err != nil {
		fail("reindex: %v", err)
	}
	fmt.Println("reindexed")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/brdata-dev/cnpj-ingest/internal/config"
	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/discovery"
	"github.com/brdata-dev/cnpj-ingest/internal/ingestion"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
	"github.com/brdata-dev/cnpj-ingest/internal/registry"
)

// One-shot ingestion runner: enqueue nothing, just process the requested
// file types sequentially against a base URL. With -discover it only lists
// the ZIP links the base URL publishes and exits.
func main() {
	discover := flag.Bool("discover", false, "list the ZIP archives published under the base URL and exit")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("usage: ingest [-discover] <base-url> [file-type ...]")
	}
	baseURL := flag.Arg(0)

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	ctx := context.Background()

	if *discover {
		links, err := discovery.ListArchiveLinks(ctx, nil, baseURL)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		for _, link := range links {
			fmt.Println(link)
		}
		return
	}

	fileTypes := flag.Args()[1:]
	if len(fileTypes) == 0 {
		fileTypes = registry.ProcessingOrder
	}
	for _, fileType := range fileTypes {
		if _, err := registry.Lookup(fileType); err != nil {
			log.Fatalf("Invalid argument: %v", err)
		}
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	store := database.NewPostgresStore(dbpool)
	if err := store.Setup(ctx); err != nil {
		log.Fatalf("Failed to setup database schema: %v", err)
	}

	fetcher := ingestion.NewHTTPFetcher(cfg.DownloadTimeout)
	service := ingestion.NewService(store, store, fetcher, ingestion.Options{
		BatchSize:       cfg.BatchSize,
		CheckpointEvery: cfg.CheckpointBatches,
	})

	startTime := time.Now()
	for _, fileType := range fileTypes {
		job := models.IngestionJob{
			Source:   models.SourceLink,
			URL:      baseURL,
			FileType: fileType,
		}
		if err := store.CreateJob(ctx, &job); err != nil {
			log.Fatalf("Failed to create job for %s: %v", fileType, err)
		}

		log.Printf("Running ingestion job %s for %s", job.ID, fileType)
		service.RunLinkJob(ctx, job.ID, fileType, baseURL)

		final, err := store.GetJob(ctx, job.ID)
		if err != nil {
			log.Fatalf("Failed to read back job %s: %v", job.ID, err)
		}
		log.Printf("Job %s finished with status %s (%d records)", job.ID, final.Status, final.RecordsProcessed)
	}

	log.Printf("Execution time: %s", time.Since(startTime))
}

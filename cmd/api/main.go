package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/brdata-dev/cnpj-ingest/internal/config"
	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/ingestion"
	"github.com/brdata-dev/cnpj-ingest/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
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

	queue := ingestion.NewQueue(service, cfg.QueueSize)
	queue.Start(ctx)
	defer queue.Stop()

	handler := server.NewIngestionHandler(store, queue, cfg.UploadDir)
	router := server.SetupRoutes(handler)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.APIPort),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		httpServer.Shutdown(context.Background())
	}()

	log.Printf("Server starting on port %s", cfg.APIPort)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}

package database

import (
	"context"

	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// Store persists job records and their append-only log streams. The
// ingestion service is the only writer while a job runs; the HTTP layer
// reads through the same interface.
type Store interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	UpdateJobStatus(ctx context.Context, jobID string, update models.StatusUpdate) error
	GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error)
	AppendLog(ctx context.Context, jobID, level, message, details string) error
	ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, error)
	CompletedFileTypes(ctx context.Context) (map[string]bool, error)
	IsArchiveProcessed(ctx context.Context, checksum string) (bool, error)
	TableStats(ctx context.Context) (map[string]int64, error)
}

// BulkExecutor is the relational surface the batch writer flushes into. Each
// call is its own unit of work; no connection or lock is held between calls.
type BulkExecutor interface {
	Exec(ctx context.Context, sql string, args []any) (int64, error)
	TruncateTable(ctx context.Context, table string) error
}

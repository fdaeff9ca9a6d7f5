package ingestion

import (
	"context"
	"fmt"
	"log"

	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// Reporter persists job status transitions and leveled log entries, and
// mirrors every message to the process log so an operator tailing stdout
// sees the same stream an API consumer polls from the database.
//
// Persistence is best effort: a store hiccup is logged and swallowed so the
// data path never fails because the bookkeeping did.
type Reporter struct {
	store database.Store
}

func NewReporter(store database.Store) *Reporter {
	return &Reporter{store: store}
}

func (r *Reporter) Log(ctx context.Context, jobID, level, message, details string) {
	log.Printf("[%s] %s: %s", shortID(jobID), level, message)

	if err := r.store.AppendLog(ctx, jobID, level, message, models.TruncateMessage(details, 1000)); err != nil {
		log.Printf("[%s] failed to persist log entry: %v", shortID(jobID), err)
	}
}

// SetStatus advances the job state machine, optionally moving the progress
// bar. Pass models.ProgressUnchanged to leave progress alone.
func (r *Reporter) SetStatus(ctx context.Context, jobID, status string, progress int) {
	update := models.NewUpdate()
	update.Status = status
	update.Progress = progress
	r.Update(ctx, jobID, update)
}

func (r *Reporter) Update(ctx context.Context, jobID string, update models.StatusUpdate) {
	if err := r.store.UpdateJobStatus(ctx, jobID, update); err != nil {
		log.Printf("[%s] failed to update job status: %v", shortID(jobID), err)
	}
}

// Checkpoint refreshes the running record count mid-file without touching
// the progress bar.
func (r *Reporter) Checkpoint(ctx context.Context, jobID, table string, total int64) {
	update := models.NewUpdate()
	update.RecordsProcessed = &total
	r.Update(ctx, jobID, update)
	r.Log(ctx, jobID, models.LevelDebug, fmt.Sprintf("Processed %d records into table %s", total, table), "")
}

// Complete finalizes a successful job.
func (r *Reporter) Complete(ctx context.Context, jobID string, total int64) {
	update := models.NewUpdate()
	update.Status = models.StatusCompleted
	update.Progress = 100
	update.RecordsProcessed = &total
	update.TotalRecords = &total
	r.Update(ctx, jobID, update)
}

// Fail records a fatal error on the job and emits the matching log entry.
func (r *Reporter) Fail(ctx context.Context, jobID string, cause error, details string) {
	message := models.TruncateMessage(cause.Error(), 500)

	update := models.NewUpdate()
	update.Status = models.StatusError
	update.Progress = 0
	update.ErrorMessage = &message
	r.Update(ctx, jobID, update)

	r.Log(ctx, jobID, models.LevelError, "Job failed: "+message, details)
}

func shortID(jobID string) string {
	if len(jobID) > 8 {
		return jobID[:8]
	}
	return jobID
}

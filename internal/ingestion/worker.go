package ingestion

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// Queue runs ingestion jobs one at a time in submission order. Request
// handlers enqueue and return immediately; a single runner goroutine owns
// all processing, which bounds memory and database load but means a stuck
// job delays everything behind it.
type Queue struct {
	runner JobRunner
	jobs   chan models.JobRequest

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewQueue(runner JobRunner, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		runner: runner,
		jobs:   make(chan models.JobRequest, buffer),
	}
}

// Start launches the runner goroutine. The context cancels in-flight work
// and makes the runner drop anything still queued.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.run(ctx)
	})
}

// Enqueue submits jobs in the order given. It never blocks; a full queue is
// reported back to the caller instead of stalling a request handler.
func (q *Queue) Enqueue(requests ...models.JobRequest) error {
	for i, req := range requests {
		select {
		case q.jobs <- req:
		default:
			return fmt.Errorf("job queue full, %d of %d jobs not accepted", len(requests)-i, len(requests))
		}
	}
	return nil
}

// Stop closes the intake and waits for the runner to drain.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()

	for req := range q.jobs {
		if ctx.Err() != nil {
			log.Printf("job queue shutting down, dropping job %s (%s)", req.JobID, req.FileType)
			if req.Cleanup != nil {
				req.Cleanup()
			}
			continue
		}

		if req.FilePath != "" {
			q.runner.RunUploadJob(ctx, req.JobID, req.FileType, req.FilePath)
		} else {
			q.runner.RunLinkJob(ctx, req.JobID, req.FileType, req.BaseURL)
		}

		if req.Cleanup != nil {
			req.Cleanup()
		}
	}
	log.Println("job queue drained")
}

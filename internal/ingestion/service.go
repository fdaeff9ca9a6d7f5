package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
	"github.com/brdata-dev/cnpj-ingest/internal/registry"
	"github.com/brdata-dev/cnpj-ingest/pkg/checksum"
)

// Options tunes the pipeline; zero values fall back to the defaults used in
// production.
type Options struct {
	BatchSize       int
	CheckpointEvery int
}

// Service drives the end-to-end lifecycle of one ingestion job: resolve the
// archive parts for a file type, fetch each one, stream it through the
// extractor, and advance the job record through its state machine. Failures
// are recorded on the job, never returned; the caller polls job state.
type Service struct {
	store     database.Store
	executor  database.BulkExecutor
	fetcher   Fetcher
	reporter  *Reporter
	extractor *Extractor
}

// JobRunner executes one ingestion job to completion.
type JobRunner interface {
	RunLinkJob(ctx context.Context, jobID, fileType, baseURL string)
	RunUploadJob(ctx context.Context, jobID, fileType, filePath string)
}

func NewService(store database.Store, executor database.BulkExecutor, fetcher Fetcher, opts Options) *Service {
	reporter := NewReporter(store)
	return &Service{
		store:     store,
		executor:  executor,
		fetcher:   fetcher,
		reporter:  reporter,
		extractor: NewExtractor(executor, reporter, opts.BatchSize, opts.CheckpointEvery),
	}
}

// RunLinkJob resolves the numbered archive parts for fileType under baseURL
// and ingests them in order. A part answering 404 is skipped with a warning;
// any other failure ends the job in the error state.
func (s *Service) RunLinkJob(ctx context.Context, jobID, fileType, baseURL string) {
	cfg, err := registry.Lookup(fileType)
	if err != nil {
		s.reporter.Fail(ctx, jobID, err, "")
		return
	}

	s.reporter.Log(ctx, jobID, models.LevelInfo, "Starting ingestion for "+fileType, "")

	if err := s.prepareTable(ctx, jobID, cfg); err != nil {
		s.reporter.Fail(ctx, jobID, err, "")
		return
	}

	var total int64
	base := strings.TrimRight(baseURL, "/")

	for i := 0; i < cfg.ZipCount; i++ {
		if err := ctx.Err(); err != nil {
			s.reporter.Fail(ctx, jobID, err, "")
			return
		}

		zipName := cfg.ZipPrefix + ".zip"
		if cfg.ZipCount > 1 {
			zipName = fmt.Sprintf("%s%d.zip", cfg.ZipPrefix, i)
		}
		zipURL := base + "/" + zipName

		records, err := s.processRemoteArchive(ctx, jobID, zipURL, cfg, total)
		if err != nil {
			if errors.Is(err, models.ErrPartNotFound) {
				s.reporter.Log(ctx, jobID, models.LevelWarn, zipName+" not found (404), skipping", "")
				continue
			}
			s.reporter.Log(ctx, jobID, models.LevelError, "Failed to process "+zipName, models.TruncateMessage(err.Error(), 500))
			s.reporter.Fail(ctx, jobID, err, "")
			return
		}
		total += records
		s.reporter.Log(ctx, jobID, models.LevelInfo, fmt.Sprintf("%s: %d records processed", zipName, records), "")

		update := models.NewUpdate()
		update.Status = models.StatusProcessing
		update.Progress = partProgress(i+1, cfg.ZipCount)
		update.RecordsProcessed = &total
		s.reporter.Update(ctx, jobID, update)
	}

	s.reporter.Complete(ctx, jobID, total)
	s.reporter.Log(ctx, jobID, models.LevelInfo, fmt.Sprintf("Completed: %d records for %s", total, fileType), "")
}

// RunUploadJob ingests one already-received local archive, skipping the
// download sub-state entirely.
func (s *Service) RunUploadJob(ctx context.Context, jobID, fileType, filePath string) {
	cfg, err := registry.Lookup(fileType)
	if err != nil {
		s.reporter.Fail(ctx, jobID, err, "")
		return
	}

	s.reporter.Log(ctx, jobID, models.LevelInfo,
		fmt.Sprintf("Processing manual upload for %s: %s", fileType, filepath.Base(filePath)), "")

	if done := s.checkArchiveChecksum(ctx, jobID, filePath); done {
		return
	}

	if err := s.prepareTable(ctx, jobID, cfg); err != nil {
		s.reporter.Fail(ctx, jobID, err, "")
		return
	}

	s.reporter.SetStatus(ctx, jobID, models.StatusExtracting, 20)
	s.reporter.Log(ctx, jobID, models.LevelInfo, "Extracting uploaded ZIP", "")
	s.reporter.SetStatus(ctx, jobID, models.StatusProcessing, 50)

	total, err := s.extractor.ProcessArchive(ctx, jobID, filePath, cfg, 0)
	if err != nil {
		s.reporter.Fail(ctx, jobID, err, "")
		return
	}

	s.reporter.Complete(ctx, jobID, total)
	s.reporter.Log(ctx, jobID, models.LevelInfo, fmt.Sprintf("Upload completed: %d records for %s", total, fileType), "")
}

// prepareTable applies the full-replacement merge strategy: tables without a
// natural key are truncated once per job before the first batch lands.
func (s *Service) prepareTable(ctx context.Context, jobID string, cfg models.FileTypeConfig) error {
	if cfg.HasConflictKey() {
		return nil
	}

	s.reporter.Log(ctx, jobID, models.LevelWarn, "Truncating table "+cfg.Table+" before reload", "")
	return s.executor.TruncateTable(ctx, cfg.Table)
}

func (s *Service) processRemoteArchive(ctx context.Context, jobID, zipURL string, cfg models.FileTypeConfig, startTotal int64) (int64, error) {
	s.reporter.Log(ctx, jobID, models.LevelInfo, "Starting download: "+zipURL, "")
	s.reporter.SetStatus(ctx, jobID, models.StatusDownloading, 10)

	archive, err := s.fetcher.Fetch(ctx, zipURL)
	if err != nil {
		return 0, err
	}
	defer archive.Close()

	s.reporter.Log(ctx, jobID, models.LevelInfo,
		fmt.Sprintf("Download finished, size: %.1f MB", float64(archive.Size)/1024/1024), "")
	s.reporter.SetStatus(ctx, jobID, models.StatusExtracting, 30)
	s.reporter.Log(ctx, jobID, models.LevelInfo, "Extracting ZIP: "+lastSegment(zipURL), "")
	s.reporter.SetStatus(ctx, jobID, models.StatusProcessing, 50)

	return s.extractor.ProcessArchive(ctx, jobID, archive.Path, cfg, startTotal)
}

// checkArchiveChecksum records the upload's checksum on the job and short
// circuits when an identical archive already completed. Hash failures only
// disable the dedup, never the job.
func (s *Service) checkArchiveChecksum(ctx context.Context, jobID, filePath string) bool {
	sum, err := checksum.GetFileChecksum(filePath)
	if err != nil {
		s.reporter.Log(ctx, jobID, models.LevelWarn, "Could not checksum uploaded archive", err.Error())
		return false
	}

	update := models.NewUpdate()
	update.ArchiveChecksum = &sum
	s.reporter.Update(ctx, jobID, update)

	processed, err := s.store.IsArchiveProcessed(ctx, sum)
	if err != nil {
		s.reporter.Log(ctx, jobID, models.LevelWarn, "Could not check archive checksum against previous jobs", err.Error())
		return false
	}
	if !processed {
		return false
	}

	s.reporter.Log(ctx, jobID, models.LevelWarn, "Archive already ingested (checksum match), skipping", sum)
	s.reporter.Complete(ctx, jobID, 0)
	return true
}

// partProgress maps "parts done out of N" onto the second half of the
// progress bar, clamped below 100 until the job finalizes.
func partProgress(done, totalParts int) int {
	progress := int(math.Round(50 + 50*float64(done)/float64(totalParts)))
	if progress > 99 {
		progress = 99
	}
	return progress
}

func lastSegment(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

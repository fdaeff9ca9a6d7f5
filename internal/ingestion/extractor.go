package ingestion

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
	"github.com/brdata-dev/cnpj-ingest/internal/parser"
)

// Extractor walks one ZIP archive in entry order and routes every payload
// entry through the row decoder and batch writer pipeline. Non-payload
// entries (readmes, layout PDFs) are skipped without being decompressed.
type Extractor struct {
	executor        database.BulkExecutor
	reporter        *Reporter
	batchSize       int
	checkpointEvery int
}

func NewExtractor(executor database.BulkExecutor, reporter *Reporter, batchSize, checkpointEvery int) *Extractor {
	return &Extractor{
		executor:        executor,
		reporter:        reporter,
		batchSize:       batchSize,
		checkpointEvery: checkpointEvery,
	}
}

// ProcessArchive loads every payload entry of the archive at archivePath and
// returns the number of rows written. startTotal seeds the cumulative record
// count reported at checkpoints, so multi-part jobs keep one running number.
func (e *Extractor) ProcessArchive(ctx context.Context, jobID, archivePath string, cfg models.FileTypeConfig, startTotal int64) (int64, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, &models.InvalidArchiveError{Source: path.Base(archivePath), Reason: err.Error()}
	}
	defer reader.Close()

	var written int64
	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if entry.FileInfo().IsDir() {
			continue
		}

		if !isPayloadEntry(entry.Name) {
			e.reporter.Log(ctx, jobID, models.LevelDebug, "Skipping entry: "+entry.Name, "")
			continue
		}

		e.reporter.Log(ctx, jobID, models.LevelInfo, "Processing payload entry: "+entry.Name, "")
		n, err := e.processEntry(ctx, jobID, entry, cfg, startTotal+written)
		written += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

func (e *Extractor) processEntry(ctx context.Context, jobID string, entry *zip.File, cfg models.FileTypeConfig, startTotal int64) (int64, error) {
	rc, err := entry.Open()
	if err != nil {
		return 0, &models.DecodeError{Entry: entry.Name, Err: err}
	}
	defer rc.Close()

	decoder := parser.NewRowDecoder(rc, cfg, entry.Name)
	writer := NewBatchWriter(e.executor, e.reporter, jobID, cfg, e.batchSize, e.checkpointEvery, startTotal)

	for {
		row, err := decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return writer.Written() - startTotal, err
		}
		if err := writer.Add(ctx, row); err != nil {
			return writer.Written() - startTotal, err
		}
	}

	if err := writer.Finish(ctx); err != nil {
		return writer.Written() - startTotal, err
	}
	return writer.Written() - startTotal, nil
}

// isPayloadEntry recognizes the data-bearing file inside an archive part.
// Receita Federal payload entries either end in a CSV-flavored suffix
// (.CSV, .EMPRECSV, .SOCIOCSV, ...), use the .ESTABELE suffix, or carry no
// extension at all.
func isPayloadEntry(name string) bool {
	base := strings.ToUpper(path.Base(name))
	if !strings.Contains(base, ".") {
		return true
	}
	return strings.HasSuffix(base, "CSV") || strings.HasSuffix(base, ".ESTABELE")
}

package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
	"github.com/brdata-dev/cnpj-ingest/internal/registry"
)

// BatchWriter accumulates decoded rows for one file type and flushes each
// full batch as a single multi-row parameterized statement. Tables with a
// conflict key get an upsert that overwrites every non-key column; tables
// without one get a plain insert (the orchestrator truncates those once per
// job before any batch is written).
type BatchWriter struct {
	executor        database.BulkExecutor
	reporter        *Reporter
	jobID           string
	cfg             models.FileTypeConfig
	batchSize       int
	checkpointEvery int

	rows    []models.DecodedRow
	total   int64
	batches int
}

// NewBatchWriter starts a writer whose running record count continues from
// startTotal, so checkpoints across multiple archive parts stay cumulative.
func NewBatchWriter(executor database.BulkExecutor, reporter *Reporter, jobID string, cfg models.FileTypeConfig, batchSize, checkpointEvery int, startTotal int64) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 5000
	}
	if checkpointEvery <= 0 {
		checkpointEvery = 5
	}
	return &BatchWriter{
		executor:        executor,
		reporter:        reporter,
		jobID:           jobID,
		cfg:             cfg,
		batchSize:       batchSize,
		checkpointEvery: checkpointEvery,
		rows:            make([]models.DecodedRow, 0, batchSize),
		total:           startTotal,
	}
}

// Add buffers one row, flushing when the batch is full.
func (w *BatchWriter) Add(ctx context.Context, row models.DecodedRow) error {
	w.rows = append(w.rows, row)
	if len(w.rows) >= w.batchSize {
		return w.flush(ctx, false)
	}
	return nil
}

// Finish flushes the final partial batch and emits a closing checkpoint.
func (w *BatchWriter) Finish(ctx context.Context) error {
	return w.flush(ctx, true)
}

// Written reports the cumulative record count, including startTotal.
func (w *BatchWriter) Written() int64 {
	return w.total
}

func (w *BatchWriter) flush(ctx context.Context, final bool) error {
	if len(w.rows) > 0 {
		sql, args := buildStatement(w.cfg, w.rows)
		if _, err := w.executor.Exec(ctx, sql, args); err != nil {
			return &models.WriteError{Table: w.cfg.Table, Err: err}
		}
		w.total += int64(len(w.rows))
		w.batches++
		w.rows = w.rows[:0]
	}

	if w.batches > 0 && (final || w.batches%w.checkpointEvery == 0) {
		w.reporter.Checkpoint(ctx, w.jobID, w.cfg.Table, w.total)
	}
	return nil
}

// buildStatement renders one multi-row insert for the batch. Empty fields
// become NULL; the capital column is normalized to a numeric value.
func buildStatement(cfg models.FileTypeConfig, rows []models.DecodedRow) (string, []any) {
	cols := cfg.Columns
	args := make([]any, 0, len(rows)*len(cols))
	valuePlaceholders := make([]string, 0, len(rows))

	paramIdx := 1
	for _, row := range rows {
		rowPlaceholders := make([]string, len(cols))
		for i, col := range cols {
			rowPlaceholders[i] = fmt.Sprintf("$%d", paramIdx)
			paramIdx++

			value := ""
			if i < len(row) {
				value = row[i]
			}
			if col == registry.CapitalColumn {
				args = append(args, ParseCapital(value))
			} else if value == "" {
				args = append(args, nil)
			} else {
				args = append(args, value)
			}
		}
		valuePlaceholders = append(valuePlaceholders, "("+strings.Join(rowPlaceholders, ", ")+")")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES %s",
		cfg.Table, strings.Join(cols, ", "), strings.Join(valuePlaceholders, ", "))

	if cfg.HasConflictKey() {
		keySet := make(map[string]bool, len(cfg.ConflictKey))
		for _, key := range cfg.ConflictKey {
			keySet[key] = true
		}
		updates := make([]string, 0, len(cols))
		for _, col := range cols {
			if !keySet[col] {
				updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			}
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s",
			strings.Join(cfg.ConflictKey, ", "), strings.Join(updates, ", "))
	}

	return sb.String(), args
}

// ParseCapital converts locale-formatted decimal text ("1.234,56") to a
// float. Anything unparseable becomes 0 rather than blocking the batch.
func ParseCapital(value string) float64 {
	normalized := strings.ReplaceAll(value, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")
	parsed, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0
	}
	return parsed
}

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbpool, nil
}

// PostgresStore implements Store and BulkExecutor on a shared pgx pool.
// Connections are acquired per call and released immediately, so long-running
// jobs never pin a connection across a whole file.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO ingestion_jobs (id, source, file_name, url, file_type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;`,
		job.ID, job.Source, nullable(job.FileName), nullable(job.URL), job.FileType, job.Status,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting ingestion job: %w", err)
	}

	return nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, update models.StatusUpdate) error {
	sets := make([]string, 0, 6)
	args := []any{jobID}
	idx := 2

	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, value)
		idx++
	}

	if update.Status != "" {
		appendSet("status", update.Status)
	}
	if update.Progress != models.ProgressUnchanged {
		appendSet("progress", update.Progress)
	}
	if update.RecordsProcessed != nil {
		appendSet("records_processed", *update.RecordsProcessed)
	}
	if update.TotalRecords != nil {
		appendSet("total_records", *update.TotalRecords)
	}
	if update.ErrorMessage != nil {
		appendSet("error_message", *update.ErrorMessage)
	}
	if update.ArchiveChecksum != nil {
		appendSet("archive_checksum", *update.ArchiveChecksum)
	}
	if update.IsTerminal() {
		sets = append(sets, "completed_at = NOW()")
	}

	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE ingestion_jobs SET %s WHERE id = $1", strings.Join(sets, ", "))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("error updating ingestion job %s: %w", jobID, err)
	}

	return nil
}

const jobColumns = `id, source, COALESCE(file_name, ''), COALESCE(url, ''), file_type, status,
	progress, records_processed, total_records, COALESCE(error_message, ''), created_at, completed_at`

func scanJob(row pgx.Row) (*models.IngestionJob, error) {
	var job models.IngestionJob
	var completedAt pgtype.Timestamptz

	err := row.Scan(
		&job.ID, &job.Source, &job.FileName, &job.URL, &job.FileType, &job.Status,
		&job.Progress, &job.RecordsProcessed, &job.TotalRecords, &job.ErrorMessage,
		&job.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	query := fmt.Sprintf("SELECT %s FROM ingestion_jobs WHERE id = $1", jobColumns)
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		return nil, fmt.Errorf("error finding ingestion job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf("SELECT %s FROM ingestion_jobs ORDER BY created_at DESC LIMIT $1", jobColumns)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing ingestion jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.IngestionJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning ingestion job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingestion jobs: %w", err)
	}

	return jobs, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, jobID, level, message, details string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_logs (job_id, level, message, details)
		VALUES ($1, $2, $3, $4);`,
		jobID, level, message, nullable(details),
	)
	if err != nil {
		return fmt.Errorf("error appending ingestion log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, error) {
	conditions := []string{}
	args := []any{}
	idx := 1

	if filter.JobID != "" {
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", idx))
		args = append(args, filter.JobID)
		idx++
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", idx))
		args = append(args, filter.Level)
		idx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, job_id, level, message, COALESCE(details, ''), created_at
		FROM ingestion_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d`, where, idx)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []models.LogEntry{}
	for rows.Next() {
		var entry models.LogEntry
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Level, &entry.Message, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning ingestion log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ingestion logs: %w", err)
	}

	return logs, nil
}

func (s *PostgresStore) CompletedFileTypes(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT file_type FROM ingestion_jobs WHERE status = $1;`,
		models.StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("error listing completed file types: %w", err)
	}
	defer rows.Close()

	completed := make(map[string]bool)
	for rows.Next() {
		var fileType string
		if err := rows.Scan(&fileType); err != nil {
			return nil, fmt.Errorf("error scanning file type: %w", err)
		}
		completed[fileType] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file types: %w", err)
	}

	return completed, nil
}

func (s *PostgresStore) IsArchiveProcessed(ctx context.Context, checksum string) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM ingestion_jobs
		WHERE archive_checksum = $1 AND status = $2
		LIMIT 1;`,
		checksum, models.StatusCompleted,
	).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("error finding job by archive checksum: %w", err)
	}

	return true, nil
}

func (s *PostgresStore) TableStats(ctx context.Context) (map[string]int64, error) {
	var empresas, estabelecimentos, socios, municipios, cnaes int64

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM empresas),
			(SELECT COUNT(*) FROM estabelecimentos),
			(SELECT COUNT(*) FROM socios),
			(SELECT COUNT(*) FROM municipios),
			(SELECT COUNT(*) FROM cnaes);`,
	).Scan(&empresas, &estabelecimentos, &socios, &municipios, &cnaes)
	if err != nil {
		return nil, fmt.Errorf("error querying table stats: %w", err)
	}

	return map[string]int64{
		"total_empresas":         empresas,
		"total_estabelecimentos": estabelecimentos,
		"total_socios":           socios,
		"total_municipios":       municipios,
		"total_cnaes":            cnaes,
	}, nil
}

// Exec runs one parameterized statement and reports the rows it affected.
func (s *PostgresStore) Exec(ctx context.Context, sql string, args []any) (int64, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) TruncateTable(ctx context.Context, table string) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s;", pgx.Identifier{table}.Sanitize())
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error truncating table %s: %w", table, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package models

import "time"

// Job lifecycle states. A job is created as pending by whoever enqueues it;
// the ingestion service owns every transition after that. completed and
// error are terminal.
const (
	StatusPending     = "pending"
	StatusDownloading = "downloading"
	StatusExtracting  = "extracting"
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusError       = "error"
)

// Job sources.
const (
	SourceLink   = "link"
	SourceUpload = "upload"
)

// Persisted log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type IngestionJob struct {
	ID               string     `json:"id"`
	Source           string     `json:"source"`
	FileName         string     `json:"file_name,omitempty"`
	URL              string     `json:"url,omitempty"`
	FileType         string     `json:"file_type"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	RecordsProcessed int64      `json:"records_processed"`
	TotalRecords     int64      `json:"total_records"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// LogEntry is one append-only line in a job's log stream.
type LogEntry struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LogFilter narrows a log listing.
type LogFilter struct {
	JobID string
	Level string
	Limit int
}

// ProgressUnchanged is the sentinel progress value meaning "leave progress
// as it is", used when only record counters are refreshed mid-batch.
const ProgressUnchanged = -1

// StatusUpdate is a partial update to a job record. Nil pointer fields are
// left untouched. Always build one with NewUpdate so the zero progress value
// is not written by accident.
type StatusUpdate struct {
	Status           string
	Progress         int
	RecordsProcessed *int64
	TotalRecords     *int64
	ErrorMessage     *string
	ArchiveChecksum  *string
}

// NewUpdate returns a StatusUpdate that changes nothing until fields are set.
func NewUpdate() StatusUpdate {
	return StatusUpdate{Progress: ProgressUnchanged}
}

// IsTerminal reports whether the update moves the job into a final state.
func (u StatusUpdate) IsTerminal() bool {
	return u.Status == StatusCompleted || u.Status == StatusError
}

// FileTypeConfig describes one Receita Federal dataset: how its archive
// parts are named, how many numbered parts ship, and how positional row
// values map onto a destination table. The Columns slice must match the
// positional layout of the source rows exactly.
type FileTypeConfig struct {
	Key       string
	ZipPrefix string
	ZipCount  int
	Table     string
	Columns   []string
	// ConflictKey lists the natural-key columns used for upserts. Empty
	// means the table has no natural uniqueness and is truncated once per
	// job before reloading.
	ConflictKey []string
}

// HasConflictKey reports whether rows merge by upsert instead of
// truncate-then-insert.
func (c FileTypeConfig) HasConflictKey() bool {
	return len(c.ConflictKey) > 0
}

// DecodedRow is one positional record decoded from a payload entry, trimmed,
// one value per configured column.
type DecodedRow []string

// JobRequest is one unit of work handed to the job queue. FilePath set means
// an already-received upload; otherwise archive parts are resolved under
// BaseURL. Cleanup, when set, runs after the job finishes regardless of
// outcome.
type JobRequest struct {
	JobID    string
	FileType string
	BaseURL  string
	FilePath string
	Cleanup  func()
}

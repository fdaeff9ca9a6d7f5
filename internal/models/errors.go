package models

import (
	"errors"
	"fmt"
)

// ErrPartNotFound marks a numbered archive part the remote side does not
// publish (HTTP 404). The orchestrator logs a warning and moves on to the
// next part; every other error is fatal for the job.
var ErrPartNotFound = errors.New("archive part not found")

// ConfigurationError means the requested file type is not among the declared
// datasets. The job fails before any work is attempted.
type ConfigurationError struct {
	FileType string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unknown file type: %s", e.FileType)
}

// InvalidArchiveError means the bytes resolved for an archive part are not a
// usable ZIP container, most commonly an HTML error page behind a broken or
// redirected URL.
type InvalidArchiveError struct {
	Source string
	Reason string
}

func (e *InvalidArchiveError) Error() string {
	return fmt.Sprintf("invalid archive %s: %s", e.Source, e.Reason)
}

// DecodeError is a stream-level decode failure on a payload entry. Row-level
// malformation never produces one; only I/O or encoding failures do.
type DecodeError struct {
	Entry string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode entry %s: %v", e.Entry, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError is a failed batch flush. The whole batch rolls back; the
// orchestrator records it on the job and stops.
type WriteError struct {
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write batch to table %s: %s", e.Table, TruncateMessage(e.Err.Error(), 500))
}

func (e *WriteError) Unwrap() error { return e.Err }

// TruncateMessage caps an error or detail string before it is stored on a
// job record or log entry.
func TruncateMessage(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

package ingestion

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// MockStore is a mock implementation of the database.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockStore) UpdateJobStatus(ctx context.Context, jobID string, update models.StatusUpdate) error {
	args := m.Called(ctx, jobID, update)
	return args.Error(0)
}

func (m *MockStore) GetJob(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IngestionJob), args.Error(1)
}

func (m *MockStore) ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.IngestionJob), args.Error(1)
}

func (m *MockStore) AppendLog(ctx context.Context, jobID, level, message, details string) error {
	args := m.Called(ctx, jobID, level, message, details)
	return args.Error(0)
}

func (m *MockStore) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LogEntry), args.Error(1)
}

func (m *MockStore) CompletedFileTypes(ctx context.Context) (map[string]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockStore) IsArchiveProcessed(ctx context.Context, checksum string) (bool, error) {
	args := m.Called(ctx, checksum)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) TableStats(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// MockBulkExecutor is a mock implementation of the database.BulkExecutor
// interface.
type MockBulkExecutor struct {
	mock.Mock
}

func (m *MockBulkExecutor) Exec(ctx context.Context, sql string, args []any) (int64, error) {
	called := m.Called(ctx, sql, args)
	return called.Get(0).(int64), called.Error(1)
}

func (m *MockBulkExecutor) TruncateTable(ctx context.Context, table string) error {
	args := m.Called(ctx, table)
	return args.Error(0)
}

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*Archive, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Archive), args.Error(1)
}

// permissiveStore wires the catch-all expectations every pipeline test needs
// for status updates and log appends.
func permissiveStore() *MockStore {
	store := new(MockStore)
	store.On("UpdateJobStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("AppendLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return store
}

// statusUpdates extracts every StatusUpdate recorded against the store, in
// call order.
func statusUpdates(store *MockStore) []models.StatusUpdate {
	var updates []models.StatusUpdate
	for _, call := range store.Calls {
		if call.Method == "UpdateJobStatus" {
			updates = append(updates, call.Arguments.Get(2).(models.StatusUpdate))
		}
	}
	return updates
}

// finalStatus returns the last status transition the store saw.
func finalStatus(store *MockStore) models.StatusUpdate {
	updates := statusUpdates(store)
	for i := len(updates) - 1; i >= 0; i-- {
		if updates[i].Status != "" {
			return updates[i]
		}
	}
	return models.StatusUpdate{}
}

type loggedLine struct {
	Level   string
	Message string
}

func loggedLines(store *MockStore) []loggedLine {
	var lines []loggedLine
	for _, call := range store.Calls {
		if call.Method == "AppendLog" {
			lines = append(lines, loggedLine{
				Level:   call.Arguments.String(2),
				Message: call.Arguments.String(3),
			})
		}
	}
	return lines
}

// createTestZip writes a ZIP archive holding the given entries into a temp
// dir and returns its path.
func createTestZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	zipPath := filepath.Join(t.TempDir(), "test.zip")
	file, err := os.Create(zipPath)
	require.NoError(t, err)

	writer := zip.NewWriter(file)
	for name, content := range entries {
		entry, err := writer.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return zipPath
}

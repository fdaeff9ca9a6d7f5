package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brdata-dev/cnpj-ingest/internal/ingestion"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
	"github.com/brdata-dev/cnpj-ingest/internal/registry"
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

// noopRunner satisfies ingestion.JobRunner for handler tests; the handlers
// only enqueue, they never wait on job execution.
type noopRunner struct {
	mu   sync.Mutex
	runs []string
}

func (r *noopRunner) RunLinkJob(_ context.Context, jobID, fileType, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, "link:"+fileType)
}

func (r *noopRunner) RunUploadJob(_ context.Context, jobID, fileType, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, "upload:"+fileType)
}

func newTestHandler(t *testing.T, store *MockStore) (*IngestionHandler, *ingestion.Queue, *noopRunner) {
	t.Helper()
	runner := &noopRunner{}
	queue := ingestion.NewQueue(runner, 32)
	return NewIngestionHandler(store, queue, t.TempDir()), queue, runner
}

func TestStartFromLink(t *testing.T) {
	t.Run("should enqueue one job per pending file type", func(t *testing.T) {
		store := new(MockStore)
		store.On("CompletedFileTypes", mock.Anything).Return(map[string]bool{"municipios": true}, nil)
		var created []string
		store.On("CreateJob", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			job := args.Get(1).(*models.IngestionJob)
			job.ID = fmt.Sprintf("job-%d", len(created)+1)
			created = append(created, job.FileType)
		}).Return(nil)

		handler, _, _ := newTestHandler(t, store)

		body := strings.NewReader(`{"url": "http://mirror.test/dados/"}`)
		req := httptest.NewRequest(http.MethodPost, "/ingestion/start-from-link", body)
		rec := httptest.NewRecorder()
		handler.StartFromLink(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Jobs    []models.IngestionJob `json:"jobs"`
			Skipped []string              `json:"skipped"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp.Jobs, len(registry.ProcessingOrder)-1)
		assert.Equal(t, []string{"municipios"}, resp.Skipped)
		assert.NotContains(t, created, "municipios")
		for _, job := range resp.Jobs {
			assert.NotEmpty(t, job.ID)
			assert.Equal(t, models.SourceLink, job.Source)
			assert.Equal(t, "http://mirror.test/dados", job.URL)
		}
	})

	t.Run("should answer 200 without enqueueing when everything already completed", func(t *testing.T) {
		store := new(MockStore)
		completed := map[string]bool{}
		for _, key := range registry.ProcessingOrder {
			completed[key] = true
		}
		store.On("CompletedFileTypes", mock.Anything).Return(completed, nil)

		handler, _, _ := newTestHandler(t, store)

		req := httptest.NewRequest(http.MethodPost, "/ingestion/start-from-link", strings.NewReader(`{"url": "http://mirror.test"}`))
		rec := httptest.NewRecorder()
		handler.StartFromLink(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		store.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	})

	t.Run("should reprocess completed types when skip_completed is false", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateJob", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			args.Get(1).(*models.IngestionJob).ID = "job-x"
		}).Return(nil)

		handler, _, _ := newTestHandler(t, store)

		req := httptest.NewRequest(http.MethodPost, "/ingestion/start-from-link",
			strings.NewReader(`{"url": "http://mirror.test", "skip_completed": false}`))
		rec := httptest.NewRecorder()
		handler.StartFromLink(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		store.AssertNotCalled(t, "CompletedFileTypes", mock.Anything)
		store.AssertNumberOfCalls(t, "CreateJob", len(registry.ProcessingOrder))
	})

	t.Run("should require a URL", func(t *testing.T) {
		handler, _, _ := newTestHandler(t, new(MockStore))

		req := httptest.NewRequest(http.MethodPost, "/ingestion/start-from-link", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		handler.StartFromLink(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("should only accept POST", func(t *testing.T) {
		handler, _, _ := newTestHandler(t, new(MockStore))

		req := httptest.NewRequest(http.MethodGet, "/ingestion/start-from-link", nil)
		rec := httptest.NewRecorder()
		handler.StartFromLink(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func multipartBody(t *testing.T, fileType, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("file_type", fileType))
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUpload(t *testing.T) {
	t.Run("should store the archive and enqueue an upload job", func(t *testing.T) {
		store := new(MockStore)
		store.On("CreateJob", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			args.Get(1).(*models.IngestionJob).ID = "job-1"
		}).Return(nil)

		handler, queue, runner := newTestHandler(t, store)

		body, contentType := multipartBody(t, "municipios", "Municipios.zip", []byte("PK\x03\x04"))
		req := httptest.NewRequest(http.MethodPost, "/ingestion/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.Upload(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp struct {
			Job models.IngestionJob `json:"job"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, models.SourceUpload, resp.Job.Source)
		assert.Equal(t, "Municipios.zip", resp.Job.FileName)

		saved, err := filepath.Glob(filepath.Join(handler.uploadDir, "*-Municipios.zip"))
		require.NoError(t, err)
		require.Len(t, saved, 1)

		// Draining the queue runs the job and its cleanup, removing the file.
		queue.Start(context.Background())
		queue.Stop()
		assert.Equal(t, []string{"upload:municipios"}, runner.runs)
		_, err = os.Stat(saved[0])
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("should reject an unknown file type", func(t *testing.T) {
		handler, _, _ := newTestHandler(t, new(MockStore))

		body, contentType := multipartBody(t, "faturamento", "dados.zip", []byte("PK"))
		req := httptest.NewRequest(http.MethodPost, "/ingestion/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.Upload(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid file type")
	})

	t.Run("should reject files that are not ZIP archives", func(t *testing.T) {
		handler, _, _ := newTestHandler(t, new(MockStore))

		body, contentType := multipartBody(t, "municipios", "dados.csv", []byte("a;b"))
		req := httptest.NewRequest(http.MethodPost, "/ingestion/upload", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		handler.Upload(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), ".zip")
	})

	t.Run("should require the file field", func(t *testing.T) {
		handler, _, _ := newTestHandler(t, new(MockStore))

		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		require.NoError(t, writer.WriteField("file_type", "municipios"))
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/ingestion/upload", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rec := httptest.NewRecorder()
		handler.Upload(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListJobs(t *testing.T) {
	t.Run("should return the most recent jobs", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListJobs", mock.Anything, 50).Return([]models.IngestionJob{
			{ID: "job-1", Status: models.StatusCompleted, FileType: "municipios"},
		}, nil)

		handler, _, _ := newTestHandler(t, store)

		req := httptest.NewRequest(http.MethodGet, "/ingestion/jobs", nil)
		rec := httptest.NewRecorder()
		handler.ListJobs(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []models.IngestionJob `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "job-1", resp.Data[0].ID)
	})
}

func TestListLogs(t *testing.T) {
	t.Run("should pass the query filters through", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListLogs", mock.Anything, models.LogFilter{
			JobID: "job-1",
			Level: models.LevelWarn,
			Limit: 10,
		}).Return([]models.LogEntry{{JobID: "job-1", Level: models.LevelWarn, Message: "Empresas3.zip not found (404), skipping"}}, nil)

		handler, _, _ := newTestHandler(t, store)

		req := httptest.NewRequest(http.MethodGet, "/ingestion/logs?job_id=job-1&level=warn&limit=10", nil)
		rec := httptest.NewRecorder()
		handler.ListLogs(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		store.AssertExpectations(t)
	})
}

func TestStats(t *testing.T) {
	t.Run("should report per-table record counts", func(t *testing.T) {
		store := new(MockStore)
		store.On("TableStats", mock.Anything).Return(map[string]int64{
			"total_empresas":   1500,
			"total_municipios": 5570,
		}, nil)

		handler, _, _ := newTestHandler(t, store)

		req := httptest.NewRequest(http.MethodGet, "/ingestion/stats", nil)
		rec := httptest.NewRecorder()
		handler.Stats(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var stats map[string]int64
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
		assert.Equal(t, int64(5570), stats["total_municipios"])
	})
}

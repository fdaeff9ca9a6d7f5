package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brdata-dev/cnpj-ingest/internal/database"
	"github.com/brdata-dev/cnpj-ingest/internal/ingestion"
	"github.com/brdata-dev/cnpj-ingest/internal/models"
	"github.com/brdata-dev/cnpj-ingest/internal/registry"
)

// IngestionHandler exposes the ingestion subsystem over JSON: enqueue jobs
// from a remote link or a manual upload, and poll jobs, logs, and table
// stats. Processing itself happens on the background queue; handlers only
// create job records and enqueue.
type IngestionHandler struct {
	store     database.Store
	queue     *ingestion.Queue
	uploadDir string
	maxUpload int64
}

func NewIngestionHandler(store database.Store, queue *ingestion.Queue, uploadDir string) *IngestionHandler {
	return &IngestionHandler{
		store:     store,
		queue:     queue,
		uploadDir: uploadDir,
		maxUpload: 10 << 30, // the full Estabelecimentos parts come close to this
	}
}

type startFromLinkRequest struct {
	URL           string `json:"url"`
	SkipCompleted *bool  `json:"skip_completed"`
}

// StartFromLink enqueues one job per file type against a base URL, reference
// tables first. Types that already completed are skipped unless the request
// says otherwise.
func (h *IngestionHandler) StartFromLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startFromLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	typesToProcess := registry.ProcessingOrder
	skipped := []string{}

	if req.SkipCompleted == nil || *req.SkipCompleted {
		completed, err := h.store.CompletedFileTypes(r.Context())
		if err != nil {
			http.Error(w, "Failed to check completed jobs", http.StatusInternalServerError)
			return
		}

		remaining := make([]string, 0, len(typesToProcess))
		for _, fileType := range typesToProcess {
			if completed[fileType] {
				skipped = append(skipped, fileType)
			} else {
				remaining = append(remaining, fileType)
			}
		}
		typesToProcess = remaining

		if len(typesToProcess) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "All file types already processed successfully",
				"jobs":    []models.IngestionJob{},
				"skipped": skipped,
			})
			return
		}
	}

	baseURL := strings.TrimRight(req.URL, "/")
	jobs := make([]models.IngestionJob, 0, len(typesToProcess))
	requests := make([]models.JobRequest, 0, len(typesToProcess))

	for _, fileType := range typesToProcess {
		job := models.IngestionJob{
			Source:   models.SourceLink,
			URL:      baseURL,
			FileType: fileType,
		}
		if err := h.store.CreateJob(r.Context(), &job); err != nil {
			http.Error(w, "Failed to create ingestion job", http.StatusInternalServerError)
			return
		}
		jobs = append(jobs, job)
		requests = append(requests, models.JobRequest{
			JobID:    job.ID,
			FileType: fileType,
			BaseURL:  baseURL,
		})
	}

	if err := h.queue.Enqueue(requests...); err != nil {
		http.Error(w, "Job queue is full, try again later", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("Ingestion started for %d file type(s)", len(typesToProcess)),
		"jobs":    jobs,
		"skipped": skipped,
	})
}

// Upload receives a manually uploaded ZIP archive and enqueues a job for it.
// The temp file is removed by the queue after the job finishes.
func (h *IngestionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "ZIP file is required in the 'file' field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	fileType := r.FormValue("file_type")
	if _, err := registry.Lookup(fileType); err != nil {
		http.Error(w, fmt.Sprintf("Invalid file type. Accepted values: %s", strings.Join(registry.ProcessingOrder, ", ")), http.StatusBadRequest)
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		http.Error(w, "Only .zip files are accepted", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}

	localName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(header.Filename))
	localPath := filepath.Join(h.uploadDir, localName)

	dst, err := os.Create(localPath)
	if err != nil {
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(localPath)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	dst.Close()

	job := models.IngestionJob{
		Source:   models.SourceUpload,
		FileName: header.Filename,
		FileType: fileType,
	}
	if err := h.store.CreateJob(r.Context(), &job); err != nil {
		os.Remove(localPath)
		http.Error(w, "Failed to create ingestion job", http.StatusInternalServerError)
		return
	}

	err = h.queue.Enqueue(models.JobRequest{
		JobID:    job.ID,
		FileType: fileType,
		FilePath: localPath,
		Cleanup:  func() { os.Remove(localPath) },
	})
	if err != nil {
		os.Remove(localPath)
		http.Error(w, "Job queue is full, try again later", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Upload received, processing started",
		"job":     job,
	})
}

func (h *IngestionHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := h.store.ListJobs(r.Context(), 50)
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": jobs})
}

func (h *IngestionHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.store.ListLogs(r.Context(), models.LogFilter{
		JobID: r.URL.Query().Get("job_id"),
		Level: r.URL.Query().Get("level"),
		Limit: limit,
	})
	if err != nil {
		http.Error(w, "Failed to list logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": logs})
}

func (h *IngestionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.store.TableStats(r.Context())
	if err != nil {
		http.Error(w, "Failed to query table stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

package server

import (
	"net/http"
)

func SetupRoutes(handler *IngestionHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ingestion/start-from-link", handler.StartFromLink)
	mux.HandleFunc("/ingestion/upload", handler.Upload)
	mux.HandleFunc("/ingestion/jobs", handler.ListJobs)
	mux.HandleFunc("/ingestion/logs", handler.ListLogs)
	mux.HandleFunc("/ingestion/stats", handler.Stats)

	return mux
}

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comets-analytics/comets-batch/internal/handlers"
	"github.com/comets-analytics/comets-batch/internal/middleware"
)

// NewRouter constructs a ServeMux with the batch API routes registered.
func NewRouter(h *handlers.BatchHandler) http.Handler {
	mux := http.NewServeMux()

	// Batch API
	mux.HandleFunc("/api/submit-batch", h.SubmitBatch)
	mux.HandleFunc("/api/download-batch-results/", h.DownloadResults)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

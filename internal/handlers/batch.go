// Package handlers implements the batch HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/envelope"
	"github.com/comets-analytics/comets-batch/internal/logging"
	"github.com/comets-analytics/comets-batch/internal/producer"
	"github.com/comets-analytics/comets-batch/internal/ratelimit"
)

// Submitter stages an input file and enqueues a batch job for it.
// Satisfied by producer.Producer.
type Submitter interface {
	Enqueue(ctx context.Context, inputPath string, params producer.Params) (string, error)
}

// BatchResponse is the JSON body for every API reply.
type BatchResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// BatchHandler serves batch submission and result download requests.
type BatchHandler struct {
	submitter       Submitter
	store           blobstore.Store
	limiter         ratelimit.RateLimiter
	urlRoot         string
	outputKeyPrefix string
	maxUploadSize   int64
	resultRetention time.Duration
	downloadURLTTL  time.Duration
	logger          *slog.Logger

	// now is replaceable for retention checks in tests.
	now func() time.Time
}

// NewBatchHandler wires the API handlers to their collaborators.
func NewBatchHandler(submitter Submitter, store blobstore.Store, limiter ratelimit.RateLimiter,
	urlRoot, outputKeyPrefix string, maxUploadSize int64, resultRetention, downloadURLTTL time.Duration,
	logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		submitter:       submitter,
		store:           store,
		limiter:         limiter,
		urlRoot:         urlRoot,
		outputKeyPrefix: outputKeyPrefix,
		maxUploadSize:   maxUploadSize,
		resultRetention: resultRetention,
		downloadURLTTL:  downloadURLTTL,
		logger:          logger,
		now:             time.Now,
	}
}

// SubmitBatch accepts a multipart workbook upload and enqueues a batch job.
// The reply is immediate: results are delivered by email, never inline.
func (h *BatchHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), "submit:"+getClientIP(r))
	if err != nil {
		h.logger.Error("rate limit check failed", logging.Error(err))
		h.sendError(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !allowed {
		h.sendError(w, "too many submissions, retry later", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.sendError(w, "invalid multipart upload", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		h.sendError(w, "email is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Stage the upload to disk; the producer reads it from a path.
	tmp, err := os.CreateTemp("", "comets-upload-")
	if err != nil {
		h.logger.Error("create upload scratch file failed", logging.Error(err))
		h.sendError(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		h.logger.Error("spool upload failed", logging.Error(err))
		h.sendError(w, "internal error", http.StatusInternalServerError)
		return
	}

	params := producer.Params{
		Cohort:   r.FormValue("cohort"),
		Email:    email,
		URLRoot:  h.urlRoot,
		Filename: filepath.Base(header.Filename),
	}

	messageID, err := h.submitter.Enqueue(r.Context(), tmp.Name(), params)
	if err != nil {
		h.logger.Error("enqueue batch job failed", logging.Error(err))
		h.sendError(w, "could not queue batch job", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("batch job accepted",
		logging.MessageID(messageID),
		logging.Filename(params.Filename),
		logging.Cohort(params.Cohort),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(BatchResponse{
		Status:    "accepted",
		MessageID: messageID,
		Detail:    "results will be emailed to " + email,
	})
}

// DownloadResults redirects to a presigned URL for a job's result archive.
// Archives past the retention window are refused even if still present.
func (h *BatchHandler) DownloadResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messageID := strings.TrimPrefix(r.URL.Path, "/api/download-batch-results/")
	if messageID == "" || strings.Contains(messageID, "/") {
		h.sendError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	objects, err := h.store.List(r.Context(), envelope.OutputPrefix(h.outputKeyPrefix, messageID))
	if err != nil {
		h.logger.Error("list results failed", logging.MessageID(messageID), logging.Error(err))
		h.sendError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(objects) == 0 {
		h.sendError(w, "no results for this job", http.StatusNotFound)
		return
	}

	// Redeliveries overwrite the same key, but guard against multiple
	// objects anyway: serve the newest.
	newest := objects[0]
	for _, obj := range objects[1:] {
		if obj.LastModified.After(newest.LastModified) {
			newest = obj
		}
	}

	if h.now().Sub(newest.LastModified) > h.resultRetention {
		h.sendError(w, "results have expired", http.StatusGone)
		return
	}

	url, err := h.store.PresignGet(r.Context(), newest.Key, h.downloadURLTTL)
	if err != nil {
		h.logger.Error("presign results failed", logging.MessageID(messageID), logging.Error(err))
		h.sendError(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (h *BatchHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func (h *BatchHandler) sendError(w http.ResponseWriter, detail string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(BatchResponse{
		Status: "error",
		Detail: detail,
	})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

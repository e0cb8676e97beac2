package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/producer"
	"github.com/comets-analytics/comets-batch/internal/ratelimit"
)

type fakeSubmitter struct {
	messageID string
	err       error
	inputs    []string
	params    []producer.Params
}

func (f *fakeSubmitter) Enqueue(ctx context.Context, inputPath string, params producer.Params) (string, error) {
	f.inputs = append(f.inputs, inputPath)
	f.params = append(f.params, params)
	if f.err != nil {
		return "", f.err
	}
	return f.messageID, nil
}

type fakeResultStore struct {
	objects    []blobstore.Object
	listErr    error
	listPrefix string
}

func (f *fakeResultStore) Upload(ctx context.Context, key, filename string) error   { return nil }
func (f *fakeResultStore) Download(ctx context.Context, key, filename string) error { return nil }
func (f *fakeResultStore) Delete(ctx context.Context, key string) error             { return nil }

func (f *fakeResultStore) List(ctx context.Context, prefix string) ([]blobstore.Object, error) {
	f.listPrefix = prefix
	return f.objects, f.listErr
}

func (f *fakeResultStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example.org/" + key, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) (bool, error) { return false, nil }
func (denyLimiter) Close() error                                        { return nil }

var fixedNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func newTestHandler(submitter Submitter, store blobstore.Store, limiter ratelimit.RateLimiter) *BatchHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	h := NewBatchHandler(submitter, store, limiter,
		"https://comets.example.org", "output/", 1<<20, 7*24*time.Hour, 15*time.Minute,
		slog.New(slog.DiscardHandler))
	h.now = func() time.Time { return fixedNow }
	return h
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) BatchResponse {
	t.Helper()
	var resp BatchResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestSubmitBatch_Accepted(t *testing.T) {
	submitter := &fakeSubmitter{messageID: "m-100"}
	h := newTestHandler(submitter, &fakeResultStore{}, nil)

	body, contentType := multipartUpload(t,
		map[string]string{"email": "user@example.org", "cohort": "NHANES"},
		"study.xlsx", []byte("workbook"))
	req := httptest.NewRequest(http.MethodPost, "/api/submit-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.SubmitBatch(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "m-100", resp.MessageID)
	assert.Contains(t, resp.Detail, "user@example.org")

	require.Len(t, submitter.params, 1)
	p := submitter.params[0]
	assert.Equal(t, "user@example.org", p.Email)
	assert.Equal(t, "NHANES", p.Cohort)
	assert.Equal(t, "study.xlsx", p.Filename)
	assert.Equal(t, "https://comets.example.org", p.URLRoot)
}

func TestSubmitBatch_MissingEmail(t *testing.T) {
	submitter := &fakeSubmitter{messageID: "m-101"}
	h := newTestHandler(submitter, &fakeResultStore{}, nil)

	body, contentType := multipartUpload(t, nil, "study.xlsx", []byte("workbook"))
	req := httptest.NewRequest(http.MethodPost, "/api/submit-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.SubmitBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, submitter.params, "nothing enqueued for a rejected request")
}

func TestSubmitBatch_MissingFile(t *testing.T) {
	submitter := &fakeSubmitter{messageID: "m-102"}
	h := newTestHandler(submitter, &fakeResultStore{}, nil)

	body, contentType := multipartUpload(t, map[string]string{"email": "user@example.org"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/submit-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.SubmitBatch(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, submitter.params)
}

func TestSubmitBatch_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeResultStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/submit-batch", nil)
	rec := httptest.NewRecorder()
	h.SubmitBatch(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitBatch_RateLimited(t *testing.T) {
	submitter := &fakeSubmitter{messageID: "m-103"}
	h := newTestHandler(submitter, &fakeResultStore{}, denyLimiter{})

	body, contentType := multipartUpload(t,
		map[string]string{"email": "user@example.org"}, "study.xlsx", []byte("workbook"))
	req := httptest.NewRequest(http.MethodPost, "/api/submit-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.SubmitBatch(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, submitter.params)
}

func TestSubmitBatch_EnqueueFailure(t *testing.T) {
	submitter := &fakeSubmitter{err: errors.New("queue down")}
	h := newTestHandler(submitter, &fakeResultStore{}, nil)

	body, contentType := multipartUpload(t,
		map[string]string{"email": "user@example.org"}, "study.xlsx", []byte("workbook"))
	req := httptest.NewRequest(http.MethodPost, "/api/submit-batch", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.SubmitBatch(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "error", resp.Status)
}

func TestDownloadResults_Redirects(t *testing.T) {
	store := &fakeResultStore{objects: []blobstore.Object{
		{Key: "output/m-1/study.20260825_101500.zip", LastModified: fixedNow.Add(-2 * time.Hour)},
	}}
	h := newTestHandler(&fakeSubmitter{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download-batch-results/m-1", nil)
	rec := httptest.NewRecorder()
	h.DownloadResults(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://signed.example.org/output/m-1/study.20260825_101500.zip",
		rec.Header().Get("Location"))
	assert.Equal(t, "output/m-1/", store.listPrefix)
}

func TestDownloadResults_ServesNewest(t *testing.T) {
	store := &fakeResultStore{objects: []blobstore.Object{
		{Key: "output/m-2/study.20260820_090000.zip", LastModified: fixedNow.Add(-96 * time.Hour)},
		{Key: "output/m-2/study.20260828_090000.zip", LastModified: fixedNow.Add(-12 * time.Hour)},
	}}
	h := newTestHandler(&fakeSubmitter{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download-batch-results/m-2", nil)
	rec := httptest.NewRecorder()
	h.DownloadResults(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "20260828_090000")
}

func TestDownloadResults_NotFound(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeResultStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download-batch-results/m-3", nil)
	rec := httptest.NewRecorder()
	h.DownloadResults(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadResults_Expired(t *testing.T) {
	store := &fakeResultStore{objects: []blobstore.Object{
		{Key: "output/m-4/study.20260801_000000.zip", LastModified: fixedNow.Add(-8 * 24 * time.Hour)},
	}}
	h := newTestHandler(&fakeSubmitter{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/download-batch-results/m-4", nil)
	rec := httptest.NewRecorder()
	h.DownloadResults(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestDownloadResults_InvalidID(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeResultStore{}, nil)

	for _, path := range []string{
		"/api/download-batch-results/",
		"/api/download-batch-results/m-5/extra",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.DownloadResults(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeResultStore{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

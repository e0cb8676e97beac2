package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/comets-analytics/comets-batch/internal/archive"
	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/envelope"
	"github.com/comets-analytics/comets-batch/internal/executor"
	"github.com/comets-analytics/comets-batch/internal/logging"
	"github.com/comets-analytics/comets-batch/internal/metrics"
)

// Notifier delivers job outcome emails. Satisfied by notifier.Notifier.
type Notifier interface {
	JobSucceeded(ctx context.Context, env *envelope.Envelope, results []executor.ModelResult, elapsed time.Duration, resultsURL string) error
	JobFailed(ctx context.Context, env *envelope.Envelope, detail string) error
}

// JobHandler binds the worker loop to the model engine: it stages inputs
// down from the blob store, runs the batch, packages and uploads results,
// and notifies the requester. Nothing it does escapes its own boundary;
// every branch returns normally so the enclosing loop deletes the message.
type JobHandler struct {
	store           blobstore.Store
	runner          executor.Runner
	notifier        Notifier
	outputKeyPrefix string
	logger          *slog.Logger

	// now is replaceable for deterministic output keys in tests.
	now func() time.Time
}

// NewJobHandler creates a handler bound to its collaborators.
func NewJobHandler(store blobstore.Store, runner executor.Runner, notifier Notifier, outputKeyPrefix string, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		store:           store,
		runner:          runner,
		notifier:        notifier,
		outputKeyPrefix: outputKeyPrefix,
		logger:          logger,
		now:             time.Now,
	}
}

// Handle processes one job message body.
func (h *JobHandler) Handle(ctx context.Context, body []byte) {
	env, err := envelope.Parse(body)
	if err != nil {
		// Redelivery cannot fix a parse error: log it and let the loop
		// delete the message. No executor run, no notifications.
		metrics.MalformedEnvelopes.Inc()
		h.logger.Error("dropping malformed envelope", logging.Error(err))
		return
	}

	logger := h.logger.With(
		logging.MessageID(env.MessageID),
		logging.Cohort(env.Cohort),
		logging.Filename(env.Filename),
	)
	logger.Info("processing batch job", logging.Bucket(env.Bucket), logging.Key(env.Key))

	scratch, err := os.MkdirTemp("", "comets-batch-")
	if err != nil {
		logger.Error("create scratch directory failed", logging.Error(err))
		return
	}
	defer os.RemoveAll(scratch)

	inputPath := filepath.Join(scratch, filepath.Base(env.Key))
	if err := h.store.Download(ctx, env.Key, inputPath); err != nil {
		// Leave the remote object in place for manual inspection.
		logger.Error("staging input down failed", logging.Error(err))
		return
	}

	// The staged input is consumed: remove it now to bound storage growth.
	if err := h.store.Delete(ctx, env.Key); err != nil {
		logger.Warn("delete staged input failed", logging.Error(err))
	}

	if err := h.runJob(ctx, logger, env, scratch, inputPath); err != nil {
		metrics.JobsCompleted.WithLabelValues("failure").Inc()
		logger.Error("batch job failed", logging.Error(err))
		if notifyErr := h.notifier.JobFailed(ctx, env, err.Error()); notifyErr != nil {
			logger.Error("failure notification not delivered", logging.Error(notifyErr))
		}
		return
	}

	metrics.JobsCompleted.WithLabelValues("success").Inc()
	logger.Info("batch job completed")
}

// runJob executes the batch and publishes its results. Any error here means
// the requester gets a failure email and no results link: the archive is
// only uploaded after packaging completes in full, so a partial output is
// never linked.
func (h *JobHandler) runJob(ctx context.Context, logger *slog.Logger, env *envelope.Envelope, scratch, inputPath string) error {
	outputDir := filepath.Join(scratch, "output")
	if err := os.Mkdir(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	start := time.Now()
	results, err := h.runner.RunBatchModels(ctx, inputPath, outputDir, env.Cohort)
	elapsed := time.Since(start)
	metrics.ExecutionDuration.Observe(elapsed.Seconds())
	if err != nil {
		return err
	}

	outputKey := envelope.OutputKey(h.outputKeyPrefix, env.MessageID, env.Filename, h.now())
	archivePath := filepath.Join(scratch, filepath.Base(outputKey))
	if err := archive.ZipDirectory(outputDir, archivePath); err != nil {
		return err
	}

	if err := h.store.Upload(ctx, outputKey, archivePath); err != nil {
		return fmt.Errorf("upload results: %w", err)
	}
	logger.Info("uploaded results", logging.Key(outputKey), logging.Duration(elapsed.Milliseconds()))

	resultsURL := envelope.ResultsURL(env.URLRoot, env.MessageID)
	if err := h.notifier.JobSucceeded(ctx, env, results, elapsed, resultsURL); err != nil {
		// The job itself succeeded; a lost email never fails the run.
		logger.Error("success notification not delivered", logging.Error(err))
	}

	return nil
}

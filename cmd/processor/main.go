package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/config"
	"github.com/comets-analytics/comets-batch/internal/executor"
	"github.com/comets-analytics/comets-batch/internal/logging"
	"github.com/comets-analytics/comets-batch/internal/notifier"
	natsqueue "github.com/comets-analytics/comets-batch/internal/queue/nats"
	"github.com/comets-analytics/comets-batch/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("processor"))
	logging.SetDefault(logger)

	slog.Info("Starting batch processor",
		slog.String("queue_url", cfg.Queue.URL),
		slog.String("stream", cfg.Queue.Stream),
		slog.String("bucket", cfg.Storage.Bucket),
		slog.Duration("visibility_timeout", cfg.Queue.VisibilityTimeout),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queueClient, err := natsqueue.NewClient(ctx, natsqueue.Config{
		URL:               cfg.Queue.URL,
		Name:              "comets-batch-processor",
		Stream:            cfg.Queue.Stream,
		Subject:           cfg.Queue.Subject,
		Consumer:          cfg.Queue.Consumer,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxReconnects:     -1,
		ReconnectWait:     natsqueue.DefaultConfig().ReconnectWait,
		Timeout:           natsqueue.DefaultConfig().Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer queueClient.Close()

	store, err := blobstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	mailer, err := notifier.NewSESMailer(ctx, cfg.Storage.Region)
	if err != nil {
		log.Fatalf("Failed to create SES mailer: %v", err)
	}

	notif, err := notifier.New(mailer, cfg.Email)
	if err != nil {
		log.Fatalf("Failed to create notifier: %v", err)
	}

	runner := executor.NewRscriptRunner(cfg.Executor)

	handler := worker.NewJobHandler(store, runner, notif, cfg.Storage.OutputKeyPrefix, logger.Logger)
	loop := worker.NewLoop(queueClient, handler,
		cfg.Queue.VisibilityTimeout, cfg.Queue.PollInterval, cfg.Queue.ReceiveWait, logger.Logger)

	slog.Info("Batch processor running")
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Worker loop error: %v", err)
	}

	slog.Info("Batch processor stopped")
}

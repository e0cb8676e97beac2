package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/config"
	"github.com/comets-analytics/comets-batch/internal/handlers"
	"github.com/comets-analytics/comets-batch/internal/logging"
	"github.com/comets-analytics/comets-batch/internal/producer"
	natsqueue "github.com/comets-analytics/comets-batch/internal/queue/nats"
	"github.com/comets-analytics/comets-batch/internal/ratelimit"
	"github.com/comets-analytics/comets-batch/internal/server"
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
	).With(logging.Service("server"))
	logging.SetDefault(logger)

	slog.Info("Starting batch API server",
		slog.Int("port", cfg.Server.Port),
		slog.String("url_root", cfg.Server.URLRoot),
		slog.String("bucket", cfg.Storage.Bucket),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
			false,
		)
		if err != nil {
			slog.Warn("Rate limiter unavailable, continuing without limits", "error", err)
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow),
			)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		slog.Info("Rate limiting disabled")
	}
	defer rateLimiter.Close()

	queueClient, err := natsqueue.NewClient(ctx, natsqueue.Config{
		URL:               cfg.Queue.URL,
		Name:              "comets-batch-server",
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

	prod := producer.New(store, queueClient, cfg.Storage.Bucket, cfg.Storage.InputKeyPrefix)

	handler := handlers.NewBatchHandler(prod, store, rateLimiter,
		cfg.Server.URLRoot, cfg.Storage.OutputKeyPrefix,
		cfg.Ingestion.MaxUploadSize, cfg.Storage.ResultRetention, cfg.Storage.DownloadURLTTL,
		logger.Logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Batch API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

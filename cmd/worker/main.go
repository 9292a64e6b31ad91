package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/reelworks/vod-worker/internal/config"
	"github.com/reelworks/vod-worker/internal/health"
	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/internal/metrics"
	"github.com/reelworks/vod-worker/internal/observability"
	"github.com/reelworks/vod-worker/internal/queue"
	"github.com/reelworks/vod-worker/internal/repository"
	"github.com/reelworks/vod-worker/internal/storage"
	"github.com/reelworks/vod-worker/internal/transcoder"
	"github.com/reelworks/vod-worker/internal/worker"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	shutdownTracer, err := observability.InitTracer(context.Background(), cfg.AppName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error(context.Background(), log, "failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error(context.Background(), log, "failed to shutdown tracer", "error", err)
		}
	}()

	startCtx, startCancel := context.WithTimeout(context.Background(), startupTimeout)
	defer startCancel()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		logger.Error(context.Background(), log, "failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(startCtx); err != nil {
		logger.Error(context.Background(), log, "failed to ping database", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.QueueBackend == config.QueueBackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(startCtx).Err(); err != nil {
			logger.Error(context.Background(), log, "failed to ping redis", "error", err)
			os.Exit(1)
		}
	}

	store, err := newStorage(startCtx, cfg, log)
	if err != nil {
		logger.Error(context.Background(), log, "failed to initialize storage", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	workerMetrics := metrics.New(registry)

	videoRepo := repository.NewVideoRepository(db, log)
	engine := transcoder.New(cfg.Processing.FFmpegPath, cfg.Processing.FFprobePath, cfg.Processing.TempDir, log)

	checker := health.NewChecker(health.DefaultConfig(cfg.AppName, log))
	checker.Register("database", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if redisClient != nil {
		checker.Register("queue", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checker.Register("storage", pinger.Ping)
	}

	metricsServer, metricsErrCh := startMetricsServer(cfg.MetricsAddr, registry, checker, log)

	pool := &worker.Pool{
		Size:          cfg.WorkerPoolSize,
		ShutdownGrace: cfg.ShutdownGrace,
		Log:           log,
		NewProcessor: func(ctx context.Context, workerID string) (*worker.Processor, error) {
			q, err := newQueue(ctx, cfg, redisClient, workerID, log, workerMetrics)
			if err != nil {
				return nil, err
			}
			return worker.NewProcessor(&worker.ProcessorConfig{
				Queue:         q,
				Storage:       store,
				Repository:    videoRepo,
				Engine:        engine,
				Metrics:       workerMetrics,
				Logger:        log,
				Timeout:       cfg.ProcessingTimeout,
				MaxDeliveries: cfg.MaxDeliveries(),
				Profile:       processingProfile(cfg),
				BaseURL:       cfg.Processing.ProcessedBaseURL,
			}), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info(context.Background(), log, "shutdown signal received", "signal", sig.String())
		cancel()
	}()

	logger.Info(ctx, log, "worker starting",
		"pool_size", cfg.WorkerPoolSize,
		"queue_backend", cfg.QueueBackend,
		"storage_backend", cfg.StorageBackend,
	)

	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(ctx)
	}()

	var fatal bool
	select {
	case err := <-metricsErrCh:
		logger.Error(context.Background(), log, "metrics server failed, shutting down", "error", err)
		fatal = true
		cancel()
		<-poolDone
	case err := <-poolDone:
		if err != nil {
			logger.Error(context.Background(), log, "worker pool failed", "error", err)
			fatal = true
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), log, "failed to shutdown metrics server", "error", err)
	}

	if fatal {
		os.Exit(1)
	}
	logger.Info(context.Background(), log, "worker stopped")
}

func newStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return storage.NewS3Storage(ctx, cfg.S3, log)
	case config.StorageBackendWebDAV:
		return storage.NewWebDAVStorage(cfg.WebDAV, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newQueue(ctx context.Context, cfg *config.Config, redisClient *redis.Client, workerID string, log *slog.Logger, depth queue.DepthRecorder) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendRedis:
		consumer := cfg.Redis.ConsumerPrefix + "-" + workerID
		return queue.NewStreamQueue(ctx, redisClient,
			cfg.Redis.Stream, cfg.Redis.Group, consumer,
			cfg.Redis.BlockTimeout, cfg.Redis.MaxDeliveries, log, depth)
	case config.QueueBackendSQS:
		return queue.NewSQSQueue(ctx, cfg.SQS, workerID, log, depth)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

func processingProfile(cfg *config.Config) transcoder.Options {
	opts := transcoder.Options{
		ClipDuration: cfg.Processing.ClipDuration,
		TargetWidth:  cfg.Processing.TargetWidth,
		TargetHeight: cfg.Processing.TargetHeight,
		TargetFormat: cfg.Processing.TargetFormat,
		RemoveAudio:  cfg.Processing.RemoveAudio,
	}
	if cfg.Processing.WatermarkText != "" {
		opts.Watermark = &transcoder.Watermark{
			Text:     cfg.Processing.WatermarkText,
			Position: transcoder.WatermarkPosition(cfg.Processing.WatermarkPosition),
			FontSize: cfg.Processing.WatermarkFontSize,
			MarginX:  cfg.Processing.WatermarkMarginX,
			MarginY:  cfg.Processing.WatermarkMarginY,
		}
	}
	return opts
}

// startMetricsServer serves /metrics and the health endpoints. A fatal listen
// error lands on the returned channel so the caller can shut the worker down.
func startMetricsServer(addr string, registry *prometheus.Registry, checker *health.Checker, log *slog.Logger) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", checker.Handler())
	mux.HandleFunc("/health/deep", checker.DeepHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), log, "starting metrics server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return server, errCh
}

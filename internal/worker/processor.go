// Package worker contains the task-processing core: a Processor that drives
// one task end-to-end and a Pool that runs N concurrent processing loops.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/internal/queue"
	"github.com/reelworks/vod-worker/internal/storage"
	"github.com/reelworks/vod-worker/internal/transcoder"
	"github.com/reelworks/vod-worker/pkg/models"
)

var tracer = otel.Tracer("vod-worker")

// Repository reads and updates video rows.
type Repository interface {
	FindByID(ctx context.Context, id string) (*models.Video, error)
	Update(ctx context.Context, video *models.Video) error
}

// Engine transforms a raw stream into the processed artifact.
type Engine interface {
	Process(ctx context.Context, input io.Reader, opts transcoder.Options) (*transcoder.Result, error)
}

// Metrics receives one terminal observation per processed task.
type Metrics interface {
	IncTaskProcessed(status, workerID string)
	ObserveProcessingDuration(status, workerID string, d time.Duration)
	IncQueueError(workerID string)
}

// Processor drives one task at a time: fetch, load row, download, transcode,
// upload, persist, ack. Any failure walks back through a compensating row
// reset and surfaces to the queue as a retryable failure.
type Processor struct {
	queue         queue.Queue
	storage       storage.Storage
	repo          Repository
	engine        Engine
	metrics       Metrics
	log           *slog.Logger
	timeout       time.Duration
	maxDeliveries int
	profile       transcoder.Options
	baseURL       string
	now           func() time.Time
}

// ProcessorConfig holds Processor dependencies.
type ProcessorConfig struct {
	Queue         queue.Queue
	Storage       storage.Storage
	Repository    Repository
	Engine        Engine
	Metrics       Metrics
	Logger        *slog.Logger
	Timeout       time.Duration
	MaxDeliveries int
	Profile       transcoder.Options
	BaseURL       string
}

// NewProcessor creates a Processor with the given configuration.
func NewProcessor(cfg *ProcessorConfig) *Processor {
	return &Processor{
		queue:         cfg.Queue,
		storage:       cfg.Storage,
		repo:          cfg.Repository,
		engine:        cfg.Engine,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
		timeout:       cfg.Timeout,
		maxDeliveries: cfg.MaxDeliveries,
		profile:       cfg.Profile,
		baseURL:       cfg.BaseURL,
		now:           time.Now,
	}
}

// HandleNext processes at most one message. An empty poll returns nil. A
// transport failure is counted and returned so the outer loop can back off.
func (p *Processor) HandleNext(ctx context.Context, workerID string) error {
	msg, err := p.queue.Fetch(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrNoMessages) {
			return nil
		}
		// Malformed payloads are already deleted by the queue adapter; they are
		// not transport failures and need no back-off.
		if errors.Is(err, models.ErrMalformedMessage) {
			logger.Warn(ctx, p.log, "dropped malformed message", "worker_id", workerID, "error", err)
			return nil
		}
		p.metrics.IncQueueError(workerID)
		logger.Error(ctx, p.log, "failed to fetch message", "worker_id", workerID, "error", err)
		return err
	}

	ctx, span := tracer.Start(ctx, "process-task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", msg.Task.ID),
		attribute.String("video.id", msg.Task.VideoID),
		attribute.Int("task.attempt", msg.Task.Attempt),
	)

	start := p.now()
	status := models.StatusUploaded
	defer func() {
		p.metrics.ObserveProcessingDuration(string(status), workerID, time.Since(start))
	}()

	task := msg.Task
	video, err := p.repo.FindByID(ctx, task.VideoID)
	if err != nil {
		status = models.StatusFailed
		p.recordFailure(ctx, workerID, msg, err)
		logger.Error(ctx, p.log, "video row not found",
			"worker_id", workerID, "task_id", task.ID, "video_id", task.VideoID, "error", err)
		return err
	}

	procCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	processedID, processedPath, procErr := p.processVideo(procCtx, task)
	if procErr != nil {
		status = models.StatusFailed
		p.resetVideo(ctx, video)
		p.recordFailure(ctx, workerID, msg, procErr)
		logger.Error(ctx, p.log, "video processing failed",
			"worker_id", workerID, "task_id", task.ID, "video_id", task.VideoID, "error", procErr)
		if p.maxDeliveries > 0 && task.Attempt+1 >= p.maxDeliveries {
			logger.Warn(ctx, p.log, "delivery attempts exhausted",
				"task_id", task.ID, "attempt", task.Attempt+1, "max_deliveries", p.maxDeliveries)
		}
		return procErr
	}

	video.MarkProcessed(p.now(), processedID, p.baseURL+processedPath)
	if err := p.repo.Update(ctx, video); err != nil {
		status = models.StatusFailed
		p.recordFailure(ctx, workerID, msg, err)
		logger.Error(ctx, p.log, "failed to persist processed video",
			"worker_id", workerID, "task_id", task.ID, "video_id", task.VideoID, "error", err)
		return err
	}

	status = models.StatusProcessed
	p.metrics.IncTaskProcessed(string(models.StatusProcessed), workerID)
	logger.Info(ctx, p.log, "video processed",
		"worker_id", workerID, "task_id", task.ID, "video_id", video.ID, "processed_id", processedID)

	// The row is authoritative from here on. A broker hiccup at ack time is
	// logged, not surfaced: redelivery reproduces an idempotent terminal state.
	if err := p.queue.Ack(ctx, msg); err != nil {
		logger.Error(ctx, p.log, "failed to ack message",
			"worker_id", workerID, "task_id", task.ID, "error", err)
	}

	return nil
}

// processVideo performs download, transcode, and upload, returning the fresh
// processed blob id and its storage path.
func (p *Processor) processVideo(ctx context.Context, task models.Task) (string, string, error) {
	raw, err := p.storage.Download(ctx, task.SourcePath)
	if err != nil {
		return "", "", err
	}

	result, err := p.engine.Process(ctx, raw, p.profile)
	closeErr := raw.Close()
	if err != nil {
		return "", "", err
	}
	if closeErr != nil {
		logger.Warn(ctx, p.log, "failed to close raw stream", "task_id", task.ID, "error", closeErr)
	}
	defer func() {
		if cerr := result.Close(); cerr != nil {
			logger.Warn(ctx, p.log, "failed to close processed artifact", "task_id", task.ID, "error", cerr)
		}
	}()

	processedID := uuid.NewString()
	format := result.Format
	if format == "" {
		format = "mp4"
	}
	processedPath := processedID + "." + format

	if err := p.storage.Upload(ctx, processedPath, result.Reader); err != nil {
		return "", "", err
	}

	return processedID, processedPath, nil
}

// resetVideo reverts the row to uploaded, nulling the processed columns.
func (p *Processor) resetVideo(ctx context.Context, video *models.Video) {
	video.ResetToUploaded()
	if err := p.repo.Update(ctx, video); err != nil {
		logger.Error(ctx, p.log, "failed to reset video row", "video_id", video.ID, "error", err)
	}
}

// recordFailure counts the failed outcome and hands the message back to the
// queue, which retries or dead-letters it.
func (p *Processor) recordFailure(ctx context.Context, workerID string, msg *queue.Message, reason error) {
	p.metrics.IncTaskProcessed(string(models.StatusFailed), workerID)
	if err := p.queue.Fail(ctx, msg, reason); err != nil {
		logger.Error(ctx, p.log, "failed to fail message",
			"worker_id", workerID, "task_id", msg.Task.ID, "error", err)
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/pkg/models"
)

// StreamQueue consumes tasks from a Redis stream through a consumer group.
// Each worker holds its own instance with a distinct consumer name.
type StreamQueue struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	blockTimeout  time.Duration
	maxDeliveries int
	log           *slog.Logger
	depth         DepthRecorder
}

// NewStreamQueue creates the consumer group if it does not exist yet and
// returns a queue bound to the given consumer name.
func NewStreamQueue(
	ctx context.Context,
	client *redis.Client,
	stream, group, consumer string,
	blockTimeout time.Duration,
	maxDeliveries int,
	log *slog.Logger,
	depth DepthRecorder,
) (*StreamQueue, error) {
	if err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("create consumer group: %w", err)
		}
	}

	return &StreamQueue{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		blockTimeout:  blockTimeout,
		maxDeliveries: maxDeliveries,
		log:           log,
		depth:         depth,
	}, nil
}

// Fetch reads one new entry for this consumer, blocking up to the configured
// timeout. The stream length is reported to the depth recorder on each call.
func (q *StreamQueue) Fetch(ctx context.Context) (*Message, error) {
	if q.depth != nil {
		if size, err := q.client.XLen(ctx, q.stream).Result(); err != nil {
			logger.Warn(ctx, q.log, "failed to read stream length", "stream", q.stream, "error", err)
		} else {
			q.depth.SetQueueDepth(q.consumer, size)
		}
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessages
	}
	if err != nil {
		return nil, fmt.Errorf("read group: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, ErrNoMessages
	}

	xmsg := streams[0].Messages[0]
	task := decodeTask(xmsg.Values)

	if err := task.Validate(); err != nil {
		logger.Error(ctx, q.log, "deleting undecodable stream entry",
			"entry_id", xmsg.ID, "error", err)
		q.remove(ctx, xmsg.ID)
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}

	return &Message{
		ID:   xmsg.ID,
		Task: task,
		Raw:  xmsg.Values,
	}, nil
}

// Ack acknowledges the entry in the group and deletes it from the stream.
// The delete is best-effort: an acked-but-undeleted entry is never
// redelivered to this group.
func (q *StreamQueue) Ack(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("queue message is nil")
	}
	if err := q.client.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("ack entry %s: %w", msg.ID, err)
	}
	if err := q.client.XDel(ctx, q.stream, msg.ID).Err(); err != nil {
		logger.Warn(ctx, q.log, "failed to delete acked entry", "entry_id", msg.ID, "error", err)
	}
	return nil
}

// Fail acknowledges the entry and, unless the delivery bound is reached,
// appends a copy with attempt incremented and the failure reason attached.
func (q *StreamQueue) Fail(ctx context.Context, msg *Message, reason error) error {
	if msg == nil {
		return errors.New("queue message is nil")
	}

	if err := q.client.XAck(ctx, q.stream, q.group, msg.ID).Err(); err != nil {
		logger.Error(ctx, q.log, "failed to ack failed entry", "entry_id", msg.ID, "error", err)
	}
	q.remove(ctx, msg.ID)

	if q.maxDeliveries > 0 && msg.Task.Attempt+1 >= q.maxDeliveries {
		logger.Warn(ctx, q.log, "dead-lettering task after max deliveries",
			"task_id", msg.Task.ID,
			"attempt", msg.Task.Attempt+1,
			"max_deliveries", q.maxDeliveries,
		)
		return nil
	}

	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: retryValues(msg, reason),
	}).Err()
}

func (q *StreamQueue) remove(ctx context.Context, entryID string) {
	if err := q.client.XDel(ctx, q.stream, entryID).Err(); err != nil {
		logger.Warn(ctx, q.log, "failed to delete stream entry", "entry_id", entryID, "error", err)
	}
}

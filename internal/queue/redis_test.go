package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/pkg/models"
)

const (
	testStream = "video_tasks"
	testGroup  = "video_workers"
)

type depthSpy struct {
	worker string
	depth  int64
	calls  int
}

func (d *depthSpy) SetQueueDepth(workerID string, depth int64) {
	d.worker = workerID
	d.depth = depth
	d.calls++
}

func newStreamFixture(t *testing.T, maxDeliveries int) (*StreamQueue, *redis.Client, *depthSpy) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	depth := &depthSpy{}
	q, err := NewStreamQueue(context.Background(), client, testStream, testGroup, "worker-1",
		50*time.Millisecond, maxDeliveries, logger.New("error"), depth)
	require.NoError(t, err)
	return q, client, depth
}

func seedTask(t *testing.T, client *redis.Client, values map[string]any) {
	t.Helper()
	err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		Values: values,
	}).Err()
	require.NoError(t, err)
}

func TestStreamQueueGroupCreationIdempotent(t *testing.T) {
	q, client, _ := newStreamFixture(t, 5)
	require.NotNil(t, q)

	// A second construction against the same stream must tolerate BUSYGROUP.
	_, err := NewStreamQueue(context.Background(), client, testStream, testGroup, "worker-2",
		50*time.Millisecond, 5, logger.New("error"), nil)
	require.NoError(t, err)
}

func TestStreamQueueFetchAck(t *testing.T) {
	q, client, depth := newStreamFixture(t, 5)
	ctx := context.Background()

	seedTask(t, client, map[string]any{
		"task_id":     "task-1",
		"video_id":    "vid-1",
		"source_path": "raw/vid-1.mp4",
		"uploader":    "user-9",
	})

	msg, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "task-1", msg.Task.ID)
	require.Equal(t, "vid-1", msg.Task.VideoID)
	require.Equal(t, "raw/vid-1.mp4", msg.Task.SourcePath)
	require.Equal(t, 0, msg.Task.Attempt)
	require.Equal(t, "user-9", msg.Task.Metadata["uploader"])

	require.Equal(t, "worker-1", depth.worker)
	require.Equal(t, int64(1), depth.depth)

	require.NoError(t, q.Ack(ctx, msg))
	size, err := client.XLen(ctx, testStream).Result()
	require.NoError(t, err)
	require.Zero(t, size)

	_, err = q.Fetch(ctx)
	require.ErrorIs(t, err, ErrNoMessages)
}

func TestStreamQueueFailRetriesWithIncrementedAttempt(t *testing.T) {
	q, client, _ := newStreamFixture(t, 5)
	ctx := context.Background()

	seedTask(t, client, map[string]any{
		"task_id":     "task-1",
		"video_id":    "vid-1",
		"source_path": "raw/vid-1.mp4",
		"uploader":    "user-9",
	})

	msg, err := q.Fetch(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, msg, context.DeadlineExceeded))

	size, err := client.XLen(ctx, testStream).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	retried, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "task-1", retried.Task.ID)
	require.Equal(t, 1, retried.Task.Attempt)
	require.Equal(t, context.DeadlineExceeded.Error(), retried.Task.Metadata["error"])
	require.Equal(t, "user-9", retried.Task.Metadata["uploader"])
}

func TestStreamQueueFailDeadLettersAtMaxDeliveries(t *testing.T) {
	q, client, _ := newStreamFixture(t, 3)
	ctx := context.Background()

	seedTask(t, client, map[string]any{
		"task_id":     "task-1",
		"video_id":    "vid-1",
		"source_path": "raw/vid-1.mp4",
		"attempt":     "2",
	})

	msg, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, msg.Task.Attempt)

	require.NoError(t, q.Fail(ctx, msg, context.DeadlineExceeded))

	size, err := client.XLen(ctx, testStream).Result()
	require.NoError(t, err)
	require.Zero(t, size)

	_, err = q.Fetch(ctx)
	require.ErrorIs(t, err, ErrNoMessages)
}

func TestStreamQueueDeletesMalformedEntries(t *testing.T) {
	q, client, _ := newStreamFixture(t, 5)
	ctx := context.Background()

	seedTask(t, client, map[string]any{
		"task_id": "task-1",
		// video_id and source_path missing
	})

	_, err := q.Fetch(ctx)
	require.ErrorIs(t, err, models.ErrMalformedMessage)

	size, err := client.XLen(ctx, testStream).Result()
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestStreamQueueAckIdempotent(t *testing.T) {
	q, client, _ := newStreamFixture(t, 5)
	ctx := context.Background()

	seedTask(t, client, map[string]any{
		"task_id":     "task-1",
		"video_id":    "vid-1",
		"source_path": "raw/vid-1.mp4",
	})

	msg, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, msg))
	require.NoError(t, q.Ack(ctx, msg))
	_ = client
}

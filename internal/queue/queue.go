// Package queue provides pull-based access to the task queue behind a
// three-operation contract: Fetch, Ack, Fail. Two interchangeable backends
// exist, a Redis consumer-group stream and an SQS visibility-timeout queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/reelworks/vod-worker/pkg/models"
)

// ErrNoMessages signals an empty poll. It is not a failure.
var ErrNoMessages = errors.New("no messages available")

// Message wraps one in-flight task together with its broker handle and the
// raw payload, which is retained so retries can round-trip unknown fields.
type Message struct {
	ID   string
	Task models.Task
	Raw  map[string]any
}

// Queue is the contract the worker consumes tasks through.
type Queue interface {
	// Fetch blocks up to a backend-specific bound and returns the next
	// message, ErrNoMessages, or a transport error.
	Fetch(ctx context.Context) (*Message, error)
	// Ack permanently removes the message. Idempotent on duplicate delivery.
	Ack(ctx context.Context, msg *Message) error
	// Fail re-enqueues the message with attempt incremented, or dead-letters
	// it once the delivery bound is reached.
	Fail(ctx context.Context, msg *Message, reason error) error
}

// DepthRecorder receives the queue depth observed on each fetch.
type DepthRecorder interface {
	SetQueueDepth(workerID string, depth int64)
}

// decodeTask hydrates a Task from a flat value map. Unknown keys land in
// Metadata as strings.
func decodeTask(values map[string]any) models.Task {
	task := models.Task{Metadata: make(map[string]string)}

	for key, value := range values {
		strVal := fmt.Sprint(value)
		switch key {
		case "task_id":
			task.ID = strVal
		case "video_id":
			task.VideoID = strVal
		case "source_path":
			task.SourcePath = strVal
		case "attempt":
			if attempt, err := strconv.Atoi(strVal); err == nil {
				task.Attempt = attempt
			}
		default:
			task.Metadata[key] = strVal
		}
	}

	return task
}

// retryValues builds the payload for a retried message: typed fields with
// attempt incremented, an error field carrying the failure reason, and every
// unknown key of the original payload preserved as-is.
func retryValues(msg *Message, reason error) map[string]any {
	values := map[string]any{
		"task_id":     msg.Task.ID,
		"video_id":    msg.Task.VideoID,
		"source_path": msg.Task.SourcePath,
		"attempt":     msg.Task.Attempt + 1,
	}
	if reason != nil {
		values["error"] = reason.Error()
	}
	for k, v := range msg.Raw {
		if _, exists := values[k]; !exists {
			values[k] = v
		}
	}
	return values
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/reelworks/vod-worker/internal/config"
	"github.com/reelworks/vod-worker/internal/logger"
	"github.com/reelworks/vod-worker/pkg/models"
)

// sqsAPI is the slice of the SQS client the adapter needs.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSQueue consumes tasks from an SQS queue with long polling. The broker's
// visibility timeout keeps in-flight messages invisible to other workers.
type SQSQueue struct {
	client        sqsAPI
	queueURL      string
	workerID      string
	waitSeconds   int32
	maxDeliveries int
	log           *slog.Logger
	depth         DepthRecorder
}

// NewSQSQueue loads the default AWS config for the region and returns a queue
// bound to the given worker id.
func NewSQSQueue(ctx context.Context, cfg config.SQSConfig, workerID string, log *slog.Logger, depth DepthRecorder) (*SQSQueue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	return NewSQSQueueFromClient(sqs.NewFromConfig(awsCfg), cfg, workerID, log, depth), nil
}

// NewSQSQueueFromClient builds a queue around an existing client.
func NewSQSQueueFromClient(client sqsAPI, cfg config.SQSConfig, workerID string, log *slog.Logger, depth DepthRecorder) *SQSQueue {
	return &SQSQueue{
		client:        client,
		queueURL:      cfg.QueueURL,
		workerID:      workerID,
		waitSeconds:   cfg.WaitSeconds,
		maxDeliveries: cfg.MaxDeliveries,
		log:           log,
		depth:         depth,
	}
}

// Fetch long-polls for one message. The broker's receive count seeds the
// attempt counter; an explicit attempt field in the payload overrides it.
// Undecodable payloads are deleted permanently since a retry cannot fix them.
func (q *SQSQueue) Fetch(ctx context.Context) (*Message, error) {
	q.recordDepth(ctx)

	result, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	if len(result.Messages) == 0 {
		return nil, ErrNoMessages
	}

	msg := result.Messages[0]

	var body map[string]any
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &body); err != nil {
		logger.Error(ctx, q.log, "deleting undecodable message",
			"message_id", aws.ToString(msg.MessageId), "error", err)
		q.delete(ctx, aws.ToString(msg.ReceiptHandle))
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}

	task := decodeTask(body)
	if _, hasAttempt := body["attempt"]; !hasAttempt {
		if countStr, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if count, err := strconv.Atoi(countStr); err == nil && count > 0 {
				task.Attempt = count - 1
			}
		}
	}

	if err := task.Validate(); err != nil {
		logger.Error(ctx, q.log, "deleting undecodable message",
			"message_id", aws.ToString(msg.MessageId), "error", err)
		q.delete(ctx, aws.ToString(msg.ReceiptHandle))
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}

	return &Message{
		ID:   aws.ToString(msg.ReceiptHandle),
		Task: task,
		Raw:  body,
	}, nil
}

// Ack deletes the message from the queue.
func (q *SQSQueue) Ack(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("queue message is nil")
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ID),
	}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// Fail either dead-letters the message by deleting it, or sends a retry copy
// with attempt incremented and then deletes the original.
func (q *SQSQueue) Fail(ctx context.Context, msg *Message, reason error) error {
	if msg == nil {
		return errors.New("queue message is nil")
	}

	if q.maxDeliveries > 0 && msg.Task.Attempt+1 >= q.maxDeliveries {
		logger.Warn(ctx, q.log, "dead-lettering task after max deliveries",
			"task_id", msg.Task.ID,
			"attempt", msg.Task.Attempt+1,
			"max_deliveries", q.maxDeliveries,
		)
		return q.Ack(ctx, msg)
	}

	bodyBytes, err := json.Marshal(retryValues(msg, reason))
	if err != nil {
		return fmt.Errorf("marshal retry body: %w", err)
	}

	if _, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(bodyBytes)),
	}); err != nil {
		return fmt.Errorf("send retry message: %w", err)
	}

	q.delete(ctx, msg.ID)
	return nil
}

func (q *SQSQueue) recordDepth(ctx context.Context) {
	if q.depth == nil {
		return
	}
	attrs, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(q.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil || attrs.Attributes == nil {
		return
	}
	if countStr, ok := attrs.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]; ok {
		if count, err := strconv.ParseInt(countStr, 10, 64); err == nil {
			q.depth.SetQueueDepth(q.workerID, count)
		}
	}
}

func (q *SQSQueue) delete(ctx context.Context, receiptHandle string) {
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}); err != nil {
		logger.Warn(ctx, q.log, "failed to delete message", "error", err)
	}
}

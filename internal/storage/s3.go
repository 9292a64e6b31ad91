package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/reelworks/vod-worker/internal/config"
	"github.com/reelworks/vod-worker/internal/logger"
)

// S3Storage stores objects in an S3 bucket or an S3-compatible store.
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Storage builds an S3 adapter from configuration. Static credentials are
// optional; when absent the default credential chain applies. A custom
// endpoint switches the client to path-style addressing for S3-compatible
// stores.
func NewS3Storage(ctx context.Context, cfg config.S3Config, log *slog.Logger) (*S3Storage, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
		log:    log,
	}, nil
}

// NewS3StorageFromClient builds an adapter around an existing client.
func NewS3StorageFromClient(client *s3.Client, bucket, prefix string, log *slog.Logger) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: prefix, log: log}
}

// Download fetches the object whose key is derived from the logical path. The
// first path segment is the logical root and is not part of the key.
func (s *S3Storage) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	key := downloadKey(remotePath)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", s.bucket, key, err)
	}

	logger.Debug(ctx, s.log, "downloaded object from S3",
		"bucket", s.bucket,
		"key", key,
		"content_length", aws.ToInt64(result.ContentLength),
	)
	return result.Body, nil
}

// Upload writes the stream under the configured key prefix.
func (s *S3Storage) Upload(ctx context.Context, remotePath string, data io.Reader) error {
	key := s.uploadKey(remotePath)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", s.bucket, key, err)
	}

	logger.Debug(ctx, s.log, "uploaded object to S3", "bucket", s.bucket, "key", key)
	return nil
}

// Ping verifies the bucket is reachable with the configured credentials.
func (s *S3Storage) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func downloadKey(remotePath string) string {
	parts := strings.Split(strings.TrimPrefix(remotePath, "/"), "/")
	if len(parts) <= 1 {
		return remotePath
	}
	return strings.Join(parts[1:], "/")
}

func (s *S3Storage) uploadKey(remotePath string) string {
	key := strings.TrimPrefix(remotePath, "/")
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"

	"github.com/studio-b12/gowebdav"

	"github.com/reelworks/vod-worker/internal/config"
	"github.com/reelworks/vod-worker/internal/logger"
)

// WebDAVStorage stores objects on a WebDAV share with basic auth.
type WebDAVStorage struct {
	client *gowebdav.Client
	root   string
	log    *slog.Logger
}

// NewWebDAVStorage builds a WebDAV adapter from configuration.
func NewWebDAVStorage(cfg config.WebDAVConfig, log *slog.Logger) (*WebDAVStorage, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse webdav url: %w", err)
	}

	return &WebDAVStorage{
		client: gowebdav.NewClient(parsed.String(), cfg.Username, cfg.Password),
		root:   cfg.Root,
		log:    log,
	}, nil
}

// Download fetches the object at root/remotePath. The underlying client may
// close its stream once the call returns, so the whole body is buffered in
// memory before the reader is handed to the caller.
func (s *WebDAVStorage) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	fullPath := s.fullPath(remotePath)

	stream, err := s.client.ReadStream(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fullPath, err)
	}

	data, err := io.ReadAll(stream)
	_ = stream.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fullPath, err)
	}

	logger.Debug(ctx, s.log, "downloaded object from WebDAV", "path", fullPath, "bytes", len(data))
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Upload writes the stream to root/remotePath.
func (s *WebDAVStorage) Upload(ctx context.Context, remotePath string, data io.Reader) error {
	fullPath := s.fullPath(remotePath)

	if err := s.client.WriteStream(fullPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", fullPath, err)
	}

	logger.Debug(ctx, s.log, "uploaded object to WebDAV", "path", fullPath)
	return nil
}

// Ping verifies the share answers an OPTIONS request.
func (s *WebDAVStorage) Ping(_ context.Context) error {
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("webdav connect: %w", err)
	}
	return nil
}

func (s *WebDAVStorage) fullPath(p string) string {
	return path.Join(s.root, p)
}

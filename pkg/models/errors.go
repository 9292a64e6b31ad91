package models

import "errors"

// Sentinel errors for task and video operations.
var (
	// Task validation errors
	ErrMissingTaskID     = errors.New("task_id is required")
	ErrMissingVideoID    = errors.New("video_id is required")
	ErrMissingSourcePath = errors.New("source_path is required")

	// Processing errors
	ErrMalformedMessage = errors.New("malformed queue message")
	ErrDownloadFailed   = errors.New("failed to download video")
	ErrTranscodeFailed  = errors.New("failed to transcode video")
	ErrUploadFailed     = errors.New("failed to upload processed video")
	ErrPersistFailed    = errors.New("failed to persist video record")

	// Storage errors
	ErrVideoNotFound  = errors.New("video not found")
	ErrObjectNotFound = errors.New("object not found")
)

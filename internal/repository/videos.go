// Package repository reads and updates the authoritative video rows. The
// worker never creates or deletes rows; it only moves them between uploaded
// and processed.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reelworks/vod-worker/pkg/models"
)

// VideoRepository provides row-level access to the video table.
type VideoRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewVideoRepository creates a repository over an open database handle.
func NewVideoRepository(db *sql.DB, log *slog.Logger) *VideoRepository {
	return &VideoRepository{db: db, log: log}
}

// FindByID returns the full record or models.ErrVideoNotFound.
func (r *VideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	const query = `
SELECT id,
       user_id,
       raw_video_id,
       processed_video_id,
       title,
       status,
       uploaded_at,
       processed_at,
       original_url,
       processed_url,
       votes
FROM "VIDEO"
WHERE id = $1`

	video := &models.Video{}
	var (
		status           string
		processedVideoID sql.NullString
		processedURL     sql.NullString
		processedAt      sql.NullTime
	)

	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&video.ID,
		&video.UserID,
		&video.RawVideoID,
		&processedVideoID,
		&video.Title,
		&status,
		&video.UploadedAt,
		&processedAt,
		&video.OriginalURL,
		&processedURL,
		&video.Votes,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("video %s: %w", id, models.ErrVideoNotFound)
		}
		return nil, fmt.Errorf("query video %s: %w", id, err)
	}

	if processedVideoID.Valid {
		video.ProcessedVideoID = &processedVideoID.String
	}
	if processedURL.Valid {
		video.ProcessedURL = &processedURL.String
	}
	if processedAt.Valid {
		video.ProcessedAt = &processedAt.Time
	}
	video.Status = toVideoStatus(status)

	return video, nil
}

// Update writes the processing-related columns in a single statement keyed by
// id. The caller supplies the target state; last writer wins.
func (r *VideoRepository) Update(ctx context.Context, video *models.Video) error {
	const stmt = `
UPDATE "VIDEO"
SET status = $2,
    processed_video_id = $3,
    processed_url = $4,
    processed_at = $5
WHERE id = $1`

	processedVideoID := sql.NullString{}
	if video.ProcessedVideoID != nil && *video.ProcessedVideoID != "" {
		processedVideoID = sql.NullString{String: *video.ProcessedVideoID, Valid: true}
	}
	processedURL := sql.NullString{}
	if video.ProcessedURL != nil && *video.ProcessedURL != "" {
		processedURL = sql.NullString{String: *video.ProcessedURL, Valid: true}
	}
	processedAt := sql.NullTime{}
	if video.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *video.ProcessedAt, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, stmt, video.ID, string(video.Status), processedVideoID, processedURL, processedAt); err != nil {
		return fmt.Errorf("update video %s: %w", video.ID, err)
	}
	return nil
}

func toVideoStatus(raw string) models.VideoStatus {
	status := models.VideoStatus(raw)
	if status.IsValid() {
		return status
	}
	return models.StatusUploaded
}

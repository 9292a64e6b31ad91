package models

import "time"

// VideoStatus represents the lifecycle state of a video record.
type VideoStatus string

const (
	StatusUploaded  VideoStatus = "uploaded"
	StatusProcessed VideoStatus = "processed"
	StatusDeleted   VideoStatus = "deleted"
	StatusFailed    VideoStatus = "failed"
)

// IsValid returns true if the status is a known VideoStatus.
func (s VideoStatus) IsValid() bool {
	switch s {
	case StatusUploaded, StatusProcessed, StatusDeleted, StatusFailed:
		return true
	}
	return false
}

// Video is the authoritative record for one uploaded video.
type Video struct {
	ID               string
	UserID           string
	RawVideoID       string
	ProcessedVideoID *string
	Title            string
	Status           VideoStatus
	UploadedAt       time.Time
	ProcessedAt      *time.Time
	OriginalURL      string
	ProcessedURL     *string
	Votes            int
}

// MarkProcessed transitions the record to processed with the artifact references set.
func (v *Video) MarkProcessed(processedAt time.Time, processedVideoID, processedURL string) {
	v.Status = StatusProcessed
	v.ProcessedAt = &processedAt
	v.ProcessedVideoID = optionalString(processedVideoID)
	v.ProcessedURL = optionalString(processedURL)
}

// ResetToUploaded reverts the record to its pre-processing state, clearing
// every processed-artifact field.
func (v *Video) ResetToUploaded() {
	v.Status = StatusUploaded
	v.ProcessedAt = nil
	v.ProcessedVideoID = nil
	v.ProcessedURL = nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

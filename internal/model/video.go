package model

import "time"

// VideoStatus is the persisted lifecycle status of a video record.
type VideoStatus string

const (
	VideoStatusUploaded   VideoStatus = "uploaded"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusFailed     VideoStatus = "failed"
)

// Video is the stored record for an uploaded source video.
type Video struct {
	ID              string      `json:"id"`
	UploaderID      string      `json:"uploaderId"`
	Filename        string      `json:"filename"`
	Status          VideoStatus `json:"status"`
	DurationSeconds float64     `json:"durationSeconds,omitempty"`
	ThumbnailPath   string      `json:"thumbnailPath,omitempty"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// VideoFile is one persisted rendition record for a processed video.
type VideoFile struct {
	VideoID   string `json:"videoId"`
	Quality   string `json:"quality"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	Bitrate   int    `json:"bitrate"`
}

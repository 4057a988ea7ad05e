package model

import "time"

// Stage is a named phase of the transcoding pipeline, reported in
// progress events.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageValidating Stage = "validating"
	StageProcessing Stage = "processing"
	StageEncoding   Stage = "encoding"
	StageFinalizing Stage = "finalizing"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// ProgressEvent is the wire event broadcast to progress subscribers.
// Events are transient: they are never persisted, only fanned out to
// whoever is subscribed at publish time.
type ProgressEvent struct {
	VideoID            string    `json:"videoId"`
	Stage              Stage     `json:"stage"`
	UploadProgress     *int      `json:"uploadProgress,omitempty"`
	ProcessingProgress *int      `json:"processingProgress,omitempty"`
	OverallProgress    int       `json:"overallProgress"`
	CurrentTask        string    `json:"currentTask,omitempty"`
	Error              string    `json:"error,omitempty"`
	Speed              string    `json:"speed,omitempty"`
	ETA                string    `json:"eta,omitempty"`
	FileSize           int64     `json:"fileSize,omitempty"`
	UploadedBytes      int64     `json:"uploadedBytes,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

package model

import "time"

// JobStatus is the lifecycle state of a transcode job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further state transition may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TranscodeJob is the queue-owned record for one unit of transcoding work.
type TranscodeJob struct {
	ID          string     `json:"id"`
	VideoID     string     `json:"videoId"`
	UserID      string     `json:"userId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Attempts    int        `json:"attempts"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TranscodeJobPayload is the task payload carried through the queue.
type TranscodeJobPayload struct {
	VideoID string `json:"videoId"`
	UserID  string `json:"userId"`
}

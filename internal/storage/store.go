package storage

import (
	"context"
	"errors"

	"github.com/streamvault/api/internal/model"
)

// ErrNotFound is returned when a video record does not exist.
var ErrNotFound = errors.New("storage: video not found")

// VideoUpdate carries the optional fields written alongside a status
// transition. Nil fields are left untouched.
type VideoUpdate struct {
	DurationSeconds *float64
	ThumbnailPath   *string
	Error           *string
}

// VideoStore is the persistence collaborator for video records. The
// pipeline only ever reads and writes by primary key.
type VideoStore interface {
	GetVideoByID(ctx context.Context, id string) (*model.Video, error)
	SaveVideo(ctx context.Context, video *model.Video) error
	UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus, update VideoUpdate) error
	CreateRenditionRecords(ctx context.Context, videoID string, files []model.VideoFile) error
	GetRenditionRecords(ctx context.Context, videoID string) ([]model.VideoFile, error)
}

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/streamvault/api/internal/model"
)

// MemoryStore is an in-process VideoStore for tests and local runs
// without Redis.
type MemoryStore struct {
	mu     sync.RWMutex
	videos map[string]model.Video
	files  map[string][]model.VideoFile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos: make(map[string]model.Video),
		files:  make(map[string][]model.VideoFile),
	}
}

func (s *MemoryStore) GetVideoByID(_ context.Context, id string) (*model.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &video, nil
}

func (s *MemoryStore) SaveVideo(_ context.Context, video *model.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video.UpdatedAt = time.Now()
	s.videos[video.ID] = *video
	return nil
}

func (s *MemoryStore) UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus, update VideoUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return ErrNotFound
	}
	video.Status = status
	if update.DurationSeconds != nil {
		video.DurationSeconds = *update.DurationSeconds
	}
	if update.ThumbnailPath != nil {
		video.ThumbnailPath = *update.ThumbnailPath
	}
	if update.Error != nil {
		video.Error = *update.Error
	}
	video.UpdatedAt = time.Now()
	s.videos[id] = video
	return nil
}

func (s *MemoryStore) CreateRenditionRecords(_ context.Context, videoID string, files []model.VideoFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[videoID] = append([]model.VideoFile(nil), files...)
	return nil
}

func (s *MemoryStore) GetRenditionRecords(_ context.Context, videoID string) ([]model.VideoFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.VideoFile(nil), s.files[videoID]...), nil
}

var _ VideoStore = (*MemoryStore)(nil)

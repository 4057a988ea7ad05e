package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamvault/api/internal/model"
)

// RedisStore keeps video records as JSON under video:<id>, the same way
// job records are kept by the queue. Mutations are per-key, so concurrent
// workers never contend on the same record.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func videoKey(id string) string { return fmt.Sprintf("video:%s", id) }

func videoFilesKey(id string) string { return fmt.Sprintf("video:%s:files", id) }

func (s *RedisStore) GetVideoByID(ctx context.Context, id string) (*model.Video, error) {
	data, err := s.client.Get(ctx, videoKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var video model.Video
	if err := json.Unmarshal(data, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

func (s *RedisStore) SaveVideo(ctx context.Context, video *model.Video) error {
	video.UpdatedAt = time.Now()
	data, err := json.Marshal(video)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, videoKey(video.ID), data, 0).Err()
}

func (s *RedisStore) UpdateVideoStatus(ctx context.Context, id string, status model.VideoStatus, update VideoUpdate) error {
	video, err := s.GetVideoByID(ctx, id)
	if err != nil {
		return err
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
	return s.SaveVideo(ctx, video)
}

func (s *RedisStore) CreateRenditionRecords(ctx context.Context, videoID string, files []model.VideoFile) error {
	data, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, videoFilesKey(videoID), data, 0).Err()
}

func (s *RedisStore) GetRenditionRecords(ctx context.Context, videoID string) ([]model.VideoFile, error) {
	data, err := s.client.Get(ctx, videoFilesKey(videoID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var files []model.VideoFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, err
	}
	return files, nil
}

var _ VideoStore = (*RedisStore)(nil)

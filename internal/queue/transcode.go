package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/streamvault/api/internal/model"
)

const (
	// TaskTypeTranscode is the asynq task type for transcode jobs.
	TaskTypeTranscode = "transcode:process"

	// QueueTranscode is the asynq queue name jobs are dispatched on.
	QueueTranscode = "transcode"

	completedIndexKey = "jobs:completed"
	failedIndexKey    = "jobs:failed"

	retainCompleted = 10
	retainFailed    = 50
)

// TaskEnvelope is the JSON carried inside an asynq task.
type TaskEnvelope struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// taskClient is the slice of asynq.Client the queue dispatches through.
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TranscodeQueue is the durable, at-least-once job queue for transcode
// work. Job records live in Redis as job:<id> JSON; completed and failed
// jobs are indexed in sorted sets so history stays bounded.
type TranscodeQueue struct {
	redis  *redis.Client
	client taskClient
	policy RetryPolicy
}

func NewTranscodeQueue(redisClient *redis.Client, asynqClient *asynq.Client, policy RetryPolicy) *TranscodeQueue {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &TranscodeQueue{
		redis:  redisClient,
		client: asynqClient,
		policy: policy,
	}
}

func jobKey(id string) string { return fmt.Sprintf("job:%s", id) }

func activeVideoKey(videoID string) string { return fmt.Sprintf("job:video:%s", videoID) }

// Enqueue creates a job record and dispatches the task. Re-enqueueing a
// video whose job is still queued or active returns the existing handle
// instead of starting a second concurrent job for the same directory.
func (q *TranscodeQueue) Enqueue(ctx context.Context, payload model.TranscodeJobPayload) (*JobHandle, error) {
	jobID := uuid.New().String()

	// SETNX claims the per-video guard atomically; of two racing
	// enqueues exactly one wins and the loser gets the winner's handle.
	claimed, err := q.redis.SetNX(ctx, activeVideoKey(payload.VideoID), jobID, 0).Result()
	if err != nil {
		return nil, &EnqueueError{Err: err}
	}
	if !claimed {
		existingID, err := q.redis.Get(ctx, activeVideoKey(payload.VideoID)).Result()
		if err != nil && err != redis.Nil {
			return nil, &EnqueueError{Err: err}
		}
		if existingID != "" {
			if job, err := q.getJob(ctx, existingID); err == nil && !job.Status.Terminal() {
				return &JobHandle{ID: existingID, Existing: true}, nil
			}
		}
		// The guard points at a failed or evicted job; the new job
		// supersedes it.
		if err := q.redis.Set(ctx, activeVideoKey(payload.VideoID), jobID, 0).Err(); err != nil {
			return nil, &EnqueueError{Err: err}
		}
	}

	job := &model.TranscodeJob{
		ID:        jobID,
		VideoID:   payload.VideoID,
		UserID:    payload.UserID,
		Status:    model.JobStatusQueued,
		CreatedAt: time.Now(),
	}
	if err := q.saveJob(ctx, job); err != nil {
		return nil, &EnqueueError{Err: err}
	}

	if err := q.dispatch(ctx, job); err != nil {
		return nil, &EnqueueError{Err: err}
	}
	return &JobHandle{ID: jobID}, nil
}

func (q *TranscodeQueue) dispatch(ctx context.Context, job *model.TranscodeJob) error {
	payloadBytes, err := json.Marshal(model.TranscodeJobPayload{VideoID: job.VideoID, UserID: job.UserID})
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(TaskEnvelope{JobID: job.ID, Payload: payloadBytes})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeTranscode, envelope)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueTranscode),
		asynq.MaxRetry(q.policy.MaxAttempts-1),
		asynq.Retention(24*time.Hour),
	)
	return err
}

// GetStatus returns the current job record, or ErrNotFound once the
// record has been evicted.
func (q *TranscodeQueue) GetStatus(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	return q.getJob(ctx, jobID)
}

// GetStatusByVideo resolves the most recent job for a video.
func (q *TranscodeQueue) GetStatusByVideo(ctx context.Context, videoID string) (*model.TranscodeJob, error) {
	jobID, err := q.redis.Get(ctx, activeVideoKey(videoID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q.getJob(ctx, jobID)
}

// RetryFailed re-enqueues every job currently in failed state. Best
// effort: one job failing to re-enqueue does not abort the rest.
func (q *TranscodeQueue) RetryFailed(ctx context.Context) (int, error) {
	jobIDs, err := q.redis.ZRange(ctx, failedIndexKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, jobID := range jobIDs {
		job, err := q.getJob(ctx, jobID)
		if err != nil {
			log.Printf("retry failed job %s: %v", jobID, err)
			continue
		}
		job.Status = model.JobStatusQueued
		job.Error = nil
		job.CompletedAt = nil
		if err := q.saveJob(ctx, job); err != nil {
			log.Printf("retry failed job %s: %v", jobID, err)
			continue
		}
		if err := q.redis.Set(ctx, activeVideoKey(job.VideoID), job.ID, 0).Err(); err != nil {
			log.Printf("retry failed job %s: %v", jobID, err)
			continue
		}
		if err := q.dispatch(ctx, job); err != nil {
			log.Printf("retry failed job %s: %v", jobID, err)
			continue
		}
		q.redis.ZRem(ctx, failedIndexKey, jobID)
		retried++
	}
	return retried, nil
}

// Cleanup evicts completed job records older than the given age in days.
func (q *TranscodeQueue) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).Unix()
	jobIDs, err := q.redis.ZRangeByScore(ctx, completedIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, jobID := range jobIDs {
		q.redis.Del(ctx, jobKey(jobID))
		q.redis.ZRem(ctx, completedIndexKey, jobID)
	}
	return len(jobIDs), nil
}

// MarkActive transitions a job to active and counts the attempt.
func (q *TranscodeQueue) MarkActive(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, ErrJobFinished
	}
	job.Status = model.JobStatusActive
	job.Attempts++
	if job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// SetProgress records the last reported overall percentage.
func (q *TranscodeQueue) SetProgress(ctx context.Context, jobID string, percent int) {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return
	}
	if percent > job.Progress {
		job.Progress = percent
		if err := q.saveJob(ctx, job); err != nil {
			log.Printf("save progress for job %s: %v", jobID, err)
		}
	}
}

// MarkCompleted is the job's terminal success transition.
func (q *TranscodeQueue) MarkCompleted(ctx context.Context, jobID string) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	q.finishVideo(ctx, job)
	q.index(ctx, completedIndexKey, jobID, now, retainCompleted)
	return nil
}

// MarkFailed is the job's terminal failure transition, applied once the
// retry budget is exhausted.
func (q *TranscodeQueue) MarkFailed(ctx context.Context, jobID, reason string) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = model.JobStatusFailed
	job.Error = &reason
	now := time.Now()
	job.CompletedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	q.finishVideo(ctx, job)
	q.index(ctx, failedIndexKey, jobID, now, retainFailed)
	return nil
}

// MarkRetrying records a non-terminal failure; the queue will redeliver.
func (q *TranscodeQueue) MarkRetrying(ctx context.Context, jobID, reason string) error {
	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = model.JobStatusQueued
	job.Error = &reason
	return q.saveJob(ctx, job)
}

// finishVideo releases the per-video dedup guard held by this job.
func (q *TranscodeQueue) finishVideo(ctx context.Context, job *model.TranscodeJob) {
	current, err := q.redis.Get(ctx, activeVideoKey(job.VideoID)).Result()
	if err == nil && current == job.ID && job.Status == model.JobStatusCompleted {
		q.redis.Del(ctx, activeVideoKey(job.VideoID))
	}
}

// index adds a terminal job to its history set and lazily trims the set
// to its retention cap, deleting evicted records.
func (q *TranscodeQueue) index(ctx context.Context, key, jobID string, at time.Time, cap int) {
	q.redis.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: jobID})
	count, err := q.redis.ZCard(ctx, key).Result()
	if err != nil || count <= int64(cap) {
		return
	}
	oldest, err := q.redis.ZRange(ctx, key, 0, count-int64(cap)-1).Result()
	if err != nil {
		return
	}
	for _, id := range oldest {
		q.redis.Del(ctx, jobKey(id))
		q.redis.ZRem(ctx, key, id)
	}
}

func (q *TranscodeQueue) getJob(ctx context.Context, jobID string) (*model.TranscodeJob, error) {
	data, err := q.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var job model.TranscodeJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *TranscodeQueue) saveJob(ctx context.Context, job *model.TranscodeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.Set(ctx, jobKey(job.ID), data, 0).Err()
}

var _ Queue[model.TranscodeJobPayload] = (*TranscodeQueue)(nil)

// NewServer builds the asynq worker server: a fixed-size pool where one
// job occupies one slot for its full lifetime, with the retry delay
// schedule taken from the policy.
func NewServer(opt asynq.RedisClientOpt, concurrency int, policy RetryPolicy, logLevel asynq.LogLevel) *asynq.Server {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueTranscode: 1,
		},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return policy.Delay(n + 1)
		},
		LogLevel: logLevel,
	})
}

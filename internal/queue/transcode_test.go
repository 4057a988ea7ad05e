package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/api/internal/model"
)

type fakeTaskClient struct {
	enqueued []*asynq.Task
	err      error
}

func (f *fakeTaskClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

func newTestQueue(t *testing.T) (*TranscodeQueue, *fakeTaskClient, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := &fakeTaskClient{}
	return &TranscodeQueue{redis: rdb, client: client, policy: DefaultRetryPolicy()}, client, rdb
}

func TestTranscodeQueue_Enqueue_DedupWhileInFlight(t *testing.T) {
	q, client, rdb := newTestQueue(t)
	ctx := context.Background()
	payload := model.TranscodeJobPayload{VideoID: "vid-1", UserID: "user-1"}

	first, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.False(t, first.Existing)

	second, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.ID, second.ID)

	assert.Len(t, client.enqueued, 1, "deduplicated enqueue must not dispatch")
	guard, err := rdb.Get(ctx, activeVideoKey("vid-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, first.ID, guard, "guard still names the job in flight")
}

func TestTranscodeQueue_Enqueue_SupersedesFailedJob(t *testing.T) {
	q, _, rdb := newTestQueue(t)
	ctx := context.Background()
	payload := model.TranscodeJobPayload{VideoID: "vid-1", UserID: "user-1"}

	first, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, first.ID, "encode blew up"))

	second, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.False(t, second.Existing, "a failed job does not block a fresh enqueue")
	assert.NotEqual(t, first.ID, second.ID)

	guard, err := rdb.Get(ctx, activeVideoKey("vid-1")).Result()
	require.NoError(t, err)
	assert.Equal(t, second.ID, guard)
}

func TestTranscodeQueue_Enqueue_GuardReleasedOnCompletion(t *testing.T) {
	q, _, rdb := newTestQueue(t)
	ctx := context.Background()
	payload := model.TranscodeJobPayload{VideoID: "vid-1", UserID: "user-1"}

	handle, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	_, err = q.MarkActive(ctx, handle.ID)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, handle.ID))

	_, err = rdb.Get(ctx, activeVideoKey("vid-1")).Result()
	assert.Equal(t, redis.Nil, err, "completion releases the per-video guard")

	second, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	assert.False(t, second.Existing)
}

func TestTranscodeQueue_TerminalRecordStaysTerminal(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	handle, err := q.Enqueue(ctx, model.TranscodeJobPayload{VideoID: "vid-1", UserID: "user-1"})
	require.NoError(t, err)
	_, err = q.MarkActive(ctx, handle.ID)
	require.NoError(t, err)
	require.NoError(t, q.MarkCompleted(ctx, handle.ID))

	// a late duplicate delivery must not reopen the record
	_, err = q.MarkActive(ctx, handle.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
	assert.NoError(t, q.MarkRetrying(ctx, handle.ID, "stale attempt"))

	job, err := q.GetStatus(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Nil(t, job.Error)
}

func TestTranscodeQueue_MarkRetrying_KeepsFailedFailed(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()

	handle, err := q.Enqueue(ctx, model.TranscodeJobPayload{VideoID: "vid-1", UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, handle.ID, "out of retries"))

	assert.NoError(t, q.MarkRetrying(ctx, handle.ID, "late redelivery"))

	job, err := q.GetStatus(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "out of retries", *job.Error)
}

func TestTranscodeQueue_CompletedHistoryIsTrimmed(t *testing.T) {
	q, _, rdb := newTestQueue(t)
	ctx := context.Background()

	ids := make([]string, 0, retainCompleted+2)
	for i := 0; i < retainCompleted+2; i++ {
		handle, err := q.Enqueue(ctx, model.TranscodeJobPayload{VideoID: fmt.Sprintf("vid-%d", i), UserID: "user-1"})
		require.NoError(t, err)
		require.NoError(t, q.MarkCompleted(ctx, handle.ID))
		ids = append(ids, handle.ID)
	}

	count, err := rdb.ZCard(ctx, completedIndexKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(retainCompleted), count)

	evicted := 0
	for _, id := range ids {
		if _, err := q.GetStatus(ctx, id); errors.Is(err, ErrNotFound) {
			evicted++
		}
	}
	assert.Equal(t, 2, evicted, "trimming deletes the evicted records too")
}

func TestTranscodeQueue_RetryFailed_BestEffort(t *testing.T) {
	q, client, rdb := newTestQueue(t)
	ctx := context.Background()

	for _, videoID := range []string{"vid-1", "vid-2"} {
		handle, err := q.Enqueue(ctx, model.TranscodeJobPayload{VideoID: videoID, UserID: "user-1"})
		require.NoError(t, err)
		require.NoError(t, q.MarkFailed(ctx, handle.ID, "encode blew up"))
	}

	// dispatch is down: nothing retried, nothing lost
	client.err = errors.New("broker unavailable")
	retried, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, retried)
	count, err := rdb.ZCard(ctx, failedIndexKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	client.err = nil
	retried, err = q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, retried)
	count, err = rdb.ZCard(ctx, failedIndexKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	job, err := q.GetStatusByVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Nil(t, job.Error)
}

func TestTranscodeQueue_Cleanup_EvictsOldCompleted(t *testing.T) {
	q, _, rdb := newTestQueue(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		handle, err := q.Enqueue(ctx, model.TranscodeJobPayload{VideoID: fmt.Sprintf("vid-%d", i), UserID: "user-1"})
		require.NoError(t, err)
		require.NoError(t, q.MarkCompleted(ctx, handle.ID))
		ids = append(ids, handle.ID)
	}

	// age the first two past the cutoff
	old := float64(time.Now().AddDate(0, 0, -10).Unix())
	for _, id := range ids[:2] {
		require.NoError(t, rdb.ZAdd(ctx, completedIndexKey, redis.Z{Score: old, Member: id}).Err())
	}

	removed, err := q.Cleanup(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, id := range ids[:2] {
		_, err := q.GetStatus(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	_, err = q.GetStatus(ctx, ids[2])
	assert.NoError(t, err)
}

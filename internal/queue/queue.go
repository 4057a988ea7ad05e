package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by GetStatus once a job record has been
// evicted (or never existed).
var ErrNotFound = errors.New("queue: job not found")

// ErrJobFinished is returned when a non-terminal transition is attempted
// on a job that already reached completed or failed. Under at-least-once
// delivery a late duplicate must not reopen a finished record.
var ErrJobFinished = errors.New("queue: job already finished")

// EnqueueError means the durable store behind the queue was unavailable.
type EnqueueError struct {
	Err error
}

func (e *EnqueueError) Error() string { return fmt.Sprintf("enqueue: %v", e.Err) }

func (e *EnqueueError) Unwrap() error { return e.Err }

// RetryPolicy is the injectable retry configuration for a queue. The
// delay doubles per attempt: BaseDelay, 2×BaseDelay, 4×BaseDelay, …
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries a job up to 3 attempts with 2s/4s/8s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Delay returns the wait before the next attempt, given the 1-based
// number of the attempt that just failed.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// JobHandle identifies an enqueued job. Existing is set when the enqueue
// was deduplicated onto a job already in flight for the same video.
type JobHandle struct {
	ID       string
	Existing bool
}

// Queue decouples "work needs doing" from "work happens now",
// parameterized over the payload type.
type Queue[P any] interface {
	Enqueue(ctx context.Context, payload P) (*JobHandle, error)
}

package progress

import (
	"log"
	"sync"

	"github.com/streamvault/api/internal/model"
)

// Callback receives one progress event. Callbacks run synchronously on
// the publisher's goroutine, so per-job emission order is preserved.
type Callback func(model.ProgressEvent)

// Channel is a transport-agnostic pub/sub fan-out for progress events.
// Delivery is best-effort and non-durable: events published while no
// subscriber is attached to a scope are dropped, never buffered. A late
// subscriber only sees subsequent events.
type Channel struct {
	mu       sync.RWMutex
	nextID   uint64
	jobSubs  map[string]map[uint64]Callback
	userSubs map[string]map[uint64]Callback
}

func NewChannel() *Channel {
	return &Channel{
		jobSubs:  make(map[string]map[uint64]Callback),
		userSubs: make(map[string]map[uint64]Callback),
	}
}

// SubscribeToJob attaches a callback to one job's event stream. The
// returned unsubscribe func is idempotent.
func (c *Channel) SubscribeToJob(jobID string, fn Callback) func() {
	return c.subscribe(c.jobSubs, jobID, fn)
}

// SubscribeToUser attaches a callback to every event for jobs owned by
// one user.
func (c *Channel) SubscribeToUser(userID string, fn Callback) func() {
	return c.subscribe(c.userSubs, userID, fn)
}

func (c *Channel) subscribe(scope map[string]map[uint64]Callback, key string, fn Callback) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if scope[key] == nil {
		scope[key] = make(map[uint64]Callback)
	}
	scope[key][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs, ok := scope[key]
		if !ok {
			return
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(scope, key)
		}
	}
}

// Publish fans an event out to every subscriber of the job scope and the
// user scope. A panicking callback never prevents delivery to the rest.
func (c *Channel) Publish(jobID, userID string, event model.ProgressEvent) {
	c.mu.RLock()
	callbacks := make([]Callback, 0, len(c.jobSubs[jobID])+len(c.userSubs[userID]))
	for _, fn := range c.jobSubs[jobID] {
		callbacks = append(callbacks, fn)
	}
	for _, fn := range c.userSubs[userID] {
		callbacks = append(callbacks, fn)
	}
	c.mu.RUnlock()

	for _, fn := range callbacks {
		deliver(fn, event)
	}
}

func deliver(fn Callback, event model.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("progress subscriber panicked: %v", r)
		}
	}()
	fn(event)
}

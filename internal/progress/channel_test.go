package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamvault/api/internal/model"
)

func event(videoID string, percent int) model.ProgressEvent {
	return model.ProgressEvent{VideoID: videoID, Stage: model.StageEncoding, OverallProgress: percent}
}

func TestChannel_JobSubscription(t *testing.T) {
	c := NewChannel()

	var got []model.ProgressEvent
	unsubscribe := c.SubscribeToJob("job-1", func(e model.ProgressEvent) {
		got = append(got, e)
	})

	c.Publish("job-1", "user-1", event("vid-1", 60))
	c.Publish("job-2", "user-1", event("vid-2", 10))

	assert.Len(t, got, 1)
	assert.Equal(t, "vid-1", got[0].VideoID)

	unsubscribe()
	c.Publish("job-1", "user-1", event("vid-1", 70))
	assert.Len(t, got, 1, "no delivery after unsubscribe")

	// unsubscribe is idempotent
	unsubscribe()
}

func TestChannel_UserSubscriptionSpansJobs(t *testing.T) {
	c := NewChannel()

	var got []model.ProgressEvent
	defer c.SubscribeToUser("user-1", func(e model.ProgressEvent) {
		got = append(got, e)
	})()

	c.Publish("job-1", "user-1", event("vid-1", 40))
	c.Publish("job-2", "user-1", event("vid-2", 50))
	c.Publish("job-3", "user-2", event("vid-3", 60))

	assert.Len(t, got, 2)
}

func TestChannel_MultipleSubscribersPerJob(t *testing.T) {
	c := NewChannel()

	first, second := 0, 0
	c.SubscribeToJob("job-1", func(model.ProgressEvent) { first++ })
	c.SubscribeToJob("job-1", func(model.ProgressEvent) { second++ })

	c.Publish("job-1", "user-1", event("vid-1", 35))

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestChannel_PanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	c := NewChannel()

	delivered := false
	c.SubscribeToJob("job-1", func(model.ProgressEvent) { panic("boom") })
	c.SubscribeToJob("job-1", func(model.ProgressEvent) { delivered = true })

	c.Publish("job-1", "user-1", event("vid-1", 90))

	assert.True(t, delivered)
}

func TestChannel_PublishWithoutSubscribers(t *testing.T) {
	c := NewChannel()
	// must not block or panic
	c.Publish("job-1", "user-1", event("vid-1", 100))
}

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Message {
	var out []Message
	for {
		select {
		case m := <-sub.C:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestPublishReachesSubscribedChannelsOnly(t *testing.T) {
	h := NewHub()
	budget := h.Subscribe(ChannelBudget)
	all := h.Subscribe()

	h.Publish(ChannelBudget, "alert")
	h.Publish(ChannelCache, "stats")

	got := drain(budget)
	require.Len(t, got, 1)
	assert.Equal(t, ChannelBudget, got[0].Type)
	assert.Equal(t, "alert", got[0].Data)

	assert.Len(t, drain(all), 2)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub(WithQueueSize(2))
	sub := h.Subscribe(ChannelEvents)

	for i := 0; i < 5; i++ {
		h.Publish(ChannelEvents, i)
	}

	got := drain(sub)
	require.Len(t, got, 2)
	// The newest messages survive; the oldest were discarded.
	assert.Equal(t, 3, got[0].Data)
	assert.Equal(t, 4, got[1].Data)
	assert.Equal(t, uint64(3), sub.Dropped())
}

func TestFastSubscriberDropsNothing(t *testing.T) {
	h := NewHub(WithQueueSize(8))
	sub := h.Subscribe(ChannelHealth)

	for i := 0; i < 8; i++ {
		h.Publish(ChannelHealth, i)
	}

	assert.Len(t, drain(sub), 8)
	assert.Zero(t, sub.Dropped())
}

func TestResubscribeMidStream(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(ChannelEvents)

	h.Publish(ChannelCache, "missed")
	sub.Subscribe(ChannelCache)
	h.Publish(ChannelCache, "seen")
	sub.Unsubscribe(ChannelCache)
	h.Publish(ChannelCache, "missed again")

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, "seen", got[0].Data)
}

func TestCancelClosesQueue(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	require.Equal(t, 1, h.SubscriberCount())

	sub.Cancel()
	assert.Equal(t, 0, h.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// Cancel is idempotent.
	sub.Cancel()
}

func TestConcurrentPublishDoesNotBlock(t *testing.T) {
	h := NewHub(WithQueueSize(4))
	sub := h.Subscribe(ChannelEvents)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Publish(ChannelEvents, g*100+i)
			}
		}(g)
	}
	wg.Wait()

	got := drain(sub)
	assert.LessOrEqual(t, len(got), 4)
	assert.Equal(t, uint64(800), uint64(len(got))+sub.Dropped())
}

// Package events is the typed publish/subscribe fan-out behind the
// realtime dashboard feed. Each subscriber owns a bounded queue with
// drop-oldest back-pressure; slow consumers lose old messages, never block
// publishers, and can observe their own drop count.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type Channel string

const (
	ChannelEvents Channel = "event"
	ChannelHealth Channel = "health"
	ChannelBudget Channel = "budget"
	ChannelCache  Channel = "cache"
)

// AllChannels is the default subscription set.
func AllChannels() []Channel {
	return []Channel{ChannelEvents, ChannelHealth, ChannelBudget, ChannelCache}
}

// Message is the typed envelope delivered to subscribers. Serialization to
// JSON happens only at the transport edge.
type Message struct {
	Type      Channel   `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

const defaultQueueSize = 64

// Subscription is one subscriber's handle. Receive from C; Cancel when done.
type Subscription struct {
	C <-chan Message

	hub      *Hub
	ch       chan Message
	mu       sync.Mutex
	channels map[Channel]bool
	dropped  atomic.Uint64
	id       uint64
}

// Dropped reports how many messages were discarded because this
// subscriber's queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Subscribe adds a channel to this subscription.
func (s *Subscription) Subscribe(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch] = true
}

// Unsubscribe removes a channel from this subscription.
func (s *Subscription) Unsubscribe(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, ch)
}

func (s *Subscription) wants(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[ch]
}

// Cancel removes the subscription from the hub and closes its queue.
func (s *Subscription) Cancel() {
	s.hub.cancel(s)
}

// Hub fans events out to subscribers. Per-subscriber order is preserved
// within a channel; there is no cross-subscriber ordering guarantee.
type Hub struct {
	mu        sync.Mutex
	subs      map[uint64]*Subscription
	nextID    uint64
	queueSize int
	now       func() time.Time
}

type Option func(*Hub)

// WithQueueSize overrides the per-subscriber queue bound.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:      make(map[uint64]*Subscription),
		queueSize: defaultQueueSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber for the given channels (all channels
// when none are named).
func (h *Hub) Subscribe(channels ...Channel) *Subscription {
	if len(channels) == 0 {
		channels = AllChannels()
	}

	set := make(map[Channel]bool, len(channels))
	for _, c := range channels {
		set[c] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan Message, h.queueSize)
	sub := &Subscription{
		C:        ch,
		hub:      h,
		ch:       ch,
		channels: set,
		id:       h.nextID,
	}
	h.subs[sub.id] = sub
	return sub
}

func (h *Hub) cancel(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s.id]; !ok {
		return
	}
	delete(h.subs, s.id)
	close(s.ch)
}

// Publish delivers data to every subscriber of the channel. Never blocks:
// when a queue is full the oldest message is discarded to make room and the
// subscriber's drop counter increments.
func (h *Hub) Publish(channel Channel, data any) {
	msg := Message{Type: channel, Data: data, Timestamp: h.now()}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !sub.wants(channel) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Queue full: drop the oldest, then retry once.
			select {
			case <-sub.ch:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.ch <- msg:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

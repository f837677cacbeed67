package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
)

// DefaultSubscriberBuffer is the per-subscriber event queue length.
const DefaultSubscriberBuffer = 256

// Hub fans events out to live subscribers. Publish never blocks: a
// subscriber whose queue is full is dropped and its channel closed.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates a hub. buffer <= 0 selects DefaultSubscriberBuffer.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription is one live consumer of a Hub.
type Subscription struct {
	hub      *Hub
	ch       chan *domain.Event
	registry *pubkey.PublicKey
	once     sync.Once
}

// Subscribe registers a consumer. A non-nil registry restricts delivery to
// that registry's events.
func (h *Hub) Subscribe(registry *pubkey.PublicKey) *Subscription {
	s := &Subscription{
		hub:      h,
		ch:       make(chan *domain.Event, h.buffer),
		registry: registry,
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Events returns the delivery channel. It is closed when the subscription
// ends, either by Close or because the consumer fell behind.
func (s *Subscription) Events() <-chan *domain.Event {
	return s.ch
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) wants(event *domain.Event) bool {
	return s.registry == nil || *s.registry == event.Registry
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Publish implements Sink.
func (h *Hub) Publish(_ context.Context, event *domain.Event) error {
	var slow []*Subscription

	h.mu.RLock()
	for s := range h.subs {
		if !s.wants(event) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("dropping slow feed subscriber", zap.Int("buffer", h.buffer))
		h.remove(s)
	}
	return nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

package events

import (
	"context"
	"log/slog"
	"sync"
)

// SubscriberBuffer is the default per-subscriber send buffer. A stream that
// cannot drain this many events is considered too slow and is dropped.
const SubscriberBuffer = 64

// Broker is what the Hub needs from the Listener: synchronous channel
// registration against the notify connection.
type Broker interface {
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
}

// Subscriber receives raw notification payloads for one channel. When the
// hub cannot keep it fed, the events channel is closed and Overflowed
// reports true.
type Subscriber struct {
	channel string
	events  chan []byte

	mu         sync.Mutex
	closed     bool
	overflowed bool
}

// Events returns the payload stream. The channel is closed when the
// subscriber is removed, either by Unsubscribe or by overflow.
func (s *Subscriber) Events() <-chan []byte {
	return s.events
}

// Overflowed reports whether the subscriber was dropped for falling behind.
func (s *Subscriber) Overflowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflowed
}

// trySend attempts a nonblocking delivery. It returns false when the buffer
// is full; deliveries to an already-closed subscriber are silently dropped.
func (s *Subscriber) trySend(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- payload:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close(overflow bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.overflowed = overflow
	close(s.events)
}

// Hub fans notification payloads out to per-channel subscribers. The first
// subscriber on a channel triggers LISTEN, the last one leaving triggers
// UNLISTEN.
type Hub struct {
	broker Broker

	mu   sync.RWMutex
	subs map[string]map[*Subscriber]bool
}

func NewHub(broker Broker) *Hub {
	return &Hub{
		broker: broker,
		subs:   make(map[string]map[*Subscriber]bool),
	}
}

// Subscribe registers a subscriber for channel. The LISTEN is issued
// synchronously before this returns, so a caller can run catch-up reads
// afterwards without missing events.
func (h *Hub) Subscribe(ctx context.Context, channel string) (*Subscriber, error) {
	sub := &Subscriber{
		channel: channel,
		events:  make(chan []byte, SubscriberBuffer),
	}

	h.mu.Lock()
	set, exists := h.subs[channel]
	if !exists {
		set = make(map[*Subscriber]bool)
		h.subs[channel] = set
	}
	first := len(set) == 0
	set[sub] = true
	h.mu.Unlock()

	if first {
		if err := h.broker.Subscribe(ctx, channel); err != nil {
			h.remove(ctx, sub)
			return nil, err
		}
	}
	return sub, nil
}

// Unsubscribe removes the subscriber and closes its event channel.
func (h *Hub) Unsubscribe(ctx context.Context, sub *Subscriber) {
	sub.close(false)
	h.remove(ctx, sub)
}

func (h *Hub) remove(ctx context.Context, sub *Subscriber) {
	h.mu.Lock()
	set := h.subs[sub.channel]
	delete(set, sub)
	last := len(set) == 0
	if last {
		delete(h.subs, sub.channel)
	}
	h.mu.Unlock()

	if last {
		if err := h.broker.Unsubscribe(ctx, sub.channel); err != nil {
			slog.Warn("UNLISTEN failed", "channel", sub.channel, "error", err)
		}
	}
}

// Broadcast delivers a payload to every subscriber on the channel. Sends
// never block: a subscriber with a full buffer is dropped and its channel
// closed so the owning stream can close the socket with a try-again signal.
func (h *Hub) Broadcast(ctx context.Context, channel string, payload []byte) {
	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subs[channel]))
	for sub := range h.subs[channel] {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.trySend(payload) {
			slog.Warn("Subscriber overflow, dropping", "channel", channel)
			sub.close(true)
			h.remove(ctx, sub)
		}
	}
}

// SubscriberCount reports the number of subscribers on a channel. Used by
// tests and health reporting.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

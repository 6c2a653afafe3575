// Package realtime fans session phase transitions out to WebSocket
// subscribers so dashboards can follow pairing progress without polling.
package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bautibadino/wp-api/internal/domain"
)

// PhaseEvent is the wire form of one lifecycle transition.
type PhaseEvent struct {
	Phase     string    `json:"phase"`
	Previous  string    `json:"previous,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 16

type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a new subscriber with a buffered event channel.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:     uuid.NewString(),
		events: make(chan PhaseEvent, subscriberBuffer),
	}
	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes and closes a subscriber. Safe to call twice.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// Publish delivers the event to every subscriber. Subscribers that cannot
// keep up are dropped rather than allowed to block the publisher.
func (h *Hub) Publish(ev PhaseEvent) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.queue(ev) {
			continue
		}
		h.Unsubscribe(sub.id)
	}
}

// PhaseChanged implements the session controller's phase listener,
// translating lifecycle transitions into wire events. Must not block.
func (h *Hub) PhaseChanged(t domain.PhaseTransition) {
	h.Publish(PhaseEvent{
		Phase:     t.To.String(),
		Previous:  t.From.String(),
		Reason:    t.Reason,
		Timestamp: t.Timestamp,
	})
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type Subscriber struct {
	id     string
	events chan PhaseEvent

	mu     sync.Mutex
	closed bool
}

func (s *Subscriber) ID() string { return s.id }

// Events yields phase transitions until the subscriber is unsubscribed.
func (s *Subscriber) Events() <-chan PhaseEvent { return s.events }

func (s *Subscriber) queue(ev PhaseEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

package realtime

import (
	"testing"
	"time"
)

func TestHubPublishReachesSubscribers(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub.ID())

	h.Publish(PhaseEvent{Phase: "ready", Timestamp: time.Now()})

	select {
	case ev := <-sub.Events():
		if ev.Phase != "ready" {
			t.Errorf("expected phase ready, got %q", ev.Phase)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	// Fill the buffer without draining, then overflow it.
	for i := 0; i <= subscriberBuffer; i++ {
		h.Publish(PhaseEvent{Phase: "launching"})
	}

	if h.SubscriberCount() != 0 {
		t.Errorf("expected slow subscriber to be dropped, %d remain", h.SubscriberCount())
	}

	// Channel must be closed so the reader loop terminates.
	drained := 0
	for range sub.Events() {
		drained++
	}
	if drained != subscriberBuffer {
		t.Errorf("expected %d buffered events, got %d", subscriberBuffer, drained)
	}
}

func TestHubUnsubscribeTwice(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	h.Unsubscribe(sub.ID())
	h.Unsubscribe(sub.ID())

	if h.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.SubscriberCount())
	}
}

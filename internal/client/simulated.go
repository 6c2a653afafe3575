package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/bautibadino/wp-api/internal/domain"

	"github.com/google/uuid"
)

// SimulatedConfig tunes the simulated driver.
type SimulatedConfig struct {
	// PairingDelay is how long after Launch the pairing code is emitted.
	PairingDelay time.Duration
	// ReadyDelay is how long after pairing the session reports ready,
	// standing in for the user scanning the code. Zero means the session
	// never pairs on its own.
	ReadyDelay time.Duration
}

// Simulated is an in-process driver that emits a plausible lifecycle without
// any browser. It exists for local development and smoke testing of the HTTP
// surface; sends succeed and chat listings return canned data.
type Simulated struct {
	cfg    SimulatedConfig
	events chan domain.Event

	mu        sync.Mutex
	launched  bool
	destroyed bool
	ready     bool
	timers    []*time.Timer
}

func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.PairingDelay == 0 {
		cfg.PairingDelay = 500 * time.Millisecond
	}
	return &Simulated{
		cfg:    cfg,
		events: make(chan domain.Event, 16),
	}
}

func (s *Simulated) Launch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return fmt.Errorf("client already destroyed")
	}
	if s.launched {
		return fmt.Errorf("client already launched")
	}
	s.launched = true

	s.timers = append(s.timers, time.AfterFunc(s.cfg.PairingDelay, func() {
		s.emit(domain.NewPairingCodeEvent(randomPairingCode()))
		if s.cfg.ReadyDelay > 0 {
			s.mu.Lock()
			s.timers = append(s.timers, time.AfterFunc(s.cfg.ReadyDelay, func() {
				s.emit(domain.NewAuthenticatedEvent())
				s.markReady()
				s.emit(domain.NewReadyEvent())
			}))
			s.mu.Unlock()
		}
	}))
	return nil
}

func (s *Simulated) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true
	s.ready = false
	for _, t := range s.timers {
		t.Stop()
	}
	close(s.events)
	return nil
}

func (s *Simulated) SendMessage(ctx context.Context, recipient, body string) (string, error) {
	if err := s.requireReady(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (s *Simulated) ResolveRecipient(ctx context.Context, id string) (RecipientInfo, error) {
	if err := s.requireReady(); err != nil {
		return RecipientInfo{}, err
	}
	return RecipientInfo{ID: id, PushName: "simulated"}, nil
}

func (s *Simulated) ListChats(ctx context.Context, limit int) ([]ChatSummary, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	chats := []ChatSummary{
		{ID: "simulated@c.us", Name: "Simulated", Timestamp: time.Now()},
	}
	if limit < len(chats) {
		chats = chats[:limit]
	}
	return chats, nil
}

func (s *Simulated) Events() <-chan domain.Event {
	return s.events
}

func (s *Simulated) requireReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return fmt.Errorf("simulated client not ready")
	}
	return nil
}

func (s *Simulated) markReady() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

func (s *Simulated) emit(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

func randomPairingCode() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

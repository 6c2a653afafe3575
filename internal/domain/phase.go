package domain

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the session lifecycle state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLaunching
	PhaseAwaitingPairing
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLaunching:
		return "launching"
	case PhaseAwaitingPairing:
		return "awaiting_pairing"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var ErrInvalidTransition = errors.New("invalid phase transition")

func NewInvalidTransitionError(from, to Phase) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// validTransitions is the canonical lifecycle machine. Restart resets any
// phase back to uninitialized, so every phase may transition there.
var validTransitions = map[Phase][]Phase{
	PhaseUninitialized:   {PhaseLaunching},
	PhaseLaunching:       {PhaseAwaitingPairing, PhaseReady, PhaseFailed},
	PhaseAwaitingPairing: {PhaseReady, PhaseLaunching, PhaseFailed},
	PhaseReady:           {PhaseFailed, PhaseLaunching},
	PhaseFailed:          {PhaseLaunching},
}

func CanTransition(from, to Phase) bool {
	if to == PhaseUninitialized {
		return true
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, p := range allowed {
		if p == to {
			return true
		}
	}
	return false
}

// PhaseTransition records one lifecycle transition for the status audit trail.
type PhaseTransition struct {
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

package domain

import "time"

// EventType identifies a client lifecycle event.
type EventType int

const (
	EventTypePairingCode EventType = iota
	EventTypeAuthenticated
	EventTypeReady
	EventTypeAuthFailed
	EventTypeDisconnected
	EventTypeError
)

func (t EventType) String() string {
	switch t {
	case EventTypePairingCode:
		return "pairing_code"
	case EventTypeAuthenticated:
		return "authenticated"
	case EventTypeReady:
		return "ready"
	case EventTypeAuthFailed:
		return "auth_failed"
	case EventTypeDisconnected:
		return "disconnected"
	case EventTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item on the messaging client's event stream.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

type PairingCodeData struct {
	Code string
}

type FailureData struct {
	Reason string
}

func NewPairingCodeEvent(code string) Event {
	return Event{
		Type:      EventTypePairingCode,
		Timestamp: time.Now(),
		Data:      PairingCodeData{Code: code},
	}
}

func NewAuthenticatedEvent() Event {
	return Event{Type: EventTypeAuthenticated, Timestamp: time.Now()}
}

func NewReadyEvent() Event {
	return Event{Type: EventTypeReady, Timestamp: time.Now()}
}

func NewAuthFailedEvent(reason string) Event {
	return Event{
		Type:      EventTypeAuthFailed,
		Timestamp: time.Now(),
		Data:      FailureData{Reason: reason},
	}
}

func NewDisconnectedEvent(reason string) Event {
	return Event{
		Type:      EventTypeDisconnected,
		Timestamp: time.Now(),
		Data:      FailureData{Reason: reason},
	}
}

func NewErrorEvent(reason string) Event {
	return Event{
		Type:      EventTypeError,
		Timestamp: time.Now(),
		Data:      FailureData{Reason: reason},
	}
}

// FailureReason extracts the reason string from failure-carrying events.
func (e Event) FailureReason() string {
	if d, ok := e.Data.(FailureData); ok {
		return d.Reason
	}
	return ""
}

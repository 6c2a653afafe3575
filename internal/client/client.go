// Package client defines the messaging client boundary: the capability that
// actually drives the browser-automated web session. The session controller
// only ever talks to the Client interface; concrete drivers live behind the
// factory so the lifecycle machinery stays testable.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bautibadino/wp-api/internal/domain"
)

var ErrRecipientNotFound = errors.New("recipient not registered")

// Config carries the opaque environment handed to a driver. The controller
// never interprets these values.
type Config struct {
	Driver      string
	BrowserPath string
	SessionDir  string
	Headless    bool
}

// ChatSummary is one entry returned by ListChats.
type ChatSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsGroup     bool      `json:"isGroup"`
	UnreadCount int       `json:"unreadCount"`
	Timestamp   time.Time `json:"timestamp"`
	LastMessage string    `json:"lastMessage,omitempty"`
}

// RecipientInfo describes a resolved recipient.
type RecipientInfo struct {
	ID       string `json:"id"`
	PushName string `json:"pushName,omitempty"`
}

// Client is a single live messaging session. Launch starts the underlying
// web client asynchronously; progress is reported on the Events channel,
// which the driver closes when the client is destroyed or dies.
type Client interface {
	// Launch starts the client. Errors returned here are synchronous start
	// failures; everything after startup flows through Events.
	Launch(ctx context.Context) error

	// Destroy tears the client down and releases browser resources.
	// The events channel is closed as part of destruction.
	Destroy(ctx context.Context) error

	// SendMessage delivers body to recipient and returns the message ID.
	SendMessage(ctx context.Context, recipient, body string) (string, error)

	// ResolveRecipient checks whether an ID maps to a registered account.
	// Returns ErrRecipientNotFound when it does not.
	ResolveRecipient(ctx context.Context, id string) (RecipientInfo, error)

	// ListChats returns up to limit chat summaries, most recent first.
	ListChats(ctx context.Context, limit int) ([]ChatSummary, error)

	// Events is the lifecycle event stream for this client instance.
	Events() <-chan domain.Event
}

// Factory constructs a fresh, unlaunched client.
type Factory func(cfg Config) (Client, error)

// New selects a driver by name. Only the simulated driver ships with this
// binary; real drivers are wired in by the embedding deployment.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", "simulated":
		return NewSimulated(SimulatedConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown client driver %q", cfg.Driver)
	}
}

// Package session owns the messaging session lifecycle: when to (re)launch
// the underlying client, how pairing-code expiry is handled, and how
// concurrent lifecycle operations are serialized. All mutable state lives
// behind one mutex; HTTP handlers and client event callbacks both funnel
// through the Controller and never touch state directly.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bautibadino/wp-api/internal/circuit"
	"github.com/bautibadino/wp-api/internal/client"
	"github.com/bautibadino/wp-api/internal/domain"
)

const (
	// destroyTimeout bounds best-effort teardown of a client handle.
	destroyTimeout = 10 * time.Second

	// launchTimeout bounds the synchronous part of a client start.
	launchTimeout = 60 * time.Second

	// maxTransitionHistory caps the audit trail kept for /api/status.
	maxTransitionHistory = 50
)

// Config tunes the lifecycle policy. Zero values fall back to defaults.
type Config struct {
	// SendTimeout bounds how long a send may block the caller. A timed-out
	// send is abandoned, not cancelled, and does not fail the session.
	SendTimeout time.Duration

	// LaunchRetryDelay is the backoff after a failed launch or a
	// disconnect before the next relaunch attempt.
	LaunchRetryDelay time.Duration

	// AuthRetryDelay is the fixed delay before relaunching after the
	// remote side rejects pairing.
	AuthRetryDelay time.Duration

	// RestartDelay gives a destroyed client time to release browser
	// resources before the replacement is launched.
	RestartDelay time.Duration

	// PairingTTL is how long an issued pairing code stays scannable.
	PairingTTL time.Duration

	// ReconnectOnDisconnect controls whether a disconnect schedules an
	// automatic relaunch. Off avoids reconnect loops on flaky hosts.
	ReconnectOnDisconnect bool

	// BreakerThreshold and BreakerCooldown configure the relaunch circuit
	// breaker: after threshold consecutive launch failures, relaunches
	// hold off for the cooldown period.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendTimeout == 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.LaunchRetryDelay == 0 {
		c.LaunchRetryDelay = 30 * time.Second
	}
	if c.AuthRetryDelay == 0 {
		c.AuthRetryDelay = 30 * time.Second
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.PairingTTL == 0 {
		c.PairingTTL = 120 * time.Second
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 5 * time.Minute
	}
	return c
}

// PhaseListener observes lifecycle transitions. Implementations must not
// block; the controller calls them while holding its lock.
type PhaseListener interface {
	PhaseChanged(t domain.PhaseTransition)
}

// Controller is the single serialization point for session state.
type Controller struct {
	cfg       Config
	factory   client.Factory
	clientCfg client.Config
	breaker   *circuit.Breaker
	logger    *slog.Logger

	mu              sync.Mutex
	phase           domain.Phase
	pairingCode     string
	pairingIssuedAt time.Time
	launchInFlight  bool
	cl              client.Client
	transitions     []domain.PhaseTransition
	lastError       string
	timerGen        uint64
	relaunchTimer   *time.Timer
	launchDone      chan struct{}
	launchCancel    context.CancelFunc
	startedAt       time.Time
	listener        PhaseListener
	closed          bool
}

func New(factory client.Factory, clientCfg client.Config, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:       cfg,
		factory:   factory,
		clientCfg: clientCfg,
		breaker:   circuit.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:    logger,
		phase:     domain.PhaseUninitialized,
		startedAt: time.Now(),
	}
}

// SetPhaseListener registers the transition observer. Call before Launch.
func (c *Controller) SetPhaseListener(l PhaseListener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// Launch starts a fresh client. It is a no-op while another launch is in
// flight, which is the one concurrency guarantee every caller relies on:
// at most one underlying start operation ever runs at a time. The heavy
// lifting happens on a background goroutine; Launch returns immediately.
func (c *Controller) Launch() {
	c.mu.Lock()
	if c.closed || c.launchInFlight {
		c.mu.Unlock()
		return
	}
	c.launchInFlight = true
	c.invalidateTimersLocked()
	c.cancelLaunchLocked()
	c.clearPairingLocked()
	c.transitionLocked(domain.PhaseLaunching, "launch requested")
	old := c.cl
	c.cl = nil
	gen := c.timerGen
	prevDone := c.launchDone
	done := make(chan struct{})
	c.launchDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		// A superseded start operation may still be blocked inside the
		// driver. Wait it out so at most one underlying start ever runs
		// at a time, even when the driver ignores cancellation.
		if prevDone != nil {
			<-prevDone
		}
		c.runLaunch(old, gen)
	}()
}

func (c *Controller) runLaunch(old client.Client, gen uint64) {
	// The previous handle is destroyed before a replacement exists, so no
	// two live handles are ever observable. Destruction failures are
	// logged, never propagated.
	if old != nil {
		c.destroyClient(old)
	}

	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		// Superseded while waiting for the previous start to finish.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	cl, err := c.factory(c.clientCfg)
	if err == nil {
		events := cl.Events()
		ctx, cancel := context.WithTimeout(context.Background(), launchTimeout)
		c.mu.Lock()
		if c.closed || gen != c.timerGen {
			c.mu.Unlock()
			cancel()
			c.destroyClient(cl)
			return
		}
		c.cl = cl
		c.launchCancel = cancel
		c.mu.Unlock()

		go c.consumeEvents(cl, events)

		err = cl.Launch(ctx)
		cancel()
	}

	if err != nil {
		c.launchFailed(cl, gen, err)
		return
	}
	// launchInFlight stays set until the first client event arrives.
}

func (c *Controller) launchFailed(cl client.Client, gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		// A restart or newer launch superseded this attempt; its failure
		// must not disturb the current lifecycle.
		if cl != nil && c.cl == cl {
			c.cl = nil
		}
		c.mu.Unlock()
		c.logger.Debug("superseded launch attempt ended", "error", err)
		if cl != nil {
			c.destroyClient(cl)
		}
		return
	}

	c.logger.Error("client launch failed", "error", err)
	tripped := c.breaker.RecordFailure()
	delay := c.breaker.RetryDelay(c.cfg.LaunchRetryDelay)

	if cl != nil && c.cl == cl {
		c.cl = nil
	}
	c.launchInFlight = false
	c.lastError = fmt.Errorf("%w: %v", domain.ErrLaunchFailed, err).Error()
	c.transitionLocked(domain.PhaseFailed, "launch failed: "+err.Error())
	c.scheduleRelaunchLocked(delay)
	c.mu.Unlock()

	if tripped {
		c.logger.Warn("relaunch breaker tripped", "cooldown", c.cfg.BreakerCooldown)
	}
	if cl != nil {
		c.destroyClient(cl)
	}
}

func (c *Controller) consumeEvents(cl client.Client, events <-chan domain.Event) {
	for ev := range events {
		c.handleEvent(cl, ev)
	}
}

func (c *Controller) handleEvent(cl client.Client, ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Events from a handle that has already been replaced are stale.
	if c.closed || c.cl != cl {
		return
	}

	switch ev.Type {
	case domain.EventTypePairingCode:
		data, ok := ev.Data.(domain.PairingCodeData)
		if !ok || data.Code == "" {
			return
		}
		// A pairing code arriving while the session is ready means the
		// client is renegotiating auth; the table has no Ready ->
		// AwaitingPairing edge. A genuine logout surfaces as
		// disconnected or auth_failed, so the code is ignored here.
		if c.phase == domain.PhaseReady {
			c.logger.Warn("ignoring pairing code while session is ready")
			return
		}
		c.pairingCode = data.Code
		c.pairingIssuedAt = time.Now()
		c.launchInFlight = false
		c.transitionLocked(domain.PhaseAwaitingPairing, "pairing code issued")
		c.breaker.Reset()
		c.logger.Info("pairing code issued", "ttl", c.cfg.PairingTTL)

	case domain.EventTypeAuthenticated:
		c.logger.Info("client authenticated")

	case domain.EventTypeReady:
		c.clearPairingLocked()
		c.launchInFlight = false
		c.lastError = ""
		c.transitionLocked(domain.PhaseReady, "client ready")
		c.breaker.Reset()
		c.logger.Info("session ready")

	case domain.EventTypeAuthFailed:
		reason := ev.FailureReason()
		c.clearPairingLocked()
		c.launchInFlight = false
		c.lastError = fmt.Errorf("%w: %s", domain.ErrAuthFailed, reason).Error()
		c.transitionLocked(domain.PhaseFailed, "auth failed: "+reason)
		c.scheduleRelaunchLocked(c.cfg.AuthRetryDelay)
		c.logger.Error("authentication failed", "reason", reason, "retry_in", c.cfg.AuthRetryDelay)

	case domain.EventTypeDisconnected:
		reason := ev.FailureReason()
		c.clearPairingLocked()
		c.launchInFlight = false
		c.lastError = "disconnected: " + reason
		c.transitionLocked(domain.PhaseFailed, "disconnected: "+reason)
		if c.cfg.ReconnectOnDisconnect {
			c.scheduleRelaunchLocked(c.cfg.LaunchRetryDelay)
			c.logger.Warn("client disconnected, relaunch scheduled", "reason", reason, "retry_in", c.cfg.LaunchRetryDelay)
		} else {
			c.logger.Warn("client disconnected, auto-relaunch disabled", "reason", reason)
		}

	case domain.EventTypeError:
		// Client-level errors are informational; the client reports fatal
		// conditions through auth_failed or disconnected.
		c.logger.Error("client error", "reason", ev.FailureReason())
	}
}

// PairingStatus classifies what Pairing returned.
type PairingStatus int

const (
	PairingPending PairingStatus = iota
	PairingAvailable
	PairingExpired
	PairingAlreadyConnected
)

func (s PairingStatus) String() string {
	switch s {
	case PairingPending:
		return "pending"
	case PairingAvailable:
		return "available"
	case PairingExpired:
		return "expired"
	case PairingAlreadyConnected:
		return "already_connected"
	default:
		return "unknown"
	}
}

// Pairing is the result of a pairing query.
type Pairing struct {
	Status    PairingStatus
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pairing returns the current pairing artifact. A code past its TTL is
// cleared and a single relaunch is triggered so the next poll gets a
// fresh one.
func (c *Controller) Pairing() Pairing {
	c.mu.Lock()

	switch {
	case c.phase == domain.PhaseReady:
		c.mu.Unlock()
		return Pairing{Status: PairingAlreadyConnected}

	case c.phase == domain.PhaseAwaitingPairing && c.pairingCode != "":
		issued := c.pairingIssuedAt
		if time.Since(issued) < c.cfg.PairingTTL {
			p := Pairing{
				Status:    PairingAvailable,
				Code:      c.pairingCode,
				IssuedAt:  issued,
				ExpiresAt: issued.Add(c.cfg.PairingTTL),
			}
			c.mu.Unlock()
			return p
		}
		c.clearPairingLocked()
		c.mu.Unlock()
		c.logger.Info("pairing code expired, relaunching")
		go c.Launch()
		return Pairing{Status: PairingExpired}

	default:
		c.mu.Unlock()
		return Pairing{Status: PairingPending}
	}
}

// SendMessage delivers body to recipient through the live client. It fails
// fast with ErrNotReady outside the ready phase and never blocks longer
// than the configured send timeout. A timeout abandons the in-flight send
// rather than cancelling it, and leaves session state untouched: a slow
// send does not mean the session is broken.
func (c *Controller) SendMessage(ctx context.Context, recipient, body string) (string, error) {
	cl, err := c.readyClient()
	if err != nil {
		return "", err
	}

	type sendResult struct {
		id  string
		err error
	}
	done := make(chan sendResult, 1)
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		id, sendErr := cl.SendMessage(sendCtx, recipient, body)
		done <- sendResult{id: id, err: sendErr}
	}()

	timer := time.NewTimer(c.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrSendFailed, r.err)
		}
		return r.id, nil
	case <-timer.C:
		c.logger.Warn("send timed out", "recipient", recipient, "timeout", c.cfg.SendTimeout)
		return "", domain.ErrSendTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ResolveRecipient checks whether an ID maps to a registered account.
func (c *Controller) ResolveRecipient(ctx context.Context, id string) (client.RecipientInfo, error) {
	cl, err := c.readyClient()
	if err != nil {
		return client.RecipientInfo{}, err
	}
	return cl.ResolveRecipient(ctx, id)
}

// ListChats returns up to limit chat summaries from the live client.
func (c *Controller) ListChats(ctx context.Context, limit int) ([]client.ChatSummary, error) {
	cl, err := c.readyClient()
	if err != nil {
		return nil, err
	}
	return cl.ListChats(ctx, limit)
}

func (c *Controller) readyClient() (client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != domain.PhaseReady || c.cl == nil {
		return nil, domain.ErrNotReady
	}
	return c.cl, nil
}

// Restart tears the session down to uninitialized and schedules a fresh
// launch after the restart delay, giving the old browser process time to
// release its profile directory. The old handle is fully destroyed before
// the relaunch timer is armed. A second restart arriving while the first
// is still pending supersedes it; only one relaunch ever fires.
func (c *Controller) Restart() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.invalidateTimersLocked()
	c.cancelLaunchLocked()
	old := c.cl
	c.cl = nil
	c.launchInFlight = false
	c.clearPairingLocked()
	c.lastError = ""
	c.transitionLocked(domain.PhaseUninitialized, "restart requested")
	gen := c.timerGen
	c.mu.Unlock()

	go func() {
		if old != nil {
			c.destroyClient(old)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.timerGen {
			// A newer restart or launch superseded this one.
			return
		}
		c.scheduleRelaunchLocked(c.cfg.RestartDelay)
	}()
}

// Status is a consistent snapshot of the controller state.
type Status struct {
	Phase          domain.Phase
	PairingPending bool
	LaunchInFlight bool
	StartedAt      time.Time
	Uptime         time.Duration
	LastError      string
	Transitions    []domain.PhaseTransition
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	transitions := make([]domain.PhaseTransition, len(c.transitions))
	copy(transitions, c.transitions)

	return Status{
		Phase:          c.phase,
		PairingPending: c.pairingCode != "" && time.Since(c.pairingIssuedAt) < c.cfg.PairingTTL,
		LaunchInFlight: c.launchInFlight,
		StartedAt:      c.startedAt,
		Uptime:         time.Since(c.startedAt),
		LastError:      c.lastError,
		Transitions:    transitions,
	}
}

// Ready reports whether the session can send messages right now.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == domain.PhaseReady
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Shutdown stops all timers and destroys any live client handle. The
// controller accepts no further operations afterwards.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.invalidateTimersLocked()
	c.cancelLaunchLocked()
	old := c.cl
	c.cl = nil
	c.launchInFlight = false
	c.mu.Unlock()

	if old != nil {
		if err := old.Destroy(ctx); err != nil {
			c.logger.Warn("client teardown failed", "error", err)
		}
	}
}

// cancelLaunchLocked aborts the in-flight start operation, if any. A
// cooperative driver unblocks promptly; an uncooperative one is waited out
// by the next launch's completion chain.
func (c *Controller) cancelLaunchLocked() {
	if c.launchCancel != nil {
		c.launchCancel()
		c.launchCancel = nil
	}
}

// invalidateTimersLocked cancels any pending relaunch timer and bumps the
// generation counter so a timer that already fired becomes a no-op.
func (c *Controller) invalidateTimersLocked() {
	c.timerGen++
	if c.relaunchTimer != nil {
		c.relaunchTimer.Stop()
		c.relaunchTimer = nil
	}
}

func (c *Controller) scheduleRelaunchLocked(delay time.Duration) {
	c.invalidateTimersLocked()
	gen := c.timerGen
	c.relaunchTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := c.closed || gen != c.timerGen
		c.mu.Unlock()
		if stale {
			return
		}
		c.Launch()
	})
}

func (c *Controller) clearPairingLocked() {
	c.pairingCode = ""
	c.pairingIssuedAt = time.Time{}
}

func (c *Controller) transitionLocked(to domain.Phase, reason string) {
	from := c.phase
	if from == to {
		return
	}
	if !domain.CanTransition(from, to) {
		c.logger.Warn("unexpected phase transition", "from", from.String(), "to", to.String(), "reason", reason)
	}

	tr := domain.PhaseTransition{From: from, To: to, Reason: reason, Timestamp: time.Now()}
	c.transitions = append(c.transitions, tr)
	if len(c.transitions) > maxTransitionHistory {
		c.transitions = c.transitions[len(c.transitions)-maxTransitionHistory:]
	}
	c.phase = to

	if c.listener != nil {
		c.listener.PhaseChanged(tr)
	}
}

// destroyClient tears a handle down with a bounded timeout. Best effort.
func (c *Controller) destroyClient(cl client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := cl.Destroy(ctx); err != nil {
		c.logger.Warn("client destroy failed", "error", err)
	}
}

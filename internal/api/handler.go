// Package api is the HTTP facade over the session controller. Handlers
// translate requests into controller queries and commands; they never
// mutate lifecycle state directly.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bautibadino/wp-api/internal/client"
	"github.com/bautibadino/wp-api/internal/domain"
	"github.com/bautibadino/wp-api/internal/realtime"
	"github.com/bautibadino/wp-api/internal/session"
)

const defaultChatLimit = 20

// endpointDirectory is returned from / and from unmatched routes.
var endpointDirectory = map[string]string{
	"GET /health":                   "liveness and readiness",
	"GET /api/status":               "current phase, pairing presence, uptime",
	"GET /api/qr":                   "pairing code for linking a new session",
	"POST /api/send-message":        "send a message: {number, message}",
	"GET /api/number-info/{number}": "check whether a number is registered",
	"GET /api/chats":                "chat summaries, ?limit=N",
	"POST /api/restart":             "restart the messaging session",
	"GET /api/events":               "WebSocket stream of phase transitions",
}

// Handler routes REST requests to the session controller.
type Handler struct {
	ctrl   *session.Controller
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewHandler(ctrl *session.Controller, hub *realtime.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ctrl: ctrl, hub: hub, logger: logger}
}

// Routes builds the router with all endpoints and middleware registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.health)
	r.Get("/", h.root)
	r.Get("/api/status", h.status)
	r.Get("/api/qr", h.pairing)
	r.Post("/api/send-message", h.sendMessage)
	r.Get("/api/number-info/{number}", h.numberInfo)
	r.Get("/api/chats", h.listChats)
	r.Post("/api/restart", h.restart)
	r.Get("/api/events", h.phaseEvents)
	r.NotFound(h.notFound)

	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

type healthResponse struct {
	envelope
	Ready         bool    `json:"ready"`
	Phase         string  `json:"phase"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		envelope:      ok("service alive"),
		Ready:         st.Phase == domain.PhaseReady,
		Phase:         st.Phase.String(),
		UptimeSeconds: st.Uptime.Seconds(),
	})
}

type rootResponse struct {
	envelope
	Service   string            `json:"service"`
	Endpoints map[string]string `json:"endpoints"`
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		envelope:  ok("messaging session bridge"),
		Service:   "wp-api",
		Endpoints: endpointDirectory,
	})
}

type transitionJSON struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type statusResponse struct {
	envelope
	Phase          string           `json:"phase"`
	Ready          bool             `json:"ready"`
	PairingPending bool             `json:"pairingPending"`
	LaunchInFlight bool             `json:"launchInFlight"`
	StartedAt      time.Time        `json:"startedAt"`
	UptimeSeconds  float64          `json:"uptimeSeconds"`
	LastError      string           `json:"lastError,omitempty"`
	Transitions    []transitionJSON `json:"transitions"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.Status()

	transitions := make([]transitionJSON, len(st.Transitions))
	for i, tr := range st.Transitions {
		transitions[i] = transitionJSON{
			From:      tr.From.String(),
			To:        tr.To.String(),
			Reason:    tr.Reason,
			Timestamp: tr.Timestamp,
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		envelope:       ok("session status"),
		Phase:          st.Phase.String(),
		Ready:          st.Phase == domain.PhaseReady,
		PairingPending: st.PairingPending,
		LaunchInFlight: st.LaunchInFlight,
		StartedAt:      st.StartedAt,
		UptimeSeconds:  st.Uptime.Seconds(),
		LastError:      st.LastError,
		Transitions:    transitions,
	})
}

type pairingResponse struct {
	envelope
	Status    string     `json:"status"`
	Code      string     `json:"qr,omitempty"`
	IssuedAt  *time.Time `json:"issuedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (h *Handler) pairing(w http.ResponseWriter, r *http.Request) {
	p := h.ctrl.Pairing()

	switch p.Status {
	case session.PairingAlreadyConnected:
		writeJSON(w, http.StatusOK, pairingResponse{
			envelope: ok("session already connected"),
			Status:   p.Status.String(),
		})
	case session.PairingAvailable:
		writeJSON(w, http.StatusOK, pairingResponse{
			envelope:  ok("scan the pairing code before it expires"),
			Status:    p.Status.String(),
			Code:      p.Code,
			IssuedAt:  &p.IssuedAt,
			ExpiresAt: &p.ExpiresAt,
		})
	case session.PairingExpired:
		writeJSON(w, http.StatusNotFound, pairingResponse{
			envelope: fail("pairing code expired, a new one is being generated", ""),
			Status:   p.Status.String(),
		})
	default:
		writeJSON(w, http.StatusNotFound, pairingResponse{
			envelope: fail("pairing code not available yet, try again shortly", ""),
			Status:   p.Status.String(),
		})
	}
}

type sendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type sendMessageResponse struct {
	envelope
	MessageID string `json:"messageId"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Number) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "number and message are required", domain.ErrInvalidRequest.Error())
		return
	}

	id, err := h.ctrl.SendMessage(r.Context(), req.Number, req.Message)
	if err != nil {
		h.writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		envelope:  ok("message sent"),
		MessageID: id,
	})
}

type numberInfoResponse struct {
	envelope
	Exists   bool   `json:"exists"`
	ID       string `json:"id,omitempty"`
	PushName string `json:"pushName,omitempty"`
}

func (h *Handler) numberInfo(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	if strings.TrimSpace(number) == "" {
		writeError(w, http.StatusBadRequest, "number is required", domain.ErrInvalidRequest.Error())
		return
	}

	info, err := h.ctrl.ResolveRecipient(r.Context(), number)
	if err != nil {
		if errors.Is(err, client.ErrRecipientNotFound) {
			writeJSON(w, http.StatusNotFound, numberInfoResponse{
				envelope: fail("number is not registered", ""),
				Exists:   false,
			})
			return
		}
		h.writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, numberInfoResponse{
		envelope: ok("number is registered"),
		Exists:   true,
		ID:       info.ID,
		PushName: info.PushName,
	})
}

type chatListResponse struct {
	envelope
	Count int                  `json:"count"`
	Chats []client.ChatSummary `json:"chats"`
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	limit := defaultChatLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", domain.ErrInvalidRequest.Error())
			return
		}
		limit = parsed
	}

	chats, err := h.ctrl.ListChats(r.Context(), limit)
	if err != nil {
		h.writeControllerError(w, err)
		return
	}
	if chats == nil {
		chats = []client.ChatSummary{}
	}

	writeJSON(w, http.StatusOK, chatListResponse{
		envelope: ok("chats retrieved"),
		Count:    len(chats),
		Chats:    chats,
	})
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Restart()
	writeJSON(w, http.StatusOK, ok("session restart scheduled"))
}

type notFoundResponse struct {
	envelope
	Endpoints map[string]string `json:"endpoints"`
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, notFoundResponse{
		envelope:  fail("endpoint not found", ""),
		Endpoints: endpointDirectory,
	})
}

// writeControllerError maps the controller failure taxonomy to HTTP responses.
func (h *Handler) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, "session not ready, request a pairing code at /api/qr", err.Error())
	case errors.Is(err, domain.ErrSendTimeout):
		writeError(w, http.StatusInternalServerError, "message send timed out, try again shortly", err.Error())
	case errors.Is(err, domain.ErrSendFailed):
		writeError(w, http.StatusInternalServerError, "failed to send message, try again shortly", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request cancelled before the operation completed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

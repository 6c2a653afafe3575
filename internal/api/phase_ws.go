package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bautibadino/wp-api/internal/realtime"
)

var phaseUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const phaseWriteTimeout = 10 * time.Second

// phaseEvents upgrades to WebSocket and streams lifecycle transitions. The
// first frame is a snapshot of the current phase so clients don't have to
// wait for a transition to learn where the session stands.
func (h *Handler) phaseEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := phaseUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub.ID())

	// Reader goroutine: drains control frames and tears the subscription
	// down when the peer goes away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.hub.Unsubscribe(sub.ID())
				return
			}
		}
	}()

	snapshot := realtime.PhaseEvent{
		Phase:     h.ctrl.Phase().String(),
		Timestamp: time.Now(),
	}
	_ = conn.SetWriteDeadline(time.Now().Add(phaseWriteTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	for ev := range sub.Events() {
		_ = conn.SetWriteDeadline(time.Now().Add(phaseWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/playlens/survey-orchestrator/internal/apperrors"
	"github.com/playlens/survey-orchestrator/internal/streaming"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	observerBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are same-deployment dashboards and test harnesses.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWatch attaches a read-only observer to a session's event
// stream. Missed events within the ring are replayed first when the
// client passes last_event_id, then live events follow.
// GET /surveys/interaction/watch?session_id=...&last_event_id=N
func (h *InteractionHandler) handleWatch(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		apperrors.WriteJSON(w, apperrors.InvalidInput("session_id is required", apperrors.FieldError{
			Field: "session_id", Value: "", Reason: "must not be empty",
		}))
		return
	}
	var since uint64
	if raw := r.URL.Query().Get("last_event_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apperrors.WriteJSON(w, apperrors.InvalidInput("last_event_id must be a non-negative integer"))
			return
		}
		since = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	log := h.logger.With(zap.String("session_id", sessionID))
	log.Info("Observer attached", zap.Uint64("since", since))

	ch := h.hub.Subscribe(sessionID, observerBuffer)
	defer h.hub.Unsubscribe(sessionID, ch)

	go readPump(conn)
	writePump(conn, h.hub.ReplaySince(sessionID, since), ch, log)
}

// readPump discards client frames and keeps the pong deadline fresh.
func readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends the replay backlog, then live events, with periodic
// pings. Returns when the subscription channel closes or a write fails.
func writePump(conn *websocket.Conn, backlog []streaming.Event, ch <-chan streaming.Event, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for _, ev := range backlog {
		if err := writeEvent(conn, ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				log.Debug("Observer write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev streaming.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(struct {
		Seq   uint64          `json:"seq"`
		Event streaming.Event `json:"payload"`
	}{Seq: ev.Seq, Event: ev})
}

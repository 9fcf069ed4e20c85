package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
)

// Hub broadcasts change events to connected websocket clients so they can
// trigger a sync instead of polling. Delivery is best effort: a slow or
// dead client is dropped, never waited on.
type Hub struct {
	logger   *events.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan models.ChangeEvent
}

// NewHub creates a notification hub.
func NewHub(logger *events.Logger) *Hub {
	return &Hub{
		logger: logger.WithField("component", "notify_hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]chan models.ChangeEvent),
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	ch := make(chan models.ChangeEvent, 16)

	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	h.logger.Debug("Notification client connected")

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()

	go func() {
		for ev := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string) {
	ev := models.ChangeEvent{Event: event, Timestamp: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.conns {
		select {
		case ch <- ev:
		default:
			// Client is not keeping up; disconnect it.
			delete(h.conns, conn)
			close(ch)
			conn.Close()
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, ch := range h.conns {
		delete(h.conns, conn)
		close(ch)
		conn.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		close(ch)
	}
	conn.Close()
}

// Package server publishes the event stream to WebSocket clients and
// exposes Prometheus metrics over HTTP.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chaz8081/gostt-live/internal/events"
	"github.com/chaz8081/gostt-live/internal/metrics"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// Message is the wire form of one event. Payload is the chunk path for
// new-chunk events and the typed payload otherwise.
type Message struct {
	Event     events.Kind `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   any         `json:"payload"`
}

// NewMessage converts an event to its wire form.
func NewMessage(ev events.Event) Message {
	msg := Message{Event: ev.Kind, SessionID: ev.SessionID}
	switch ev.Kind {
	case events.KindTranscription:
		msg.Payload = ev.Transcription
	case events.KindAnalysis:
		msg.Payload = ev.Analysis
	default:
		msg.Payload = ev.Chunk
	}
	return msg
}

// Hub fans events out to every connected WebSocket client. A client that
// cannot keep up is disconnected instead of slowing the others.
type Hub struct {
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Handle broadcasts ev. It has the events.Handler signature.
func (h *Hub) Handle(ev events.Event) {
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		slog.Error("[SERVER] encoding event failed", "kind", ev.Kind, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("[SERVER] client too slow, disconnecting", "remote", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("[SERVER] websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	slog.Info("[SERVER] client connected", "remote", conn.RemoteAddr(), "clients", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// readLoop discards client messages; it returns when the connection drops.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("[SERVER] write failed", "remote", c.conn.RemoteAddr(), "error", err)
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked drops c from the hub (caller must hold mu).
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
	h.metrics.SetSubscribers(len(h.clients))
	slog.Info("[SERVER] client disconnected", "remote", c.conn.RemoteAddr(), "clients", len(h.clients))
}

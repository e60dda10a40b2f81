// Package ws pushes market lifecycle events to connected web front ends over
// WebSocket. Clients are consumers only: the feed carries market_created,
// entry_placed, market_settled and market_cancelled events as JSON.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osmowager/wagerbot/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufferSize is the per-client buffer for outgoing events. Slow
	// clients that fall this far behind are dropped.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API-key middleware in front of /ws is the access control.
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans ledger events out to every connected client. It implements
// domain.EventSink so the engine can publish into it directly.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]bool
	broadcast chan []byte
	logger    *slog.Logger
}

// NewHub creates a Hub. Run must be started before events flow.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:   make(map[*client]bool),
		broadcast: make(chan []byte, 256),
		logger:    logger.With(slog.String("component", "ws")),
	}
}

// Publish queues the event for broadcast. It never blocks: when the hub's
// buffer is full the event is dropped, since the feed is advisory and the
// ledger itself is the source of truth.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event not serializable", slog.String("type", ev.Type))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("event feed backlogged, dropping event",
			slog.String("type", ev.Type),
			slog.Int64("market_id", ev.MarketID),
		)
	}
}

// Run pumps broadcast events to all clients until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client too slow; drop it rather than block the feed.
					go h.remove(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWS upgrades the HTTP request and registers the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.logger.Info("websocket client connected", slog.String("remote", r.RemoteAddr))
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}

// readPump drains and discards client messages, keeping the pong handler
// alive so dead connections are detected.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*Hub)(nil)

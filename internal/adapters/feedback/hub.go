package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	defaultBufferSize = 64
)

// Hub streams feedback events to websocket clients. Clients whose send
// buffer fills up are dropped.
type Hub struct {
	logger     logger.Logger
	bufferSize int
	upgrader   websocket.Upgrader

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done <-chan struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the per-client and broadcast buffer size.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithHubLogger sets the hub logger.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a Hub; Run must be started before clients connect.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger:     logger.Nop(),
		bufferSize: defaultBufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.broadcast = make(chan []byte, h.bufferSize)
	return h
}

// Run owns the client set until ctx is done, then disconnects everyone.
// A hub can be run again after a previous Run returned.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	select {
	case <-h.done:
		h.done = make(chan struct{})
	default:
	}
	done := h.done
	h.mu.Unlock()
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateCount()
			h.logger.Info(ctx, "feedback client connected", logger.Int("clients", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Info(ctx, "feedback client disconnected", logger.Int("clients", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
					h.logger.Warn(ctx, "dropped slow feedback client")
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.updateCount()
}

func (h *Hub) updateCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
	metrics.UpdateWebsocketClients(h.count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Emit queues e for every client. It never blocks; when the broadcast
// buffer is full the event is dropped.
func (h *Hub) Emit(e model.FeedbackEvent) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		metrics.RecordErrorByComponent("feedback", "broadcast_full")
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	h.mu.RLock()
	done := h.done
	h.mu.RUnlock()
	c := &client{conn: conn, send: make(chan []byte, h.bufferSize), done: done}
	select {
	case h.register <- c:
	case <-done:
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames; it exists to notice disconnects and pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-c.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

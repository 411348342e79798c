// Package feed pushes display projections to screens over websockets.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultSendBuffer   = 16
	maxMessageSize      = 1 << 10
)

// Source publishes display projections.
type Source interface {
	Display() service.Display
	Watch(fn func(service.Display)) (cancel func())
}

// Option configures a Hub.
type Option func(*Hub)

// WithWriteTimeout bounds a single websocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithPongWait sets how long a silent client is kept. Pings go out at 9/10 of it.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithSendBuffer sets how many frames may queue per client before it is dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// Hub fans every projection out to connected screens. A client whose
// buffer is full is disconnected rather than allowed to stall the machine.
type Hub struct {
	source       Source
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pongWait     time.Duration
	sendBuffer   int
	log          logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	cancel  func()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a hub over source. Call Start to begin broadcasting.
func NewHub(source Source, opts ...Option) *Hub {
	h := &Hub{
		source: source,
		upgrader: websocket.Upgrader{
			// Screens are served from other origins on the venue network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeTimeout: defaultWriteTimeout,
		pongWait:     defaultPongWait,
		sendBuffer:   defaultSendBuffer,
		log:          logger.Nop(),
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start subscribes the hub to the source.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel == nil {
		h.cancel = h.source.Watch(h.broadcast)
	}
}

// Close unsubscribes and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, c := range clients {
		h.remove(c)
	}
}

// Clients is the number of connected screens.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams projections until the client
// goes away. The current projection is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		metrics.RecordErrorByComponent("feed", "upgrade")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.sendBuffer)}
	if msg, err := encode(h.source.Display()); err == nil {
		c.send <- msg
	}
	h.add(c)

	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) broadcast(d service.Display) {
	msg, err := encode(d)
	if err != nil {
		h.log.Error(context.Background(), "encode display failed", logger.Error(err))
		return
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		metrics.RecordFeedDropped()
		h.log.Warn(context.Background(), "dropping slow screen", logger.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateFeedClients(n)
}

// remove is safe to call more than once per client.
func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		close(c.send)
		h.mu.Unlock()
		metrics.UpdateFeedClients(n)
		_ = c.conn.Close()
	})
}

// readLoop discards client frames and keeps the read deadline alive on pong.
func (h *Hub) readLoop(ctx context.Context, c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug(ctx, "screen disconnected", logger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(d service.Display) ([]byte, error) {
	return json.Marshal(d)
}

// Package ws serves the replay protocol over WebSocket. Each connection gets
// a server-assigned client id, a bounded send queue drained by one writer
// goroutine, and a reader that dispatches control messages to the streamer.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/banshee-data/traffic.replay/internal/monitoring"
	"github.com/banshee-data/traffic.replay/internal/protocol"
	"github.com/banshee-data/traffic.replay/internal/session"
)

var logf = monitoring.Prefixed("WS")

// Default connection constants.
const (
	DefaultMaxConnections = 100
	DefaultSendBuffer     = 256
	DefaultWriteWait      = 10 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	DefaultInboundRate    = 20 // control messages per second
	DefaultInboundBurst   = 40
)

// Config tunes the hub.
type Config struct {
	MaxConnections int
	SendBuffer     int
	WriteWait      time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	InboundRate    float64
	InboundBurst   int
	// CheckOrigin overrides the upgrader's origin check; nil allows all
	// origins, matching the development frontend setup.
	CheckOrigin func(r *http.Request) bool
}

func (c *Config) defaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.InboundRate <= 0 {
		c.InboundRate = DefaultInboundRate
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = DefaultInboundBurst
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// Stats reports hub occupancy.
type Stats struct {
	ActiveConnections int      `json:"active_connections"`
	MaxConnections    int      `json:"max_connections"`
	ActiveStreams     int      `json:"active_streams"`
	ClientIDs         []string `json:"client_ids"`
}

// Hub accepts WebSocket connections and routes their control messages.
type Hub struct {
	cfg      Config
	streamer *session.Streamer
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub that starts streams on streamer.
func NewHub(cfg Config, streamer *session.Streamer) *Hub {
	cfg.defaults()
	return &Hub{
		cfg:      cfg,
		streamer: streamer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		clients: make(map[string]*Client),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.clients) >= h.cfg.MaxConnections
	closed := h.closed
	h.mu.Unlock()
	if closed || full {
		logf("refusing connection from %s: %d/%d connections", r.RemoteAddr, h.Len(), h.cfg.MaxConnections)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Limit(h.cfg.InboundRate), h.cfg.InboundBurst),
	}
	h.register(c)
	logf("client %s connected from %s", c.id, r.RemoteAddr)

	go c.writePump()
	if err := c.Send(ctx, protocol.Connected(c.id)); err != nil {
		logf("failed to greet client %s: %v", c.id, err)
	}
	c.readPump()

	// readPump returned: the connection is gone.
	stopped := h.streamer.StopClient(c.id)
	c.close()
	h.unregister(c)
	logf("client %s disconnected (%d streams cancelled)", c.id, stopped)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Stats snapshots the hub.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	return Stats{
		ActiveConnections: len(ids),
		MaxConnections:    h.cfg.MaxConnections,
		ActiveStreams:     h.streamer.Active(),
		ClientIDs:         ids,
	}
}

// Close refuses new connections and closes every open one.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	monitoring.WSConnectionOpened()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if ok {
		monitoring.WSConnectionClosed()
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Per-client queue; slow clients are dropped once it is full
	clientQueueSize = 256
)

// Message types sent to clients.
const (
	MessageState   = "state"
	MessageTick    = "tick"
	MessageStart   = "start"
	MessagePause   = "pause"
	MessageRestart = "restart"
	MessageEnd     = "end"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS middleware handles origin policy
		return true
	},
}

// WebSocketMessage is one event sent to clients.
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// clientMessage is what clients may send: pointer moves.
type clientMessage struct {
	Type    string  `json:"type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Engaged bool    `json:"engaged"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans simulation events out to every connected client.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	// tick events are thinned to every Nth
	every  uint64
	ticks  atomic.Uint64
	closed chan struct{}

	// onPointer receives pointer moves sent by clients; nil ignores them
	onPointer func(pos r2.Vec, engaged bool)

	mu sync.RWMutex
}

// NewHub creates a hub that forwards every Nth tick event. Lifecycle events
// are always forwarded.
func NewHub(every int) *Hub {
	if every < 1 {
		every = 1
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, clientQueueSize),
		every:      uint64(every),
		closed:     make(chan struct{}),
	}
}

// OnPointer routes pointer messages from clients to fn.
func (h *Hub) OnPointer(fn func(pos r2.Vec, engaged bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPointer = fn
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.closed)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Inc()
			logger.Info("WebSocket client connected", "total_clients", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				logger.Info("WebSocket client disconnected", "total_clients", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			sent := 0
			for client := range h.clients {
				select {
				case client.send <- message:
					sent++
				default:
					// Client's send buffer is full, close the connection
					logger.Warn("WebSocket client too slow, disconnecting")
					h.drop(client)
				}
			}
			h.mu.Unlock()
			metrics.WebSocketMessagesSent.Add(float64(sent))
		}
	}
}

// drop removes a client. The caller holds h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	metrics.WebSocketConnections.Dec()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues a message for every client. It never blocks: when the
// queue is full the message is dropped.
func (h *Hub) Publish(msgType string, payload any) {
	if msgType == MessageTick && h.ticks.Add(1)%h.every != 0 {
		return
	}
	data, err := json.Marshal(WebSocketMessage{Type: msgType, Payload: payload})
	if err != nil {
		logger.Error("Failed to marshal WebSocket message", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.closed:
	default:
		logger.Debug("WebSocket broadcast queue full, dropping message", "type", msgType)
	}
}

// Callbacks returns engine callbacks that publish lifecycle events.
func (h *Hub) Callbacks() engine.Callbacks {
	return engine.Callbacks{
		OnStart:   func() { h.Publish(MessageStart, nil) },
		OnTick:    func(ev engine.TickEvent) { h.Publish(MessageTick, ev) },
		OnPause:   func() { h.Publish(MessagePause, nil) },
		OnRestart: func() { h.Publish(MessageRestart, nil) },
		OnEnd:     func() { h.Publish(MessageEnd, nil) },
	}
}

// readPump reads pointer messages until the connection closes.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.closed:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket unexpected close", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "pointer" {
			continue
		}
		c.hub.mu.RLock()
		fn := c.hub.onPointer
		c.hub.mu.RUnlock()
		if fn != nil {
			fn(r2.Vec{X: msg.X, Y: msg.Y}, msg.Engaged)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// WebSocketHandler upgrades clients onto the event stream.
type WebSocketHandler struct {
	hub *Hub
	sim Simulation
}

// NewWebSocketHandler creates a handler for a running hub.
func NewWebSocketHandler(hub *Hub, sim Simulation) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, sim: sim}
}

// HandleWebSocket upgrades the connection, sends the current state and then
// streams events.
// GET /api/ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		logger.WarnContext(r.Context(), "Failed to upgrade to WebSocket", "error", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, clientQueueSize),
	}

	// The initial state goes first so clients can render before the next tick.
	if data, err := json.Marshal(WebSocketMessage{Type: MessageState, Payload: h.sim.Stats()}); err == nil {
		client.send <- data
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.closed:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

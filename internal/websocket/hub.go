package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain"
	"github.com/satriahrh/kundli/server/internal/auth"
	"github.com/satriahrh/kundli/server/internal/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. One message carries a whole
	// recorded turn.
	maxMessageSize = 8 * 1024 * 1024

	sendBufferSize = 256
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Mobile clients do not send a browser origin; the token is the gate.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub tracks connected voice clients and hands each one to the mediator
// registry.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	stopped chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	registry  *realtime.Registry
	issuer    *auth.Issuer
	validator *MessageValidator

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(registry *realtime.Registry, issuer *auth.Issuer, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		registry:   registry,
		issuer:     issuer,
		validator:  NewMessageValidator(maxMessageSize),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("userID", client.userID))

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) track(ch chan *Client, client *Client) {
	select {
	case ch <- client:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its mediator.
// It implements realtime.Sink.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the mediator is done with this client.
	quit chan struct{}

	userID   string
	mediator *realtime.Mediator

	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Send queues a server event for the write pump
func (c *Client) Send(msg domain.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close asks the write pump to flush and close the socket. Safe to call more
// than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.quit)
}

// HandleWebSocket authenticates and upgrades a voice connection. The token is
// read from the Authorization header or the token query parameter.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	token := auth.BearerToken(c.Request().Header.Get("Authorization"))
	if token == "" {
		token = c.QueryParam("token")
	}
	claims, err := hub.issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket authentication failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, sendBufferSize),
		quit:   make(chan struct{}),
		userID: claims.UserID,
		logger: logger.With(zap.String("userID", claims.UserID)),
	}
	client.mediator = hub.registry.Attach(claims.UserID, client)

	hub.track(hub.register, client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the mediator.
func (c *Client) readPump() {
	defer func() {
		c.mediator.Detach()
		c.hub.track(c.hub.unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			// A raw binary frame is one recorded turn with no format hint.
			c.mediator.OnClientAudio(message, "")
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}

		select {
		case <-c.mediator.Done():
			return
		default:
		}
	}
}

// writePump pumps messages from the mediator to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.quit:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message WriteData) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(message.Type, message.Payload)
}

// flush writes whatever is still queued, so a final error event reaches the
// app before the close frame.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// processMessage validates a JSON event and forwards it to the mediator
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected client message", zap.Error(err))
		c.Send(domain.ErrorMessage(err.Error()))
		return
	}
	c.mediator.Handle(msg)
}

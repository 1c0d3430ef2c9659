// Package realtime dials the upstream realtime endpoint over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/realtime"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	maxMessageSize   = 16 * 1024 * 1024
)

var (
	// ErrUnauthorized is returned when the upstream rejects the credential
	ErrUnauthorized = errors.New("realtime: upstream rejected credentials")
	// ErrClosed is returned by Read and Send after the connection closed
	ErrClosed = errors.New("realtime: connection closed")
)

// Dialer opens authenticated upstream sessions
type Dialer struct {
	endpoint string
	apiKey   string
	model    string
	dialer   websocket.Dialer
	logger   *zap.Logger
}

// NewDialer creates a dialer for endpoint; the model is appended as a query parameter
func NewDialer(endpoint, apiKey, model string, logger *zap.Logger) *Dialer {
	return &Dialer{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dialer:   websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:   logger,
	}
}

// URL returns the endpoint with the model query parameter
func (d *Dialer) URL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial implements repositories.RealtimeDialer
func (d *Dialer) Dial(ctx context.Context) (repositories.RealtimeConn, error) {
	wsURL, err := d.URL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+d.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			d.logger.Warn("Realtime connection failed", zap.Int("status", resp.StatusCode))
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
			}
		}
		return nil, fmt.Errorf("failed to connect to realtime endpoint: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	d.logger.Debug("Connected to realtime endpoint", zap.String("model", d.model))
	return &Conn{conn: conn, closed: make(chan struct{})}, nil
}

// Conn is one upstream session. Writes are serialized; reads must come from one goroutine.
type Conn struct {
	conn   *websocket.Conn
	writeM sync.Mutex
	once   sync.Once
	closed chan struct{}
}

// Send implements repositories.RealtimeConn
func (c *Conn) Send(ctx context.Context, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode realtime event: %w", err)
	}

	c.writeM.Lock()
	defer c.writeM.Unlock()

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send realtime event: %w", err)
	}
	return nil
}

// Read implements repositories.RealtimeConn. It unblocks when the context is
// cancelled by closing the connection.
func (c *Conn) Read(ctx context.Context) (realtime.ServerEvent, error) {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return realtime.ServerEvent{}, ErrClosed
			default:
			}
			return realtime.ServerEvent{}, fmt.Errorf("failed to read realtime event: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var event realtime.ServerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return realtime.ServerEvent{}, fmt.Errorf("failed to decode realtime event: %w", err)
		}
		return event, nil
	}
}

// Close implements repositories.RealtimeConn
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.writeM.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeM.Unlock()
		err = c.conn.Close()
	})
	return err
}

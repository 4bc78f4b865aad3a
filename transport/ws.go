package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSChannel is the reference Channel implementation over a WebSocket,
// built directly on ws.Dial and wsutil.ReadServerText/WriteClientText.
type WSChannel struct {
	endpoint string
	headers  http.Header

	mu   sync.Mutex
	conn net.Conn
}

// NewWSChannel builds an unopened channel for one WebSocket connection
// attempt. headers are sent as the HTTP upgrade request's headers
// (bearer auth lives here, not in a frame).
func NewWSChannel(endpoint string, headers http.Header) *WSChannel {
	return &WSChannel{endpoint: endpoint, headers: headers}
}

// WSDialer implements Dialer by constructing a fresh WSChannel per call.
type WSDialer struct{}

func (WSDialer) Dial(endpoint string, headers map[string]string) Channel {
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return NewWSChannel(endpoint, h)
}

func (c *WSChannel) Open(ctx context.Context) error {
	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(c.headers)}
	conn, _, _, err := dialer.Dial(ctx, c.endpoint)
	if err != nil {
		return fmt.Errorf("transport: websocket dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *WSChannel) ReadMessage(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("transport: channel not open")
	}
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		return nil, fmt.Errorf("transport: read: %w", err)
	}
	return data, nil
}

func (c *WSChannel) WriteMessage(_ context.Context, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: channel not open")
	}
	if err := wsutil.WriteClientText(conn, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *WSChannel) Close(_ int, _ string) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

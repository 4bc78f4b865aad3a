// Package transport defines the framed duplex channel the session layer
// dials and reads from, plus a WebSocket reference implementation.
package transport

import "context"

// Channel transports opaque text frames in both directions over a
// persistent bidirectional byte stream. It performs no retry and no
// framing beyond the message boundaries the underlying stream already
// provides; failure is always surfaced by ReadMessage returning an error.
type Channel interface {
	// Open dials the endpoint and blocks until the channel is usable.
	Open(ctx context.Context) error

	// ReadMessage blocks for the next frame. It returns an error when the
	// channel closes, involuntarily or otherwise.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends one frame.
	WriteMessage(ctx context.Context, data []byte) error

	// Close closes the channel. code/reason follow WebSocket close-frame
	// conventions but are advisory for non-WebSocket implementations.
	Close(code int, reason string) error
}

// Dialer builds a fresh, unopened Channel for one connection attempt.
// session.Connection calls this once per dial/reconnect so that a closed
// channel is never reused.
type Dialer interface {
	Dial(endpoint string, headers map[string]string) Channel
}

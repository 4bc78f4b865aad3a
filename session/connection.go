// Package session owns the reconnecting host connection: dialing,
// auth headers, backoff-driven retry, and a stable identity across
// reconnects. Unlike a one-shot RPC client that dials once and gives up
// on failure, Connection's read loop treats a transport error as a
// signal to redial rather than a fatal condition.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/alexdanilowicz/trigger.dev/backoff"
	"github.com/alexdanilowicz/trigger.dev/ident"
	"github.com/alexdanilowicz/trigger.dev/transport"
)

// FrameHandler receives decoded inbound bytes off the channel's read loop.
// Implemented by rpc.Client.
type FrameHandler interface {
	HandleFrame(ctx context.Context, data []byte)
}

// Connection wraps a transport.Channel with session semantics: dial with
// a bearer header, reconnect with fixed unbounded backoff on involuntary
// close, and re-run the OnReconnect hook on every new channel before
// signaling Ready. Write does not wait on Ready: outbound frames written
// while a reconnect handshake is still in flight go straight to the new
// channel.
type Connection struct {
	endpoint string
	headers  map[string]string
	dialer   transport.Dialer
	logger   *slog.Logger
	strategy backoff.Strategy

	sessionID ident.ID
	handler   FrameHandler

	// onReconnect re-runs the registration handshake against the new
	// channel. Connection will not mark itself ready until this
	// succeeds; it keeps retrying the whole reconnect cycle if it fails.
	onReconnect func(ctx context.Context) error

	mu         sync.Mutex
	channel    transport.Channel
	userClosed atomic.Bool

	readyMu sync.Mutex
	readyCh chan struct{}

	closeMu  sync.Mutex
	onCloseL []func()
}

// New builds a Connection. sessionID is reused across reconnects so the
// server can resume state; pass ident.Nil to have one generated.
func New(endpoint string, headers map[string]string, dialer transport.Dialer, sessionID ident.ID, logger *slog.Logger) *Connection {
	if sessionID.IsNil() {
		sessionID = ident.NewSessionID()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connection{
		endpoint:  endpoint,
		headers:   headers,
		dialer:    dialer,
		logger:    logger,
		strategy:  backoff.NewConstant(3 * time.Second),
		sessionID: sessionID,
		readyCh:   make(chan struct{}),
	}
}

// SessionID returns the stable identity carried across reconnects.
func (c *Connection) SessionID() ident.ID { return c.sessionID }

// SetHandler installs the frame handler. Must be called before Connect.
func (c *Connection) SetHandler(h FrameHandler) { c.handler = h }

// SetOnReconnect installs the re-handshake hook run after every
// successful reconnect, before Ready() is signaled.
func (c *Connection) SetOnReconnect(fn func(ctx context.Context) error) { c.onReconnect = fn }

// OnClose registers an observer invoked whenever the channel closes,
// voluntarily or otherwise.
func (c *Connection) OnClose(fn func()) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	c.onCloseL = append(c.onCloseL, fn)
}

// Ready returns a channel that is closed once the connection has a live,
// handshaked channel. A fresh (unclosed) channel is swapped in during
// every reconnect attempt, so callers should re-fetch Ready() after
// waiting on it once if they intend to wait again across a later
// disconnect.
func (c *Connection) Ready() <-chan struct{} {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	return c.readyCh
}

func (c *Connection) markReady() {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	select {
	case <-c.readyCh:
	default:
		close(c.readyCh)
	}
}

func (c *Connection) markNotReady() {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	select {
	case <-c.readyCh:
		c.readyCh = make(chan struct{})
	default:
	}
}

// Connect dials the endpoint once, blocking until the channel opens. It
// does not retry; the caller is expected to treat a dial failure here as
// a fatal startup error.
func (c *Connection) Connect(ctx context.Context) error {
	ch := c.dialer.Dial(c.endpoint, c.headers)
	if err := ch.Open(ctx); err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}
	c.mu.Lock()
	c.channel = ch
	c.mu.Unlock()

	c.markReady()
	go c.readLoop(ch)
	return nil
}

// Write sends one already-encoded frame over the current channel.
func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("session: no active channel")
	}
	return ch.WriteMessage(ctx, data)
}

func (c *Connection) readLoop(ch transport.Channel) {
	ctx := context.Background()
	for {
		data, err := ch.ReadMessage(ctx)
		if err != nil {
			if c.userClosed.Load() {
				c.notifyClose()
				return
			}
			c.mu.Lock()
			current := c.channel == ch
			c.mu.Unlock()
			if !current {
				// ch was already abandoned for a newer channel (e.g. a
				// reconnect handshake failure closed it after swapping
				// it in); that reconnect attempt owns recovering from
				// this, so don't kick off a second one.
				return
			}
			c.logger.Warn("session: read error", slog.String("error", err.Error()))
			c.notifyClose()
			c.reconnect()
			return
		}
		if c.handler != nil {
			c.handler.HandleFrame(ctx, data)
		}
	}
}

func (c *Connection) notifyClose() {
	c.closeMu.Lock()
	observers := append([]func(){}, c.onCloseL...)
	c.closeMu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// reconnect retries the dial+handshake cycle forever with fixed backoff,
// per the unbounded-retry policy involuntary disconnects require.
func (c *Connection) reconnect() {
	c.markNotReady()
	attempt := 0
	_ = retry.Do(
		func() error {
			attempt++
			ctx := context.Background()
			ch := c.dialer.Dial(c.endpoint, c.headers)
			if err := ch.Open(ctx); err != nil {
				c.logger.Warn("session: reconnect dial failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
				return err
			}

			// Swap in the new channel and start reading from it before
			// running the handshake: onReconnect writes over Write, which
			// always targets c.channel, so the handshake would otherwise
			// be sent on the stale, already-failed channel.
			c.mu.Lock()
			c.channel = ch
			c.mu.Unlock()
			go c.readLoop(ch)

			if c.onReconnect != nil {
				if err := c.onReconnect(ctx); err != nil {
					c.logger.Warn("session: reconnect handshake failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
					// Abandon ch before closing it: closing wakes its
					// readLoop, and it must see this channel is no longer
					// current so it doesn't fire a second, overlapping
					// reconnect on top of the one already running here.
					c.mu.Lock()
					c.channel = nil
					c.mu.Unlock()
					_ = ch.Close(1011, "handshake failed")
					return err
				}
			}
			c.markReady()
			c.logger.Info("session: reconnected", slog.String("session_id", c.sessionID.String()))
			return nil
		},
		retry.Attempts(0),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.strategy.Delay(int(n) + 1)
		}),
		retry.LastErrorOnly(true),
	)
}

// Close tears down the connection and suppresses further reconnects.
func (c *Connection) Close() error {
	c.userClosed.Store(true)
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close(1000, "closed by client")
}

// Package rpc implements the schema-validated bidirectional RPC layer:
// outbound calls (validated, correlated, retried on timeout) and inbound
// calls (validated, dispatched to a registered handler, acknowledged).
// A single sync.Map of pending response channels handles outbound
// correlation; inbound dispatch resolves a frame's method name to a
// registered handler. Both directions share the same wire.Codec.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexdanilowicz/trigger.dev/wire"
)

// HandlerFunc handles one server→client method. It returns the response
// payload (nil for none) and an error; Dispatch turns a non-nil error
// into an error response frame instead of a panic.
type HandlerFunc func(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error)

// Writer sends already-encoded bytes to the orchestrator. Implemented by
// *session.Connection; kept as a narrow interface here so rpc does not
// import session (session declares its own FrameHandler interface, which
// Client satisfies, so neither package imports the other).
type Writer interface {
	Write(ctx context.Context, data []byte) error
}

// Client is the bidirectional RPC layer bound to one wire.Codec and one
// Writer. A Client survives reconnects: ResetConnection swaps the Writer
// without discarding registered resolvers, so in-flight awaits that
// outlive a reconnect are retried rather than dropped.
type Client struct {
	codec  wire.Codec
	logger *slog.Logger
	timeout time.Duration

	tracer     trace.Tracer
	callCount  metric.Int64Counter
	callErrors metric.Int64Counter

	mu     sync.RWMutex
	writer Writer

	writeMu sync.Mutex // serializes frame writes onto the Writer

	pending sync.Map // frame ID -> chan *wire.Frame

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc
}

// Option configures a Client.
type Option func(*Client)

func WithCodec(c wire.Codec) Option { return func(cl *Client) { cl.codec = c } }
func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }
func WithTimeout(d time.Duration) Option { return func(cl *Client) { cl.timeout = d } }
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) { cl.tracer = tp.Tracer("trigger.dev/rpc") }
}
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cl *Client) {
		meter := mp.Meter("trigger.dev/rpc")
		cl.callCount, _ = meter.Int64Counter("rpc.calls")
		cl.callErrors, _ = meter.Int64Counter("rpc.errors")
	}
}

// New builds a Client. The writer is unset until ResetConnection is
// called so a Client can be constructed before the first dial.
func New(opts ...Option) *Client {
	c := &Client{
		codec:    wire.GetCodec(wire.CodecNameJSON),
		logger:   slog.Default(),
		timeout:  30 * time.Second,
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("trigger.dev/rpc")
	}
	return c
}

// ResetConnection rebinds the Client to a new Writer after a reconnect,
// without touching the pending map: in-flight awaits survive and are
// fulfilled by the server's replay.
func (c *Client) ResetConnection(w Writer) {
	c.mu.Lock()
	c.writer = w
	c.mu.Unlock()
}

// Handle registers fn for an inbound (server→client) method.
func (c *Client) Handle(method string, fn HandlerFunc) {
	c.handlersMu.Lock()
	c.handlers[method] = fn
	c.handlersMu.Unlock()
}

// Send issues a client→server call. Fire-and-forget methods write and
// return immediately; everything else blocks for the correlated response,
// retrying indefinitely on timeout (per the host-level outbound retry
// policy) until ctx is done.
func (c *Client) Send(ctx context.Context, method, runID, key string, payload any) (json.RawMessage, error) {
	m, ok := wire.ClientMethods[method]
	if !ok {
		return nil, fmt.Errorf("rpc: unknown client method %q", method)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %s payload: %w", method, err)
	}
	if err := m.Validate(raw); err != nil {
		return nil, fmt.Errorf("rpc: %s request: %w", method, err)
	}

	ctx, span := c.tracer.Start(ctx, "rpc."+method)
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", method), attribute.String("rpc.run_id", runID))

	if wire.IsFireAndForget(method) {
		frame := wire.NewRequestFrame(wire.NewFrameID(), method, runID, key, raw)
		err := c.write(ctx, frame)
		c.recordOutcome(ctx, method, err)
		return nil, err
	}

	var respPayload json.RawMessage
	err = retry.Do(
		func() error {
			frame := wire.NewRequestFrame(wire.NewFrameID(), method, runID, key, raw)
			respCh := make(chan *wire.Frame, 1)
			c.pending.Store(frame.ID, respCh)
			defer c.pending.Delete(frame.ID)

			if writeErr := c.write(ctx, frame); writeErr != nil {
				return writeErr
			}

			select {
			case resp := <-respCh:
				if resp.OK != nil && !*resp.OK {
					msg := "unknown error"
					if resp.Error != nil {
						msg = resp.Error.Message
					}
					return &RejectError{Method: method, Message: msg}
				}
				if valErr := m.ValidateResponse(resp.Payload); valErr != nil {
					return fmt.Errorf("rpc: %s response: %w", method, valErr)
				}
				respPayload = resp.Payload
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.timeout):
				return &TimeoutError{Method: method}
			}
		},
		retry.Attempts(0),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var te *TimeoutError
			return errors.As(err, &te)
		}),
		retry.LastErrorOnly(true),
	)
	c.recordOutcome(ctx, method, err)
	return respPayload, err
}

func (c *Client) write(ctx context.Context, frame *wire.Frame) error {
	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("rpc: encode frame: %w", err)
	}
	c.mu.RLock()
	w := c.writer
	c.mu.RUnlock()
	if w == nil {
		return fmt.Errorf("rpc: no active writer")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return w.Write(ctx, data)
}

func (c *Client) recordOutcome(ctx context.Context, method string, err error) {
	if c.callCount != nil {
		c.callCount.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	}
	if err != nil && c.callErrors != nil {
		c.callErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
	}
}

// HandleFrame implements session.FrameHandler. It decodes the frame and
// routes it to Dispatch (requests) or the correlated resolver
// (responses), in arrival order relative to other frames off the same
// channel.
func (c *Client) HandleFrame(ctx context.Context, data []byte) {
	frame, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("rpc: invalid frame", slog.String("error", err.Error()))
		return
	}

	switch frame.Kind {
	case wire.KindResponse:
		if val, ok := c.pending.Load(frame.ID); ok {
			ch := val.(chan *wire.Frame) //nolint:errcheck // pending always stores chan *wire.Frame
			select {
			case ch <- frame:
			default:
			}
		}
	case wire.KindRequest:
		c.Dispatch(ctx, frame)
	}
}

// Dispatch handles one inbound server→client request frame: validates it
// against the catalogue, invokes the registered handler, and writes back
// an ack/error response. A slow handler runs on its own goroutine so it
// cannot stall frame delivery for other runs.
func (c *Client) Dispatch(ctx context.Context, frame *wire.Frame) {
	go c.dispatchOne(ctx, frame)
}

func (c *Client) dispatchOne(ctx context.Context, frame *wire.Frame) {
	ctx, span := c.tracer.Start(ctx, "rpc."+frame.Method)
	defer span.End()

	m, ok := wire.ServerMethods[frame.Method]
	if !ok {
		c.logger.Warn("rpc: unknown server method", slog.String("method", frame.Method))
		return
	}
	if err := m.Validate(frame.Payload); err != nil {
		c.respondError(ctx, frame, "ValidationError", err.Error())
		return
	}

	c.handlersMu.RLock()
	handler, ok := c.handlers[frame.Method]
	c.handlersMu.RUnlock()
	if !ok {
		c.logger.Warn("rpc: no handler registered", slog.String("method", frame.Method))
		c.respondOK(ctx, frame, nil)
		return
	}

	result, err := handler(ctx, frame.RunID, frame.Key, frame.Payload)
	c.recordOutcome(ctx, frame.Method, err)
	if err != nil {
		c.respondError(ctx, frame, "HandlerError", err.Error())
		return
	}
	if result == nil {
		result = json.RawMessage("true")
	}
	c.respondOK(ctx, frame, result)
}

func (c *Client) respondOK(ctx context.Context, frame *wire.Frame, payload json.RawMessage) {
	resp := wire.NewOKResponse(frame.ID, frame.RunID, frame.Key, payload)
	if err := c.write(ctx, resp); err != nil {
		c.logger.Warn("rpc: failed to write ok response", slog.String("error", err.Error()))
	}
}

func (c *Client) respondError(ctx context.Context, frame *wire.Frame, name, message string) {
	resp := wire.NewErrorResponse(frame.ID, frame.RunID, frame.Key, wire.ErrorDetail{Name: name, Message: message})
	if err := c.write(ctx, resp); err != nil {
		c.logger.Warn("rpc: failed to write error response", slog.String("error", err.Error()))
	}
}

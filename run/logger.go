package run

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/alexdanilowicz/trigger.dev/backoff"
	"github.com/alexdanilowicz/trigger.dev/rpc"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// logHandler is a slog.Handler that forwards records to the orchestrator
// via fire-and-forget SEND_LOG calls. It is rate-limited so a tight
// logging loop in a handler cannot flood the connection. A record that
// arrives over the limit is not dropped outright: it gets one delayed
// redelivery attempt, scheduled with jittered backoff so a burst of
// throttled records doesn't all retry in lockstep. Only if that retry
// also finds the limiter closed is the record actually dropped, matching
// SEND_LOG's best-effort delivery contract.
type logHandler struct {
	client  *rpc.Client
	runID   string
	limiter *rate.Limiter
	retry   backoff.Strategy
	attrs   []slog.Attr
}

func newLogHandler(client *rpc.Client, runID string) *logHandler {
	return &logHandler{
		client: client, runID: runID,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		retry:   backoff.DefaultStrategy(),
	}
}

func (h *logHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.limiter.Allow() {
		return h.send(ctx, r)
	}
	go func() {
		time.Sleep(h.retry.Delay(1))
		if h.limiter.Allow() {
			_ = h.send(context.Background(), r)
		}
	}()
	return nil
}

func (h *logHandler) send(ctx context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	payload := map[string]any{"runId": h.runID, "level": levelName(r.Level), "message": r.Message}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	_, err := h.client.Send(ctx, wire.SendLog, h.runID, "", payload)
	return err
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := *h
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &n
}

func (h *logHandler) WithGroup(string) slog.Handler { return h }

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	case l >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// teeHandler fans one record out to two handlers: the remote SEND_LOG
// forwarder and the process's own local logger, so a run's logs are
// visible in both places.
type teeHandler struct {
	remote, local slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.remote.Enabled(ctx, level) || t.local.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	_ = t.remote.Handle(ctx, r.Clone())
	return t.local.Handle(ctx, r.Clone())
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{remote: t.remote.WithAttrs(attrs), local: t.local.WithAttrs(attrs)}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{remote: t.remote.WithGroup(name), local: t.local.WithGroup(name)}
}

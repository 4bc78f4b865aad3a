// Package trigger is the root package of the workflow host client: it
// wires the transport, session, rpc, registration, pending, and run
// components into the public Host type.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexdanilowicz/trigger.dev/ident"
	"github.com/alexdanilowicz/trigger.dev/pending"
	"github.com/alexdanilowicz/trigger.dev/registration"
	"github.com/alexdanilowicz/trigger.dev/reporter"
	"github.com/alexdanilowicz/trigger.dev/rpc"
	"github.com/alexdanilowicz/trigger.dev/run"
	"github.com/alexdanilowicz/trigger.dev/session"
	"github.com/alexdanilowicz/trigger.dev/transport"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// Host is a client-side workflow host: it connects to the orchestrator,
// registers workflows, and dispatches triggers to their handlers,
// resuming journaled context calls across reconnects.
type Host struct {
	cfg    Config
	logger *slog.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	codec          wire.Codec

	reporter         reporter.Reporter
	gitProbe         registration.GitProbe
	pkgSource        registration.PackageMetadataSource
	triggerValidator run.TriggerValidator
	triggerInfo      any
	dialer           transport.Dialer

	sessionID ident.ID
	conn      *session.Connection
	client    *rpc.Client
	pending   *pending.Registry
	workflows *run.Registry
	executor  *run.Executor
}

// New builds a Host from DefaultConfig plus opts. It does not dial;
// call Listen to connect.
func New(opts ...Option) (*Host, error) {
	h := &Host{
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
		reporter:  reporter.NopReporter{},
		gitProbe:  registration.NoGitProbe{},
		pkgSource: registration.EnvPackageMetadataSource{Env: os.Environ()},
		codec:     wire.GetCodec(wire.CodecNameJSON),
		workflows: run.NewRegistry(),
		dialer:    transport.WSDialer{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if h.tracerProvider == nil {
		h.tracerProvider = otel.GetTracerProvider()
	}
	if h.meterProvider == nil {
		h.meterProvider = otel.GetMeterProvider()
	}

	h.sessionID = ident.NewSessionID()
	if h.cfg.ID != "" {
		if parsed, err := ident.ParseWithPrefix(h.cfg.ID, ident.PrefixSession); err == nil {
			h.sessionID = parsed
		}
	}

	h.pending = pending.New(h.logger)
	h.client = rpc.New(
		rpc.WithCodec(h.codec),
		rpc.WithLogger(h.logger),
		rpc.WithTimeout(30*time.Second),
		rpc.WithTracerProvider(h.tracerProvider),
		rpc.WithMeterProvider(h.meterProvider),
	)

	h.executor = run.NewExecutor(h.client, h.pending, h.workflows, h.triggerValidator, h.logger)
	h.executor.SetReporter(h.reporter)
	h.executor.Bind()

	headers := map[string]string{"Authorization": "Bearer " + h.cfg.APIKey}
	h.conn = session.New(h.cfg.Endpoint, headers, h.dialer, h.sessionID, h.logger)
	h.conn.SetHandler(h.client)
	h.client.ResetConnection(h.conn)
	h.conn.SetOnReconnect(func(ctx context.Context) error {
		rec, err := registration.Handshake(ctx, h.client, h.handshakeInfo(ctx), h.logger)
		if err != nil {
			return err
		}
		h.executor.SetDashboardURL(rec.URL)
		return nil
	})

	return h, nil
}

// Register adds a workflow definition, reachable from TRIGGER_WORKFLOW
// once Listen has connected and handshaken.
func (h *Host) Register(def *run.Definition) { h.workflows.Register(def) }

// Listen dials the orchestrator, starts the read loop, and performs the
// initial registration handshake, which advertises the single workflow
// identity set by WithWorkflow; definitions added with Register are not
// listed in the handshake and are looked up by workflow id when a
// TRIGGER_WORKFLOW arrives. It returns once the handshake completes;
// reconnects happen in the background via session.Connection.
func (h *Host) Listen(ctx context.Context) error {
	if err := h.conn.Connect(ctx); err != nil {
		return fmt.Errorf("trigger: listen: %w", err)
	}

	rec, err := registration.Handshake(ctx, h.client, h.handshakeInfo(ctx), h.logger)
	if err != nil {
		return fmt.Errorf("trigger: registration handshake: %w", err)
	}
	h.executor.SetDashboardURL(rec.URL)
	return nil
}

func (h *Host) handshakeInfo(ctx context.Context) registration.Info {
	metadata, err := registration.BuildMetadata(ctx, os.Environ(), h.gitProbe, h.pkgSource)
	if err != nil {
		h.logger.Warn("trigger: build registration metadata", slog.String("error", err.Error()))
	}
	return registration.Info{
		APIKey:       h.cfg.APIKey,
		WorkflowID:   h.cfg.WorkflowID,
		WorkflowName: h.cfg.WorkflowName,
		Trigger:      h.triggerInfo,
		TriggerTTL:   h.cfg.TriggerTTL,
		Metadata:     metadata,
	}
}

// SessionID returns the stable client identity carried across reconnects.
func (h *Host) SessionID() ident.ID { return h.sessionID }

// Close disconnects and suppresses further reconnects.
func (h *Host) Close() error { return h.conn.Close() }

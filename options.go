package trigger

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexdanilowicz/trigger.dev/registration"
	"github.com/alexdanilowicz/trigger.dev/reporter"
	"github.com/alexdanilowicz/trigger.dev/run"
	"github.com/alexdanilowicz/trigger.dev/transport"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// Option configures a Host at construction time.
type Option func(*Host)

// WithAPIKey overrides Config.APIKey.
func WithAPIKey(key string) Option { return func(h *Host) { h.cfg.APIKey = key } }

// WithEndpoint overrides Config.Endpoint.
func WithEndpoint(url string) Option { return func(h *Host) { h.cfg.Endpoint = url } }

// WithTriggerTTL overrides Config.TriggerTTL.
func WithTriggerTTL(d time.Duration) Option { return func(h *Host) { h.cfg.TriggerTTL = d } }

// WithWorkflow sets the workflow identity advertised on the registration
// handshake. trigger is the trigger definition object sent verbatim in
// INITIALIZE_HOST_V2's "trigger" field (its shape is orchestrator-defined
// and opaque to this client).
func WithWorkflow(id, name string, trigger any) Option {
	return func(h *Host) {
		h.cfg.WorkflowID = id
		h.cfg.WorkflowName = name
		h.triggerInfo = trigger
	}
}

// WithLogger overrides the default slog.Logger used by every component.
func WithLogger(l *slog.Logger) Option { return func(h *Host) { h.logger = l } }

// WithTracerProvider injects an OTel TracerProvider for the RPC layer.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Host) { h.tracerProvider = tp }
}

// WithMeterProvider injects an OTel MeterProvider for the RPC layer.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Host) { h.meterProvider = mp }
}

// WithReporter overrides the attempt-0 run-started notice printer.
func WithReporter(r reporter.Reporter) Option { return func(h *Host) { h.reporter = r } }

// WithGitProbe overrides the git metadata source sent with the handshake.
func WithGitProbe(p registration.GitProbe) Option { return func(h *Host) { h.gitProbe = p } }

// WithPackageMetadataSource overrides the package metadata source sent
// with the handshake.
func WithPackageMetadataSource(s registration.PackageMetadataSource) Option {
	return func(h *Host) { h.pkgSource = s }
}

// WithCodec overrides the wire codec (JSON by default).
func WithCodec(c wire.Codec) Option { return func(h *Host) { h.codec = c } }

// WithTriggerValidator overrides the trigger-event schema validator.
func WithTriggerValidator(v run.TriggerValidator) Option {
	return func(h *Host) { h.triggerValidator = v }
}

// WithDialer overrides the transport.Dialer used to open the session
// channel (transport.WSDialer by default). Exists so tests can substitute
// an in-memory channel for a real WebSocket dial.
func WithDialer(d transport.Dialer) Option { return func(h *Host) { h.dialer = d } }

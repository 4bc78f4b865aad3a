package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alexdanilowicz/trigger.dev/ambient"
	"github.com/alexdanilowicz/trigger.dev/pending"
	"github.com/alexdanilowicz/trigger.dev/reporter"
	"github.com/alexdanilowicz/trigger.dev/rpc"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// Executor turns inbound TRIGGER_WORKFLOW frames into handler invocations
// and reports their outcome. Every context call the handler makes is an
// RPC journaled through client and awaited through pending, rather than
// a local store read/write.
type Executor struct {
	client    *rpc.Client
	pending   *pending.Registry
	registry  *Registry
	validator TriggerValidator
	logger    *slog.Logger

	reporter     reporter.Reporter
	dashboardURL atomic.Value // string
}

// NewExecutor builds an Executor. Call Bind once to register its inbound
// method handlers on client.
func NewExecutor(client *rpc.Client, reg *pending.Registry, workflows *Registry, validator TriggerValidator, logger *slog.Logger) *Executor {
	if validator == nil {
		validator = JSONSchemaValidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, pending: reg, registry: workflows, validator: validator, logger: logger, reporter: reporter.NopReporter{}}
}

// SetReporter installs the notice printer used for attempt-0 runs.
func (e *Executor) SetReporter(r reporter.Reporter) {
	if r == nil {
		r = reporter.NopReporter{}
	}
	e.reporter = r
}

// SetDashboardURL records the most recent registration record's URL, read
// by the next attempt-0 run's start notice.
func (e *Executor) SetDashboardURL(url string) { e.dashboardURL.Store(url) }

// Bind registers every server→client method this package handles.
func (e *Executor) Bind() {
	e.client.Handle(wire.TriggerWorkflow, e.handleTrigger)
	e.client.Handle(wire.ResolveDelay, e.handleRunScopedKeyed(pending.KindWait))
	e.client.Handle(wire.ResolveRunOnce, e.handleResolveRunOnce)
	e.client.Handle(wire.ResolveRequest, e.handleResolveRequest)
	e.client.Handle(wire.RejectRequest, e.handleRejectGeneric(pending.KindRequest))
	e.client.Handle(wire.ResolveFetchRequest, e.handleResolveFetch)
	e.client.Handle(wire.RejectFetchRequest, e.handleRejectGeneric(pending.KindFetch))
	e.client.Handle(wire.ResolveKVGet, e.handleResolveKVGet)
	e.client.Handle(wire.ResolveKVSet, e.handleRunScopedKeyed(pending.KindKVSet))
	e.client.Handle(wire.ResolveKVDelete, e.handleRunScopedKeyed(pending.KindKVDelete))
}

type triggerPayload struct {
	RunID   string `json:"runId"`
	Trigger struct {
		Input json.RawMessage `json:"input"`
	} `json:"trigger"`
	Meta struct {
		Attempt        int    `json:"attempt"`
		WorkflowID     string `json:"workflowId"`
		Environment    string `json:"environment"`
		APIKey         string `json:"apiKey"`
		OrganizationID string `json:"organizationId"`
		IsTest         bool   `json:"isTest"`
		AppOrigin      string `json:"appOrigin"`
	} `json:"meta"`
}

// handleTrigger validates the trigger schema synchronously (so a bad
// payload fails fast, before START_WORKFLOW_RUN is ever sent) and then
// runs the handler on its own goroutine so the TRIGGER_WORKFLOW ack is not
// held up by the run's duration.
func (e *Executor) handleTrigger(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
	var msg triggerPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("run: decode trigger payload: %w", err)
	}

	def, ok := e.registry.Lookup(msg.Meta.WorkflowID)
	if !ok {
		return nil, fmt.Errorf("run: no workflow registered for id %q", msg.Meta.WorkflowID)
	}

	r := &Run{
		ID:             msg.RunID,
		WorkflowID:     msg.Meta.WorkflowID,
		Environment:    msg.Meta.Environment,
		APIKey:         msg.Meta.APIKey,
		OrganizationID: msg.Meta.OrganizationID,
		IsTest:         msg.Meta.IsTest,
		AppOrigin:      msg.Meta.AppOrigin,
		Attempt:        msg.Meta.Attempt,
		State:          StateValidating,
	}

	if len(def.Schema) > 0 {
		if err := e.validator.Validate(def.Schema, msg.Trigger.Input); err != nil {
			go e.reportFailure(r, NormalizeError(err))
			return nil, nil
		}
	}

	go e.execute(r, def, msg.Trigger.Input)
	return nil, nil
}

func (e *Executor) execute(r *Run, def *Definition, input json.RawMessage) {
	var rc *Context
	bundle := ambient.Bundle{
		WorkflowID: r.WorkflowID,
		AppOrigin:  r.AppOrigin,
		RunID:      r.ID,
		PerformRequest: func(ctx context.Context, service, endpoint string, params any) ([]byte, error) {
			raw, err := rc.PerformRequest(wire.NewFrameID(), RequestOptions{Service: service, Endpoint: endpoint, Params: params})
			return raw, err
		},
		SendEvent: func(ctx context.Context, name string, payload any) error {
			return rc.SendEvent(name, payload)
		},
		Fetch: func(ctx context.Context, key, url string, opts any) ([]byte, error) {
			req := FetchRequest{URL: url}
			if o, ok := opts.(FetchRequest); ok {
				req = o
			}
			resp, err := rc.Fetch(key, req)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		},
	}
	ctx := ambient.With(context.Background(), bundle)

	r.State = StateRunning
	rc = New(ctx, r, e.client, e.pending, e.logger)

	if _, err := e.client.Send(ctx, wire.StartWorkflowRun, r.ID, "", map[string]any{"runId": r.ID}); err != nil {
		e.reportFailure(r, NormalizeError(fmt.Errorf("run: start workflow run: %w", err)))
		return
	}
	if r.Attempt == 0 {
		if url, ok := e.dashboardURL.Load().(string); ok && url != "" {
			e.reporter.RunStarted(url)
		}
	}

	output, err := e.invoke(def, rc, input)
	if err != nil {
		e.reportFailure(r, NormalizeError(err))
		return
	}

	raw, err := json.Marshal(output)
	if err != nil {
		e.reportFailure(r, NormalizeError(fmt.Errorf("run: marshal output: %w", err)))
		return
	}

	r.State = StateCompleted
	e.pending.Clear(r.ID)
	if _, err := e.client.Send(ctx, wire.CompleteWorkflowRun, r.ID, "", map[string]any{
		"runId": r.ID, "output": string(raw),
	}); err != nil {
		e.logger.Warn("run: failed to report completion", slog.String("run_id", r.ID), slog.String("error", err.Error()))
	}
}

// invoke runs the handler with panic recovery. A panic carrying a Go error
// is normalized the same way a returned error would be; a panic carrying
// any other value has nothing to normalize, so it is reported as
// UnknownError with the fixed message "An unknown error occurred" (the
// panic value itself is not included).
func (e *Executor) invoke(def *Definition, rc *Context, input json.RawMessage) (output any, err error) {
	defer func() {
		if p := recover(); p != nil {
			if pErr, ok := p.(error); ok {
				err = pErr
				return
			}
			err = &UserError{Name: "UnknownError", Message: "An unknown error occurred"}
		}
	}()
	return def.Handler(rc, input)
}

func (e *Executor) reportFailure(r *Run, ue *UserError) {
	r.State = StateErrored
	e.pending.Clear(r.ID)

	errObj := map[string]any{"name": ue.Name, "message": ue.Message}
	if ue.StackTrace != "" {
		errObj["stackTrace"] = ue.StackTrace
	}
	if _, err := e.client.Send(context.Background(), wire.SendWorkflowError, r.ID, "", map[string]any{
		"runId": r.ID, "error": errObj,
	}); err != nil {
		e.logger.Error("run: failed to report workflow error", slog.String("run_id", r.ID), slog.String("error", err.Error()))
	}
}

func (e *Executor) handleResolveRunOnce(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
	var msg struct {
		IdempotencyKey string          `json:"idempotencyKey"`
		HasRun         bool            `json:"hasRun"`
		Output         json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	e.pending.Resolve(pending.KindRunOnce, runID, key, runOnceResolution{
		idempotencyKey: msg.IdempotencyKey, hasRun: msg.HasRun, output: msg.Output,
	})
	return nil, nil
}

func (e *Executor) handleResolveRequest(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
	var msg struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	e.pending.Resolve(pending.KindRequest, runID, key, msg.Value)
	return nil, nil
}

func (e *Executor) handleResolveFetch(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
	var msg struct {
		Status  int               `json:"status"`
		OK      bool              `json:"ok"`
		Headers map[string]string `json:"headers"`
		Body    json.RawMessage   `json:"body"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	e.pending.Resolve(pending.KindFetch, runID, key, &FetchResponse{
		Status: msg.Status, OK: msg.OK, Headers: msg.Headers, Body: msg.Body,
	})
	return nil, nil
}

func (e *Executor) handleResolveKVGet(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
	var msg struct {
		Value json.RawMessage `json:"value"`
		Found bool            `json:"found"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	e.pending.Resolve(pending.KindKVGet, runID, key, kvGetResolution{found: msg.Found, value: msg.Value})
	return nil, nil
}

// handleRunScopedKeyed acks a bare runId/key resolution with no further
// payload to interpret (RESOLVE_DELAY, RESOLVE_KV_SET, RESOLVE_KV_DELETE).
func (e *Executor) handleRunScopedKeyed(kind pending.Kind) rpc.HandlerFunc {
	return func(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
		e.pending.Resolve(kind, runID, key, nil)
		return nil, nil
	}
}

func (e *Executor) handleRejectGeneric(kind pending.Kind) rpc.HandlerFunc {
	return func(ctx context.Context, runID, key string, payload json.RawMessage) (json.RawMessage, error) {
		var msg struct {
			Error struct {
				Name    string `json:"name"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, err
		}
		name := msg.Error.Name
		if name == "" {
			name = "Error"
		}
		e.pending.Reject(kind, runID, key, &UserError{Name: name, Message: msg.Error.Message})
		return nil, nil
	}
}

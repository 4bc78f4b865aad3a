package run

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexdanilowicz/trigger.dev/pending"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// Wait is the wire shape of INITIALIZE_DELAY's "wait" object: either a
// relative duration or an absolute point in time.
type Wait struct {
	Type    string  `json:"type"` // "DELAY" or "SCHEDULE_FOR"
	Seconds float64 `json:"seconds,omitempty"`
	Date    string  `json:"date,omitempty"`
}

// WaitFor suspends the run for d before returning. The call is journaled:
// INITIALIZE_DELAY is acknowledged immediately, and the actual delay is
// satisfied later by a pushed RESOLVE_DELAY frame, so the suspension
// survives a reconnect.
func (c *Context) WaitFor(key string, d time.Duration) error {
	return c.delay(key, Wait{Type: "DELAY", Seconds: d.Seconds()})
}

// WaitUntil suspends the run until at.
func (c *Context) WaitUntil(key string, at time.Time) error {
	return c.delay(key, Wait{Type: "SCHEDULE_FOR", Date: at.UTC().Format(time.RFC3339)})
}

func (c *Context) delay(key string, w Wait) error {
	wait := c.pending.Register(pending.KindWait, c.run.ID, key)
	if _, err := c.client.Send(c.ctx, wire.InitializeDelay, c.run.ID, key, map[string]any{
		"runId": c.run.ID, "key": key, "wait": w,
	}); err != nil {
		c.pending.Reject(pending.KindWait, c.run.ID, key, err)
		return err
	}
	_, err := wait()
	return err
}

// FetchRequest describes an outbound HTTP call journaled via SEND_FETCH.
type FetchRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
	Retry   any               `json:"retry,omitempty"`
}

// FetchResponse is the resolved shape of RESOLVE_FETCH_REQUEST.
type FetchResponse struct {
	Status  int               `json:"status"`
	OK      bool              `json:"ok"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Fetch performs req through the orchestrator and blocks for its result,
// surviving both retries on the server side and a reconnect on this side.
func (c *Context) Fetch(key string, req FetchRequest) (*FetchResponse, error) {
	wait := c.pending.Register(pending.KindFetch, c.run.ID, key)
	payload := map[string]any{"runId": c.run.ID, "key": key, "url": req.URL}
	if req.Method != "" {
		payload["method"] = req.Method
	}
	if req.Headers != nil {
		payload["headers"] = req.Headers
	}
	if req.Body != nil {
		payload["body"] = req.Body
	}
	if req.Retry != nil {
		payload["retry"] = req.Retry
	}

	if _, err := c.client.Send(c.ctx, wire.SendFetch, c.run.ID, key, payload); err != nil {
		c.pending.Reject(pending.KindFetch, c.run.ID, key, err)
		return nil, err
	}
	val, err := wait()
	if err != nil {
		return nil, err
	}
	resp, _ := val.(*FetchResponse)
	return resp, nil
}

// RequestOptions describes an integration call journaled via SEND_REQUEST.
type RequestOptions struct {
	Service  string `json:"service"`
	Endpoint string `json:"endpoint"`
	Params   any    `json:"params,omitempty"`
	Version  string `json:"version,omitempty"`
}

// PerformRequest invokes a named integration endpoint and blocks for the
// server's resolved value.
func (c *Context) PerformRequest(key string, opts RequestOptions) (json.RawMessage, error) {
	wait := c.pending.Register(pending.KindRequest, c.run.ID, key)
	payload := map[string]any{
		"runId": c.run.ID, "key": key, "service": opts.Service, "endpoint": opts.Endpoint,
	}
	if opts.Params != nil {
		payload["params"] = opts.Params
	}
	if opts.Version != "" {
		payload["version"] = opts.Version
	}

	if _, err := c.client.Send(c.ctx, wire.SendRequest, c.run.ID, key, payload); err != nil {
		c.pending.Reject(pending.KindRequest, c.run.ID, key, err)
		return nil, err
	}
	val, err := wait()
	if err != nil {
		return nil, err
	}
	raw, _ := val.(json.RawMessage)
	return raw, nil
}

// RunOnceKind distinguishes a remotely-cached run-once call from one whose
// idempotency is only tracked for the lifetime of this process.
type RunOnceKind string

const (
	RunOnceRemote RunOnceKind = "REMOTE"
	RunOnceLocal  RunOnceKind = "LOCAL_ONLY"
)

type runOnceResolution struct {
	idempotencyKey string
	hasRun         bool
	output         json.RawMessage
}

// RunOnce executes fn at most once per run and key, per the
// orchestrator's remote idempotency ledger. A replay of the run that
// reaches this key again receives the cached output without calling fn
// again; fn's own output is sent to the orchestrator as a JSON string. fn receives the idempotencyKey the
// orchestrator issued for this call, to echo back to external systems
// that need their own dedup token.
func (c *Context) RunOnce(key string, fn func(idempotencyKey string) (any, error)) (json.RawMessage, error) {
	res, err := c.initRunOnce(key, RunOnceRemote)
	if err != nil {
		return nil, err
	}
	if res.hasRun {
		return res.output, nil
	}

	output, fnErr := fn(res.idempotencyKey)
	if fnErr != nil {
		return nil, fnErr
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("run: marshal run-once output: %w", err)
	}
	if _, err := c.client.Send(c.ctx, wire.CompleteRunOnce, c.run.ID, key, map[string]any{
		"runId": c.run.ID, "key": key, "idempotencyKey": res.idempotencyKey, "output": string(raw),
	}); err != nil {
		return nil, err
	}
	return raw, nil
}

// RunOnceLocalOnly always runs fn, unlike RunOnce: the orchestrator
// never persists a LOCAL_ONLY idempotency key across attempts, so
// res.hasRun describes nothing it actually cached and there's nothing to
// complete back to it after fn runs.
func (c *Context) RunOnceLocalOnly(key string, fn func(idempotencyKey string) (any, error)) (json.RawMessage, error) {
	res, err := c.initRunOnce(key, RunOnceLocal)
	if err != nil {
		return nil, err
	}

	output, fnErr := fn(res.idempotencyKey)
	if fnErr != nil {
		return nil, fnErr
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("run: marshal run-once output: %w", err)
	}
	return raw, nil
}

func (c *Context) initRunOnce(key string, kind RunOnceKind) (runOnceResolution, error) {
	wait := c.pending.Register(pending.KindRunOnce, c.run.ID, key)
	if _, err := c.client.Send(c.ctx, wire.InitializeRunOnce, c.run.ID, key, map[string]any{
		"runId": c.run.ID, "key": key, "type": string(kind),
	}); err != nil {
		c.pending.Reject(pending.KindRunOnce, c.run.ID, key, err)
		return runOnceResolution{}, err
	}

	val, err := wait()
	if err != nil {
		return runOnceResolution{}, err
	}
	res, ok := val.(runOnceResolution)
	if !ok {
		return runOnceResolution{}, fmt.Errorf("run: malformed run-once resolution for key %q", key)
	}
	return res, nil
}

// SendEvent journals a named event for other workflows to react to. It is
// fire-and-forget: the call is acknowledged on write, not on delivery.
func (c *Context) SendEvent(name string, payload any) error {
	_, err := c.client.Send(c.ctx, wire.SendEvent, c.run.ID, "", map[string]any{
		"runId": c.run.ID, "name": name, "payload": payload,
	})
	return err
}

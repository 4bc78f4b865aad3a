package run_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alexdanilowicz/trigger.dev/pending"
	"github.com/alexdanilowicz/trigger.dev/rpc"
	"github.com/alexdanilowicz/trigger.dev/run"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// runHarness stands in for the orchestrator side of the connection: it
// records every frame the client sends and, via onSend, can ack it and/or
// push a later server→client frame asynchronously.
type runHarness struct {
	client *rpc.Client
	onSend func(f *wire.Frame) *wire.Frame

	mu   sync.Mutex
	sent []*wire.Frame
}

func (h *runHarness) Write(ctx context.Context, data []byte) error {
	codec := wire.GetCodec(wire.CodecNameJSON)
	frame, err := codec.Decode(data)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.sent = append(h.sent, frame)
	h.mu.Unlock()

	if h.onSend == nil {
		return nil
	}
	resp := h.onSend(frame)
	if resp == nil {
		return nil
	}
	go func() {
		respData, _ := codec.Encode(resp)
		h.client.HandleFrame(ctx, respData)
	}()
	return nil
}

func (h *runHarness) push(frame *wire.Frame) {
	codec := wire.GetCodec(wire.CodecNameJSON)
	data, _ := codec.Encode(frame)
	h.client.HandleFrame(context.Background(), data)
}

func (h *runHarness) find(method string) *wire.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.sent {
		if f.Method == method {
			return f
		}
	}
	return nil
}

func (h *runHarness) waitFor(t *testing.T, method string) *wire.Frame {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f := h.find(method); f != nil {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", method)
	return nil
}

func ackEverything(f *wire.Frame) *wire.Frame {
	if f.Kind == wire.KindResponse || wire.IsFireAndForget(f.Method) {
		return nil
	}
	return wire.NewOKResponse(f.ID, f.RunID, f.Key, nil)
}

func newHarnessedExecutor() (*runHarness, *rpc.Client, *pending.Registry, *run.Registry, *run.Executor) {
	client := rpc.New(rpc.WithTimeout(2 * time.Second))
	h := &runHarness{client: client, onSend: ackEverything}
	client.ResetConnection(h)

	reg := pending.New(nil)
	workflows := run.NewRegistry()
	exec := run.NewExecutor(client, reg, workflows, nil, nil)
	exec.Bind()
	return h, client, reg, workflows, exec
}

func triggerFrame(runID, workflowID string, input any) *wire.Frame {
	inputRaw, _ := json.Marshal(input)
	payload, _ := json.Marshal(map[string]any{
		"runId":   runID,
		"trigger": map[string]any{"input": json.RawMessage(inputRaw)},
		"meta":    map[string]any{"attempt": 0, "workflowId": workflowID},
	})
	return wire.NewRequestFrame(wire.NewFrameID(), wire.TriggerWorkflow, runID, "", payload)
}

func TestExecutor_HappyPathTrigger(t *testing.T) {
	h, client, _, workflows, _ := newHarnessedExecutor()

	workflows.Register(&run.Definition{
		ID: "wf1",
		Handler: func(ctx *run.Context, event json.RawMessage) (any, error) {
			return map[string]any{"ok": true}, nil
		},
	})

	codec := wire.GetCodec(wire.CodecNameJSON)
	data, _ := codec.Encode(triggerFrame("run1", "wf1", map[string]any{"x": 1}))
	client.HandleFrame(context.Background(), data)

	h.waitFor(t, wire.StartWorkflowRun)
	complete := h.waitFor(t, wire.CompleteWorkflowRun)
	var payload struct {
		RunID  string `json:"runId"`
		Output string `json:"output"`
	}
	if err := json.Unmarshal(complete.Payload, &payload); err != nil {
		t.Fatalf("decode complete payload: %v", err)
	}
	if payload.RunID != "run1" {
		t.Fatalf("runId = %q, want run1", payload.RunID)
	}
}

func TestExecutor_HandlerErrorReportsWorkflowError(t *testing.T) {
	h, client, _, workflows, _ := newHarnessedExecutor()

	workflows.Register(&run.Definition{
		ID: "wf-fail",
		Handler: func(ctx *run.Context, event json.RawMessage) (any, error) {
			return nil, &run.UserError{Name: "BoomError", Message: "kaboom"}
		},
	})

	codec := wire.GetCodec(wire.CodecNameJSON)
	data, _ := codec.Encode(triggerFrame("run2", "wf-fail", map[string]any{}))
	client.HandleFrame(context.Background(), data)

	errFrame := h.waitFor(t, wire.SendWorkflowError)
	var payload struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(errFrame.Payload, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Name != "BoomError" || payload.Error.Message != "kaboom" {
		t.Fatalf("got %+v", payload.Error)
	}
	if h.find(wire.CompleteWorkflowRun) != nil {
		t.Fatal("should not report completion after a handler error")
	}
}

func TestExecutor_PanicWithNonErrorValueReportsUnknownError(t *testing.T) {
	h, client, _, workflows, _ := newHarnessedExecutor()

	workflows.Register(&run.Definition{
		ID: "wf-panic",
		Handler: func(ctx *run.Context, event json.RawMessage) (any, error) {
			panic("not an error value")
		},
	})

	codec := wire.GetCodec(wire.CodecNameJSON)
	data, _ := codec.Encode(triggerFrame("run3", "wf-panic", map[string]any{}))
	client.HandleFrame(context.Background(), data)

	errFrame := h.waitFor(t, wire.SendWorkflowError)
	var payload struct {
		Error struct{ Name string `json:"name"` } `json:"error"`
	}
	json.Unmarshal(errFrame.Payload, &payload)
	if payload.Error.Name != "UnknownError" {
		t.Fatalf("name = %q, want UnknownError", payload.Error.Name)
	}
}

func TestExecutor_ValidationFailureSkipsStart(t *testing.T) {
	h, client, _, workflows, _ := newHarnessedExecutor()

	workflows.Register(&run.Definition{
		ID:     "wf-schema",
		Schema: json.RawMessage(`{"type":"object","required":["must"],"properties":{"must":{"type":"string"}}}`),
		Handler: func(ctx *run.Context, event json.RawMessage) (any, error) {
			t.Fatal("handler should not run when validation fails")
			return nil, nil
		},
	})

	codec := wire.GetCodec(wire.CodecNameJSON)
	data, _ := codec.Encode(triggerFrame("run4", "wf-schema", map[string]any{"nope": 1}))
	client.HandleFrame(context.Background(), data)

	errFrame := h.waitFor(t, wire.SendWorkflowError)
	var payload struct {
		Error struct{ Name string `json:"name"` } `json:"error"`
	}
	json.Unmarshal(errFrame.Payload, &payload)
	if payload.Error.Name != "Event validation error" {
		t.Fatalf("name = %q, want Event validation error", payload.Error.Name)
	}
	if h.find(wire.StartWorkflowRun) != nil {
		t.Fatal("should not start a run whose trigger payload failed validation")
	}
}

func TestContext_RunOnce_CacheHitSkipsFn(t *testing.T) {
	client := rpc.New(rpc.WithTimeout(2 * time.Second))
	h := &runHarness{client: client}
	h.onSend = func(f *wire.Frame) *wire.Frame {
		if f.Method == wire.InitializeRunOnce {
			go func(runID, key string) {
				time.Sleep(5 * time.Millisecond)
				resolvePayload, _ := json.Marshal(map[string]any{
					"runId": runID, "key": key, "idempotencyKey": "idem",
					"hasRun": true, "output": json.RawMessage(`{"cached":true}`),
				})
				h.push(wire.NewRequestFrame(wire.NewFrameID(), wire.ResolveRunOnce, runID, key, resolvePayload))
			}(f.RunID, f.Key)
		}
		return ackEverything(f)
	}
	client.ResetConnection(h)

	reg := pending.New(nil)
	exec := run.NewExecutor(client, reg, run.NewRegistry(), nil, nil)
	exec.Bind()

	ctx := run.New(context.Background(), &run.Run{ID: "run5", WorkflowID: "wf1"}, client, reg, nil)

	called := false
	output, err := ctx.RunOnce("step1", func(idempotencyKey string) (any, error) {
		called = true
		return map[string]any{"fresh": true}, nil
	})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if called {
		t.Fatal("fn should not run on a cache hit")
	}
	var decoded map[string]any
	json.Unmarshal(output, &decoded)
	if decoded["cached"] != true {
		t.Fatalf("got %v", decoded)
	}
}

func TestContext_WaitFor_ResolvesOnPushedDelay(t *testing.T) {
	client := rpc.New(rpc.WithTimeout(2 * time.Second))
	h := &runHarness{client: client}
	h.onSend = func(f *wire.Frame) *wire.Frame {
		if f.Method == wire.InitializeDelay {
			go func(runID, key string) {
				time.Sleep(5 * time.Millisecond)
				payload, _ := json.Marshal(map[string]any{"runId": runID, "key": key})
				h.push(wire.NewRequestFrame(wire.NewFrameID(), wire.ResolveDelay, runID, key, payload))
			}(f.RunID, f.Key)
		}
		return ackEverything(f)
	}
	client.ResetConnection(h)

	reg := pending.New(nil)
	exec := run.NewExecutor(client, reg, run.NewRegistry(), nil, nil)
	exec.Bind()

	ctx := run.New(context.Background(), &run.Run{ID: "run6", WorkflowID: "wf1"}, client, reg, nil)
	if err := ctx.WaitFor("delay1", 10*time.Millisecond); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
}

package rpc_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alexdanilowicz/trigger.dev/rpc"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// loopbackWriter feeds every frame it's asked to write straight back into
// a paired rpc.Client's HandleFrame, optionally transforming it first —
// enough to drive Send/Dispatch round trips without a real transport.
type loopbackWriter struct {
	mu       sync.Mutex
	respond  func(req *wire.Frame) *wire.Frame
	client   *rpc.Client
}

func (w *loopbackWriter) Write(ctx context.Context, data []byte) error {
	codec := wire.GetCodec(wire.CodecNameJSON)
	frame, err := codec.Decode(data)
	if err != nil {
		return err
	}
	if w.respond == nil {
		return nil
	}
	resp := w.respond(frame)
	if resp == nil {
		return nil
	}
	go func() {
		respData, _ := codec.Encode(resp)
		w.client.HandleFrame(ctx, respData)
	}()
	return nil
}

func TestSend_ResolvesOnMatchingResponse(t *testing.T) {
	client := rpc.New(rpc.WithTimeout(2 * time.Second))
	w := &loopbackWriter{client: client}
	w.respond = func(req *wire.Frame) *wire.Frame {
		return wire.NewOKResponse(req.ID, req.RunID, req.Key, json.RawMessage(`{"runId":"r1"}`))
	}
	client.ResetConnection(w)

	payload, err := client.Send(context.Background(), wire.StartWorkflowRun, "r1", "", map[string]any{"runId": "r1"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if decoded["runId"] != "r1" {
		t.Fatalf("got %v", decoded)
	}
}

func TestSend_RejectErrorIsNotRetried(t *testing.T) {
	client := rpc.New(rpc.WithTimeout(2 * time.Second))
	attempts := 0
	w := &loopbackWriter{client: client}
	w.respond = func(req *wire.Frame) *wire.Frame {
		attempts++
		return wire.NewErrorResponse(req.ID, req.RunID, req.Key, wire.ErrorDetail{Name: "Boom", Message: "nope"})
	}
	client.ResetConnection(w)

	_, err := client.Send(context.Background(), wire.StartWorkflowRun, "r1", "", map[string]any{"runId": "r1"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (reject should not retry)", attempts)
	}
}

func TestSend_FireAndForgetDoesNotAwaitResponse(t *testing.T) {
	client := rpc.New()
	w := &loopbackWriter{client: client} // no respond func: never replies
	client.ResetConnection(w)

	done := make(chan error, 1)
	go func() {
		_, err := client.Send(context.Background(), wire.SendEvent, "r1", "", map[string]any{"runId": "r1", "name": "evt"})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("fire-and-forget Send blocked on a response")
	}
}

func TestDispatch_InvokesRegisteredHandler(t *testing.T) {
	client := rpc.New()
	var gotRunID string
	client.Handle(wire.ResolveDelay, func(_ context.Context, runID, key string, _ json.RawMessage) (json.RawMessage, error) {
		gotRunID = runID
		return nil, nil
	})

	var received chan struct{} = make(chan struct{})
	w := &loopbackWriter{client: client}
	w.respond = func(req *wire.Frame) *wire.Frame {
		close(received)
		return nil
	}
	client.ResetConnection(w)

	codec := wire.GetCodec(wire.CodecNameJSON)
	frame := wire.Frame{
		ID:      "inbound-1",
		Kind:    wire.KindRequest,
		Method:  wire.ResolveDelay,
		RunID:   "r1",
		Key:     "d1",
		Payload: json.RawMessage(`{"runId":"r1","key":"d1"}`),
	}
	data, _ := codec.Encode(&frame)
	client.HandleFrame(context.Background(), data)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("handler never acknowledged the inbound frame")
	}
	if gotRunID != "r1" {
		t.Fatalf("gotRunID = %q, want %q", gotRunID, "r1")
	}
}

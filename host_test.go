package trigger_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	trigger "github.com/alexdanilowicz/trigger.dev"
	"github.com/alexdanilowicz/trigger.dev/transport"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// recordingDialer hands out FakeChannel pairs and auto-acks
// INITIALIZE_HOST_V2 on the server side of every pair it creates, so a
// Host can complete its registration handshake without a real
// orchestrator. It also records every frame written by the client, across
// every channel it has ever dialed, so a test can assert on the full
// method sequence spanning a reconnect.
type recordingDialer struct {
	mu      sync.Mutex
	clients []*transport.FakeChannel
	servers []*transport.FakeChannel
	sent    []*wire.Frame
	codec   wire.Codec
	onFrame func(server *transport.FakeChannel, f *wire.Frame)
}

func newRecordingDialer() *recordingDialer {
	return &recordingDialer{codec: wire.GetCodec(wire.CodecNameJSON)}
}

func (d *recordingDialer) Dial(_ string, _ map[string]string) transport.Channel {
	client, server := transport.NewFakePair()
	d.mu.Lock()
	d.clients = append(d.clients, client)
	d.servers = append(d.servers, server)
	d.mu.Unlock()
	go d.serve(server)
	return client
}

// serve plays the orchestrator side of one channel: record every inbound
// frame, auto-ack INITIALIZE_HOST_V2 with a registration record.
func (d *recordingDialer) serve(server *transport.FakeChannel) {
	ctx := context.Background()
	for {
		data, err := server.ReadMessage(ctx)
		if err != nil {
			return
		}
		f, err := d.codec.Decode(data)
		if err != nil {
			continue
		}
		d.mu.Lock()
		d.sent = append(d.sent, f)
		onFrame := d.onFrame
		d.mu.Unlock()

		if onFrame != nil {
			onFrame(server, f)
		}

		if f.Kind == wire.KindRequest && f.Method == wire.InitializeHostV2 {
			rec := map[string]any{
				"workflow":     map[string]any{"id": "wf_1", "slug": "wf"},
				"environment":  map[string]any{"id": "env_1", "slug": "dev"},
				"organization": map[string]any{"id": "org_1", "slug": "acme"},
				"isNew":        false,
				"url":          "https://dashboard.example.test/runs/1",
			}
			recData, _ := json.Marshal(rec)
			env := map[string]any{"type": "success", "data": json.RawMessage(recData)}
			payload, _ := json.Marshal(env)
			resp := wire.NewOKResponse(f.ID, f.RunID, f.Key, payload)
			out, _ := d.codec.Encode(resp)
			_ = server.WriteMessage(ctx, out)
		}
	}
}

// lastClientPeer returns the client-facing end of the most recent dial —
// the end session.Connection actually reads from. Closing it (without
// going through Connection.Close) reproduces an involuntary disconnect:
// the read loop sees a plain read error, not the user-initiated-close
// flag, so it runs the reconnect path instead of giving up.
func (d *recordingDialer) lastClientPeer() *transport.FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[len(d.clients)-1]
}

func (d *recordingDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *recordingDialer) framesWithMethod(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, f := range d.sent {
		if f.Method == method {
			n++
		}
	}
	return n
}

func TestHost_ListenPerformsOneHandshake(t *testing.T) {
	dialer := newRecordingDialer()
	h, err := trigger.New(
		trigger.WithAPIKey("test-key"),
		trigger.WithDialer(dialer),
		trigger.WithWorkflow("wf_1", "example", nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := h.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if got := dialer.framesWithMethod(wire.InitializeHostV2); got != 1 {
		t.Fatalf("expected exactly 1 INITIALIZE_HOST_V2, got %d", got)
	}
	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("expected exactly 1 dial, got %d", got)
	}
}

// TestHost_ReconnectsWithoutReportingWorkflowError forces the client's
// read side closed, the same observable failure a dropped network
// connection produces, and verifies the host reconnects using the same
// session id, re-issues INITIALIZE_HOST_V2, and never reports a spurious
// SEND_WORKFLOW_ERROR — there is no run in flight, so the disconnect is
// purely a transport event, not a failed workflow.
func TestHost_ReconnectsWithoutReportingWorkflowError(t *testing.T) {
	dialer := newRecordingDialer()
	h, err := trigger.New(
		trigger.WithAPIKey("test-key"),
		trigger.WithDialer(dialer),
		trigger.WithWorkflow("wf_1", "example", nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := h.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	sessionID := h.SessionID()

	// Simulate an involuntary disconnect by closing the client-facing
	// channel directly (bypassing Host.Close/Connection.Close, which
	// would mark it user-initiated and suppress the retry loop).
	if err := dialer.lastClientPeer().Close(1006, "simulated drop"); err != nil {
		t.Fatalf("Close client peer: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for dialer.dialCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if dialer.dialCount() < 2 {
		t.Fatal("host never redialed after the simulated disconnect")
	}

	for dialer.framesWithMethod(wire.InitializeHostV2) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := dialer.framesWithMethod(wire.InitializeHostV2); got != 2 {
		t.Fatalf("expected a second INITIALIZE_HOST_V2 after reconnect, got %d", got)
	}

	if h.SessionID().String() != sessionID.String() {
		t.Fatalf("session id changed across reconnect: %s -> %s", sessionID, h.SessionID())
	}
	if got := dialer.framesWithMethod(wire.SendWorkflowError); got != 0 {
		t.Fatalf("expected no SEND_WORKFLOW_ERROR from a transport-only disconnect, got %d", got)
	}
}

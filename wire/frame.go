// Package wire implements the host wire protocol: the JSON/msgpack frame
// envelope exchanged with the orchestrator, its two directional method
// catalogues, and the codecs that serialize frames onto the transport.
package wire

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind identifies the frame category.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// Frame is the wire envelope. Every message exchanged with the
// orchestrator is a Frame.
type Frame struct {
	// ID uniquely identifies this frame; responses carry the same ID as
	// the request they correlate with.
	ID string `json:"id" msgpack:"id"`

	Kind Kind `json:"kind" msgpack:"kind"`

	// Method names the operation. Present on requests, empty on responses.
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// RunID scopes the call to a run. Absent only for INITIALIZE_HOST_V2.
	RunID string `json:"runId,omitempty" msgpack:"runId,omitempty"`

	// Key is the user-chosen call key for journaled operations. Absent
	// for fire-and-forget host-level calls and for INITIALIZE_HOST_V2.
	Key string `json:"key,omitempty" msgpack:"key,omitempty"`

	// Payload carries the method-specific request or response body.
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Timestamp is nanoseconds since this process started, read from the
	// monotonic clock, as a decimal string.
	Timestamp string `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`

	// OK marks a response as a success (true) or failure (false).
	OK *bool `json:"ok,omitempty" msgpack:"ok,omitempty"`

	// Error carries error details for a failed response.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`
}

// ErrorDetail describes a failure carried on a response frame.
type ErrorDetail struct {
	Name    string `json:"name" msgpack:"name"`
	Message string `json:"message" msgpack:"message"`
}

// processStart is the epoch request timestamps are measured from.
var processStart = time.Now()

// NewRequestFrame builds a request frame for method with the given
// runID/key/payload, stamped with the current nanosecond timestamp.
func NewRequestFrame(id, method, runID, key string, payload json.RawMessage) *Frame {
	return &Frame{
		ID:        id,
		Kind:      KindRequest,
		Method:    method,
		RunID:     runID,
		Key:       key,
		Payload:   payload,
		Timestamp: strconv.FormatInt(time.Since(processStart).Nanoseconds(), 10),
	}
}

// NewOKResponse builds a successful response frame correlated to id.
func NewOKResponse(id, runID, key string, payload json.RawMessage) *Frame {
	ok := true
	return &Frame{
		ID:      id,
		Kind:    KindResponse,
		RunID:   runID,
		Key:     key,
		Payload: payload,
		OK:      &ok,
	}
}

// NewErrorResponse builds a failed response frame correlated to id.
func NewErrorResponse(id, runID, key string, detail ErrorDetail) *Frame {
	ok := false
	return &Frame{
		ID:    id,
		Kind:  KindResponse,
		RunID: runID,
		Key:   key,
		OK:    &ok,
		Error: &detail,
	}
}

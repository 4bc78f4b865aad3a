package rpc

import "fmt"

// TimeoutError means no correlated response arrived within the call
// timeout. Send retries on this indefinitely; it is never returned to a
// caller whose ctx is still open, only wrapped inside a retry cycle.
type TimeoutError struct {
	Method string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("rpc: %s timed out", e.Method) }

// RejectError means the server answered with ok:false. It is returned to
// the caller as-is; Send does not retry on it.
type RejectError struct {
	Method  string
	Message string
}

func (e *RejectError) Error() string { return fmt.Sprintf("rpc: %s rejected: %s", e.Method, e.Message) }

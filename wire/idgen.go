package wire

import "github.com/google/uuid"

// NewFrameID returns a new transport-level correlation id, distinct from
// any structural identifier (session id, run id) carried inside a frame's
// payload.
func NewFrameID() string { return uuid.NewString() }

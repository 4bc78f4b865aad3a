package trigger

import "errors"

// ErrMissingAPIKey is returned by New when no API key was supplied via
// WithAPIKey, Config, or the TRIGGER_API_KEY environment variable.
var ErrMissingAPIKey = errors.New("trigger: missing API key")

package ambient

import (
	"context"
	"errors"
)

// ErrNoBundle is returned by the package-level helpers when ctx carries no
// Bundle, or the specific capability requested was never wired — e.g. code
// running outside a workflow handler invocation.
var ErrNoBundle = errors.New("ambient: no capability bundle installed on context")

// PerformRequest reads the Bundle installed on ctx so it can be invoked
// from any goroutine descended from a workflow handler, not just code
// holding a run.Context directly.
func PerformRequest(ctx context.Context, service, endpoint string, params any) ([]byte, error) {
	b, ok := From(ctx)
	if !ok || b.PerformRequest == nil {
		return nil, ErrNoBundle
	}
	return b.PerformRequest(ctx, service, endpoint, params)
}

// SendEvent is the outer-path equivalent of run.Context.SendEvent.
func SendEvent(ctx context.Context, name string, payload any) error {
	b, ok := From(ctx)
	if !ok || b.SendEvent == nil {
		return ErrNoBundle
	}
	return b.SendEvent(ctx, name, payload)
}

// Fetch is the outer-path equivalent of run.Context.Fetch.
func Fetch(ctx context.Context, key, url string, opts any) ([]byte, error) {
	b, ok := From(ctx)
	if !ok || b.Fetch == nil {
		return nil, ErrNoBundle
	}
	return b.Fetch(ctx, key, url, opts)
}

// Package ambient propagates the run-scoped capability bundle (fetch,
// sendEvent, performRequest, and run identifiers) through arbitrary
// asynchronous work spawned from a workflow handler, without requiring
// every internal call to thread it through as an explicit parameter.
//
// The bundle is held under a private context key rather than a global or
// a package-level registry, since context.Context is Go's idiomatic
// equivalent of task-local storage and it already rides along every call
// by convention.
package ambient

import "context"

// PerformRequestFunc issues the outer-path SEND_REQUEST call.
type PerformRequestFunc func(ctx context.Context, service, endpoint string, params any) ([]byte, error)

// SendEventFunc fires a fire-and-forget SEND_EVENT call.
type SendEventFunc func(ctx context.Context, name string, payload any) error

// FetchFunc issues a journaled SEND_FETCH call.
type FetchFunc func(ctx context.Context, key, url string, opts any) ([]byte, error)

// Bundle is the capability set installed for the duration of one run's
// user function and visible to any asynchronously linked descendant of
// it.
type Bundle struct {
	PerformRequest PerformRequestFunc
	SendEvent      SendEventFunc
	Fetch          FetchFunc

	WorkflowID string
	AppOrigin  string
	RunID      string
}

type bundleKey struct{}

// With returns a context carrying b. Concurrent runs never collide
// because each call installs its own bundle value on its own ctx chain;
// no package-global slot is ever written.
func With(ctx context.Context, b Bundle) context.Context {
	return context.WithValue(ctx, bundleKey{}, b)
}

// From retrieves the bundle installed by the nearest enclosing With, if
// any.
func From(ctx context.Context) (Bundle, bool) {
	b, ok := ctx.Value(bundleKey{}).(Bundle)
	return b, ok
}

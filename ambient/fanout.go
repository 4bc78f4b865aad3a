package ambient

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Go runs fn on a new goroutine with a context that still carries ctx's
// bundle, so descendants spawned by workflow code see the same ambient
// state as their parent. It returns immediately; use Group for fan-out
// that needs to know when every branch finishes.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	go fn(ctx)
}

// Group fans work out across goroutines that all observe ctx's bundle,
// cancelling siblings on the first error via errgroup.Group.
type Group struct {
	g   *errgroup.Group
	ctx context.Context
}

// WaitGroup starts a Group bound to ctx.
func WaitGroup(ctx context.Context) *Group {
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: gctx}
}

// Go schedules fn, passing it the group's (still bundle-carrying,
// cancelable-on-sibling-failure) context.
func (grp *Group) Go(fn func(ctx context.Context) error) {
	grp.g.Go(func() error { return fn(grp.ctx) })
}

// Wait blocks until every scheduled fn returns, yielding the first error.
func (grp *Group) Wait() error { return grp.g.Wait() }

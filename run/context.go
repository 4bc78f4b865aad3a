package run

import (
	"context"
	"log/slog"

	"github.com/alexdanilowicz/trigger.dev/pending"
	"github.com/alexdanilowicz/trigger.dev/rpc"
)

// Context is the execution context handed to user workflow functions.
// Every operation below registers a pending-call entry and sends an
// intent RPC, then blocks until a matching RESOLVE_*/REJECT_* frame
// arrives, rather than reading or writing a local checkpoint.
type Context struct {
	ctx     context.Context
	run     *Run
	client  *rpc.Client
	pending *pending.Registry
	logger  *slog.Logger

	kv       *KVNamespace
	globalKV *KVNamespace
	runKV    *KVNamespace
}

// New builds a per-run Context. Called by Executor, not by user code.
func New(ctx context.Context, r *Run, client *rpc.Client, reg *pending.Registry, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	userLogger := slog.New(&teeHandler{remote: newLogHandler(client, r.ID), local: logger.Handler()})
	c := &Context{ctx: ctx, run: r, client: client, pending: reg, logger: userLogger}
	c.kv = newKVNamespace(c, "workflow:"+r.WorkflowID)
	c.globalKV = newKVNamespace(c, "org:"+r.OrganizationID)
	c.runKV = newKVNamespace(c, "run:"+r.ID)
	return c
}

// Context returns the underlying context.Context, ambient bundle
// included.
func (c *Context) Context() context.Context { return c.ctx }

// RunID returns the workflow run id.
func (c *Context) RunID() string { return c.run.ID }

// Run returns the run descriptor.
func (c *Context) Run() *Run { return c.run }

// KV returns the handle scoped to this workflow definition.
func (c *Context) KV() *KVNamespace { return c.kv }

// GlobalKV returns the handle scoped to the organization.
func (c *Context) GlobalKV() *KVNamespace { return c.globalKV }

// RunKV returns the handle scoped to this run only.
func (c *Context) RunKV() *KVNamespace { return c.runKV }

// Logger returns a logger whose records are journaled via fire-and-forget
// SEND_LOG calls, rate-limited so a runaway handler cannot flood the
// connection.
func (c *Context) Logger() *slog.Logger { return c.logger }

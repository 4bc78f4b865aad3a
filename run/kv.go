package run

import (
	"encoding/json"
	"fmt"

	"github.com/alexdanilowicz/trigger.dev/pending"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// KVNamespace is a namespaced view over the orchestrator-held key/value
// store. This client holds no local cache: every call is a journaled
// round trip, resolved by a pushed RESOLVE_KV_* frame.
//
// RESOLVE_KV_* frames carry only runId and key, not namespace, so two
// namespaces used concurrently with the same key within one run would
// collide in the pending registry. Callers sharing a run across KV,
// GlobalKV, and RunKV should pick keys that are unique across namespaces.
type KVNamespace struct {
	ctx       *Context
	namespace string
}

func newKVNamespace(c *Context, namespace string) *KVNamespace {
	return &KVNamespace{ctx: c, namespace: namespace}
}

type kvGetResolution struct {
	found bool
	value json.RawMessage
}

// Get fetches key, reporting found=false if it was never set.
func (n *KVNamespace) Get(key string) (value json.RawMessage, found bool, err error) {
	c := n.ctx
	wait := c.pending.Register(pending.KindKVGet, c.run.ID, key)
	if _, err := c.client.Send(c.ctx, wire.SendKVGet, c.run.ID, key, map[string]any{
		"runId": c.run.ID, "key": key, "namespace": n.namespace, "idempotencyKey": wire.NewFrameID(),
	}); err != nil {
		c.pending.Reject(pending.KindKVGet, c.run.ID, key, err)
		return nil, false, err
	}
	val, err := wait()
	if err != nil {
		return nil, false, err
	}
	res, ok := val.(kvGetResolution)
	if !ok {
		return nil, false, fmt.Errorf("run: malformed kv-get resolution for key %q", key)
	}
	return res.value, res.found, nil
}

// Set writes key to value.
func (n *KVNamespace) Set(key string, value any) error {
	c := n.ctx
	wait := c.pending.Register(pending.KindKVSet, c.run.ID, key)
	if _, err := c.client.Send(c.ctx, wire.SendKVSet, c.run.ID, key, map[string]any{
		"runId": c.run.ID, "key": key, "namespace": n.namespace, "idempotencyKey": wire.NewFrameID(), "value": value,
	}); err != nil {
		c.pending.Reject(pending.KindKVSet, c.run.ID, key, err)
		return err
	}
	_, err := wait()
	return err
}

// Delete removes key.
func (n *KVNamespace) Delete(key string) error {
	c := n.ctx
	wait := c.pending.Register(pending.KindKVDelete, c.run.ID, key)
	if _, err := c.client.Send(c.ctx, wire.SendKVDelete, c.run.ID, key, map[string]any{
		"runId": c.run.ID, "key": key, "namespace": n.namespace, "idempotencyKey": wire.NewFrameID(),
	}); err != nil {
		c.pending.Reject(pending.KindKVDelete, c.run.ID, key, err)
		return err
	}
	_, err := wait()
	return err
}

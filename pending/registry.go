// Package pending implements the pending-call registry: one correlation
// table per journaled operation kind, keyed by (runId, userKey), backing
// the suspended logical task until a matching RESOLVE_*/REJECT_* frame
// arrives. Each kind gets its own table so that a RESOLVE_FETCH can never
// be mistaken for a RESOLVE_RUN_ONCE sharing the same key.
package pending

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind identifies a journaled operation family. Each kind gets its own
// correlation table so that a wait's key and a fetch's key never collide
// even if a user picks the same string for both.
type Kind string

const (
	KindWait     Kind = "wait"
	KindRunOnce  Kind = "runOnce"
	KindRequest  Kind = "request"
	KindFetch    Kind = "fetch"
	KindKVGet    Kind = "kvGet"
	KindKVSet    Kind = "kvSet"
	KindKVDelete Kind = "kvDelete"
)

type key struct {
	runID   string
	userKey string
}

type entry struct {
	settle chan result
}

type result struct {
	value any
	err   error
}

// Registry holds one correlation table per Kind.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	tables  map[Kind]map[key]*entry
}

// New builds an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	tables := make(map[Kind]map[key]*entry, 7)
	for _, k := range []Kind{KindWait, KindRunOnce, KindRequest, KindFetch, KindKVGet, KindKVSet, KindKVDelete} {
		tables[k] = make(map[key]*entry)
	}
	return &Registry{logger: logger, tables: tables}
}

// Register inserts a pending entry for (kind, runID, userKey) and returns
// a wait function the caller blocks on to observe the resolution. It is
// an invariant violation to Register the same (kind, runID, userKey)
// twice concurrently; Register panics in that case since it indicates a
// caller bug (duplicate call key within one run), not a runtime condition
// to recover from.
func (r *Registry) Register(k Kind, runID, userKey string) (wait func() (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tbl := r.tables[k]
	ck := key{runID: runID, userKey: userKey}
	if _, exists := tbl[ck]; exists {
		panic(fmt.Sprintf("pending: duplicate call key %q for kind %q in run %q", userKey, k, runID))
	}

	e := &entry{settle: make(chan result, 1)}
	tbl[ck] = e

	return func() (any, error) {
		res := <-e.settle
		return res.value, res.err
	}
}

// Resolve fulfills a pending entry with value. It returns false (never an
// error) if no entry exists for (kind, runID, userKey) — the
// resumption-tolerance contract: a server-originated resolve for an
// unknown call key is logged at debug and otherwise ignored.
func (r *Registry) Resolve(k Kind, runID, userKey string, value any) bool {
	return r.settle(k, runID, userKey, result{value: value})
}

// Reject fails a pending entry with err. Same resumption-tolerance
// contract as Resolve.
func (r *Registry) Reject(k Kind, runID, userKey string, err error) bool {
	return r.settle(k, runID, userKey, result{err: err})
}

func (r *Registry) settle(k Kind, runID, userKey string, res result) bool {
	r.mu.Lock()
	tbl := r.tables[k]
	ck := key{runID: runID, userKey: userKey}
	e, ok := tbl[ck]
	if ok {
		delete(tbl, ck)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("pending: resolve/reject for unknown call key",
			slog.String("kind", string(k)),
			slog.String("run_id", runID),
			slog.String("key", userKey),
		)
		return false
	}
	e.settle <- res
	return true
}

// Clear rejects and removes every entry across every kind for runID,
// called after COMPLETE_WORKFLOW_RUN/SEND_WORKFLOW_ERROR.
func (r *Registry) Clear(runID string) {
	teardownErr := fmt.Errorf("pending: run %q completed before this call was resolved", runID)

	r.mu.Lock()
	var toReject []*entry
	for _, tbl := range r.tables {
		for ck, e := range tbl {
			if ck.runID == runID {
				toReject = append(toReject, e)
				delete(tbl, ck)
			}
		}
	}
	r.mu.Unlock()

	for _, e := range toReject {
		e.settle <- result{err: teardownErr}
	}
}

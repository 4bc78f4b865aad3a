// Package run implements the workflow run executor and the per-run
// execution context handed to user code: the state machine that turns
// TRIGGER_WORKFLOW into a running handler invocation, maps its context
// calls onto journaled intents, and reports completion or failure.
//
// Rather than checking a local checkpoint before running a step, every
// context call here registers a pending-call entry and awaits a
// RESOLVE_*/REJECT_* frame pushed back over the same connection.
package run

// State is a run's position in its lifecycle.
type State string

const (
	StateReady      State = "READY"
	StateValidating State = "VALIDATING"
	StateRunning    State = "RUNNING"
	StateCompleted  State = "COMPLETED"
	StateErrored    State = "ERRORED"
)

// Run holds the attributes carried on TRIGGER_WORKFLOW. There is no
// persisted Entity/ScopeAppID/ParentRunID here: this client never stores
// a run, it only executes one for the duration of one handler invocation.
type Run struct {
	ID             string
	WorkflowID     string
	Environment    string
	APIKey         string
	OrganizationID string
	IsTest         bool
	AppOrigin      string
	Attempt        int
	State          State
}

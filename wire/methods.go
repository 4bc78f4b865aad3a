package wire

// Client→Server method names: calls the host issues to the orchestrator.
const (
	InitializeHostV2    = "INITIALIZE_HOST_V2"
	StartWorkflowRun    = "START_WORKFLOW_RUN"
	CompleteWorkflowRun = "COMPLETE_WORKFLOW_RUN"
	SendWorkflowError   = "SEND_WORKFLOW_ERROR"
	SendRequest         = "SEND_REQUEST"
	SendFetch           = "SEND_FETCH"
	SendEvent           = "SEND_EVENT"
	SendLog             = "SEND_LOG"
	InitializeDelay     = "INITIALIZE_DELAY"
	InitializeRunOnce   = "INITIALIZE_RUN_ONCE"
	CompleteRunOnce     = "COMPLETE_RUN_ONCE"
	SendKVGet           = "SEND_KV_GET"
	SendKVSet           = "SEND_KV_SET"
	SendKVDelete        = "SEND_KV_DELETE"
)

// Server→Client method names: calls the orchestrator issues to the host.
const (
	TriggerWorkflow     = "TRIGGER_WORKFLOW"
	ResolveDelay        = "RESOLVE_DELAY"
	ResolveRunOnce      = "RESOLVE_RUN_ONCE"
	ResolveRequest      = "RESOLVE_REQUEST"
	RejectRequest       = "REJECT_REQUEST"
	ResolveFetchRequest = "RESOLVE_FETCH_REQUEST"
	RejectFetchRequest  = "REJECT_FETCH_REQUEST"
	ResolveKVGet        = "RESOLVE_KV_GET"
	ResolveKVSet        = "RESOLVE_KV_SET"
	ResolveKVDelete     = "RESOLVE_KV_DELETE"
)

// fireAndForget lists client→server methods that never register a pending
// callback: the call is journaled and the host moves on.
var fireAndForget = map[string]bool{
	SendEvent: true,
	SendLog:   true,
}

// IsFireAndForget reports whether method never awaits a reply.
func IsFireAndForget(method string) bool { return fireAndForget[method] }

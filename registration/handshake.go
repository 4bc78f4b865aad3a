// Package registration implements the one-shot handshake by which the
// host advertises its workflow identity, version, and trigger metadata
// to the orchestrator and receives back workflow/environment/
// organization identifiers plus a dashboard URL.
//
// The request/response shape is the same send-then-block-for-correlated-
// response mechanics the rest of this module's RPC calls use, extended
// with the identity fields a registration handshake needs beyond a plain
// request/response pair.
package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/alexdanilowicz/trigger.dev/backoff"
	"github.com/alexdanilowicz/trigger.dev/rpc"
	"github.com/alexdanilowicz/trigger.dev/wire"
)

// Info is what the host advertises about itself at registration time.
type Info struct {
	APIKey         string
	WorkflowID     string
	WorkflowName   string
	Trigger        any
	PackageName    string
	PackageVersion string
	TriggerTTL     time.Duration
	Metadata       Metadata
}

// Slug identifies one side of a workflow/environment/organization triple.
type Slug struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// Record is the registration payload the orchestrator returns on
// success. Read-only to the rest of the host; replaced on every
// reconnect handshake.
type Record struct {
	Workflow     Slug   `json:"workflow"`
	Environment  Slug   `json:"environment"`
	Organization Slug   `json:"organization"`
	IsNew        bool   `json:"isNew"`
	URL          string `json:"url"`
}

type responseEnvelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Handshake sends INITIALIZE_HOST_V2 and decodes the tagged-union reply.
// On a server-reported error ({"type":"error"}) it returns that error
// immediately without retrying — only a transport timeout is retried
// (forever, with fixed backoff).
func Handshake(ctx context.Context, client *rpc.Client, info Info, logger *slog.Logger) (*Record, error) {
	if logger == nil {
		logger = slog.Default()
	}

	payload := map[string]any{
		"apiKey":         info.APIKey,
		"workflowId":     info.WorkflowID,
		"workflowName":   info.WorkflowName,
		"trigger":        info.Trigger,
		"packageName":    info.PackageName,
		"packageVersion": info.PackageVersion,
		"triggerTTL":     info.TriggerTTL.Seconds(),
		"metadata":       info.Metadata,
	}

	var record *Record
	strategy := backoff.NewConstant(3 * time.Second)
	err := retry.Do(
		func() error {
			raw, sendErr := client.Send(ctx, wire.InitializeHostV2, "", "", payload)
			if sendErr != nil {
				var to *rpc.TimeoutError
				if isTimeout(sendErr, &to) {
					logger.Warn("registration: handshake timed out, retrying", slog.String("error", sendErr.Error()))
					return sendErr
				}
				return permanentError{sendErr}
			}

			var env responseEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return permanentError{fmt.Errorf("registration: decode response: %w", err)}
			}
			if env.Type == "error" {
				return permanentError{fmt.Errorf("registration: %s", env.Message)}
			}

			var rec Record
			if err := json.Unmarshal(env.Data, &rec); err != nil {
				return permanentError{fmt.Errorf("registration: decode record: %w", err)}
			}
			record = &rec
			return nil
		},
		retry.Attempts(0),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			_, perm := err.(permanentError)
			return !perm
		}),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return strategy.Delay(int(n) + 1)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if pe, ok := err.(permanentError); ok {
			return nil, pe.err
		}
		return nil, err
	}
	return record, nil
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }

func isTimeout(err error, target **rpc.TimeoutError) bool {
	te, ok := err.(*rpc.TimeoutError)
	if ok {
		*target = te
	}
	return ok
}

package run

import (
	"errors"
	"fmt"
)

// ValidationError reports that a trigger's event payload failed its
// user-supplied schema. It is always converted to SEND_WORKFLOW_ERROR and
// never propagated as a Go panic.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return "event validation error: " + e.Detail }

// ErrorName lets NormalizeError classify a ValidationError by name without
// a type switch.
func (e *ValidationError) ErrorName() string { return "Event validation error" }

// UserError is the normalized shape of a user function failure, reported
// via SEND_WORKFLOW_ERROR as a {name, message, stackTrace?} tagged shape.
type UserError struct {
	Name       string
	Message    string
	StackTrace string
}

func (e *UserError) Error() string { return fmt.Sprintf("%s: %s", e.Name, e.Message) }

// NormalizeError classifies an arbitrary error value returned by user
// code into a UserError. A UserError anywhere in the chain is returned as
// is; otherwise an error that carries its own name (via a namedError
// interface) keeps that name, and any other error is reported under the
// name "Error". Both keep err.Error() as the message.
func NormalizeError(err error) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}
	var ne namedError
	if errors.As(err, &ne) {
		return &UserError{Name: ne.ErrorName(), Message: err.Error()}
	}
	return &UserError{Name: "Error", Message: err.Error()}
}

// namedError lets user error types supply a custom name without this
// package needing to know about them.
type namedError interface {
	ErrorName() string
}

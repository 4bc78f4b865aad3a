// Package ident defines TypeID-based identity types for the host.
//
// Both identifiers the client mints — the session id and the run id —
// share a single ID struct with a prefix that identifies which. IDs are
// K-sortable (UUIDv7-based), globally unique, and URL-safe in the format
// "prefix_suffix".
package ident

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixSession Prefix = "sess"
	PrefixRun     Prefix = "run"
)

// ID is the identifier type for sessions and runs. It wraps a TypeID
// providing a prefix-qualified, globally unique, sortable, URL-safe
// identifier in the format "prefix_suffix".
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New mints a fresh ID under prefix. Panics if prefix isn't a valid
// TypeID prefix — the two this package defines always are, so the only
// way to hit this is a caller constructing a third Prefix by hand.
func New(prefix Prefix) ID {
	return MustParse(string(prefix) + "_" + suffix())
}

// suffix generates a fresh K-sortable suffix by generating a TypeID under
// the throwaway prefix "x" and slicing off everything up to the first
// underscore. This lets New build every ID — regardless of
// prefix — through the exact same validated Parse path UnmarshalText and
// ParseWithPrefix already use, instead of having its own separate
// generate-then-wrap branch.
func suffix() string {
	tid, err := typeid.Generate("x")
	if err != nil {
		panic(fmt.Sprintf("ident: generate id suffix: %v", err))
	}
	s := tid.String()
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Parse parses a TypeID string (e.g., "run_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID without constraining its prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("ident: empty id")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("ident: %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and confirms its prefix is want before
// returning it — the call sites in this client always know which kind of
// id they expect, so an id minted for the wrong entity is a bug to catch
// here rather than somewhere downstream.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	if !strings.HasPrefix(s, string(want)+"_") {
		return Nil, fmt.Errorf("ident: %q does not have the %q prefix", s, want)
	}
	return Parse(s)
}

// MustParse is like Parse but panics on error. Reserved for hardcoded ID
// literals, e.g. in tests and examples, where a parse failure is a typo
// rather than anything a caller should recover from.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewSessionID generates a new unique session ID.
func NewSessionID() ID { return New(PrefixSession) }

// NewRunID generates a new unique run ID.
func NewRunID() ID { return New(PrefixRun) }

// ParseRunID parses a string and validates the "run" prefix.
func ParseRunID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRun) }

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

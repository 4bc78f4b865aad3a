package run_test

import (
	"encoding/json"
	"testing"

	"github.com/alexdanilowicz/trigger.dev/run"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := run.NewRegistry()
	def := &run.Definition{
		ID:   "wf-a",
		Name: "Workflow A",
		Handler: func(ctx *run.Context, event json.RawMessage) (any, error) {
			return nil, nil
		},
	}
	reg.Register(def)

	got, ok := reg.Lookup("wf-a")
	if !ok {
		t.Fatal("expected wf-a to be registered")
	}
	if got != def {
		t.Fatal("Lookup returned a different Definition than was registered")
	}

	if _, ok := reg.Lookup("missing"); ok {
		t.Fatal("expected no definition for an unregistered workflow id")
	}
}

func TestRegistry_RegisterReplacesExisting(t *testing.T) {
	reg := run.NewRegistry()
	reg.Register(&run.Definition{ID: "wf-b", Name: "first"})
	reg.Register(&run.Definition{ID: "wf-b", Name: "second"})

	got, ok := reg.Lookup("wf-b")
	if !ok {
		t.Fatal("expected wf-b to be registered")
	}
	if got.Name != "second" {
		t.Fatalf("Name = %q, want second", got.Name)
	}
}

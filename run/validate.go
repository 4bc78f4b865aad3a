package run

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// TriggerValidator validates a trigger's raw event payload against a
// user-supplied schema. JSONSchemaValidator is the default implementation,
// built on the same santhosh-tekuri/jsonschema/v6 library wire/schema.go
// uses for RPC payloads.
type TriggerValidator interface {
	Validate(schema, event json.RawMessage) error
}

// JSONSchemaValidator is the default TriggerValidator.
type JSONSchemaValidator struct{}

func (JSONSchemaValidator) Validate(schemaDoc, event json.RawMessage) error {
	c := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(schemaDoc, &doc); err != nil {
		return fmt.Errorf("run: invalid trigger schema: %w", err)
	}
	const resource = "trigger-schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return fmt.Errorf("run: add trigger schema: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("run: compile trigger schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(event))
	dec.UseNumber()
	var eventDoc any
	if err := dec.Decode(&eventDoc); err != nil {
		return &ValidationError{Detail: fmt.Sprintf("decode event: %v", err)}
	}
	if err := schema.Validate(eventDoc); err != nil {
		return &ValidationError{Detail: err.Error()}
	}
	return nil
}

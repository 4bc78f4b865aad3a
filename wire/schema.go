package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Method describes one entry in a directional catalogue: the compiled
// request schema and an optional compiled response schema the server's
// reply must satisfy. No catalogued method defines a response schema, so
// Response is nil for every entry.
type Method struct {
	Name     string
	Request  *jsonschema.Schema
	Response *jsonschema.Schema // nil when the method has no response schema
}

// Catalogue is a set of methods keyed by name.
type Catalogue map[string]*Method

// ClientMethods is the Client→Server catalogue: methods the host sends.
var ClientMethods Catalogue

// ServerMethods is the Server→Client catalogue: methods the host handles.
var ServerMethods Catalogue

func init() {
	ClientMethods = mustCatalogue(map[string]schemaPair{
		InitializeHostV2:    {req: schemaInitializeHostV2},
		StartWorkflowRun:    {req: schemaRunScoped},
		CompleteWorkflowRun: {req: schemaCompleteWorkflowRun},
		SendWorkflowError:   {req: schemaSendWorkflowError},
		SendRequest:         {req: schemaSendRequest},
		SendFetch:           {req: schemaSendFetch},
		SendEvent:           {req: schemaSendEvent},
		SendLog:             {req: schemaSendLog},
		InitializeDelay:     {req: schemaInitializeDelay},
		InitializeRunOnce:   {req: schemaInitializeRunOnce},
		CompleteRunOnce:     {req: schemaCompleteRunOnce},
		SendKVGet:           {req: schemaKVGet},
		SendKVSet:           {req: schemaKVSet},
		SendKVDelete:        {req: schemaKVDelete},
	})

	ServerMethods = mustCatalogue(map[string]schemaPair{
		TriggerWorkflow:     {req: schemaTriggerWorkflow},
		ResolveDelay:        {req: schemaRunScopedKeyed},
		ResolveRunOnce:      {req: schemaResolveRunOnce},
		ResolveRequest:      {req: schemaResolveRequest},
		RejectRequest:       {req: schemaRejectGeneric},
		ResolveFetchRequest: {req: schemaResolveFetch},
		RejectFetchRequest:  {req: schemaRejectGeneric},
		ResolveKVGet:        {req: schemaResolveKVGet},
		ResolveKVSet:        {req: schemaRunScopedKeyed},
		ResolveKVDelete:     {req: schemaRunScopedKeyed},
	})
}

type schemaPair struct {
	req string
	res string
}

func mustCatalogue(pairs map[string]schemaPair) Catalogue {
	cat := make(Catalogue, len(pairs))
	for name, p := range pairs {
		m := &Method{Name: name, Request: mustCompile(name+".request", p.req)}
		if p.res != "" {
			m.Response = mustCompile(name+".response", p.res)
		}
		cat[name] = m
	}
	return cat
}

func mustCompile(resourceName, schemaJSON string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("wire: invalid schema literal for %s: %v", resourceName, err))
	}
	if err := c.AddResource(resourceName, doc); err != nil {
		panic(fmt.Sprintf("wire: add resource %s: %v", resourceName, err))
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		panic(fmt.Sprintf("wire: compile %s: %v", resourceName, err))
	}
	return schema
}

// Validate checks payload against the method's request schema.
func (m *Method) Validate(payload json.RawMessage) error {
	return validateAgainst(m.Request, payload)
}

// ValidateResponse checks payload against the method's response schema.
// Methods with no response schema (currently every method) always pass.
func (m *Method) ValidateResponse(payload json.RawMessage) error {
	if m.Response == nil {
		return nil
	}
	return validateAgainst(m.Response, payload)
}

func validateAgainst(schema *jsonschema.Schema, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("wire: decode payload: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("wire: schema validation: %w", err)
	}
	return nil
}

// ── inline schema literals ──────────────────────────

const schemaRunScoped = `{
  "type": "object",
  "required": ["runId"],
  "properties": {"runId": {"type": "string"}}
}`

const schemaRunScopedKeyed = `{
  "type": "object",
  "required": ["runId", "key"],
  "properties": {"runId": {"type": "string"}, "key": {"type": "string"}}
}`

const schemaInitializeHostV2 = `{
  "type": "object",
  "required": ["apiKey", "workflowId", "workflowName"],
  "properties": {
    "apiKey": {"type": "string"},
    "workflowId": {"type": "string"},
    "workflowName": {"type": "string"},
    "trigger": {},
    "packageName": {"type": "string"},
    "packageVersion": {"type": "string"},
    "triggerTTL": {},
    "metadata": {"type": "object"}
  }
}`

const schemaCompleteWorkflowRun = `{
  "type": "object",
  "required": ["runId", "output"],
  "properties": {"runId": {"type": "string"}, "output": {"type": "string"}}
}`

const schemaSendWorkflowError = `{
  "type": "object",
  "required": ["runId", "error"],
  "properties": {
    "runId": {"type": "string"},
    "error": {
      "type": "object",
      "required": ["name", "message"],
      "properties": {
        "name": {"type": "string"},
        "message": {"type": "string"},
        "stackTrace": {"type": "string"}
      }
    }
  }
}`

const schemaSendRequest = `{
  "type": "object",
  "required": ["runId", "key", "service", "endpoint"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "service": {"type": "string"},
    "endpoint": {"type": "string"},
    "params": {},
    "version": {"type": "string"}
  }
}`

const schemaSendFetch = `{
  "type": "object",
  "required": ["runId", "key", "url"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "url": {"type": "string"},
    "method": {"type": "string"},
    "headers": {"type": "object"},
    "body": {},
    "retry": {}
  }
}`

const schemaSendEvent = `{
  "type": "object",
  "required": ["runId", "name"],
  "properties": {
    "runId": {"type": "string"},
    "name": {"type": "string"},
    "payload": {}
  }
}`

const schemaSendLog = `{
  "type": "object",
  "required": ["runId", "level", "message"],
  "properties": {
    "runId": {"type": "string"},
    "level": {"type": "string"},
    "message": {"type": "string"},
    "fields": {"type": "object"}
  }
}`

const schemaInitializeDelay = `{
  "type": "object",
  "required": ["runId", "key", "wait"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "wait": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"enum": ["DELAY", "SCHEDULE_FOR"]},
        "seconds": {"type": "number"},
        "minutes": {"type": "number"},
        "hours": {"type": "number"},
        "days": {"type": "number"},
        "date": {"type": "string"}
      }
    }
  }
}`

const schemaInitializeRunOnce = `{
  "type": "object",
  "required": ["runId", "key", "type"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "type": {"enum": ["REMOTE", "LOCAL_ONLY"]}
  }
}`

const schemaCompleteRunOnce = `{
  "type": "object",
  "required": ["runId", "key", "idempotencyKey"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "idempotencyKey": {"type": "string"},
    "output": {"type": ["string", "null"]}
  }
}`

const schemaKVGet = `{
  "type": "object",
  "required": ["runId", "key", "namespace", "idempotencyKey"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "namespace": {"type": "string"},
    "idempotencyKey": {"type": "string"}
  }
}`

const schemaKVSet = `{
  "type": "object",
  "required": ["runId", "key", "namespace", "idempotencyKey", "value"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "namespace": {"type": "string"},
    "idempotencyKey": {"type": "string"},
    "value": {}
  }
}`

const schemaKVDelete = `{
  "type": "object",
  "required": ["runId", "key", "namespace", "idempotencyKey"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "namespace": {"type": "string"},
    "idempotencyKey": {"type": "string"}
  }
}`

const schemaTriggerWorkflow = `{
  "type": "object",
  "required": ["runId", "trigger", "meta"],
  "properties": {
    "runId": {"type": "string"},
    "trigger": {
      "type": "object",
      "required": ["input"],
      "properties": {"input": {}}
    },
    "meta": {
      "type": "object",
      "required": ["attempt", "workflowId"],
      "properties": {
        "attempt": {"type": "integer"},
        "workflowId": {"type": "string"},
        "environment": {"type": "string"},
        "apiKey": {"type": "string"},
        "organizationId": {"type": "string"},
        "isTest": {"type": "boolean"},
        "appOrigin": {"type": "string"}
      }
    }
  }
}`

const schemaResolveRunOnce = `{
  "type": "object",
  "required": ["runId", "key", "idempotencyKey", "hasRun"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "idempotencyKey": {"type": "string"},
    "hasRun": {"type": "boolean"},
    "output": {}
  }
}`

const schemaResolveRequest = `{
  "type": "object",
  "required": ["runId", "key"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "value": {}
  }
}`

const schemaRejectGeneric = `{
  "type": "object",
  "required": ["runId", "key", "error"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "error": {"type": "object"}
  }
}`

const schemaResolveFetch = `{
  "type": "object",
  "required": ["runId", "key", "status", "ok", "body"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "status": {"type": "integer"},
    "ok": {"type": "boolean"},
    "headers": {"type": "object"},
    "body": {}
  }
}`

const schemaResolveKVGet = `{
  "type": "object",
  "required": ["runId", "key"],
  "properties": {
    "runId": {"type": "string"},
    "key": {"type": "string"},
    "value": {},
    "found": {"type": "boolean"}
  }
}`

// Package rpc implements the RPC Surface (RP, spec §4.8): the
// line-delimited JSON request/response pair gatosd exposes over the Message
// Plane (messages.read, messages.publish, messages.prune). Grounded on the
// teacher's pkg/api request-validation conventions, with JSON Schema
// validation via santhosh-tekuri/jsonschema/v5 (teacher go.mod) standing in
// for the teacher's schema-registry checks at the API boundary.
package rpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const readParamsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["topic"],
	"properties": {
		"topic": {"type": "string", "minLength": 1},
		"since": {"type": "string"},
		"limit": {"type": "integer", "minimum": 1},
		"repo": {"type": "string"},
		"checkpoint_group": {"type": "string"}
	}
}`

const pruneParamsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["topic", "retention_days"],
	"properties": {
		"topic": {"type": "string", "minLength": 1},
		"repo": {"type": "string"},
		"retention_days": {"type": "number", "minimum": 0}
	}
}`

const publishParamsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["topic", "namespace", "actor", "event_type", "ulid"],
	"properties": {
		"topic": {"type": "string", "minLength": 1},
		"namespace": {"type": "string", "minLength": 1},
		"actor": {"type": "string", "minLength": 1},
		"event_type": {"type": "string", "minLength": 1},
		"ulid": {"type": "string", "minLength": 26, "maxLength": 26},
		"caps": {"type": "array", "items": {"type": "string"}},
		"payload": {"type": "object"},
		"policy_root": {"type": "string"},
		"metadata": {"type": "object"}
	}
}`

var (
	schemasOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	sources := map[string]string{
		"read.json":    readParamsSchema,
		"prune.json":   pruneParamsSchema,
		"publish.json": publishParamsSchema,
	}
	for name, src := range sources {
		if err := c.AddResource(name, strings.NewReader(src)); err != nil {
			compileErr = fmt.Errorf("rpc: adding schema resource %s: %w", name, err)
			return
		}
	}

	compiled = make(map[string]*jsonschema.Schema, len(sources))
	for name := range sources {
		s, err := c.Compile(name)
		if err != nil {
			compileErr = fmt.Errorf("rpc: compiling schema %s: %w", name, err)
			return
		}
		compiled[name] = s
	}
}

// validateParams validates raw (a request's "params" member) against the
// named schema, decoding it into a generic value first the way
// jsonschema/v5 requires (it validates decoded Go values, not raw bytes).
func validateParams(schemaName string, raw json.RawMessage) error {
	schemasOnce.Do(compileSchemas)
	if compileErr != nil {
		return fmt.Errorf("rpc: schema compiler unavailable: %w", compileErr)
	}
	schema, ok := compiled[schemaName]
	if !ok {
		return fmt.Errorf("rpc: unknown schema %q", schemaName)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w: params: %v", ErrMalformedRequest, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return nil
}

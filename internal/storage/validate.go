package storage

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// JSON Schemas checked against the two persisted blobs that otherwise
// travel as opaque JSON columns: mcp_services.transport/default_policy and
// project_service_links.policy_override. SQLite has no way to constrain the
// shape of a TEXT column, so this is the only gate between a malformed blob
// and a row a later reader can't unmarshal.
const transportSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["kind"],
  "properties": {
    "kind":    {"type": "string", "enum": ["stdio", "http"]},
    "command": {"type": "string"},
    "args":    {"type": "array", "items": {"type": "string"}},
    "env":     {"type": "object", "additionalProperties": {"type": "string"}},
    "url":     {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

const toolPolicySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["mode"],
  "properties": {
    "mode":         {"type": "string", "enum": ["allow_all", "deny_all", "custom"]},
    "allowedTools": {"type": "array", "items": {"type": "string"}},
    "deniedTools":  {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	transportSchema  = mustCompileSchema("mantra://schema/transport.json", transportSchemaJSON)
	toolPolicySchema = mustCompileSchema("mantra://schema/tool_policy.json", toolPolicySchemaJSON)
)

func mustCompileSchema(id, schemaJSON string) *jsonschema.Schema {
	var doc interface{}
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		panic(fmt.Sprintf("storage: invalid embedded schema %s: %v", id, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, doc); err != nil {
		panic(fmt.Sprintf("storage: add schema resource %s: %v", id, err))
	}
	schema, err := compiler.Compile(id)
	if err != nil {
		panic(fmt.Sprintf("storage: compile schema %s: %v", id, err))
	}
	return schema
}

// validateAgainstSchema decodes raw and checks it against schema, used to
// gate a service/policy blob before it's written to SQLite.
func validateAgainstSchema(schema *jsonschema.Schema, raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode for schema validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/helixops/ruleflow/pkg/schema"
)

// conditionsSchemaJSON is the JSON Schema for a rule's conditions payload.
// Embedded as a constant to avoid filesystem dependencies.
const conditionsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://ruleflow.dev/schemas/conditions.json",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["field", "operator"],
    "properties": {
      "field": { "type": "string", "minLength": 1 },
      "operator": { "type": "string", "minLength": 1 },
      "value": {},
      "logic": { "type": "string", "enum": ["AND", "OR"] }
    },
    "additionalProperties": false
  }
}`

// actionsSchemaJSON is the JSON Schema for a rule's actions payload.
const actionsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://ruleflow.dev/schemas/actions.json",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["type"],
    "properties": {
      "id": { "type": "string" },
      "type": { "type": "string", "minLength": 1 },
      "config": { "type": "object" },
      "order": { "type": "integer" }
    },
    "additionalProperties": false
  }
}`

// RuleValidator decodes and validates a rule's conditions/actions payloads.
// A payload that fails here is a structural error: the execution is marked
// failed, as opposed to per-action failures which are recorded and skipped
// over. Safe for concurrent use.
type RuleValidator struct {
	conditions *jsonschema.Schema
	actions    *jsonschema.Schema
}

// NewRuleValidator compiles the embedded payload schemas.
func NewRuleValidator() (*RuleValidator, error) {
	conditions, err := compileEmbedded("https://ruleflow.dev/schemas/conditions.json", conditionsSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile conditions schema: %w", err)
	}
	actions, err := compileEmbedded("https://ruleflow.dev/schemas/actions.json", actionsSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile actions schema: %w", err)
	}
	return &RuleValidator{conditions: conditions, actions: actions}, nil
}

// DecodeConditions validates and decodes a rule's conditions payload.
// An empty payload decodes to no conditions (the rule always matches).
func (v *RuleValidator) DecodeConditions(raw json.RawMessage) ([]schema.Condition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "conditions payload is not valid JSON: %v", err).WithCause(err)
	}
	if err := v.conditions.Validate(doc); err != nil {
		return nil, toRuleError(err)
	}

	var conds []schema.Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode conditions: %v", err).WithCause(err)
	}
	return conds, nil
}

// DecodeActions validates and decodes a rule's actions payload.
func (v *RuleValidator) DecodeActions(raw json.RawMessage) ([]schema.ActionDefinition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "actions payload is not valid JSON: %v", err).WithCause(err)
	}
	if err := v.actions.Validate(doc); err != nil {
		return nil, toRuleError(err)
	}

	var actions []schema.ActionDefinition
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode actions: %v", err).WithCause(err)
	}
	return actions, nil
}

func compileEmbedded(url, schemaJSON string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(url)
}

// toRuleError converts a jsonschema.ValidationError into a RuleError with
// the leaf violations listed.
func toRuleError(err error) *schema.RuleError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

// Package capability provides the uniform call surface to external
// capability providers: schema validation, rate limiting, circuit
// breaking, and the shared retry policy around every provider call.
package capability

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

// FieldKind names the value shape a schema field accepts.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindList    FieldKind = "list"
	KindMapping FieldKind = "mapping"
)

// FieldSpec describes one field of a capability payload.
type FieldSpec struct {
	Kind     FieldKind `yaml:"kind"`
	Required bool      `yaml:"required"`
}

// Schema validates the structured input and output of one capability.
// Provider payloads that do not match fail fast as ValidationError
// instead of leaking corrupt fields into a lead record.
type Schema struct {
	Input  map[string]FieldSpec `yaml:"input"`
	Output map[string]FieldSpec `yaml:"output"`
}

// DefaultRegistry returns the built-in per-capability schemas.
func DefaultRegistry() map[string]Schema {
	return map[string]Schema{
		model.CapabilityEnrich: {
			Input: map[string]FieldSpec{
				"company_name": {Kind: KindString, Required: true},
				"domain":       {Kind: KindString},
				"location":     {Kind: KindString},
			},
			Output: map[string]FieldSpec{
				"employee_count":  {Kind: KindNumber},
				"revenue_band":    {Kind: KindString},
				"tech_stack":      {Kind: KindList},
				"decision_makers": {Kind: KindList},
			},
		},
		model.CapabilityQualify: {
			Input: map[string]FieldSpec{
				"lead_data":    {Kind: KindMapping, Required: true},
				"icp_criteria": {Kind: KindMapping, Required: true},
			},
			Output: map[string]FieldSpec{
				"score":   {Kind: KindNumber, Required: true},
				"reasons": {Kind: KindList},
			},
		},
		model.CapabilityCompose: {
			Input: map[string]FieldSpec{
				"lead_profile":  {Kind: KindMapping, Required: true},
				"campaign_type": {Kind: KindString, Required: true},
				"tone":          {Kind: KindString},
			},
			Output: map[string]FieldSpec{
				"subject": {Kind: KindString},
				"body":    {Kind: KindString, Required: true},
			},
		},
		model.CapabilityCallScript: {
			Input: map[string]FieldSpec{
				"lead_context":   {Kind: KindMapping, Required: true},
				"call_objective": {Kind: KindString, Required: true},
			},
			Output: map[string]FieldSpec{
				"script": {Kind: KindString, Required: true},
			},
		},
		model.CapabilityValidate: {
			Input: map[string]FieldSpec{
				"data":             {Kind: KindMapping, Required: true},
				"validation_rules": {Kind: KindList},
			},
			Output: map[string]FieldSpec{
				"email_verified": {Kind: KindBoolean},
				"phone_verified": {Kind: KindBoolean},
			},
		},
	}
}

// LoadRegistry merges schema overrides from a YAML file over the
// defaults. Capabilities absent from the file keep their built-ins.
func LoadRegistry(path string) (map[string]Schema, error) {
	registry := DefaultRegistry()
	if path == "" {
		return registry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read %s", path)
	}
	var overrides map[string]Schema
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "schema: parse %s", path)
	}
	for name, schema := range overrides {
		registry[name] = schema
	}
	return registry, nil
}

// Validate checks a payload against the field specs. Unknown fields
// pass through untouched; providers may return more than we read.
func validatePayload(capability string, specs map[string]FieldSpec, payload map[string]any) error {
	for field, spec := range specs {
		val, ok := payload[field]
		if !ok || val == nil {
			if spec.Required {
				return &model.ValidationError{Capability: capability, Field: field, Reason: "required field missing"}
			}
			continue
		}
		if !matchesKind(val, spec.Kind) {
			return &model.ValidationError{Capability: capability, Field: field, Reason: "expected " + string(spec.Kind)}
		}
	}
	return nil
}

func matchesKind(v any, kind FieldKind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindList:
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case KindMapping:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}

// ValidateInput checks a capability request's input mapping.
func (s Schema) ValidateInput(capability string, input map[string]any) error {
	return validatePayload(capability, s.Input, input)
}

// ValidateOutput checks a provider response payload.
func (s Schema) ValidateOutput(capability string, payload map[string]any) error {
	return validatePayload(capability, s.Output, payload)
}

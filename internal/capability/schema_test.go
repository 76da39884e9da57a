package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestDefaultRegistry_CoversAllCapabilities(t *testing.T) {
	registry := DefaultRegistry()
	for _, capability := range []string{
		model.CapabilityEnrich, model.CapabilityQualify, model.CapabilityCompose,
		model.CapabilityCallScript, model.CapabilityValidate,
	} {
		_, ok := registry[capability]
		assert.True(t, ok, "missing schema for %s", capability)
	}
}

func TestValidateInput_RequiredField(t *testing.T) {
	schema := DefaultRegistry()[model.CapabilityEnrich]

	err := schema.ValidateInput(model.CapabilityEnrich, map[string]any{"domain": "acme.com"})
	require.Error(t, err)

	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "company_name", ve.Field)

	assert.NoError(t, schema.ValidateInput(model.CapabilityEnrich, map[string]any{"company_name": "Acme"}))
}

func TestValidateInput_KindMismatch(t *testing.T) {
	schema := DefaultRegistry()[model.CapabilityQualify]

	err := schema.ValidateInput(model.CapabilityQualify, map[string]any{
		"lead_data":    "not a mapping",
		"icp_criteria": map[string]any{},
	})
	require.Error(t, err)

	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "lead_data", ve.Field)
}

func TestValidateOutput_RequiredAndOptional(t *testing.T) {
	schema := DefaultRegistry()[model.CapabilityQualify]

	assert.Error(t, schema.ValidateOutput(model.CapabilityQualify, map[string]any{"reasons": []any{}}))
	assert.NoError(t, schema.ValidateOutput(model.CapabilityQualify, map[string]any{"score": 85.0}))

	// Unknown provider fields pass through.
	assert.NoError(t, schema.ValidateOutput(model.CapabilityQualify, map[string]any{
		"score": 85.0,
		"extra": "ignored",
	}))
}

func TestValidateOutput_NumberKinds(t *testing.T) {
	schema := DefaultRegistry()[model.CapabilityQualify]
	assert.NoError(t, schema.ValidateOutput(model.CapabilityQualify, map[string]any{"score": 85}))
	assert.NoError(t, schema.ValidateOutput(model.CapabilityQualify, map[string]any{"score": 85.0}))
	assert.Error(t, schema.ValidateOutput(model.CapabilityQualify, map[string]any{"score": "85"}))
}

func TestLoadRegistry_MergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.yaml")
	override := `
enrich_lead:
  input:
    company_name:
      kind: string
      required: true
    country:
      kind: string
      required: true
`
	require.NoError(t, os.WriteFile(path, []byte(override), 0o644))

	registry, err := LoadRegistry(path)
	require.NoError(t, err)

	// Overridden capability uses the file's schema.
	enrich := registry[model.CapabilityEnrich]
	assert.Error(t, enrich.ValidateInput(model.CapabilityEnrich, map[string]any{"company_name": "Acme"}))
	assert.NoError(t, enrich.ValidateInput(model.CapabilityEnrich, map[string]any{
		"company_name": "Acme",
		"country":      "US",
	}))

	// Untouched capabilities keep their built-ins.
	_, ok := registry[model.CapabilityCompose]
	assert.True(t, ok)
}

func TestLoadRegistry_EmptyPathUsesDefaults(t *testing.T) {
	registry, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Len(t, registry, 5)
}

func TestLoadRegistry_MissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbi/gatekeeper/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRecords_Array(t *testing.T) {
	path := writeFile(t, "batch.json", `[
		{"order_id": "o-1", "amount": 50.0},
		{"order_id": "o-2", "amount": 75.5}
	]`)

	records, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 0, records[0].RowIndex)
	assert.Equal(t, 1, records[1].RowIndex)
	assert.Equal(t, "o-1", records[0].Fields["order_id"])
	assert.Equal(t, 75.5, records[1].Fields["amount"])
}

func TestLoadRecords_Lines(t *testing.T) {
	path := writeFile(t, "batch.jsonl", `{"order_id": "o-1"}

{"order_id": "o-2"}
`)

	records, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "o-2", records[1].Fields["order_id"])
}

func TestLoadRecords_BadJSON(t *testing.T) {
	path := writeFile(t, "batch.jsonl", `{"order_id": }`)

	_, err := LoadRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadRecords_Empty(t *testing.T) {
	path := writeFile(t, "batch.json", "  \n")
	_, err := LoadRecords(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadRecords_MissingFile(t *testing.T) {
	_, err := LoadRecords(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadRules_YAML(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
field_configs:
  amount:
    data_type: number
    required: true
    business_critical: true
  region:
    data_type: string
    allow_imputation: true
    imputation_risk: low
    default_value: unknown
calculation_rules:
  - formula: "amount = quantity * price"
date_fields: [order_date]
primary_keys: [order_id]
foreign_keys:
  - field: dept_id
    reference_table: departments
    reference_field: id
business_rules:
  amount_range:
    field: amount
    rule_type: range
    min: 0
    max: 100000
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	amount := rules.FieldConfigs["amount"]
	assert.Equal(t, model.TypeNumber, amount.DataType)
	assert.True(t, amount.Required)
	assert.True(t, amount.BusinessCritical)

	region := rules.FieldConfigs["region"]
	assert.True(t, region.AllowImputation)
	assert.Equal(t, "unknown", region.DefaultValue)

	require.Len(t, rules.CalculationRules, 1)
	assert.Equal(t, []string{"order_id"}, rules.PrimaryKeys)
	require.Len(t, rules.ForeignKeys, 1)
	assert.Equal(t, "departments", rules.ForeignKeys[0].ReferenceTable)

	rule := rules.BusinessRules["amount_range"]
	assert.Equal(t, model.RuleTypeRange, rule.RuleType)
	require.NotNil(t, rule.Min)
	assert.Equal(t, 0.0, *rule.Min)
}

func TestLoadRules_JSONCompatible(t *testing.T) {
	path := writeFile(t, "rules.json", `{"primary_keys": ["order_id"]}`)

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id"}, rules.PrimaryKeys)
}

func TestLoadRules_Malformed(t *testing.T) {
	path := writeFile(t, "rules.yaml", "field_configs: [not: a: map")
	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse rules")
}

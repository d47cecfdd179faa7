package model

// Risk levels for automated value filling.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Data types recognized by field configuration.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeDate    = "date"
	TypeBool    = "bool"
)

// FieldConfig is the static per-field metadata for a batch.
type FieldConfig struct {
	DataType          string `json:"data_type" yaml:"data_type"`
	FormatPattern     string `json:"format_pattern,omitempty" yaml:"format_pattern,omitempty"`
	DefaultValue      any    `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	RuleName          string `json:"rule_name,omitempty" yaml:"rule_name,omitempty"`
	Required          bool   `json:"required" yaml:"required"`
	BusinessCritical  bool   `json:"business_critical" yaml:"business_critical"`
	AllowImputation   bool   `json:"allow_imputation" yaml:"allow_imputation"`
	AllowMLImputation bool   `json:"allow_ml_imputation" yaml:"allow_ml_imputation"`
	ImputationRisk    string `json:"imputation_risk" yaml:"imputation_risk"`
}

// Risk returns the configured imputation risk, defaulting to medium when the
// config leaves it unset.
func (c FieldConfig) Risk() string {
	switch c.ImputationRisk {
	case RiskLow, RiskMedium, RiskHigh:
		return c.ImputationRisk
	default:
		return RiskMedium
	}
}

// CalculationRule is a declared arithmetic relationship between fields, as
// supplied by the caller.
type CalculationRule struct {
	Formula string `json:"formula" yaml:"formula"`
}

// ForeignKey declares that a field's values must exist in a reference table.
type ForeignKey struct {
	Field          string `json:"field" yaml:"field"`
	ReferenceTable string `json:"reference_table" yaml:"reference_table"`
	ReferenceField string `json:"reference_field" yaml:"reference_field"`
}

// Business rule types.
const (
	RuleTypeRange = "range"
	RuleTypeEnum  = "enum"
)

// BusinessRule constrains a single field's values: a numeric range or an
// enumerated value set.
type BusinessRule struct {
	Field    string   `json:"field" yaml:"field"`
	RuleType string   `json:"rule_type" yaml:"rule_type"`
	Min      *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Allowed  []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
}

// ValidationRules bundles everything the quality assessor needs to judge a
// batch.
type ValidationRules struct {
	FieldConfigs     map[string]FieldConfig  `json:"field_configs" yaml:"field_configs"`
	CalculationRules []CalculationRule       `json:"calculation_rules" yaml:"calculation_rules"`
	DateFields       []string                `json:"date_fields" yaml:"date_fields"`
	PrimaryKeys      []string                `json:"primary_keys" yaml:"primary_keys"`
	ForeignKeys      []ForeignKey            `json:"foreign_keys" yaml:"foreign_keys"`
	BusinessRules    map[string]BusinessRule `json:"business_rules" yaml:"business_rules"`
}

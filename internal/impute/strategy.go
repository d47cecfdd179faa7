// Package impute fills missing values in a batch under a strict risk gate,
// choosing a fill strategy per field and emitting an auditable log entry for
// every cell it touches.
package impute

import "github.com/meridianbi/gatekeeper/internal/model"

// Fill methods, each with a fixed confidence attached to its log entries.
const (
	MethodRuleBased       = "rule_based"
	MethodNearestNeighbor = "nearest_neighbor"
	MethodIterative       = "iterative"
	MethodModelBased      = "model_based"
)

// StrategyAuto lets the selector pick a method per field.
const StrategyAuto = "auto"

// Missing-ratio cutoffs for automatic strategy selection.
const (
	numericRatioCutoff     = 0.10
	categoricalRatioCutoff = 0.20
)

// Confidence returns the fixed confidence recorded for fills made by a
// method.
func Confidence(method string) float64 {
	switch method {
	case MethodRuleBased:
		return 0.90
	case MethodNearestNeighbor:
		return 0.85
	case MethodIterative:
		return 0.80
	case MethodModelBased:
		return 0.75
	default:
		return 0
	}
}

// BlockReason returns why a field may not be imputed, or "" when the risk
// gate allows it. Fields carrying business meaning or elevated risk are
// excluded no matter how plausible a fill would be.
func BlockReason(cfg model.FieldConfig) string {
	switch {
	case !cfg.AllowImputation:
		return "imputation disabled for field"
	case cfg.BusinessCritical:
		return "business-critical field"
	case cfg.Risk() == model.RiskHigh:
		return "high imputation risk"
	case cfg.Required && cfg.Risk() != model.RiskLow:
		return "required field with non-low risk"
	default:
		return ""
	}
}

// SelectStrategy picks the fill method for one field. It is a pure function
// of the field's configuration and its missing ratio: explicit defaults and
// named rules always win, numeric fields escalate from nearest-neighbor to
// iterative regression as missingness grows, and categorical fields escalate
// from mode filling to a classifier. allow_ml_imputation=false pins the
// field to rule-based filling.
func SelectStrategy(cfg model.FieldConfig, missingRatio float64) string {
	if cfg.DefaultValue != nil || cfg.RuleName != "" {
		return MethodRuleBased
	}
	if !cfg.AllowMLImputation {
		return MethodRuleBased
	}
	switch cfg.DataType {
	case model.TypeNumber, model.TypeInteger:
		if missingRatio < numericRatioCutoff {
			return MethodNearestNeighbor
		}
		return MethodIterative
	default:
		if missingRatio < categoricalRatioCutoff {
			return MethodRuleBased
		}
		return MethodModelBased
	}
}

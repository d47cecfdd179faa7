package impute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestBlockReason(t *testing.T) {
	cases := []struct {
		name    string
		cfg     model.FieldConfig
		blocked bool
	}{
		{"imputation disabled", model.FieldConfig{AllowImputation: false}, true},
		{"business critical", model.FieldConfig{AllowImputation: true, BusinessCritical: true}, true},
		{"high risk", model.FieldConfig{AllowImputation: true, ImputationRisk: model.RiskHigh}, true},
		{"required medium risk", model.FieldConfig{AllowImputation: true, Required: true, ImputationRisk: model.RiskMedium}, true},
		{"required unset risk defaults medium", model.FieldConfig{AllowImputation: true, Required: true}, true},
		{"required low risk", model.FieldConfig{AllowImputation: true, Required: true, ImputationRisk: model.RiskLow}, false},
		{"plain optional field", model.FieldConfig{AllowImputation: true, ImputationRisk: model.RiskLow}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason := BlockReason(tc.cfg)
			if tc.blocked {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestSelectStrategy(t *testing.T) {
	ml := func(dataType string) model.FieldConfig {
		return model.FieldConfig{DataType: dataType, AllowImputation: true, AllowMLImputation: true}
	}

	cases := []struct {
		name  string
		cfg   model.FieldConfig
		ratio float64
		want  string
	}{
		{"default value wins", model.FieldConfig{DataType: model.TypeNumber, DefaultValue: 0.0, AllowMLImputation: true}, 0.5, MethodRuleBased},
		{"named rule wins", model.FieldConfig{DataType: model.TypeNumber, RuleName: "mean", AllowMLImputation: true}, 0.5, MethodRuleBased},
		{"ml disabled pins rule-based", model.FieldConfig{DataType: model.TypeNumber}, 0.5, MethodRuleBased},
		{"numeric low ratio", ml(model.TypeNumber), 0.05, MethodNearestNeighbor},
		{"numeric at cutoff", ml(model.TypeNumber), 0.10, MethodIterative},
		{"integer high ratio", ml(model.TypeInteger), 0.4, MethodIterative},
		{"categorical low ratio", ml(model.TypeString), 0.1, MethodRuleBased},
		{"categorical at cutoff", ml(model.TypeString), 0.20, MethodModelBased},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SelectStrategy(tc.cfg, tc.ratio))
		})
	}
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.90, Confidence(MethodRuleBased))
	assert.Equal(t, 0.85, Confidence(MethodNearestNeighbor))
	assert.Equal(t, 0.80, Confidence(MethodIterative))
	assert.Equal(t, 0.75, Confidence(MethodModelBased))
	assert.Equal(t, 0.0, Confidence("bogus"))
}

package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/conflict"
	"github.com/meridianbi/gatekeeper/internal/enhance"
	"github.com/meridianbi/gatekeeper/internal/impute"
	"github.com/meridianbi/gatekeeper/internal/model"
	"github.com/meridianbi/gatekeeper/internal/resolver"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleResult() *enhance.Result {
	return &enhance.Result{
		Decision: model.ImportFixable,
		Quality: &model.QualityVerdict{
			OverallScore:  0.88,
			Importability: model.ImportGood,
			Dimensions: map[string]model.QualityDimensionResult{
				"completeness":          {Score: 0.9, Weight: 0.20},
				"accuracy":              {Score: 0.85, Weight: 0.25},
				"consistency":           {Score: 1.0, Weight: 0.15},
				"timeliness":            {Score: 1.0, Weight: 0.10},
				"uniqueness":            {Score: 0.8, Weight: 0.15},
				"validity":              {Score: 0.9, Weight: 0.10},
				"referential_integrity": {Score: 1.0, Weight: 0.05},
			},
			FixableIssues: []model.QualityIssue{
				{Dimension: "uniqueness", Field: "order_id", Description: "2 duplicate key values", AutoFixable: true, Count: 2, Examples: []string{"o-7"}},
			},
		},
		Conflicts: &conflict.Result{
			Conflicts: []model.Conflict{
				{RowIndex: 3, Field: "amount", ExpectedValue: "50.00", ActualValue: "42.50", Difference: "7.5", Severity: model.SeverityHigh, AutoFixable: true, CascadeFields: []string{"margin"}},
			},
			Statistics: conflict.Statistics{ConflictsFound: 1, ManualReviewRequired: 0},
		},
		Imputation: &impute.Result{
			Log: []model.ImputationLogEntry{
				{RowIndex: 5, Field: "region", ImputedValue: "unknown", Method: impute.MethodRuleBased, Confidence: 0.90, RiskLevel: model.RiskLow},
			},
			BlockedFields: []model.BlockedField{
				{Field: "total", Reason: "business-critical field", MissingCount: 3},
			},
			Statistics: impute.Statistics{ImputedCount: 1, BlockedFieldsCount: 1},
		},
		Resolution: &resolver.Result{
			Unmatched: []resolver.Match{
				{RowIndex: 8, MatchReason: "below_threshold", Alternatives: []model.MatchCandidate{
					{MasterID: "m2", MasterName: "Globex Ltd", CompositeScore: 0.61},
				}},
			},
			Statistics: resolver.Statistics{MatchRate: 0.9},
		},
	}
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteWorkbook(path, sampleResult()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	names := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		names = append(names, sheet.Name)
	}
	assert.Equal(t, []string{"Summary", "Quality Issues", "Conflicts", "Imputation Log", "Unmatched"}, names)

	summary := f.Sheet["Summary"]
	require.NotNil(t, summary)
	assert.Equal(t, "Decision", summary.Rows[0].Cells[0].String())
	assert.Equal(t, model.ImportFixable, summary.Rows[0].Cells[1].String())

	conflicts := f.Sheet["Conflicts"]
	require.NotNil(t, conflicts)
	require.True(t, len(conflicts.Rows) >= 2)
	assert.Equal(t, "amount", conflicts.Rows[1].Cells[1].String())
	assert.Equal(t, "50.00", conflicts.Rows[1].Cells[2].String())
	assert.Equal(t, "margin", conflicts.Rows[1].Cells[7].String())

	imputation := f.Sheet["Imputation Log"]
	require.NotNil(t, imputation)
	assert.Equal(t, "region", imputation.Rows[1].Cells[1].String())
	assert.Equal(t, "rule_based", imputation.Rows[1].Cells[3].String())
}

func TestWriteWorkbook_NoResolution(t *testing.T) {
	result := sampleResult()
	result.Resolution = nil

	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteWorkbook(path, result))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Nil(t, f.Sheet["Unmatched"])
	assert.Len(t, f.Sheets, 4)
}

func TestWriteWorkbook_BadPath(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "missing", "report.xlsx"), sampleResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save workbook")
}

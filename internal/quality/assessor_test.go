package quality

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func rec(idx int, fields map[string]any) model.Record {
	return model.Record{RowIndex: idx, Fields: fields}
}

func floatPtr(f float64) *float64 { return &f }

func cleanRules() model.ValidationRules {
	return model.ValidationRules{
		FieldConfigs: map[string]model.FieldConfig{
			"id":         {DataType: model.TypeString, Required: true},
			"amount":     {DataType: model.TypeNumber},
			"status":     {DataType: model.TypeString},
			"updated_at": {DataType: model.TypeDate},
		},
		PrimaryKeys: []string{"id"},
		DateFields:  []string{"updated_at"},
		BusinessRules: map[string]model.BusinessRule{
			"amount_range": {Field: "amount", RuleType: model.RuleTypeRange, Min: floatPtr(0), Max: floatPtr(1000)},
			"status_enum":  {Field: "status", RuleType: model.RuleTypeEnum, Allowed: []string{"active", "inactive"}},
		},
	}
}

func cleanBatch(n int) []model.Record {
	records := make([]model.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, rec(i, map[string]any{
			"id":         fmt.Sprintf("row-%d", i),
			"amount":     float64(100 + i),
			"status":     "active",
			"updated_at": "2026-01-10",
		}))
	}
	return records
}

func TestAssess_CleanBatch(t *testing.T) {
	a := New(nil, Options{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	verdict, err := a.Assess(context.Background(), cleanBatch(10), cleanRules())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, verdict.OverallScore, 1e-9)
	assert.Equal(t, model.ImportExcellent, verdict.Importability)
	assert.Empty(t, verdict.BlockingIssues)
	assert.Empty(t, verdict.FixableIssues)
	assert.Len(t, verdict.Dimensions, 7)

	var weightSum float64
	for _, dim := range verdict.Dimensions {
		weightSum += dim.Weight
	}
	assert.InDelta(t, 1.0, weightSum, 1e-9)
}

func TestAssess_DuplicatePrimaryKeys(t *testing.T) {
	records := cleanBatch(10)
	records[7].Fields["id"] = records[3].Fields["id"]

	a := New(nil, Options{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	verdict, err := a.Assess(context.Background(), records, cleanRules())
	require.NoError(t, err)

	uniq := verdict.Dimensions["uniqueness"]
	assert.InDelta(t, 0.9, uniq.Score, 1e-9)
	assert.InDelta(t, 0.15, uniq.Weight, 1e-9)

	require.Len(t, verdict.FixableIssues, 1)
	issue := verdict.FixableIssues[0]
	assert.Equal(t, "uniqueness", issue.Dimension)
	assert.Equal(t, "id", issue.Field)
	assert.Equal(t, 1, issue.Count)
	assert.True(t, issue.AutoFixable)
	assert.Equal(t, []string{"row-3"}, issue.Examples)
}

func TestAssess_MostlyEmptyBatchRejected(t *testing.T) {
	records := []model.Record{
		rec(0, map[string]any{"id": "a"}),
		rec(1, map[string]any{"id": "b"}),
		rec(2, map[string]any{}),
		rec(3, map[string]any{}),
	}
	rules := model.ValidationRules{
		FieldConfigs: map[string]model.FieldConfig{
			"id":     {DataType: model.TypeString},
			"amount": {DataType: model.TypeNumber},
			"status": {DataType: model.TypeString},
		},
	}

	a := New(nil, Options{})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)

	assert.Equal(t, model.ImportRejected, verdict.Importability)
	require.NotEmpty(t, verdict.BlockingIssues)
	assert.Equal(t, "completeness", verdict.BlockingIssues[0].Dimension)
}

func TestAssess_BusinessCriticalFieldEmptyRejects(t *testing.T) {
	records := cleanBatch(10)
	for i := range records {
		delete(records[i].Fields, "amount")
	}
	rules := cleanRules()
	cfg := rules.FieldConfigs["amount"]
	cfg.BusinessCritical = true
	rules.FieldConfigs["amount"] = cfg

	a := New(nil, Options{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)

	// Only a quarter of cells are empty, so the overall score stays high;
	// the verdict is rejection regardless.
	assert.Greater(t, verdict.OverallScore, thresholdFixable)
	assert.Equal(t, model.ImportRejected, verdict.Importability)

	require.Len(t, verdict.BlockingIssues, 1)
	assert.Equal(t, "amount", verdict.BlockingIssues[0].Field)
	assert.Equal(t, 10, verdict.BlockingIssues[0].Count)
}

func TestAssess_AccuracyTypeViolations(t *testing.T) {
	records := cleanBatch(10)
	for i := 0; i < 5; i++ {
		records[i].Fields["amount"] = "not a number"
	}

	a := New(nil, Options{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	verdict, err := a.Assess(context.Background(), records, cleanRules())
	require.NoError(t, err)

	// amount passes half the time, the other three fields pass fully.
	acc := verdict.Dimensions["accuracy"]
	assert.InDelta(t, (0.5+1+1+1)/4, acc.Score, 1e-9)

	var found bool
	for _, issue := range verdict.FixableIssues {
		if issue.Dimension == "accuracy" && issue.Field == "amount" {
			found = true
			assert.Equal(t, 5, issue.Count)
			assert.Len(t, issue.Examples, 3)
		}
	}
	assert.True(t, found)
}

func TestAssess_FormatPattern(t *testing.T) {
	records := []model.Record{
		rec(0, map[string]any{"sku": "ABC123"}),
		rec(1, map[string]any{"sku": "bad"}),
	}
	rules := model.ValidationRules{
		FieldConfigs: map[string]model.FieldConfig{
			"sku": {DataType: model.TypeString, FormatPattern: `^[A-Z]{3}\d{3}$`},
		},
	}

	a := New(nil, Options{})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, verdict.Dimensions["accuracy"].Score, 1e-9)
}

func TestAssess_BadFormatPatternIsRuleError(t *testing.T) {
	rules := model.ValidationRules{
		FieldConfigs: map[string]model.FieldConfig{
			"sku": {DataType: model.TypeString, FormatPattern: `([`},
		},
	}
	a := New(nil, Options{})
	_, err := a.Assess(context.Background(), cleanBatch(2), rules)
	assert.ErrorIs(t, err, ErrRules)
}

func TestAssess_Consistency(t *testing.T) {
	records := []model.Record{
		rec(0, map[string]any{"quantity": 2.0, "price": 5.0, "amount": 10.0}),
		rec(1, map[string]any{"quantity": 3.0, "price": 5.0}),
	}
	rules := model.ValidationRules{
		CalculationRules: []model.CalculationRule{{Formula: "amount = quantity * price"}},
	}

	a := New(nil, Options{})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, verdict.Dimensions["consistency"].Score, 1e-9)
	require.Len(t, verdict.FixableIssues, 1)
	assert.Equal(t, "amount", verdict.FixableIssues[0].Field)
	assert.Equal(t, 1, verdict.FixableIssues[0].Count)
}

func TestAssess_MalformedFormulaIsRuleError(t *testing.T) {
	rules := model.ValidationRules{
		CalculationRules: []model.CalculationRule{{Formula: "no equals sign here"}},
	}
	a := New(nil, Options{})
	_, err := a.Assess(context.Background(), cleanBatch(2), rules)
	assert.ErrorIs(t, err, ErrRules)
}

func TestAssess_Timeliness(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	records := []model.Record{
		rec(0, map[string]any{"updated_at": "2025-12-01"}),
		rec(1, map[string]any{"updated_at": "2010-01-01"}),
		rec(2, map[string]any{"updated_at": "2030-01-01"}),
		rec(3, map[string]any{"updated_at": "not a date"}),
	}
	rules := model.ValidationRules{DateFields: []string{"updated_at"}}

	a := New(nil, Options{Now: now})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)

	assert.InDelta(t, 0.25, verdict.Dimensions["timeliness"].Score, 1e-9)
	require.Len(t, verdict.FixableIssues, 1)
	assert.Equal(t, 3, verdict.FixableIssues[0].Count)
}

func TestAssess_Validity(t *testing.T) {
	records := []model.Record{
		rec(0, map[string]any{"amount": 50.0, "status": "active"}),
		rec(1, map[string]any{"amount": -3.0, "status": "active"}),
		rec(2, map[string]any{"amount": 20.0, "status": "unknown"}),
		rec(3, map[string]any{"status": "inactive"}),
	}
	rules := model.ValidationRules{
		BusinessRules: map[string]model.BusinessRule{
			"amount_range": {Field: "amount", RuleType: model.RuleTypeRange, Min: floatPtr(0), Max: floatPtr(1000)},
			"status_enum":  {Field: "status", RuleType: model.RuleTypeEnum, Allowed: []string{"active", "inactive"}},
		},
	}

	a := New(nil, Options{})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)

	// 7 populated values checked, 5 pass.
	assert.InDelta(t, 5.0/7.0, verdict.Dimensions["validity"].Score, 1e-9)
	assert.Len(t, verdict.FixableIssues, 2)
}

func TestAssess_UnknownRuleType(t *testing.T) {
	rules := model.ValidationRules{
		BusinessRules: map[string]model.BusinessRule{
			"bad": {Field: "amount", RuleType: "regex"},
		},
	}
	a := New(nil, Options{})
	_, err := a.Assess(context.Background(), cleanBatch(2), rules)
	assert.ErrorIs(t, err, ErrRules)
}

type stubFetcher struct {
	values map[string]struct{}
	err    error
	calls  int
}

func (s *stubFetcher) FetchForeignKeyValues(_ context.Context, _, _, _ string) (map[string]struct{}, error) {
	s.calls++
	return s.values, s.err
}

func TestAssess_ReferentialIntegrity(t *testing.T) {
	records := []model.Record{
		rec(0, map[string]any{"dept_id": "d1"}),
		rec(1, map[string]any{"dept_id": "d2"}),
		rec(2, map[string]any{"dept_id": "ghost"}),
		rec(3, map[string]any{}),
	}
	rules := model.ValidationRules{
		ForeignKeys: []model.ForeignKey{
			{Field: "dept_id", ReferenceTable: "departments", ReferenceField: "id"},
		},
	}
	fetcher := &stubFetcher{values: map[string]struct{}{"d1": {}, "d2": {}}}

	a := New(fetcher, Options{Tenant: "acme"})
	verdict, err := a.Assess(context.Background(), records, rules)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.InDelta(t, 2.0/3.0, verdict.Dimensions["referential_integrity"].Score, 1e-9)
	require.Len(t, verdict.FixableIssues, 1)
	assert.Equal(t, "dept_id", verdict.FixableIssues[0].Field)
	assert.Equal(t, []string{"row 2: ghost"}, verdict.FixableIssues[0].Examples)
}

func TestAssess_NilFetcherDefaultsReferential(t *testing.T) {
	rules := model.ValidationRules{
		ForeignKeys: []model.ForeignKey{
			{Field: "dept_id", ReferenceTable: "departments", ReferenceField: "id"},
		},
	}
	a := New(nil, Options{})
	verdict, err := a.Assess(context.Background(), cleanBatch(3), rules)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, verdict.Dimensions["referential_integrity"].Score, 1e-9)
}

func TestAssess_FetcherErrorAborts(t *testing.T) {
	fetcher := &stubFetcher{err: eris.New("connection refused")}
	rules := model.ValidationRules{
		ForeignKeys: []model.ForeignKey{
			{Field: "dept_id", ReferenceTable: "departments", ReferenceField: "id"},
		},
	}
	records := []model.Record{rec(0, map[string]any{"dept_id": "d1"})}

	a := New(fetcher, Options{})
	_, err := a.Assess(context.Background(), records, rules)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch reference values")
}

func TestAssess_Thresholds(t *testing.T) {
	// Each corrupted row costs 0.25/80 on accuracy and 0.10·2/40 on
	// validity, 0.008125 overall per row in a 20-row batch.
	cases := []struct {
		name  string
		batch func() []model.Record
		want  string
	}{
		{"excellent", func() []model.Record {
			return cleanBatch(20)
		}, model.ImportExcellent},
		{"good", func() []model.Record {
			records := cleanBatch(20)
			for i := 0; i < 8; i++ {
				records[i].Fields["amount"] = "garbage"
				records[i].Fields["status"] = "limbo"
			}
			return records
		}, model.ImportGood},
		{"fixable", func() []model.Record {
			records := cleanBatch(10)
			for i := range records {
				records[i].Fields["amount"] = "garbage"
				records[i].Fields["status"] = "limbo"
			}
			for i := 0; i < 5; i++ {
				delete(records[i].Fields, "updated_at")
			}
			return records
		}, model.ImportFixable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := New(nil, Options{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
			verdict, err := a.Assess(context.Background(), tc.batch(), cleanRules())
			require.NoError(t, err)
			assert.Equal(t, tc.want, verdict.Importability,
				"overall score %.4f", verdict.OverallScore)
		})
	}
}

func TestAssess_Deterministic(t *testing.T) {
	records := cleanBatch(15)
	records[2].Fields["id"] = records[9].Fields["id"]
	records[4].Fields["amount"] = "oops"
	delete(records[6].Fields, "status")

	a := New(nil, Options{Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	first, err := a.Assess(context.Background(), records, cleanRules())
	require.NoError(t, err)
	second, err := a.Assess(context.Background(), records, cleanRules())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssess_EmptyBatch(t *testing.T) {
	a := New(nil, Options{})
	verdict, err := a.Assess(context.Background(), nil, cleanRules())
	require.NoError(t, err)
	assert.Equal(t, model.ImportExcellent, verdict.Importability)
	assert.InDelta(t, 1.0, verdict.OverallScore, 1e-9)
}

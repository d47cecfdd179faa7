package enhance

import (
	"context"
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

// stubGateway serves a fixed master snapshot and key sets.
type stubGateway struct {
	entities []model.MasterEntity
	keys     map[string]struct{}
	err      error
}

func (g *stubGateway) FetchEntities(context.Context, string, string) ([]model.MasterEntity, error) {
	return g.entities, g.err
}

func (g *stubGateway) FetchColumns(context.Context, string) ([]model.Column, error) {
	return nil, g.err
}

func (g *stubGateway) FetchForeignKeyValues(context.Context, string, string, string) (map[string]struct{}, error) {
	return g.keys, g.err
}

func (g *stubGateway) Close() error { return nil }

func orderBatch() []model.Record {
	records := make([]model.Record, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, model.Record{RowIndex: i, Fields: map[string]any{
			"order_id": i,
			"name":     "Acme Corporation",
			"quantity": 10.0,
			"price":    5.0,
			"amount":   50.0,
		}})
	}
	return records
}

func orderRules() model.ValidationRules {
	return model.ValidationRules{
		FieldConfigs: map[string]model.FieldConfig{
			"order_id": {DataType: model.TypeInteger, Required: true},
			"quantity": {DataType: model.TypeNumber},
			"price":    {DataType: model.TypeNumber},
			"amount":   {DataType: model.TypeNumber},
			"name":     {DataType: model.TypeString},
		},
		CalculationRules: []model.CalculationRule{{Formula: "amount = quantity * price"}},
		PrimaryKeys:      []string{"order_id"},
	}
}

func TestPipeline_CleanBatch(t *testing.T) {
	gw := &stubGateway{entities: []model.MasterEntity{
		{ID: "m1", Name: "Acme Corporation", Code: ""},
	}}
	p := New(gw, Config{
		Tenant:      "acme",
		MasterTable: "companies",
		Now:         time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	result, err := p.Run(context.Background(), orderBatch(), orderRules())
	require.NoError(t, err)

	require.NotNil(t, result.Resolution)
	assert.Equal(t, 10, result.Resolution.Statistics.MatchedCount)
	assert.Zero(t, result.Conflicts.Statistics.ConflictsFound)
	assert.Equal(t, model.ImportExcellent, result.Quality.Importability)
	assert.Equal(t, model.ImportExcellent, result.Decision)
	assert.False(t, result.RequiresApproval)
}

func TestPipeline_NoMasterTableSkipsResolution(t *testing.T) {
	p := New(nil, Config{Tenant: "acme", Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})

	result, err := p.Run(context.Background(), orderBatch(), orderRules())
	require.NoError(t, err)
	assert.Nil(t, result.Resolution)
	assert.NotNil(t, result.Quality)
}

func TestPipeline_GatewayErrorAborts(t *testing.T) {
	gw := &stubGateway{err: eris.New("connection refused")}
	p := New(gw, Config{Tenant: "acme", MasterTable: "companies"})

	_, err := p.Run(context.Background(), orderBatch(), orderRules())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch master table")
}

func TestPipeline_ManualConflictsCapDecision(t *testing.T) {
	records := orderBatch()
	// 30% off the computed amount forces a high-severity manual conflict.
	records[0].Fields["amount"] = 35.0

	p := New(nil, Config{Tenant: "acme", Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	result, err := p.Run(context.Background(), records, orderRules())
	require.NoError(t, err)

	assert.Positive(t, result.Conflicts.Statistics.ManualReviewRequired)
	assert.Equal(t, model.ImportFixable, result.Decision)
}

func TestPipeline_AutoFixableConflictDowngradesExcellent(t *testing.T) {
	records := orderBatch()
	records[0].Fields["amount"] = 49.98

	p := New(nil, Config{Tenant: "acme", Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	result, err := p.Run(context.Background(), records, orderRules())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Conflicts.Statistics.ConflictsFound)
	assert.Zero(t, result.Conflicts.Statistics.ManualReviewRequired)
	assert.Equal(t, model.ImportGood, result.Decision)
}

func TestPipeline_RejectionStands(t *testing.T) {
	records := orderBatch()
	for i := range records {
		delete(records[i].Fields, "order_id")
	}
	rules := orderRules()
	cfg := rules.FieldConfigs["order_id"]
	cfg.BusinessCritical = true
	rules.FieldConfigs["order_id"] = cfg

	p := New(nil, Config{Tenant: "acme", Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	result, err := p.Run(context.Background(), records, rules)
	require.NoError(t, err)
	assert.Equal(t, model.ImportRejected, result.Decision)
}

func TestPipeline_ImputationRuns(t *testing.T) {
	records := orderBatch()
	delete(records[3].Fields, "name")
	rules := orderRules()
	cfg := rules.FieldConfigs["name"]
	cfg.AllowImputation = true
	cfg.ImputationRisk = model.RiskLow
	cfg.DefaultValue = "unknown"
	rules.FieldConfigs["name"] = cfg

	p := New(nil, Config{Tenant: "acme", Now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	result, err := p.Run(context.Background(), records, rules)
	require.NoError(t, err)

	require.NotNil(t, result.Imputation)
	assert.Equal(t, 1, result.Imputation.Statistics.ImputedCount)
	assert.Equal(t, "unknown", result.Imputation.Records[3].Fields["name"])
	// The input batch itself stays untouched.
	assert.True(t, records[3].IsMissing("name"))
}

func TestPipeline_Deterministic(t *testing.T) {
	gw := &stubGateway{entities: []model.MasterEntity{
		{ID: "m1", Name: "Acme Corporation"},
		{ID: "m2", Name: "Acme Corp Holdings"},
	}}
	records := orderBatch()
	records[5].Fields["amount"] = 42.5

	cfg := Config{
		Tenant:      "acme",
		MasterTable: "companies",
		Now:         time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	first, err := New(gw, cfg).Run(context.Background(), records, orderRules())
	require.NoError(t, err)
	second, err := New(gw, cfg).Run(context.Background(), records, orderRules())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

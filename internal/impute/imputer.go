package impute

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// ErrImputation indicates the imputation call itself is misconfigured, as
// opposed to a single field failing to fit.
var ErrImputation = eris.New("impute: imputation failed")

// Options tunes an imputation run.
type Options struct {
	// Strategy is StrategyAuto or one of the Method constants, forcing that
	// method for every imputable field.
	Strategy string
	// Neighbors is k for nearest-neighbor filling.
	Neighbors int
	// Now is the clock used by the "today" fill rule. Zero means time.Now().
	Now time.Time
}

// Normalize fills defaults.
func (o Options) Normalize() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	if o.Neighbors <= 0 {
		o.Neighbors = 5
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Statistics summarizes an imputation run. Blocked and skipped fields are
// always visible here so silence is never mistaken for success.
type Statistics struct {
	TotalRecords       int      `json:"total_records"`
	MissingCount       int      `json:"missing_count"`
	ImputedCount       int      `json:"imputed_count"`
	ImputationRate     float64  `json:"imputation_rate"`
	FieldsImputed      []string `json:"fields_imputed"`
	BlockedFieldsCount int      `json:"blocked_fields_count"`
	RequiresApproval   bool     `json:"requires_approval"`
}

// Result is the outcome of one imputation run. Records holds copies of the
// input with missing cells filled; the input batch is never mutated.
type Result struct {
	Records       []model.Record             `json:"imputed_records"`
	Log           []model.ImputationLogEntry `json:"imputation_log"`
	BlockedFields []model.BlockedField       `json:"blocked_fields"`
	Statistics    Statistics                 `json:"statistics"`
}

// Imputer fills missing values per the configured strategy.
type Imputer struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options) *Imputer {
	return &Imputer{
		opts: opts.Normalize(),
		log:  zap.L().With(zap.String("component", "imputer")),
	}
}

func validStrategy(s string) bool {
	switch s {
	case StrategyAuto, MethodRuleBased, MethodNearestNeighbor, MethodIterative, MethodModelBased:
		return true
	}
	return false
}

// Impute runs the risk gate over every configured field with missing values,
// fills the fields that pass, and returns filled record copies plus a
// per-cell audit log. A field whose fill model fails to fit is skipped and
// reported, not fatal.
func (im *Imputer) Impute(ctx context.Context, records []model.Record, configs map[string]model.FieldConfig) (*Result, error) {
	if !validStrategy(im.opts.Strategy) {
		return nil, eris.Wrapf(ErrImputation, "unknown strategy %q", im.opts.Strategy)
	}

	out := make([]model.Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}

	result := &Result{
		Records:       out,
		Log:           []model.ImputationLogEntry{},
		BlockedFields: []model.BlockedField{},
		Statistics: Statistics{
			TotalRecords:  len(records),
			FieldsImputed: []string{},
		},
	}

	fields := make([]string, 0, len(configs))
	for name := range configs {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "impute: cancelled")
		}
		cfg := configs[field]

		var missingRows []int
		for i := range out {
			if out[i].IsMissing(field) {
				missingRows = append(missingRows, i)
			}
		}
		if len(missingRows) == 0 {
			continue
		}
		result.Statistics.MissingCount += len(missingRows)

		// High-risk fields trip the approval flag even when the gate then
		// blocks them.
		if cfg.Risk() == model.RiskHigh {
			result.Statistics.RequiresApproval = true
		}

		if reason := BlockReason(cfg); reason != "" {
			result.BlockedFields = append(result.BlockedFields, model.BlockedField{
				Field:        field,
				Reason:       reason,
				MissingCount: len(missingRows),
			})
			continue
		}

		method := im.opts.Strategy
		if method == StrategyAuto {
			ratio := float64(len(missingRows)) / float64(len(out))
			method = SelectStrategy(cfg, ratio)
		}

		fills, err := im.fill(method, field, cfg, out, missingRows)
		if err != nil {
			im.log.Warn("field skipped, fill failed",
				zap.String("field", field),
				zap.String("method", method),
				zap.Error(err),
			)
			result.BlockedFields = append(result.BlockedFields, model.BlockedField{
				Field:        field,
				Reason:       "fill failed: " + err.Error(),
				MissingCount: len(missingRows),
			})
			continue
		}

		filled := 0
		for _, i := range missingRows {
			value, ok := fills[i]
			if !ok {
				continue
			}
			original := out[i].Fields[field]
			out[i].Fields[field] = value
			result.Log = append(result.Log, model.ImputationLogEntry{
				RowIndex:         out[i].RowIndex,
				Field:            field,
				OriginalValue:    original,
				ImputedValue:     value,
				Method:           method,
				Confidence:       Confidence(method),
				RiskLevel:        cfg.Risk(),
				BusinessCritical: cfg.BusinessCritical,
				Revertible:       true,
			})
			filled++
		}
		if filled > 0 {
			result.Statistics.ImputedCount += filled
			result.Statistics.FieldsImputed = append(result.Statistics.FieldsImputed, field)
		}
	}

	result.Statistics.BlockedFieldsCount = len(result.BlockedFields)
	if result.Statistics.MissingCount > 0 {
		result.Statistics.ImputationRate =
			float64(result.Statistics.ImputedCount) / float64(result.Statistics.MissingCount)
	}

	im.log.Info("imputation complete",
		zap.Int("missing", result.Statistics.MissingCount),
		zap.Int("imputed", result.Statistics.ImputedCount),
		zap.Int("blocked_fields", result.Statistics.BlockedFieldsCount),
		zap.Bool("requires_approval", result.Statistics.RequiresApproval),
	)
	return result, nil
}

// fill dispatches to the method executor. The returned map is keyed by
// position in the batch slice; rows absent from the map stay empty.
func (im *Imputer) fill(method, field string, cfg model.FieldConfig, records []model.Record, missing []int) (map[int]any, error) {
	switch method {
	case MethodRuleBased:
		return im.ruleBased(field, cfg, records, missing)
	case MethodNearestNeighbor:
		return im.nearestNeighbor(field, cfg, records, missing)
	case MethodIterative:
		return im.iterative(field, cfg, records, missing)
	case MethodModelBased:
		return im.modelBased(field, records, missing)
	default:
		return nil, eris.Wrapf(ErrImputation, "unknown method %q", method)
	}
}

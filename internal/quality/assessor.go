// Package quality scores a batch across seven independent dimensions,
// combines them into one weighted score, and issues an import/fix/reject
// verdict with itemized issues.
package quality

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// ErrRules indicates the validation-rule structure itself is invalid. This
// is a caller bug and aborts the whole assessment.
var ErrRules = eris.New("quality: invalid validation rules")

// Fixed dimension weights, summing to 1.0.
const (
	weightCompleteness = 0.20
	weightAccuracy     = 0.25
	weightConsistency  = 0.15
	weightTimeliness   = 0.10
	weightUniqueness   = 0.15
	weightValidity     = 0.10
	weightReferential  = 0.05
)

// Importability thresholds on the overall score.
const (
	thresholdExcellent = 0.95
	thresholdGood      = 0.85
	thresholdFixable   = 0.70

	// completenessFloor is the hard-reject gate: a batch missing more than
	// half of its cells is rejected regardless of the other dimensions.
	completenessFloor = 0.50
)

// timelinessWindow is how far back a date value may plausibly lie.
const timelinessWindow = 10 * 365 * 24 * time.Hour

// ReferenceFetcher supplies the existing key set of a reference table, used
// by the referential-integrity dimension. A nil fetcher scores that
// dimension 1.0.
type ReferenceFetcher interface {
	FetchForeignKeyValues(ctx context.Context, table, field, tenant string) (map[string]struct{}, error)
}

// Options tunes an assessment call.
type Options struct {
	Tenant string    // tenant context for reference lookups
	Now    time.Time // clock override for timeliness; zero means time.Now()
}

// Assessor scores batches against validation rules.
type Assessor struct {
	fetcher ReferenceFetcher
	opts    Options
	log     *zap.Logger
}

// New creates an assessor. fetcher may be nil when no tenant context is
// available.
func New(fetcher ReferenceFetcher, opts Options) *Assessor {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	return &Assessor{
		fetcher: fetcher,
		opts:    opts,
		log:     zap.L().With(zap.String("component", "quality_assessor")),
	}
}

// dimensionOutcome pairs a dimension result with the issues it raised.
type dimensionOutcome struct {
	result   model.QualityDimensionResult
	blocking []model.QualityIssue
	fixable  []model.QualityIssue
}

// Assess computes all seven dimensions concurrently and combines them into
// a verdict. Any blocking issue forces rejection regardless of the overall
// score.
func (a *Assessor) Assess(ctx context.Context, records []model.Record, rules model.ValidationRules) (*model.QualityVerdict, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}

	type namedDim struct {
		name   string
		weight float64
		run    func(context.Context) (dimensionOutcome, error)
	}

	dims := []namedDim{
		{"completeness", weightCompleteness, func(context.Context) (dimensionOutcome, error) {
			return a.completeness(records, rules), nil
		}},
		{"accuracy", weightAccuracy, func(context.Context) (dimensionOutcome, error) {
			return a.accuracy(records, rules)
		}},
		{"consistency", weightConsistency, func(context.Context) (dimensionOutcome, error) {
			return a.consistency(records, rules)
		}},
		{"timeliness", weightTimeliness, func(context.Context) (dimensionOutcome, error) {
			return a.timeliness(records, rules), nil
		}},
		{"uniqueness", weightUniqueness, func(context.Context) (dimensionOutcome, error) {
			return a.uniqueness(records, rules), nil
		}},
		{"validity", weightValidity, func(context.Context) (dimensionOutcome, error) {
			return a.validity(records, rules), nil
		}},
		{"referential_integrity", weightReferential, func(gctx context.Context) (dimensionOutcome, error) {
			return a.referentialIntegrity(gctx, records, rules)
		}},
	}

	outcomes := make([]dimensionOutcome, len(dims))
	g, gctx := errgroup.WithContext(ctx)
	for i, dim := range dims {
		g.Go(func() error {
			out, err := dim.run(gctx)
			if err != nil {
				return err
			}
			out.result.Weight = dim.weight
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	verdict := &model.QualityVerdict{
		Dimensions:      make(map[string]model.QualityDimensionResult, len(dims)),
		BlockingIssues:  []model.QualityIssue{},
		FixableIssues:   []model.QualityIssue{},
		Recommendations: []string{},
	}

	var overall float64
	for i, dim := range dims {
		out := outcomes[i]
		verdict.Dimensions[dim.name] = out.result
		overall += out.result.Score * dim.weight
		verdict.BlockingIssues = append(verdict.BlockingIssues, out.blocking...)
		verdict.FixableIssues = append(verdict.FixableIssues, out.fixable...)
		if out.result.Score < 0.8 {
			verdict.Recommendations = append(verdict.Recommendations,
				fmt.Sprintf("improve %s (score %.2f)", dim.name, out.result.Score))
		}
	}
	verdict.OverallScore = clamp01(overall)

	switch {
	case len(verdict.BlockingIssues) > 0:
		verdict.Importability = model.ImportRejected
	case verdict.OverallScore >= thresholdExcellent:
		verdict.Importability = model.ImportExcellent
	case verdict.OverallScore >= thresholdGood:
		verdict.Importability = model.ImportGood
	case verdict.OverallScore >= thresholdFixable:
		verdict.Importability = model.ImportFixable
	default:
		verdict.Importability = model.ImportRejected
	}

	a.log.Info("assessment complete",
		zap.Float64("overall_score", verdict.OverallScore),
		zap.String("importability", verdict.Importability),
		zap.Int("blocking_issues", len(verdict.BlockingIssues)),
	)
	return verdict, nil
}

// validateRules rejects structurally invalid rule sets before any dimension
// runs.
func validateRules(rules model.ValidationRules) error {
	for name, br := range rules.BusinessRules {
		if br.Field == "" {
			return eris.Wrapf(ErrRules, "business rule %q has no field", name)
		}
		switch br.RuleType {
		case model.RuleTypeRange, model.RuleTypeEnum:
		default:
			return eris.Wrapf(ErrRules, "business rule %q has unknown type %q", name, br.RuleType)
		}
	}
	for _, fk := range rules.ForeignKeys {
		if fk.Field == "" || fk.ReferenceTable == "" || fk.ReferenceField == "" {
			return eris.Wrapf(ErrRules, "incomplete foreign key %+v", fk)
		}
	}
	return nil
}

// configuredFields returns the field names under assessment in a
// deterministic order: configured fields when present, otherwise the union
// of record fields.
func configuredFields(records []model.Record, rules model.ValidationRules) []string {
	if len(rules.FieldConfigs) > 0 {
		names := make([]string, 0, len(rules.FieldConfigs))
		for name := range rules.FieldConfigs {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}

	seen := make(map[string]bool)
	var names []string
	for _, rec := range records {
		for name := range rec.Fields {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

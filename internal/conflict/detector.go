package conflict

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// Relative-difference thresholds for severity and auto-fix eligibility.
var (
	severityHigh    = decimal.NewFromFloat(0.10)
	severityMedium  = decimal.NewFromFloat(0.05)
	autoFixableBand = decimal.NewFromFloat(0.20)
)

// Options tunes a detection call.
type Options struct {
	Tolerance float64 // absolute tolerance for |expected - actual|, default 0.01
}

// Statistics summarizes one detection call. Skipped rows are reported so a
// silent row is never mistaken for a clean one.
type Statistics struct {
	TotalChecked         int            `json:"total_checked"`
	ConflictsFound       int            `json:"conflicts_found"`
	AutoFixable          int            `json:"auto_fixable"`
	ManualReviewRequired int            `json:"manual_review_required"`
	SeverityBreakdown    map[string]int `json:"severity_breakdown"`
	CascadeConflicts     int            `json:"cascade_conflicts"`
	RowsSkipped          int            `json:"rows_skipped"`
}

// Result is the full outcome of a detection call.
type Result struct {
	Conflicts        []model.Conflict `json:"conflicts"`
	CascadeConflicts []model.Conflict `json:"cascade_conflicts"`
	Statistics       Statistics       `json:"statistics"`
}

// Detector checks batches against parsed calculation rules.
type Detector struct {
	tolerance decimal.Decimal
	log       *zap.Logger
}

// New creates a detector with the given options.
func New(opts Options) *Detector {
	tol := opts.Tolerance
	if tol <= 0 {
		tol = 0.01
	}
	return &Detector{
		tolerance: decimal.NewFromFloat(tol),
		log:       zap.L().With(zap.String("component", "conflict_detector")),
	}
}

// Detect parses the rules once, evaluates every (row, rule) pair with
// fixed-point arithmetic, and reports mismatches beyond the tolerance. A
// malformed formula aborts the call; a row with missing or non-numeric
// operands is skipped and counted.
func (d *Detector) Detect(records []model.Record, rules []model.CalculationRule) (*Result, error) {
	parsed := make([]*ParsedRule, 0, len(rules))
	for _, r := range rules {
		p, err := ParseFormula(r.Formula)
		if err != nil {
			return nil, eris.Wrapf(err, "conflict: parse rule %q", r.Formula)
		}
		parsed = append(parsed, p)
	}

	// Reverse dependency graph: for each field, the calculated targets whose
	// rule references it. Used for one-hop cascade lookups; deeper
	// propagation is deliberately not performed.
	dependents := make(map[string][]string)
	for _, p := range parsed {
		for _, ref := range p.ReferencedFields {
			dependents[ref] = append(dependents[ref], p.TargetField)
		}
	}
	for _, targets := range dependents {
		sort.Strings(targets)
	}

	res := &Result{
		Conflicts:        []model.Conflict{},
		CascadeConflicts: []model.Conflict{},
		Statistics:       Statistics{SeverityBreakdown: map[string]int{}},
	}

	for _, rec := range records {
		for _, rule := range parsed {
			actual, ok := decimalField(rec, rule.TargetField)
			if !ok {
				res.Statistics.RowsSkipped++
				continue
			}

			expected, defined, err := rule.Evaluate(func(field string) (decimal.Decimal, bool) {
				return decimalField(rec, field)
			})
			if err != nil {
				return nil, eris.Wrapf(err, "conflict: evaluate %q", rule.TargetField)
			}
			if !defined {
				res.Statistics.RowsSkipped++
				continue
			}

			expected = expected.Round(2)
			res.Statistics.TotalChecked++

			diff := expected.Sub(actual).Abs()
			if diff.LessThanOrEqual(d.tolerance) {
				continue
			}

			c := d.buildConflict(rec.RowIndex, rule.TargetField, expected, actual, diff, dependents)
			res.Conflicts = append(res.Conflicts, c)
			res.Statistics.ConflictsFound++
			res.Statistics.SeverityBreakdown[c.Severity]++
			if c.AutoFixable {
				res.Statistics.AutoFixable++
			} else {
				res.Statistics.ManualReviewRequired++
			}
			if c.CascadeImpact > 0 {
				res.CascadeConflicts = append(res.CascadeConflicts, c)
				res.Statistics.CascadeConflicts++
			}
		}
	}

	d.log.Info("detection complete",
		zap.Int("total_checked", res.Statistics.TotalChecked),
		zap.Int("conflicts", res.Statistics.ConflictsFound),
		zap.Int("skipped", res.Statistics.RowsSkipped),
	)
	return res, nil
}

// buildConflict derives severity and fixability from the relative difference
// and attaches the one-hop cascade fields.
func (d *Detector) buildConflict(rowIndex int, field string, expected, actual, diff decimal.Decimal, dependents map[string][]string) model.Conflict {
	// Relative difference; an expected value of zero with any mismatch is
	// treated as fully divergent.
	relative := decimal.NewFromInt(1)
	if !expected.IsZero() {
		relative = diff.DivRound(expected.Abs(), 8)
	}

	severity := model.SeverityLow
	switch {
	case relative.GreaterThan(severityHigh):
		severity = model.SeverityHigh
	case relative.GreaterThan(severityMedium):
		severity = model.SeverityMedium
	}

	cascade := dependents[field]
	return model.Conflict{
		RowIndex:      rowIndex,
		Field:         field,
		ExpectedValue: expected.StringFixed(2),
		ActualValue:   actual.String(),
		Difference:    diff.String(),
		Severity:      severity,
		AutoFixable:   relative.LessThan(autoFixableBand),
		CascadeFields: cascade,
		CascadeImpact: len(cascade),
	}
}

// decimalField converts a record value to a decimal, accepting numbers and
// numeric strings.
func decimalField(rec model.Record, field string) (decimal.Decimal, bool) {
	v, ok := rec.Get(field)
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

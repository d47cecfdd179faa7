package quality

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridianbi/gatekeeper/internal/conflict"
	"github.com/meridianbi/gatekeeper/internal/model"
)

// dateLayouts are tried in order when interpreting a date value.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// completeness measures the fraction of populated cells across the assessed
// fields. It raises a blocking issue when the batch is more than half empty,
// and one per business-critical field that is entirely empty.
func (a *Assessor) completeness(records []model.Record, rules model.ValidationRules) dimensionOutcome {
	fields := configuredFields(records, rules)

	totalCells := len(records) * len(fields)
	missing := 0
	missingByField := make(map[string]int, len(fields))
	for _, rec := range records {
		for _, field := range fields {
			if rec.IsMissing(field) {
				missing++
				missingByField[field]++
			}
		}
	}

	score := 1.0
	if totalCells > 0 {
		score = 1 - float64(missing)/float64(totalCells)
	}

	var fieldsWithMissing []string
	for _, field := range fields {
		if missingByField[field] > 0 {
			fieldsWithMissing = append(fieldsWithMissing, field)
		}
	}

	out := dimensionOutcome{result: model.QualityDimensionResult{
		Score: score,
		Details: map[string]any{
			"total_cells":         totalCells,
			"missing_cells":       missing,
			"fields_with_missing": fieldsWithMissing,
		},
	}}

	if score < completenessFloor {
		out.blocking = append(out.blocking, model.QualityIssue{
			Dimension:   "completeness",
			Description: fmt.Sprintf("more than half of all cells are empty (%.0f%% missing)", 100*float64(missing)/float64(totalCells)),
			Count:       missing,
		})
	}
	for _, field := range fields {
		cfg, ok := rules.FieldConfigs[field]
		if !ok || !cfg.BusinessCritical {
			continue
		}
		if len(records) > 0 && missingByField[field] == len(records) {
			out.blocking = append(out.blocking, model.QualityIssue{
				Dimension:   "completeness",
				Field:       field,
				Description: "business-critical field is empty in every record",
				Count:       len(records),
			})
		}
	}
	return out
}

// accuracy checks populated values against their configured data type and
// format pattern, averaging per-field pass rates. Fields with no populated
// values do not drag the score.
func (a *Assessor) accuracy(records []model.Record, rules model.ValidationRules) (dimensionOutcome, error) {
	if len(rules.FieldConfigs) == 0 {
		return dimensionOutcome{result: model.QualityDimensionResult{
			Score:   1.0,
			Details: map[string]any{"note": "no field configuration supplied"},
		}}, nil
	}

	fields := make([]string, 0, len(rules.FieldConfigs))
	for name := range rules.FieldConfigs {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	patterns := make(map[string]*regexp.Regexp)
	for _, field := range fields {
		cfg := rules.FieldConfigs[field]
		if cfg.FormatPattern == "" {
			continue
		}
		re, err := regexp.Compile(cfg.FormatPattern)
		if err != nil {
			return dimensionOutcome{}, eris.Wrapf(ErrRules, "field %q format pattern: %v", field, err)
		}
		patterns[field] = re
	}

	var out dimensionOutcome
	var sum float64
	scored := 0
	invalidTotal := 0
	for _, field := range fields {
		cfg := rules.FieldConfigs[field]
		checked, invalid := 0, 0
		var examples []string
		for _, rec := range records {
			if rec.IsMissing(field) {
				continue
			}
			checked++
			v, _ := rec.Get(field)
			if valueMatchesType(v, cfg.DataType) && matchesPattern(patterns[field], v) {
				continue
			}
			invalid++
			if len(examples) < 3 {
				examples = append(examples, fmt.Sprintf("row %d: %v", rec.RowIndex, v))
			}
		}
		if checked == 0 {
			continue
		}
		scored++
		sum += 1 - float64(invalid)/float64(checked)
		invalidTotal += invalid
		if invalid > 0 {
			out.fixable = append(out.fixable, model.QualityIssue{
				Dimension:   "accuracy",
				Field:       field,
				Description: fmt.Sprintf("%d of %d values violate type %q or its format pattern", invalid, checked, cfg.DataType),
				AutoFixable: false,
				Examples:    examples,
				Count:       invalid,
			})
		}
	}

	score := 1.0
	if scored > 0 {
		score = sum / float64(scored)
	}
	out.result = model.QualityDimensionResult{
		Score: score,
		Details: map[string]any{
			"fields_checked": scored,
			"invalid_values": invalidTotal,
		},
	}
	return out, nil
}

// consistency checks that the target field of every calculation rule is
// populated throughout the batch. Verifying the arithmetic itself is the
// conflict detector's job; here an empty target is treated as an internally
// inconsistent row.
func (a *Assessor) consistency(records []model.Record, rules model.ValidationRules) (dimensionOutcome, error) {
	if len(rules.CalculationRules) == 0 {
		return dimensionOutcome{result: model.QualityDimensionResult{
			Score:   1.0,
			Details: map[string]any{"note": "no calculation rules supplied"},
		}}, nil
	}

	targets := make([]string, 0, len(rules.CalculationRules))
	for _, rule := range rules.CalculationRules {
		parsed, err := conflict.ParseFormula(rule.Formula)
		if err != nil {
			return dimensionOutcome{}, eris.Wrapf(ErrRules, "calculation rule %q: %v", rule.Formula, err)
		}
		targets = append(targets, parsed.TargetField)
	}
	sort.Strings(targets)

	var out dimensionOutcome
	complete := 0
	for _, target := range targets {
		missing := 0
		for _, rec := range records {
			if rec.IsMissing(target) {
				missing++
			}
		}
		if missing == 0 {
			complete++
			continue
		}
		out.fixable = append(out.fixable, model.QualityIssue{
			Dimension:   "consistency",
			Field:       target,
			Description: fmt.Sprintf("calculated field is empty in %d records", missing),
			AutoFixable: true,
			Count:       missing,
		})
	}

	out.result = model.QualityDimensionResult{
		Score: float64(complete) / float64(len(targets)),
		Details: map[string]any{
			"calculated_fields":      targets,
			"fields_fully_populated": complete,
		},
	}
	return out, nil
}

// timeliness scores declared date fields by the fraction of values that
// parse and fall inside a plausible window ending at the assessment clock.
func (a *Assessor) timeliness(records []model.Record, rules model.ValidationRules) dimensionOutcome {
	if len(rules.DateFields) == 0 {
		return dimensionOutcome{result: model.QualityDimensionResult{
			Score:   1.0,
			Details: map[string]any{"note": "no date fields declared"},
		}}
	}

	fields := append([]string(nil), rules.DateFields...)
	sort.Strings(fields)
	earliest := a.opts.Now.Add(-timelinessWindow)

	var out dimensionOutcome
	checked, timely := 0, 0
	for _, field := range fields {
		stale := 0
		var examples []string
		for _, rec := range records {
			if rec.IsMissing(field) {
				continue
			}
			checked++
			v, _ := rec.Get(field)
			t, ok := parseDate(v)
			if ok && !t.Before(earliest) && !t.After(a.opts.Now) {
				timely++
				continue
			}
			stale++
			if len(examples) < 3 {
				examples = append(examples, fmt.Sprintf("row %d: %v", rec.RowIndex, v))
			}
		}
		if stale > 0 {
			out.fixable = append(out.fixable, model.QualityIssue{
				Dimension:   "timeliness",
				Field:       field,
				Description: fmt.Sprintf("%d values are unparseable, in the future, or older than 10 years", stale),
				Examples:    examples,
				Count:       stale,
			})
		}
	}

	score := 1.0
	if checked > 0 {
		score = float64(timely) / float64(checked)
	}
	out.result = model.QualityDimensionResult{
		Score: score,
		Details: map[string]any{
			"date_values_checked": checked,
			"timely_values":       timely,
		},
	}
	return out
}

// uniqueness measures distinct-over-total for each declared primary key and
// averages across keys. Duplicates produce an auto-fixable issue with a
// duplicate count and examples.
func (a *Assessor) uniqueness(records []model.Record, rules model.ValidationRules) dimensionOutcome {
	if len(rules.PrimaryKeys) == 0 || len(records) == 0 {
		return dimensionOutcome{result: model.QualityDimensionResult{
			Score:   1.0,
			Details: map[string]any{"note": "no primary keys declared"},
		}}
	}

	keys := append([]string(nil), rules.PrimaryKeys...)
	sort.Strings(keys)

	var out dimensionOutcome
	var sum float64
	for _, key := range keys {
		counts := make(map[string]int, len(records))
		order := make([]string, 0, len(records))
		for _, rec := range records {
			v, _ := rec.Get(key)
			s := fmt.Sprintf("%v", v)
			if counts[s] == 0 {
				order = append(order, s)
			}
			counts[s]++
		}
		distinct := len(counts)
		sum += float64(distinct) / float64(len(records))

		dupes := len(records) - distinct
		if dupes == 0 {
			continue
		}
		var examples []string
		for _, s := range order {
			if counts[s] > 1 && len(examples) < 3 {
				examples = append(examples, s)
			}
		}
		out.fixable = append(out.fixable, model.QualityIssue{
			Dimension:   "uniqueness",
			Field:       key,
			Description: fmt.Sprintf("%d duplicate key values", dupes),
			AutoFixable: true,
			Examples:    examples,
			Count:       dupes,
		})
	}

	out.result = model.QualityDimensionResult{
		Score: sum / float64(len(keys)),
		Details: map[string]any{
			"primary_keys": keys,
			"total_rows":   len(records),
		},
	}
	return out
}

// validity applies the business rules: numeric ranges and enumerations on
// populated values.
func (a *Assessor) validity(records []model.Record, rules model.ValidationRules) dimensionOutcome {
	if len(rules.BusinessRules) == 0 {
		return dimensionOutcome{result: model.QualityDimensionResult{
			Score:   1.0,
			Details: map[string]any{"note": "no business rules supplied"},
		}}
	}

	names := make([]string, 0, len(rules.BusinessRules))
	for name := range rules.BusinessRules {
		names = append(names, name)
	}
	sort.Strings(names)

	var out dimensionOutcome
	checked, passing := 0, 0
	for _, name := range names {
		rule := rules.BusinessRules[name]
		violations := 0
		var examples []string
		for _, rec := range records {
			if rec.IsMissing(rule.Field) {
				continue
			}
			checked++
			v, _ := rec.Get(rule.Field)
			if satisfiesRule(rule, v) {
				passing++
				continue
			}
			violations++
			if len(examples) < 3 {
				examples = append(examples, fmt.Sprintf("row %d: %v", rec.RowIndex, v))
			}
		}
		if violations > 0 {
			out.fixable = append(out.fixable, model.QualityIssue{
				Dimension:   "validity",
				Field:       rule.Field,
				Description: fmt.Sprintf("%d values violate business rule %q", violations, name),
				Examples:    examples,
				Count:       violations,
			})
		}
	}

	score := 1.0
	if checked > 0 {
		score = float64(passing) / float64(checked)
	}
	out.result = model.QualityDimensionResult{
		Score: score,
		Details: map[string]any{
			"values_checked": checked,
			"values_passing": passing,
		},
	}
	return out
}

// referentialIntegrity verifies that populated foreign-key values exist in
// their reference tables. Without a fetcher the dimension defaults to 1.0.
func (a *Assessor) referentialIntegrity(ctx context.Context, records []model.Record, rules model.ValidationRules) (dimensionOutcome, error) {
	if len(rules.ForeignKeys) == 0 || a.fetcher == nil {
		return dimensionOutcome{result: model.QualityDimensionResult{
			Score:   1.0,
			Details: map[string]any{"note": "no reference lookups performed"},
		}}, nil
	}

	fks := append([]model.ForeignKey(nil), rules.ForeignKeys...)
	sort.Slice(fks, func(i, j int) bool { return fks[i].Field < fks[j].Field })

	var out dimensionOutcome
	checked, found := 0, 0
	for _, fk := range fks {
		known, err := a.fetcher.FetchForeignKeyValues(ctx, fk.ReferenceTable, fk.ReferenceField, a.opts.Tenant)
		if err != nil {
			return dimensionOutcome{}, eris.Wrapf(err, "quality: fetch reference values for %s.%s", fk.ReferenceTable, fk.ReferenceField)
		}
		orphans := 0
		var examples []string
		for _, rec := range records {
			if rec.IsMissing(fk.Field) {
				continue
			}
			checked++
			v, _ := rec.Get(fk.Field)
			if _, ok := known[fmt.Sprintf("%v", v)]; ok {
				found++
				continue
			}
			orphans++
			if len(examples) < 3 {
				examples = append(examples, fmt.Sprintf("row %d: %v", rec.RowIndex, v))
			}
		}
		if orphans > 0 {
			out.fixable = append(out.fixable, model.QualityIssue{
				Dimension:   "referential_integrity",
				Field:       fk.Field,
				Description: fmt.Sprintf("%d values not found in %s.%s", orphans, fk.ReferenceTable, fk.ReferenceField),
				Examples:    examples,
				Count:       orphans,
			})
		}
	}

	score := 1.0
	if checked > 0 {
		score = float64(found) / float64(checked)
	}
	out.result = model.QualityDimensionResult{
		Score: score,
		Details: map[string]any{
			"references_checked": checked,
			"references_found":   found,
		},
	}
	return out, nil
}

// valueMatchesType reports whether v is acceptable for the declared type.
// An empty declaration accepts anything.
func valueMatchesType(v any, dataType string) bool {
	switch dataType {
	case model.TypeNumber:
		_, ok := model.ToNumber(v)
		return ok
	case model.TypeInteger:
		f, ok := model.ToNumber(v)
		return ok && f == float64(int64(f))
	case model.TypeDate:
		_, ok := parseDate(v)
		return ok
	case model.TypeBool:
		switch t := v.(type) {
		case bool:
			return true
		case string:
			s := strings.ToLower(strings.TrimSpace(t))
			return s == "true" || s == "false"
		default:
			return false
		}
	default:
		return true
	}
}

func matchesPattern(re *regexp.Regexp, v any) bool {
	if re == nil {
		return true
	}
	return re.MatchString(fmt.Sprintf("%v", v))
}

func parseDate(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// satisfiesRule evaluates one business rule against a populated value.
func satisfiesRule(rule model.BusinessRule, v any) bool {
	switch rule.RuleType {
	case model.RuleTypeRange:
		f, ok := model.ToNumber(v)
		if !ok {
			return false
		}
		if rule.Min != nil && f < *rule.Min {
			return false
		}
		if rule.Max != nil && f > *rule.Max {
			return false
		}
		return true
	case model.RuleTypeEnum:
		s := fmt.Sprintf("%v", v)
		for _, allowed := range rule.Allowed {
			if s == allowed {
				return true
			}
		}
		return false
	default:
		return false
	}
}

package impute

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// ruleBased fills every missing cell with one value: the configured default,
// the result of a named rule, or a statistic of the populated values (mean
// for numeric fields, mode otherwise).
func (im *Imputer) ruleBased(field string, cfg model.FieldConfig, records []model.Record, missing []int) (map[int]any, error) {
	value, err := im.ruleValue(field, cfg, records)
	if err != nil {
		return nil, err
	}
	fills := make(map[int]any, len(missing))
	for _, i := range missing {
		fills[i] = value
	}
	return fills, nil
}

func (im *Imputer) ruleValue(field string, cfg model.FieldConfig, records []model.Record) (any, error) {
	if cfg.DefaultValue != nil {
		return cfg.DefaultValue, nil
	}

	numeric := cfg.DataType == model.TypeNumber || cfg.DataType == model.TypeInteger

	switch cfg.RuleName {
	case "":
		if numeric {
			return columnMean(field, cfg, records)
		}
		return columnMode(field, records)
	case "mean":
		return columnMean(field, cfg, records)
	case "median":
		values := columnValues(field, records)
		if len(values) == 0 {
			return nil, eris.Errorf("impute: field %q has no populated numeric values", field)
		}
		sort.Float64s(values)
		mid := values[len(values)/2]
		if len(values)%2 == 0 {
			mid = (values[len(values)/2-1] + values[len(values)/2]) / 2
		}
		return castNumeric(mid, cfg), nil
	case "mode":
		return columnMode(field, records)
	case "zero":
		if numeric {
			return castNumeric(0, cfg), nil
		}
		return "", nil
	case "today":
		return im.opts.Now.Format("2006-01-02"), nil
	default:
		return nil, eris.Errorf("impute: unknown fill rule %q for field %q", cfg.RuleName, field)
	}
}

// nearestNeighbor fills each missing numeric cell with the mean of the field
// across its k nearest complete rows, measured by normalized Euclidean
// distance over the other numeric columns. Rows with no comparable
// predictors fall back to the column mean.
func (im *Imputer) nearestNeighbor(field string, cfg model.FieldConfig, records []model.Record, missing []int) (map[int]any, error) {
	var complete []int
	for i := range records {
		if _, ok := records[i].Numeric(field); ok {
			complete = append(complete, i)
		}
	}
	if len(complete) == 0 {
		return nil, eris.Errorf("impute: field %q has no populated numeric values", field)
	}

	predictors := numericPredictors(records, field)
	scales := columnScales(predictors, records)

	var meanSum float64
	for _, i := range complete {
		v, _ := records[i].Numeric(field)
		meanSum += v
	}
	columnFallback := meanSum / float64(len(complete))

	type neighbor struct {
		idx  int
		dist float64
	}

	fills := make(map[int]any, len(missing))
	for _, m := range missing {
		var neighbors []neighbor
		for _, c := range complete {
			dist, shared := rowDistance(records[m], records[c], predictors, scales)
			if shared == 0 {
				continue
			}
			neighbors = append(neighbors, neighbor{idx: c, dist: dist})
		}
		if len(neighbors) == 0 {
			fills[m] = castNumeric(columnFallback, cfg)
			continue
		}
		sort.Slice(neighbors, func(a, b int) bool {
			if neighbors[a].dist != neighbors[b].dist {
				return neighbors[a].dist < neighbors[b].dist
			}
			return neighbors[a].idx < neighbors[b].idx
		})
		k := im.opts.Neighbors
		if k > len(neighbors) {
			k = len(neighbors)
		}
		var sum float64
		for _, n := range neighbors[:k] {
			v, _ := records[n.idx].Numeric(field)
			sum += v
		}
		fills[m] = castNumeric(sum/float64(k), cfg)
	}
	return fills, nil
}

// iterative fits a least-squares regression of the field on the other
// numeric columns and predicts the missing cells. Rows lacking a full
// predictor set fall back to the training mean.
func (im *Imputer) iterative(field string, cfg model.FieldConfig, records []model.Record, missing []int) (map[int]any, error) {
	predictors := numericPredictors(records, field)
	if len(predictors) == 0 {
		return nil, eris.Errorf("impute: no numeric predictor columns for field %q", field)
	}

	// Training rows have the target and every predictor populated.
	var train []int
	for i := range records {
		if _, ok := records[i].Numeric(field); !ok {
			continue
		}
		if rowComplete(records[i], predictors) {
			train = append(train, i)
		}
	}
	if len(train) <= len(predictors) {
		return nil, eris.Errorf("impute: %d complete rows cannot fit %d predictors for field %q",
			len(train), len(predictors), field)
	}

	cols := len(predictors) + 1 // intercept term
	a := mat.NewDense(len(train), cols, nil)
	b := mat.NewVecDense(len(train), nil)
	var trainSum float64
	for row, i := range train {
		a.Set(row, 0, 1)
		for j, p := range predictors {
			v, _ := records[i].Numeric(p)
			a.Set(row, j+1, v)
		}
		target, _ := records[i].Numeric(field)
		b.SetVec(row, target)
		trainSum += target
	}
	trainMean := trainSum / float64(len(train))

	var qr mat.QR
	qr.Factorize(a)
	coef := mat.NewDense(cols, 1, nil)
	if err := qr.SolveTo(coef, false, b); err != nil {
		return nil, eris.Wrapf(err, "impute: singular fit for field %q", field)
	}

	fills := make(map[int]any, len(missing))
	for _, m := range missing {
		if !rowComplete(records[m], predictors) {
			fills[m] = castNumeric(trainMean, cfg)
			continue
		}
		pred := coef.At(0, 0)
		for j, p := range predictors {
			v, _ := records[m].Numeric(p)
			pred += coef.At(j+1, 0) * v
		}
		fills[m] = castNumeric(pred, cfg)
	}
	return fills, nil
}

// modelBased predicts a missing category as the nearest class centroid in
// the space of the numeric columns. Ties break on category name.
func (im *Imputer) modelBased(field string, records []model.Record, missing []int) (map[int]any, error) {
	predictors := numericPredictors(records, field)
	if len(predictors) == 0 {
		return nil, eris.Errorf("impute: no numeric predictor columns for field %q", field)
	}

	type centroid struct {
		sums   []float64
		counts []int
	}
	centroids := make(map[string]*centroid)
	for i := range records {
		if records[i].IsMissing(field) {
			continue
		}
		v, _ := records[i].Get(field)
		label := fmt.Sprintf("%v", v)
		c, ok := centroids[label]
		if !ok {
			c = &centroid{sums: make([]float64, len(predictors)), counts: make([]int, len(predictors))}
			centroids[label] = c
		}
		for j, p := range predictors {
			if val, okv := records[i].Numeric(p); okv {
				c.sums[j] += val
				c.counts[j]++
			}
		}
	}
	if len(centroids) == 0 {
		return nil, eris.Errorf("impute: field %q has no populated values to learn from", field)
	}

	labels := make([]string, 0, len(centroids))
	for label := range centroids {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	fills := make(map[int]any, len(missing))
	for _, m := range missing {
		best := ""
		bestDist := math.Inf(1)
		for _, label := range labels {
			c := centroids[label]
			var dist float64
			shared := 0
			for j, p := range predictors {
				v, ok := records[m].Numeric(p)
				if !ok || c.counts[j] == 0 {
					continue
				}
				d := v - c.sums[j]/float64(c.counts[j])
				dist += d * d
				shared++
			}
			if shared == 0 {
				continue
			}
			if dist < bestDist {
				bestDist = dist
				best = label
			}
		}
		if best == "" {
			// No comparable predictors for this row; fall back to the most
			// common category.
			mode, err := columnMode(field, records)
			if err != nil {
				continue
			}
			best = fmt.Sprintf("%v", mode)
		}
		fills[m] = best
	}
	return fills, nil
}

// numericPredictors returns the other columns that hold at least one numeric
// value, in sorted order.
func numericPredictors(records []model.Record, exclude string) []string {
	seen := make(map[string]bool)
	for i := range records {
		for name := range records[i].Fields {
			if name == exclude || seen[name] {
				continue
			}
			if _, ok := records[i].Numeric(name); ok {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// columnScales computes the value range of each predictor for min-max
// normalization. A constant column gets scale 1 so it contributes zero
// distance.
func columnScales(predictors []string, records []model.Record) map[string]float64 {
	scales := make(map[string]float64, len(predictors))
	for _, p := range predictors {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := range records {
			if v, ok := records[i].Numeric(p); ok {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
		scale := hi - lo
		if scale == 0 || math.IsInf(scale, 0) {
			scale = 1
		}
		scales[p] = scale
	}
	return scales
}

// rowDistance is the normalized Euclidean distance over the predictors both
// rows populate, with the count of shared predictors.
func rowDistance(a, b model.Record, predictors []string, scales map[string]float64) (float64, int) {
	var sum float64
	shared := 0
	for _, p := range predictors {
		va, oka := a.Numeric(p)
		vb, okb := b.Numeric(p)
		if !oka || !okb {
			continue
		}
		d := (va - vb) / scales[p]
		sum += d * d
		shared++
	}
	return math.Sqrt(sum), shared
}

func rowComplete(rec model.Record, predictors []string) bool {
	for _, p := range predictors {
		if _, ok := rec.Numeric(p); !ok {
			return false
		}
	}
	return true
}

func columnValues(field string, records []model.Record) []float64 {
	var values []float64
	for i := range records {
		if v, ok := records[i].Numeric(field); ok {
			values = append(values, v)
		}
	}
	return values
}

func columnMean(field string, cfg model.FieldConfig, records []model.Record) (any, error) {
	values := columnValues(field, records)
	if len(values) == 0 {
		return nil, eris.Errorf("impute: field %q has no populated numeric values", field)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return castNumeric(sum/float64(len(values)), cfg), nil
}

// columnMode returns the most common populated value, ties broken by first
// appearance in row order.
func columnMode(field string, records []model.Record) (any, error) {
	counts := make(map[string]int)
	first := make(map[string]int)
	values := make(map[string]any)
	for i := range records {
		if records[i].IsMissing(field) {
			continue
		}
		v, _ := records[i].Get(field)
		key := fmt.Sprintf("%v", v)
		if counts[key] == 0 {
			first[key] = i
			values[key] = v
		}
		counts[key]++
	}
	if len(counts) == 0 {
		return nil, eris.Errorf("impute: field %q has no populated values", field)
	}
	best := ""
	for key := range counts {
		if best == "" ||
			counts[key] > counts[best] ||
			(counts[key] == counts[best] && first[key] < first[best]) {
			best = key
		}
	}
	return values[best], nil
}

// castNumeric rounds integer-typed fills to whole numbers.
func castNumeric(v float64, cfg model.FieldConfig) any {
	if cfg.DataType == model.TypeInteger {
		return math.Round(v)
	}
	return v
}

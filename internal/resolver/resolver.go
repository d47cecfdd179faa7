package resolver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianbi/gatekeeper/internal/model"
)

// Composite score weights when both sides carry a structurally valid
// registration code.
const (
	nameWeight = 0.4
	codeWeight = 0.6
)

// defaultCodePattern accepts 18-character unified social credit codes and
// the 15-digit legacy registration numbers.
var defaultCodePattern = regexp.MustCompile(`^([0-9A-HJ-NPQRTUWXY]{2}\d{6}[0-9A-HJ-NPQRTUWXY]{10}|\d{15})$`)

// ErrMasterData indicates the master-data snapshot is unusable (an entity
// without an id or name). This aborts the whole resolution call.
var ErrMasterData = eris.New("resolver: malformed master data")

// Options tunes a resolution call. The zero value gets the documented
// defaults from Normalize.
type Options struct {
	ConfidenceThreshold float64        // accept threshold, default 0.8
	NameField           string         // record field holding the name, default "name"
	CodeField           string         // record field holding the registration code, default "code"
	CodePattern         *regexp.Regexp // structural validation for codes
	MaxAlternatives     int            // ranked alternatives kept per record, default 5
	Workers             int            // concurrent scoring workers, default 4
}

// Normalize fills unset options with their defaults.
func (o Options) Normalize() Options {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.8
	}
	if o.NameField == "" {
		o.NameField = "name"
	}
	if o.CodeField == "" {
		o.CodeField = "code"
	}
	if o.CodePattern == nil {
		o.CodePattern = defaultCodePattern
	}
	if o.MaxAlternatives <= 0 {
		o.MaxAlternatives = 5
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// Match is the resolution outcome for one record. Unmatched records carry an
// empty SuggestedMasterID but keep their ranked alternatives for manual
// review.
type Match struct {
	RowIndex          int                    `json:"row_index"`
	SuggestedMasterID string                 `json:"suggested_master_id,omitempty"`
	Confidence        float64                `json:"confidence"`
	MatchReason       string                 `json:"match_reason"`
	Alternatives      []model.MatchCandidate `json:"alternatives,omitempty"`
}

// Statistics summarizes one resolution call.
type Statistics struct {
	Total             int     `json:"total"`
	MatchedCount      int     `json:"matched_count"`
	UnmatchedCount    int     `json:"unmatched_count"`
	MatchRate         float64 `json:"match_rate"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Result is the full outcome of a resolution call.
type Result struct {
	Matched    []Match    `json:"matched_records"`
	Unmatched  []Match    `json:"unmatched_records"`
	Statistics Statistics `json:"statistics"`
}

// Resolver scores batch records against a master-data snapshot.
type Resolver struct {
	opts Options
	log  *zap.Logger
}

// New creates a resolver with the given options.
func New(opts Options) *Resolver {
	return &Resolver{
		opts: opts.Normalize(),
		log:  zap.L().With(zap.String("component", "resolver")),
	}
}

// preparedEntity caches an entity's normalized forms so they are computed
// once per call instead of once per record pair.
type preparedEntity struct {
	entity    model.MasterEntity
	name      string
	alias     string
	code      string
	codeValid bool
}

// Resolve scores every record against the master-data snapshot and splits
// the batch into matched and unmatched records. Output order follows input
// row order; candidate ranking is deterministic (score descending, then
// master id).
func (r *Resolver) Resolve(ctx context.Context, records []model.Record, master []model.MasterEntity) (*Result, error) {
	prepared, err := r.prepare(master)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Match, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.scoreRecord(records[i], prepared)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "resolver: score records")
	}

	res := &Result{Matched: []Match{}, Unmatched: []Match{}}
	var confidenceSum float64
	for _, m := range outcomes {
		if m.SuggestedMasterID != "" {
			res.Matched = append(res.Matched, m)
			confidenceSum += m.Confidence
		} else {
			res.Unmatched = append(res.Unmatched, m)
		}
	}

	res.Statistics = Statistics{
		Total:          len(records),
		MatchedCount:   len(res.Matched),
		UnmatchedCount: len(res.Unmatched),
	}
	if len(records) > 0 {
		res.Statistics.MatchRate = float64(len(res.Matched)) / float64(len(records))
	}
	if len(res.Matched) > 0 {
		res.Statistics.AverageConfidence = confidenceSum / float64(len(res.Matched))
	}

	r.log.Info("resolution complete",
		zap.Int("total", res.Statistics.Total),
		zap.Int("matched", res.Statistics.MatchedCount),
		zap.Float64("match_rate", res.Statistics.MatchRate),
	)
	return res, nil
}

// prepare validates the master snapshot and precomputes normalized forms.
func (r *Resolver) prepare(master []model.MasterEntity) ([]preparedEntity, error) {
	prepared := make([]preparedEntity, 0, len(master))
	for i, e := range master {
		if e.ID == "" || strings.TrimSpace(e.Name) == "" {
			return nil, eris.Wrapf(ErrMasterData, "entity at index %d missing id or name", i)
		}
		code := strings.ToUpper(strings.TrimSpace(e.Code))
		prepared = append(prepared, preparedEntity{
			entity:    e,
			name:      NormalizeName(e.Name),
			alias:     NormalizeName(e.Alias),
			code:      code,
			codeValid: code != "" && r.opts.CodePattern.MatchString(code),
		})
	}
	return prepared, nil
}

// scoreRecord ranks all master entities for one record and applies the
// confidence gate.
func (r *Resolver) scoreRecord(rec model.Record, master []preparedEntity) Match {
	rawName, _ := rec.Get(r.opts.NameField)
	name := NormalizeName(asString(rawName))
	if name == "" {
		return Match{RowIndex: rec.RowIndex, MatchReason: "missing_name"}
	}

	rawCode, _ := rec.Get(r.opts.CodeField)
	code := strings.ToUpper(strings.TrimSpace(asString(rawCode)))
	codeValid := code != "" && r.opts.CodePattern.MatchString(code)

	candidates := make([]model.MatchCandidate, 0, len(master))
	signals := make(map[string]string, len(master))
	for _, pe := range master {
		nameSim, signal := NameSimilaritySignals(name, pe.name)
		if pe.alias != "" {
			if aliasSim, aliasSignal := NameSimilaritySignals(name, pe.alias); aliasSim > nameSim {
				nameSim, signal = aliasSim, aliasSignal
			}
		}

		var codeSim float64
		comparable := codeValid && pe.codeValid
		if comparable && code == pe.code {
			codeSim = 1.0
		}

		composite := nameSim
		if comparable {
			composite = nameWeight*nameSim + codeWeight*codeSim
		}

		if codeSim == 1.0 {
			signal = "code_exact"
		}
		signals[pe.entity.ID] = signal

		candidates = append(candidates, model.MatchCandidate{
			MasterID:       pe.entity.ID,
			MasterName:     pe.entity.Name,
			NameSimilarity: nameSim,
			CodeSimilarity: codeSim,
			CompositeScore: composite,
		})
	}

	// Deterministic ranking: score descending, master id ascending on ties.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CompositeScore != candidates[j].CompositeScore {
			return candidates[i].CompositeScore > candidates[j].CompositeScore
		}
		return candidates[i].MasterID < candidates[j].MasterID
	})
	if len(candidates) > r.opts.MaxAlternatives {
		candidates = candidates[:r.opts.MaxAlternatives]
	}

	m := Match{RowIndex: rec.RowIndex, Alternatives: candidates}
	if len(candidates) == 0 {
		m.MatchReason = "no_candidates"
		return m
	}

	best := candidates[0]
	if best.CompositeScore >= r.opts.ConfidenceThreshold {
		m.SuggestedMasterID = best.MasterID
		m.Confidence = best.CompositeScore
		m.MatchReason = signals[best.MasterID]
	} else {
		m.Confidence = best.CompositeScore
		m.MatchReason = fmt.Sprintf("below_threshold (best %.2f < %.2f)", best.CompositeScore, r.opts.ConfidenceThreshold)
	}
	return m
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

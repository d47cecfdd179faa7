// Package enhance runs the full pre-load pipeline over one batch: entity
// resolution, conflict detection, and quality assessment fan out
// concurrently, then imputation fills what the risk gate allows, and the
// combined outputs are merged into a single load decision.
package enhance

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridianbi/gatekeeper/internal/conflict"
	"github.com/meridianbi/gatekeeper/internal/gateway"
	"github.com/meridianbi/gatekeeper/internal/impute"
	"github.com/meridianbi/gatekeeper/internal/model"
	"github.com/meridianbi/gatekeeper/internal/quality"
	"github.com/meridianbi/gatekeeper/internal/resolver"
)

// Config assembles the per-component options for one pipeline.
type Config struct {
	Tenant      string           `json:"tenant"`
	MasterTable string           `json:"master_table"`
	Resolver    resolver.Options `json:"-"`
	Detector    conflict.Options `json:"-"`
	Imputer     impute.Options   `json:"-"`
	Now         time.Time        `json:"-"`
}

// Result bundles every component's output plus the merged decision.
// Resolution is nil when no master table is configured.
type Result struct {
	Resolution       *resolver.Result      `json:"resolution,omitempty"`
	Conflicts        *conflict.Result      `json:"conflicts"`
	Quality          *model.QualityVerdict `json:"quality"`
	Imputation       *impute.Result        `json:"imputation"`
	Decision         string                `json:"decision"`
	RequiresApproval bool                  `json:"requires_approval"`
}

// Pipeline coordinates the four components against one gateway.
type Pipeline struct {
	gw  gateway.Gateway
	cfg Config
	log *zap.Logger
}

// New creates a pipeline. gw may be nil when neither resolution nor
// referential checks are needed.
func New(gw gateway.Gateway, cfg Config) *Pipeline {
	return &Pipeline{
		gw:  gw,
		cfg: cfg,
		log: zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run processes one batch to completion. Resolution, detection, and
// assessment are independent reads of the batch and run concurrently; any
// component-level error aborts the run.
func (p *Pipeline) Run(ctx context.Context, records []model.Record, rules model.ValidationRules) (*Result, error) {
	result := &Result{}

	var fetcher quality.ReferenceFetcher
	if p.gw != nil {
		fetcher = p.gw
	}

	g, gctx := errgroup.WithContext(ctx)

	if p.cfg.MasterTable != "" {
		if p.gw == nil {
			return nil, eris.New("enhance: master table configured without a gateway")
		}
		g.Go(func() error {
			master, err := p.gw.FetchEntities(gctx, p.cfg.MasterTable, p.cfg.Tenant)
			if err != nil {
				return eris.Wrapf(err, "enhance: fetch master table %s", p.cfg.MasterTable)
			}
			res, err := resolver.New(p.cfg.Resolver).Resolve(gctx, records, master)
			if err != nil {
				return err
			}
			result.Resolution = res
			return nil
		})
	}

	g.Go(func() error {
		res, err := conflict.New(p.cfg.Detector).Detect(records, rules.CalculationRules)
		if err != nil {
			return err
		}
		result.Conflicts = res
		return nil
	})

	g.Go(func() error {
		verdict, err := quality.New(fetcher, quality.Options{
			Tenant: p.cfg.Tenant,
			Now:    p.cfg.Now,
		}).Assess(gctx, records, rules)
		if err != nil {
			return err
		}
		result.Quality = verdict
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	imputed, err := impute.New(p.cfg.Imputer).Impute(ctx, records, rules.FieldConfigs)
	if err != nil {
		return nil, err
	}
	result.Imputation = imputed

	result.Decision = mergeDecision(result.Quality, result.Conflicts)
	result.RequiresApproval = imputed.Statistics.RequiresApproval

	p.log.Info("pipeline complete",
		zap.String("tenant", p.cfg.Tenant),
		zap.Int("records", len(records)),
		zap.String("decision", result.Decision),
		zap.Bool("requires_approval", result.RequiresApproval),
	)
	return result, nil
}

// mergeDecision folds the detector's findings into the quality verdict.
// Conflicts that need manual review cap an otherwise importable batch at
// fixable; rejection always stands.
func mergeDecision(verdict *model.QualityVerdict, conflicts *conflict.Result) string {
	decision := verdict.Importability
	if decision == model.ImportRejected {
		return decision
	}
	if conflicts.Statistics.ManualReviewRequired > 0 {
		return model.ImportFixable
	}
	if conflicts.Statistics.ConflictsFound > 0 && decision == model.ImportExcellent {
		return model.ImportGood
	}
	return decision
}

// Package engine runs the optimization cycle: trend refresh, template
// generation with an A/B test per new template, winner evaluation and the
// underperformer sweep.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/config"
	"github.com/gkobilansky/cashloop/internal/generator"
	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/optimizer"
	"github.com/gkobilansky/cashloop/internal/store"
	"github.com/gkobilansky/cashloop/internal/trends"
)

const (
	StepTrendRefresh = "trend_refresh"
	StepGeneration   = "template_generation"
	StepEvaluation   = "ab_evaluation"
	StepOptimization = "optimization"

	// generation is wanted when fewer products than this appeared in a week
	minWeeklyProducts = 3
	// or when weekly revenue is under this share of the weekly target
	weeklyRevenueShare = 0.7
	suggestedTopics    = 3
)

type Store interface {
	LastGeneratedAt(ctx context.Context) (time.Time, bool, error)
	CountProductsSince(ctx context.Context, since time.Time) (int, error)
	RevenueSince(ctx context.Context, since time.Time) (float64, error)
	CreateProduct(ctx context.Context, p *store.Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*store.Product, error)
	RecordSale(ctx context.Context, productID int64, amount float64, source string) error
	Now() time.Time
}

type Engine struct {
	store     Store
	ranker    *trends.Ranker
	generator *generator.Generator
	ab        *abtest.Controller
	optimizer *optimizer.Optimizer
	cfg       config.Config
	log       *logger.Logger

	mu          sync.Mutex
	lastRefresh time.Time
	pick        func(n int) int
}

func New(s Store, ranker *trends.Ranker, gen *generator.Generator, ab *abtest.Controller, opt *optimizer.Optimizer, cfg config.Config, log *logger.Logger) *Engine {
	return &Engine{
		store:     s,
		ranker:    ranker,
		generator: gen,
		ab:        ab,
		optimizer: opt,
		cfg:       cfg,
		log:       logger.OrNop(log).With("component", "engine"),
		pick:      rand.IntN,
	}
}

// RunCycle runs every enabled step once. Cycles never overlap; a second
// caller waits for the running one. Step failures are recorded in the report,
// never returned.
func (e *Engine) RunCycle(ctx context.Context) *Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &Report{RunID: uuid.NewString(), Started: e.store.Now()}
	log := e.log.With("run_id", r.RunID)
	log.Info("Cycle started")

	e.refreshTrends(ctx, r)
	e.generate(ctx, r)
	e.evaluate(ctx, r)
	e.optimize(ctx, r)

	r.Finished = e.store.Now()
	r.observe(log)
	return r
}

func (e *Engine) refreshTrends(ctx context.Context, r *Report) {
	if !e.cfg.TrendAnalysisEnabled {
		r.skipped(StepTrendRefresh, "disabled")
		return
	}
	interval := time.Duration(e.cfg.TrendAnalysisIntervalHours) * time.Hour
	if !e.lastRefresh.IsZero() && e.store.Now().Sub(e.lastRefresh) < interval {
		r.skipped(StepTrendRefresh, fmt.Sprintf("last refresh %s ago", e.store.Now().Sub(e.lastRefresh).Round(time.Minute)))
		return
	}
	sum, err := e.ranker.Refresh(ctx)
	if err != nil {
		r.failed(StepTrendRefresh, "", err)
		return
	}
	e.lastRefresh = e.store.Now()
	detail := fmt.Sprintf("%d records from %d sources", sum.Inserted, sum.Sources)
	if len(sum.Failed) > 0 {
		detail += fmt.Sprintf(", failed: %s", strings.Join(sum.Failed, ", "))
	}
	r.succeeded(StepTrendRefresh, detail)
}

func (e *Engine) generate(ctx context.Context, r *Report) {
	if !e.cfg.TemplateGenerationEnabled {
		r.skipped(StepGeneration, "disabled")
		return
	}
	if !e.generator.Available() {
		r.skipped(StepGeneration, "no generation backend")
		return
	}
	ok, reason, err := e.ShouldGenerate(ctx)
	if err != nil {
		r.failed(StepGeneration, "gating check", err)
		return
	}
	if !ok {
		r.skipped(StepGeneration, reason)
		return
	}

	topics := e.cfg.TemplateTopics
	if e.cfg.TrendAnalysisEnabled {
		if suggested := e.ranker.SuggestTopics(ctx, suggestedTopics); len(suggested) > 0 {
			topics = suggested
		}
	}
	if len(topics) == 0 {
		r.skipped(StepGeneration, "no topics")
		return
	}
	topic := topics[e.pick(len(topics))]

	tmpl, err := e.generator.Generate(ctx, topic)
	if err != nil {
		r.failed(StepGeneration, "topic "+topic, err)
		return
	}
	detail := fmt.Sprintf("generated %s (%s)", tmpl.ID, reason)

	if e.cfg.ABTestEnabled {
		variant, err := e.generator.CreateVariant(ctx, tmpl)
		if err != nil {
			r.failed(StepGeneration, detail+", variant failed", err)
			return
		}
		name := "Template_Test_" + e.store.Now().Format("20060102_150405")
		test, err := e.ab.CreateTest(ctx, tmpl.ID, variant.ID, name)
		if err != nil {
			r.failed(StepGeneration, detail+", test creation failed", err)
			return
		}
		detail += fmt.Sprintf(", test %d against %s", test.ID, variant.ID)
	}
	r.succeeded(StepGeneration, detail)
}

// ShouldGenerate applies the generation cadence: at least
// min_template_interval_days since the last generated template, then either
// fewer than three products in the last week or weekly revenue below 70% of
// the weekly share of target_monthly_revenue.
func (e *Engine) ShouldGenerate(ctx context.Context) (bool, string, error) {
	now := e.store.Now()

	last, ok, err := e.store.LastGeneratedAt(ctx)
	if err != nil {
		return false, "", err
	}
	minInterval := time.Duration(e.cfg.MinTemplateIntervalDays) * 24 * time.Hour
	if ok && now.Sub(last) < minInterval {
		return false, fmt.Sprintf("last generation %s ago", now.Sub(last).Round(time.Hour)), nil
	}

	weekAgo := now.Add(-7 * 24 * time.Hour)
	products, err := e.store.CountProductsSince(ctx, weekAgo)
	if err != nil {
		return false, "", err
	}
	if products < minWeeklyProducts {
		return true, fmt.Sprintf("%d products this week", products), nil
	}

	revenue, err := e.store.RevenueSince(ctx, weekAgo)
	if err != nil {
		return false, "", err
	}
	target := e.cfg.TargetMonthlyRevenue / 30 * 7
	if revenue < target*weeklyRevenueShare {
		return true, fmt.Sprintf("weekly revenue %.2f below %.2f", revenue, target*weeklyRevenueShare), nil
	}
	return false, "catalog and revenue on track", nil
}

func (e *Engine) evaluate(ctx context.Context, r *Report) {
	if !e.cfg.ABTestEnabled {
		r.skipped(StepEvaluation, "disabled")
		return
	}
	sum, err := e.ab.EvaluateActive(ctx)
	if err != nil {
		r.failed(StepEvaluation, "", err)
		return
	}
	winnersApplied.Add(float64(sum.Applied))
	detail := fmt.Sprintf("%d evaluated, %d applied", sum.Evaluated, sum.Applied)
	if sum.Failed > 0 {
		r.failed(StepEvaluation, detail, fmt.Errorf("%d tests failed to evaluate", sum.Failed))
		return
	}
	r.succeeded(StepEvaluation, detail)
}

func (e *Engine) optimize(ctx context.Context, r *Report) {
	if !e.cfg.SalesOptimizationEnabled {
		r.skipped(StepOptimization, "disabled")
		return
	}
	sum, err := e.optimizer.Sweep(ctx, e.cfg.OptimizationThreshold, e.cfg.OptimizeBatchSize)
	if err != nil {
		r.failed(StepOptimization, "", err)
		return
	}
	templatesOptimized.Add(float64(len(sum.Optimized)))
	detail := fmt.Sprintf("%d candidates, %d optimized, %d skipped", sum.Candidates, len(sum.Optimized), sum.Skipped)
	if sum.Failed > 0 {
		r.failed(StepOptimization, detail, fmt.Errorf("%d templates failed", sum.Failed))
		return
	}
	r.succeeded(StepOptimization, detail)
}

// AddProduct records a product built from a template and counts it as an
// impression for the active test containing that template.
func (e *Engine) AddProduct(ctx context.Context, p *store.Product) error {
	if _, err := e.store.CreateProduct(ctx, p); err != nil {
		return err
	}
	if p.TemplateID == "" || !e.cfg.ABTestEnabled {
		return nil
	}
	if _, err := e.ab.AttributeProduct(ctx, p.TemplateID, p.ABTestVariant); err != nil {
		e.log.Warn("Failed to attribute product impression", "product_id", p.ID, "template_id", p.TemplateID, "error", err)
	}
	return nil
}

// RecordSale books a sale on the product and attributes the conversion to
// its template's active test.
func (e *Engine) RecordSale(ctx context.Context, productID int64, amount float64, source string) error {
	p, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := e.store.RecordSale(ctx, productID, amount, source); err != nil {
		return err
	}
	if p.TemplateID == "" || !e.cfg.ABTestEnabled {
		return nil
	}
	if _, err := e.ab.AttributeSale(ctx, p.TemplateID, p.ABTestVariant, amount); err != nil {
		e.log.Warn("Failed to attribute sale", "product_id", productID, "template_id", p.TemplateID, "error", err)
	}
	return nil
}

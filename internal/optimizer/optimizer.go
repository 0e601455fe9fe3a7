// Package optimizer finds templates whose product revenue trails the fleet
// and asks the generator for a revised version of each.
package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gkobilansky/cashloop/internal/generator"
	"github.com/gkobilansky/cashloop/internal/lock"
	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/store"
)

const (
	optimizationType = "ai_optimization"
	// Minimum gap between two revisions of one template.
	reoptimizeAfter  = 24 * time.Hour
)

type Store interface {
	GetTemplate(ctx context.Context, id string) (*store.Template, error)
	TemplateRevenue(ctx context.Context, templateID string) (store.TemplateRevenue, error)
	AverageTemplatedRevenue(ctx context.Context) (float64, error)
	TemplatesBelowRevenue(ctx context.Context, cutoff float64) ([]store.TemplateRevenue, error)
	TopTemplatesByRevenue(ctx context.Context, limit int) ([]store.TemplateRevenue, error)
	SaveOptimization(ctx context.Context, t *store.Template, ev *store.OptimizationEvent) error
	ListOptimizations(ctx context.Context, templateID string) ([]*store.OptimizationEvent, error)
	Now() time.Time
}

// Reviser produces an unsaved revision of a template.
type Reviser interface {
	Revise(ctx context.Context, original *store.Template, brief string) (*store.Template, error)
	Export(t *store.Template) error
}

type Optimizer struct {
	store   Store
	reviser Reviser
	locker  lock.Locker
	log     *logger.Logger
}

func New(s Store, r Reviser, locker lock.Locker, log *logger.Logger) *Optimizer {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Optimizer{store: s, reviser: r, locker: locker, log: logger.OrNop(log).With("component", "optimizer")}
}

// Performance is the product aggregate of one template.
type Performance struct {
	TemplateID           string  `json:"template_id"`
	ProductCount         int     `json:"product_count"`
	TotalSales           int     `json:"total_sales"`
	TotalRevenue         float64 `json:"total_revenue"`
	AvgPrice             float64 `json:"avg_price"`
	AvgRevenuePerProduct float64 `json:"avg_revenue_per_product"`
	AvgSalesPerProduct   float64 `json:"avg_sales_per_product"`
}

func fromRevenue(tr store.TemplateRevenue) Performance {
	p := Performance{
		TemplateID:   tr.TemplateID,
		ProductCount: tr.ProductCount,
		TotalSales:   tr.TotalSales,
		TotalRevenue: tr.TotalRevenue,
		AvgPrice:     tr.AvgPrice,
	}
	if tr.ProductCount > 0 {
		p.AvgRevenuePerProduct = tr.TotalRevenue / float64(tr.ProductCount)
		p.AvgSalesPerProduct = float64(tr.TotalSales) / float64(tr.ProductCount)
	}
	return p
}

// PerformanceOf aggregates every product created from templateID. A template
// without products yields all zeros.
func (o *Optimizer) PerformanceOf(ctx context.Context, templateID string) (Performance, error) {
	tr, err := o.store.TemplateRevenue(ctx, templateID)
	if err != nil {
		return Performance{}, err
	}
	return fromRevenue(tr), nil
}

// Underperformer is a flagged template with the figures it was judged on.
type Underperformer struct {
	Performance
	// FleetAverage is the mean revenue per templated product.
	FleetAverage float64 `json:"fleet_average"`
	Cutoff       float64 `json:"cutoff"`
}

// Underperforming returns every template whose summed product revenue is
// below threshold times the mean revenue per templated product. The sum is
// compared with a per-product mean, which only lines up when a template backs
// about one product; AvgRevenuePerProduct is reported alongside for that reason.
func (o *Optimizer) Underperforming(ctx context.Context, threshold float64) ([]Underperformer, error) {
	avg, err := o.store.AverageTemplatedRevenue(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := avg * threshold
	rows, err := o.store.TemplatesBelowRevenue(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]Underperformer, 0, len(rows))
	for _, tr := range rows {
		out = append(out, Underperformer{Performance: fromRevenue(tr), FleetAverage: avg, Cutoff: cutoff})
	}
	return out, nil
}

// Winner is a top-revenue template with the opening of its content.
type Winner struct {
	Performance
	Excerpt string `json:"excerpt"`
}

// WinningElements returns up to limit templates with the highest revenue and
// the first 2000 characters of each.
func (o *Optimizer) WinningElements(ctx context.Context, limit int) ([]Winner, error) {
	top, err := o.store.TopTemplatesByRevenue(ctx, limit)
	if err != nil {
		return nil, err
	}
	var out []Winner
	for _, tr := range top {
		t, err := o.store.GetTemplate(ctx, tr.TemplateID)
		if err != nil {
			o.log.Debug("Skipping winner without template content", "template_id", tr.TemplateID, "error", err)
			continue
		}
		out = append(out, Winner{Performance: fromRevenue(tr), Excerpt: excerpt(t.Content, 2000)})
	}
	return out, nil
}

// Comparison is two templates side by side.
type Comparison struct {
	A      Performance `json:"a"`
	B      Performance `json:"b"`
	Leader string      `json:"leader,omitempty"`
}

// Compare reports both performances and which template earned more; Leader
// is empty on equal revenue.
func (o *Optimizer) Compare(ctx context.Context, a, b string) (Comparison, error) {
	pa, err := o.PerformanceOf(ctx, a)
	if err != nil {
		return Comparison{}, err
	}
	pb, err := o.PerformanceOf(ctx, b)
	if err != nil {
		return Comparison{}, err
	}
	c := Comparison{A: pa, B: pb}
	switch {
	case pa.TotalRevenue > pb.TotalRevenue:
		c.Leader = a
	case pb.TotalRevenue > pa.TotalRevenue:
		c.Leader = b
	}
	return c, nil
}

// Optimize asks for a revision of templateID seeded with its content and
// performance, and stores it with an audit event. A missing template is an
// error; a failed or empty generation is logged and yields (nil, nil) with
// nothing written.
func (o *Optimizer) Optimize(ctx context.Context, templateID string) (*store.Template, error) {
	release, err := o.locker.Lock(ctx, lock.TemplateKey(templateID))
	if err != nil {
		return nil, err
	}
	defer release()

	original, err := o.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", templateID, err)
	}
	perf, err := o.PerformanceOf(ctx, templateID)
	if err != nil {
		return nil, err
	}
	winners, err := o.WinningElements(ctx, 5)
	if err != nil {
		o.log.Warn("Failed to load winning templates", "error", err)
	}

	revised, err := o.reviser.Revise(ctx, original, buildBrief(original, perf, winners))
	if err != nil {
		o.log.Warn("Template optimization produced nothing", "template_id", templateID, "error", err)
		return nil, nil
	}

	before, _ := json.Marshal(perf)
	meta, _ := json.Marshal(map[string]string{
		"original_template_id":  templateID,
		"optimized_template_id": revised.ID,
		"optimized_file":        revised.ID + ".md",
		"optimization_date":     o.store.Now().Format(time.RFC3339),
	})
	ev := &store.OptimizationEvent{
		TemplateID:       templateID,
		OptimizationType: optimizationType,
		BeforeMetrics:    string(before),
		Metadata:         string(meta),
	}
	if err := o.store.SaveOptimization(ctx, revised, ev); err != nil {
		return nil, fmt.Errorf("failed to save optimization of %s: %w", templateID, err)
	}
	if err := o.reviser.Export(revised); err != nil {
		o.log.Warn("Failed to write optimized template file", "template_id", revised.ID, "error", err)
	}

	o.log.Info("Optimized template", "template_id", templateID, "optimized_id", revised.ID, "event_id", ev.ID)
	return revised, nil
}

// SweepSummary counts one pass over the worst templates.
type SweepSummary struct {
	Candidates int      `json:"candidates"`
	Optimized  []string `json:"optimized,omitempty"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
}

// Sweep optimizes the batch lowest-revenue underperformers. Templates revised
// within the last day are left out before the batch is taken. One failing
// template never stops the rest.
func (o *Optimizer) Sweep(ctx context.Context, threshold float64, batch int) (SweepSummary, error) {
	var sum SweepSummary
	under, err := o.Underperforming(ctx, threshold)
	if err != nil {
		return sum, err
	}

	var due []Underperformer
	for _, u := range under {
		recent, err := o.recentlyOptimized(ctx, u.TemplateID)
		if err != nil {
			return sum, err
		}
		if recent {
			o.log.Debug("Template revised recently", "template_id", u.TemplateID)
			sum.Skipped++
			continue
		}
		due = append(due, u)
	}
	if len(due) > batch {
		due = due[:batch]
	}
	sum.Candidates = len(due)

	for _, u := range due {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		t, err := o.Optimize(ctx, u.TemplateID)
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
			sum.Skipped++
			o.log.Info("Skipping template", "template_id", u.TemplateID, "reason", err)
		case err != nil:
			sum.Failed++
			o.log.Warn("Failed to optimize template", "template_id", u.TemplateID, "error", err)
		case t == nil:
			sum.Skipped++
		default:
			sum.Optimized = append(sum.Optimized, t.ID)
		}
	}
	return sum, nil
}

func (o *Optimizer) recentlyOptimized(ctx context.Context, templateID string) (bool, error) {
	events, err := o.store.ListOptimizations(ctx, templateID)
	if err != nil || len(events) == 0 {
		return false, err
	}
	return o.store.Now().Sub(events[0].Date) < reoptimizeAfter, nil
}

func buildBrief(t *store.Template, perf Performance, winners []Winner) string {
	var b strings.Builder
	b.WriteString("You are optimizing a digital product template based on sales performance data.\n\n")
	b.WriteString("Current Template Performance:\n")
	fmt.Fprintf(&b, "- Total Revenue: $%.2f\n", perf.TotalRevenue)
	fmt.Fprintf(&b, "- Total Sales: %d\n", perf.TotalSales)
	fmt.Fprintf(&b, "- Products Created: %d\n\n", perf.ProductCount)
	fmt.Fprintf(&b, "Current Template Content (first 1500 chars):\n%s\n\n", excerpt(t.Content, 1500))

	shown := 0
	for _, w := range winners {
		if w.TemplateID == t.ID || shown == 2 {
			continue
		}
		if shown == 0 {
			b.WriteString("Best performing templates for reference:\n\n")
		}
		fmt.Fprintf(&b, "Template %s ($%.2f revenue, %d sales):\n%s\n\n", w.TemplateID, w.TotalRevenue, w.TotalSales, excerpt(w.Excerpt, 500))
		shown++
	}

	b.WriteString("Analyze the current template and create an improved version that:\n")
	b.WriteString("1. Enhances the sales blurb to be more compelling\n")
	b.WriteString("2. Improves structure based on successful templates\n")
	b.WriteString("3. Adds persuasive elements that drive conversions\n")
	b.WriteString("4. Maintains the core value proposition while improving clarity\n\n")
	b.WriteString("Return ONLY the optimized template content in markdown format, following the same structure as the original.")
	return b.String()
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ Reviser = (*generator.Generator)(nil)

// Package abtest runs two-variant experiments over templates and applies a
// winner when the decision rule in Decide produces one.
package abtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gkobilansky/cashloop/internal/lock"
	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/store"
)

var (
	ErrTemplateInActiveTest = fmt.Errorf("template already in an active test: %w", store.ErrConflict)
	ErrInvalidVariant       = errors.New("variant must be A or B")
	ErrInvalidAmount        = errors.New("conversion amount must not be negative")
	ErrTestCompleted        = fmt.Errorf("test is completed: %w", store.ErrConflict)
)

// Store is the slice of the performance store the controller needs.
type Store interface {
	CreateABTest(ctx context.Context, name, templateA, templateB string) (*store.ABTest, error)
	GetABTest(ctx context.Context, id int64) (*store.ABTest, error)
	ListABTests(ctx context.Context, status store.TestStatus) ([]*store.ABTest, error)
	ActiveTestForTemplate(ctx context.Context, templateID string) (*store.ABTest, error)
	AppendResult(ctx context.Context, testID int64, variantID string, impressions, conversions int, revenue float64) (*store.ABResult, error)
	VariantTotals(ctx context.Context, testID int64) ([]store.VariantTotals, error)
	CompleteABTest(ctx context.Context, testID int64, winnerID string) error
	Now() time.Time
}

type Options struct {
	MinConversions int
	// MaxAge forces the revenue-only decision on tests older than this.
	// Zero leaves tests open until the rule produces a winner.
	MaxAge time.Duration
}

type Controller struct {
	store  Store
	locker lock.Locker
	log    *logger.Logger
	opts   Options
}

func New(s Store, locker lock.Locker, log *logger.Logger, opts Options) *Controller {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Controller{
		store:  s,
		locker: locker,
		log:    logger.OrNop(log).With("component", "abtest"),
		opts:   opts,
	}
}

func (c *Controller) MinConversions() int {
	return c.opts.MinConversions
}

// CreateTest starts an experiment between two existing templates.
func (c *Controller) CreateTest(ctx context.Context, templateA, templateB, name string) (*store.ABTest, error) {
	if name == "" {
		name = fmt.Sprintf("%s_vs_%s", templateA, templateB)
	}
	t, err := c.store.CreateABTest(ctx, name, templateA, templateB)
	if err != nil {
		if errors.Is(err, store.ErrConflict) && templateA != templateB {
			return nil, fmt.Errorf("%w: %v", ErrTemplateInActiveTest, err)
		}
		return nil, err
	}
	c.log.Info("Created A/B test", "test_id", t.ID, "name", t.Name, "template_a", templateA, "template_b", templateB)
	return t, nil
}

// RecordImpression appends one impression to a variant of an active test.
func (c *Controller) RecordImpression(ctx context.Context, testID int64, variant string) error {
	return c.record(ctx, testID, variant, 1, 0, 0)
}

// RecordConversion appends one conversion worth amount to a variant.
func (c *Controller) RecordConversion(ctx context.Context, testID int64, variant string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return c.record(ctx, testID, variant, 0, 1, amount)
}

func (c *Controller) record(ctx context.Context, testID int64, variant string, impressions, conversions int, revenue float64) error {
	if variant != store.VariantA && variant != store.VariantB {
		return fmt.Errorf("%w: %q", ErrInvalidVariant, variant)
	}

	release, err := c.locker.Lock(ctx, lock.TestKey(testID))
	if err != nil {
		return err
	}
	defer release()

	t, err := c.store.GetABTest(ctx, testID)
	if err != nil {
		return err
	}
	if t.Status != store.StatusActive {
		return fmt.Errorf("test %d: %w", testID, ErrTestCompleted)
	}

	row, err := c.store.AppendResult(ctx, testID, variant, impressions, conversions, revenue)
	if err != nil {
		return err
	}
	if conversions > 0 {
		totals, err := c.store.VariantTotals(ctx, testID)
		if err == nil {
			for _, v := range totals {
				if v.VariantID == variant && v.Impressions == 0 {
					c.log.Warn("Conversion recorded against variant with no impressions",
						"test_id", testID, "variant", variant)
				}
			}
		}
	}
	c.log.Debug("Recorded A/B result", "test_id", testID, "variant", variant,
		"impressions", impressions, "conversions", conversions, "revenue", revenue,
		"conversion_rate", row.ConversionRate)
	return nil
}

// DataInconsistency flags totals that cannot be interpreted as a rate.
type DataInconsistency struct {
	Variant string `json:"variant"`
	Message string `json:"message"`
}

func (d DataInconsistency) String() string {
	return d.Variant + ": " + d.Message
}

// Results is the summed view of every accumulator row of one test.
type Results struct {
	Test     *store.ABTest           `json:"test"`
	Variants map[string]VariantStats `json:"variants"`
	Warnings []DataInconsistency     `json:"warnings,omitempty"`
}

// Stats returns the totals for a variant, zero when it has no rows yet.
func (r *Results) Stats(variant string) VariantStats {
	return r.Variants[variant]
}

// Results sums every accumulator row per variant and recomputes each rate
// from the summed totals.
func (c *Controller) Results(ctx context.Context, testID int64) (*Results, error) {
	t, err := c.store.GetABTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	totals, err := c.store.VariantTotals(ctx, testID)
	if err != nil {
		return nil, err
	}

	res := &Results{Test: t, Variants: make(map[string]VariantStats, len(totals))}
	for _, v := range totals {
		res.Variants[v.VariantID] = VariantStats{
			Impressions:    v.Impressions,
			Conversions:    v.Conversions,
			Revenue:        v.Revenue,
			ConversionRate: store.Rate(v.Conversions, v.Impressions),
		}
		if v.Impressions == 0 && v.Conversions > 0 {
			w := DataInconsistency{
				Variant: v.VariantID,
				Message: fmt.Sprintf("%d conversions recorded with zero impressions", v.Conversions),
			}
			res.Warnings = append(res.Warnings, w)
			c.log.Warn("Data inconsistency in A/B results", "test_id", testID, "variant", v.VariantID, "detail", w.Message)
		}
	}
	return res, nil
}

// DetermineWinner returns "A" or "B", or "" when the rule has no winner yet.
func (c *Controller) DetermineWinner(ctx context.Context, testID int64, minConversions int) (string, error) {
	res, err := c.Results(ctx, testID)
	if err != nil {
		return "", err
	}
	return decideResults(res, minConversions), nil
}

func decideResults(res *Results, minConversions int) string {
	a, okA := res.Variants[store.VariantA]
	b, okB := res.Variants[store.VariantB]
	if !okA || !okB {
		return ""
	}
	return Decide(a, b, minConversions)
}

// ApplyWinner completes the test when a winner exists. It reports whether
// the test changed state.
func (c *Controller) ApplyWinner(ctx context.Context, testID int64) (bool, error) {
	release, err := c.locker.Lock(ctx, lock.TestKey(testID))
	if err != nil {
		return false, err
	}
	defer release()

	res, err := c.Results(ctx, testID)
	if err != nil {
		return false, err
	}
	if res.Test.Status != store.StatusActive {
		return false, nil
	}

	winner := decideResults(res, c.opts.MinConversions)
	forced := false
	if winner == "" && c.expired(res.Test) {
		winner = DecideByRevenue(res.Stats(store.VariantA), res.Stats(store.VariantB))
		forced = winner != ""
	}
	if winner == "" {
		return false, nil
	}

	winnerID, _ := res.Test.TemplateFor(winner)
	if err := c.store.CompleteABTest(ctx, testID, winnerID); err != nil {
		return false, err
	}
	c.log.Info("Applied A/B test winner", "test_id", testID, "winner", winner,
		"winner_template", winnerID, "forced", forced)
	return true, nil
}

func (c *Controller) expired(t *store.ABTest) bool {
	if c.opts.MaxAge <= 0 {
		return false
	}
	return c.store.Now().Sub(t.StartDate) > c.opts.MaxAge
}

// EvaluationSummary counts what one pass over the active tests did.
type EvaluationSummary struct {
	Evaluated int      `json:"evaluated"`
	Applied   int      `json:"applied"`
	Failed    int      `json:"failed"`
	Winners   []string `json:"winners,omitempty"`
}

// EvaluateActive tries ApplyWinner on every active test. A failing test is
// logged and counted; the pass continues with the rest.
func (c *Controller) EvaluateActive(ctx context.Context) (EvaluationSummary, error) {
	var sum EvaluationSummary
	tests, err := c.store.ListABTests(ctx, store.StatusActive)
	if err != nil {
		return sum, err
	}
	for _, t := range tests {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Evaluated++
		applied, err := c.ApplyWinner(ctx, t.ID)
		if err != nil {
			sum.Failed++
			c.log.Warn("Failed to evaluate A/B test", "test_id", t.ID, "error", err)
			continue
		}
		if applied {
			sum.Applied++
			sum.Winners = append(sum.Winners, t.Name)
		}
	}
	return sum, nil
}

package store

import (
	"context"
	"time"
)

// Store defines the interface for the shared performance store.
type Store interface {
	// Template operations
	SaveTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, id string) (*Template, error)
	ListTemplates(ctx context.Context) ([]*Template, error)
	LastGeneratedAt(ctx context.Context) (time.Time, bool, error)

	// A/B test operations
	CreateABTest(ctx context.Context, name, templateA, templateB string) (*ABTest, error)
	GetABTest(ctx context.Context, id int64) (*ABTest, error)
	ListABTests(ctx context.Context, status TestStatus) ([]*ABTest, error)
	ActiveTestForTemplate(ctx context.Context, templateID string) (*ABTest, error)
	AppendResult(ctx context.Context, testID int64, variantID string, impressions, conversions int, revenue float64) (*ABResult, error)
	VariantTotals(ctx context.Context, testID int64) ([]VariantTotals, error)
	ListResults(ctx context.Context, testID int64) ([]*ABResult, error)
	CompleteABTest(ctx context.Context, testID int64, winnerID string) error

	// Trend operations
	InsertTrends(ctx context.Context, records []TrendRecord) error
	TopTrends(ctx context.Context, since time.Time, limit int) ([]TrendAggregate, error)

	// Product catalog
	CreateProduct(ctx context.Context, p *Product) (int64, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	RecordSale(ctx context.Context, productID int64, amount float64, source string) error
	TemplateRevenue(ctx context.Context, templateID string) (TemplateRevenue, error)
	AverageTemplatedRevenue(ctx context.Context) (float64, error)
	TemplatesBelowRevenue(ctx context.Context, cutoff float64) ([]TemplateRevenue, error)
	TopTemplatesByRevenue(ctx context.Context, limit int) ([]TemplateRevenue, error)
	CountProductsSince(ctx context.Context, since time.Time) (int, error)
	RevenueSince(ctx context.Context, since time.Time) (float64, error)

	// Optimization history and metrics
	SaveOptimization(ctx context.Context, t *Template, ev *OptimizationEvent) error
	ListOptimizations(ctx context.Context, templateID string) ([]*OptimizationEvent, error)
	RecordMetric(ctx context.Context, m Metric) error

	// Lifecycle
	Now() time.Time
	Ping(ctx context.Context) (int64, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)

package store

import "time"

type TestStatus string

const (
	StatusActive    TestStatus = "active"
	StatusCompleted TestStatus = "completed"
)

const (
	VariantA = "A"
	VariantB = "B"
)

// Template is one content template candidate. Regenerated templates get a new
// ID and point at the template they replace through ParentID.
type Template struct {
	ID        string
	Topic     string
	Content   string
	ParentID  string
	Source    string // "generated", "variant", "optimized" or "manual"
	CreatedAt time.Time
}

type ABTest struct {
	ID          int64
	Name        string
	TemplateAID string
	TemplateBID string
	Status      TestStatus
	WinnerID    *string
	StartDate   time.Time
	EndDate     *time.Time
}

// TemplateFor maps a variant label to the template id it stands for.
func (t *ABTest) TemplateFor(variant string) (string, bool) {
	switch variant {
	case VariantA:
		return t.TemplateAID, true
	case VariantB:
		return t.TemplateBID, true
	}
	return "", false
}

// VariantFor maps a template id back to its variant label.
func (t *ABTest) VariantFor(templateID string) (string, bool) {
	switch templateID {
	case t.TemplateAID:
		return VariantA, true
	case t.TemplateBID:
		return VariantB, true
	}
	return "", false
}

// ABResult is one accumulator row. Several rows may exist per variant.
type ABResult struct {
	ID             int64
	TestID         int64
	VariantID      string
	Impressions    int
	Conversions    int
	Revenue        float64
	ConversionRate float64
	Date           time.Time
}

// VariantTotals is the read-side sum over every accumulator row of a variant.
type VariantTotals struct {
	VariantID      string
	Impressions    int
	Conversions    int
	Revenue        float64
	ConversionRate float64
}

type TrendRecord struct {
	ID         int64
	Keyword    string
	Topic      string
	Source     string
	TrendScore float64
	Volume     int
	Metadata   string
	Timestamp  time.Time
}

// TrendAggregate is a TrendRecord group inside a time window.
type TrendAggregate struct {
	Keyword     string  `json:"keyword"`
	Topic       string  `json:"topic"`
	Source      string  `json:"source"`
	AvgScore    float64 `json:"avg_score"`
	TotalVolume int     `json:"total_volume"`
}

type Product struct {
	ID            int64
	Name          string
	Price         float64
	Type          string
	TemplateID    string
	ABTestVariant string
	SalesCount    int
	TotalRevenue  float64
	CreatedAt     time.Time
}

// TemplateRevenue is products grouped by template id.
type TemplateRevenue struct {
	TemplateID   string
	ProductCount int
	TotalSales   int
	TotalRevenue float64
	AvgPrice     float64
}

type OptimizationEvent struct {
	ID               int64
	TemplateID       string
	OptimizationType string
	BeforeMetrics    string // JSON snapshot
	Metadata         string // JSON, references the new template
	Date             time.Time
}

type Metric struct {
	Type   string
	Name   string
	Value  float64
	Source string
	Meta   string
}

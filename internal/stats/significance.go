// Package stats computes informational statistics shown next to A/B results.
// Nothing here feeds the winner rule.
package stats

import "math"

// Observation is one variant's summed counters.
type Observation struct {
	Name        string
	Impressions int
	Conversions int
	Revenue     float64
}

// Summary is the analysis of a two-variant test.
type Summary struct {
	Variants        []VariantSummary `json:"variants"`
	Confident       bool             `json:"confident"`        // >= 95% confidence
	ConfidenceLevel float64          `json:"confidence_level"` // 0-1, leader beats the other
	Leader          string           `json:"leader,omitempty"`
}

type VariantSummary struct {
	Name                 string  `json:"name"`
	Impressions          int     `json:"impressions"`
	Conversions          int     `json:"conversions"`
	Rate                 float64 `json:"rate"`
	CILower              float64 `json:"ci_lower"`
	CIUpper              float64 `json:"ci_upper"`
	RevenuePerImpression float64 `json:"revenue_per_impression"`
}

// SignificanceTest performs a two-proportion z-test.
// Returns confidence level (0-1) that variant A beats variant B.
func SignificanceTest(aConv, aViews, bConv, bViews int) float64 {
	if aViews <= 0 || bViews <= 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aViews)
	pB := float64(bConv) / float64(bViews)
	pooled := float64(aConv+bConv) / float64(aViews+bViews)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aViews) + 1/float64(bViews)))
	if se == 0 || math.IsNaN(se) {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		}
		return 0.5
	}

	return normalCDF((pA - pB) / se)
}

// normalCDF is the Abramowitz and Stegun 7.1.26 approximation of the
// standard normal CDF.
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return 0.5 * (1.0 + sign*y)
}

// Analyze summarizes observations for display. With two or more variants the
// confidence compares the best rate against the runner-up.
func Analyze(obs ...Observation) *Summary {
	out := &Summary{Variants: make([]VariantSummary, len(obs))}

	leader, runnerUp := -1, -1
	for i, o := range obs {
		rate := 0.0
		perImp := 0.0
		if o.Impressions > 0 {
			rate = float64(o.Conversions) / float64(o.Impressions)
			perImp = o.Revenue / float64(o.Impressions)
		}
		lo, hi := WilsonInterval(o.Conversions, o.Impressions, 0.95)
		out.Variants[i] = VariantSummary{
			Name:                 o.Name,
			Impressions:          o.Impressions,
			Conversions:          o.Conversions,
			Rate:                 rate,
			CILower:              lo,
			CIUpper:              hi,
			RevenuePerImpression: perImp,
		}

		switch {
		case leader < 0 || rate > out.Variants[leader].Rate:
			runnerUp, leader = leader, i
		case runnerUp < 0 || rate > out.Variants[runnerUp].Rate:
			runnerUp = i
		}
	}

	if leader < 0 || runnerUp < 0 {
		return out
	}
	l, r := out.Variants[leader], out.Variants[runnerUp]
	out.ConfidenceLevel = SignificanceTest(l.Conversions, l.Impressions, r.Conversions, r.Impressions)
	out.Confident = out.ConfidenceLevel >= 0.95
	if l.Rate > r.Rate {
		out.Leader = l.Name
	}
	return out
}

package abtest

import "github.com/gkobilansky/cashloop/internal/store"

// RelativeRateGap is how far one variant's conversion rate must exceed the
// other's (as a multiple) to win on rate alone.
const RelativeRateGap = 1.2

// VariantStats are the summed counters for one variant.
type VariantStats struct {
	Impressions    int     `json:"impressions"`
	Conversions    int     `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Decide picks a winner between variant A and B. It is a pure function of its
// inputs and returns "" when there is no winner yet.
//
// This is a heuristic, not a significance test, and it can pick a false
// winner at small sample sizes:
//
//  1. no decision below minConversions total conversions, or when either
//     variant has no impressions;
//  2. B wins when rateB > rateA*1.2, or rateB > rateA while B also earned
//     more revenue (symmetrically for A);
//  3. otherwise the variant with more revenue wins; equal revenue is no winner.
func Decide(a, b VariantStats, minConversions int) string {
	if a.Conversions+b.Conversions < minConversions {
		return ""
	}
	if a.Impressions == 0 || b.Impressions == 0 {
		return ""
	}

	rateA := store.Rate(a.Conversions, a.Impressions)
	rateB := store.Rate(b.Conversions, b.Impressions)
	revenueDiff := b.Revenue - a.Revenue

	switch {
	case rateB > rateA*RelativeRateGap || (rateB > rateA && revenueDiff > 0):
		return store.VariantB
	case rateA > rateB*RelativeRateGap || (rateA > rateB && revenueDiff < 0):
		return store.VariantA
	}
	return revenueLeader(a, b)
}

// DecideByRevenue is the forced decision for tests past their maximum age:
// both variants need impressions, then revenue alone decides.
func DecideByRevenue(a, b VariantStats) string {
	if a.Impressions == 0 || b.Impressions == 0 {
		return ""
	}
	return revenueLeader(a, b)
}

func revenueLeader(a, b VariantStats) string {
	switch diff := b.Revenue - a.Revenue; {
	case diff > 0:
		return store.VariantB
	case diff < 0:
		return store.VariantA
	}
	return ""
}

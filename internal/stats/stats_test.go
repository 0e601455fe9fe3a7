package stats_test

import (
	"math"
	"testing"

	"github.com/gkobilansky/cashloop/internal/stats"
)

func TestSignificanceTest_ClearWinner(t *testing.T) {
	// A: 10% (100/1000), B: 5% (50/1000)
	confidence := stats.SignificanceTest(100, 1000, 50, 1000)

	if confidence < 0.95 {
		t.Errorf("expected high confidence (>0.95), got %f", confidence)
	}
}

func TestSignificanceTest_NoSignificance(t *testing.T) {
	confidence := stats.SignificanceTest(50, 1000, 50, 1000)

	if confidence > 0.60 {
		t.Errorf("expected low confidence (<0.60) for equal rates, got %f", confidence)
	}
}

func TestSignificanceTest_SmallSample(t *testing.T) {
	confidence := stats.SignificanceTest(5, 20, 2, 20)

	if confidence > 0.95 {
		t.Errorf("expected lower confidence for small sample, got %f", confidence)
	}
}

func TestSignificanceTest_MissingViews(t *testing.T) {
	for _, c := range [][4]int{{0, 0, 0, 0}, {10, 100, 0, 0}, {3, 0, 1, 10}} {
		if got := stats.SignificanceTest(c[0], c[1], c[2], c[3]); got != 0.5 {
			t.Errorf("SignificanceTest%v = %f, want 0.5", c, got)
		}
	}
}

func TestAnalyze_Leader(t *testing.T) {
	result := stats.Analyze(
		stats.Observation{Name: "A", Impressions: 100, Conversions: 20, Revenue: 200},
		stats.Observation{Name: "B", Impressions: 100, Conversions: 25, Revenue: 260},
	)

	if len(result.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(result.Variants))
	}
	if result.Leader != "B" {
		t.Errorf("expected B to lead, got %q", result.Leader)
	}
	if got := result.Variants[1].RevenuePerImpression; math.Abs(got-2.6) > 1e-9 {
		t.Errorf("revenue per impression = %f, want 2.6", got)
	}
	if result.ConfidenceLevel <= 0.5 {
		t.Errorf("expected confidence above 0.5 for the leader, got %f", result.ConfidenceLevel)
	}
}

func TestAnalyze_Intervals(t *testing.T) {
	result := stats.Analyze(
		stats.Observation{Name: "A", Impressions: 1000, Conversions: 100},
		stats.Observation{Name: "B", Impressions: 1000, Conversions: 150},
	)

	for i, v := range result.Variants {
		if v.CILower >= v.Rate || v.CIUpper <= v.Rate {
			t.Errorf("variant %d: CI [%f, %f] does not contain rate %f", i, v.CILower, v.CIUpper, v.Rate)
		}
		if v.CILower < 0 || v.CIUpper > 1 {
			t.Errorf("variant %d: CI [%f, %f] out of bounds", i, v.CILower, v.CIUpper)
		}
	}
	if !result.Confident {
		t.Errorf("expected 10%% vs 15%% over 1000 views to be confident, got %f", result.ConfidenceLevel)
	}
}

func TestAnalyze_NoData(t *testing.T) {
	result := stats.Analyze(stats.Observation{Name: "A"}, stats.Observation{Name: "B"})

	if result.Leader != "" {
		t.Errorf("expected no leader, got %q", result.Leader)
	}
	if result.Confident {
		t.Error("expected no confidence without data")
	}
}

func TestWilsonInterval(t *testing.T) {
	lo, hi := stats.WilsonInterval(0, 0, 0.95)
	if lo != 0 || hi != 0 {
		t.Errorf("expected [0,0] for no trials, got [%f,%f]", lo, hi)
	}

	lo, hi = stats.WilsonInterval(50, 100, 0.95)
	if lo < 0.39 || lo > 0.41 || hi < 0.59 || hi > 0.61 {
		t.Errorf("unexpected interval for 50/100: [%f,%f]", lo, hi)
	}

	lo, hi = stats.WilsonInterval(5, 2, 0.95)
	if lo < 0 || hi > 1 {
		t.Errorf("interval out of bounds when conversions exceed impressions: [%f,%f]", lo, hi)
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		want       float64
	}{
		{0.90, 1.645},
		{0.95, 1.96},
		{0.99, 2.576},
		{0.80, 1.2816},
	}

	for _, tt := range tests {
		if got := stats.ZScore(tt.confidence); math.Abs(got-tt.want) > 0.01 {
			t.Errorf("ZScore(%v) = %f, want ~%f", tt.confidence, got, tt.want)
		}
	}
}

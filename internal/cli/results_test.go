package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/store"
)

func TestPrintResults(t *testing.T) {
	winner := "tpl_b"
	res := &abtest.Results{
		Test: &store.ABTest{
			ID: 7, Name: "hero", TemplateAID: "tpl_a", TemplateBID: "tpl_b",
			Status: store.StatusActive, StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		Variants: map[string]abtest.VariantStats{
			"A": {Impressions: 100, Conversions: 5, Revenue: 50, ConversionRate: 0.05},
			"B": {Impressions: 100, Conversions: 12, Revenue: 120, ConversionRate: 0.12},
		},
	}

	var buf bytes.Buffer
	printResults(&buf, res, 10)
	output := buf.String()

	expectations := []string{
		"TEST: 7 hero",
		"tpl_a",
		"tpl_b",
		"← LEADING",
		"Decision: variant B wins",
		"Statistical significance:",
	}
	for _, expected := range expectations {
		if !strings.Contains(output, expected) {
			t.Errorf("results output missing %q\n\nGot:\n%s", expected, output)
		}
	}

	res.Test.Status = store.StatusCompleted
	res.Test.WinnerID = &winner
	buf.Reset()
	printResults(&buf, res, 10)
	if !strings.Contains(buf.String(), "WINNER: tpl_b") || strings.Contains(buf.String(), "Decision:") {
		t.Errorf("completed test output wrong:\n%s", buf.String())
	}
}

func TestPrintResults_Waiting(t *testing.T) {
	res := &abtest.Results{
		Test:     &store.ABTest{ID: 1, Name: "x", TemplateAID: "a", TemplateBID: "b", Status: store.StatusActive},
		Variants: map[string]abtest.VariantStats{"A": {Impressions: 3, Conversions: 1}},
	}
	var buf bytes.Buffer
	printResults(&buf, res, 10)
	if !strings.Contains(buf.String(), "waiting for 10 conversions (have 1)") {
		t.Errorf("expected waiting message, got:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "N/A") {
		t.Errorf("expected N/A interval for variant without impressions, got:\n%s", buf.String())
	}
}

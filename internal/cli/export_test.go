package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gkobilansky/cashloop/internal/store"
)

func TestExportCSV(t *testing.T) {
	rows := []*store.ABResult{
		{VariantID: "A", Impressions: 1, Date: time.Unix(1700000000, 0)},
		{VariantID: "B", Conversions: 1, Revenue: 9.5, ConversionRate: 0, Date: time.Unix(1700000060, 0)},
	}
	var buf bytes.Buffer
	if err := exportCSV(&buf, rows); err != nil {
		t.Fatalf("exportCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if lines[2] != "1700000060,B,0,1,9.50,0.0000" {
		t.Errorf("unexpected row %q", lines[2])
	}
}

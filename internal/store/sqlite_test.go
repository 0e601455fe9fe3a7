package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gkobilansky/cashloop/internal/store"
	"github.com/gkobilansky/cashloop/internal/store/storetest"
)

func TestOpen(t *testing.T) {
	s := storetest.Open(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}

	size, err := s.Ping(context.Background())
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if size <= 0 {
		t.Errorf("expected positive db size, got %d", size)
	}
}

func TestSaveTemplate_Duplicate(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	storetest.SeedTemplates(t, s, "wealth_1")

	err := s.SaveTemplate(ctx, &store.Template{ID: "wealth_1", Content: "x"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetTemplate_NotFound(t *testing.T) {
	s := storetest.Open(t)

	_, err := s.GetTemplate(context.Background(), "missing")
	if err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateABTest(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b")

	test, err := s.CreateABTest(ctx, "T1", "a", "b")
	if err != nil {
		t.Fatalf("failed to create test: %v", err)
	}
	if test.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if test.Status != store.StatusActive {
		t.Errorf("got status %s, want active", test.Status)
	}

	got, err := s.GetABTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("failed to get test: %v", err)
	}
	if got.TemplateAID != "a" || got.TemplateBID != "b" {
		t.Errorf("got templates %s/%s, want a/b", got.TemplateAID, got.TemplateBID)
	}
	if got.WinnerID != nil || got.EndDate != nil {
		t.Error("new test should have no winner or end date")
	}
}

func TestCreateABTest_MissingTemplate(t *testing.T) {
	s := storetest.Open(t)
	storetest.SeedTemplates(t, s, "a")

	_, err := s.CreateABTest(context.Background(), "T1", "a", "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tests, err := s.ListABTests(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tests) != 0 {
		t.Errorf("expected no partial state, got %d tests", len(tests))
	}
}

func TestCreateABTest_TemplateAlreadyActive(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b", "c")

	if _, err := s.CreateABTest(ctx, "T1", "a", "b"); err != nil {
		t.Fatal(err)
	}
	_, err := s.CreateABTest(ctx, "T2", "b", "c")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateABTest_SameTemplateTwice(t *testing.T) {
	s := storetest.Open(t)
	storetest.SeedTemplates(t, s, "a")

	_, err := s.CreateABTest(context.Background(), "T1", "a", "a")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAppendResult_AccumulatesRows(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b")
	test, _ := s.CreateABTest(ctx, "T1", "a", "b")

	for i := 0; i < 4; i++ {
		if _, err := s.AppendResult(ctx, test.ID, "A", 1, 0, 0); err != nil {
			t.Fatal(err)
		}
	}
	row, err := s.AppendResult(ctx, test.ID, "A", 0, 1, 12.5)
	if err != nil {
		t.Fatal(err)
	}
	if row.ConversionRate != 0.25 {
		t.Errorf("got row rate %f, want 0.25 (1 of 4 cumulative)", row.ConversionRate)
	}

	results, err := s.ListResults(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Errorf("got %d accumulator rows, want 5", len(results))
	}

	totals, err := s.VariantTotals(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(totals) != 1 {
		t.Fatalf("got %d variants, want 1", len(totals))
	}
	if totals[0].Impressions != 4 || totals[0].Conversions != 1 || totals[0].Revenue != 12.5 {
		t.Errorf("unexpected totals %+v", totals[0])
	}
}

func TestAppendResult_ConversionWithoutImpressions(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b")
	test, _ := s.CreateABTest(ctx, "T1", "a", "b")

	row, err := s.AppendResult(ctx, test.ID, "B", 0, 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	if row.ConversionRate != 0 {
		t.Errorf("got rate %f, want 0 with zero impressions", row.ConversionRate)
	}
}

func TestAppendResult_UnknownTest(t *testing.T) {
	s := storetest.Open(t)

	_, err := s.AppendResult(context.Background(), 99, "A", 1, 0, 0)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendResult_ConcurrentWriters(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b")
	test, _ := s.CreateABTest(ctx, "T1", "a", "b")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			variant := "A"
			if i%2 == 1 {
				variant = "B"
			}
			if _, err := s.AppendResult(ctx, test.ID, variant, 1, 0, 0); err != nil {
				t.Errorf("append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	totals, err := s.VariantTotals(ctx, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0
	for _, v := range totals {
		sum += v.Impressions
	}
	if sum != 20 {
		t.Errorf("got %d impressions, want 20", sum)
	}
}

func TestCompleteABTest(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b")
	test, _ := s.CreateABTest(ctx, "T1", "a", "b")

	if err := s.CompleteABTest(ctx, test.ID, "b"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	got, _ := s.GetABTest(ctx, test.ID)
	if got.Status != store.StatusCompleted {
		t.Errorf("got status %s, want completed", got.Status)
	}
	if got.WinnerID == nil || *got.WinnerID != "b" {
		t.Errorf("expected winner b, got %v", got.WinnerID)
	}
	if got.EndDate == nil {
		t.Error("expected end date")
	}

	if err := s.CompleteABTest(ctx, test.ID, "a"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict completing twice, got %v", err)
	}
}

func TestCompleteABTest_ForeignWinner(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b")
	test, _ := s.CreateABTest(ctx, "T1", "a", "b")

	if err := s.CompleteABTest(ctx, test.ID, "z"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if err := s.CompleteABTest(ctx, 42, "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListABTests_FilterAndActiveLookup(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "a", "b", "c", "d")
	t1, _ := s.CreateABTest(ctx, "T1", "a", "b")
	t2, _ := s.CreateABTest(ctx, "T2", "c", "d")
	_ = s.CompleteABTest(ctx, t1.ID, "a")

	active, err := s.ListABTests(ctx, store.StatusActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != t2.ID {
		t.Errorf("expected only T2 active, got %+v", active)
	}

	all, _ := s.ListABTests(ctx, "")
	if len(all) != 2 {
		t.Errorf("got %d tests, want 2", len(all))
	}

	found, err := s.ActiveTestForTemplate(ctx, "d")
	if err != nil || found.ID != t2.ID {
		t.Errorf("expected T2 for template d, got %v, %v", found, err)
	}
	if _, err := s.ActiveTestForTemplate(ctx, "a"); err != store.ErrNotFound {
		t.Errorf("completed test should not match, got %v", err)
	}
}

func TestTopTrends_WindowAndGrouping(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s, clock := storetest.OpenWithClock(t, start)
	ctx := context.Background()

	old := []store.TrendRecord{{Keyword: "stale", Source: "twitter", TrendScore: 999, Volume: 1, Timestamp: start.Add(-48 * time.Hour)}}
	if err := s.InsertTrends(ctx, old); err != nil {
		t.Fatal(err)
	}
	fresh := []store.TrendRecord{
		{Keyword: "wealth", Source: "twitter", TrendScore: 50, Volume: 10},
		{Keyword: "wealth", Source: "reddit", TrendScore: 30, Volume: 5},
		{Keyword: "wealth", Source: "twitter", TrendScore: 70, Volume: 2},
	}
	if err := s.InsertTrends(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	trends, err := s.TopTrends(ctx, clock.Now().Add(-24*time.Hour), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(trends) != 2 {
		t.Fatalf("got %d groups, want 2: %+v", len(trends), trends)
	}
	if trends[0].Source != "twitter" || trends[0].AvgScore != 60 || trends[0].TotalVolume != 12 {
		t.Errorf("unexpected first group %+v", trends[0])
	}
	if trends[1].Source != "reddit" || trends[1].AvgScore != 30 {
		t.Errorf("unexpected second group %+v", trends[1])
	}
	if trends[0].Topic != "wealth" {
		t.Errorf("topic should default to keyword, got %q", trends[0].Topic)
	}
}

func TestInsertTrends_RejectsEmptyKeyword(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	err := s.InsertTrends(ctx, []store.TrendRecord{{Keyword: "ok", Source: "rss"}, {Keyword: "", Source: "rss"}})
	if err == nil {
		t.Fatal("expected error for empty keyword")
	}

	trends, _ := s.TopTrends(ctx, time.Unix(0, 0), 10)
	if len(trends) != 0 {
		t.Errorf("batch should roll back, got %d groups", len(trends))
	}
}

func TestProducts_RevenueAggregation(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "t1", "t2")

	id1, _ := s.CreateProduct(ctx, &store.Product{Name: "p1", Price: 10, TemplateID: "t1"})
	id2, _ := s.CreateProduct(ctx, &store.Product{Name: "p2", Price: 20, TemplateID: "t1"})
	_, _ = s.CreateProduct(ctx, &store.Product{Name: "p3", Price: 5, TemplateID: "t2"})
	_, _ = s.CreateProduct(ctx, &store.Product{Name: "loose", Price: 1})

	for _, sale := range []struct {
		id     int64
		amount float64
	}{{id1, 10}, {id1, 10}, {id2, 20}} {
		if err := s.RecordSale(ctx, sale.id, sale.amount, "gumroad_sale"); err != nil {
			t.Fatal(err)
		}
	}

	perf, err := s.TemplateRevenue(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if perf.ProductCount != 2 || perf.TotalSales != 3 || perf.TotalRevenue != 40 || perf.AvgPrice != 15 {
		t.Errorf("unexpected perf %+v", perf)
	}

	empty, err := s.TemplateRevenue(ctx, "none")
	if err != nil {
		t.Fatal(err)
	}
	if empty.ProductCount != 0 || empty.TotalRevenue != 0 {
		t.Errorf("expected zeroes, got %+v", empty)
	}

	avg, _ := s.AverageTemplatedRevenue(ctx)
	if avg != 40.0/3.0 {
		t.Errorf("got avg %f, want %f", avg, 40.0/3.0)
	}

	below, _ := s.TemplatesBelowRevenue(ctx, 10)
	if len(below) != 1 || below[0].TemplateID != "t2" {
		t.Errorf("expected only t2 below cutoff, got %+v", below)
	}

	top, _ := s.TopTemplatesByRevenue(ctx, 5)
	if len(top) != 1 || top[0].TemplateID != "t1" {
		t.Errorf("expected t1 on top, got %+v", top)
	}

	rev, _ := s.RevenueSince(ctx, time.Now().Add(-time.Hour))
	if rev != 40 {
		t.Errorf("got revenue %f, want 40", rev)
	}

	if err := s.RecordSale(ctx, 999, 1, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown product, got %v", err)
	}
}

func TestTemplatesBelowRevenue_SkipsMissingTemplates(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "kept")

	_, _ = s.CreateProduct(ctx, &store.Product{Name: "a", Price: 5, TemplateID: "kept"})
	_, _ = s.CreateProduct(ctx, &store.Product{Name: "b", Price: 5, TemplateID: "gone_file"})

	below, err := s.TemplatesBelowRevenue(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(below) != 1 || below[0].TemplateID != "kept" {
		t.Errorf("expected only kept below cutoff, got %+v", below)
	}
}

func TestSaveOptimization(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, s, "orig")

	tmpl := &store.Template{ID: "orig_optimized_20260101", Content: "new", ParentID: "orig", Source: "optimized"}
	ev := &store.OptimizationEvent{TemplateID: "orig", OptimizationType: "ai_optimization", BeforeMetrics: `{"total_revenue":0}`}
	if err := s.SaveOptimization(ctx, tmpl, ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID == 0 {
		t.Error("expected event id")
	}

	// Duplicate template id rolls back the event too.
	again := &store.OptimizationEvent{TemplateID: "orig", OptimizationType: "ai_optimization"}
	if err := s.SaveOptimization(ctx, &store.Template{ID: "orig_optimized_20260101", Content: "x"}, again); err == nil {
		t.Fatal("expected duplicate error")
	}

	events, err := s.ListOptimizations(ctx, "orig")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
}

func TestLastGeneratedAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s, _ := storetest.OpenWithClock(t, start)
	ctx := context.Background()

	if _, ok, err := s.LastGeneratedAt(ctx); err != nil || ok {
		t.Fatalf("expected no generation yet, got ok=%v err=%v", ok, err)
	}

	_ = s.SaveTemplate(ctx, &store.Template{ID: "g1", Content: "x", Source: "generated"})
	last, ok, err := s.LastGeneratedAt(ctx)
	if err != nil || !ok {
		t.Fatalf("expected generation time, got ok=%v err=%v", ok, err)
	}
	if !last.Equal(start) {
		t.Errorf("got %v, want %v", last, start)
	}
}

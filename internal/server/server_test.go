package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/config"
	"github.com/gkobilansky/cashloop/internal/engine"
	"github.com/gkobilansky/cashloop/internal/generator"
	"github.com/gkobilansky/cashloop/internal/lock"
	"github.com/gkobilansky/cashloop/internal/optimizer"
	"github.com/gkobilansky/cashloop/internal/server"
	"github.com/gkobilansky/cashloop/internal/store"
	"github.com/gkobilansky/cashloop/internal/store/storetest"
	"github.com/gkobilansky/cashloop/internal/trends"
)

const token = "secret-token"

type fixture struct {
	srv   *server.Server
	store *store.SQLiteStore
	ab    *abtest.Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, _ := storetest.OpenWithClock(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	cfg := config.Defaults()
	cfg.TrendAnalysisEnabled = false
	cfg.TemplateGenerationEnabled = false

	locker := lock.NewLocal()
	ranker := trends.NewRanker(s, nil, trends.Options{DefaultTopics: []string{"budgeting", "meal planning"}})
	gen := generator.New(s, nil, nil, generator.Options{})
	ab := abtest.New(s, locker, nil, abtest.Options{MinConversions: 2})
	opt := optimizer.New(s, gen, locker, nil)
	eng := engine.New(s, ranker, gen, ab, opt, cfg, nil)

	srv := server.New(server.Deps{
		Store:     s,
		AB:        ab,
		Ranker:    ranker,
		Optimizer: opt,
		Engine:    eng,
		Config:    cfg,
	}, 0, token, "")
	return &fixture{srv: srv, store: s, ab: ab}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(dst))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp server.HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.TestsCount)
	assert.Positive(t, resp.DBSizeBytes)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cashloop_ab_winners_applied_total")
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	storetest.SeedTemplates(t, f.store, "a", "b")
	body := server.CreateTestRequest{TemplateA: "a", TemplateB: "b"}

	w := f.do(t, http.MethodPost, "/api/tests", body, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/tests", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	b, _ := json.Marshal(body)
	req = httptest.NewRequest(http.MethodPost, "/api/tests?token="+token, bytes.NewReader(b))
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestTestLifecycle(t *testing.T) {
	f := newFixture(t)
	storetest.SeedTemplates(t, f.store, "a", "b")

	w := f.do(t, http.MethodPost, "/api/tests", server.CreateTestRequest{TemplateA: "a", TemplateB: "b", Name: "hero"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var created server.TestResponse
	decode(t, w, &created)
	assert.Equal(t, "hero", created.Name)
	assert.Equal(t, "active", created.Status)

	base := "/api/tests/" + itoa(created.ID)
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, base+"/impressions", server.RecordRequest{Variant: "A"}, true).Code)
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, base+"/impressions", server.RecordRequest{Variant: "B"}, true).Code)
	}
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, base+"/conversions", server.RecordRequest{Variant: "A", Amount: 5}, true).Code)
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, f.do(t, http.MethodPost, base+"/conversions", server.RecordRequest{Variant: "B", Amount: 5}, true).Code)
	}

	w = f.do(t, http.MethodGet, base+"/results", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var res server.ResultsResponse
	decode(t, w, &res)
	assert.Equal(t, "B", res.Decision)
	assert.Equal(t, 10, res.Variants["B"].Impressions)
	assert.InDelta(t, 0.5, res.Variants["B"].ConversionRate, 1e-9)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "B", res.Analysis.Leader)

	w = f.do(t, http.MethodPost, base+"/apply", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var applied struct {
		Applied bool                `json:"applied"`
		Test    server.TestResponse `json:"test"`
	}
	decode(t, w, &applied)
	assert.True(t, applied.Applied)
	assert.Equal(t, "completed", applied.Test.Status)
	assert.Equal(t, "b", applied.Test.WinnerID)

	w = f.do(t, http.MethodPost, base+"/impressions", server.RecordRequest{Variant: "A"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/tests?status=completed", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tests []server.TestResponse `json:"tests"`
	}
	decode(t, w, &list)
	require.Len(t, list.Tests, 1)
	assert.Equal(t, created.ID, list.Tests[0].ID)
}

func TestTestErrors(t *testing.T) {
	f := newFixture(t)
	storetest.SeedTemplates(t, f.store, "a", "b", "c")

	w := f.do(t, http.MethodGet, "/api/tests/999", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/tests/abc", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/tests?status=paused", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/tests", server.CreateTestRequest{TemplateA: "a", TemplateB: "b"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var created server.TestResponse
	decode(t, w, &created)

	w = f.do(t, http.MethodPost, "/api/tests", server.CreateTestRequest{TemplateA: "a", TemplateB: "c"}, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/tests/"+itoa(created.ID)+"/impressions", server.RecordRequest{Variant: "C"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/tests/"+itoa(created.ID)+"/conversions", server.RecordRequest{Variant: "A", Amount: -3}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must not be negative")
}

func TestTrendsAndTopics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/topics?limit=1", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var topics struct {
		Topics []string `json:"topics"`
	}
	decode(t, w, &topics)
	assert.Equal(t, []string{"budgeting"}, topics.Topics)

	w = f.do(t, http.MethodPost, "/api/trends", server.IngestTrendRequest{Source: "manual", Keyword: "sourdough", Score: 9, Volume: 3}, true)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodPost, "/api/trends", server.IngestTrendRequest{Keyword: " "}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/trends?limit=5", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var top struct {
		Trends []store.TrendAggregate `json:"trends"`
	}
	decode(t, w, &top)
	require.Len(t, top.Trends, 1)
	assert.Equal(t, "sourdough", top.Trends[0].Keyword)

	w = f.do(t, http.MethodGet, "/api/trends?limit=-1", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductsAndSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storetest.SeedTemplates(t, f.store, "a", "b")
	test, err := f.ab.CreateTest(ctx, "a", "b", "T")
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/api/products", server.ProductRequest{Name: "Kit", Price: 12, TemplateID: "a"}, true)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)
	require.NotZero(t, created.ID)

	w = f.do(t, http.MethodPost, "/api/products/"+itoa(created.ID)+"/sales", server.SaleRequest{Amount: 12}, true)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodPost, "/api/products/424242/sales", server.SaleRequest{Amount: 1}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	res, err := f.ab.Results(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats("A").Conversions)
	assert.Equal(t, 12.0, res.Stats("A").Revenue)

	w = f.do(t, http.MethodGet, "/api/templates/a/performance", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var perf optimizer.Performance
	decode(t, w, &perf)
	assert.Equal(t, 1, perf.ProductCount)
	assert.Equal(t, 12.0, perf.TotalRevenue)
}

func TestUnderperforming(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/templates/underperforming?threshold=x", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/templates/underperforming?threshold=0.5", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Threshold float64 `json:"threshold"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 0.5, resp.Threshold)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/sweep", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var report engine.Report
	decode(t, w, &report)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Steps, 4)
}

func TestRun_WritesTokenAndShutsDown(t *testing.T) {
	s, _ := storetest.OpenWithClock(t, time.Now())
	tokenFile := filepath.Join(t.TempDir(), ".cashloop-token")
	srv := server.New(server.Deps{Store: s}, 0, "", tokenFile)
	require.Len(t, srv.Token(), 32)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(tokenFile)
		return err == nil && string(b) == srv.Token()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

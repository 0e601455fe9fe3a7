package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/stats"
	"github.com/gkobilansky/cashloop/internal/store"
)

type HealthResponse struct {
	Status        string `json:"status"`
	TestsCount    int    `json:"tests_count"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tests, err := s.deps.Store.ListABTests(ctx, "")
	if err != nil {
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	dbSize, err := s.deps.Store.Ping(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", TestsCount: len(tests)})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		TestsCount:    len(tests),
		DBSizeBytes:   dbSize,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	})
}

// TestResponse is the wire form of an A/B test.
type TestResponse struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	TemplateA string     `json:"template_a"`
	TemplateB string     `json:"template_b"`
	Status    string     `json:"status"`
	WinnerID  string     `json:"winner_id,omitempty"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

func toTestResponse(t *store.ABTest) TestResponse {
	resp := TestResponse{
		ID:        t.ID,
		Name:      t.Name,
		TemplateA: t.TemplateAID,
		TemplateB: t.TemplateBID,
		Status:    string(t.Status),
		StartDate: t.StartDate,
		EndDate:   t.EndDate,
	}
	if t.WinnerID != nil {
		resp.WinnerID = *t.WinnerID
	}
	return resp
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	status := store.TestStatus(r.URL.Query().Get("status"))
	switch status {
	case "", store.StatusActive, store.StatusCompleted:
	default:
		writeJSONError(w, "status must be active or completed", http.StatusBadRequest)
		return
	}

	tests, err := s.deps.Store.ListABTests(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]TestResponse, 0, len(tests))
	for _, t := range tests {
		out = append(out, toTestResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tests": out})
}

type CreateTestRequest struct {
	TemplateA string `json:"template_a"`
	TemplateB string `json:"template_b"`
	Name      string `json:"name"`
}

func (s *Server) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req CreateTestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TemplateA == "" || req.TemplateB == "" {
		writeJSONError(w, "template_a and template_b are required", http.StatusBadRequest)
		return
	}

	t, err := s.deps.AB.CreateTest(r.Context(), req.TemplateA, req.TemplateB, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTestResponse(t))
}

func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id, ok := testIDParam(w, r)
	if !ok {
		return
	}
	t, err := s.deps.Store.GetABTest(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTestResponse(t))
}

// ResultsResponse carries the summed counters, the decision the winner rule
// would make now, and the informational significance analysis.
type ResultsResponse struct {
	Test     TestResponse                   `json:"test"`
	Variants map[string]abtest.VariantStats `json:"variants"`
	Warnings []abtest.DataInconsistency     `json:"warnings,omitempty"`
	Decision string                         `json:"decision,omitempty"`
	Analysis *stats.Summary                 `json:"analysis"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id, ok := testIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.deps.AB.Results(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	a, b := res.Stats(store.VariantA), res.Stats(store.VariantB)
	writeJSON(w, http.StatusOK, ResultsResponse{
		Test:     toTestResponse(res.Test),
		Variants: res.Variants,
		Warnings: res.Warnings,
		Decision: abtest.Decide(a, b, s.deps.AB.MinConversions()),
		Analysis: stats.Analyze(
			stats.Observation{Name: store.VariantA, Impressions: a.Impressions, Conversions: a.Conversions, Revenue: a.Revenue},
			stats.Observation{Name: store.VariantB, Impressions: b.Impressions, Conversions: b.Conversions, Revenue: b.Revenue},
		),
	})
}

type RecordRequest struct {
	Variant string  `json:"variant"`
	Amount  float64 `json:"amount"`
}

func (s *Server) handleImpression(w http.ResponseWriter, r *http.Request) {
	s.handleRecord(w, r, func(ctx context.Context, id int64, req RecordRequest) error {
		return s.deps.AB.RecordImpression(ctx, id, req.Variant)
	})
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	s.handleRecord(w, r, func(ctx context.Context, id int64, req RecordRequest) error {
		return s.deps.AB.RecordConversion(ctx, id, req.Variant, req.Amount)
	})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, record func(context.Context, int64, RecordRequest) error) {
	id, ok := testIDParam(w, r)
	if !ok {
		return
	}
	var req RecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := record(r.Context(), id, req); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	id, ok := testIDParam(w, r)
	if !ok {
		return
	}
	applied, err := s.deps.AB.ApplyWinner(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.deps.Store.GetABTest(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applied": applied, "test": toTestResponse(t)})
}

func (s *Server) handleTopTrends(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit", 10)
	if !ok {
		return
	}
	hours, ok := intQuery(w, r, "window_hours", s.deps.Config.TrendWindowHours)
	if !ok {
		return
	}
	trends, err := s.deps.Ranker.TopTrending(r.Context(), limit, time.Duration(hours)*time.Hour)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trends": trends})
}

type IngestTrendRequest struct {
	Source  string  `json:"source"`
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
	Volume  int     `json:"volume"`
}

func (s *Server) handleIngestTrend(w http.ResponseWriter, r *http.Request) {
	var req IngestTrendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if err := s.deps.Ranker.Ingest(r.Context(), req.Source, req.Keyword, req.Score, req.Volume); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	limit, ok := intQuery(w, r, "limit", 5)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": s.deps.Ranker.SuggestTopics(r.Context(), limit)})
}

func (s *Server) handleUnderperforming(w http.ResponseWriter, r *http.Request) {
	threshold := s.deps.Config.OptimizationThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeJSONError(w, "threshold must be a non-negative number", http.StatusBadRequest)
			return
		}
		threshold = v
	}
	list, err := s.deps.Optimizer.Underperforming(r.Context(), threshold)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"threshold": threshold, "templates": list})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.deps.Optimizer.PerformanceOf(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

type ProductRequest struct {
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Type       string  `json:"type"`
	TemplateID string  `json:"template_id"`
	Variant    string  `json:"variant"`
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Price < 0 {
		writeJSONError(w, "name is required and price must not be negative", http.StatusBadRequest)
		return
	}
	p := &store.Product{
		Name:          req.Name,
		Price:         req.Price,
		Type:          req.Type,
		TemplateID:    req.TemplateID,
		ABTestVariant: req.Variant,
	}
	if err := s.deps.Engine.AddProduct(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": p.ID})
}

type SaleRequest struct {
	Amount float64 `json:"amount"`
	Source string  `json:"source"`
}

func (s *Server) handleSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		writeJSONError(w, "invalid product id", http.StatusBadRequest)
		return
	}
	var req SaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount < 0 {
		writeJSONError(w, "amount must not be negative", http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if err := s.deps.Engine.RecordSale(r.Context(), id, req.Amount, req.Source); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Engine.RunCycle(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, abtest.ErrInvalidVariant), errors.Is(err, abtest.ErrInvalidAmount):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrConflict):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("Request failed", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func testIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "invalid test id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func intQuery(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		writeJSONError(w, key+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pod-pricing/config"
	"pod-pricing/engine/adjust"
	"pod-pricing/engine/ledger"
	"pod-pricing/engine/market"
	"pod-pricing/engine/strategy"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	log := zerolog.Nop()
	l := ledger.New(ledger.DefaultConfig(), clk, log)
	o := market.New(market.DefaultConfig(), clk, log)
	st := strategy.New(strategy.DefaultConfig(), clk, log)
	a := adjust.New(adjust.DefaultConfig(), l, clk, log)
	return NewServer(l, o, st, a, config.Default().Server, log)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleMargins(rec, httptest.NewRequest(http.MethodPost, "/api/v1/margins", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	s.handleRecordCost(rec, httptest.NewRequest(http.MethodGet, "/api/v1/costs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecordCostThenMargins(t *testing.T) {
	s := newTestServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/costs", strings.NewReader(body))
		s.handleRecordCost(rec, req)
		return rec
	}

	rec := post(`{"product_id": "tee", "variant_id": 1, "base_cost": 1100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var first CostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Nil(t, first.Alert, "first observation never alerts")

	// Record a price so the adjuster has one to work from.
	rec = httptest.NewRecorder()
	s.handleRecordPrice(rec, httptest.NewRequest(http.MethodPost, "/api/v1/prices",
		strings.NewReader(`{"product_id": "tee", "variant_id": 1, "selling_price": 1999, "base_cost": 1100}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(`{"product_id": "tee", "variant_id": 1, "base_cost": 1210}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var second CostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.NotNil(t, second.Alert)
	assert.Equal(t, ledger.AlertCostIncrease, second.Alert.Kind)
	require.NotNil(t, second.Adjustment)
	assert.True(t, second.Adjustment.ProposedPrice.Equal(decimal.NewFromInt(2099)))

	rec = httptest.NewRecorder()
	s.handleMargins(rec, httptest.NewRequest(http.MethodGet, "/api/v1/margins", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var margins []ledger.Margin
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &margins))
	require.Len(t, margins, 1)
	assert.Equal(t, "tee", margins[0].ProductID)
}

func TestRecordCostBadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleRecordCost(rec, httptest.NewRequest(http.MethodPost, "/api/v1/costs",
		strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleRecordCost(rec, httptest.NewRequest(http.MethodPost, "/api/v1/costs",
		strings.NewReader(`{"product_id": "tee", "variant_id": 1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero cost is invalid")
}

func TestTrendsQueryValidation(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleTrends(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trends?variant=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleTrends(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trends?product=tee&variant=1&days=-3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleTrends(rec, httptest.NewRequest(http.MethodGet, "/api/v1/trends?product=tee&variant=1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no history yet")
}

func TestObservationAndPosition(t *testing.T) {
	s := newTestServer(t)

	for _, price := range []int{1500, 1700, 2000} {
		rec := httptest.NewRecorder()
		body := `{"competitor_id": "printful", "product_name": "Tee", "category": "apparel", "price": ` +
			strconv.Itoa(price) + `}`
		s.handleObservation(rec, httptest.NewRequest(http.MethodPost, "/api/v1/market/observations",
			strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	s.handleObservation(rec, httptest.NewRequest(http.MethodPost, "/api/v1/market/observations",
		strings.NewReader(`{"competitor_id": "nobody", "product_name": "Tee", "category": "apparel", "price": 1500}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleMarketPosition(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/market/position?category=apparel&price=1800", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var pos market.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, 3, pos.TotalCompetitors)
	assert.Equal(t, 2, pos.LowerPriced)

	rec = httptest.NewRecorder()
	s.handleMarketPosition(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/market/position?category=empty&price=1800", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecommendUsesObserverPrices(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.observer.Observe("printful", "Tee", "apparel",
		decimal.NewFromInt(1800), market.ObserveOpts{}))

	rec := httptest.NewRecorder()
	s.handleRecommend(rec, httptest.NewRequest(http.MethodPost, "/api/v1/strategy/recommend",
		strings.NewReader(`{"base_cost": 1100, "selling_price": 1999, "category": "apparel"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var recm strategy.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recm))
	assert.Equal(t, 1, recm.Market.Competitors)
	assert.Len(t, recm.Candidates, 5, "competitive candidate present")
}

func TestApproveConflict(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleApprove(rec, httptest.NewRequest(http.MethodPost, "/api/v1/adjustments/approve",
		strings.NewReader(`{"index": 0}`)))
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing queued")
}

func TestSummaryEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleSummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body SummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Market.Competitors)
	assert.Equal(t, 4, body.Adjustments.RulesActive)
}

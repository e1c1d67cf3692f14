// Package api provides the HTTP query and mutation surface over the
// pricing engines.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pod-pricing/config"
	"pod-pricing/engine/adjust"
	"pod-pricing/engine/ledger"
	"pod-pricing/engine/market"
	"pod-pricing/engine/strategy"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	ledger     *ledger.Ledger
	observer   *market.Observer
	strategist *strategy.Strategist
	adjuster   *adjust.Engine
	cfg        config.Server
	log        zerolog.Logger
}

// NewServer wires the engines behind the HTTP surface.
func NewServer(l *ledger.Ledger, o *market.Observer, s *strategy.Strategist, a *adjust.Engine, cfg config.Server, log zerolog.Logger) *Server {
	return &Server{
		ledger:     l,
		observer:   o,
		strategist: s,
		adjuster:   a,
		cfg:        cfg,
		log:        log,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/margins", s.handleMargins)
	mux.HandleFunc("/api/v1/trends", s.handleTrends)
	mux.HandleFunc("/api/v1/costs", s.handleRecordCost)
	mux.HandleFunc("/api/v1/prices", s.handleRecordPrice)
	mux.HandleFunc("/api/v1/market/position", s.handleMarketPosition)
	mux.HandleFunc("/api/v1/market/opportunities", s.handleMarketOpportunities)
	mux.HandleFunc("/api/v1/market/summary", s.handleMarketSummary)
	mux.HandleFunc("/api/v1/market/observations", s.handleObservation)
	mux.HandleFunc("/api/v1/strategy/recommend", s.handleRecommend)
	mux.HandleFunc("/api/v1/adjustments", s.handleAdjustments)
	mux.HandleFunc("/api/v1/adjustments/approve", s.handleApprove)
	mux.HandleFunc("/api/v1/adjustments/reject", s.handleReject)
	mux.HandleFunc("/api/v1/adjustments/execute", s.handleExecute)
	mux.HandleFunc("/api/v1/summary", s.handleSummary)

	// Wrap with middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutS) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutS) * time.Second,
	}

	s.log.Info().Int("port", s.cfg.Port).Msg("pricing API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts the server and drains it on SIGINT or
// SIGTERM. onShutdown runs after the listener stops, before returning.
func (s *Server) StartWithGracefulShutdown(onShutdown func()) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.log.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(ctx)
		if onShutdown != nil {
			onShutdown()
		}
		return err
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.cfg.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}

// =============================================================================
// LEDGER ENDPOINTS
// =============================================================================

func (s *Server) handleMargins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.jsonResponse(w, http.StatusOK, s.ledger.CurrentMargins())
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	productID := r.URL.Query().Get("product")
	variantID, err := strconv.Atoi(r.URL.Query().Get("variant"))
	if productID == "" || err != nil {
		s.jsonError(w, http.StatusBadRequest, "product and numeric variant are required")
		return
	}
	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if days, err = strconv.Atoi(d); err != nil || days <= 0 {
			s.jsonError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
	}

	trend, err := s.ledger.Trends(productID, variantID, days)
	if err != nil {
		s.jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, trend)
}

// CostRequest records a cost snapshot for a variant. Amounts are cents.
type CostRequest struct {
	ProductID     string          `json:"product_id"`
	VariantID     int             `json:"variant_id"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	Currency      string          `json:"currency"`
}

// CostResponse reports the outcome, including any proposed adjustment.
type CostResponse struct {
	Alert      *ledger.Alert      `json:"alert,omitempty"`
	Adjustment *adjust.Adjustment `json:"adjustment,omitempty"`
}

func (s *Server) handleRecordCost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)

	var req CostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	alert, err := s.ledger.RecordCost(req.ProductID, req.VariantID, ledger.CostSnapshot{
		BaseCost:      req.BaseCost,
		ShippingCost:  req.ShippingCost,
		ProcessingFee: req.ProcessingFee,
		Currency:      req.Currency,
	})
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := CostResponse{Alert: alert}
	if alert != nil {
		adj, err := s.adjuster.OnAlert(*alert)
		if err != nil {
			s.log.Warn().Err(err).Str("product", req.ProductID).Msg("alert produced no adjustment")
		}
		resp.Adjustment = adj
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// PriceRequest records a selling price against a cost snapshot.
type PriceRequest struct {
	ProductID     string          `json:"product_id"`
	VariantID     int             `json:"variant_id"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	Reason        string          `json:"reason"`
}

// PriceResponse reports the recorded point plus any margin adjustment.
type PriceResponse struct {
	Point      ledger.PricePoint  `json:"price_point"`
	Adjustment *adjust.Adjustment `json:"adjustment,omitempty"`
}

func (s *Server) handleRecordPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	point, err := s.ledger.RecordPrice(req.ProductID, req.VariantID, req.SellingPrice,
		ledger.CostSnapshot{
			BaseCost:      req.BaseCost,
			ShippingCost:  req.ShippingCost,
			ProcessingFee: req.ProcessingFee,
		}, ledger.ChangeReason(req.Reason))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := PriceResponse{Point: point}
	adj, err := s.adjuster.OnMarginBreach(req.ProductID, req.VariantID, point.ProfitMargin)
	if err != nil {
		s.log.Warn().Err(err).Str("product", req.ProductID).Msg("margin check produced no adjustment")
	}
	resp.Adjustment = adj
	s.jsonResponse(w, http.StatusOK, resp)
}

// =============================================================================
// MARKET ENDPOINTS
// =============================================================================

func (s *Server) handleMarketPosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	category := r.URL.Query().Get("category")
	price, err := decimal.NewFromString(r.URL.Query().Get("price"))
	if category == "" || err != nil {
		s.jsonError(w, http.StatusBadRequest, "category and numeric price (cents) are required")
		return
	}

	pos, err := s.observer.Position(price, category)
	if err != nil {
		s.jsonError(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, pos)
}

func (s *Server) handleMarketOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		s.jsonError(w, http.StatusBadRequest, "category is required")
		return
	}
	s.jsonResponse(w, http.StatusOK, s.observer.Opportunities(category))
}

func (s *Server) handleMarketSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.jsonResponse(w, http.StatusOK, s.observer.Summary(r.URL.Query().Get("category")))
}

// ObservationRequest records one competitor price sample. Price is cents.
type ObservationRequest struct {
	CompetitorID string          `json:"competitor_id"`
	ProductName  string          `json:"product_name"`
	Category     string          `json:"category"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	URL          string          `json:"url"`
	Availability string          `json:"availability"`
	Confidence   float64         `json:"confidence"`
}

func (s *Server) handleObservation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)

	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	err := s.observer.Observe(req.CompetitorID, req.ProductName, req.Category, req.Price,
		market.ObserveOpts{
			Currency:     req.Currency,
			URL:          req.URL,
			Availability: market.Availability(req.Availability),
			Source:       market.SourceAPI,
			Confidence:   req.Confidence,
		})
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// =============================================================================
// STRATEGY ENDPOINT
// =============================================================================

// RecommendRequest asks for a strategy recommendation. When a category is
// given, competitor prices come from the market observer; explicit prices
// override that.
type RecommendRequest struct {
	BaseCost         decimal.Decimal   `json:"base_cost"`
	SellingPrice     decimal.Decimal   `json:"selling_price"`
	ShippingCost     decimal.Decimal   `json:"shipping_cost"`
	ProcessingFee    decimal.Decimal   `json:"processing_fee"`
	PackagingCost    decimal.Decimal   `json:"packaging_cost"`
	Position         string            `json:"position"`
	Category         string            `json:"category"`
	CompetitorPrices []decimal.Decimal `json:"competitor_prices"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	position := market.Tier(req.Position)
	if position == "" {
		position = market.TierMid
	}
	prices := req.CompetitorPrices
	if len(prices) == 0 && req.Category != "" {
		prices = s.observer.Prices(req.Category)
	}

	breakdown := s.strategist.Breakdown(req.BaseCost, req.SellingPrice, strategy.Extras{
		ShippingCost:  req.ShippingCost,
		ProcessingFee: req.ProcessingFee,
		PackagingCost: req.PackagingCost,
	})
	s.jsonResponse(w, http.StatusOK, s.strategist.Recommend(breakdown, position, prices))
}

// =============================================================================
// ADJUSTMENT ENDPOINTS
// =============================================================================

func (s *Server) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.jsonResponse(w, http.StatusOK, s.adjuster.Pending(r.URL.Query().Get("product")))
}

// IndexRequest addresses a queued adjustment by position.
type IndexRequest struct {
	Index  int    `json:"index"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, func(req IndexRequest) bool {
		return s.adjuster.Approve(req.Index)
	})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, func(req IndexRequest) bool {
		return s.adjuster.Reject(req.Index, req.Reason)
	})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, apply func(IndexRequest) bool) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if !apply(req) {
		s.jsonError(w, http.StatusConflict, "adjustment is not pending or index is out of range")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	executed := s.adjuster.ExecuteApproved()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"executed": len(executed),
		"adjustments": executed,
	})
}

// =============================================================================
// SUMMARY ENDPOINT
// =============================================================================

// SummaryResponse is the combined dashboard snapshot.
type SummaryResponse struct {
	Ledger      ledger.Summary `json:"ledger"`
	Market      market.Summary `json:"market"`
	Adjustments adjust.Summary `json:"adjustments"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.jsonResponse(w, http.StatusOK, SummaryResponse{
		Ledger:      s.ledger.Summary(),
		Market:      s.observer.Summary(""),
		Adjustments: s.adjuster.Summary(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

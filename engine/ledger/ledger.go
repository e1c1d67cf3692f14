// Package ledger tracks per-variant production cost and selling-price
// history and raises alerts on cost deltas and margin breaches.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pod-pricing/internal/snapshot"
	"pod-pricing/pkg/clock"
	pricingerr "pod-pricing/pkg/errors"
	"pod-pricing/pkg/money"
)

// ChangeReason explains why a price point was recorded.
type ChangeReason string

const (
	ReasonCostIncrease      ChangeReason = "cost_increase"
	ReasonCostDecrease      ChangeReason = "cost_decrease"
	ReasonMarketCompetition ChangeReason = "market_competition"
	ReasonDemandSurge       ChangeReason = "demand_surge"
	ReasonDemandDrop        ChangeReason = "demand_drop"
	ReasonManual            ChangeReason = "manual_adjustment"
	ReasonSeasonal          ChangeReason = "seasonal_adjustment"
	ReasonPromotion         ChangeReason = "promotion"
)

// Direction is a trend direction.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

// Severity grades an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertKind classifies a detected condition.
type AlertKind string

const (
	AlertCostIncrease         AlertKind = "cost_increase"
	AlertCostDecrease         AlertKind = "cost_decrease"
	AlertMarginBelowThreshold AlertKind = "margin_below_threshold"
	AlertCompetitorPriceDrop  AlertKind = "competitor_price_drop"
)

// CostSnapshot is the total cost to produce one variant at a point in time.
// Amounts are in cents.
type CostSnapshot struct {
	VariantID     int             `json:"variant_id"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	ShippingCost  decimal.Decimal `json:"shipping_cost"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
}

// normalize fills derived fields: a zero total is the sum of the parts.
func (c *CostSnapshot) normalize(now time.Time) {
	if c.Timestamp.IsZero() {
		c.Timestamp = now
	}
	if c.Currency == "" {
		c.Currency = "USD"
	}
	if c.TotalCost.IsZero() {
		c.TotalCost = c.BaseCost.Add(c.ShippingCost).Add(c.ProcessingFee)
	}
}

// PricePoint is one (selling price, cost, margin) observation in history.
// Margin and profit are always derived from price − cost.
type PricePoint struct {
	ProductID    string          `json:"product_id"`
	VariantID    int             `json:"variant_id"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Cost         CostSnapshot    `json:"cost"`
	ProfitMargin float64         `json:"profit_margin"`
	ProfitAmount decimal.Decimal `json:"profit_amount"`
	Reason       ChangeReason    `json:"reason"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Alert is a detected condition requiring attention. For cost alerts the
// old/new values are cent totals; for margin alerts they are percentages.
type Alert struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    string          `json:"product_id"`
	VariantID    int             `json:"variant_id"`
	Kind         AlertKind       `json:"kind"`
	OldValue     decimal.Decimal `json:"old_value"`
	NewValue     decimal.Decimal `json:"new_value"`
	Threshold    float64         `json:"threshold"`
	Severity     Severity        `json:"severity"`
	Message      string          `json:"message"`
	Timestamp    time.Time       `json:"timestamp"`
	Acknowledged bool            `json:"acknowledged"`
}

// Trend summarizes price movement inside a window.
type Trend struct {
	ProductID          string          `json:"product_id"`
	VariantID          int             `json:"variant_id"`
	PeriodDays         int             `json:"period_days"`
	DataPoints         int             `json:"data_points"`
	Direction          Direction       `json:"direction"`
	PriceChange        decimal.Decimal `json:"price_change"`
	PriceChangePercent float64         `json:"price_change_percent"`
	CostChange         decimal.Decimal `json:"cost_change"`
	CostChangePercent  float64         `json:"cost_change_percent"`
	MarginChange       float64         `json:"margin_change"`
	CurrentMargin      float64         `json:"current_margin"`
	Volatility         float64         `json:"volatility"`
	Recommendations    []string        `json:"recommendations"`
}

// Margin is the latest margin state for one variant.
type Margin struct {
	ProductID    string          `json:"product_id"`
	VariantID    int             `json:"variant_id"`
	ProfitMargin float64         `json:"profit_margin"`
	ProfitAmount decimal.Decimal `json:"profit_amount"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Summary aggregates ledger state for dashboards.
type Summary struct {
	ProductsTracked      int              `json:"products_tracked"`
	TotalAlerts          int              `json:"total_alerts"`
	UnacknowledgedAlerts int              `json:"unacknowledged_alerts"`
	AverageProfitMargin  float64          `json:"average_profit_margin"`
	AlertBreakdown       map[Severity]int `json:"alert_breakdown"`
}

// Config holds ledger thresholds.
type Config struct {
	// MinChangePercent is the smallest relative cost delta that raises an
	// alert.
	MinChangePercent float64 `yaml:"min_change_percent" json:"min_change_percent"`
	// MarginThreshold is the minimum acceptable profit margin percent.
	MarginThreshold float64 `yaml:"margin_threshold" json:"margin_threshold"`
	// LowMarginPercent separates high-severity margin alerts from medium.
	LowMarginPercent float64 `yaml:"low_margin_percent" json:"low_margin_percent"`
	// RetentionDays bounds the price history window.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinChangePercent: 1.0,
		MarginThreshold:  20.0,
		LowMarginPercent: 10.0,
		RetentionDays:    90,
	}
}

// Ledger owns cost snapshots, price history, and alerts, keyed by
// product:variant.
type Ledger struct {
	mu  sync.Mutex
	cfg Config
	clk clock.Clock
	log zerolog.Logger

	history map[string][]PricePoint
	costs   map[string]CostSnapshot
	alerts  []Alert
}

// New creates a ledger. A nil clock falls back to the wall clock.
func New(cfg Config, clk clock.Clock, log zerolog.Logger) *Ledger {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Ledger{
		cfg:     cfg,
		clk:     clk,
		log:     log,
		history: make(map[string][]PricePoint),
		costs:   make(map[string]CostSnapshot),
	}
}

func key(productID string, variantID int) string {
	return fmt.Sprintf("%s:%d", productID, variantID)
}

// RecordCost stores the current cost for a variant. The first observation
// for a key never alerts; later observations alert when the relative delta
// reaches MinChangePercent.
func (l *Ledger) RecordCost(productID string, variantID int, snap CostSnapshot) (*Alert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	snap.VariantID = variantID
	snap.normalize(now)
	if snap.TotalCost.Sign() <= 0 {
		return nil, pricingerr.NewInvalidPriceError("total cost", key(productID, variantID))
	}

	k := key(productID, variantID)
	old, tracked := l.costs[k]
	l.costs[k] = snap

	if !tracked {
		l.log.Info().Str("product", productID).Int("variant", variantID).
			Str("total", money.Dollars(snap.TotalCost)).Msg("started cost tracking")
		return nil, nil
	}

	change := money.PercentChange(old.TotalCost, snap.TotalCost)
	if math.Abs(change) < l.cfg.MinChangePercent {
		return nil, nil
	}

	kind := AlertCostIncrease
	if change < 0 {
		kind = AlertCostDecrease
	}
	alert := Alert{
		ID:        uuid.New(),
		ProductID: productID,
		VariantID: variantID,
		Kind:      kind,
		OldValue:  old.TotalCost,
		NewValue:  snap.TotalCost,
		Threshold: l.cfg.MinChangePercent,
		Severity:  costSeverity(change),
		Message: fmt.Sprintf("cost %s of %.1f%% detected",
			strings.ReplaceAll(string(kind), "_", " "), math.Abs(change)),
		Timestamp: now,
	}
	l.alerts = append(l.alerts, alert)

	l.log.Warn().Str("product", productID).Int("variant", variantID).
		Str("severity", string(alert.Severity)).Msg(alert.Message)
	return &alert, nil
}

func costSeverity(changePercent float64) Severity {
	switch abs := math.Abs(changePercent); {
	case abs >= 25:
		return SeverityCritical
	case abs >= 15:
		return SeverityHigh
	case abs >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RecordPrice appends a price point, prunes history beyond the retention
// window, and raises a margin alert when the derived margin falls below the
// configured threshold.
func (l *Ledger) RecordPrice(productID string, variantID int, sellingPrice decimal.Decimal, cost CostSnapshot, reason ChangeReason) (PricePoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sellingPrice.Sign() <= 0 {
		return PricePoint{}, pricingerr.NewInvalidPriceError("selling price", key(productID, variantID))
	}
	now := l.clk.Now()
	cost.VariantID = variantID
	cost.normalize(now)
	if reason == "" {
		reason = ReasonManual
	}

	profit := sellingPrice.Sub(cost.TotalCost)
	margin := profit.Div(sellingPrice).Mul(decimal.NewFromInt(100)).InexactFloat64()

	point := PricePoint{
		ProductID:    productID,
		VariantID:    variantID,
		SellingPrice: sellingPrice,
		Cost:         cost,
		ProfitMargin: margin,
		ProfitAmount: profit,
		Reason:       reason,
		Timestamp:    now,
	}

	k := key(productID, variantID)
	l.history[k] = append(l.history[k], point)
	l.pruneLocked(k, now)

	if margin < l.cfg.MarginThreshold {
		severity := SeverityMedium
		if margin < l.cfg.LowMarginPercent {
			severity = SeverityHigh
		}
		alert := Alert{
			ID:        uuid.New(),
			ProductID: productID,
			VariantID: variantID,
			Kind:      AlertMarginBelowThreshold,
			OldValue:  decimal.NewFromFloat(l.cfg.MarginThreshold),
			NewValue:  decimal.NewFromFloat(margin),
			Threshold: l.cfg.MarginThreshold,
			Severity:  severity,
			Message: fmt.Sprintf("profit margin (%.1f%%) below threshold (%.1f%%)",
				margin, l.cfg.MarginThreshold),
			Timestamp: now,
		}
		l.alerts = append(l.alerts, alert)
		l.log.Warn().Str("product", productID).Int("variant", variantID).Msg(alert.Message)
	}

	return point, nil
}

func (l *Ledger) pruneLocked(k string, now time.Time) {
	cutoff := now.AddDate(0, 0, -l.cfg.RetentionDays)
	points := l.history[k]
	kept := points[:0]
	for _, p := range points {
		if p.Timestamp.After(cutoff) {
			kept = append(kept, p)
		}
	}
	l.history[k] = kept
}

// Trends analyzes price movement for a variant inside the window. It needs
// at least two points; volatility needs three.
func (l *Ledger) Trends(productID string, variantID, windowDays int) (*Trend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(productID, variantID)
	points, ok := l.history[k]
	if !ok || len(points) == 0 {
		return nil, pricingerr.NewNotFoundError("price history", k)
	}

	cutoff := l.clk.Now().AddDate(0, 0, -windowDays)
	var recent []PricePoint
	for _, p := range points {
		if p.Timestamp.After(cutoff) {
			recent = append(recent, p)
		}
	}
	if len(recent) < 2 {
		return nil, pricingerr.NewInsufficientDataError("trend analysis", len(recent), 2)
	}

	first, last := recent[0], recent[len(recent)-1]
	priceChangePercent := money.PercentChange(first.SellingPrice, last.SellingPrice)

	direction := DirectionStable
	if math.Abs(priceChangePercent) >= 2 {
		if priceChangePercent > 0 {
			direction = DirectionUp
		} else {
			direction = DirectionDown
		}
	}

	return &Trend{
		ProductID:          productID,
		VariantID:          variantID,
		PeriodDays:         windowDays,
		DataPoints:         len(recent),
		Direction:          direction,
		PriceChange:        last.SellingPrice.Sub(first.SellingPrice),
		PriceChangePercent: priceChangePercent,
		CostChange:         last.Cost.TotalCost.Sub(first.Cost.TotalCost),
		CostChangePercent:  money.PercentChange(first.Cost.TotalCost, last.Cost.TotalCost),
		MarginChange:       last.ProfitMargin - first.ProfitMargin,
		CurrentMargin:      last.ProfitMargin,
		Volatility:         priceVolatility(recent),
		Recommendations:    trendRecommendations(recent, direction),
	}, nil
}

// priceVolatility is the population standard deviation of consecutive
// percentage price changes.
func priceVolatility(points []PricePoint) float64 {
	if len(points) < 3 {
		return 0
	}
	changes := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		changes = append(changes, money.PercentChange(points[i-1].SellingPrice, points[i].SellingPrice))
	}
	mean := 0.0
	for _, c := range changes {
		mean += c
	}
	mean /= float64(len(changes))
	variance := 0.0
	for _, c := range changes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(changes))
	return math.Sqrt(variance)
}

func trendRecommendations(points []PricePoint, direction Direction) []string {
	var recs []string
	latest := points[len(points)-1]

	if latest.ProfitMargin < 15 {
		recs = append(recs, "consider increasing price - profit margin is below 15%")
	} else if latest.ProfitMargin > 60 {
		recs = append(recs, "consider decreasing price - high margin may hurt competitiveness")
	}

	switch direction {
	case DirectionUp:
		recs = append(recs, "monitor customer response to recent price increases")
	case DirectionDown:
		recs = append(recs, "check whether price decreases are improving sales volume")
	}

	costIncreases := 0
	for i := 1; i < len(points); i++ {
		if points[i].Cost.TotalCost.GreaterThan(points[i-1].Cost.TotalCost) {
			costIncreases++
		}
	}
	if costIncreases > len(points)/2 {
		recs = append(recs, "costs are trending upward - consider price adjustment")
	}
	return recs
}

// ActiveAlerts returns unacknowledged alerts, optionally filtered by
// severity (empty matches all).
func (l *Ledger) ActiveAlerts(severity Severity) []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Alert
	for _, a := range l.alerts {
		if a.Acknowledged {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Acknowledge marks the alert at the given index as handled. Out-of-range
// indexes return false.
func (l *Ledger) Acknowledge(index int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.alerts) {
		return false
	}
	l.alerts[index].Acknowledged = true
	return true
}

// CurrentMargins returns the latest margin state per tracked variant,
// sorted by key for stable output.
func (l *Ledger) CurrentMargins() []Margin {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.history))
	for k, points := range l.history {
		if len(points) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]Margin, 0, len(keys))
	for _, k := range keys {
		points := l.history[k]
		latest := points[len(points)-1]
		out = append(out, Margin{
			ProductID:    latest.ProductID,
			VariantID:    latest.VariantID,
			ProfitMargin: latest.ProfitMargin,
			ProfitAmount: latest.ProfitAmount,
			SellingPrice: latest.SellingPrice,
			TotalCost:    latest.Cost.TotalCost,
			UpdatedAt:    latest.Timestamp,
		})
	}
	return out
}

// CurrentPrice returns the latest recorded selling price for a variant.
func (l *Ledger) CurrentPrice(productID string, variantID int) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	points := l.history[key(productID, variantID)]
	if len(points) == 0 {
		return decimal.Zero, false
	}
	return points[len(points)-1].SellingPrice, true
}

// CurrentCost returns the latest recorded total cost for a variant.
func (l *Ledger) CurrentCost(productID string, variantID int) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap, ok := l.costs[key(productID, variantID)]
	if !ok {
		return decimal.Zero, false
	}
	return snap.TotalCost, true
}

// Summary aggregates current ledger state.
func (l *Ledger) Summary() Summary {
	margins := l.CurrentMargins()

	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{
		ProductsTracked: len(l.history),
		TotalAlerts:     len(l.alerts),
		AlertBreakdown: map[Severity]int{
			SeverityLow: 0, SeverityMedium: 0, SeverityHigh: 0, SeverityCritical: 0,
		},
	}
	for _, a := range l.alerts {
		if a.Acknowledged {
			continue
		}
		s.UnacknowledgedAlerts++
		s.AlertBreakdown[a.Severity]++
	}
	if len(margins) > 0 {
		var sum float64
		for _, m := range margins {
			sum += m.ProfitMargin
		}
		s.AverageProfitMargin = sum / float64(len(margins))
	}
	return s
}

// state is the on-disk snapshot document.
type state struct {
	History map[string][]PricePoint `json:"price_history"`
	Costs   map[string]CostSnapshot `json:"current_costs"`
	Alerts  []Alert                 `json:"alerts"`
	SavedAt time.Time               `json:"saved_at"`
}

// Save snapshots ledger state to path.
func (l *Ledger) Save(path string) error {
	l.mu.Lock()
	st := state{History: l.history, Costs: l.costs, Alerts: l.alerts, SavedAt: l.clk.Now()}
	l.mu.Unlock()
	return snapshot.Save(path, st)
}

// Load restores ledger state from path. Missing or corrupt snapshots leave
// the ledger empty.
func (l *Ledger) Load(path string) snapshot.LoadResult {
	var st state
	res := snapshot.Load(path, &st)
	if res.Status != snapshot.StatusOK {
		if res.Degraded() {
			l.log.Warn().Err(res.Err).Str("path", path).Msg("ledger snapshot unusable, starting empty")
		}
		return res
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st.History != nil {
		l.history = st.History
	}
	if st.Costs != nil {
		l.costs = st.Costs
	}
	l.alerts = st.Alerts
	return res
}

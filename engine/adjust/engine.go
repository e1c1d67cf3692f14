// Package adjust turns cost and margin alerts into proposed price
// adjustments governed by a rule table and an approval workflow.
package adjust

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pod-pricing/engine/ledger"
	"pod-pricing/internal/snapshot"
	"pod-pricing/pkg/clock"
	conf "pod-pricing/pkg/confidence"
	pricingerr "pod-pricing/pkg/errors"
	"pod-pricing/pkg/money"
)

// Trigger names the condition that produced an adjustment.
type Trigger string

const (
	TriggerCostIncrease    Trigger = "cost_increase"
	TriggerCostDecrease    Trigger = "cost_decrease"
	TriggerMarginBreach    Trigger = "margin_below_threshold"
	TriggerCompetitorPrice Trigger = "competitor_price_change"
	TriggerDemandChange    Trigger = "demand_change"
	TriggerSeasonal        Trigger = "seasonal_adjustment"
	TriggerManual          Trigger = "manual_override"
)

// Status is the lifecycle state of an adjustment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Rule governs how one trigger converts into a price proposal.
type Rule struct {
	Name                 string             `json:"name"`
	Trigger              Trigger            `json:"trigger"`
	MinThresholdPercent  float64            `json:"min_threshold_percent"`
	MaxThresholdPercent  float64            `json:"max_threshold_percent"`
	PassThroughRate      float64            `json:"pass_through_rate"`
	TargetMargin         float64            `json:"target_margin"`
	Rounding             money.RoundingMode `json:"rounding"`
	Enabled              bool               `json:"enabled"`
	AutoExecute          bool               `json:"auto_execute"`
	MaxAdjustmentPercent float64            `json:"max_adjustment_percent"`
	MinConfidence        float64            `json:"min_confidence"`
	CooldownHours        int                `json:"cooldown_hours"`
}

// DefaultRules returns the standard rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:                 "Cost Increase Response",
			Trigger:              TriggerCostIncrease,
			MinThresholdPercent:  5.0,
			MaxThresholdPercent:  50.0,
			PassThroughRate:      0.8,
			Rounding:             money.Round99,
			Enabled:              true,
			AutoExecute:          false,
			MaxAdjustmentPercent: 25.0,
			MinConfidence:        0.7,
			CooldownHours:        24,
		},
		{
			Name:                 "Cost Decrease Response",
			Trigger:              TriggerCostDecrease,
			MinThresholdPercent:  10.0,
			MaxThresholdPercent:  100.0,
			PassThroughRate:      0.5,
			Rounding:             money.Round99,
			Enabled:              true,
			AutoExecute:          true,
			MaxAdjustmentPercent: 15.0,
			MinConfidence:        0.7,
			CooldownHours:        72,
		},
		{
			Name:                 "Minimum Margin Protection",
			Trigger:              TriggerMarginBreach,
			MinThresholdPercent:  15.0,
			TargetMargin:         25.0,
			Rounding:             money.Round99,
			Enabled:              true,
			AutoExecute:          false,
			MaxAdjustmentPercent: 30.0,
			MinConfidence:        0.9,
			CooldownHours:        24,
		},
		{
			Name:                 "Seasonal Pricing",
			Trigger:              TriggerSeasonal,
			Rounding:             money.Round99,
			Enabled:              true,
			AutoExecute:          true,
			MaxAdjustmentPercent: 15.0,
			MinConfidence:        0.7,
			CooldownHours:        168,
		},
	}
}

// Impact estimates the downstream effect of an adjustment.
type Impact struct {
	PriceChange             decimal.Decimal `json:"price_change"`
	PriceChangePercent      float64         `json:"price_change_percent"`
	NewMarginPercent        float64         `json:"new_margin_percent"`
	EstDemandChangePercent  float64         `json:"estimated_demand_change_percent"`
	EstRevenueChangePercent float64         `json:"estimated_revenue_change_percent"`
	RiskLevel               string          `json:"risk_level"`
}

// Adjustment is one proposed price change.
type Adjustment struct {
	ID                uuid.UUID       `json:"id"`
	ProductID         string          `json:"product_id"`
	VariantID         int             `json:"variant_id"`
	CurrentPrice      decimal.Decimal `json:"current_price"`
	ProposedPrice     decimal.Decimal `json:"proposed_price"`
	AdjustmentPercent float64         `json:"adjustment_percent"`
	Trigger           Trigger         `json:"trigger"`
	Reason            string          `json:"reason"`
	Confidence        float64         `json:"confidence"`
	Impact            Impact          `json:"impact_analysis"`
	CreatedAt         time.Time       `json:"created_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
	ExecutedAt        *time.Time      `json:"executed_at,omitempty"`
	Status            Status          `json:"status"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
}

// ConfidenceWeights are the components of an adjustment confidence score.
type ConfidenceWeights struct {
	Base             float64 `yaml:"base" json:"base"`
	SeverityLow      float64 `yaml:"severity_low" json:"severity_low"`
	SeverityMedium   float64 `yaml:"severity_medium" json:"severity_medium"`
	SeverityHigh     float64 `yaml:"severity_high" json:"severity_high"`
	SeverityCritical float64 `yaml:"severity_critical" json:"severity_critical"`
	MagnitudeLarge   float64 `yaml:"magnitude_large" json:"magnitude_large"`
	MagnitudeMedium  float64 `yaml:"magnitude_medium" json:"magnitude_medium"`
	MagnitudeSmall   float64 `yaml:"magnitude_small" json:"magnitude_small"`
	CostIncreaseBias float64 `yaml:"cost_increase_bias" json:"cost_increase_bias"`
}

// Config holds adjustment engine parameters.
type Config struct {
	ExpiryHours          int               `yaml:"expiry_hours" json:"expiry_hours"`
	Elasticity           float64           `yaml:"elasticity" json:"elasticity"`
	MarginBreachHighConf float64           `yaml:"margin_breach_high_confidence" json:"margin_breach_high_confidence"`
	MarginBreachLowConf  float64           `yaml:"margin_breach_low_confidence" json:"margin_breach_low_confidence"`
	Confidence           ConfidenceWeights `yaml:"confidence" json:"confidence"`
}

// DefaultConfig returns the standard adjustment parameters.
func DefaultConfig() Config {
	return Config{
		ExpiryHours:          24,
		Elasticity:           -1.5,
		MarginBreachHighConf: 0.9,
		MarginBreachLowConf:  0.7,
		Confidence: ConfidenceWeights{
			Base:             0.5,
			SeverityLow:      0.1,
			SeverityMedium:   0.2,
			SeverityHigh:     0.3,
			SeverityCritical: 0.4,
			MagnitudeLarge:   0.3,
			MagnitudeMedium:  0.2,
			MagnitudeSmall:   0.1,
			CostIncreaseBias: 0.1,
		},
	}
}

// PriceSource supplies the current price and cost for a variant at
// proposal time. *ledger.Ledger satisfies it.
type PriceSource interface {
	CurrentPrice(productID string, variantID int) (decimal.Decimal, bool)
	CurrentCost(productID string, variantID int) (decimal.Decimal, bool)
}

// ApplyPriceFunc pushes an executed price to the outside world.
type ApplyPriceFunc func(productID string, variantID int, newPrice decimal.Decimal) error

// Summary aggregates adjustment activity.
type Summary struct {
	Pending          int                `json:"pending_adjustments"`
	Approved         int                `json:"approved_adjustments"`
	ExecutedTotal    int                `json:"executed_adjustments_total"`
	ExecutedLast7    int                `json:"executed_last_7_days"`
	TriggerBreakdown map[Trigger]int    `json:"trigger_breakdown"`
	AvgConfidence    float64            `json:"average_confidence"`
	RulesActive      int                `json:"rules_active"`
}

// Engine proposes, approves, and executes price adjustments.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	clk    clock.Clock
	log    zerolog.Logger
	source PriceSource
	apply  ApplyPriceFunc

	rules        []Rule
	pending      []Adjustment
	history      []Adjustment
	lastAdjusted map[string]time.Time
}

// New creates an engine with the default rule table.
func New(cfg Config, source PriceSource, clk clock.Clock, log zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Engine{
		cfg:          cfg,
		clk:          clk,
		log:          log,
		source:       source,
		rules:        DefaultRules(),
		lastAdjusted: make(map[string]time.Time),
	}
}

// SetApplyPrice installs the callback used to push executed prices.
func (e *Engine) SetApplyPrice(fn ApplyPriceFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apply = fn
}

// AddRule appends a rule to the table.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// Rules returns a copy of the rule table.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Rule(nil), e.rules...)
}

func key(productID string, variantID int) string {
	return fmt.Sprintf("%s:%d", productID, variantID)
}

func (e *Engine) firstRuleLocked(trigger Trigger) *Rule {
	for i := range e.rules {
		if e.rules[i].Trigger == trigger && e.rules[i].Enabled {
			return &e.rules[i]
		}
	}
	return nil
}

func (e *Engine) cooldownActiveLocked(k string, rule *Rule, now time.Time) bool {
	last, ok := e.lastAdjusted[k]
	if !ok {
		return false
	}
	return now.Sub(last) <= time.Duration(rule.CooldownHours)*time.Hour
}

// OnAlert converts a cost-change alert into a price adjustment. Alerts
// outside the rule's threshold band, alerts during a cooldown, and alert
// kinds without a rule quietly produce nothing.
func (e *Engine) OnAlert(alert ledger.Alert) (*Adjustment, error) {
	var trigger Trigger
	switch alert.Kind {
	case ledger.AlertCostIncrease:
		trigger = TriggerCostIncrease
	case ledger.AlertCostDecrease:
		trigger = TriggerCostDecrease
	default:
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rule := e.firstRuleLocked(trigger)
	if rule == nil {
		e.log.Info().Str("kind", string(alert.Kind)).Msg("no applicable adjustment rule")
		return nil, nil
	}

	now := e.clk.Now()
	k := key(alert.ProductID, alert.VariantID)
	if e.cooldownActiveLocked(k, rule, now) {
		e.log.Info().Str("key", k).Msg("cooldown active, skipping adjustment")
		return nil, nil
	}

	costChangePercent := money.PercentChange(alert.OldValue, alert.NewValue)
	if math.Abs(costChangePercent) < rule.MinThresholdPercent ||
		math.Abs(costChangePercent) > rule.MaxThresholdPercent {
		return nil, nil
	}

	currentPrice, ok := e.source.CurrentPrice(alert.ProductID, alert.VariantID)
	if !ok {
		return nil, pricingerr.NewNotFoundError("current price", k)
	}

	delta := alert.NewValue.Sub(alert.OldValue).Mul(decimal.NewFromFloat(rule.PassThroughRate))
	proposed := money.Round(currentPrice.Add(delta), rule.Rounding)
	proposed, adjustmentPercent := clampAdjustment(currentPrice, proposed, rule.MaxAdjustmentPercent)

	confidence := e.confidence(costChangePercent, alert.Severity, trigger)

	adj := Adjustment{
		ID:                uuid.New(),
		ProductID:         alert.ProductID,
		VariantID:         alert.VariantID,
		CurrentPrice:      currentPrice,
		ProposedPrice:     proposed,
		AdjustmentPercent: adjustmentPercent,
		Trigger:           trigger,
		Reason:            fmt.Sprintf("%s: %.1f%% cost change", rule.Name, math.Abs(costChangePercent)),
		Confidence:        confidence,
		Impact:            e.impact(currentPrice, proposed, alert.NewValue),
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Duration(e.cfg.ExpiryHours) * time.Hour),
		Status:            StatusPending,
	}
	e.pending = append(e.pending, adj)
	e.log.Info().Str("key", k).Str("reason", adj.Reason).
		Float64("confidence", confidence).Msg("adjustment proposed")

	idx := len(e.pending) - 1
	if rule.AutoExecute && conf.AboveThreshold(confidence, rule.MinConfidence) {
		e.pending[idx].Status = StatusApproved
		e.executeAtLocked(idx)
	}
	result := e.findByIDLocked(adj.ID)
	return result, nil
}

// OnMarginBreach converts a low margin into a corrective price increase
// toward the rule's target margin.
func (e *Engine) OnMarginBreach(productID string, variantID int, currentMargin float64) (*Adjustment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule := e.firstRuleLocked(TriggerMarginBreach)
	if rule == nil {
		return nil, nil
	}
	if currentMargin >= rule.MinThresholdPercent {
		return nil, nil
	}

	k := key(productID, variantID)
	currentPrice, okPrice := e.source.CurrentPrice(productID, variantID)
	currentCost, okCost := e.source.CurrentCost(productID, variantID)
	if !okPrice || !okCost {
		return nil, pricingerr.NewNotFoundError("price and cost", k)
	}

	required := currentCost.Div(decimal.NewFromFloat(1 - rule.TargetMargin/100))
	required = money.Round(required, rule.Rounding)
	required, adjustmentPercent := clampAdjustment(currentPrice, required, rule.MaxAdjustmentPercent)

	confidence := e.cfg.MarginBreachLowConf
	if currentMargin < 10 {
		confidence = e.cfg.MarginBreachHighConf
	}

	now := e.clk.Now()
	adj := Adjustment{
		ID:                uuid.New(),
		ProductID:         productID,
		VariantID:         variantID,
		CurrentPrice:      currentPrice,
		ProposedPrice:     required,
		AdjustmentPercent: adjustmentPercent,
		Trigger:           TriggerMarginBreach,
		Reason: fmt.Sprintf("Margin protection: %.1f%% below %.1f%% threshold",
			currentMargin, rule.MinThresholdPercent),
		Confidence: confidence,
		Impact:     e.impact(currentPrice, required, currentCost),
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(e.cfg.ExpiryHours) * time.Hour),
		Status:     StatusPending,
	}
	e.pending = append(e.pending, adj)
	e.log.Warn().Str("key", k).Str("reason", adj.Reason).Msg("margin protection proposed")
	return &e.pending[len(e.pending)-1], nil
}

// clampAdjustment scales the dollar delta so the relative change stays
// inside the rule cap.
func clampAdjustment(current, proposed decimal.Decimal, maxPercent float64) (decimal.Decimal, float64) {
	adjustmentPercent := money.PercentChange(current, proposed)
	if math.Abs(adjustmentPercent) <= maxPercent {
		return proposed, adjustmentPercent
	}
	maxDelta := current.Mul(decimal.NewFromFloat(maxPercent / 100))
	if adjustmentPercent > 0 {
		return current.Add(maxDelta), maxPercent
	}
	return current.Sub(maxDelta), -maxPercent
}

func (e *Engine) confidence(costChangePercent float64, severity ledger.Severity, trigger Trigger) float64 {
	w := e.cfg.Confidence
	c := w.Base

	switch severity {
	case ledger.SeverityLow:
		c += w.SeverityLow
	case ledger.SeverityMedium:
		c += w.SeverityMedium
	case ledger.SeverityHigh:
		c += w.SeverityHigh
	case ledger.SeverityCritical:
		c += w.SeverityCritical
	default:
		c += w.SeverityMedium
	}

	switch abs := math.Abs(costChangePercent); {
	case abs > 20:
		c += w.MagnitudeLarge
	case abs > 10:
		c += w.MagnitudeMedium
	case abs > 5:
		c += w.MagnitudeSmall
	}

	if trigger == TriggerCostIncrease {
		c += w.CostIncreaseBias
	}
	return conf.Clamp(c)
}

func (e *Engine) impact(currentPrice, proposedPrice, newCost decimal.Decimal) Impact {
	priceChange := proposedPrice.Sub(currentPrice)
	priceChangePercent := money.PercentChange(currentPrice, proposedPrice)

	newMargin := 0.0
	if proposedPrice.Sign() > 0 {
		newMargin = proposedPrice.Sub(newCost).Div(proposedPrice).
			Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	demandChange := priceChangePercent * e.cfg.Elasticity

	risk := "high"
	switch abs := math.Abs(priceChangePercent); {
	case abs < 5:
		risk = "low"
	case abs < 15:
		risk = "medium"
	}
	return Impact{
		PriceChange:             priceChange,
		PriceChangePercent:      priceChangePercent,
		NewMarginPercent:        newMargin,
		EstDemandChangePercent:  demandChange,
		EstRevenueChangePercent: priceChangePercent + demandChange,
		RiskLevel:               risk,
	}
}

func (e *Engine) findByIDLocked(id uuid.UUID) *Adjustment {
	for i := range e.pending {
		if e.pending[i].ID == id {
			return &e.pending[i]
		}
	}
	for i := range e.history {
		if e.history[i].ID == id {
			return &e.history[i]
		}
	}
	return nil
}

// Approve marks a pending adjustment as approved. Only PENDING entries
// qualify; anything else returns false.
func (e *Engine) Approve(index int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.pending) {
		return false
	}
	if e.pending[index].Status != StatusPending {
		return false
	}
	e.pending[index].Status = StatusApproved
	return true
}

// Reject marks a pending adjustment as rejected.
func (e *Engine) Reject(index int, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.pending) {
		return false
	}
	if e.pending[index].Status != StatusPending {
		return false
	}
	e.pending[index].Status = StatusRejected
	e.pending[index].RejectionReason = reason
	e.log.Info().Str("reason", reason).Msg("adjustment rejected")
	return true
}

// ExecuteApproved runs the apply callback for every approved adjustment.
// Failures leave the entry approved for a later retry.
func (e *Engine) ExecuteApproved() []Adjustment {
	e.mu.Lock()
	defer e.mu.Unlock()

	var executed []Adjustment
	for i := 0; i < len(e.pending); {
		if e.pending[i].Status != StatusApproved {
			i++
			continue
		}
		if e.executeAtLocked(i) {
			executed = append(executed, e.history[len(e.history)-1])
		} else {
			i++
		}
	}
	return executed
}

// executeAtLocked applies pending[i] and moves it to history on success.
// A panicking callback counts as a failed execution.
func (e *Engine) executeAtLocked(i int) (ok bool) {
	adj := &e.pending[i]
	if e.apply == nil {
		e.log.Warn().Msg("no price update callback configured")
		return false
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("price update panicked: %v", r)
			}
		}()
		return e.apply(adj.ProductID, adj.VariantID, adj.ProposedPrice)
	}()
	if err != nil {
		e.log.Error().Err(err).Str("product", adj.ProductID).Msg("failed to execute adjustment")
		return false
	}

	now := e.clk.Now()
	adj.Status = StatusExecuted
	adj.ExecutedAt = &now
	e.lastAdjusted[key(adj.ProductID, adj.VariantID)] = now
	e.history = append(e.history, *adj)
	e.pending = append(e.pending[:i], e.pending[i+1:]...)

	e.log.Info().Str("product", adj.ProductID).Msg("executed price adjustment")
	return true
}

// CleanupExpired moves expired pending and approved adjustments, and any
// rejected leftovers, into history. Returns how many expired.
func (e *Engine) CleanupExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clk.Now()
	expired := 0
	kept := e.pending[:0]
	for _, adj := range e.pending {
		switch {
		case (adj.Status == StatusPending || adj.Status == StatusApproved) && now.After(adj.ExpiresAt):
			adj.Status = StatusExpired
			e.history = append(e.history, adj)
			expired++
		case adj.Status == StatusRejected:
			e.history = append(e.history, adj)
		default:
			kept = append(kept, adj)
		}
	}
	e.pending = kept

	if expired > 0 {
		e.log.Info().Int("count", expired).Msg("cleaned up expired adjustments")
	}
	return expired
}

// Pending returns pending adjustments, optionally filtered by product.
func (e *Engine) Pending(productID string) []Adjustment {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Adjustment
	for _, adj := range e.pending {
		if adj.Status != StatusPending {
			continue
		}
		if productID != "" && adj.ProductID != productID {
			continue
		}
		out = append(out, adj)
	}
	return out
}

// All returns every queued adjustment regardless of status.
func (e *Engine) All() []Adjustment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Adjustment(nil), e.pending...)
}

// Summary aggregates adjustment activity over the last 7 days.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{TriggerBreakdown: make(map[Trigger]int)}
	for _, adj := range e.pending {
		switch adj.Status {
		case StatusPending:
			s.Pending++
		case StatusApproved:
			s.Approved++
		}
	}

	weekAgo := e.clk.Now().AddDate(0, 0, -7)
	var confidenceSum float64
	for _, adj := range e.history {
		if adj.Status != StatusExecuted {
			continue
		}
		s.ExecutedTotal++
		if adj.ExecutedAt != nil && adj.ExecutedAt.After(weekAgo) {
			s.ExecutedLast7++
			s.TriggerBreakdown[adj.Trigger]++
			confidenceSum += adj.Confidence
		}
	}
	if s.ExecutedLast7 > 0 {
		s.AvgConfidence = confidenceSum / float64(s.ExecutedLast7)
	}
	for _, r := range e.rules {
		if r.Enabled {
			s.RulesActive++
		}
	}
	return s
}

type state struct {
	Rules        []Rule               `json:"rules"`
	Pending      []Adjustment         `json:"pending_adjustments"`
	History      []Adjustment         `json:"adjustment_history"`
	LastAdjusted map[string]time.Time `json:"last_adjustment_times"`
	SavedAt      time.Time            `json:"saved_at"`
}

// Save snapshots engine state to path. Rules travel with the queue so a
// restart keeps custom rules.
func (e *Engine) Save(path string) error {
	e.mu.Lock()
	st := state{
		Rules:        e.rules,
		Pending:      e.pending,
		History:      e.history,
		LastAdjusted: e.lastAdjusted,
		SavedAt:      e.clk.Now(),
	}
	e.mu.Unlock()
	return snapshot.Save(path, st)
}

// Load restores engine state from path. The default rule table survives an
// empty or corrupt snapshot.
func (e *Engine) Load(path string) snapshot.LoadResult {
	var st state
	res := snapshot.Load(path, &st)
	if res.Status != snapshot.StatusOK {
		if res.Degraded() {
			e.log.Warn().Err(res.Err).Str("path", path).Msg("adjustment snapshot unusable, starting empty")
		}
		return res
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(st.Rules) > 0 {
		e.rules = st.Rules
	}
	e.pending = st.Pending
	e.history = st.History
	if st.LastAdjusted != nil {
		e.lastAdjusted = st.LastAdjusted
	}
	return res
}

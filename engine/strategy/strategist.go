// Package strategy evaluates cost structures and recommends pricing
// strategies against market position and competitor prices.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pod-pricing/engine/market"
	"pod-pricing/pkg/clock"
)

// Strategy is a pricing approach.
type Strategy string

const (
	StrategyCostPlus    Strategy = "cost_plus"
	StrategyCompetitive Strategy = "competitive"
	StrategyValueBased  Strategy = "value_based"
	StrategyPenetration Strategy = "penetration"
	StrategyPremium     Strategy = "premium"
)

// Risk grades a strategy's downside.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Fit labels how a price sits inside its market position band.
type Fit string

const (
	FitExcellent  Fit = "excellent"
	FitGood       Fit = "good"
	FitAcceptable Fit = "acceptable"
	FitPoor       Fit = "poor"
	FitTooLow     Fit = "too_low"
	FitTooHigh    Fit = "too_high"
)

// Breakdown is the full cost structure of one unit, in cents.
type Breakdown struct {
	BaseCost       decimal.Decimal `json:"base_cost"`
	ShippingCost   decimal.Decimal `json:"shipping_cost"`
	ProcessingFee  decimal.Decimal `json:"processing_fee"`
	TransactionFee decimal.Decimal `json:"transaction_fee"`
	PackagingCost  decimal.Decimal `json:"packaging_cost"`
	MarketingCost  decimal.Decimal `json:"marketing_cost"`
	OverheadCost   decimal.Decimal `json:"overhead_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
}

// Extras carries the optional fixed cost components.
type Extras struct {
	ShippingCost  decimal.Decimal
	ProcessingFee decimal.Decimal
	PackagingCost decimal.Decimal
}

// ProfitAnalysis reports the profit structure of one selling price.
type ProfitAnalysis struct {
	SellingPrice        decimal.Decimal `json:"selling_price"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	GrossProfit         decimal.Decimal `json:"gross_profit"`
	GrossMarginPercent  float64         `json:"gross_margin_percent"`
	BreakEvenPrice      decimal.Decimal `json:"break_even_price"`
	RecommendedPrice    decimal.Decimal `json:"recommended_price"`
	MinViablePrice      decimal.Decimal `json:"min_viable_price"`
	MaxCompetitivePrice decimal.Decimal `json:"max_competitive_price"`
	ROIPercent          float64         `json:"roi_percent"`
}

// Candidate is one scored strategy option.
type Candidate struct {
	Strategy  Strategy        `json:"strategy"`
	Price     decimal.Decimal `json:"price"`
	Margin    float64         `json:"margin"`
	Rationale string          `json:"rationale"`
	Risk      Risk            `json:"risk"`
	Fit       Fit             `json:"market_fit"`
	Duration  string          `json:"duration,omitempty"`
	Score     int             `json:"score"`
}

// Dispersion describes price spread across competitors.
type Dispersion struct {
	StandardDeviation      float64 `json:"standard_deviation"`
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
	MarketMaturity         string  `json:"market_maturity"`
}

// Gap is a significant hole between adjacent competitor prices.
type Gap struct {
	LowerPrice decimal.Decimal `json:"lower_price"`
	UpperPrice decimal.Decimal `json:"upper_price"`
	GapSize    decimal.Decimal `json:"gap_size"`
	GapPercent float64         `json:"gap_percent"`
}

// MarketAnalysis summarizes the competitive landscape.
type MarketAnalysis struct {
	Competitors int                `json:"competitors"`
	Range       *market.PriceRange `json:"price_range,omitempty"`
	Dispersion  *Dispersion        `json:"price_dispersion,omitempty"`
	Gaps        []Gap              `json:"gaps,omitempty"`
}

// RiskFactor flags a structural pricing risk.
type RiskFactor struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Recommendation is the outcome of strategy evaluation.
type Recommendation struct {
	Candidates   []Candidate    `json:"strategies"`
	Best         Candidate      `json:"recommended"`
	Confidence   float64        `json:"confidence"`
	Alternatives []Candidate    `json:"alternatives"`
	Market       MarketAnalysis `json:"market_analysis"`
	RiskFactors  []RiskFactor   `json:"risk_factors"`
}

// ElasticityImpact projects revenue effects of a price change assuming a
// 100-unit demand baseline.
type ElasticityImpact struct {
	PriceChangePercent   float64         `json:"price_change_percent"`
	DemandChangePercent  float64         `json:"demand_change_percent"`
	NewPrice             decimal.Decimal `json:"new_price"`
	RevenueChangePercent float64         `json:"revenue_change_percent"`
	Elasticity           float64         `json:"elasticity"`
}

// VolumeTier is a (minimum quantity, unit price) input pair.
type VolumeTier struct {
	MinQuantity int64           `json:"min_quantity"`
	Price       decimal.Decimal `json:"price"`
}

// VolumeEconomics reports margins at one volume tier after cost discounts.
type VolumeEconomics struct {
	MinQuantity          int64           `json:"min_quantity"`
	Price                decimal.Decimal `json:"price"`
	StandardMargin       float64         `json:"standard_margin"`
	VolumeAdjustedMargin float64         `json:"volume_adjusted_margin"`
	CostSavingsPercent   float64         `json:"cost_savings"`
	BreakevenQuantity    int64           `json:"breakeven_quantity"`
	BreakevenAttainable  bool            `json:"breakeven_attainable"`
}

// ReportSummary is the headline of a pricing report.
type ReportSummary struct {
	CurrentMargin     float64         `json:"current_margin"`
	RecommendedPrice  decimal.Decimal `json:"recommended_price"`
	MarginImprovement float64         `json:"margin_improvement"`
	RiskLevel         Risk            `json:"risk_level"`
	Confidence        float64         `json:"confidence"`
}

// Report is the full pricing analysis for one product.
type Report struct {
	ProductID       string             `json:"product_id"`
	AnalysisDate    time.Time          `json:"analysis_date"`
	CurrentPrice    decimal.Decimal    `json:"current_price"`
	Breakdown       Breakdown          `json:"cost_breakdown"`
	Profit          ProfitAnalysis     `json:"profit_analysis"`
	Recommendation  Recommendation     `json:"pricing_recommendations"`
	Sensitivity     []ElasticityImpact `json:"price_sensitivity_analysis"`
	VolumeAnalysis  []VolumeEconomics  `json:"volume_pricing_analysis"`
	MarketPosition  market.Tier        `json:"market_position"`
	Summary         ReportSummary      `json:"summary"`
}

// Config holds margin targets and the price-proportional cost rates.
type Config struct {
	TargetMargin       float64 `yaml:"target_margin" json:"target_margin"`
	MinMargin          float64 `yaml:"min_margin" json:"min_margin"`
	MaxMargin          float64 `yaml:"max_margin" json:"max_margin"`
	TransactionFeeRate float64 `yaml:"transaction_fee_rate" json:"transaction_fee_rate"`
	MarketingRate      float64 `yaml:"marketing_rate" json:"marketing_rate"`
	OverheadRate       float64 `yaml:"overhead_rate" json:"overhead_rate"`
}

// DefaultConfig returns the standard margin targets and fee rates.
func DefaultConfig() Config {
	return Config{
		TargetMargin:       30.0,
		MinMargin:          15.0,
		MaxMargin:          80.0,
		TransactionFeeRate: 0.029,
		MarketingRate:      0.10,
		OverheadRate:       0.05,
	}
}

// Strategist evaluates cost structures. It holds no per-product state.
type Strategist struct {
	cfg Config
	clk clock.Clock
	log zerolog.Logger
}

// New creates a strategist. A nil clock falls back to the wall clock.
func New(cfg Config, clk clock.Clock, log zerolog.Logger) *Strategist {
	if clk == nil {
		clk = clock.Wall{}
	}
	return &Strategist{cfg: cfg, clk: clk, log: log}
}

// Breakdown builds the seven-part cost structure for a base cost at a
// selling price. Transaction, marketing, and overhead are proportional to
// the selling price.
func (s *Strategist) Breakdown(baseCost, sellingPrice decimal.Decimal, extras Extras) Breakdown {
	b := Breakdown{
		BaseCost:       baseCost,
		ShippingCost:   extras.ShippingCost,
		ProcessingFee:  extras.ProcessingFee,
		TransactionFee: sellingPrice.Mul(decimal.NewFromFloat(s.cfg.TransactionFeeRate)),
		PackagingCost:  extras.PackagingCost,
		MarketingCost:  sellingPrice.Mul(decimal.NewFromFloat(s.cfg.MarketingRate)),
		OverheadCost:   sellingPrice.Mul(decimal.NewFromFloat(s.cfg.OverheadRate)),
	}
	b.TotalCost = b.BaseCost.Add(b.ShippingCost).Add(b.ProcessingFee).
		Add(b.TransactionFee).Add(b.PackagingCost).Add(b.MarketingCost).Add(b.OverheadCost)
	return b
}

// priceForMargin solves price = cost / (1 - margin/100).
func priceForMargin(totalCost decimal.Decimal, marginPercent float64) decimal.Decimal {
	return totalCost.Div(decimal.NewFromFloat(1 - marginPercent/100))
}

func marginAt(price, totalCost decimal.Decimal) float64 {
	if price.Sign() <= 0 {
		return 0
	}
	return price.Sub(totalCost).Div(price).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// ProfitAnalysis derives the profit structure of a selling price.
func (s *Strategist) ProfitAnalysis(sellingPrice decimal.Decimal, b Breakdown) ProfitAnalysis {
	grossProfit := sellingPrice.Sub(b.TotalCost)
	roi := 0.0
	if b.TotalCost.Sign() > 0 {
		roi = grossProfit.Div(b.TotalCost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	recommended := priceForMargin(b.TotalCost, s.cfg.TargetMargin)
	return ProfitAnalysis{
		SellingPrice:        sellingPrice,
		TotalCost:           b.TotalCost,
		GrossProfit:         grossProfit,
		GrossMarginPercent:  marginAt(sellingPrice, b.TotalCost),
		BreakEvenPrice:      priceForMargin(b.TotalCost, s.cfg.MinMargin),
		RecommendedPrice:    recommended,
		MinViablePrice:      b.TotalCost.Mul(decimal.NewFromFloat(1.01)),
		MaxCompetitivePrice: recommended.Mul(decimal.NewFromFloat(1.5)),
		ROIPercent:          roi,
	}
}

var valueMultipliers = map[market.Tier]float64{
	market.TierBudget:  1.2,
	market.TierMid:     1.5,
	market.TierPremium: 2.0,
	market.TierLuxury:  3.0,
}

// Price bands per market position, in cents.
var positionBands = map[market.Tier][2]float64{
	market.TierBudget:  {500, 1500},
	market.TierMid:     {1500, 3500},
	market.TierPremium: {3500, 7000},
	market.TierLuxury:  {7000, 20000},
}

func assessFit(price decimal.Decimal, position market.Tier) Fit {
	band, ok := positionBands[position]
	if !ok {
		band = positionBands[market.TierMid]
	}
	p := price.InexactFloat64()
	switch {
	case p >= band[0] && p <= band[1]:
		return FitExcellent
	case p < band[0]:
		return FitTooLow
	case p <= band[1]*1.2:
		return FitAcceptable
	default:
		return FitTooHigh
	}
}

// Recommend builds the candidate strategies, scores them, and picks the
// winner. The competitive candidate only exists when competitor prices are
// supplied.
func (s *Strategist) Recommend(b Breakdown, position market.Tier, competitorPrices []decimal.Decimal) Recommendation {
	var candidates []Candidate

	costPlusPrice := priceForMargin(b.TotalCost, s.cfg.TargetMargin)
	candidates = append(candidates, Candidate{
		Strategy:  StrategyCostPlus,
		Price:     costPlusPrice,
		Margin:    s.cfg.TargetMargin,
		Rationale: fmt.Sprintf("Cost + %.0f%% margin", s.cfg.TargetMargin),
		Risk:      RiskLow,
		Fit:       assessFit(costPlusPrice, position),
	})

	if len(competitorPrices) > 0 {
		competitivePrice := medianDecimal(competitorPrices)
		competitiveMargin := marginAt(competitivePrice, b.TotalCost)
		fit := FitPoor
		if competitiveMargin > s.cfg.MinMargin {
			fit = FitGood
		}
		candidates = append(candidates, Candidate{
			Strategy:  StrategyCompetitive,
			Price:     competitivePrice,
			Margin:    competitiveMargin,
			Rationale: fmt.Sprintf("Median competitor price (%d competitors)", len(competitorPrices)),
			Risk:      RiskMedium,
			Fit:       fit,
		})
	}

	valuePrice := b.TotalCost.Mul(decimal.NewFromFloat(valueMultipliers[position]))
	valueRisk := RiskHigh
	if position == market.TierBudget || position == market.TierMid {
		valueRisk = RiskMedium
	}
	candidates = append(candidates, Candidate{
		Strategy:  StrategyValueBased,
		Price:     valuePrice,
		Margin:    marginAt(valuePrice, b.TotalCost),
		Rationale: fmt.Sprintf("Value-based pricing for %s position", position),
		Risk:      valueRisk,
		Fit:       assessFit(valuePrice, position),
	})

	candidates = append(candidates, Candidate{
		Strategy:  StrategyPenetration,
		Price:     b.TotalCost.Mul(decimal.NewFromFloat(1.1)),
		Margin:    10.0,
		Rationale: "Low margin for market penetration",
		Risk:      RiskHigh,
		Fit:       FitExcellent,
		Duration:  "short-term only",
	})

	premiumPrice := priceForMargin(b.TotalCost, 60)
	candidates = append(candidates, Candidate{
		Strategy:  StrategyPremium,
		Price:     premiumPrice,
		Margin:    60.0,
		Rationale: "Premium positioning with high margin",
		Risk:      RiskHigh,
		Fit:       assessFit(premiumPrice, market.TierPremium),
	})

	for i := range candidates {
		candidates[i].Score = s.score(candidates[i], len(competitorPrices) > 0)
	}

	// Winner is the highest score; ties resolve to the earlier candidate.
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[best].Score {
			best = i
		}
	}

	ranked := append([]Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	alternatives := ranked[1:]
	if len(alternatives) > 2 {
		alternatives = alternatives[:2]
	}

	return Recommendation{
		Candidates:   candidates,
		Best:         candidates[best],
		Confidence:   float64(candidates[best].Score) / 100,
		Alternatives: alternatives,
		Market:       s.analyzeMarket(competitorPrices),
		RiskFactors:  s.riskFactors(b, candidates),
	}
}

func (s *Strategist) score(c Candidate, haveMarketData bool) int {
	score := 0

	switch {
	case c.Margin >= s.cfg.MinMargin && c.Margin <= s.cfg.MaxMargin:
		score += 30
	case c.Margin > s.cfg.MaxMargin:
		score += 10
	}

	fitScores := map[Fit]int{
		FitExcellent: 25, FitGood: 20, FitAcceptable: 15,
		FitPoor: 5, FitTooLow: 8, FitTooHigh: 3,
	}
	score += fitScores[c.Fit]

	riskScores := map[Risk]int{RiskLow: 20, RiskMedium: 15, RiskHigh: 5}
	score += riskScores[c.Risk]

	switch {
	case c.Strategy == StrategyCostPlus && !haveMarketData:
		score += 15
	case c.Strategy == StrategyCompetitive && haveMarketData:
		score += 15
	case c.Strategy == StrategyValueBased:
		score += 10
	}
	return score
}

func (s *Strategist) analyzeMarket(prices []decimal.Decimal) MarketAnalysis {
	if len(prices) == 0 {
		return MarketAnalysis{Competitors: 0}
	}

	floats := make([]float64, len(prices))
	for i, p := range prices {
		floats[i] = p.InexactFloat64()
	}
	sort.Float64s(floats)

	rng := market.PriceRange{Min: floats[0], Max: floats[len(floats)-1]}
	var sum float64
	for _, f := range floats {
		sum += f
	}
	rng.Average = sum / float64(len(floats))
	mid := len(floats) / 2
	if len(floats)%2 == 0 {
		rng.Median = (floats[mid-1] + floats[mid]) / 2
	} else {
		rng.Median = floats[mid]
	}

	ma := MarketAnalysis{Competitors: len(prices), Range: &rng}

	if len(floats) > 1 {
		var ss float64
		for _, f := range floats {
			ss += (f - rng.Average) * (f - rng.Average)
		}
		stdDev := math.Sqrt(ss / float64(len(floats)-1))
		cv := stdDev / rng.Average * 100
		maturity := "developing"
		if cv < 20 {
			maturity = "mature"
		}
		ma.Dispersion = &Dispersion{
			StandardDeviation:      stdDev,
			CoefficientOfVariation: cv,
			MarketMaturity:         maturity,
		}
	}

	for i := 1; i < len(floats); i++ {
		low, high := floats[i-1], floats[i]
		if low <= 0 {
			continue
		}
		gapPercent := (high - low) / low * 100
		if gapPercent > 25 {
			ma.Gaps = append(ma.Gaps, Gap{
				LowerPrice: decimal.NewFromFloat(low),
				UpperPrice: decimal.NewFromFloat(high),
				GapSize:    decimal.NewFromFloat(high - low),
				GapPercent: gapPercent,
			})
		}
	}
	return ma
}

func (s *Strategist) riskFactors(b Breakdown, candidates []Candidate) []RiskFactor {
	var risks []RiskFactor

	if b.TotalCost.Sign() > 0 &&
		b.BaseCost.Div(b.TotalCost).InexactFloat64() > 0.7 {
		risks = append(risks, RiskFactor{
			Type:        "cost_sensitivity",
			Severity:    "medium",
			Description: "Product cost heavily dependent on base cost - vulnerable to supplier price changes",
		})
	}

	var lowMargin []string
	for _, c := range candidates {
		if c.Margin < s.cfg.MinMargin {
			lowMargin = append(lowMargin, string(c.Strategy))
		}
	}
	if len(lowMargin) > 0 {
		risks = append(risks, RiskFactor{
			Type:     "margin_risk",
			Severity: "high",
			Description: fmt.Sprintf("Strategies %v have margins below %.0f%%",
				lowMargin, s.cfg.MinMargin),
		})
	}

	maxPrice := decimal.Zero
	for _, c := range candidates {
		if c.Price.GreaterThan(maxPrice) {
			maxPrice = c.Price
		}
	}
	if maxPrice.GreaterThan(b.TotalCost.Mul(decimal.NewFromInt(3))) {
		risks = append(risks, RiskFactor{
			Type:        "price_point_risk",
			Severity:    "medium",
			Description: "Some strategies result in very high price points - may limit market size",
		})
	}
	return risks
}

func medianDecimal(prices []decimal.Decimal) decimal.Decimal {
	sorted := append([]decimal.Decimal(nil), prices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
	}
	return sorted[mid]
}

// ElasticityImpact projects revenue against a 100-unit demand baseline.
func (s *Strategist) ElasticityImpact(basePrice decimal.Decimal, priceChangePercent, demandChangePercent float64) ElasticityImpact {
	newPrice := basePrice.Mul(decimal.NewFromFloat(1 + priceChangePercent/100))
	base := basePrice.InexactFloat64()

	baselineRevenue := base * 100
	newRevenue := newPrice.InexactFloat64() * 100 * (1 + demandChangePercent/100)

	elasticity := 0.0
	if priceChangePercent != 0 {
		elasticity = demandChangePercent / priceChangePercent
	}
	revenueChange := 0.0
	if baselineRevenue > 0 {
		revenueChange = (newRevenue - baselineRevenue) / baselineRevenue * 100
	}
	return ElasticityImpact{
		PriceChangePercent:   priceChangePercent,
		DemandChangePercent:  demandChangePercent,
		NewPrice:             newPrice,
		RevenueChangePercent: revenueChange,
		Elasticity:           elasticity,
	}
}

// VolumePricing computes margins per volume tier after cost discounts
// (5% at 1000+, 2% at 100+). Breakeven is the quantity whose discounted
// profit recoups one unit's full cost.
func (s *Strategist) VolumePricing(b Breakdown, tiers []VolumeTier) []VolumeEconomics {
	out := make([]VolumeEconomics, 0, len(tiers))
	for _, tier := range tiers {
		discount := 0.0
		switch {
		case tier.MinQuantity >= 1000:
			discount = 0.05
		case tier.MinQuantity >= 100:
			discount = 0.02
		}
		adjustedCost := b.TotalCost.Mul(decimal.NewFromFloat(1 - discount))

		ve := VolumeEconomics{
			MinQuantity:          tier.MinQuantity,
			Price:                tier.Price,
			StandardMargin:       marginAt(tier.Price, b.TotalCost),
			VolumeAdjustedMargin: marginAt(tier.Price, adjustedCost),
			CostSavingsPercent:   discount * 100,
		}
		unitProfit := tier.Price.Sub(adjustedCost)
		if unitProfit.Sign() > 0 {
			qty := b.TotalCost.Div(unitProfit).Ceil().IntPart()
			ve.BreakevenQuantity = qty
			ve.BreakevenAttainable = true
		}
		out = append(out, ve)
	}
	return out
}

// Report runs the full analysis for one product: profit structure, strategy
// recommendation, a sensitivity sweep at 1.5x demand elasticity, and sample
// volume tiers.
func (s *Strategist) Report(productID string, b Breakdown, currentPrice decimal.Decimal, position market.Tier, competitorPrices []decimal.Decimal) Report {
	profit := s.ProfitAnalysis(currentPrice, b)
	rec := s.Recommend(b, position, competitorPrices)

	var sensitivity []ElasticityImpact
	for _, change := range []float64{-20, -10, -5, 5, 10, 20} {
		sensitivity = append(sensitivity, s.ElasticityImpact(currentPrice, change, change*-1.5))
	}

	tiers := []VolumeTier{
		{MinQuantity: 1, Price: currentPrice},
		{MinQuantity: 10, Price: currentPrice.Mul(decimal.NewFromFloat(0.95))},
		{MinQuantity: 50, Price: currentPrice.Mul(decimal.NewFromFloat(0.9))},
	}

	s.log.Info().Str("product", productID).Str("best", string(rec.Best.Strategy)).
		Float64("confidence", rec.Confidence).Msg("pricing report generated")

	return Report{
		ProductID:      productID,
		AnalysisDate:   s.clk.Now(),
		CurrentPrice:   currentPrice,
		Breakdown:      b,
		Profit:         profit,
		Recommendation: rec,
		Sensitivity:    sensitivity,
		VolumeAnalysis: s.VolumePricing(b, tiers),
		MarketPosition: position,
		Summary: ReportSummary{
			CurrentMargin:     profit.GrossMarginPercent,
			RecommendedPrice:  rec.Best.Price,
			MarginImprovement: rec.Best.Margin - profit.GrossMarginPercent,
			RiskLevel:         rec.Best.Risk,
			Confidence:        rec.Confidence,
		},
	}
}

package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pod-pricing/engine/market"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func newTestStrategist(t *testing.T) *Strategist {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(DefaultConfig(), clk, zerolog.Nop())
}

func cents(c int64) decimal.Decimal { return decimal.NewFromInt(c) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var scenarioPrices = []decimal.Decimal{
	cents(1500), cents(1600), cents(1700), cents(1800),
	cents(2000), cents(2200), cents(2500),
}

func TestBreakdown(t *testing.T) {
	s := newTestStrategist(t)

	b := s.Breakdown(cents(1100), cents(1999), Extras{
		ShippingCost:  cents(200),
		ProcessingFee: cents(100),
		PackagingCost: cents(50),
	})

	assert.True(t, b.TransactionFee.Equal(dec("57.971")), "got %s", b.TransactionFee)
	assert.True(t, b.MarketingCost.Equal(dec("199.9")))
	assert.True(t, b.OverheadCost.Equal(dec("99.95")))

	sum := b.BaseCost.Add(b.ShippingCost).Add(b.ProcessingFee).
		Add(b.TransactionFee).Add(b.PackagingCost).Add(b.MarketingCost).Add(b.OverheadCost)
	assert.True(t, b.TotalCost.Equal(sum))
	assert.True(t, b.TotalCost.Equal(dec("1807.821")))
}

func TestProfitAnalysis(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{BaseCost: cents(1100), TotalCost: cents(1400)}

	pa := s.ProfitAnalysis(cents(2000), b)

	assert.True(t, pa.GrossProfit.Equal(cents(600)))
	assert.InDelta(t, 30.0, pa.GrossMarginPercent, 1e-9)
	assert.InDelta(t, 600.0/1400.0*100, pa.ROIPercent, 1e-9)

	// Break-even carries the minimum margin, recommended the target.
	assert.InDelta(t, 1400.0/0.85, pa.BreakEvenPrice.InexactFloat64(), 1e-6)
	assert.InDelta(t, 1400.0/0.70, pa.RecommendedPrice.InexactFloat64(), 1e-6)
	assert.True(t, pa.RecommendedPrice.GreaterThan(pa.BreakEvenPrice))
	assert.True(t, pa.MinViablePrice.Equal(cents(1400).Mul(dec("1.01"))))
	assert.True(t, pa.MaxCompetitivePrice.Equal(pa.RecommendedPrice.Mul(dec("1.5"))))
}

func TestRecommendWithoutMarketData(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{BaseCost: cents(1100), TotalCost: cents(1400)}

	rec := s.Recommend(b, market.TierMid, nil)

	require.Len(t, rec.Candidates, 4)
	for _, c := range rec.Candidates {
		assert.NotEqual(t, StrategyCompetitive, c.Strategy)
		assert.True(t, c.Price.Sign() > 0)
	}

	// Cost-plus hits the mid-range band at 2000 and takes the no-data bonus.
	assert.Equal(t, StrategyCostPlus, rec.Best.Strategy)
	assert.Equal(t, 90, rec.Best.Score)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
	assert.InDelta(t, 2000, rec.Best.Price.InexactFloat64(), 1e-6)

	require.Len(t, rec.Alternatives, 2)
	assert.Equal(t, StrategyValueBased, rec.Alternatives[0].Strategy)
	assert.Equal(t, 0, rec.Market.Competitors)
	assert.Nil(t, rec.Market.Range)
}

func TestRecommendWithMarketData(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{BaseCost: cents(1100), TotalCost: cents(1400)}

	rec := s.Recommend(b, market.TierMid, scenarioPrices)

	require.Len(t, rec.Candidates, 5)
	assert.Equal(t, StrategyCompetitive, rec.Best.Strategy)
	assert.True(t, rec.Best.Price.Equal(cents(1800)), "median of scenario set")
	assert.InDelta(t, 400.0/1800.0*100, rec.Best.Margin, 1e-9)
	assert.Equal(t, FitGood, rec.Best.Fit)

	require.NotNil(t, rec.Market.Range)
	assert.InDelta(t, 1500, rec.Market.Range.Min, 1e-9)
	assert.InDelta(t, 2500, rec.Market.Range.Max, 1e-9)
	assert.InDelta(t, 1800, rec.Market.Range.Median, 1e-9)
	require.NotNil(t, rec.Market.Dispersion)
	assert.Equal(t, "mature", rec.Market.Dispersion.MarketMaturity)
	assert.Empty(t, rec.Market.Gaps)
}

func TestRecommendMarketGaps(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{BaseCost: cents(700), TotalCost: cents(1000)}

	rec := s.Recommend(b, market.TierMid, []decimal.Decimal{cents(1000), cents(1400), cents(2000)})

	require.Len(t, rec.Market.Gaps, 2)
	assert.InDelta(t, 40.0, rec.Market.Gaps[0].GapPercent, 1e-9)
	assert.Equal(t, "developing", rec.Market.Dispersion.MarketMaturity)
}

func TestRiskFactors(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{BaseCost: cents(1100), TotalCost: cents(1400)}

	rec := s.Recommend(b, market.TierMid, nil)

	types := make(map[string]bool)
	for _, r := range rec.RiskFactors {
		types[r.Type] = true
	}
	// Base cost is 79% of total, and penetration margin sits below minimum.
	assert.True(t, types["cost_sensitivity"])
	assert.True(t, types["margin_risk"])
	assert.False(t, types["price_point_risk"])
}

func TestElasticityImpact(t *testing.T) {
	s := newTestStrategist(t)

	impact := s.ElasticityImpact(cents(2000), 10, -15)

	assert.True(t, impact.NewPrice.Equal(cents(2200)))
	assert.InDelta(t, -1.5, impact.Elasticity, 1e-9)
	assert.InDelta(t, -6.5, impact.RevenueChangePercent, 1e-9)

	flat := s.ElasticityImpact(cents(2000), 0, 0)
	assert.Equal(t, 0.0, flat.Elasticity)
	assert.Equal(t, 0.0, flat.RevenueChangePercent)
}

func TestVolumePricing(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{TotalCost: cents(1400)}

	out := s.VolumePricing(b, []VolumeTier{
		{MinQuantity: 1, Price: cents(2000)},
		{MinQuantity: 100, Price: cents(1390)},
		{MinQuantity: 1000, Price: cents(1300)},
	})
	require.Len(t, out, 3)

	assert.Equal(t, 0.0, out[0].CostSavingsPercent)
	assert.InDelta(t, 30.0, out[0].StandardMargin, 1e-9)
	assert.True(t, out[0].BreakevenAttainable)
	assert.Equal(t, int64(3), out[0].BreakevenQuantity)

	// 2% discount at 100+ turns a thin loss into a thin profit.
	assert.Equal(t, 2.0, out[1].CostSavingsPercent)
	assert.Less(t, out[1].StandardMargin, 0.0)
	assert.Greater(t, out[1].VolumeAdjustedMargin, 0.0)
	assert.True(t, out[1].BreakevenAttainable)
	assert.Equal(t, int64(78), out[1].BreakevenQuantity)

	// Even the 5% discount cannot save a price below cost.
	assert.Equal(t, 5.0, out[2].CostSavingsPercent)
	assert.False(t, out[2].BreakevenAttainable)
	assert.Equal(t, int64(0), out[2].BreakevenQuantity)
}

func TestReport(t *testing.T) {
	s := newTestStrategist(t)
	b := Breakdown{BaseCost: cents(1100), TotalCost: cents(1400)}

	r := s.Report("tee-1", b, cents(2000), market.TierMid, scenarioPrices)

	assert.Equal(t, "tee-1", r.ProductID)
	assert.Equal(t, market.TierMid, r.MarketPosition)
	assert.Len(t, r.Sensitivity, 6)
	assert.Len(t, r.VolumeAnalysis, 3)

	// Sensitivity sweep uses 1.5x inverse demand response.
	assert.InDelta(t, -20.0, r.Sensitivity[0].PriceChangePercent, 1e-9)
	assert.InDelta(t, 30.0, r.Sensitivity[0].DemandChangePercent, 1e-9)

	assert.InDelta(t, 30.0, r.Summary.CurrentMargin, 1e-9)
	assert.True(t, r.Summary.RecommendedPrice.Equal(r.Recommendation.Best.Price))
	assert.InDelta(t, r.Recommendation.Best.Margin-30.0, r.Summary.MarginImprovement, 1e-9)
	assert.Equal(t, r.Recommendation.Confidence, r.Summary.Confidence)
}

package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pod-pricing/internal/snapshot"
	pricingerr "pod-pricing/pkg/errors"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(DefaultConfig(), clk, zerolog.Nop()), clk
}

func cents(c int64) decimal.Decimal { return decimal.NewFromInt(c) }

func TestRecordCostFirstObservationNoAlert(t *testing.T) {
	l, _ := newTestLedger(t)

	alert, err := l.RecordCost("tee", 100, CostSnapshot{BaseCost: cents(1100)})
	require.NoError(t, err)
	assert.Nil(t, alert)

	total, ok := l.CurrentCost("tee", 100)
	require.True(t, ok)
	assert.True(t, total.Equal(cents(1100)))
}

func TestRecordCostAlertSeverity(t *testing.T) {
	tests := []struct {
		name     string
		oldCost  int64
		newCost  int64
		severity Severity
		kind     AlertKind
	}{
		{"ten percent is medium", 1100, 1210, SeverityMedium, AlertCostIncrease},
		{"thirty percent is critical", 1000, 1300, SeverityCritical, AlertCostIncrease},
		{"twenty percent is high", 1000, 1200, SeverityHigh, AlertCostIncrease},
		{"two percent is low", 1000, 1020, SeverityLow, AlertCostIncrease},
		{"decrease flips kind", 1000, 900, SeverityMedium, AlertCostDecrease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t)
			_, err := l.RecordCost("p", 1, CostSnapshot{BaseCost: cents(tt.oldCost)})
			require.NoError(t, err)

			alert, err := l.RecordCost("p", 1, CostSnapshot{BaseCost: cents(tt.newCost)})
			require.NoError(t, err)
			require.NotNil(t, alert)
			assert.Equal(t, tt.severity, alert.Severity)
			assert.Equal(t, tt.kind, alert.Kind)
			assert.True(t, alert.OldValue.Equal(cents(tt.oldCost)))
			assert.True(t, alert.NewValue.Equal(cents(tt.newCost)))
		})
	}
}

func TestRecordCostBelowMinChangeIsSilent(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordCost("p", 1, CostSnapshot{BaseCost: cents(1000)})
	require.NoError(t, err)

	alert, err := l.RecordCost("p", 1, CostSnapshot{BaseCost: cents(1005)})
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestRecordCostTotalSumsParts(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordCost("p", 1, CostSnapshot{
		BaseCost:      cents(800),
		ShippingCost:  cents(200),
		ProcessingFee: cents(100),
	})
	require.NoError(t, err)

	total, ok := l.CurrentCost("p", 1)
	require.True(t, ok)
	assert.True(t, total.Equal(cents(1100)))
}

func TestRecordCostRejectsNonPositive(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordCost("p", 1, CostSnapshot{})
	require.Error(t, err)
	assert.True(t, pricingerr.HasCode(err, pricingerr.ErrCodeInvalidPrice))
}

func TestRecordPriceDerivesMarginAndProfit(t *testing.T) {
	l, _ := newTestLedger(t)

	point, err := l.RecordPrice("p", 1, cents(1999), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)

	assert.True(t, point.ProfitAmount.Equal(cents(899)))
	assert.InDelta(t, 899.0/1999.0*100, point.ProfitMargin, 1e-9)
	assert.Equal(t, ReasonManual, point.Reason)
}

func TestRecordPriceMarginAlert(t *testing.T) {
	l, _ := newTestLedger(t)

	// 12% margin: below the 20% threshold but above 10, severity medium.
	_, err := l.RecordPrice("p", 1, cents(1000), CostSnapshot{BaseCost: cents(880)}, ReasonManual)
	require.NoError(t, err)

	alerts := l.ActiveAlerts("")
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertMarginBelowThreshold, alerts[0].Kind)
	assert.Equal(t, SeverityMedium, alerts[0].Severity)

	// 5% margin is high severity.
	_, err = l.RecordPrice("p", 2, cents(1000), CostSnapshot{BaseCost: cents(950)}, ReasonManual)
	require.NoError(t, err)

	high := l.ActiveAlerts(SeverityHigh)
	require.Len(t, high, 1)
	assert.Equal(t, 2, high[0].VariantID)
}

func TestRecordPriceRejectsNonPositive(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordPrice("p", 1, decimal.Zero, CostSnapshot{BaseCost: cents(100)}, ReasonManual)
	require.Error(t, err)
	assert.True(t, pricingerr.HasCode(err, pricingerr.ErrCodeInvalidPrice))
	assert.Empty(t, l.CurrentMargins())
}

func TestRecordPricePrunesBeyondRetention(t *testing.T) {
	l, clk := newTestLedger(t)

	_, err := l.RecordPrice("p", 1, cents(1999), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)

	clk.advance(91 * 24 * time.Hour)
	_, err = l.RecordPrice("p", 1, cents(2099), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)

	// Only the fresh point survives, so trends lack data.
	_, err = l.Trends("p", 1, 365)
	require.Error(t, err)
	assert.True(t, pricingerr.HasCode(err, pricingerr.ErrCodeInsufficientData))
}

func TestTrendsDirectionAndChanges(t *testing.T) {
	l, clk := newTestLedger(t)

	_, err := l.RecordPrice("p", 1, cents(2000), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)
	clk.advance(24 * time.Hour)
	_, err = l.RecordPrice("p", 1, cents(2200), CostSnapshot{BaseCost: cents(1210)}, ReasonCostIncrease)
	require.NoError(t, err)

	trend, err := l.Trends("p", 1, 30)
	require.NoError(t, err)
	assert.Equal(t, DirectionUp, trend.Direction)
	assert.Equal(t, 2, trend.DataPoints)
	assert.True(t, trend.PriceChange.Equal(cents(200)))
	assert.InDelta(t, 10.0, trend.PriceChangePercent, 1e-9)
	assert.InDelta(t, 10.0, trend.CostChangePercent, 1e-9)
	// Volatility needs at least three points.
	assert.Equal(t, 0.0, trend.Volatility)
}

func TestTrendsStableWithinTwoPercent(t *testing.T) {
	l, clk := newTestLedger(t)

	_, err := l.RecordPrice("p", 1, cents(2000), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)
	clk.advance(time.Hour)
	_, err = l.RecordPrice("p", 1, cents(2020), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)

	trend, err := l.Trends("p", 1, 30)
	require.NoError(t, err)
	assert.Equal(t, DirectionStable, trend.Direction)
}

func TestTrendsVolatilityIsPopulationStdev(t *testing.T) {
	l, clk := newTestLedger(t)

	for _, price := range []int64{1000, 1100, 990} {
		_, err := l.RecordPrice("p", 1, cents(price), CostSnapshot{BaseCost: cents(600)}, ReasonManual)
		require.NoError(t, err)
		clk.advance(time.Hour)
	}

	trend, err := l.Trends("p", 1, 30)
	require.NoError(t, err)
	// Changes are +10% and -10%; population stdev of {10, -10} is 10.
	assert.InDelta(t, 10.0, trend.Volatility, 1e-9)
}

func TestTrendsErrors(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Trends("missing", 1, 30)
	assert.True(t, pricingerr.HasCode(err, pricingerr.ErrCodeNotFound))

	_, err = l.RecordPrice("p", 1, cents(1999), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)
	_, err = l.Trends("p", 1, 30)
	assert.True(t, pricingerr.HasCode(err, pricingerr.ErrCodeInsufficientData))
}

func TestTrendsRecommendations(t *testing.T) {
	l, clk := newTestLedger(t)

	// Margin under 15% plus rising costs in most observations.
	_, err := l.RecordPrice("p", 1, cents(1000), CostSnapshot{BaseCost: cents(850)}, ReasonManual)
	require.NoError(t, err)
	clk.advance(time.Hour)
	_, err = l.RecordPrice("p", 1, cents(1020), CostSnapshot{BaseCost: cents(880)}, ReasonCostIncrease)
	require.NoError(t, err)
	clk.advance(time.Hour)
	_, err = l.RecordPrice("p", 1, cents(1050), CostSnapshot{BaseCost: cents(920)}, ReasonCostIncrease)
	require.NoError(t, err)

	trend, err := l.Trends("p", 1, 30)
	require.NoError(t, err)
	assert.Contains(t, trend.Recommendations, "consider increasing price - profit margin is below 15%")
	assert.Contains(t, trend.Recommendations, "costs are trending upward - consider price adjustment")
}

func TestAcknowledge(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordPrice("p", 1, cents(1000), CostSnapshot{BaseCost: cents(950)}, ReasonManual)
	require.NoError(t, err)
	require.Len(t, l.ActiveAlerts(""), 1)

	assert.True(t, l.Acknowledge(0))
	assert.Empty(t, l.ActiveAlerts(""))
	assert.False(t, l.Acknowledge(5))
	assert.False(t, l.Acknowledge(-1))
}

func TestCurrentMarginsSortedByKey(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordPrice("zeta", 1, cents(2000), CostSnapshot{BaseCost: cents(1000)}, ReasonManual)
	require.NoError(t, err)
	_, err = l.RecordPrice("alpha", 2, cents(3000), CostSnapshot{BaseCost: cents(1000)}, ReasonManual)
	require.NoError(t, err)

	margins := l.CurrentMargins()
	require.Len(t, margins, 2)
	assert.Equal(t, "alpha", margins[0].ProductID)
	assert.Equal(t, "zeta", margins[1].ProductID)
}

func TestSummary(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.RecordPrice("p", 1, cents(2000), CostSnapshot{BaseCost: cents(1000)}, ReasonManual)
	require.NoError(t, err)
	_, err = l.RecordPrice("q", 1, cents(1000), CostSnapshot{BaseCost: cents(950)}, ReasonManual)
	require.NoError(t, err)

	s := l.Summary()
	assert.Equal(t, 2, s.ProductsTracked)
	assert.Equal(t, 1, s.TotalAlerts)
	assert.Equal(t, 1, s.UnacknowledgedAlerts)
	assert.Equal(t, 1, s.AlertBreakdown[SeverityHigh])
	assert.InDelta(t, (50.0+5.0)/2, s.AverageProfitMargin, 1e-9)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l, clk := newTestLedger(t)
	_, err := l.RecordCost("p", 1, CostSnapshot{BaseCost: cents(1100)})
	require.NoError(t, err)
	_, err = l.RecordPrice("p", 1, cents(1999), CostSnapshot{BaseCost: cents(1100)}, ReasonManual)
	require.NoError(t, err)
	_, err = l.RecordPrice("q", 2, cents(1000), CostSnapshot{BaseCost: cents(950)}, ReasonManual)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, l.Save(path))

	fresh := New(DefaultConfig(), clk, zerolog.Nop())
	res := fresh.Load(path)
	require.Equal(t, snapshot.StatusOK, res.Status)

	want, got := l.CurrentMargins(), fresh.CurrentMargins()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].ProductID, got[i].ProductID)
		assert.Equal(t, want[i].VariantID, got[i].VariantID)
		assert.InDelta(t, want[i].ProfitMargin, got[i].ProfitMargin, 1e-9)
		assert.True(t, want[i].SellingPrice.Equal(got[i].SellingPrice))
		assert.True(t, want[i].TotalCost.Equal(got[i].TotalCost))
	}

	wantAlerts, gotAlerts := l.ActiveAlerts(""), fresh.ActiveAlerts("")
	require.Equal(t, len(wantAlerts), len(gotAlerts))
	for i := range wantAlerts {
		assert.Equal(t, wantAlerts[i].ID, gotAlerts[i].ID)
		assert.Equal(t, wantAlerts[i].Kind, gotAlerts[i].Kind)
		assert.Equal(t, wantAlerts[i].Severity, gotAlerts[i].Severity)
	}

	total, ok := fresh.CurrentCost("p", 1)
	require.True(t, ok)
	assert.True(t, total.Equal(cents(1100)))
}

func TestLoadMissingStartsEmpty(t *testing.T) {
	l, _ := newTestLedger(t)
	res := l.Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Equal(t, snapshot.StatusEmpty, res.Status)
	assert.Empty(t, l.CurrentMargins())
}

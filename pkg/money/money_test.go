package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name  string
		price int64
		mode  RoundingMode
		want  int64
	}{
		{"99 rounds down to dollar then appends", 2087, Round99, 2099},
		{"99 keeps exact dollar", 2000, Round99, 2099},
		{"99 on already 99", 1999, Round99, 1999},
		{"95 ending", 2087, Round95, 2095},
		{"plain keeps cents", 2087, RoundPlain, 2087},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Round(decimal.NewFromInt(tt.price), tt.mode)
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)),
				"got %s want %d", got, tt.want)
		})
	}
}

func TestPercentChange(t *testing.T) {
	// 1100 -> 1210 must be exactly 10 so threshold comparisons behave.
	got := PercentChange(decimal.NewFromInt(1100), decimal.NewFromInt(1210))
	require.Equal(t, 10.0, got)

	assert.Equal(t, -50.0, PercentChange(decimal.NewFromInt(200), decimal.NewFromInt(100)))
	assert.Equal(t, 0.0, PercentChange(decimal.Zero, decimal.NewFromInt(100)))
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$19.99", Dollars(decimal.NewFromInt(1999)))
	assert.Equal(t, "$0.05", Dollars(decimal.NewFromInt(5)))
}

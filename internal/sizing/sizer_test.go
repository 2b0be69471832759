package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

func linear() *exchange.TradingConstraints {
	return &exchange.TradingConstraints{
		Symbol:      "BTCUSDT",
		MinOrderQty: 0.001,
		MaxOrderQty: 100,
		QtyStep:     0.001,
		MinNotional: 5,
		TickSize:    0.01,
		MaxLeverage: 100,
	}
}

func fixedStops() Config {
	cfg := DefaultConfig()
	cfg.UseATRStops = false
	return cfg
}

func TestSizeRiskBased(t *testing.T) {
	plan, err := NewSizer(fixedStops()).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 5, Constraints: linear()})
	require.NoError(t, err)

	assert.InDelta(t, 6.666, plan.Qty, 1e-9)
	assert.InDelta(t, 666.6, plan.Notional, 1e-9)
	assert.InDelta(t, 133.32, plan.Margin, 1e-9)
	assert.InDelta(t, 10.0, plan.RiskAmount, 1e-9)
	assert.Equal(t, 5, plan.Leverage)
	assert.InDelta(t, 103.0, plan.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 98.5, plan.StopPrice, 1e-9)
	assert.False(t, plan.Bumped)
	assert.False(t, plan.Capped)
}

func TestSizeScoreScaling(t *testing.T) {
	plan, err := NewSizer(fixedStops()).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 2, Constraints: linear()})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, plan.RiskAmount, 1e-9) // 2/5 clamps to 0.5
	assert.InDelta(t, 3.333, plan.Qty, 1e-9)

	cfg := fixedStops()
	cfg.ScoreRiskScaling = false
	plan, err = NewSizer(cfg).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 2, Constraints: linear()})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, plan.RiskAmount, 1e-9)
}

func TestSizeATRStopWidens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewardRisk = 2
	plan, err := NewSizer(cfg).Size(Input{Balance: 1000, Price: 100, Side: types.SideSell, ATR: 2, Score: 5, Constraints: linear()})
	require.NoError(t, err)

	assert.InDelta(t, 3.0, plan.StopPercent, 1e-9)
	assert.InDelta(t, 6.0, plan.TakeProfitPercent, 1e-9)
	assert.InDelta(t, 3.333, plan.Qty, 1e-9)
	assert.InDelta(t, 94.0, plan.TakeProfitPrice, 1e-9)
	assert.InDelta(t, 103.0, plan.StopPrice, 1e-9)
}

func TestSizeMarginCap(t *testing.T) {
	cfg := fixedStops()
	cfg.MaxMarginPercent = 5
	plan, err := NewSizer(cfg).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 5, Constraints: linear()})
	require.NoError(t, err)
	assert.True(t, plan.Capped)
	assert.InDelta(t, 2.5, plan.Qty, 1e-9)
	assert.InDelta(t, 50.0, plan.Margin, 1e-9)
}

func TestSizeMaxOrderQty(t *testing.T) {
	c := linear()
	c.MaxOrderQty = 1
	plan, err := NewSizer(fixedStops()).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 5, Constraints: c})
	require.NoError(t, err)
	assert.True(t, plan.Capped)
	assert.InDelta(t, 1.0, plan.Qty, 1e-9)
}

func TestSizeMinimumBumpOrReject(t *testing.T) {
	c := linear()
	c.QtyStep = 0.01
	c.MinOrderQty = 0.01

	_, err := NewSizer(fixedStops()).Size(Input{Balance: 100, Price: 30000, Side: types.SideBuy, Score: 5, Constraints: c})
	assert.ErrorIs(t, err, ErrBelowMinimum)

	cfg := fixedStops()
	cfg.MaxMarginPercent = 100
	plan, err := NewSizer(cfg).Size(Input{Balance: 100, Price: 30000, Side: types.SideBuy, Score: 5, Constraints: c})
	require.NoError(t, err)
	assert.True(t, plan.Bumped)
	assert.InDelta(t, 0.01, plan.Qty, 1e-12)
	assert.InDelta(t, 60.0, plan.Margin, 1e-9)
}

func TestSizeMinNotionalBump(t *testing.T) {
	c := linear()
	c.MinNotional = 100
	cfg := fixedStops()
	cfg.RiskPercent = 0.01
	cfg.MaxMarginPercent = 100
	plan, err := NewSizer(cfg).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 5, Constraints: c})
	require.NoError(t, err)
	assert.True(t, plan.Bumped)
	assert.InDelta(t, 1.0, plan.Qty, 1e-9)
}

func TestSizeLeverageCappedByExchange(t *testing.T) {
	c := linear()
	c.MaxLeverage = 3
	plan, err := NewSizer(fixedStops()).Size(Input{Balance: 1000, Price: 100, Side: types.SideBuy, Score: 5, Constraints: c})
	require.NoError(t, err)
	assert.Equal(t, 3, plan.Leverage)
}

func TestSizeRejectsBadInput(t *testing.T) {
	s := NewSizer(DefaultConfig())
	_, err := s.Size(Input{Balance: 0, Price: 100, Side: types.SideBuy})
	assert.Error(t, err)
	_, err = s.Size(Input{Balance: 100, Price: 0, Side: types.SideBuy})
	assert.Error(t, err)
	_, err = s.Size(Input{Balance: 100, Price: 100, Side: types.SideNone})
	assert.Error(t, err)
}

func TestRoundingHelpers(t *testing.T) {
	assert.InDelta(t, 101.25, RoundToTick(101.2449, 0.05), 1e-9)
	assert.Equal(t, 101.2449, RoundToTick(101.2449, 0))
	assert.InDelta(t, 0.123, FloorToStep(0.1239, 0.001), 1e-12)

	tp, sl := TargetPrices(types.SideSell, 200, 2, 1, 0.1)
	assert.InDelta(t, 196.0, tp, 1e-9)
	assert.InDelta(t, 202.0, sl, 1e-9)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Leverage = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TakeProfitPercent = 0
	assert.Error(t, cfg.Validate())
	cfg.RewardRisk = 2
	assert.NoError(t, cfg.Validate())
}

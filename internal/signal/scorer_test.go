package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-futures-bot/internal/market"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

func bullish() *market.Snapshot {
	return &market.Snapshot{
		Symbol:       "BTCUSDT",
		Price:        100,
		RSI:          60,
		MACDHist:     0.5,
		PrevMACDHist: 0.3,
		EMAFast:      101,
		EMASlow:      99,
		ADX:          28,
		PlusDI:       30,
		MinusDI:      12,
		ATR:          1,
		ATRPercent:   1,
		BBWidth:      0.03,
	}
}

func bearish() *market.Snapshot {
	return &market.Snapshot{
		Symbol:       "ETHUSDT",
		Price:        100,
		RSI:          40,
		MACDHist:     -0.5,
		PrevMACDHist: -0.2,
		EMAFast:      98,
		EMASlow:      100,
		ADX:          30,
		PlusDI:       10,
		MinusDI:      25,
		ATR:          1,
		ATRPercent:   1,
		BBWidth:      0.03,
	}
}

func TestScoreFullLong(t *testing.T) {
	sig := NewScorer(DefaultConfig()).Score(bullish())
	assert.Equal(t, types.SideBuy, sig.Direction)
	assert.Equal(t, 5, sig.Score)
	assert.Len(t, sig.Reasons, 5)
	assert.True(t, sig.Actionable(4))
}

func TestScoreFullShort(t *testing.T) {
	sig := NewScorer(DefaultConfig()).Score(bearish())
	assert.Equal(t, types.SideSell, sig.Direction)
	assert.Equal(t, 5, sig.Score)
}

func TestScorePartial(t *testing.T) {
	snap := bullish()
	snap.ADX = 12        // weak trend
	snap.MACDHist = 0.2  // contracting
	snap.BBWidth = 0.005 // squeeze
	sig := NewScorer(DefaultConfig()).Score(snap)
	assert.Equal(t, 2, sig.Score)
	assert.False(t, sig.Actionable(4))
	assert.True(t, sig.Actionable(2))
}

func TestScoreDirectionDisagreement(t *testing.T) {
	snap := bullish()
	snap.MinusDI = 40
	sig := NewScorer(DefaultConfig()).Score(snap)
	assert.Equal(t, types.SideNone, sig.Direction)
	assert.Equal(t, 0, sig.Score)
	assert.False(t, sig.Actionable(1))
}

func TestScoreHigherTimeframeTrend(t *testing.T) {
	snap := bullish()
	snap.HasTrend = true
	snap.TrendEMAFast = 90
	snap.TrendEMASlow = 95
	sig := NewScorer(DefaultConfig()).Score(snap)
	assert.Equal(t, 4, sig.Score)
	assert.NotContains(t, sig.Reasons, "trend: EMA aligned")
}

func TestScoreHardFilters(t *testing.T) {
	scorer := NewScorer(DefaultConfig())

	snap := bullish()
	snap.ATRPercent = 9
	sig := scorer.Score(snap)
	assert.Equal(t, 0, sig.Score)
	assert.Contains(t, sig.Reasons[0], "ATR")

	snap = bullish()
	snap.RSI = 85
	sig = scorer.Score(snap)
	assert.Equal(t, 0, sig.Score)
	assert.Contains(t, sig.Reasons[0], "overbought")

	snap = bearish()
	snap.RSI = 15
	sig = scorer.Score(snap)
	assert.Equal(t, 0, sig.Score)
	assert.Contains(t, sig.Reasons[0], "oversold")
}

func TestShortsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowShorts = false
	sig := NewScorer(cfg).Score(bearish())
	assert.Equal(t, types.SideNone, sig.Direction)
	assert.Equal(t, 0, sig.Score)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinScore = 6
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RSILongMin = 80
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RSIOversold = 90
	assert.Error(t, cfg.Validate())
}

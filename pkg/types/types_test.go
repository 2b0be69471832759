package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSideHelpers(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
	assert.Equal(t, SideNone, SideNone.Opposite())
	assert.Equal(t, -1.0, SideSell.Sign())
	assert.Equal(t, "LONG", SideBuy.Label())
	assert.Equal(t, SideSell, ParseSide(" Short "))
	assert.Equal(t, SideNone, ParseSide("flat"))
}

func TestPnLPercent(t *testing.T) {
	assert.InDelta(t, 10.0, PnLPercent(SideBuy, 100, 110), 1e-9)
	assert.InDelta(t, -10.0, PnLPercent(SideSell, 100, 110), 1e-9)
	assert.Equal(t, 0.0, PnLPercent(SideBuy, 0, 110))
}

func TestDurationJSON(t *testing.T) {
	var cfg struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1m30s","b":2}`), &cfg))
	assert.Equal(t, 90*time.Second, cfg.A.Std())
	assert.Equal(t, 2*time.Second, cfg.B.Std())

	out, err := json.Marshal(cfg.A)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &cfg))
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &cfg))
}

func TestCandleExtractors(t *testing.T) {
	candles := []OHLCV{{High: 2, Low: 1, Close: 1.5}, {High: 3, Low: 2, Close: 2.5}}
	assert.Equal(t, []float64{1.5, 2.5}, Closes(candles))
	assert.Equal(t, []float64{2, 3}, Highs(candles))
	assert.Equal(t, []float64{1, 2}, Lows(candles))
}

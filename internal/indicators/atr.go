package indicators

import (
	"math"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// trueRange is aligned with candles; index 0 has no previous close and stays zero.
func trueRange(candles []types.OHLCV) []float64 {
	tr := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		c, prevClose := candles[i], candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return tr
}

// ATR is Wilder's Average True Range series.
func ATR(candles []types.OHLCV, period int) ([]float64, error) {
	if period <= 0 || len(candles) < period+1 {
		return nil, ErrInsufficientData
	}
	return wilder(trueRange(candles), period, 1), nil
}

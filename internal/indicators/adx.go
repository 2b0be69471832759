package indicators

import (
	"math"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// ADXResult holds the Average Directional Index and the directional indicators.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX computes Wilder's ADX. Defined from index 2*period-1.
func ADX(candles []types.OHLCV, period int) (*ADXResult, error) {
	if period <= 0 || len(candles) < 2*period {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	tr := wilder(trueRange(candles), period, 1)
	sp := wilder(plusDM, period, 1)
	sm := wilder(minusDM, period, 1)

	res := &ADXResult{
		PlusDI:  nanSeries(n),
		MinusDI: nanSeries(n),
	}
	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if tr[i] == 0 {
			res.PlusDI[i], res.MinusDI[i] = 0, 0
			continue
		}
		pdi := 100 * sp[i] / tr[i]
		mdi := 100 * sm[i] / tr[i]
		res.PlusDI[i], res.MinusDI[i] = pdi, mdi
		if sum := pdi + mdi; sum > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / sum
		}
	}
	res.ADX = wilder(dx, period, period)
	return res, nil
}

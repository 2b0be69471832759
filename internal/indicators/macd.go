package indicators

import "math"

// MACDResult holds aligned MACD line, signal line and histogram series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast) - EMA(slow), its EMA(signal) and the difference between them.
func MACD(closes []float64, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nil, ErrInsufficientData
	}

	fastEMA, err := EMA(closes, fast)
	if err != nil {
		return nil, err
	}
	slowEMA, err := EMA(closes, slow)
	if err != nil {
		return nil, err
	}

	line := nanSeries(len(closes))
	for i := slow - 1; i < len(closes); i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	sig, err := EMA(line[slow-1:], signal)
	if err != nil {
		return nil, err
	}

	res := &MACDResult{
		MACD:      line,
		Signal:    nanSeries(len(closes)),
		Histogram: nanSeries(len(closes)),
	}
	for i, v := range sig {
		idx := i + slow - 1
		res.Signal[idx] = v
		if !math.IsNaN(v) {
			res.Histogram[idx] = line[idx] - v
		}
	}
	return res, nil
}

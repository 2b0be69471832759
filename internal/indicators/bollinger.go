package indicators

import "math"

// BollingerBands is one evaluation of the bands.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
	// Width is (Upper-Lower)/Middle, a normalized volatility measure.
	Width float64
}

// Bollinger evaluates the bands on the last period closes using population standard deviation.
func Bollinger(closes []float64, period int, k float64) (BollingerBands, error) {
	if period <= 1 || len(closes) < period {
		return BollingerBands{}, ErrInsufficientData
	}
	window := closes[len(closes)-period:]

	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(period))

	b := BollingerBands{
		Middle: mean,
		Upper:  mean + k*sd,
		Lower:  mean - k*sd,
	}
	if mean != 0 {
		b.Width = (b.Upper - b.Lower) / mean
	}
	return b, nil
}

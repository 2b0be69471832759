// Package indicators computes technical indicators over closed candles.
// Series functions return slices aligned with their input; positions before the
// indicator is defined hold NaN.
package indicators

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when the input is shorter than the indicator window.
var ErrInsufficientData = errors.New("insufficient data for indicator")

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Last returns the final defined value of a series.
func Last(series []float64) (float64, bool) {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}

// SMA is the simple moving average series.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, ErrInsufficientData
	}
	out := nanSeries(len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA is the exponential moving average series seeded with the SMA of the first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 || len(values) < period {
		return nil, ErrInsufficientData
	}
	out := nanSeries(len(values))
	k := 2.0 / float64(period+1)

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	prev := seed / float64(period)
	out[period-1] = prev

	for i := period; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out, nil
}

// wilder smooths values with Wilder's moving average starting at index start.
// The first output, at start+period-1, is the plain mean of the window.
func wilder(values []float64, period, start int) []float64 {
	out := nanSeries(len(values))
	if len(values)-start < period {
		return out
	}
	sum := 0.0
	for _, v := range values[start : start+period] {
		sum += v
	}
	prev := sum / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(values); i++ {
		prev = (prev*float64(period-1) + values[i]) / float64(period)
		out[i] = prev
	}
	return out
}

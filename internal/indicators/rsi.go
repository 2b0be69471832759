package indicators

// RSI is Wilder's Relative Strength Index series.
func RSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return nil, ErrInsufficientData
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := wilder(gains, period, 1)
	avgLoss := wilder(losses, period, 1)

	out := nanSeries(len(closes))
	for i := period; i < len(closes); i++ {
		switch {
		case avgLoss[i] == 0 && avgGain[i] == 0:
			out[i] = 50
		case avgLoss[i] == 0:
			out[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out, nil
}

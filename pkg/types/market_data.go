package types

import (
	"strings"
	"time"
)

// OHLCV is a single closed candle.
type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Ticker is the last traded price of a symbol.
type Ticker struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Side is the direction of an order or position. Values match the exchange wire format.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
	SideNone Side = ""
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}

// Sign is +1 for longs, -1 for shorts and 0 otherwise.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// Label returns LONG / SHORT for display.
func (s Side) Label() string {
	switch s {
	case SideBuy:
		return "LONG"
	case SideSell:
		return "SHORT"
	default:
		return "NONE"
	}
}

// ParseSide accepts exchange and human spellings (buy, long, sell, short).
func ParseSide(v string) Side {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy", "long":
		return SideBuy
	case "sell", "short":
		return SideSell
	default:
		return SideNone
	}
}

// Closes extracts closing prices.
func Closes(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices.
func Lows(candles []OHLCV) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// PnLPercent returns the unlevered move from entry to price in the position's favour, in percent.
func PnLPercent(side Side, entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return side.Sign() * (price - entry) / entry * 100
}

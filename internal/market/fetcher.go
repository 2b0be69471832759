// Package market turns raw klines into an indicator snapshot per symbol.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/indicators"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// Config selects timeframes and indicator periods.
type Config struct {
	Timeframe      string  `json:"timeframe"`
	TrendTimeframe string  `json:"trend_timeframe"` // optional higher timeframe for trend confirmation
	Candles        int     `json:"candles"`
	RSIPeriod      int     `json:"rsi_period"`
	MACDFast       int     `json:"macd_fast"`
	MACDSlow       int     `json:"macd_slow"`
	MACDSignal     int     `json:"macd_signal"`
	EMAFast        int     `json:"ema_fast"`
	EMASlow        int     `json:"ema_slow"`
	ADXPeriod      int     `json:"adx_period"`
	ATRPeriod      int     `json:"atr_period"`
	BBPeriod       int     `json:"bb_period"`
	BBStdDev       float64 `json:"bb_std_dev"`
}

// DefaultConfig returns the standard indicator periods on 15 minute candles.
func DefaultConfig() Config {
	return Config{
		Timeframe:  "15m",
		Candles:    200,
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		EMAFast:    21,
		EMASlow:    55,
		ADXPeriod:  14,
		ATRPeriod:  14,
		BBPeriod:   20,
		BBStdDev:   2,
	}
}

// MinCandles is the shortest closed history every indicator can be computed on.
func (c Config) MinCandles() int {
	need := c.EMASlow
	for _, n := range []int{c.MACDSlow + c.MACDSignal, 2 * c.ADXPeriod, c.RSIPeriod + 1, c.ATRPeriod + 1, c.BBPeriod} {
		if n > need {
			need = n
		}
	}
	return need + 1
}

// Snapshot is the indicator state of one symbol at the last closed candle.
type Snapshot struct {
	Symbol    string
	Timeframe string
	Price     float64 // close of the last closed candle
	Time      time.Time

	RSI          float64
	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	PrevMACDHist float64
	EMAFast      float64
	EMASlow      float64
	ADX          float64
	PlusDI       float64
	MinusDI      float64
	ATR          float64
	ATRPercent   float64
	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	BBWidth      float64

	HasTrend     bool
	TrendEMAFast float64
	TrendEMASlow float64
}

// KlineSource is the slice of the exchange the fetcher needs.
type KlineSource interface {
	GetKlines(ctx context.Context, params exchange.KlineParams) ([]types.OHLCV, error)
}

// Fetcher pulls candles and computes snapshots.
type Fetcher struct {
	cfg      Config
	source   KlineSource
	interval exchange.KlineInterval
	trend    exchange.KlineInterval
	now      func() time.Time
}

// NewFetcher validates timeframes up front so misconfiguration fails at startup.
func NewFetcher(cfg Config, source KlineSource) (*Fetcher, error) {
	interval, err := exchange.ParseInterval(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	f := &Fetcher{cfg: cfg, source: source, interval: interval, now: time.Now}
	if cfg.TrendTimeframe != "" {
		if f.trend, err = exchange.ParseInterval(cfg.TrendTimeframe); err != nil {
			return nil, err
		}
	}
	if f.cfg.Candles < cfg.MinCandles()+1 {
		f.cfg.Candles = cfg.MinCandles() + 1
	}
	return f, nil
}

// Interval returns the primary candle interval.
func (f *Fetcher) Interval() exchange.KlineInterval { return f.interval }

// closedCandles fetches candles and drops the one still forming.
func (f *Fetcher) closedCandles(ctx context.Context, symbol string, interval exchange.KlineInterval) ([]types.OHLCV, error) {
	candles, err := f.source.GetKlines(ctx, exchange.KlineParams{
		Symbol:   symbol,
		Interval: interval,
		Limit:    f.cfg.Candles,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s klines: %w", symbol, interval, err)
	}
	if n := len(candles); n > 0 && candles[n-1].Timestamp.Add(interval.Duration()).After(f.now()) {
		candles = candles[:n-1]
	}
	return candles, nil
}

// Snapshot computes all indicators on the latest closed candles of symbol.
func (f *Fetcher) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	candles, err := f.closedCandles(ctx, symbol, f.interval)
	if err != nil {
		return nil, err
	}
	if len(candles) < f.cfg.MinCandles() {
		return nil, fmt.Errorf("%s: %d closed candles, need %d: %w", symbol, len(candles), f.cfg.MinCandles(), indicators.ErrInsufficientData)
	}

	snap, err := Compute(f.cfg, symbol, candles)
	if err != nil {
		return nil, err
	}
	snap.Timeframe = f.cfg.Timeframe

	if f.trend != "" {
		trendCandles, err := f.closedCandles(ctx, symbol, f.trend)
		if err != nil {
			return nil, err
		}
		closes := types.Closes(trendCandles)
		fast, errFast := indicators.EMA(closes, f.cfg.EMAFast)
		slow, errSlow := indicators.EMA(closes, f.cfg.EMASlow)
		if errFast == nil && errSlow == nil {
			snap.HasTrend = true
			snap.TrendEMAFast, _ = indicators.Last(fast)
			snap.TrendEMASlow, _ = indicators.Last(slow)
		}
	}
	return snap, nil
}

// Compute derives a snapshot from closed candles, oldest first.
func Compute(cfg Config, symbol string, candles []types.OHLCV) (*Snapshot, error) {
	if len(candles) < cfg.MinCandles() {
		return nil, indicators.ErrInsufficientData
	}
	closes := types.Closes(candles)
	last := candles[len(candles)-1]

	snap := &Snapshot{Symbol: symbol, Price: last.Close, Time: last.Timestamp}

	rsi, err := indicators.RSI(closes, cfg.RSIPeriod)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	snap.RSI, _ = indicators.Last(rsi)

	macd, err := indicators.MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	n := len(closes)
	snap.MACD = macd.MACD[n-1]
	snap.MACDSignal = macd.Signal[n-1]
	snap.MACDHist = macd.Histogram[n-1]
	snap.PrevMACDHist = macd.Histogram[n-2]

	fast, err := indicators.EMA(closes, cfg.EMAFast)
	if err != nil {
		return nil, fmt.Errorf("ema fast: %w", err)
	}
	slow, err := indicators.EMA(closes, cfg.EMASlow)
	if err != nil {
		return nil, fmt.Errorf("ema slow: %w", err)
	}
	snap.EMAFast = fast[n-1]
	snap.EMASlow = slow[n-1]

	adx, err := indicators.ADX(candles, cfg.ADXPeriod)
	if err != nil {
		return nil, fmt.Errorf("adx: %w", err)
	}
	snap.ADX = adx.ADX[n-1]
	snap.PlusDI = adx.PlusDI[n-1]
	snap.MinusDI = adx.MinusDI[n-1]

	atr, err := indicators.ATR(candles, cfg.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("atr: %w", err)
	}
	snap.ATR = atr[n-1]
	if snap.Price > 0 {
		snap.ATRPercent = snap.ATR / snap.Price * 100
	}

	bb, err := indicators.Bollinger(closes, cfg.BBPeriod, cfg.BBStdDev)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	snap.BBUpper, snap.BBMiddle, snap.BBLower, snap.BBWidth = bb.Upper, bb.Middle, bb.Lower, bb.Width

	return snap, nil
}

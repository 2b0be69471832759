// Package signal scores entry opportunities from a market snapshot.
package signal

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/internal/market"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// MaxScore is the number of scoring criteria.
const MaxScore = 5

// Config holds scoring thresholds. RSI values are on the 0-100 scale, ATR in percent of price
// and Bollinger width as a fraction of the middle band.
type Config struct {
	MinScore      int     `json:"min_score"`
	MinADX        float64 `json:"min_adx"`
	RSILongMin    float64 `json:"rsi_long_min"`
	RSILongMax    float64 `json:"rsi_long_max"`
	RSIShortMin   float64 `json:"rsi_short_min"`
	RSIShortMax   float64 `json:"rsi_short_max"`
	RSIOverbought float64 `json:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold"`
	MinBBWidth    float64 `json:"min_bb_width"`
	MaxATRPercent float64 `json:"max_atr_percent"`
	AllowShorts   bool    `json:"allow_shorts"`
}

func DefaultConfig() Config {
	return Config{
		MinScore:      4,
		MinADX:        20,
		RSILongMin:    50,
		RSILongMax:    70,
		RSIShortMin:   30,
		RSIShortMax:   50,
		RSIOverbought: 78,
		RSIOversold:   22,
		MinBBWidth:    0.01,
		MaxATRPercent: 5,
		AllowShorts:   true,
	}
}

// Validate checks band ordering and score range.
func (c Config) Validate() error {
	if c.MinScore < 1 || c.MinScore > MaxScore {
		return fmt.Errorf("min_score must be between 1 and %d, got %d", MaxScore, c.MinScore)
	}
	if c.RSILongMin >= c.RSILongMax {
		return fmt.Errorf("rsi_long_min (%.1f) must be below rsi_long_max (%.1f)", c.RSILongMin, c.RSILongMax)
	}
	if c.RSIShortMin >= c.RSIShortMax {
		return fmt.Errorf("rsi_short_min (%.1f) must be below rsi_short_max (%.1f)", c.RSIShortMin, c.RSIShortMax)
	}
	if c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("rsi_oversold (%.1f) must be below rsi_overbought (%.1f)", c.RSIOversold, c.RSIOverbought)
	}
	return nil
}

// Signal is one scoring result. It is produced per polling cycle and consumed immediately.
type Signal struct {
	Symbol    string     `json:"symbol"`
	Direction types.Side `json:"direction"`
	Score     int        `json:"score"`
	Reasons   []string   `json:"reasons"`
	Price     float64    `json:"price"`
	ATR       float64    `json:"atr"`
	Timestamp time.Time  `json:"timestamp"`
}

// Actionable reports whether the signal has a direction and reaches minScore.
func (s Signal) Actionable(minScore int) bool {
	return s.Direction != types.SideNone && s.Score >= minScore
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s score=%d/%d", s.Symbol, s.Direction.Label(), s.Score, MaxScore)
}

// Scorer turns snapshots into signals.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the thresholds in use.
func (s *Scorer) Config() Config { return s.cfg }

// Direction picks the side from EMA alignment confirmed by the directional indicators.
// When the two disagree there is no direction.
func Direction(snap *market.Snapshot) types.Side {
	switch {
	case snap.EMAFast > snap.EMASlow && snap.PlusDI > snap.MinusDI:
		return types.SideBuy
	case snap.EMAFast < snap.EMASlow && snap.MinusDI > snap.PlusDI:
		return types.SideSell
	default:
		return types.SideNone
	}
}

// Score evaluates the five criteria for the snapshot's direction.
func (s *Scorer) Score(snap *market.Snapshot) Signal {
	sig := Signal{
		Symbol:    snap.Symbol,
		Price:     snap.Price,
		ATR:       snap.ATR,
		Timestamp: snap.Time,
	}

	dir := Direction(snap)
	if dir == types.SideNone {
		sig.Reasons = append(sig.Reasons, "no direction: EMA and DI disagree")
		return sig
	}
	if dir == types.SideSell && !s.cfg.AllowShorts {
		sig.Reasons = append(sig.Reasons, "short signal ignored: shorts disabled")
		return sig
	}
	sig.Direction = dir
	long := dir == types.SideBuy

	// hard filters
	if s.cfg.MaxATRPercent > 0 && snap.ATRPercent > s.cfg.MaxATRPercent {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("filtered: ATR %.2f%% above %.2f%%", snap.ATRPercent, s.cfg.MaxATRPercent))
		return sig
	}
	if long && snap.RSI >= s.cfg.RSIOverbought {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("filtered: RSI %.1f overbought", snap.RSI))
		return sig
	}
	if !long && snap.RSI <= s.cfg.RSIOversold {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("filtered: RSI %.1f oversold", snap.RSI))
		return sig
	}

	point := func(reason string) {
		sig.Score++
		sig.Reasons = append(sig.Reasons, reason)
	}

	trendOK := true
	if snap.HasTrend {
		if long {
			trendOK = snap.TrendEMAFast > snap.TrendEMASlow
		} else {
			trendOK = snap.TrendEMAFast < snap.TrendEMASlow
		}
	}
	if trendOK {
		point("trend: EMA aligned")
	}

	if snap.ADX >= s.cfg.MinADX {
		point(fmt.Sprintf("strength: ADX %.1f", snap.ADX))
	}

	if long && snap.RSI >= s.cfg.RSILongMin && snap.RSI <= s.cfg.RSILongMax ||
		!long && snap.RSI >= s.cfg.RSIShortMin && snap.RSI <= s.cfg.RSIShortMax {
		point(fmt.Sprintf("momentum: RSI %.1f", snap.RSI))
	}

	hist := snap.MACDHist * dir.Sign()
	prev := snap.PrevMACDHist * dir.Sign()
	if hist > 0 && hist > prev {
		point("macd: histogram expanding")
	}

	if snap.BBWidth >= s.cfg.MinBBWidth {
		point(fmt.Sprintf("volatility: BB width %.4f", snap.BBWidth))
	}

	return sig
}

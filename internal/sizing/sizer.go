// Package sizing converts balance, risk and stop distance into an exchange-valid order quantity.
package sizing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// ErrBelowMinimum is returned when the smallest valid order would not fit the margin budget.
var ErrBelowMinimum = errors.New("order below exchange minimum")

// Config holds risk parameters. Percent fields use 1.5 for 1.5%.
type Config struct {
	RiskPercent       float64 `json:"risk_percent"`
	Leverage          int     `json:"leverage"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	RewardRisk        float64 `json:"reward_risk"` // when set, TP distance = stop distance * RewardRisk
	UseATRStops       bool    `json:"use_atr_stops"`
	ATRStopMultiplier float64 `json:"atr_stop_multiplier"`
	ScoreRiskScaling  bool    `json:"score_risk_scaling"`
	MaxMarginPercent  float64 `json:"max_margin_percent"`
}

func DefaultConfig() Config {
	return Config{
		RiskPercent:       1,
		Leverage:          5,
		StopLossPercent:   1.5,
		TakeProfitPercent: 3,
		UseATRStops:       true,
		ATRStopMultiplier: 1.5,
		ScoreRiskScaling:  true,
		MaxMarginPercent:  25,
	}
}

// Validate checks the ranges a sizer can work with.
func (c Config) Validate() error {
	switch {
	case c.RiskPercent <= 0 || c.RiskPercent > 10:
		return fmt.Errorf("risk_percent must be in (0, 10], got %.2f", c.RiskPercent)
	case c.Leverage < 1 || c.Leverage > 100:
		return fmt.Errorf("leverage must be in [1, 100], got %d", c.Leverage)
	case c.StopLossPercent <= 0:
		return fmt.Errorf("stop_loss_percent must be positive")
	case c.TakeProfitPercent <= 0 && c.RewardRisk <= 0:
		return fmt.Errorf("either take_profit_percent or reward_risk must be set")
	case c.UseATRStops && c.ATRStopMultiplier <= 0:
		return fmt.Errorf("atr_stop_multiplier must be positive when use_atr_stops is on")
	case c.MaxMarginPercent <= 0 || c.MaxMarginPercent > 100:
		return fmt.Errorf("max_margin_percent must be in (0, 100], got %.2f", c.MaxMarginPercent)
	}
	return nil
}

// Input is everything needed to size one entry.
type Input struct {
	Balance     float64
	Price       float64
	Side        types.Side
	ATR         float64
	Score       int
	Constraints *exchange.TradingConstraints
}

// Plan is a sized order with its protective levels.
type Plan struct {
	Qty               float64
	Notional          float64
	Margin            float64
	Leverage          int
	StopPrice         float64
	TakeProfitPrice   float64
	StopPercent       float64
	TakeProfitPercent float64
	RiskAmount        float64
	Bumped            bool // quantity raised to the exchange minimum
	Capped            bool // quantity reduced by margin budget or max order size
}

type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

func (s *Sizer) Config() Config { return s.cfg }

// StopPercent returns the stop distance in percent, widened to the ATR stop when enabled.
func (s *Sizer) StopPercent(price, atr float64) float64 {
	stop := s.cfg.StopLossPercent
	if s.cfg.UseATRStops && atr > 0 && price > 0 {
		if atrStop := atr * s.cfg.ATRStopMultiplier / price * 100; atrStop > stop {
			stop = atrStop
		}
	}
	return stop
}

// TakeProfitPercent returns the target distance for a given stop distance.
func (s *Sizer) TakeProfitPercent(stopPercent float64) float64 {
	if s.cfg.RewardRisk > 0 {
		return stopPercent * s.cfg.RewardRisk
	}
	return s.cfg.TakeProfitPercent
}

// Size computes a plan. Quantities use decimal arithmetic so step flooring never drifts.
func (s *Sizer) Size(in Input) (*Plan, error) {
	if in.Balance <= 0 {
		return nil, fmt.Errorf("no balance to size from")
	}
	if in.Price <= 0 {
		return nil, fmt.Errorf("invalid price %.8f", in.Price)
	}
	if in.Side != types.SideBuy && in.Side != types.SideSell {
		return nil, fmt.Errorf("invalid side %q", in.Side)
	}
	c := in.Constraints
	if c == nil {
		c = &exchange.TradingConstraints{}
	}

	leverage := s.cfg.Leverage
	if c.MaxLeverage > 0 && float64(leverage) > c.MaxLeverage {
		leverage = int(c.MaxLeverage)
	}
	if leverage < 1 {
		leverage = 1
	}

	stopPct := s.StopPercent(in.Price, in.ATR)
	tpPct := s.TakeProfitPercent(stopPct)

	factor := 1.0
	if s.cfg.ScoreRiskScaling {
		factor = float64(in.Score) / 5
		if factor < 0.5 {
			factor = 0.5
		}
		if factor > 1 {
			factor = 1
		}
	}
	riskAmount := in.Balance * s.cfg.RiskPercent / 100 * factor

	price := decimal.NewFromFloat(in.Price)
	lev := decimal.NewFromInt(int64(leverage))
	maxMargin := decimal.NewFromFloat(in.Balance * s.cfg.MaxMarginPercent / 100)

	qty := decimal.NewFromFloat(riskAmount).Div(price.Mul(decimal.NewFromFloat(stopPct / 100)))
	plan := &Plan{Leverage: leverage, StopPercent: stopPct, TakeProfitPercent: tpPct, RiskAmount: riskAmount}

	if qty.Mul(price).Div(lev).GreaterThan(maxMargin) {
		qty = maxMargin.Mul(lev).Div(price)
		plan.Capped = true
	}

	step := decimal.NewFromFloat(c.QtyStep)
	qty = floorToStep(qty, step)

	minQty := decimal.NewFromFloat(c.MinOrderQty)
	if step.GreaterThan(minQty) {
		minQty = step
	}
	if c.MinNotional > 0 {
		byNotional := ceilToStep(decimal.NewFromFloat(c.MinNotional).Div(price), step)
		if byNotional.GreaterThan(minQty) {
			minQty = byNotional
		}
	}
	if qty.LessThan(minQty) {
		if minQty.Mul(price).Div(lev).GreaterThan(maxMargin) {
			return nil, fmt.Errorf("%w: min qty %s needs margin %s, budget %s",
				ErrBelowMinimum, minQty, minQty.Mul(price).Div(lev).StringFixed(2), maxMargin.StringFixed(2))
		}
		qty = minQty
		plan.Bumped = true
	}

	if c.MaxOrderQty > 0 {
		if maxQty := floorToStep(decimal.NewFromFloat(c.MaxOrderQty), step); qty.GreaterThan(maxQty) {
			qty = maxQty
			plan.Capped = true
		}
	}

	plan.Qty = qty.InexactFloat64()
	plan.Notional = qty.Mul(price).InexactFloat64()
	plan.Margin = qty.Mul(price).Div(lev).InexactFloat64()
	plan.TakeProfitPrice, plan.StopPrice = TargetPrices(in.Side, in.Price, tpPct, stopPct, c.TickSize)
	return plan, nil
}

// TargetPrices returns take-profit and stop-loss prices for an entry, rounded to tick.
func TargetPrices(side types.Side, entry, tpPercent, slPercent, tick float64) (tp, sl float64) {
	sign := side.Sign()
	tp = RoundToTick(entry*(1+sign*tpPercent/100), tick)
	sl = RoundToTick(entry*(1-sign*slPercent/100), tick)
	return tp, sl
}

// RoundToTick rounds price to the nearest multiple of tick. A zero tick leaves price unchanged.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	return decimal.NewFromFloat(price).Div(t).Round(0).Mul(t).InexactFloat64()
}

// FloorToStep floors qty to a multiple of step.
func FloorToStep(qty, step float64) float64 {
	return floorToStep(decimal.NewFromFloat(qty), decimal.NewFromFloat(step)).InexactFloat64()
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

func ceilToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Ceil().Mul(step)
}

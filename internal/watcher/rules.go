package watcher

import (
	"context"
	"fmt"

	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// checkTrailing follows the high (or low) water mark once profit reaches the activation
// level. The stop only ratchets in the trade's favour.
func (m *Manager) checkTrailing(ctx context.Context, w *watcher, t registry.Trade, price float64) string {
	cfg := m.cfg.Trailing
	long := t.Side == types.SideBuy

	if t.TrailingActive && t.TrailStop > 0 {
		if long && price <= t.TrailStop || !long && price >= t.TrailStop {
			return ReasonTrailingStop
		}
	}

	profit := t.PnLPercent(price)
	activate := !t.TrailingActive && profit >= cfg.ActivationPercent

	var moved bool
	updated, err := m.deps.Trades.Update(t.ID, func(tr *registry.Trade) {
		if price > tr.HighWater {
			tr.HighWater = price
		}
		if tr.LowWater == 0 || price < tr.LowWater {
			tr.LowWater = price
		}
		if activate {
			tr.TrailingActive = true
		}
		if !tr.TrailingActive {
			return
		}
		var stop float64
		if long {
			stop = tr.HighWater * (1 - cfg.TrailPercent/100)
			moved = stop > tr.TrailStop
		} else {
			stop = tr.LowWater * (1 + cfg.TrailPercent/100)
			moved = tr.TrailStop == 0 || stop < tr.TrailStop
		}
		if moved {
			tr.TrailStop = stop
		}
	})
	if err != nil {
		return ""
	}

	if activate {
		m.transition(w, StateTriggered, fmt.Sprintf("active at %.2f%% profit", profit))
	}
	if moved {
		w.mu.Lock()
		w.detail = fmt.Sprintf("stop %.6g", updated.TrailStop)
		w.mu.Unlock()
		if cfg.MoveExchangeStop && m.deps.Stops != nil && m.improvesStop(updated, updated.TrailStop) {
			if err := m.deps.Stops.MoveStopLoss(ctx, updated, updated.TrailStop); err != nil {
				m.log.Warn().Err(err).Str("symbol", t.Symbol).Msg("trailing stop not pushed to exchange")
			}
		}
	}
	return ""
}

// improvesStop reports whether stop is tighter than the trade's current stop-loss.
func (m *Manager) improvesStop(t registry.Trade, stop float64) bool {
	if t.SLPrice == 0 {
		return true
	}
	if t.Side == types.SideBuy {
		return stop > t.SLPrice
	}
	return stop < t.SLPrice
}

// checkBreakeven moves the stop-loss to entry plus a small offset once profit reaches the
// trigger, then exits if price comes back to that level.
func (m *Manager) checkBreakeven(ctx context.Context, w *watcher, t registry.Trade, price float64) string {
	cfg := m.cfg.Breakeven
	long := t.Side == types.SideBuy

	if w.currentState() == StateTriggered {
		if long && price <= w.breakevenLvl || !long && price >= w.breakevenLvl {
			return ReasonBreakeven
		}
		return ""
	}

	profit := t.PnLPercent(price)
	if profit < cfg.TriggerPercent {
		return ""
	}

	level := t.EntryPrice * (1 + t.Side.Sign()*cfg.OffsetPercent/100)
	updated, err := m.deps.Trades.Update(t.ID, func(tr *registry.Trade) {
		tr.BreakevenArmed = true
		if m.improvesStop(*tr, level) {
			tr.SLPrice = level
		}
	})
	if err != nil {
		return ""
	}
	w.breakevenLvl = level
	m.transition(w, StateTriggered, fmt.Sprintf("stop at %.6g", level))

	if cfg.MoveExchangeStop && m.deps.Stops != nil && updated.SLPrice == level {
		if err := m.deps.Stops.MoveStopLoss(ctx, updated, level); err != nil {
			m.log.Warn().Err(err).Str("symbol", t.Symbol).Msg("break-even stop not pushed to exchange")
		}
	}
	return ""
}

// checkSoftExit closes a profitable trade whose entry signal has faded, and any trade
// held longer than the time stop.
func (m *Manager) checkSoftExit(ctx context.Context, w *watcher, t registry.Trade, price float64) string {
	cfg := m.cfg.SoftExit
	age := m.now().Sub(t.StartTime)

	if cfg.MaxHold > 0 && age >= cfg.MaxHold.Std() {
		return ReasonTimeStop
	}
	if age < cfg.MinHold.Std() || m.deps.Signals == nil {
		return ""
	}
	profit := t.PnLPercent(price)
	if profit < cfg.MinProfitPercent {
		return ""
	}

	sig, err := m.deps.Signals.Evaluate(ctx, t.Symbol)
	if err != nil {
		m.log.Debug().Err(err).Str("symbol", t.Symbol).Msg("soft exit signal unavailable")
		return ""
	}
	if sig.Direction != t.Side || sig.Score < cfg.ExitScore {
		m.transition(w, StateTriggered, fmt.Sprintf("signal faded: %s score %d", sig.Direction.Label(), sig.Score))
		return ReasonSoftExit
	}
	return ""
}

// checkStopTarget watches the take-profit and stop-loss levels and notices positions the
// exchange closed on its own.
func (m *Manager) checkStopTarget(ctx context.Context, w *watcher, t registry.Trade, price float64) string {
	long := t.Side == types.SideBuy

	if t.TPPrice > 0 && (long && price >= t.TPPrice || !long && price <= t.TPPrice) {
		_, _ = m.deps.Trades.Update(t.ID, func(tr *registry.Trade) { tr.TPHit = true })
		return ReasonTakeProfit
	}
	if t.SLPrice > 0 && (long && price <= t.SLPrice || !long && price >= t.SLPrice) {
		_, _ = m.deps.Trades.Update(t.ID, func(tr *registry.Trade) { tr.SLHit = true })
		return ReasonStopLoss
	}

	every := m.cfg.StopTarget.ReconcileEvery
	if every <= 0 || m.deps.Positions == nil {
		return ""
	}
	w.ticks++
	if w.ticks%every != 0 {
		return ""
	}

	positions, err := m.deps.Positions.GetPositions(ctx, t.Symbol)
	if err != nil {
		m.log.Debug().Err(err).Str("symbol", t.Symbol).Msg("reconcile skipped")
		return ""
	}
	for _, p := range positions {
		if p.Symbol == t.Symbol && p.Side == t.Side && p.IsOpen() {
			return ""
		}
	}
	m.log.Warn().Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("position closed on exchange")
	return ReasonExchangeClosed
}

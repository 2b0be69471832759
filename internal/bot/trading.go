package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/notifications"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/safety"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/sizing"
	"github.com/ducminhle1904/crypto-futures-bot/internal/watcher"
)

// closeTailTimeout bounds the balance sync and persist that follow a finished exit.
const closeTailTimeout = 15 * time.Second

// Evaluate fetches a fresh snapshot and scores it. Watchers use it for the soft exit.
func (b *FuturesBot) Evaluate(ctx context.Context, symbol string) (signal.Signal, error) {
	snap, err := b.fetcher.Snapshot(ctx, symbol)
	if err != nil {
		return signal.Signal{}, err
	}
	sig := b.scorer.Score(snap)

	b.mu.Lock()
	b.lastSignals[symbol] = sig
	b.mu.Unlock()

	b.metrics.UpdatePrice(symbol, snap.Price)
	b.metrics.UpdateSignalScore(symbol, sig.Direction.Sign()*float64(sig.Score))
	b.health.UpdatePrice(symbol, snap.Price)
	return sig, nil
}

// openTrade reserves the symbol, sizes and places the entry, then hands the trade
// to the watchers. Any failure before the fill releases the reservation.
func (b *FuturesBot) openTrade(ctx context.Context, sig signal.Signal) error {
	symbol := sig.Symbol
	reserved, err := b.registry.Reserve(symbol, sig.Direction, sig.Score)
	if errors.Is(err, registry.ErrTradeExists) || errors.Is(err, registry.ErrMaxOpenTrades) {
		b.log.Debug().Str("symbol", symbol).Err(err).Msg("entry skipped")
		return nil
	}
	if err != nil {
		return err
	}

	filled := false
	defer func() {
		if !filled {
			_ = b.registry.Cancel(reserved.ID)
		}
	}()

	balance, err := b.RefreshBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	constraints, err := b.exchange.GetTradingConstraints(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to get trading constraints: %w", err)
	}

	plan, err := b.sizer.Size(sizing.Input{
		Balance:     balance,
		Price:       sig.Price,
		Side:        sig.Direction,
		ATR:         sig.ATR,
		Score:       sig.Score,
		Constraints: constraints,
	})
	if errors.Is(err, sizing.ErrBelowMinimum) {
		b.logger.LogWarning("Order below exchange minimum", "%s balance=%.2f price=%.6g", symbol, balance, sig.Price)
		return nil
	}
	if err != nil {
		return err
	}
	if err := safety.ValidateOrder(symbol, sig.Price, plan.Qty); err != nil {
		return err
	}

	if err := b.exchange.SetLeverage(ctx, symbol, plan.Leverage); err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}
	order, err := b.exchange.PlaceMarketOrder(ctx, exchange.OrderParams{
		Symbol:      symbol,
		Side:        sig.Direction,
		Quantity:    plan.Qty,
		OrderLinkID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to place entry order: %w", err)
	}

	fill := b.fillPrice(ctx, order, symbol, sig.Price)
	qty := plan.Qty
	if order.Quantity > 0 {
		qty = order.Quantity
	}
	tp, sl := sizing.TargetPrices(sig.Direction, fill, plan.TakeProfitPercent, plan.StopPercent, constraints.TickSize)

	trade, err := b.registry.Activate(reserved.ID, registry.Fill{
		Qty:        qty,
		Price:      fill,
		Leverage:   plan.Leverage,
		Margin:     qty * fill / float64(plan.Leverage),
		TPPercent:  plan.TakeProfitPercent,
		SLPercent:  plan.StopPercent,
		TPPrice:    tp,
		SLPrice:    sl,
		OrderID:    order.OrderID,
		FilledTime: b.now(),
	})
	if err != nil {
		return fmt.Errorf("entry filled but trade could not be activated: %w", err)
	}
	filled = true

	if err := b.exchange.SetTradingStop(ctx, symbol, tp, sl); err != nil {
		b.recordError("set stops "+symbol, err, true)
	}
	b.watchers.Spawn(b.watchCtx(), trade)

	b.persist(ctx)
	b.metrics.RecordTradeOpened(symbol, string(trade.Side))
	b.metrics.SetOpenTrades(len(b.registry.Open()))
	b.health.UpdateLastTrade()
	b.logger.LogTradeOpen(trade.ID, symbol, trade.Side.Label(), trade.Qty, trade.EntryPrice, trade.TPPrice, trade.SLPrice, trade.Score)
	b.notify(notifications.LevelSuccess, notifications.FormatTradeOpened(trade, b.cfg.Trading.DryRun))
	return nil
}

// ClosePosition exits a trade. The registry claim comes first so concurrent exit
// paths cannot both send an order; the registry entry and its margin are released
// together before anything else happens.
func (b *FuturesBot) ClosePosition(ctx context.Context, tradeID, reason string) error {
	t, err := b.registry.BeginClose(tradeID, reason)
	if err != nil {
		return err
	}

	exitPrice, err := b.exitOnExchange(ctx, t, reason)
	if err != nil {
		if abortErr := b.registry.AbortClose(tradeID); abortErr != nil {
			b.log.Error().Err(abortErr).Str("trade_id", tradeID).Msg("abort close failed")
		}
		b.recordError("close "+t.Symbol, err, true)
		return err
	}

	closed, err := b.registry.FinishClose(tradeID, exitPrice)
	if err != nil {
		return err
	}

	// The caller may be one of this trade's watchers, and StopTrade cancels its
	// context. The bookkeeping below must still reach the exchange and the store.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTailTimeout)
	defer cancel()
	b.watchers.StopTrade(tradeID)
	b.setCooldown(t.Symbol)

	balance := b.Balance()
	if fresh, err := b.RefreshBalance(ctx); err == nil {
		balance = fresh
	}
	b.guard.Record(closed.PnL)
	if b.guard.ShouldStopTrading(balance) {
		stats := b.guard.Stats()
		b.Pause()
		b.log.Warn().Float64("daily_pnl", stats.PnL).Msg("daily loss limit reached, entries paused")
		b.notify(notifications.LevelWarning, fmt.Sprintf("⛔ Daily loss limit reached (%.2f). Entries paused; the limit lifts at UTC midnight, /resume after that.", stats.PnL))
	}

	b.persist(ctx)
	b.journal.Record(closed)
	b.metrics.RecordTradeClosed(closed.Symbol, string(closed.Side), reason, closed.PnL)
	b.metrics.SetOpenTrades(len(b.registry.Open()))
	b.health.UpdateLastTrade()
	b.logger.LogTradeClose(closed.ID, closed.Symbol, closed.Side.Label(), reason, closed.EntryPrice, closed.ExitPrice, closed.PnL, closed.Held)
	b.notify(notifications.LevelInfo, notifications.FormatTradeClosed(closed, b.cfg.Trading.DryRun))
	return nil
}

// exitOnExchange sends the reduce-only order and returns the exit price. Positions
// the exchange already closed are finished at the latest price without an order.
func (b *FuturesBot) exitOnExchange(ctx context.Context, t registry.Trade, reason string) (float64, error) {
	if reason == watcher.ReasonExchangeClosed {
		return b.exitPriceFallback(ctx, t), nil
	}

	order, err := b.exchange.PlaceMarketOrder(ctx, exchange.OrderParams{
		Symbol:      t.Symbol,
		Side:        t.Side.Opposite(),
		Quantity:    t.Qty,
		ReduceOnly:  true,
		OrderLinkID: uuid.NewString(),
	})
	if errors.Is(err, exchange.ErrPositionNotFound) {
		b.log.Warn().Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("position already gone on exchange")
		return b.exitPriceFallback(ctx, t), nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to place exit order: %w", err)
	}
	return b.fillPrice(ctx, order, t.Symbol, b.exitPriceFallback(ctx, t)), nil
}

// exitPriceFallback prefers the price the exchange's own TP/SL filled at, then the live
// price, then the level the exchange most likely filled at.
func (b *FuturesBot) exitPriceFallback(ctx context.Context, t registry.Trade) float64 {
	if r, ok := b.exchange.(exchange.StopFillReporter); ok {
		if f, ok := r.LastStopFill(t.Symbol); ok && f.Price > 0 && !f.Time.Before(t.StartTime) {
			return f.Price
		}
	}
	if p, err := b.feed.Price(ctx, t.Symbol); err == nil && p > 0 {
		return p
	}
	switch {
	case t.TPHit && t.TPPrice > 0:
		return t.TPPrice
	case t.SLPrice > 0:
		return t.SLPrice
	}
	return t.EntryPrice
}

func (b *FuturesBot) fillPrice(ctx context.Context, order *exchange.Order, symbol string, fallback float64) float64 {
	if order != nil && order.AvgPrice > 0 {
		return order.AvgPrice
	}
	if p, err := b.exchange.GetLatestPrice(ctx, symbol); err == nil && p > 0 {
		return p
	}
	return fallback
}

// MoveStopLoss pushes a tightened stop to the exchange, rounded to the symbol's tick.
func (b *FuturesBot) MoveStopLoss(ctx context.Context, t registry.Trade, stop float64) error {
	tick := 0.0
	if c, err := b.exchange.GetTradingConstraints(ctx, t.Symbol); err == nil {
		tick = c.TickSize
	}
	stop = sizing.RoundToTick(stop, tick)
	if err := b.exchange.SetTradingStop(ctx, t.Symbol, 0, stop); err != nil {
		return fmt.Errorf("failed to move stop for %s: %w", t.Symbol, err)
	}
	b.log.Info().Str("trade_id", t.ID).Str("symbol", t.Symbol).Float64("stop", stop).Msg("exchange stop moved")
	return nil
}

// CloseSymbol closes the trade open on symbol.
func (b *FuturesBot) CloseSymbol(ctx context.Context, symbol string) error {
	t, ok := b.registry.Get(symbol)
	if !ok {
		return fmt.Errorf("%s: %w", symbol, registry.ErrTradeNotFound)
	}
	return b.ClosePosition(ctx, t.ID, ReasonManual)
}

// PanicCloseAll pauses entries, closes every open trade and cancels resting orders.
// It returns the number of trades closed.
func (b *FuturesBot) PanicCloseAll(ctx context.Context) (int, error) {
	b.Pause()
	b.notify(notifications.LevelWarning, "🚨 *Panic close* requested, closing all trades")

	var errs []error
	closed := 0
	for _, t := range b.registry.Open() {
		if err := b.ClosePosition(ctx, t.ID, ReasonPanic); err != nil {
			if errors.Is(err, registry.ErrAlreadyClosing) || errors.Is(err, registry.ErrTradeNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("%s: %w", t.Symbol, err))
			continue
		}
		closed++
	}
	for _, symbol := range b.cfg.Trading.Symbols {
		if err := b.exchange.CancelAllOrders(ctx, symbol); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", symbol, err))
		}
	}
	return closed, errors.Join(errs...)
}

// onWatcherTrigger is called by the watcher manager on every armed to triggered move.
func (b *FuturesBot) onWatcherTrigger(kind watcher.Kind, t registry.Trade) {
	b.metrics.RecordWatcherTrigger(string(kind))
	switch kind {
	case watcher.KindTrailing:
		b.notify(notifications.LevelInfo, fmt.Sprintf("🎯 Trailing stop active on %s %s at `%.6g`",
			t.Side.Label(), notifications.EscapeMarkdown(t.Symbol), t.TrailStop))
	case watcher.KindBreakeven:
		b.notify(notifications.LevelInfo, fmt.Sprintf("🛡 Stop moved to breakeven on %s %s (`%.6g`)",
			t.Side.Label(), notifications.EscapeMarkdown(t.Symbol), t.SLPrice))
	}
}

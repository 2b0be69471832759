package bot

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	boterrors "github.com/ducminhle1904/crypto-futures-bot/internal/errors"
	"github.com/ducminhle1904/crypto-futures-bot/internal/journal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/notifications"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/risk"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/watcher"
)

// TradeStatus is an open trade with its live valuation.
type TradeStatus struct {
	registry.Trade
	Price      float64 `json:"price"`
	PnL        float64 `json:"pnl"`
	PnLPercent float64 `json:"pnl_percent"`
}

// Status is a point-in-time view of the bot for chat and HTTP clients.
type Status struct {
	BotName      string           `json:"bot_name"`
	Exchange     string           `json:"exchange"`
	DryRun       bool             `json:"dry_run"`
	Paused       bool             `json:"paused"`
	DailyBlocked bool             `json:"daily_blocked"`
	Balance      float64          `json:"balance"`
	Uptime       time.Duration    `json:"uptime"`
	Symbols      []string         `json:"symbols"`
	Trades       []TradeStatus    `json:"trades"`
	Watchers     []watcher.Status `json:"watchers"`
	Capacity     registry.Stats   `json:"capacity"`
	Daily        risk.DailyStats  `json:"daily"`
	Session      journal.Summary  `json:"session"`
	Signals      []signal.Signal  `json:"signals"`
}

// UnrealizedPnL sums the live PnL of open trades.
func (s Status) UnrealizedPnL() float64 {
	total := 0.0
	for _, t := range s.Trades {
		total += t.PnL
	}
	return total
}

// Status collects balances, open trades valued at the latest price and watcher states.
func (b *FuturesBot) Status(ctx context.Context) Status {
	b.mu.RLock()
	started := b.started
	paused := b.paused
	balance := b.balance
	signals := make([]signal.Signal, 0, len(b.lastSignals))
	for _, s := range b.lastSignals {
		signals = append(signals, s)
	}
	b.mu.RUnlock()
	sort.Slice(signals, func(i, j int) bool { return signals[i].Symbol < signals[j].Symbol })

	st := Status{
		BotName:      b.cfg.BotName,
		Exchange:     b.exchange.GetName(),
		DryRun:       b.cfg.Trading.DryRun,
		Paused:       paused,
		DailyBlocked: b.guard.Blocked(),
		Balance:      balance,
		Symbols:      b.cfg.Trading.Symbols,
		Watchers:     b.watchers.Active(),
		Capacity:     b.registry.Stats(),
		Daily:        b.guard.Stats(),
		Session:      b.journal.Summary(),
		Signals:      signals,
	}
	if !started.IsZero() {
		st.Uptime = b.now().Sub(started).Round(time.Second)
	}
	for _, t := range b.registry.Open() {
		ts := TradeStatus{Trade: t, Price: t.EntryPrice}
		if p, err := b.feed.Price(ctx, t.Symbol); err == nil {
			ts.Price = p
		}
		ts.PnL = t.UnrealizedPnL(ts.Price)
		ts.PnLPercent = t.PnLPercent(ts.Price)
		st.Trades = append(st.Trades, ts)
	}
	return st
}

// Trades returns the open trades.
func (b *FuturesBot) Trades() []registry.Trade { return b.registry.Open() }

// Journal exposes the closed trades of this session.
func (b *FuturesBot) Journal() *journal.Journal { return b.journal }

// Pause stops new entries. Open trades stay managed by their watchers.
func (b *FuturesBot) Pause() {
	b.mu.Lock()
	changed := !b.paused
	b.paused = true
	b.mu.Unlock()
	b.metrics.SetPaused(true)
	if changed {
		b.log.Warn().Msg("entries paused")
	}
}

func (b *FuturesBot) Resume() {
	b.mu.Lock()
	changed := b.paused
	b.paused = false
	b.mu.Unlock()
	b.metrics.SetPaused(false)
	if changed {
		b.log.Info().Msg("entries resumed")
	}
}

func (b *FuturesBot) IsPaused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.paused
}

// Balance returns the last synced balance.
func (b *FuturesBot) Balance() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balance
}

// RefreshBalance syncs the tradable quote balance from the exchange.
func (b *FuturesBot) RefreshBalance(ctx context.Context) (float64, error) {
	balance, err := b.exchange.GetTradableBalance(ctx, b.cfg.Trading.QuoteAsset)
	if err != nil {
		return b.Balance(), fmt.Errorf("failed to fetch account balance: %w", err)
	}
	b.mu.Lock()
	old := b.balance
	b.balance = balance
	b.mu.Unlock()

	if old != balance {
		b.logger.LogBalanceSync(old, balance)
	}
	b.metrics.SetBalance(balance)
	return balance, nil
}

func (b *FuturesBot) watchCtx() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.runCtx == nil {
		return context.Background()
	}
	return b.runCtx
}

func (b *FuturesBot) setCooldown(symbol string) {
	if b.cfg.Trading.Cooldown <= 0 {
		return
	}
	b.mu.Lock()
	b.cooldowns[symbol] = b.now().Add(b.cfg.Trading.Cooldown.Std())
	b.mu.Unlock()
}

func (b *FuturesBot) inCooldown(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	until, ok := b.cooldowns[symbol]
	return ok && b.now().Before(until)
}

// persist saves open trades. Failures are logged; the exchange stays the source of truth.
func (b *FuturesBot) persist(ctx context.Context) {
	b.persistMu.Lock()
	defer b.persistMu.Unlock()
	if err := b.store.Save(ctx, b.registry.Snapshot()); err != nil {
		b.recordError("persist state", err, false)
	}
}

func (b *FuturesBot) notify(level, message string) {
	if err := b.notifier.SendAlert(level, message); err != nil {
		b.log.Warn().Err(err).Msg("notification failed")
	}
}

// recordError categorizes err for metrics and health, logs it and optionally alerts.
func (b *FuturesBot) recordError(op string, err error, alert bool) {
	botErr := boterrors.CategorizeError(err, "bot", op)
	b.metrics.RecordError(string(botErr.Category))
	b.health.AddError(op + ": " + err.Error())
	b.logger.LogError(op, err)
	if alert {
		b.notify(notifications.LevelError, notifications.FormatError(op, err))
	}
}

func modeSuffix(dryRun bool) string {
	if dryRun {
		return " (dry run)"
	}
	return ""
}

// printStartupInfo prints the bot configuration table
func (b *FuturesBot) printStartupInfo() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("FUTURES BOT")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Symbols", strings.Join(b.cfg.Trading.Symbols, ", ")},
		{"⏰ Timeframe", b.cfg.Market.Timeframe},
		{"🏪 Exchange", b.exchange.GetName()},
		{"🚨 Trading Mode", b.tradingModeString()},
		{"💰 Balance", fmt.Sprintf("$%.2f %s", b.Balance(), b.cfg.Trading.QuoteAsset)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"🎯 Min Score", fmt.Sprintf("%d/%d", b.cfg.Signal.MinScore, signal.MaxScore)},
		{"⚖️ Risk / Trade", fmt.Sprintf("%.2f%% @ %dx", b.cfg.Risk.RiskPercent, b.cfg.Risk.Leverage)},
		{"📦 Max Trades", fmt.Sprintf("%d", b.cfg.Trading.MaxOpenTrades)},
		{"👀 Watchers", watcherKinds(b.cfg.Watchers.Kinds())},
		{"🔁 Open Trades", fmt.Sprintf("%d", len(b.registry.Open()))},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 50, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Println()
}

func (b *FuturesBot) tradingModeString() string {
	if b.cfg.Trading.DryRun {
		return "🧪 DRY RUN (simulated orders)"
	}
	return "💰 LIVE TRADING (real money)"
}

func watcherKinds(kinds []watcher.Kind) string {
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ducminhle1904/crypto-futures-bot/internal/config"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/pricefeed"
	"github.com/ducminhle1904/crypto-futures-bot/internal/journal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/logger"
	"github.com/ducminhle1904/crypto-futures-bot/internal/market"
	"github.com/ducminhle1904/crypto-futures-bot/internal/monitoring"
	"github.com/ducminhle1904/crypto-futures-bot/internal/notifications"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/risk"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/sizing"
	"github.com/ducminhle1904/crypto-futures-bot/internal/state"
	"github.com/ducminhle1904/crypto-futures-bot/internal/watcher"
)

// Exit reasons raised by the operator rather than a watcher.
const (
	ReasonManual = "manual"
	ReasonPanic  = "panic"
)

var (
	ErrAlreadyStarted = errors.New("bot already started")
	ErrNotStarted     = errors.New("bot not started")
)

// Deps are the collaborators of the bot. Exchange is required; every other field
// falls back to a no-op or in-memory default.
type Deps struct {
	Exchange exchange.FuturesExchange
	Notifier notifications.Notifier
	Store    state.Store
	Journal  *journal.Journal
	Metrics  *monitoring.Metrics
	Health   *monitoring.HealthChecker
	Logger   *logger.Logger
}

// FuturesBot scans symbols for entries and manages each open trade until it exits.
type FuturesBot struct {
	cfg      *config.BotConfig
	exchange exchange.FuturesExchange
	registry *registry.Registry
	fetcher  *market.Fetcher
	scorer   *signal.Scorer
	sizer    *sizing.Sizer
	watchers *watcher.Manager
	feed     *pricefeed.Feed
	guard    *risk.DailyGuard

	notifier notifications.Notifier
	store    state.Store
	journal  *journal.Journal
	metrics  *monitoring.Metrics
	health   *monitoring.HealthChecker
	logger   *logger.Logger
	log      zerolog.Logger

	mu          sync.RWMutex
	balance     float64
	paused      bool
	cooldowns   map[string]time.Time
	lastSignals map[string]signal.Signal
	started     time.Time

	runCtx context.Context // guarded by mu

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	persistMu sync.Mutex
	now       func() time.Time
}

// New builds a bot from a validated config.
func New(cfg *config.BotConfig, deps Deps) (*FuturesBot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bot configuration is required")
	}
	if deps.Exchange == nil {
		return nil, fmt.Errorf("exchange is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NopNotifier{}
	}
	if deps.Store == nil {
		deps.Store = state.NopStore{}
	}
	if deps.Journal == nil {
		deps.Journal = journal.New(1000)
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Health == nil {
		deps.Health = monitoring.NewHealthChecker(3 * cfg.Trading.PollInterval.Std())
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	fetcher, err := market.NewFetcher(cfg.Market, deps.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to create market fetcher: %w", err)
	}

	b := &FuturesBot{
		cfg:         cfg,
		exchange:    deps.Exchange,
		registry:    registry.New(cfg.Trading.MaxOpenTrades),
		fetcher:     fetcher,
		scorer:      signal.NewScorer(cfg.Signal),
		sizer:       sizing.NewSizer(cfg.Risk),
		guard:       risk.NewDailyGuard(cfg.Trading.DailyLossLimitPercent),
		notifier:    deps.Notifier,
		store:       deps.Store,
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		health:      deps.Health,
		logger:      deps.Logger,
		log:         deps.Logger.Component("bot"),
		cooldowns:   make(map[string]time.Time),
		lastSignals: make(map[string]signal.Signal),
		now:         time.Now,
	}
	b.feed = pricefeed.New(cfg.PriceFeed, deps.Exchange, cfg.Trading.Symbols, deps.Logger.Zerolog())
	b.watchers = watcher.NewManager(cfg.Watchers, watcher.Deps{
		Trades:    b.registry,
		Prices:    b.feed,
		Closer:    b,
		Stops:     b,
		Positions: deps.Exchange,
		Signals:   b,
		Logger:    deps.Logger.Zerolog(),
		OnTrigger: b.onWatcherTrigger,
	})
	return b, nil
}

// Start connects, restores persisted trades and launches the scan loops. It returns
// once everything is running; use Wait to block until the loops end.
func (b *FuturesBot) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.group != nil {
		return ErrAlreadyStarted
	}

	if err := b.exchange.Connect(ctx); err != nil {
		b.health.SetConnected(false)
		return fmt.Errorf("failed to connect to exchange: %w", err)
	}
	b.health.SetConnected(true)

	if _, err := b.RefreshBalance(ctx); err != nil {
		b.logger.LogWarning("Could not sync account balance", "%v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.mu.Lock()
	b.runCtx = runCtx
	b.started = b.now()
	b.mu.Unlock()

	if err := b.restore(ctx); err != nil {
		b.logger.LogWarning("Could not restore trades", "%v", err)
	}

	b.printStartupInfo()

	g, gctx := errgroup.WithContext(runCtx)
	b.group = g
	if b.cfg.PriceFeed.Enabled {
		g.Go(func() error { return b.feed.Run(gctx) })
	}
	for _, symbol := range b.cfg.Trading.Symbols {
		symbol := symbol
		g.Go(func() error { return b.scanLoop(gctx, symbol) })
	}
	if b.cfg.Trading.StatusInterval > 0 {
		g.Go(func() error { return b.statusLoop(gctx) })
	}

	b.log.Info().Strs("symbols", b.cfg.Trading.Symbols).Bool("dry_run", b.cfg.Trading.DryRun).
		Str("exchange", b.exchange.GetName()).Msg("bot started")
	b.notify(notifications.LevelInfo, fmt.Sprintf("🚀 *%s started*%s\nSymbols: %s",
		notifications.EscapeMarkdown(b.cfg.BotName), modeSuffix(b.cfg.Trading.DryRun),
		notifications.EscapeMarkdown(strings.Join(b.cfg.Trading.Symbols, ", "))))
	return nil
}

// Wait blocks until the loops stop and returns the first loop error.
func (b *FuturesBot) Wait() error {
	b.runMu.Lock()
	g := b.group
	b.runMu.Unlock()
	if g == nil {
		return ErrNotStarted
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop cancels the loops and watchers, persists open trades and flushes the notifier.
// Open positions stay on the exchange and are picked up again on the next start.
func (b *FuturesBot) Stop() {
	b.runMu.Lock()
	cancel, g := b.cancel, b.group
	b.cancel = nil
	b.runMu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	if g != nil {
		_ = g.Wait()
	}
	b.watchers.StopAll()
	b.watchers.Wait()

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	b.persist(ctx)

	open := b.registry.Open()
	b.notify(notifications.LevelWarning, fmt.Sprintf("🛑 *%s stopped*, %d open trade(s) left on the exchange",
		notifications.EscapeMarkdown(b.cfg.BotName), len(open)))
	if c, ok := b.notifier.(interface{ Close() }); ok {
		c.Close()
	}

	if err := b.exchange.Disconnect(); err != nil {
		b.logger.Error("Error disconnecting from exchange: %v", err)
	}
	b.health.SetConnected(false)
	b.log.Info().Int("open_trades", len(open)).Msg("bot stopped")
	_ = b.logger.Close()
}

// scanLoop runs one scan per poll interval for symbol, starting immediately.
func (b *FuturesBot) scanLoop(ctx context.Context, symbol string) error {
	ticker := time.NewTicker(b.cfg.Trading.PollInterval.Std())
	defer ticker.Stop()

	for {
		b.checkAndTrade(ctx, symbol)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkAndTrade scores symbol and enters when the signal is strong enough.
func (b *FuturesBot) checkAndTrade(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in scan loop for %s: %v", symbol, r)
			b.health.AddError(fmt.Sprintf("panic in scan %s: %v", symbol, r))
		}
	}()
	defer b.health.UpdateLastCycle()

	if skip := b.skipReason(symbol); skip != "" {
		b.log.Debug().Str("symbol", symbol).Str("reason", skip).Msg("scan skipped")
		return
	}

	sig, err := b.Evaluate(ctx, symbol)
	if err != nil {
		if ctx.Err() == nil {
			b.recordError("scan "+symbol, err, false)
		}
		return
	}
	b.logger.LogSignal(symbol, sig.Direction.Label(), sig.Score, sig.Price, sig.Reasons)

	if !sig.Actionable(b.cfg.Signal.MinScore) {
		return
	}
	if b.cfg.Notifications.NotifySignals {
		b.notify(notifications.LevelInfo, notifications.FormatSignal(sig))
	}
	if err := b.openTrade(ctx, sig); err != nil && ctx.Err() == nil {
		b.recordError("open "+symbol, err, true)
	}
}

// skipReason explains why symbol is not scanned this cycle, empty when it is.
func (b *FuturesBot) skipReason(symbol string) string {
	switch {
	case b.IsPaused():
		return "paused"
	case b.guard.Blocked():
		return "daily loss limit"
	case b.registry.Has(symbol):
		return "trade open"
	case b.registry.AtCapacity():
		return "max open trades"
	case b.inCooldown(symbol):
		return "cooldown"
	}
	return ""
}

// statusLoop refreshes the balance and logs each open trade.
func (b *FuturesBot) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.Trading.StatusInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		balance, err := b.RefreshBalance(ctx)
		if err != nil && ctx.Err() == nil {
			b.logger.LogWarning("balance sync", "%v", err)
		}
		for _, t := range b.registry.Open() {
			price, err := b.feed.Price(ctx, t.Symbol)
			if err != nil {
				continue
			}
			b.logger.LogMarketStatus(t.Symbol, price, balance, true, t.PnLPercent(price))
		}
	}
}

// restore loads persisted trades, reconciles them with exchange positions and
// spawns their watchers.
func (b *FuturesBot) restore(ctx context.Context) error {
	saved, err := b.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	positions, err := b.exchange.GetPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get existing positions: %w", err)
	}

	live := make(map[string]exchange.Position)
	for _, p := range positions {
		if p.IsOpen() {
			live[p.Symbol] = p
		}
	}

	var kept []registry.Trade
	for _, t := range saved {
		p, ok := live[t.Symbol]
		if !ok || p.Side != t.Side {
			b.log.Warn().Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("dropping saved trade without exchange position")
			continue
		}
		if p.Size > 0 && p.Size != t.Qty {
			t.Qty = p.Size
		}
		kept = append(kept, t)
	}
	restored := b.registry.Restore(kept)

	adopted := 0
	for _, symbol := range b.cfg.Trading.Symbols {
		p, ok := live[symbol]
		if !ok || b.registry.Has(symbol) {
			continue
		}
		if err := b.adopt(p); err != nil {
			b.logger.LogWarning("adopt position", "%s: %v", symbol, err)
			continue
		}
		adopted++
	}

	for _, t := range b.registry.Open() {
		b.watchers.Spawn(b.watchCtx(), t)
	}
	b.metrics.SetOpenTrades(len(b.registry.Open()))
	if restored+adopted > 0 {
		b.log.Info().Int("restored", restored).Int("adopted", adopted).Msg("trades resumed")
		b.notify(notifications.LevelInfo, fmt.Sprintf("🔄 Resumed %d trade(s), adopted %d position(s)", restored, adopted))
	}
	b.persist(ctx)
	return nil
}

// adopt registers an exchange position the bot has no record of, using the
// position's own stops or the default percentages.
func (b *FuturesBot) adopt(p exchange.Position) error {
	t, err := b.registry.Reserve(p.Symbol, p.Side, 0)
	if err != nil {
		return err
	}
	lev := int(p.Leverage)
	if lev <= 0 {
		lev = b.cfg.Risk.Leverage
	}
	slPct := b.cfg.Risk.StopLossPercent
	tpPct := b.sizer.TakeProfitPercent(slPct)
	tp, sl := sizing.TargetPrices(p.Side, p.AvgPrice, tpPct, slPct, 0)
	if p.TakeProfit > 0 {
		tp = p.TakeProfit
	}
	if p.StopLoss > 0 {
		sl = p.StopLoss
	}

	_, err = b.registry.Activate(t.ID, registry.Fill{
		Qty:        p.Size,
		Price:      p.AvgPrice,
		Leverage:   lev,
		Margin:     p.Size * p.AvgPrice / float64(lev),
		TPPercent:  tpPct,
		SLPercent:  slPct,
		TPPrice:    tp,
		SLPrice:    sl,
		OrderID:    "adopted",
		FilledTime: b.now(),
	})
	if err != nil {
		_ = b.registry.Cancel(t.ID)
	}
	return err
}

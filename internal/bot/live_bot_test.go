package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-futures-bot/internal/config"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/exchangetest"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/paper"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/watcher"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) SendAlert(level, message string) error {
	n.mu.Lock()
	n.messages = append(n.messages, level+":"+message)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) contains(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

// memStore fails saves on a done context, like a network backed store would.
type memStore struct {
	mu       sync.Mutex
	trades   []registry.Trade
	saves    int
	rejected int
}

func (s *memStore) Save(ctx context.Context, trades []registry.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		s.rejected++
		return err
	}
	s.trades = append([]registry.Trade(nil), trades...)
	s.saves++
	return nil
}

func (s *memStore) Load(context.Context) ([]registry.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]registry.Trade(nil), s.trades...), nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saved() []registry.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]registry.Trade(nil), s.trades...)
}

func (s *memStore) rejectedSaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

func testConfig(symbols ...string) *config.BotConfig {
	cfg := config.Default()
	cfg.Trading.Symbols = symbols
	cfg.SetDryRun(true)
	cfg.Market.Timeframe = "1m"
	cfg.Market.TrendTimeframe = ""
	cfg.PriceFeed.Enabled = false
	cfg.PriceFeed.MaxAge = types.Duration(time.Nanosecond)
	cfg.Watchers.Interval = types.Duration(5 * time.Millisecond)
	cfg.Watchers.Trailing.Enabled = false
	cfg.Watchers.Breakeven.Enabled = false
	cfg.Watchers.SoftExit.Enabled = false
	cfg.Watchers.StopTarget.Enabled = false
	return cfg
}

type harness struct {
	bot      *FuturesBot
	ex       *exchangetest.Fake
	notifier *recordingNotifier
	store    *memStore
}

func newHarness(t *testing.T, cfg *config.BotConfig) *harness {
	t.Helper()
	ex := exchangetest.New()
	for _, s := range cfg.Trading.Symbols {
		ex.SetPrice(s, 100)
	}
	h := &harness{ex: ex, notifier: &recordingNotifier{}, store: &memStore{}}
	b, err := New(cfg, Deps{Exchange: ex, Notifier: h.notifier, Store: h.store})
	require.NoError(t, err)
	h.bot = b
	t.Cleanup(func() {
		b.watchers.StopAll()
		b.watchers.Wait()
	})
	return h
}

func longSignal(symbol string) signal.Signal {
	return signal.Signal{Symbol: symbol, Direction: types.SideBuy, Score: 5, Price: 100, ATR: 1, Timestamp: time.Now()}
}

func (h *harness) open(t *testing.T, symbol string) registry.Trade {
	t.Helper()
	require.NoError(t, h.bot.openTrade(context.Background(), longSignal(symbol)))
	tr, ok := h.bot.registry.Get(symbol)
	require.True(t, ok)
	return tr
}

func TestNewRequiresExchange(t *testing.T) {
	_, err := New(testConfig("BTCUSDT"), Deps{})
	assert.Error(t, err)
	_, err = New(nil, Deps{Exchange: exchangetest.New()})
	assert.Error(t, err)
}

func TestOpenTradePlacesOrderAndStops(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")

	assert.Equal(t, registry.StatusOpen, tr.Status)
	assert.Equal(t, types.SideBuy, tr.Side)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 5, tr.Score)
	assert.Greater(t, tr.Qty, 0.0)
	assert.InDelta(t, tr.Qty*100/5, tr.Margin, 1e-9)

	order, ok := h.ex.LastOrder()
	require.True(t, ok)
	assert.Equal(t, types.SideBuy, order.Side)
	assert.False(t, order.ReduceOnly)
	assert.NotEmpty(t, order.OrderLinkID)
	assert.Equal(t, 5, h.ex.Leverage("BTCUSDT"))

	tp, sl := h.ex.Stops("BTCUSDT")
	assert.Equal(t, tr.TPPrice, tp)
	assert.Equal(t, tr.SLPrice, sl)
	assert.Greater(t, tp, 100.0)
	assert.Less(t, sl, 100.0)

	assert.Len(t, h.store.saved(), 1)
	assert.True(t, h.notifier.contains("LONG BTCUSDT opened"))
	assert.True(t, h.notifier.contains("dry run"))
}

func TestOpenTradeOneTradePerSymbol(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	h.open(t, "BTCUSDT")
	require.NoError(t, h.bot.openTrade(context.Background(), longSignal("BTCUSDT")))
	assert.Equal(t, 1, h.ex.OrderCount())
	assert.Equal(t, "trade open", h.bot.skipReason("BTCUSDT"))
}

func TestOpenTradeOrderFailureReleasesSlot(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	h.ex.OrderErr = errors.New("insufficient margin")

	err := h.bot.openTrade(context.Background(), longSignal("BTCUSDT"))
	require.Error(t, err)
	assert.False(t, h.bot.registry.Has("BTCUSDT"))
	assert.Zero(t, h.bot.registry.Stats().AllocatedMargin)
}

func TestOpenTradeBelowMinimumSkips(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	h.ex.SetBalance(1)
	h.ex.SetConstraints(exchange.TradingConstraints{Symbol: "BTCUSDT", MinOrderQty: 10, QtyStep: 1, MinNotional: 1000, TickSize: 0.01, MaxLeverage: 10, MaxOrderQty: 1e6})

	require.NoError(t, h.bot.openTrade(context.Background(), longSignal("BTCUSDT")))
	assert.Zero(t, h.ex.OrderCount())
	assert.False(t, h.bot.registry.Has("BTCUSDT"))
}

func TestClosePositionReleasesAndJournals(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")
	h.ex.SetPrice("BTCUSDT", 103)

	require.NoError(t, h.bot.ClosePosition(context.Background(), tr.ID, watcher.ReasonTakeProfit))

	assert.False(t, h.bot.registry.Has("BTCUSDT"))
	assert.Zero(t, h.bot.registry.Stats().AllocatedMargin)

	order, _ := h.ex.LastOrder()
	assert.True(t, order.ReduceOnly)
	assert.Equal(t, types.SideSell, order.Side)
	assert.Equal(t, tr.Qty, order.Quantity)

	entries := h.bot.Journal().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, watcher.ReasonTakeProfit, entries[0].CloseReason)
	assert.InDelta(t, tr.Qty*3, entries[0].PnL, 1e-6)

	assert.Equal(t, "cooldown", h.bot.skipReason("BTCUSDT"))
	assert.Empty(t, h.store.saved())
	assert.True(t, h.notifier.contains("closed"))
}

func TestClosePositionSingleWinner(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.bot.ClosePosition(context.Background(), tr.ID, ReasonManual); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 2, h.ex.OrderCount())
	assert.Len(t, h.bot.Journal().Entries(), 1)
}

func TestClosePositionFailureKeepsTrade(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")
	h.ex.OrderErr = errors.New("connection reset")

	require.Error(t, h.bot.ClosePosition(context.Background(), tr.ID, ReasonManual))
	got, ok := h.bot.registry.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, registry.StatusOpen, got.Status)
	assert.True(t, h.notifier.contains("connection reset"))

	h.ex.OrderErr = nil
	require.NoError(t, h.bot.ClosePosition(context.Background(), tr.ID, ReasonManual))
}

func TestClosePositionAlreadyGoneOnExchange(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")
	h.ex.ClearPosition("BTCUSDT")
	h.ex.SetPrice("BTCUSDT", 98)

	require.NoError(t, h.bot.ClosePosition(context.Background(), tr.ID, ReasonManual))
	entries := h.bot.Journal().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 98.0, entries[0].ExitPrice)
}

func TestExchangeClosedSendsNoOrder(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")
	before := h.ex.OrderCount()

	require.NoError(t, h.bot.ClosePosition(context.Background(), tr.ID, watcher.ReasonExchangeClosed))
	assert.Equal(t, before, h.ex.OrderCount())
	assert.False(t, h.bot.registry.Has("BTCUSDT"))
}

func TestCloseSymbol(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	assert.ErrorIs(t, h.bot.CloseSymbol(context.Background(), "BTCUSDT"), registry.ErrTradeNotFound)

	h.open(t, "BTCUSDT")
	require.NoError(t, h.bot.CloseSymbol(context.Background(), "BTCUSDT"))
	assert.Equal(t, ReasonManual, h.bot.Journal().Entries()[0].CloseReason)
}

func TestPanicCloseAll(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT", "ETHUSDT"))
	h.open(t, "BTCUSDT")
	h.open(t, "ETHUSDT")

	n, err := h.bot.PanicCloseAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, h.bot.IsPaused())
	assert.Empty(t, h.bot.Trades())
	assert.Equal(t, 2, h.ex.CancelCalls)
	assert.Equal(t, "paused", h.bot.skipReason("BTCUSDT"))
}

func TestDailyLossLimitBlocksEntries(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Trading.DailyLossLimitPercent = 1
	h := newHarness(t, cfg)
	tr := h.open(t, "BTCUSDT")

	h.ex.SetPrice("BTCUSDT", 97)
	require.NoError(t, h.bot.ClosePosition(context.Background(), tr.ID, watcher.ReasonStopLoss))

	st := h.bot.Status(context.Background())
	assert.True(t, st.DailyBlocked)
	assert.True(t, st.Paused)
	assert.Equal(t, "paused", h.bot.skipReason("BTCUSDT"))
	assert.True(t, h.notifier.contains("Daily loss limit"))

	// resuming early still leaves the day's limit in force
	h.bot.Resume()
	assert.Equal(t, "daily loss limit", h.bot.skipReason("BTCUSDT"))
}

func TestMoveStopLossRoundsToTick(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	tr := h.open(t, "BTCUSDT")
	tp, _ := h.ex.Stops("BTCUSDT")

	require.NoError(t, h.bot.MoveStopLoss(context.Background(), tr, 100.1234))
	gotTP, sl := h.ex.Stops("BTCUSDT")
	assert.Equal(t, 100.12, sl)
	assert.Equal(t, tp, gotTP)
}

func TestPauseResumeAndStatus(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	h.open(t, "BTCUSDT")
	h.ex.SetPrice("BTCUSDT", 102)

	h.bot.Pause()
	st := h.bot.Status(context.Background())
	assert.True(t, st.Paused)
	assert.True(t, st.DryRun)
	require.Len(t, st.Trades, 1)
	assert.Equal(t, 102.0, st.Trades[0].Price)
	assert.InDelta(t, 2, st.Trades[0].PnLPercent, 1e-9)
	assert.Greater(t, st.UnrealizedPnL(), 0.0)
	assert.Equal(t, 1, st.Capacity.Open)

	h.bot.Resume()
	assert.False(t, h.bot.IsPaused())
}

func TestEvaluateScoresLatestCandles(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	from := time.Now().Add(-210 * time.Minute).Truncate(time.Minute)
	h.ex.SetKlines("BTCUSDT", exchange.Interval1m, exchangetest.Trend(100, 0.5, 200, from))

	sig, err := h.bot.Evaluate(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Greater(t, sig.Price, 100.0)
	assert.Equal(t, types.SideBuy, sig.Direction)

	st := h.bot.Status(context.Background())
	require.Len(t, st.Signals, 1)
	assert.Equal(t, sig.Score, st.Signals[0].Score)
}

func TestEvaluateNotEnoughCandles(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT"))
	h.ex.SetKlines("BTCUSDT", exchange.Interval1m, exchangetest.Trend(100, 0.2, 10, time.Now().Add(-time.Hour)))
	_, err := h.bot.Evaluate(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestRestoreReconcilesWithExchange(t *testing.T) {
	h := newHarness(t, testConfig("BTCUSDT", "ETHUSDT", "SOLUSDT"))
	h.store.trades = []registry.Trade{
		{ID: "btc", Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 0.5, EntryPrice: 100, Leverage: 5, Margin: 10, Status: registry.StatusOpen},
		{ID: "eth", Symbol: "ETHUSDT", Side: types.SideSell, Qty: 1, EntryPrice: 100, Leverage: 5, Margin: 20, Status: registry.StatusOpen},
	}
	h.ex.SetPosition(exchange.Position{Symbol: "BTCUSDT", Side: types.SideBuy, Size: 0.4, AvgPrice: 100})
	h.ex.SetPosition(exchange.Position{Symbol: "SOLUSDT", Side: types.SideSell, Size: 3, AvgPrice: 50, Leverage: 10, StopLoss: 52})

	require.NoError(t, h.bot.restore(context.Background()))

	btc, ok := h.bot.registry.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "btc", btc.ID)
	assert.Equal(t, 0.4, btc.Qty)

	assert.False(t, h.bot.registry.Has("ETHUSDT"))

	sol, ok := h.bot.registry.Get("SOLUSDT")
	require.True(t, ok)
	assert.Equal(t, types.SideSell, sol.Side)
	assert.Equal(t, 10, sol.Leverage)
	assert.Equal(t, 52.0, sol.SLPrice)
	assert.Less(t, sol.TPPrice, 50.0)

	assert.Len(t, h.store.saved(), 2)
}

func TestWatcherExitEndToEnd(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Watchers.StopTarget.Enabled = true
	h := newHarness(t, cfg)
	tr := h.open(t, "BTCUSDT")

	h.ex.SetPrice("BTCUSDT", tr.TPPrice+1)
	require.Eventually(t, func() bool { return len(h.bot.Journal().Entries()) == 1 }, 2*time.Second, 5*time.Millisecond)

	entry := h.bot.Journal().Entries()[0]
	assert.Equal(t, watcher.ReasonTakeProfit, entry.CloseReason)
	assert.True(t, entry.TPHit)
	assert.False(t, h.bot.registry.Has("BTCUSDT"))

	// the closing watcher's context is cancelled mid-exit; the snapshot must still land
	assert.Zero(t, h.store.rejectedSaves())
	assert.Empty(t, h.store.saved())
}

func TestWatcherExitPaths(t *testing.T) {
	waitTrade := func(t *testing.T, h *harness, cond func(registry.Trade) bool) {
		t.Helper()
		require.Eventually(t, func() bool {
			tr, ok := h.bot.registry.Get("BTCUSDT")
			return ok && cond(tr)
		}, 2*time.Second, 5*time.Millisecond)
	}

	cases := []struct {
		name   string
		setup  func(cfg *config.BotConfig)
		drive  func(t *testing.T, h *harness, tr registry.Trade)
		reason string
	}{
		{
			name:  "take profit",
			setup: func(cfg *config.BotConfig) { cfg.Watchers.StopTarget.Enabled = true },
			drive: func(t *testing.T, h *harness, tr registry.Trade) {
				h.ex.SetPrice("BTCUSDT", tr.TPPrice+1)
			},
			reason: watcher.ReasonTakeProfit,
		},
		{
			name:  "stop loss",
			setup: func(cfg *config.BotConfig) { cfg.Watchers.StopTarget.Enabled = true },
			drive: func(t *testing.T, h *harness, tr registry.Trade) {
				h.ex.SetPrice("BTCUSDT", tr.SLPrice-0.5)
			},
			reason: watcher.ReasonStopLoss,
		},
		{
			name: "trailing stop ratchets then fires",
			setup: func(cfg *config.BotConfig) {
				cfg.Watchers.Trailing = watcher.TrailingConfig{Enabled: true, ActivationPercent: 1, TrailPercent: 0.5, MoveExchangeStop: true}
			},
			drive: func(t *testing.T, h *harness, tr registry.Trade) {
				h.ex.SetPrice("BTCUSDT", 101.5)
				waitTrade(t, h, func(tr registry.Trade) bool { return tr.TrailingActive })
				h.ex.SetPrice("BTCUSDT", 103)
				waitTrade(t, h, func(tr registry.Trade) bool { return tr.TrailStop > 102.4 })
				require.Eventually(t, func() bool {
					_, sl := h.ex.Stops("BTCUSDT")
					return sl > 102.4 && sl < 102.5
				}, 2*time.Second, 5*time.Millisecond)
				h.ex.SetPrice("BTCUSDT", 102)
			},
			reason: watcher.ReasonTrailingStop,
		},
		{
			name: "breakeven after retrace",
			setup: func(cfg *config.BotConfig) {
				cfg.Watchers.Breakeven = watcher.BreakevenConfig{Enabled: true, TriggerPercent: 1, OffsetPercent: 0.1, MoveExchangeStop: true}
			},
			drive: func(t *testing.T, h *harness, tr registry.Trade) {
				h.ex.SetPrice("BTCUSDT", 101.5)
				waitTrade(t, h, func(tr registry.Trade) bool { return tr.BreakevenArmed })
				require.Eventually(t, func() bool {
					_, sl := h.ex.Stops("BTCUSDT")
					return sl > 100.09 && sl < 100.11
				}, 2*time.Second, 5*time.Millisecond)
				h.ex.SetPrice("BTCUSDT", 100.05)
			},
			reason: watcher.ReasonBreakeven,
		},
		{
			name: "time stop",
			setup: func(cfg *config.BotConfig) {
				cfg.Watchers.SoftExit = watcher.SoftExitConfig{Enabled: true, Interval: types.Duration(5 * time.Millisecond), MaxHold: types.Duration(time.Millisecond)}
			},
			drive:  func(t *testing.T, h *harness, tr registry.Trade) {},
			reason: watcher.ReasonTimeStop,
		},
		{
			name: "soft exit on faded signal",
			setup: func(cfg *config.BotConfig) {
				cfg.Watchers.SoftExit = watcher.SoftExitConfig{Enabled: true, Interval: types.Duration(5 * time.Millisecond), MinProfitPercent: 0.5, ExitScore: 2}
			},
			drive: func(t *testing.T, h *harness, tr registry.Trade) {
				from := time.Now().Add(-210 * time.Minute).Truncate(time.Minute)
				h.ex.SetKlines("BTCUSDT", exchange.Interval1m, exchangetest.Trend(130, -0.15, 200, from))
				h.ex.SetPrice("BTCUSDT", 101)
			},
			reason: watcher.ReasonSoftExit,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig("BTCUSDT")
			tc.setup(cfg)
			h := newHarness(t, cfg)
			tr := h.open(t, "BTCUSDT")
			require.Len(t, h.store.saved(), 1)

			tc.drive(t, h, tr)
			require.Eventually(t, func() bool { return len(h.bot.Journal().Entries()) == 1 }, 2*time.Second, 5*time.Millisecond)

			entry := h.bot.Journal().Entries()[0]
			assert.Equal(t, tc.reason, entry.CloseReason)
			assert.Equal(t, tr.ID, entry.ID)
			assert.False(t, h.bot.registry.Has("BTCUSDT"))
			assert.Zero(t, h.bot.registry.Stats().AllocatedMargin)
			assert.Zero(t, h.bot.watchers.Count())

			order, _ := h.ex.LastOrder()
			assert.True(t, order.ReduceOnly)

			assert.Zero(t, h.store.rejectedSaves())
			assert.Empty(t, h.store.saved())
		})
	}
}

func TestDryRunJournalUsesPaperStopFill(t *testing.T) {
	ctx := context.Background()
	market := exchangetest.New()
	market.SetPrice("BTCUSDT", 100)
	px := paper.New(market, exchange.PaperConfig{StartingBalance: 1000})

	b, err := New(testConfig("BTCUSDT"), Deps{Exchange: px, Store: &memStore{}})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.watchers.StopAll()
		b.watchers.Wait()
	})

	require.NoError(t, b.openTrade(ctx, longSignal("BTCUSDT")))
	tr, ok := b.registry.Get("BTCUSDT")
	require.True(t, ok)

	// price gaps through the simulated take-profit before the bot's exit order
	market.SetPrice("BTCUSDT", tr.TPPrice+2)
	require.NoError(t, b.ClosePosition(ctx, tr.ID, ReasonManual))

	entries := b.Journal().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, tr.TPPrice, entries[0].ExitPrice)
	assert.InDelta(t, px.Stats().RealizedPnL, entries[0].PnL, 1e-9)
}

func TestStartAndStop(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Trading.PollInterval = types.Duration(10 * time.Millisecond)
	h := newHarness(t, cfg)
	h.ex.SetPosition(exchange.Position{Symbol: "BTCUSDT", Side: types.SideBuy, Size: 1, AvgPrice: 100, Leverage: 5})

	require.NoError(t, h.bot.Start(context.Background()))
	assert.ErrorIs(t, h.bot.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, 1, h.ex.ConnectCalls)
	assert.Equal(t, 1000.0, h.bot.Balance())
	assert.True(t, h.bot.registry.Has("BTCUSDT"))

	done := make(chan error, 1)
	go func() { done <- h.bot.Wait() }()

	h.bot.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}
	assert.Len(t, h.store.saved(), 1)
	assert.True(t, h.notifier.contains("stopped"))
}

package watcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
)

// Deps are the collaborators shared by all watchers. Stops, Positions and Signals are
// optional; the rules that need them degrade when they are nil.
type Deps struct {
	Trades    TradeStore
	Prices    PriceSource
	Closer    Closer
	Stops     StopMover
	Positions PositionSource
	Signals   SignalSource
	Logger    zerolog.Logger

	// OnTrigger is called when a watcher moves to triggered.
	OnTrigger func(kind Kind, t registry.Trade)
}

type watcher struct {
	kind    Kind
	tradeID string
	symbol  string
	cancel  context.CancelFunc

	mu     sync.Mutex
	state  State
	detail string
	since  time.Time

	// rule scratch state, only touched by the watcher goroutine
	ticks        int
	breakevenLvl float64
}

func (w *watcher) status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{TradeID: w.tradeID, Symbol: w.symbol, Kind: w.kind, State: w.state, Detail: w.detail, Since: w.since}
}

func (w *watcher) currentState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Manager owns the watcher goroutines, one per enabled kind per trade.
type Manager struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	mu       sync.Mutex
	watchers map[string][]*watcher
	wg       sync.WaitGroup
}

func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With().Str("component", "watcher").Logger(),
		now:      time.Now,
		watchers: make(map[string][]*watcher),
	}
}

// Spawn starts the enabled watchers for an open trade. Spawning twice for the same
// trade is a no-op.
func (m *Manager) Spawn(ctx context.Context, t registry.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.watchers[t.ID]; ok {
		return
	}
	for _, kind := range m.cfg.Kinds() {
		wctx, cancel := context.WithCancel(ctx)
		w := &watcher{
			kind:    kind,
			tradeID: t.ID,
			symbol:  t.Symbol,
			cancel:  cancel,
			state:   StateArmed,
			since:   m.now(),
		}
		m.resume(w, t)
		m.watchers[t.ID] = append(m.watchers[t.ID], w)

		m.wg.Add(1)
		go m.run(wctx, w)
	}
	m.log.Info().Str("trade_id", t.ID).Str("symbol", t.Symbol).Int("watchers", len(m.watchers[t.ID])).Msg("watchers spawned")
}

// resume restores rule progress for trades loaded from persisted state.
func (m *Manager) resume(w *watcher, t registry.Trade) {
	switch {
	case w.kind == KindTrailing && t.TrailingActive:
		w.state = StateTriggered
		w.detail = "resumed trailing"
	case w.kind == KindBreakeven && t.BreakevenArmed:
		w.state = StateTriggered
		w.breakevenLvl = t.SLPrice
		w.detail = "resumed break-even"
	}
}

// StopTrade cancels the watchers of a trade. It does not wait, so it is safe to call
// from inside a watcher's exit path.
func (m *Manager) StopTrade(tradeID string) {
	m.mu.Lock()
	ws := m.watchers[tradeID]
	delete(m.watchers, tradeID)
	m.mu.Unlock()

	for _, w := range ws {
		w.cancel()
	}
}

// StopAll cancels every watcher.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.StopTrade(id)
	}
}

// Wait blocks until every watcher goroutine has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Active lists the watchers of trades still tracked, ordered by symbol and kind.
func (m *Manager) Active() []Status {
	m.mu.Lock()
	var out []Status
	for _, ws := range m.watchers {
		for _, w := range ws {
			out = append(out, w.status())
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Count returns the number of trades with watchers.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Manager) interval(kind Kind) time.Duration {
	if kind == KindSoftExit && m.cfg.SoftExit.Interval > 0 {
		return m.cfg.SoftExit.Interval.Std()
	}
	if m.cfg.Interval > 0 {
		return m.cfg.Interval.Std()
	}
	return 5 * time.Second
}

func (m *Manager) run(ctx context.Context, w *watcher) {
	defer m.wg.Done()
	defer m.transition(w, StateDone, "")

	ticker := time.NewTicker(m.interval(w.kind))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.tick(ctx, w) {
			return
		}
	}
}

// tick evaluates one watcher once and reports whether it is finished.
func (m *Manager) tick(ctx context.Context, w *watcher) bool {
	if ctx.Err() != nil {
		return true
	}

	// the trade may have been closed or replaced since the last tick
	t, ok := m.deps.Trades.GetByID(w.tradeID)
	if !ok {
		m.log.Debug().Str("trade_id", w.tradeID).Str("kind", string(w.kind)).Msg("trade gone, watcher finishing")
		return true
	}
	if t.Status != registry.StatusOpen {
		return false
	}

	price, err := m.deps.Prices.Price(ctx, t.Symbol)
	if err != nil || price <= 0 {
		m.log.Debug().Err(err).Str("symbol", t.Symbol).Msg("price unavailable")
		return false
	}

	var reason string
	switch w.kind {
	case KindTrailing:
		reason = m.checkTrailing(ctx, w, t, price)
	case KindBreakeven:
		reason = m.checkBreakeven(ctx, w, t, price)
	case KindSoftExit:
		reason = m.checkSoftExit(ctx, w, t, price)
	case KindStopTarget:
		reason = m.checkStopTarget(ctx, w, t, price)
	}
	if reason == "" {
		return false
	}
	return m.exit(ctx, w, t, reason, price)
}

// exit asks the engine to close. Losing the race to another exit path ends the watcher.
func (m *Manager) exit(ctx context.Context, w *watcher, t registry.Trade, reason string, price float64) bool {
	m.transition(w, StateTriggered, reason)
	m.log.Info().Str("trade_id", t.ID).Str("symbol", t.Symbol).Str("kind", string(w.kind)).
		Str("reason", reason).Float64("price", price).Msg("exit triggered")

	err := m.deps.Closer.ClosePosition(ctx, t.ID, reason)
	switch {
	case err == nil:
		return true
	case errors.Is(err, registry.ErrAlreadyClosing), errors.Is(err, registry.ErrTradeNotFound):
		m.log.Debug().Str("trade_id", t.ID).Str("kind", string(w.kind)).Msg("another exit path owns the trade")
		return true
	case ctx.Err() != nil:
		return true
	default:
		m.log.Error().Err(err).Str("trade_id", t.ID).Str("kind", string(w.kind)).Msg("exit failed, will retry")
		return false
	}
}

func (m *Manager) transition(w *watcher, to State, detail string) {
	w.mu.Lock()
	from := w.state
	if to.rank() < from.rank() || (to == from && detail == w.detail) {
		w.mu.Unlock()
		return
	}
	w.state = to
	if detail != "" {
		w.detail = detail
	}
	w.since = m.now()
	w.mu.Unlock()

	if from == to {
		return
	}
	m.log.Debug().Str("trade_id", w.tradeID).Str("symbol", w.symbol).Str("kind", string(w.kind)).
		Str("from", string(from)).Str("to", string(to)).Msg("watcher state")

	if to == StateTriggered && m.deps.OnTrigger != nil {
		if t, ok := m.deps.Trades.GetByID(w.tradeID); ok {
			m.deps.OnTrigger(w.kind, t)
		}
	}
}

// Package paper simulates order execution on top of a real market data source.
// It backs DRY_RUN: prices and candles are live, fills and balances are not.
package paper

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

const quoteAsset = "USDT"

type position struct {
	side     types.Side
	size     float64
	avgPrice float64
	leverage int
	tp       float64
	sl       float64
	updated  time.Time
}

// Stats summarizes the simulated account.
type Stats struct {
	WalletBalance float64
	RealizedPnL   float64
	FeesPaid      float64
	Orders        int
	StopsHit      int
}

// Exchange fills market orders instantly at the latest price of the wrapped source.
type Exchange struct {
	market exchange.FuturesExchange
	cfg    exchange.PaperConfig

	mu        sync.Mutex
	wallet    float64
	positions map[string]*position
	leverage  map[string]int
	stopFills map[string]exchange.StopFill
	stats     Stats
	now       func() time.Time
}

// New creates a simulated account funded with cfg.StartingBalance.
func New(market exchange.FuturesExchange, cfg exchange.PaperConfig) *Exchange {
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = 1000
	}
	if cfg.TakerFeeRate < 0 {
		cfg.TakerFeeRate = 0
	}
	return &Exchange{
		market:    market,
		cfg:       cfg,
		wallet:    cfg.StartingBalance,
		positions: make(map[string]*position),
		leverage:  make(map[string]int),
		stopFills: make(map[string]exchange.StopFill),
		now:       time.Now,
	}
}

func (e *Exchange) GetName() string { return "Paper(" + e.market.GetName() + ")" }
func (e *Exchange) IsDemo() bool    { return true }

func (e *Exchange) Connect(ctx context.Context) error { return e.market.Connect(ctx) }
func (e *Exchange) Disconnect() error                 { return e.market.Disconnect() }

// GetLatestPrice returns the live price and fires any simulated TP/SL it crosses.
func (e *Exchange) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := e.market.GetLatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.evaluateStopsLocked(symbol, price)
	e.mu.Unlock()
	return price, nil
}

func (e *Exchange) GetKlines(ctx context.Context, params exchange.KlineParams) ([]types.OHLCV, error) {
	return e.market.GetKlines(ctx, params)
}

func (e *Exchange) GetTradingConstraints(ctx context.Context, symbol string) (*exchange.TradingConstraints, error) {
	return e.market.GetTradingConstraints(ctx, symbol)
}

// GetTradableBalance is wallet balance minus the initial margin of open positions.
func (e *Exchange) GetTradableBalance(_ context.Context, asset string) (float64, error) {
	if asset != quoteAsset {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.availableLocked(), nil
}

func (e *Exchange) availableLocked() float64 {
	used := 0.0
	for _, p := range e.positions {
		used += p.size * p.avgPrice / float64(max(p.leverage, 1))
	}
	return math.Max(e.wallet-used, 0)
}

// GetPositions refreshes prices for the requested positions so simulated stops fire before reporting.
func (e *Exchange) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	e.mu.Lock()
	symbols := make([]string, 0, len(e.positions))
	for s := range e.positions {
		if symbol == "" || s == symbol {
			symbols = append(symbols, s)
		}
	}
	e.mu.Unlock()
	sort.Strings(symbols)

	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		price, err := e.GetLatestPrice(ctx, s)
		if err != nil {
			return nil, err
		}
		prices[s] = price
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchange.Position, 0, len(symbols))
	for _, s := range symbols {
		p, ok := e.positions[s]
		if !ok {
			continue
		}
		mark := prices[s]
		out = append(out, exchange.Position{
			Symbol:        s,
			Side:          p.side,
			Size:          p.size,
			AvgPrice:      p.avgPrice,
			MarkPrice:     mark,
			UnrealisedPnl: p.side.Sign() * (mark - p.avgPrice) * p.size,
			Leverage:      float64(p.leverage),
			TakeProfit:    p.tp,
			StopLoss:      p.sl,
			UpdatedTime:   p.updated,
		})
	}
	return out, nil
}

func (e *Exchange) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return exchange.WithDetails(&exchange.ExchangeError{Code: "INVALID_LEVERAGE", Message: "invalid leverage"}, "%d", leverage)
	}
	e.mu.Lock()
	e.leverage[symbol] = leverage
	e.mu.Unlock()
	return nil
}

// PlaceMarketOrder fills immediately with configured slippage and taker fee.
func (e *Exchange) PlaceMarketOrder(ctx context.Context, params exchange.OrderParams) (*exchange.Order, error) {
	if params.Quantity <= 0 {
		return nil, exchange.WithDetails(exchange.ErrOrderSizeTooSmall, "qty %.8f", params.Quantity)
	}
	price, err := e.market.GetLatestPrice(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}

	slip := e.cfg.SlippageBps / 10_000
	fill := price * (1 + params.Side.Sign()*slip)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.evaluateStopsLocked(params.Symbol, price)
	pos := e.positions[params.Symbol]

	if params.ReduceOnly {
		if pos == nil || pos.side == params.Side {
			return nil, exchange.WithDetails(exchange.ErrPositionNotFound, "%s", params.Symbol)
		}
		qty := math.Min(params.Quantity, pos.size)
		e.reduceLocked(params.Symbol, pos, qty, fill)
		return e.orderLocked(params, qty, fill), nil
	}

	if pos != nil && pos.side != params.Side {
		// one-way mode: an opposite order nets against the open position first
		qty := math.Min(params.Quantity, pos.size)
		e.reduceLocked(params.Symbol, pos, qty, fill)
		remaining := params.Quantity - qty
		if remaining <= 0 {
			return e.orderLocked(params, params.Quantity, fill), nil
		}
		params.Quantity = remaining
		pos = nil
	}

	lev := e.leverage[params.Symbol]
	if lev < 1 {
		lev = 1
	}
	margin := params.Quantity * fill / float64(lev)
	fee := params.Quantity * fill * e.cfg.TakerFeeRate
	if margin+fee > e.availableLocked()+1e-9 {
		return nil, exchange.WithDetails(exchange.ErrInsufficientBalance, "need %.2f, have %.2f", margin+fee, e.availableLocked())
	}

	e.wallet -= fee
	e.stats.FeesPaid += fee
	if pos == nil {
		pos = &position{side: params.Side, leverage: lev}
		e.positions[params.Symbol] = pos
	}
	pos.avgPrice = (pos.avgPrice*pos.size + fill*params.Quantity) / (pos.size + params.Quantity)
	pos.size += params.Quantity
	pos.updated = e.now()
	if params.TakeProfit > 0 {
		pos.tp = params.TakeProfit
	}
	if params.StopLoss > 0 {
		pos.sl = params.StopLoss
	}
	return e.orderLocked(params, params.Quantity, fill), nil
}

func (e *Exchange) orderLocked(params exchange.OrderParams, qty, fill float64) *exchange.Order {
	e.stats.Orders++
	return &exchange.Order{
		OrderID:     uuid.New().String(),
		OrderLinkID: params.OrderLinkID,
		Symbol:      params.Symbol,
		Side:        params.Side,
		Quantity:    qty,
		AvgPrice:    fill,
		Status:      "Filled",
		CreatedTime: e.now(),
	}
}

// reduceLocked realizes PnL on qty of pos at price.
func (e *Exchange) reduceLocked(symbol string, pos *position, qty, price float64) {
	pnl := pos.side.Sign() * (price - pos.avgPrice) * qty
	fee := qty * price * e.cfg.TakerFeeRate
	e.wallet += pnl - fee
	e.stats.RealizedPnL += pnl
	e.stats.FeesPaid += fee

	pos.size -= qty
	pos.updated = e.now()
	if pos.size <= 1e-12 {
		delete(e.positions, symbol)
	}
}

func (e *Exchange) evaluateStopsLocked(symbol string, price float64) {
	pos, ok := e.positions[symbol]
	if !ok {
		return
	}
	long := pos.side == types.SideBuy
	var level float64
	switch {
	case pos.tp > 0 && ((long && price >= pos.tp) || (!long && price <= pos.tp)):
		level = pos.tp
	case pos.sl > 0 && ((long && price <= pos.sl) || (!long && price >= pos.sl)):
		level = pos.sl
	default:
		return
	}
	e.reduceLocked(symbol, pos, pos.size, level)
	e.stats.StopsHit++
	e.stopFills[symbol] = exchange.StopFill{Symbol: symbol, Price: level, Time: e.now()}
}

// LastStopFill returns the most recent simulated TP/SL close on symbol.
func (e *Exchange) LastStopFill(symbol string) (exchange.StopFill, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.stopFills[symbol]
	return f, ok
}

// SetTradingStop stores TP/SL on the open position. Zero leaves a side unchanged.
func (e *Exchange) SetTradingStop(_ context.Context, symbol string, takeProfit, stopLoss float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[symbol]
	if !ok {
		return exchange.WithDetails(exchange.ErrPositionNotFound, "%s", symbol)
	}
	if takeProfit > 0 {
		pos.tp = takeProfit
	}
	if stopLoss > 0 {
		pos.sl = stopLoss
	}
	return nil
}

// CancelAllOrders is a no-op: the simulator has no resting orders.
func (e *Exchange) CancelAllOrders(context.Context, string) error { return nil }

// Stats returns a snapshot of the simulated account.
func (e *Exchange) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.WalletBalance = e.wallet
	return s
}

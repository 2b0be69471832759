// Package exchangetest provides an in-memory exchange.FuturesExchange for tests.
package exchangetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// Fake is a scriptable exchange. Zero value is not usable; call New.
type Fake struct {
	mu          sync.Mutex
	prices      map[string]float64
	klines      map[string][]types.OHLCV // key: symbol|interval
	constraints map[string]*exchange.TradingConstraints
	positions   map[string]exchange.Position
	balance     float64
	leverage    map[string]int
	stops       map[string][2]float64

	Orders       []exchange.OrderParams
	OrderErr     error
	PriceErr     error
	KlineErr     error
	CancelCalls  int
	FillPrice    float64 // when zero, orders fill at the current price
	TrackOrders  bool    // when true, orders open/close positions
	ConnectCalls int
}

// New returns a fake with a 1000 USDT balance.
func New() *Fake {
	return &Fake{
		prices:      make(map[string]float64),
		klines:      make(map[string][]types.OHLCV),
		constraints: make(map[string]*exchange.TradingConstraints),
		positions:   make(map[string]exchange.Position),
		leverage:    make(map[string]int),
		stops:       make(map[string][2]float64),
		balance:     1000,
		TrackOrders: true,
	}
}

func (f *Fake) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	f.prices[symbol] = price
	f.mu.Unlock()
}

func (f *Fake) SetBalance(v float64) {
	f.mu.Lock()
	f.balance = v
	f.mu.Unlock()
}

func (f *Fake) SetKlines(symbol string, interval exchange.KlineInterval, candles []types.OHLCV) {
	f.mu.Lock()
	f.klines[symbol+"|"+string(interval)] = candles
	f.mu.Unlock()
}

func (f *Fake) SetConstraints(c exchange.TradingConstraints) {
	f.mu.Lock()
	f.constraints[c.Symbol] = &c
	f.mu.Unlock()
}

func (f *Fake) SetPosition(p exchange.Position) {
	f.mu.Lock()
	f.positions[p.Symbol] = p
	f.mu.Unlock()
}

func (f *Fake) ClearPosition(symbol string) {
	f.mu.Lock()
	delete(f.positions, symbol)
	f.mu.Unlock()
}

func (f *Fake) Stops(symbol string) (tp, sl float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stops[symbol]
	return s[0], s[1]
}

func (f *Fake) Leverage(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leverage[symbol]
}

func (f *Fake) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Orders)
}

func (f *Fake) LastOrder() (exchange.OrderParams, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Orders) == 0 {
		return exchange.OrderParams{}, false
	}
	return f.Orders[len(f.Orders)-1], true
}

func (f *Fake) GetName() string { return "Fake" }
func (f *Fake) IsDemo() bool    { return true }

func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	f.ConnectCalls++
	f.mu.Unlock()
	return nil
}

func (f *Fake) Disconnect() error { return nil }

func (f *Fake) GetLatestPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PriceErr != nil {
		return 0, f.PriceErr
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, exchange.WithDetails(exchange.ErrInvalidSymbol, "%s", symbol)
	}
	return p, nil
}

func (f *Fake) GetKlines(_ context.Context, params exchange.KlineParams) ([]types.OHLCV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.KlineErr != nil {
		return nil, f.KlineErr
	}
	candles := f.klines[params.Symbol+"|"+string(params.Interval)]
	if params.Limit > 0 && len(candles) > params.Limit {
		candles = candles[len(candles)-params.Limit:]
	}
	out := make([]types.OHLCV, len(candles))
	copy(out, candles)
	return out, nil
}

func (f *Fake) GetTradingConstraints(_ context.Context, symbol string) (*exchange.TradingConstraints, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.constraints[symbol]; ok {
		cp := *c
		return &cp, nil
	}
	return &exchange.TradingConstraints{Symbol: symbol, MinOrderQty: 0.001, MaxOrderQty: 1e6, QtyStep: 0.001, MinNotional: 5, TickSize: 0.01, MaxLeverage: 100}, nil
}

func (f *Fake) GetTradableBalance(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *Fake) GetPositions(_ context.Context, symbol string) ([]exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exchange.Position
	for s, p := range f.positions {
		if symbol == "" || s == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) SetLeverage(_ context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	f.leverage[symbol] = leverage
	f.mu.Unlock()
	return nil
}

func (f *Fake) PlaceMarketOrder(_ context.Context, params exchange.OrderParams) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Orders = append(f.Orders, params)
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	fill := f.FillPrice
	if fill == 0 {
		fill = f.prices[params.Symbol]
	}

	if f.TrackOrders {
		pos, open := f.positions[params.Symbol]
		switch {
		case params.ReduceOnly && !open:
			return nil, exchange.WithDetails(exchange.ErrPositionNotFound, "%s", params.Symbol)
		case params.ReduceOnly || (open && pos.Side != params.Side):
			delete(f.positions, params.Symbol)
			delete(f.stops, params.Symbol)
		default:
			f.positions[params.Symbol] = exchange.Position{
				Symbol:   params.Symbol,
				Side:     params.Side,
				Size:     pos.Size + params.Quantity,
				AvgPrice: fill,
			}
		}
	}

	return &exchange.Order{
		OrderID:     fmt.Sprintf("fake-%d", len(f.Orders)),
		OrderLinkID: params.OrderLinkID,
		Symbol:      params.Symbol,
		Side:        params.Side,
		Quantity:    params.Quantity,
		AvgPrice:    fill,
		Status:      "Filled",
		CreatedTime: time.Now(),
	}, nil
}

func (f *Fake) SetTradingStop(_ context.Context, symbol string, takeProfit, stopLoss float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.stops[symbol]
	if takeProfit > 0 {
		cur[0] = takeProfit
	}
	if stopLoss > 0 {
		cur[1] = stopLoss
	}
	f.stops[symbol] = cur
	return nil
}

func (f *Fake) CancelAllOrders(context.Context, string) error {
	f.mu.Lock()
	f.CancelCalls++
	f.mu.Unlock()
	return nil
}

// Trend builds n one-minute candles moving linearly from start by step per candle
// with a small oscillation so range based indicators stay defined.
func Trend(start, step float64, n int, from time.Time) []types.OHLCV {
	out := make([]types.OHLCV, n)
	price := start
	for i := 0; i < n; i++ {
		wiggle := 0.002 * price
		if i%2 == 0 {
			wiggle = -wiggle
		}
		open := price
		closePrice := price + step + wiggle*0.1
		high := max(open, closePrice) + abs(wiggle)
		low := min(open, closePrice) - abs(wiggle)
		out[i] = types.OHLCV{
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    100 + float64(i%7),
			Timestamp: from.Add(time.Duration(i) * time.Minute),
		}
		price = closePrice
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

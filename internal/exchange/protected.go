package exchange

import (
	"context"
	"errors"

	boterrors "github.com/ducminhle1904/crypto-futures-bot/internal/errors"
	"github.com/ducminhle1904/crypto-futures-bot/internal/recovery"
	"github.com/ducminhle1904/crypto-futures-bot/internal/safety"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

const (
	groupTrading    = "trading"
	groupMarketData = "market_data"
	groupAccount    = "account_data"
)

// ProtectedExchange guards every call with a rate limiter, a circuit breaker and retries.
// Order placement is never retried: a timed out market order may still have filled.
type ProtectedExchange struct {
	inner    FuturesExchange
	breakers *safety.CircuitBreakerManager
	limiters *safety.RateLimiterManager
	recovery *recovery.RecoveryHandler
}

// NewProtectedExchange wraps inner. Limits follow Bybit's default per-UID quotas.
func NewProtectedExchange(inner FuturesExchange, breakers *safety.CircuitBreakerManager, rh *recovery.RecoveryHandler) *ProtectedExchange {
	limiters := safety.NewRateLimiterManager()
	limiters.GetOrCreate(groupTrading, 10, 10)
	limiters.GetOrCreate(groupMarketData, 20, 20)
	limiters.GetOrCreate(groupAccount, 10, 5)

	return &ProtectedExchange{
		inner:    inner,
		breakers: breakers,
		limiters: limiters,
		recovery: rh,
	}
}

// Unwrap returns the decorated exchange.
func (p *ProtectedExchange) Unwrap() FuturesExchange { return p.inner }

func (p *ProtectedExchange) guard(ctx context.Context, group string, fn func(ctx context.Context) error) error {
	if err := p.limiters.GetOrCreate(group, 10, 10).Wait(ctx); err != nil {
		return err
	}
	cfg := safety.DefaultCircuitBreakerConfig()
	cfg.IsFailure = TripsBreaker
	cb := p.breakers.GetOrCreate(group, cfg)
	return cb.Call(func() error { return fn(ctx) })
}

// TripsBreaker reports whether err means the exchange is unhealthy: transport
// failures, timeouts, rate limits and temporary server errors. Rejections such as a
// missing position or insufficient margin prove the exchange is answering, and a
// cancelled caller says nothing about it at all.
func TripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	be := boterrors.CategorizeError(err, "", "")
	switch be.Category {
	case boterrors.ErrorCategoryNetwork, boterrors.ErrorCategoryTimeout,
		boterrors.ErrorCategoryRateLimit, boterrors.ErrorCategoryTemporary:
		return true
	case boterrors.ErrorCategoryExchange:
		return be.Retryable
	}
	return false
}

func (p *ProtectedExchange) retry(ctx context.Context, group, op string, fn func(ctx context.Context) error) error {
	return p.recovery.Execute(ctx, p.inner.GetName(), op, func(ctx context.Context) error {
		return p.guard(ctx, group, fn)
	})
}

func (p *ProtectedExchange) GetName() string { return p.inner.GetName() }
func (p *ProtectedExchange) IsDemo() bool    { return p.inner.IsDemo() }

func (p *ProtectedExchange) Connect(ctx context.Context) error {
	return p.retry(ctx, groupAccount, "connect", p.inner.Connect)
}

func (p *ProtectedExchange) Disconnect() error { return p.inner.Disconnect() }

func (p *ProtectedExchange) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := p.retry(ctx, groupMarketData, "get_latest_price", func(ctx context.Context) error {
		var err error
		price, err = p.inner.GetLatestPrice(ctx, symbol)
		return err
	})
	return price, err
}

func (p *ProtectedExchange) GetKlines(ctx context.Context, params KlineParams) ([]types.OHLCV, error) {
	var klines []types.OHLCV
	err := p.retry(ctx, groupMarketData, "get_klines", func(ctx context.Context) error {
		var err error
		klines, err = p.inner.GetKlines(ctx, params)
		return err
	})
	return klines, err
}

func (p *ProtectedExchange) GetTradingConstraints(ctx context.Context, symbol string) (*TradingConstraints, error) {
	var c *TradingConstraints
	err := p.retry(ctx, groupMarketData, "get_trading_constraints", func(ctx context.Context) error {
		var err error
		c, err = p.inner.GetTradingConstraints(ctx, symbol)
		return err
	})
	return c, err
}

func (p *ProtectedExchange) GetTradableBalance(ctx context.Context, asset string) (float64, error) {
	var balance float64
	err := p.retry(ctx, groupAccount, "get_balance", func(ctx context.Context) error {
		var err error
		balance, err = p.inner.GetTradableBalance(ctx, asset)
		return err
	})
	return balance, err
}

func (p *ProtectedExchange) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	var positions []Position
	err := p.retry(ctx, groupAccount, "get_positions", func(ctx context.Context) error {
		var err error
		positions, err = p.inner.GetPositions(ctx, symbol)
		return err
	})
	return positions, err
}

func (p *ProtectedExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return p.retry(ctx, groupTrading, "set_leverage", func(ctx context.Context) error {
		return p.inner.SetLeverage(ctx, symbol, leverage)
	})
}

func (p *ProtectedExchange) PlaceMarketOrder(ctx context.Context, params OrderParams) (*Order, error) {
	var order *Order
	err := p.guard(ctx, groupTrading, func(ctx context.Context) error {
		var err error
		order, err = p.inner.PlaceMarketOrder(ctx, params)
		return err
	})
	return order, err
}

func (p *ProtectedExchange) SetTradingStop(ctx context.Context, symbol string, takeProfit, stopLoss float64) error {
	return p.retry(ctx, groupTrading, "set_trading_stop", func(ctx context.Context) error {
		return p.inner.SetTradingStop(ctx, symbol, takeProfit, stopLoss)
	})
}

func (p *ProtectedExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	return p.retry(ctx, groupTrading, "cancel_all_orders", func(ctx context.Context) error {
		return p.inner.CancelAllOrders(ctx, symbol)
	})
}

// LastStopFill forwards to the wrapped exchange when it reports stop fills.
func (p *ProtectedExchange) LastStopFill(symbol string) (StopFill, bool) {
	if r, ok := p.inner.(StopFillReporter); ok {
		return r.LastStopFill(symbol)
	}
	return StopFill{}, false
}

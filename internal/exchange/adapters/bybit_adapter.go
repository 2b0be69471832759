package adapters

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/bybit"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// BybitAdapter implements exchange.FuturesExchange for Bybit linear perpetuals.
type BybitAdapter struct {
	client    *bybit.Client
	connected atomic.Bool
}

// NewBybitAdapter creates a new Bybit adapter instance
func NewBybitAdapter(config *exchange.BybitConfig) *BybitAdapter {
	cfg := bybit.Config{}
	if config != nil {
		cfg = bybit.Config{
			APIKey:    config.APIKey,
			APISecret: config.APISecret,
			Testnet:   config.Testnet,
			Demo:      config.Demo,
		}
	}
	return &BybitAdapter{client: bybit.NewClient(cfg)}
}

func (b *BybitAdapter) GetName() string { return "Bybit" }

func (b *BybitAdapter) IsDemo() bool { return b.client.IsDemo() || b.client.IsTestnet() }

// Connect verifies connectivity with a public market data request.
func (b *BybitAdapter) Connect(ctx context.Context) error {
	if _, err := b.client.GetLatestPrice(ctx, "BTCUSDT"); err != nil {
		return exchange.WithDetails(exchange.ErrConnectionFailed, "%v", err)
	}
	b.connected.Store(true)
	return nil
}

func (b *BybitAdapter) Disconnect() error {
	b.connected.Store(false)
	return nil
}

func (b *BybitAdapter) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := b.client.GetLatestPrice(ctx, symbol)
	return price, convertError(err)
}

func (b *BybitAdapter) GetKlines(ctx context.Context, params exchange.KlineParams) ([]types.OHLCV, error) {
	candles, err := b.client.GetKlines(ctx, params.Symbol, string(params.Interval), params.Limit)
	return candles, convertError(err)
}

func (b *BybitAdapter) GetTradingConstraints(ctx context.Context, symbol string) (*exchange.TradingConstraints, error) {
	info, err := b.client.Instruments().Get(ctx, symbol)
	if err != nil {
		return nil, convertError(err)
	}
	return &exchange.TradingConstraints{
		Symbol:      info.Symbol,
		MinOrderQty: info.MinOrderQty,
		MaxOrderQty: info.MaxOrderQty,
		QtyStep:     info.QtyStep,
		MinNotional: info.MinNotional,
		TickSize:    info.TickSize,
		MaxLeverage: info.MaxLeverage,
	}, nil
}

func (b *BybitAdapter) GetTradableBalance(ctx context.Context, asset string) (float64, error) {
	bal, err := b.client.GetCoinBalance(ctx, asset)
	if err != nil {
		return 0, convertError(err)
	}
	return bal.AvailableToWithdraw, nil
}

func (b *BybitAdapter) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	infos, err := b.client.GetPositions(ctx, symbol)
	if err != nil {
		return nil, convertError(err)
	}
	positions := make([]exchange.Position, 0, len(infos))
	for _, p := range infos {
		positions = append(positions, exchange.Position{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Size:          p.Size,
			AvgPrice:      p.AvgPrice,
			MarkPrice:     p.MarkPrice,
			UnrealisedPnl: p.UnrealisedPnl,
			Leverage:      p.Leverage,
			TakeProfit:    p.TakeProfit,
			StopLoss:      p.StopLoss,
			UpdatedTime:   p.UpdatedTime,
		})
	}
	return positions, nil
}

func (b *BybitAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return convertError(b.client.SetLeverage(ctx, symbol, leverage))
}

// PlaceMarketOrder submits the order and then asks order history for the fill price.
// A missing fill price is left at zero; callers fall back to the last trade price.
func (b *BybitAdapter) PlaceMarketOrder(ctx context.Context, params exchange.OrderParams) (*exchange.Order, error) {
	ack, err := b.client.PlaceMarketOrder(ctx, bybit.MarketOrderRequest{
		Symbol:      params.Symbol,
		Side:        params.Side,
		Qty:         params.Quantity,
		ReduceOnly:  params.ReduceOnly,
		OrderLinkID: params.OrderLinkID,
		TakeProfit:  params.TakeProfit,
		StopLoss:    params.StopLoss,
	})
	if err != nil {
		if params.ReduceOnly && bybit.IsNoPositionError(err) {
			return nil, exchange.WithDetails(exchange.ErrPositionNotFound, "%s", params.Symbol)
		}
		return nil, convertError(err)
	}

	order := &exchange.Order{
		OrderID:     ack.OrderID,
		OrderLinkID: ack.OrderLinkID,
		Symbol:      params.Symbol,
		Side:        params.Side,
		Quantity:    params.Quantity,
		Status:      "New",
		CreatedTime: time.Now(),
	}
	if avg, status, err := b.client.GetOrderAvgPrice(ctx, params.Symbol, ack.OrderID); err == nil {
		order.AvgPrice = avg
		order.Status = status
	}
	return order, nil
}

func (b *BybitAdapter) SetTradingStop(ctx context.Context, symbol string, takeProfit, stopLoss float64) error {
	return convertError(b.client.SetTradingStop(ctx, symbol, takeProfit, stopLoss))
}

func (b *BybitAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return convertError(b.client.CancelAllOrders(ctx, symbol))
}

// convertError maps Bybit API errors onto the exchange error vocabulary.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case bybit.IsAuthenticationError(err):
		return exchange.WithDetails(exchange.ErrAuthenticationFailed, "%v", err)
	case bybit.IsInsufficientBalanceError(err):
		return exchange.WithDetails(exchange.ErrInsufficientBalance, "%v", err)
	case bybit.IsRetryableError(err):
		return &exchange.ExchangeError{Code: "BYBIT_TEMPORARY", Message: "bybit temporary failure", Details: err.Error(), IsRetryable: true}
	}
	if be, ok := err.(*bybit.BybitError); ok {
		return &exchange.ExchangeError{Code: "BYBIT_REJECTED", Message: be.Message, Details: err.Error()}
	}
	// transport errors are left for the recovery layer to classify
	return err
}

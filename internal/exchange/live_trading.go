package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// FuturesExchange is the capability set the bot needs from a linear perpetual futures venue.
type FuturesExchange interface {
	GetName() string
	IsDemo() bool

	Connect(ctx context.Context) error
	Disconnect() error

	// Market data
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
	GetKlines(ctx context.Context, params KlineParams) ([]types.OHLCV, error)
	GetTradingConstraints(ctx context.Context, symbol string) (*TradingConstraints, error)

	// Account
	GetTradableBalance(ctx context.Context, asset string) (float64, error)
	GetPositions(ctx context.Context, symbol string) ([]Position, error)

	// Trading
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, params OrderParams) (*Order, error)
	SetTradingStop(ctx context.Context, symbol string, takeProfit, stopLoss float64) error
	CancelAllOrders(ctx context.Context, symbol string) error
}

// StopFill is a close the exchange executed on its own take-profit or stop-loss.
type StopFill struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// StopFillReporter is implemented by exchanges that can tell the price their own
// TP/SL closed a position at.
type StopFillReporter interface {
	LastStopFill(symbol string) (StopFill, bool)
}

// KlineParams represents parameters for kline/candlestick data requests
type KlineParams struct {
	Symbol   string
	Interval KlineInterval
	Limit    int
}

// KlineInterval is the exchange wire value of a candle interval.
type KlineInterval string

const (
	Interval1m  KlineInterval = "1"
	Interval3m  KlineInterval = "3"
	Interval5m  KlineInterval = "5"
	Interval15m KlineInterval = "15"
	Interval30m KlineInterval = "30"
	Interval1h  KlineInterval = "60"
	Interval2h  KlineInterval = "120"
	Interval4h  KlineInterval = "240"
	Interval1d  KlineInterval = "D"
)

var intervalDurations = map[KlineInterval]time.Duration{
	Interval1m:  time.Minute,
	Interval3m:  3 * time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval2h:  2 * time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseInterval accepts "15m", "1h", "4h", "1d" as well as raw exchange values ("15", "240", "D").
func ParseInterval(s string) (KlineInterval, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "1m", "1":
		return Interval1m, nil
	case "3m", "3":
		return Interval3m, nil
	case "5m", "5":
		return Interval5m, nil
	case "15m", "15":
		return Interval15m, nil
	case "30m", "30":
		return Interval30m, nil
	case "1h", "60":
		return Interval1h, nil
	case "2h", "120":
		return Interval2h, nil
	case "4h", "240":
		return Interval4h, nil
	case "1d", "d":
		return Interval1d, nil
	}
	return "", fmt.Errorf("unsupported interval %q", s)
}

// Duration returns the candle length.
func (i KlineInterval) Duration() time.Duration {
	return intervalDurations[i]
}

// OrderParams describes a market order on a linear contract.
type OrderParams struct {
	Symbol      string
	Side        types.Side
	Quantity    float64
	ReduceOnly  bool
	OrderLinkID string
	TakeProfit  float64 // optional, attached to the opening order
	StopLoss    float64 // optional, attached to the opening order
}

// Order represents order information returned by exchanges
type Order struct {
	OrderID     string
	OrderLinkID string
	Symbol      string
	Side        types.Side
	Quantity    float64
	AvgPrice    float64 // zero when the venue does not report fills synchronously
	Status      string
	CreatedTime time.Time
}

// Position is an open exchange position in one-way mode.
type Position struct {
	Symbol        string
	Side          types.Side
	Size          float64
	AvgPrice      float64
	MarkPrice     float64
	UnrealisedPnl float64
	Leverage      float64
	TakeProfit    float64
	StopLoss      float64
	UpdatedTime   time.Time
}

// IsOpen reports whether the position carries size.
func (p Position) IsOpen() bool {
	return p.Size > 0 && p.Side != types.SideNone
}

// TradingConstraints represents exchange-specific trading limits and constraints
type TradingConstraints struct {
	Symbol      string
	MinOrderQty float64
	MaxOrderQty float64
	QtyStep     float64
	MinNotional float64
	TickSize    float64
	MaxLeverage float64
}

// ExchangeError represents standardized errors from exchanges
type ExchangeError struct {
	Code        string
	Message     string
	Details     string
	IsRetryable bool
}

func (e *ExchangeError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Temporary reports whether retrying the same request can succeed.
func (e *ExchangeError) Temporary() bool {
	return e.IsRetryable
}

// Is matches on Code so wrapped copies with different details still compare equal.
func (e *ExchangeError) Is(target error) bool {
	t, ok := target.(*ExchangeError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInsufficientBalance  = &ExchangeError{Code: "INSUFFICIENT_BALANCE", Message: "insufficient balance for trade"}
	ErrInvalidSymbol        = &ExchangeError{Code: "INVALID_SYMBOL", Message: "invalid trading symbol"}
	ErrOrderSizeTooSmall    = &ExchangeError{Code: "ORDER_SIZE_TOO_SMALL", Message: "order size below minimum requirements"}
	ErrRateLimitExceeded    = &ExchangeError{Code: "RATE_LIMIT_EXCEEDED", Message: "api rate limit exceeded", IsRetryable: true}
	ErrConnectionFailed     = &ExchangeError{Code: "CONNECTION_FAILED", Message: "failed to connect to exchange", IsRetryable: true}
	ErrAuthenticationFailed = &ExchangeError{Code: "AUTHENTICATION_FAILED", Message: "authentication failed"}
	ErrPositionNotFound     = &ExchangeError{Code: "POSITION_NOT_FOUND", Message: "no open position"}
	ErrNotConnected         = &ExchangeError{Code: "NOT_CONNECTED", Message: "exchange not connected", IsRetryable: true}
)

// WithDetails copies a sentinel error and attaches request specific details.
func WithDetails(base *ExchangeError, format string, args ...interface{}) *ExchangeError {
	cp := *base
	cp.Details = fmt.Sprintf(format, args...)
	return &cp
}

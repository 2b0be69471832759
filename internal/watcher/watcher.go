// Package watcher runs the per-trade exit monitors: trailing stop, break-even, soft exit
// and the take-profit / stop-loss monitor.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// Kind names a watcher rule.
type Kind string

const (
	KindTrailing   Kind = "trailing"
	KindBreakeven  Kind = "breakeven"
	KindSoftExit   Kind = "soft_exit"
	KindStopTarget Kind = "stop_target"
)

// State is a watcher's lifecycle stage. Transitions only move forward.
type State string

const (
	StateArmed     State = "armed"
	StateTriggered State = "triggered"
	StateDone      State = "done"
)

func (s State) rank() int {
	switch s {
	case StateArmed:
		return 0
	case StateTriggered:
		return 1
	default:
		return 2
	}
}

// Close reasons reported to the engine.
const (
	ReasonTrailingStop   = "trailing_stop"
	ReasonBreakeven      = "breakeven"
	ReasonSoftExit       = "soft_exit"
	ReasonTimeStop       = "time_stop"
	ReasonTakeProfit     = "take_profit"
	ReasonStopLoss       = "stop_loss"
	ReasonExchangeClosed = "exchange_closed"
)

type TrailingConfig struct {
	Enabled           bool    `json:"enabled"`
	ActivationPercent float64 `json:"activation_percent"`
	TrailPercent      float64 `json:"trail_percent"`
	MoveExchangeStop  bool    `json:"move_exchange_stop"`
}

type BreakevenConfig struct {
	Enabled          bool    `json:"enabled"`
	TriggerPercent   float64 `json:"trigger_percent"`
	OffsetPercent    float64 `json:"offset_percent"`
	MoveExchangeStop bool    `json:"move_exchange_stop"`
}

type SoftExitConfig struct {
	Enabled          bool           `json:"enabled"`
	Interval         types.Duration `json:"interval"`
	MinHold          types.Duration `json:"min_hold"`
	MaxHold          types.Duration `json:"max_hold"` // zero disables the time stop
	MinProfitPercent float64        `json:"min_profit_percent"`
	ExitScore        int            `json:"exit_score"`
}

type StopTargetConfig struct {
	Enabled        bool `json:"enabled"`
	ReconcileEvery int  `json:"reconcile_every"` // ticks between exchange position checks, zero disables
}

// Config enables and tunes the watcher kinds. Percentages use 1.5 for 1.5%.
type Config struct {
	Interval   types.Duration   `json:"interval"`
	Trailing   TrailingConfig   `json:"trailing"`
	Breakeven  BreakevenConfig  `json:"breakeven"`
	SoftExit   SoftExitConfig   `json:"soft_exit"`
	StopTarget StopTargetConfig `json:"stop_target"`
}

func DefaultConfig() Config {
	return Config{
		Interval: types.Duration(5 * time.Second),
		Trailing: TrailingConfig{
			Enabled:           true,
			ActivationPercent: 1.5,
			TrailPercent:      0.8,
			MoveExchangeStop:  true,
		},
		Breakeven: BreakevenConfig{
			Enabled:          true,
			TriggerPercent:   1,
			OffsetPercent:    0.1,
			MoveExchangeStop: true,
		},
		SoftExit: SoftExitConfig{
			Enabled:          true,
			Interval:         types.Duration(time.Minute),
			MinHold:          types.Duration(30 * time.Minute),
			MaxHold:          types.Duration(24 * time.Hour),
			MinProfitPercent: 0.3,
			ExitScore:        2,
		},
		StopTarget: StopTargetConfig{
			Enabled:        true,
			ReconcileEvery: 12,
		},
	}
}

// Validate checks the parameters of enabled kinds.
func (c Config) Validate() error {
	if c.Interval.Std() <= 0 {
		return fmt.Errorf("watchers.interval must be positive")
	}
	if c.Trailing.Enabled && (c.Trailing.TrailPercent <= 0 || c.Trailing.ActivationPercent < 0) {
		return fmt.Errorf("watchers.trailing needs trail_percent > 0 and activation_percent >= 0")
	}
	if c.Breakeven.Enabled && c.Breakeven.TriggerPercent <= c.Breakeven.OffsetPercent {
		return fmt.Errorf("watchers.breakeven trigger_percent must exceed offset_percent")
	}
	if c.SoftExit.Enabled {
		if c.SoftExit.MaxHold > 0 && c.SoftExit.MaxHold < c.SoftExit.MinHold {
			return fmt.Errorf("watchers.soft_exit max_hold must not be below min_hold")
		}
		if c.SoftExit.ExitScore < 0 || c.SoftExit.ExitScore > signal.MaxScore {
			return fmt.Errorf("watchers.soft_exit exit_score must be between 0 and %d", signal.MaxScore)
		}
	}
	return nil
}

// Kinds lists the enabled watcher kinds in spawn order.
func (c Config) Kinds() []Kind {
	var kinds []Kind
	if c.StopTarget.Enabled {
		kinds = append(kinds, KindStopTarget)
	}
	if c.Trailing.Enabled {
		kinds = append(kinds, KindTrailing)
	}
	if c.Breakeven.Enabled {
		kinds = append(kinds, KindBreakeven)
	}
	if c.SoftExit.Enabled {
		kinds = append(kinds, KindSoftExit)
	}
	return kinds
}

// TradeStore is the registry surface watchers read and mutate.
type TradeStore interface {
	GetByID(id string) (registry.Trade, bool)
	Update(id string, fn func(t *registry.Trade)) (registry.Trade, error)
}

// PriceSource supplies the latest price, typically the websocket feed with REST fallback.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Closer exits a trade. Implementations claim the trade in the registry before
// sending any order, so only one caller wins.
type Closer interface {
	ClosePosition(ctx context.Context, tradeID, reason string) error
}

// StopMover pushes a new stop-loss to the exchange.
type StopMover interface {
	MoveStopLoss(ctx context.Context, t registry.Trade, stop float64) error
}

// PositionSource reports exchange positions for reconciliation.
type PositionSource interface {
	GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error)
}

// SignalSource re-scores a symbol for the soft exit.
type SignalSource interface {
	Evaluate(ctx context.Context, symbol string) (signal.Signal, error)
}

// Status describes one running or finished watcher.
type Status struct {
	TradeID string    `json:"trade_id"`
	Symbol  string    `json:"symbol"`
	Kind    Kind      `json:"kind"`
	State   State     `json:"state"`
	Detail  string    `json:"detail,omitempty"`
	Since   time.Time `json:"since"`
}

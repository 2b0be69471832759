// Package registry holds the bot's open trades, one per symbol, and the capital they tie up.
//
// Every state change goes through one mutex so that exit paths racing each other (watchers,
// chat commands, exchange-side stops) agree on a single winner and the capital counters are
// released exactly once, inside the same critical section that removes the trade.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

var (
	ErrTradeExists    = errors.New("trade already exists for symbol")
	ErrMaxOpenTrades  = errors.New("max open trades reached")
	ErrTradeNotFound  = errors.New("trade not found")
	ErrAlreadyClosing = errors.New("trade is already closing")
	ErrNotPending     = errors.New("trade is not pending")
)

// Status is the lifecycle stage of a trade.
type Status string

const (
	StatusPending Status = "pending" // slot reserved, entry order in flight
	StatusOpen    Status = "open"
	StatusClosing Status = "closing" // one exit path owns the trade
)

// Trade is one position managed by the bot. Percentages use 1.5 for 1.5%.
type Trade struct {
	ID             string     `json:"id"`
	Symbol         string     `json:"symbol"`
	Side           types.Side `json:"side"`
	Qty            float64    `json:"qty"`
	EntryPrice     float64    `json:"entry_price"`
	Leverage       int        `json:"leverage"`
	Margin         float64    `json:"margin"`
	TPPercent      float64    `json:"tp_percent"`
	SLPercent      float64    `json:"sl_percent"`
	TPPrice        float64    `json:"tp_price"`
	SLPrice        float64    `json:"sl_price"`
	TPHit          bool       `json:"tp_hit"`
	SLHit          bool       `json:"sl_hit"`
	BreakevenArmed bool       `json:"breakeven_armed"`
	TrailingActive bool       `json:"trailing_active"`
	TrailStop      float64    `json:"trail_stop"`
	HighWater      float64    `json:"high_water"`
	LowWater       float64    `json:"low_water"`
	StartTime      time.Time  `json:"start_time"`
	Score          int        `json:"score"`
	EntryOrderID   string     `json:"entry_order_id"`
	Status         Status     `json:"status"`
	CloseReason    string     `json:"close_reason,omitempty"`
}

// PnLPercent is the unleveraged move from entry to price in the trade's favour.
func (t Trade) PnLPercent(price float64) float64 {
	return types.PnLPercent(t.Side, t.EntryPrice, price)
}

// UnrealizedPnL is the quote-currency PnL at price.
func (t Trade) UnrealizedPnL(price float64) float64 {
	return (price - t.EntryPrice) * t.Qty * t.Side.Sign()
}

// Notional is entry value.
func (t Trade) Notional() float64 { return t.Qty * t.EntryPrice }

// Fill is the confirmed entry of a reserved trade.
type Fill struct {
	Qty        float64
	Price      float64
	Leverage   int
	Margin     float64
	TPPercent  float64
	SLPercent  float64
	TPPrice    float64
	SLPrice    float64
	OrderID    string
	FilledTime time.Time
}

// ClosedTrade is the record produced when a trade leaves the registry.
type ClosedTrade struct {
	Trade
	ExitPrice  float64       `json:"exit_price"`
	ExitTime   time.Time     `json:"exit_time"`
	PnL        float64       `json:"pnl"`
	PnLPercent float64       `json:"pnl_percent"`
	Held       time.Duration `json:"held"`
}

// Stats summarizes capital in use.
type Stats struct {
	Open            int
	Pending         int
	AllocatedMargin float64
	MaxOpen         int
}

// Registry is the lock-guarded symbol to trade map.
type Registry struct {
	mu              sync.Mutex
	trades          map[string]*Trade
	maxOpen         int
	allocatedMargin float64
	now             func() time.Time
}

// New creates a registry. maxOpen <= 0 means unlimited.
func New(maxOpen int) *Registry {
	return &Registry{
		trades:  make(map[string]*Trade),
		maxOpen: maxOpen,
		now:     time.Now,
	}
}

// Reserve claims the symbol slot for a new entry. The slot counts toward capacity
// until it is activated or cancelled.
func (r *Registry) Reserve(symbol string, side types.Side, score int) (*Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trades[symbol]; ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrTradeExists, symbol, t.Status)
	}
	if r.maxOpen > 0 && len(r.trades) >= r.maxOpen {
		return nil, fmt.Errorf("%w: %d", ErrMaxOpenTrades, r.maxOpen)
	}

	t := &Trade{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Score:     score,
		StartTime: r.now(),
		Status:    StatusPending,
	}
	r.trades[symbol] = t
	cp := *t
	return &cp, nil
}

// Activate moves a pending trade to open with its fill data and allocates its margin.
func (r *Registry) Activate(id string, fill Fill) (Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if t.Status != StatusPending {
		return Trade{}, fmt.Errorf("%w: %s is %s", ErrNotPending, id, t.Status)
	}

	t.Qty = fill.Qty
	t.EntryPrice = fill.Price
	t.Leverage = fill.Leverage
	t.Margin = fill.Margin
	t.TPPercent = fill.TPPercent
	t.SLPercent = fill.SLPercent
	t.TPPrice = fill.TPPrice
	t.SLPrice = fill.SLPrice
	t.EntryOrderID = fill.OrderID
	t.HighWater = fill.Price
	t.LowWater = fill.Price
	if !fill.FilledTime.IsZero() {
		t.StartTime = fill.FilledTime
	}
	t.Status = StatusOpen
	r.allocatedMargin += t.Margin
	return *t, nil
}

// Cancel drops a pending reservation after a failed entry.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if t.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, id, t.Status)
	}
	delete(r.trades, t.Symbol)
	return nil
}

// Get returns a copy of the trade on symbol.
func (r *Registry) Get(symbol string) (Trade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[symbol]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

// GetByID returns a copy of the trade with id. A trade that was closed, or replaced by a
// newer trade on the same symbol, is not found.
func (r *Registry) GetByID(id string) (Trade, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.findLocked(id)
	if t == nil {
		return Trade{}, false
	}
	return *t, true
}

// Has reports whether symbol has a trade in any status.
func (r *Registry) Has(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.trades[symbol]
	return ok
}

// List returns copies of all trades ordered by symbol.
func (r *Registry) List() []Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Trade, 0, len(r.trades))
	for _, t := range r.trades {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Open returns copies of trades in the open status.
func (r *Registry) Open() []Trade {
	all := r.List()
	out := all[:0]
	for _, t := range all {
		if t.Status == StatusOpen {
			out = append(out, t)
		}
	}
	return out
}

// Update mutates an open trade under the lock and returns the result. Identity, status
// and sizing fields are restored after fn runs; only exit-management fields may change.
func (r *Registry) Update(id string, fn func(t *Trade)) (Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if t.Status != StatusOpen {
		return Trade{}, fmt.Errorf("%w: %s", ErrAlreadyClosing, id)
	}

	before := *t
	fn(t)
	t.ID, t.Symbol, t.Side, t.Status = before.ID, before.Symbol, before.Side, before.Status
	t.Qty, t.EntryPrice, t.Margin = before.Qty, before.EntryPrice, before.Margin
	return *t, nil
}

// BeginClose hands the trade to exactly one exit path.
func (r *Registry) BeginClose(id, reason string) (Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	switch t.Status {
	case StatusClosing:
		return Trade{}, fmt.Errorf("%w: %s (%s)", ErrAlreadyClosing, id, t.CloseReason)
	case StatusPending:
		return Trade{}, fmt.Errorf("%w: %s is pending", ErrTradeNotFound, id)
	}
	t.Status = StatusClosing
	t.CloseReason = reason
	return *t, nil
}

// AbortClose returns a closing trade to open after its exit order failed.
func (r *Registry) AbortClose(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if t.Status == StatusClosing {
		t.Status = StatusOpen
		t.CloseReason = ""
	}
	return nil
}

// FinishClose removes a closing trade and releases its capital in the same critical section.
func (r *Registry) FinishClose(id string, exitPrice float64) (ClosedTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.findLocked(id)
	if t == nil {
		return ClosedTrade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, id)
	}
	if t.Status != StatusClosing {
		return ClosedTrade{}, fmt.Errorf("finish close %s: trade is %s", id, t.Status)
	}

	delete(r.trades, t.Symbol)
	r.allocatedMargin -= t.Margin
	if r.allocatedMargin < 1e-9 {
		r.allocatedMargin = 0
	}

	now := r.now()
	closed := ClosedTrade{
		Trade:      *t,
		ExitPrice:  exitPrice,
		ExitTime:   now,
		PnL:        t.UnrealizedPnL(exitPrice),
		PnLPercent: t.PnLPercent(exitPrice),
		Held:       now.Sub(t.StartTime),
	}
	return closed, nil
}

// Snapshot returns open trades for persistence. Pending and closing trades are transient.
func (r *Registry) Snapshot() []Trade {
	return r.Open()
}

// Restore loads persisted trades as open, skipping symbols already present.
// It returns the number of trades restored.
func (r *Registry) Restore(trades []Trade) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range trades {
		if _, ok := r.trades[t.Symbol]; ok || t.ID == "" || t.Symbol == "" {
			continue
		}
		cp := t
		cp.Status = StatusOpen
		cp.CloseReason = ""
		r.trades[cp.Symbol] = &cp
		r.allocatedMargin += cp.Margin
		n++
	}
	return n
}

// Stats reports trade counts and allocated margin.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{AllocatedMargin: r.allocatedMargin, MaxOpen: r.maxOpen}
	for _, t := range r.trades {
		if t.Status == StatusPending {
			s.Pending++
		} else {
			s.Open++
		}
	}
	return s
}

// AtCapacity reports whether a new reservation would be refused for capacity.
func (r *Registry) AtCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxOpen > 0 && len(r.trades) >= r.maxOpen
}

func (r *Registry) findLocked(id string) *Trade {
	for _, t := range r.trades {
		if t.ID == id {
			return t
		}
	}
	return nil
}

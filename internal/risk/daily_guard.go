// Package risk tracks account-level limits that stop new entries.
package risk

import (
	"sync"
	"time"
)

// DailyGuard accumulates realized PnL per UTC day and reports when the daily loss
// limit has been reached.
type DailyGuard struct {
	mu            sync.Mutex
	limitPercent  float64
	dailyPnL      float64
	trades        int
	wins          int
	lastResetDate time.Time
	tripped       bool
	now           func() time.Time
}

// DailyStats is the current day's realized result.
type DailyStats struct {
	Date    string  `json:"date"`
	PnL     float64 `json:"pnl"`
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Tripped bool    `json:"tripped"`
}

// NewDailyGuard creates a guard. limitPercent <= 0 disables the limit.
func NewDailyGuard(limitPercent float64) *DailyGuard {
	g := &DailyGuard{limitPercent: limitPercent, now: time.Now}
	g.lastResetDate = g.today()
	return g
}

func (g *DailyGuard) today() time.Time {
	y, m, d := g.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (g *DailyGuard) resetIfNeededLocked() {
	if today := g.today(); !today.Equal(g.lastResetDate) {
		g.dailyPnL = 0
		g.trades = 0
		g.wins = 0
		g.tripped = false
		g.lastResetDate = today
	}
}

// Record adds a closed trade's realized PnL.
func (g *DailyGuard) Record(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNeededLocked()
	g.dailyPnL += pnl
	g.trades++
	if pnl > 0 {
		g.wins++
	}
}

// ShouldStopTrading reports whether today's loss reached the limit for the given balance.
// It returns true only once per day on the transition so callers can notify; Blocked
// reports the steady state.
func (g *DailyGuard) ShouldStopTrading(balance float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNeededLocked()
	if g.tripped || g.limitPercent <= 0 || balance <= 0 {
		return false
	}
	if g.dailyPnL <= -balance*g.limitPercent/100 {
		g.tripped = true
		return true
	}
	return false
}

// Blocked reports whether the limit has tripped today.
func (g *DailyGuard) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNeededLocked()
	return g.tripped
}

// Stats returns today's figures.
func (g *DailyGuard) Stats() DailyStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetIfNeededLocked()
	return DailyStats{
		Date:    g.lastResetDate.Format("2006-01-02"),
		PnL:     g.dailyPnL,
		Trades:  g.trades,
		Wins:    g.wins,
		Tripped: g.tripped,
	}
}

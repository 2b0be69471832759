package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDailyGuardTripsOnce(t *testing.T) {
	g := NewDailyGuard(3)
	g.Record(-10)
	assert.False(t, g.ShouldStopTrading(1000))

	g.Record(-25)
	assert.True(t, g.ShouldStopTrading(1000))
	assert.False(t, g.ShouldStopTrading(1000))
	assert.True(t, g.Blocked())

	st := g.Stats()
	assert.InDelta(t, -35.0, st.PnL, 1e-9)
	assert.Equal(t, 2, st.Trades)
	assert.Equal(t, 0, st.Wins)
}

func TestDailyGuardResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2025, 5, 1, 23, 0, 0, 0, time.UTC)
	g := NewDailyGuard(1)
	g.now = func() time.Time { return now }
	g.lastResetDate = g.today()

	g.Record(-50)
	assert.True(t, g.ShouldStopTrading(1000))

	now = now.Add(2 * time.Hour)
	assert.False(t, g.Blocked())
	st := g.Stats()
	assert.Equal(t, "2025-05-02", st.Date)
	assert.Zero(t, st.PnL)
}

func TestDailyGuardDisabled(t *testing.T) {
	g := NewDailyGuard(0)
	g.Record(-1e6)
	assert.False(t, g.ShouldStopTrading(1000))
	g.Record(5)
	assert.Equal(t, 1, g.Stats().Wins)
}

package safety

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("trading", CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	cb.now = func() time.Time { return now }

	var transitions []CircuitBreakerState
	cb.OnStateChange(func(_ string, _, to CircuitBreakerState) { transitions = append(transitions, to) })

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	_ = cb.Call(func() error { return errors.New("a") })
	now = now.Add(2 * time.Second)
	_ = cb.Call(func() error { return errors.New("b") })
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerManager(t *testing.T) {
	m := NewCircuitBreakerManager()
	a := m.GetOrCreate("market_data", CircuitBreakerConfig{FailureThreshold: 1})
	assert.Same(t, a, m.GetOrCreate("market_data", CircuitBreakerConfig{}))

	_ = a.Call(func() error { return errors.New("down") })
	assert.Equal(t, []string{"market_data"}, m.OpenCircuits())
}

func TestRateLimiter(t *testing.T) {
	m := NewRateLimiterManager()
	rl := m.GetOrCreate("trading", 2, 0.001)
	assert.Same(t, rl, m.GetOrCreate("trading", 10, 10))

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestValidateOrder(t *testing.T) {
	assert.NoError(t, ValidateOrder("BTCUSDT", 65000, 0.01))
	assert.Error(t, ValidateOrder("btcusdt", 65000, 0.01))
	assert.Error(t, ValidateOrder("BTCUSDT", math.NaN(), 0.01))
	assert.Error(t, ValidateOrder("BTCUSDT", 65000, 0))
	assert.Error(t, ValidateOrder("", 1, 1))
	assert.False(t, ValidatePrice(-1, "ETHUSDT").Valid)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	rejected := errors.New("rejected")
	cb := NewCircuitBreaker("trading", CircuitBreakerConfig{
		FailureThreshold: 2,
		IsFailure:        func(err error) bool { return !errors.Is(err, rejected) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return rejected }), rejected)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	_ = cb.Call(func() error { return errors.New("down") })
	_ = cb.Call(func() error { return rejected })
	_ = cb.Call(func() error { return errors.New("down") })
	assert.Equal(t, StateClosed, cb.GetState(), "an answered call resets the consecutive count")

	_ = cb.Call(func() error { return errors.New("down") })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerDefaultIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Call(func() error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.GetState())
}

package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while a breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before opening
	SuccessThreshold uint32        // half-open successes needed to close
	Timeout          time.Duration // how long the breaker stays open

	// IsFailure decides which errors count against the breaker. Errors it rejects are
	// treated as successful calls: the dependency answered. Nil counts every error
	// except context cancellation.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig is used for exchange operation groups.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// CircuitBreaker stops hammering a failing dependency until it had time to recover.
type CircuitBreaker struct {
	name          string
	config        CircuitBreakerConfig
	mu            sync.Mutex
	state         CircuitBreakerState
	failures      uint32
	successes     uint32
	openedAt      time.Time
	lastFailure   time.Time
	now           func() time.Time
	onStateChange func(name string, from, to CircuitBreakerState)
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.IsFailure == nil {
		config.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{name: name, config: config, now: time.Now}
}

// OnStateChange registers a callback invoked synchronously, outside the lock, on transitions.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitBreakerState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// Call executes fn unless the breaker is open.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
		}
		from := cb.transition(StateHalfOpen)
		cb.mu.Unlock()
		cb.notify(from, StateHalfOpen)
		return nil
	}
	cb.mu.Unlock()
	return nil
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	from := cb.state
	to := from

	if err != nil && cb.config.IsFailure(err) {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			to = StateOpen
		}
	} else {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				to = StateClosed
			}
		}
	}

	if to != from {
		cb.transition(to)
	}
	cb.mu.Unlock()

	if to != from {
		cb.notify(from, to)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) CircuitBreakerState {
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	cb.mu.Lock()
	fn := cb.onStateChange
	cb.mu.Unlock()
	if fn != nil {
		fn(cb.name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transition(StateClosed)
	cb.mu.Unlock()
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

// CircuitBreakerManager manages multiple circuit breakers
type CircuitBreakerManager struct {
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
	onChange func(name string, from, to CircuitBreakerState)
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{breakers: make(map[string]*CircuitBreaker)}
}

// OnStateChange sets the callback given to every breaker created afterwards.
func (m *CircuitBreakerManager) OnStateChange(fn func(name string, from, to CircuitBreakerState)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// GetOrCreate gets an existing circuit breaker or creates a new one
func (m *CircuitBreakerManager) GetOrCreate(name string, config CircuitBreakerConfig) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, config)
	cb.onStateChange = m.onChange
	m.breakers[name] = cb
	return cb
}

// OpenCircuits returns the names of breakers currently rejecting calls.
func (m *CircuitBreakerManager) OpenCircuits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []string
	for name, cb := range m.breakers {
		if cb.GetState() == StateOpen {
			open = append(open, name)
		}
	}
	return open
}

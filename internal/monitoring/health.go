package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	maxRecentErrors = 20
	errorWindow     = 5 * time.Minute
	unhealthyErrors = 5
)

type recordedError struct {
	at      time.Time
	message string
}

type HealthChecker struct {
	mu          sync.RWMutex
	started     time.Time
	lastCycle   time.Time
	lastTrade   time.Time
	lastPrices  map[string]float64
	isConnected bool
	errors      []recordedError
	staleAfter  time.Duration
	now         func() time.Time
}

type HealthStatus struct {
	Status      string             `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	LastCycle   time.Time          `json:"last_cycle"`
	LastTrade   time.Time          `json:"last_trade"`
	LastPrices  map[string]float64 `json:"last_prices"`
	IsConnected bool               `json:"is_connected"`
	Uptime      string             `json:"uptime"`
	Errors      []string           `json:"errors,omitempty"`
}

// NewHealthChecker creates a checker that reports degraded when no scan cycle
// completed within staleAfter.
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	h := &HealthChecker{
		lastPrices: make(map[string]float64),
		staleAfter: staleAfter,
		now:        time.Now,
	}
	h.started = h.now()
	return h
}

func (h *HealthChecker) SetConnected(v bool) {
	h.mu.Lock()
	h.isConnected = v
	h.mu.Unlock()
}

func (h *HealthChecker) UpdatePrice(symbol string, price float64) {
	h.mu.Lock()
	h.lastPrices[symbol] = price
	h.mu.Unlock()
}

func (h *HealthChecker) UpdateLastCycle() {
	h.mu.Lock()
	h.lastCycle = h.now()
	h.mu.Unlock()
}

func (h *HealthChecker) UpdateLastTrade() {
	h.mu.Lock()
	h.lastTrade = h.now()
	h.mu.Unlock()
}

// AddError records an error message; only the most recent ones are kept.
func (h *HealthChecker) AddError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, recordedError{at: h.now(), message: message})
	if len(h.errors) > maxRecentErrors {
		h.errors = h.errors[len(h.errors)-maxRecentErrors:]
	}
}

// Status evaluates health. Recent error bursts make the bot unhealthy; a lost
// connection or stalled scan loop makes it degraded.
func (h *HealthChecker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	st := HealthStatus{
		Status:      "healthy",
		Timestamp:   now,
		LastCycle:   h.lastCycle,
		LastTrade:   h.lastTrade,
		LastPrices:  make(map[string]float64, len(h.lastPrices)),
		IsConnected: h.isConnected,
		Uptime:      now.Sub(h.started).Round(time.Second).String(),
	}
	for k, v := range h.lastPrices {
		st.LastPrices[k] = v
	}

	recent := 0
	for _, e := range h.errors {
		if now.Sub(e.at) <= errorWindow {
			recent++
			st.Errors = append(st.Errors, e.message)
		}
	}

	stale := h.staleAfter > 0 && !h.lastCycle.IsZero() && now.Sub(h.lastCycle) > h.staleAfter
	switch {
	case recent >= unhealthyErrors:
		st.Status = "unhealthy"
	case !h.isConnected || stale:
		st.Status = "degraded"
	}
	return st
}

// HTTPStatus maps a health status to a response code.
func (s HealthStatus) HTTPStatus() int {
	switch s.Status {
	case "unhealthy":
		return http.StatusInternalServerError
	case "degraded":
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.Status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(st.HTTPStatus())
	_ = json.NewEncoder(w).Encode(st)
}

package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := NewMetrics()
	m.RecordTradeOpened("BTCUSDT", "Buy")
	m.RecordTradeClosed("BTCUSDT", "Buy", "take_profit", 12.5)
	m.RecordTradeClosed("BTCUSDT", "Buy", "stop_loss", -4)
	m.SetOpenTrades(2)
	m.UpdateSignalScore("BTCUSDT", -4)
	m.RecordWatcherTrigger("trailing")
	m.RecordError("NETWORK")
	m.UpdatePrice("BTCUSDT", 60000)
	m.SetPaused(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradesOpened.WithLabelValues("BTCUSDT", "Buy")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.realizedPnL.WithLabelValues("BTCUSDT", "profit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.realizedPnL.WithLabelValues("BTCUSDT", "loss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.openTrades))
	assert.Equal(t, -4.0, testutil.ToFloat64(m.signalScore.WithLabelValues("BTCUSDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paused))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "futures_bot_trades_closed_total")
	assert.Contains(t, string(body), `reason="take_profit"`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewMetricsIsolated(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordError("ORDER")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.errorsTotal.WithLabelValues("ORDER")))
}

func TestHealthTransitions(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealthChecker(time.Minute)
	h.now = func() time.Time { return now }

	assert.Equal(t, "degraded", h.Status().Status)

	h.SetConnected(true)
	h.UpdateLastCycle()
	h.UpdatePrice("BTCUSDT", 100)
	st := h.Status()
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, 100.0, st.LastPrices["BTCUSDT"])
	assert.Equal(t, http.StatusOK, st.HTTPStatus())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "degraded", h.Status().Status)

	h.UpdateLastCycle()
	for i := 0; i < unhealthyErrors; i++ {
		h.AddError("boom")
	}
	st = h.Status()
	assert.Equal(t, "unhealthy", st.Status)
	assert.Len(t, st.Errors, unhealthyErrors)

	now = now.Add(errorWindow + time.Second)
	h.UpdateLastCycle()
	assert.Equal(t, "healthy", h.Status().Status)
}

func TestHealthServeHTTP(t *testing.T) {
	h := NewHealthChecker(0)
	h.SetConnected(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var st HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "healthy", st.Status)
	assert.True(t, st.IsConnected)
}

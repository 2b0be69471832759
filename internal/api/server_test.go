package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-futures-bot/internal/bot"
	"github.com/ducminhle1904/crypto-futures-bot/internal/journal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/monitoring"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

type stubBot struct {
	mu       sync.Mutex
	paused   bool
	closeErr error
	closed   []string
	panicked bool
	journal  *journal.Journal
}

func (b *stubBot) Status(context.Context) bot.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bot.Status{
		BotName: "api-test",
		Paused:  b.paused,
		Trades: []bot.TradeStatus{{
			Trade: registry.Trade{ID: "t1", Symbol: "BTCUSDT", Side: types.SideBuy, EntryPrice: 100, Qty: 2},
			Price: 101, PnL: 2, PnLPercent: 1,
		}},
	}
}

func (b *stubBot) Pause()         { b.mu.Lock(); b.paused = true; b.mu.Unlock() }
func (b *stubBot) Resume()        { b.mu.Lock(); b.paused = false; b.mu.Unlock() }
func (b *stubBot) IsPaused() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.paused }

func (b *stubBot) CloseSymbol(_ context.Context, symbol string) error {
	if b.closeErr != nil {
		return b.closeErr
	}
	b.closed = append(b.closed, symbol)
	return nil
}

func (b *stubBot) PanicCloseAll(context.Context) (int, error) {
	b.panicked = true
	b.Pause()
	return 1, nil
}

func (b *stubBot) RefreshBalance(context.Context) (float64, error) { return 500, nil }
func (b *stubBot) Journal() *journal.Journal                     { return b.journal }

func newTestServer(token string) (*Server, *stubBot, *monitoring.HealthChecker, *monitoring.Metrics) {
	b := &stubBot{journal: journal.New(0)}
	health := monitoring.NewHealthChecker(time.Minute)
	metrics := monitoring.NewMetrics()
	return NewServer(Config{Addr: ":0", AuthToken: token}, b, metrics, health, zerolog.Nop()), b, health, metrics
}

func do(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _, health, _ := newTestServer("secret")

	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	health.SetConnected(true)
	w = do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, metrics := newTestServer("")
	metrics.RecordTradeOpened("BTCUSDT", "Buy")

	w := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `futures_bot_trades_opened_total{side="Buy",symbol="BTCUSDT"} 1`)
}

func TestAuthRequired(t *testing.T) {
	s, _, _, _ := newTestServer("secret")

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/status", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/status", "secret").Code)
}

func TestStatusAndTrades(t *testing.T) {
	s, b, _, _ := newTestServer("")
	b.journal.Record(registry.ClosedTrade{Trade: registry.Trade{Symbol: "ETHUSDT", CloseReason: "stop_loss"}, PnL: -1})

	w := do(s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Status        bot.Status `json:"status"`
		UnrealizedPnL float64    `json:"unrealized_pnl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "api-test", status.Status.BotName)
	assert.Equal(t, 2.0, status.UnrealizedPnL)

	w = do(s, http.MethodGet, "/trades", "")
	require.Equal(t, http.StatusOK, w.Code)
	var trades struct {
		Open    []bot.TradeStatus      `json:"open"`
		Closed  []registry.ClosedTrade `json:"closed"`
		Summary journal.Summary        `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
	require.Len(t, trades.Open, 1)
	assert.Equal(t, "BTCUSDT", trades.Open[0].Symbol)
	require.Len(t, trades.Closed, 1)
	assert.Equal(t, 1, trades.Summary.Losses)
}

func TestPauseResume(t *testing.T) {
	s, b, _, _ := newTestServer("")

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/pause", "").Code)
	assert.True(t, b.IsPaused())
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/resume", "").Code)
	assert.False(t, b.IsPaused())
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/pause", "").Code)
}

func TestCloseSymbol(t *testing.T) {
	s, b, _, _ := newTestServer("")

	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/close/btcusdt", "").Code)
	assert.Equal(t, []string{"BTCUSDT"}, b.closed)

	b.closeErr = registry.ErrTradeNotFound
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodPost, "/close/ETHUSDT", "").Code)

	b.closeErr = registry.ErrAlreadyClosing
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/close/ETHUSDT", "").Code)

	b.closeErr = errors.New("timeout")
	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodPost, "/close/ETHUSDT", "").Code)
}

func TestPanicNeedsConfirm(t *testing.T) {
	s, b, _, _ := newTestServer("")

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/panic", "").Code)
	assert.False(t, b.panicked)

	w := do(s, http.MethodPost, "/panic?confirm=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, b.panicked)
	assert.True(t, b.IsPaused())
}

func TestShutdownWithoutStart(t *testing.T) {
	s, _, _, _ := newTestServer("")
	assert.NoError(t, s.Shutdown(context.Background()))
}

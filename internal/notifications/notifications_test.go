package notifications

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
	delay    time.Duration
}

func (r *recorder) SendAlert(level, message string) error {
	time.Sleep(r.delay)
	r.mu.Lock()
	r.messages = append(r.messages, level+":"+message)
	r.mu.Unlock()
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestTelegramSendAlert(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"chat_id":    r.PostForm.Get("chat_id"),
			"text":       r.PostForm.Get("text"),
			"parse_mode": r.PostForm.Get("parse_mode"),
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.SetBaseURL(srv.URL)
	n.SetTitle("alpha_bot")
	require.NoError(t, n.SendAlert(LevelError, "boom"))

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Contains(t, got["text"], "🚨")
	assert.Contains(t, got["text"], "alpha\\_bot")
	assert.Contains(t, got["text"], "boom")
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.SetBaseURL(srv.URL)
	err := n.SendAlert(LevelInfo, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestAsyncNotifierDrainsOnClose(t *testing.T) {
	rec := &recorder{delay: time.Millisecond}
	n := NewAsyncNotifier(rec, 10, zerolog.Nop())
	for i := 0; i < 5; i++ {
		require.NoError(t, n.SendAlert(LevelInfo, "msg"))
	}
	n.Close()
	assert.Equal(t, 5, rec.count())

	// sends after close are ignored, double close is safe
	require.NoError(t, n.SendAlert(LevelInfo, "late"))
	n.Close()
	assert.Equal(t, 5, rec.count())
}

func TestAsyncNotifierDropsWhenFull(t *testing.T) {
	rec := &recorder{delay: 50 * time.Millisecond}
	n := NewAsyncNotifier(rec, 1, zerolog.Nop())
	for i := 0; i < 10; i++ {
		require.NoError(t, n.SendAlert(LevelInfo, "msg"))
	}
	n.Close()
	assert.Less(t, rec.count(), 10)
	assert.GreaterOrEqual(t, rec.count(), 1)
}

func TestFormatters(t *testing.T) {
	trade := registry.Trade{
		Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 0.01, EntryPrice: 60000, Leverage: 5,
		TPPrice: 61800, SLPrice: 59100, TPPercent: 3, SLPercent: 1.5, Margin: 120, Score: 4,
	}
	opened := FormatTradeOpened(trade, true)
	assert.Contains(t, opened, "LONG BTCUSDT opened")
	assert.Contains(t, opened, "(dry run)")
	assert.Contains(t, opened, "4/5")

	closed := FormatTradeClosed(registry.ClosedTrade{
		Trade: func() registry.Trade { tr := trade; tr.CloseReason = "trailing_stop"; return tr }(),
		ExitPrice: 59000, PnL: -10, PnLPercent: -1.67, Held: 90 * time.Minute,
	}, false)
	assert.Contains(t, closed, "🔴")
	assert.Contains(t, closed, "trailing\\_stop")
	assert.Contains(t, closed, "1h30m0s")
	assert.NotContains(t, closed, "dry run")

	sig := FormatSignal(signal.Signal{Symbol: "ETHUSDT", Direction: types.SideSell, Score: 5, Price: 3000, Reasons: []string{"trend: EMA aligned"}})
	assert.Contains(t, sig, "SHORT")
	assert.Contains(t, sig, "• trend: EMA aligned")

	assert.Contains(t, FormatError("open_trade", errors.New("bad `thing`")), "'thing'")
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NoError(t, n.SendAlert(LevelInfo, "x"))
}

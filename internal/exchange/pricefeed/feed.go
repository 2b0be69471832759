// Package pricefeed keeps last-trade prices fresh from Bybit's public ticker stream
// and falls back to REST when the stream is stale or disabled.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// DefaultURL is the public linear perpetual stream.
const DefaultURL = "wss://stream.bybit.com/v5/public/linear"

// Config controls the stream.
type Config struct {
	Enabled      bool           `json:"enabled"`
	URL          string         `json:"url"`
	MaxAge       types.Duration `json:"max_age"`
	PingInterval types.Duration `json:"ping_interval"`
}

// PriceSource is the REST fallback, usually the exchange itself.
type PriceSource interface {
	GetLatestPrice(ctx context.Context, symbol string) (float64, error)
}

type quote struct {
	price float64
	at    time.Time
}

// Feed caches streamed prices per symbol.
type Feed struct {
	cfg     Config
	rest    PriceSource
	symbols []string
	log     zerolog.Logger

	mu     sync.RWMutex
	quotes map[string]quote

	writeMu sync.Mutex
	now     func() time.Time
}

// New creates a feed for symbols. Call Run to start streaming.
func New(cfg Config, rest PriceSource, symbols []string, log zerolog.Logger) *Feed {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = types.Duration(10 * time.Second)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = types.Duration(20 * time.Second)
	}
	return &Feed{
		cfg:     cfg,
		rest:    rest,
		symbols: symbols,
		log:     log.With().Str("component", "pricefeed").Logger(),
		quotes:  make(map[string]quote),
		now:     time.Now,
	}
}

// Price returns a streamed price younger than MaxAge, otherwise asks REST and caches the answer.
func (f *Feed) Price(ctx context.Context, symbol string) (float64, error) {
	if p, ok := f.Cached(symbol); ok {
		return p, nil
	}
	p, err := f.rest.GetLatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	f.update(symbol, p)
	return p, nil
}

// GetLatestPrice lets the feed stand in wherever a PriceSource is expected.
func (f *Feed) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	return f.Price(ctx, symbol)
}

// Cached returns the cached price if it is still fresh.
func (f *Feed) Cached(symbol string) (float64, bool) {
	f.mu.RLock()
	q, ok := f.quotes[symbol]
	f.mu.RUnlock()
	if !ok || f.now().Sub(q.at) > f.cfg.MaxAge.Std() {
		return 0, false
	}
	return q.price, true
}

func (f *Feed) update(symbol string, price float64) {
	if price <= 0 {
		return
	}
	f.mu.Lock()
	f.quotes[symbol] = quote{price: price, at: f.now()}
	f.mu.Unlock()
}

// Run streams until ctx is cancelled, reconnecting with exponential backoff.
// With the stream disabled it returns immediately and Price serves REST only.
func (f *Feed) Run(ctx context.Context) error {
	if !f.cfg.Enabled || len(f.symbols) == 0 {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	for {
		start := f.now()
		err := f.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if f.now().Sub(start) > time.Minute {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		f.log.Warn().Err(err).Dur("retry_in", wait).Msg("ticker stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection until it fails or ctx ends.
func (f *Feed) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial ticker stream: %w", err)
	}
	defer conn.Close()

	topics := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		topics = append(topics, "tickers."+s)
	}
	if err := f.writeJSON(conn, map[string]interface{}{"op": "subscribe", "args": topics}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.log.Info().Strs("topics", topics).Msg("ticker stream connected")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()
	go f.keepAlive(sessCtx, conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * f.cfg.PingInterval.Std()))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(data)
	}
}

func (f *Feed) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.cfg.PingInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeJSON(conn, map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

func (f *Feed) writeJSON(conn *websocket.Conn, v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v)
}

type tickerMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

// handleMessage applies ticker snapshots and deltas. Deltas without lastPrice carry other fields only.
func (f *Feed) handleMessage(data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil || !strings.HasPrefix(msg.Topic, "tickers.") {
		return
	}
	if msg.Data.LastPrice == "" {
		return
	}
	price, err := strconv.ParseFloat(msg.Data.LastPrice, 64)
	if err != nil {
		return
	}
	symbol := msg.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Topic, "tickers.")
	}
	f.update(symbol, price)
}

package bybit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InstrumentInfo is the subset of /v5/market/instruments-info the bot sizes orders with.
type InstrumentInfo struct {
	Symbol      string
	Status      string
	MinOrderQty float64
	MaxOrderQty float64
	QtyStep     float64
	MinNotional float64
	TickSize    float64
	MaxLeverage float64
	fetchedAt   time.Time
}

// InstrumentManager caches instrument metadata per symbol.
type InstrumentManager struct {
	client *Client
	mu     sync.RWMutex
	cache  map[string]*InstrumentInfo
	ttl    time.Duration
}

// NewInstrumentManager creates a new instrument manager
func NewInstrumentManager(client *Client) *InstrumentManager {
	return &InstrumentManager{
		client: client,
		cache:  make(map[string]*InstrumentInfo),
		ttl:    time.Hour,
	}
}

// Get returns cached metadata for symbol, refreshing it once older than the TTL.
func (im *InstrumentManager) Get(ctx context.Context, symbol string) (*InstrumentInfo, error) {
	im.mu.RLock()
	info, ok := im.cache[symbol]
	im.mu.RUnlock()
	if ok && time.Since(info.fetchedAt) < im.ttl {
		return info, nil
	}

	params := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
	}
	result, err := im.client.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instrument info: %w", err)
	}

	info, err = parseInstrumentInfoResponse(result, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instrument info: %w", err)
	}
	info.fetchedAt = time.Now()

	im.mu.Lock()
	im.cache[symbol] = info
	im.mu.Unlock()
	return info, nil
}

// Invalidate drops a cached entry so the next Get refetches it.
func (im *InstrumentManager) Invalidate(symbol string) {
	im.mu.Lock()
	delete(im.cache, symbol)
	im.mu.Unlock()
}

func parseInstrumentInfoResponse(response interface{}, symbol string) (*InstrumentInfo, error) {
	var payload struct {
		List []struct {
			Symbol         string `json:"symbol"`
			Status         string `json:"status"`
			LeverageFilter struct {
				MaxLeverage string `json:"maxLeverage"`
			} `json:"leverageFilter"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				MinNotionalValue string `json:"minNotionalValue"`
				MaxOrderQty      string `json:"maxOrderQty"`
				MaxMktOrderQty   string `json:"maxMktOrderQty"`
				MinOrderQty      string `json:"minOrderQty"`
				QtyStep          string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := decodeResult(response, &payload); err != nil {
		return nil, err
	}

	for _, item := range payload.List {
		if item.Symbol != symbol {
			continue
		}
		maxQty := parseFloat(item.LotSizeFilter.MaxMktOrderQty)
		if maxQty <= 0 {
			maxQty = parseFloat(item.LotSizeFilter.MaxOrderQty)
		}
		return &InstrumentInfo{
			Symbol:      item.Symbol,
			Status:      item.Status,
			MinOrderQty: parseFloat(item.LotSizeFilter.MinOrderQty),
			MaxOrderQty: maxQty,
			QtyStep:     parseFloat(item.LotSizeFilter.QtyStep),
			MinNotional: parseFloat(item.LotSizeFilter.MinNotionalValue),
			TickSize:    parseFloat(item.PriceFilter.TickSize),
			MaxLeverage: parseFloat(item.LeverageFilter.MaxLeverage),
		}, nil
	}
	return nil, NewBybitError(ErrCodeSymbolNotFound, "symbol not found", symbol)
}

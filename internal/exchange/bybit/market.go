package bybit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// maxKlineLimit is the per-request cap of /v5/market/kline.
const maxKlineLimit = 1000

// GetKlines fetches linear kline data and returns it oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	params := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	candles, err := parseKlineResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline response: %w", err)
	}
	return candles, nil
}

// parseKlineResponse decodes rows of [start, open, high, low, close, volume, turnover].
// Bybit returns newest first.
func parseKlineResponse(response interface{}) ([]types.OHLCV, error) {
	var payload struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	}
	if err := decodeResult(response, &payload); err != nil {
		return nil, err
	}

	candles := make([]types.OHLCV, 0, len(payload.List))
	for _, row := range payload.List {
		if len(row) < 6 {
			continue
		}
		startMs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, types.OHLCV{
			Timestamp: time.UnixMilli(startMs).UTC(),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// GetLatestPrice gets the latest traded price of a linear contract.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest price: %w", err)
	}

	price, err := parseLatestPriceResponse(result, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price response: %w", err)
	}
	return price, nil
}

func parseLatestPriceResponse(response interface{}, symbol string) (float64, error) {
	var payload struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			MarkPrice string `json:"markPrice"`
		} `json:"list"`
	}
	if err := decodeResult(response, &payload); err != nil {
		return 0, err
	}

	for _, t := range payload.List {
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		price := parseFloat(t.LastPrice)
		if price <= 0 {
			price = parseFloat(t.MarkPrice)
		}
		if price <= 0 {
			return 0, fmt.Errorf("ticker for %s has no price", t.Symbol)
		}
		return price, nil
	}
	return 0, fmt.Errorf("no ticker data found for %s", symbol)
}

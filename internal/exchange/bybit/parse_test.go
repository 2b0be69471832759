package bybit

import (
	"testing"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

func okResponse(result interface{}) *bybit_api.ServerResponse {
	return &bybit_api.ServerResponse{RetCode: 0, RetMsg: "OK", Result: result}
}

func TestParseKlineResponseSortsOldestFirst(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"symbol": "BTCUSDT",
		"list": [][]string{
			{"1700000120000", "102", "103", "101", "102.5", "10", "1025"},
			{"1700000060000", "101", "102", "100", "102", "12", "1224"},
			{"bad"},
		},
	})

	candles, err := parseKlineResponse(resp)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.Equal(t, 102.0, candles[0].Close)
	assert.Equal(t, 102.5, candles[1].Close)
	assert.Equal(t, 103.0, candles[1].High)
}

func TestDecodeResultReturnsAPIError(t *testing.T) {
	resp := &bybit_api.ServerResponse{RetCode: ErrCodeRateLimitExceeded, RetMsg: "Too many visits"}

	_, err := parseKlineResponse(resp)
	require.Error(t, err)
	assert.True(t, IsRetryableError(err))

	_, err = parseKlineResponse("not a response")
	assert.Error(t, err)
}

func TestParseLatestPrice(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": []map[string]string{
			{"symbol": "ETHUSDT", "lastPrice": "", "markPrice": "3100.5"},
		},
	})
	price, err := parseLatestPriceResponse(resp, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3100.5, price)

	_, err = parseLatestPriceResponse(resp, "BTCUSDT")
	assert.Error(t, err)
}

func TestParseInstrumentInfo(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": []map[string]interface{}{
			{
				"symbol":         "SOLUSDT",
				"status":         "Trading",
				"leverageFilter": map[string]string{"maxLeverage": "50.00"},
				"priceFilter":    map[string]string{"tickSize": "0.010"},
				"lotSizeFilter": map[string]string{
					"minNotionalValue": "5",
					"maxOrderQty":      "79770.0",
					"maxMktOrderQty":   "15000.0",
					"minOrderQty":      "0.1",
					"qtyStep":          "0.1",
				},
			},
		},
	})

	info, err := parseInstrumentInfoResponse(resp, "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.1, info.QtyStep)
	assert.Equal(t, 5.0, info.MinNotional)
	assert.Equal(t, 15000.0, info.MaxOrderQty)
	assert.Equal(t, 0.01, info.TickSize)
	assert.Equal(t, 50.0, info.MaxLeverage)

	_, err = parseInstrumentInfoResponse(resp, "XRPUSDT")
	assert.Error(t, err)
}

func TestParseWalletDerivesAvailable(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": []map[string]interface{}{
			{
				"coin": []map[string]string{
					{"coin": "BTC", "walletBalance": "1"},
					{
						"coin":                "USDT",
						"walletBalance":       "1000",
						"availableToWithdraw": "",
						"totalPositionIM":     "150",
						"totalOrderIM":        "50",
						"locked":              "0",
					},
				},
			},
		},
	})

	bal, err := parseWalletResponse(resp, "USDT")
	require.NoError(t, err)
	assert.InDelta(t, 800.0, bal.AvailableToWithdraw, 1e-9)
	assert.Equal(t, 1000.0, bal.WalletBalance)
}

func TestParsePositionsSkipsFlat(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": []map[string]string{
			{"symbol": "BTCUSDT", "side": "Buy", "size": "0.01", "avgPrice": "65000", "leverage": "10", "updatedTime": "1700000000000"},
			{"symbol": "ETHUSDT", "side": "", "size": "0"},
		},
	})

	positions, err := parsePositionsResponse(resp)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, types.SideBuy, positions[0].Side)
	assert.Equal(t, 65000.0, positions[0].AvgPrice)
	assert.False(t, positions[0].UpdatedTime.IsZero())
}

func TestParseOrderFill(t *testing.T) {
	resp := okResponse(map[string]interface{}{
		"list": []map[string]string{{"orderId": "abc", "orderStatus": "Filled", "avgPrice": "101.25"}},
	})
	price, status, err := parseOrderFill(resp, "abc")
	require.NoError(t, err)
	assert.Equal(t, 101.25, price)
	assert.Equal(t, "Filled", status)

	_, _, err = parseOrderFill(resp, "zzz")
	assert.Error(t, err)
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNoopError(NewBybitError(ErrCodeLeverageNotModified, "leverage not modified")))
	assert.True(t, IsAuthenticationError(NewBybitError(ErrCodeInvalidAPIKey, "bad key")))
	assert.True(t, IsInsufficientBalanceError(NewBybitError(ErrCodeInsufficientBalance, "no money")))
	assert.False(t, IsRetryableError(assert.AnError))
	assert.Equal(t, "0.001", formatDecimal(0.001))
	assert.Equal(t, "65000.5", formatDecimal(65000.5))
}

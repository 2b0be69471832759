package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// AccountTypeUnified is the unified trading account used for linear contracts.
const AccountTypeUnified = "UNIFIED"

// CoinBalance is one coin entry of the wallet response.
type CoinBalance struct {
	Coin                string
	WalletBalance       float64
	Equity              float64
	AvailableToWithdraw float64
	UnrealisedPnl       float64
}

// PositionInfo is one row of /v5/position/list.
type PositionInfo struct {
	Symbol        string
	Side          types.Side
	Size          float64
	AvgPrice      float64
	MarkPrice     float64
	UnrealisedPnl float64
	Leverage      float64
	TakeProfit    float64
	StopLoss      float64
	UpdatedTime   time.Time
}

// GetCoinBalance reads the wallet entry of coin in the unified account.
func (c *Client) GetCoinBalance(ctx context.Context, coin string) (*CoinBalance, error) {
	params := map[string]interface{}{
		"accountType": AccountTypeUnified,
		"coin":        coin,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	balance, err := parseWalletResponse(result, coin)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account balance response: %w", err)
	}
	return balance, nil
}

func parseWalletResponse(response interface{}, coin string) (*CoinBalance, error) {
	var payload struct {
		List []struct {
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				Equity              string `json:"equity"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				UnrealisedPnl       string `json:"unrealisedPnl"`
				Locked              string `json:"locked"`
				TotalPositionIM     string `json:"totalPositionIM"`
				TotalOrderIM        string `json:"totalOrderIM"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult(response, &payload); err != nil {
		return nil, err
	}

	for _, account := range payload.List {
		for _, cb := range account.Coin {
			if cb.Coin != coin {
				continue
			}
			available := parseFloat(cb.AvailableToWithdraw)
			if available <= 0 {
				// Unified accounts often leave availableToWithdraw empty; derive it from margin usage.
				available = parseFloat(cb.WalletBalance) - parseFloat(cb.TotalPositionIM) - parseFloat(cb.TotalOrderIM) - parseFloat(cb.Locked)
			}
			if available < 0 {
				available = 0
			}
			return &CoinBalance{
				Coin:                cb.Coin,
				WalletBalance:       parseFloat(cb.WalletBalance),
				Equity:              parseFloat(cb.Equity),
				AvailableToWithdraw: available,
				UnrealisedPnl:       parseFloat(cb.UnrealisedPnl),
			}, nil
		}
	}
	return nil, fmt.Errorf("coin %s not found in wallet", coin)
}

// GetPositions lists linear positions. An empty symbol lists all USDT-settled positions.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]PositionInfo, error) {
	params := map[string]interface{}{
		"category": categoryLinear,
	}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = "USDT"
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	positions, err := parsePositionsResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}
	return positions, nil
}

func parsePositionsResponse(response interface{}) ([]PositionInfo, error) {
	var payload struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			Leverage      string `json:"leverage"`
			TakeProfit    string `json:"takeProfit"`
			StopLoss      string `json:"stopLoss"`
			UpdatedTime   string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := decodeResult(response, &payload); err != nil {
		return nil, err
	}

	positions := make([]PositionInfo, 0, len(payload.List))
	for _, p := range payload.List {
		size := parseFloat(p.Size)
		if size <= 0 {
			continue
		}
		var updated time.Time
		if ms, err := strconv.ParseInt(p.UpdatedTime, 10, 64); err == nil {
			updated = time.UnixMilli(ms).UTC()
		}
		positions = append(positions, PositionInfo{
			Symbol:        p.Symbol,
			Side:          types.ParseSide(p.Side),
			Size:          size,
			AvgPrice:      parseFloat(p.AvgPrice),
			MarkPrice:     parseFloat(p.MarkPrice),
			UnrealisedPnl: parseFloat(p.UnrealisedPnl),
			Leverage:      parseFloat(p.Leverage),
			TakeProfit:    parseFloat(p.TakeProfit),
			StopLoss:      parseFloat(p.StopLoss),
			UpdatedTime:   updated,
		})
	}
	return positions, nil
}

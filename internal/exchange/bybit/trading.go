package bybit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ducminhle1904/crypto-futures-bot/pkg/types"
)

// MarketOrderRequest is a linear market order.
type MarketOrderRequest struct {
	Symbol      string
	Side        types.Side
	Qty         float64
	ReduceOnly  bool
	OrderLinkID string
	TakeProfit  float64
	StopLoss    float64
}

// OrderAck is what /v5/order/create returns. Fills are reported asynchronously.
type OrderAck struct {
	OrderID     string
	OrderLinkID string
}

// PlaceMarketOrder submits a one-way mode market order on a linear contract.
func (c *Client) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*OrderAck, error) {
	params := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   "Market",
		"qty":         formatDecimal(req.Qty),
		"positionIdx": 0,
	}
	if req.ReduceOnly {
		params["reduceOnly"] = true
	}
	if req.OrderLinkID != "" {
		params["orderLinkId"] = req.OrderLinkID
	}
	if req.TakeProfit > 0 {
		params["takeProfit"] = formatDecimal(req.TakeProfit)
		params["tpTriggerBy"] = "LastPrice"
	}
	if req.StopLoss > 0 {
		params["stopLoss"] = formatDecimal(req.StopLoss)
		params["slTriggerBy"] = "LastPrice"
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	var payload struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := decodeResult(result, &payload); err != nil {
		return nil, err
	}
	return &OrderAck{OrderID: payload.OrderID, OrderLinkID: payload.OrderLinkID}, nil
}

// GetOrderAvgPrice looks an order up in recent history and returns its average fill price.
func (c *Client) GetOrderAvgPrice(ctx context.Context, symbol, orderID string) (float64, string, error) {
	params := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("failed to get order history: %w", err)
	}
	return parseOrderFill(result, orderID)
}

func parseOrderFill(response interface{}, orderID string) (float64, string, error) {
	var payload struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderStatus string `json:"orderStatus"`
			AvgPrice    string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := decodeResult(response, &payload); err != nil {
		return 0, "", err
	}
	for _, o := range payload.List {
		if o.OrderID == orderID {
			return parseFloat(o.AvgPrice), o.OrderStatus, nil
		}
	}
	return 0, "", NewBybitError(ErrCodeOrderNotFound, "order not found", orderID)
}

// SetLeverage sets buy and sell leverage. An unchanged leverage is not an error.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	params := map[string]interface{}{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionLeverage(ctx)
	if err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}
	if err := decodeResult(result, nil); err != nil && !IsNoopError(err) {
		return err
	}
	return nil
}

// SetTradingStop sets full-position TP/SL. A zero price leaves that side untouched.
func (c *Client) SetTradingStop(ctx context.Context, symbol string, takeProfit, stopLoss float64) error {
	params := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      symbol,
		"tpslMode":    "Full",
		"positionIdx": 0,
	}
	if takeProfit > 0 {
		params["takeProfit"] = formatDecimal(takeProfit)
		params["tpTriggerBy"] = "LastPrice"
	}
	if stopLoss > 0 {
		params["stopLoss"] = formatDecimal(stopLoss)
		params["slTriggerBy"] = "LastPrice"
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).SetPositionTradingStop(ctx)
	if err != nil {
		return fmt.Errorf("failed to set trading stop: %w", err)
	}
	if err := decodeResult(result, nil); err != nil && !IsNoopError(err) {
		return err
	}
	return nil
}

// CancelAllOrders cancels every open order, conditional ones included, for symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
	}
	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelAllOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel orders: %w", err)
	}
	return decodeResult(result, nil)
}

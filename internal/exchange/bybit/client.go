package bybit

import (
	"encoding/json"
	"fmt"
	"strconv"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
)

// DemoBaseURL is Bybit's demo trading environment.
const DemoBaseURL = "https://api-demo.bybit.com"

// categoryLinear is the USDT perpetual product family.
const categoryLinear = "linear"

// Client wraps the Bybit API client with the endpoints the futures bot uses.
type Client struct {
	httpClient  *bybit_api.Client
	testnet     bool
	demo        bool
	instruments *InstrumentManager
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	baseURL := bybit_api.MAINNET
	switch {
	case config.Demo:
		baseURL = DemoBaseURL
	case config.Testnet:
		baseURL = bybit_api.TESTNET
	}

	c := &Client{
		httpClient: bybit_api.NewBybitHttpClient(
			config.APIKey,
			config.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		testnet: config.Testnet,
		demo:    config.Demo,
	}
	c.instruments = NewInstrumentManager(c)
	return c
}

// IsTestnet returns whether the client is configured for testnet
func (c *Client) IsTestnet() bool { return c.testnet }

// IsDemo returns whether the client is configured for demo trading
func (c *Client) IsDemo() bool { return c.demo }

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	switch {
	case c.demo:
		return "demo"
	case c.testnet:
		return "testnet"
	default:
		return "mainnet"
	}
}

// Instruments returns the cached instrument metadata store.
func (c *Client) Instruments() *InstrumentManager { return c.instruments }

// decodeResult checks the envelope of an SDK response and unmarshals its result into out.
func decodeResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type %T", response)
	}
	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// parseFloat treats empty strings as zero, matching Bybit's habit of sending "" for unset fields.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// formatDecimal renders v without exponent or float noise.
func formatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

package exchange

import (
	"fmt"
	"strings"
)

// ExchangeConfig holds configuration for creating exchange instances
type ExchangeConfig struct {
	Name   string       `json:"name"` // bybit | paper
	Bybit  *BybitConfig `json:"bybit,omitempty"`
	DryRun bool         `json:"-"` // set from trading.dry_run / DRY_RUN
	Paper  PaperConfig  `json:"paper"`
}

// BybitConfig holds Bybit-specific configuration
type BybitConfig struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
	Demo      bool   `json:"demo"`
}

// PaperConfig tunes the simulated venue used for dry runs.
type PaperConfig struct {
	StartingBalance float64 `json:"starting_balance"`
	TakerFeeRate    float64 `json:"taker_fee_rate"`
	SlippageBps     float64 `json:"slippage_bps"`
}

// SupportedExchanges lists accepted values of ExchangeConfig.Name.
func SupportedExchanges() []string {
	return []string{"bybit", "paper"}
}

// ValidateConfig checks the exchange section. Credentials are only required for live trading.
func ValidateConfig(config ExchangeConfig) error {
	name := strings.ToLower(strings.TrimSpace(config.Name))
	switch name {
	case "":
		return &ExchangeError{Code: "MISSING_EXCHANGE_NAME", Message: "exchange name is required"}
	case "paper":
		return nil
	case "bybit":
		return validateBybitConfig(config.Bybit, config.DryRun)
	default:
		return &ExchangeError{
			Code:    "UNSUPPORTED_EXCHANGE",
			Message: fmt.Sprintf("exchange '%s' is not supported", config.Name),
			Details: fmt.Sprintf("supported exchanges: %v", SupportedExchanges()),
		}
	}
}

func validateBybitConfig(config *BybitConfig, dryRun bool) error {
	if config == nil {
		if dryRun {
			return nil
		}
		return &ExchangeError{Code: "MISSING_BYBIT_CONFIG", Message: "bybit configuration is required"}
	}
	if config.Testnet && config.Demo {
		return &ExchangeError{
			Code:    "INVALID_ENVIRONMENT_CONFIG",
			Message: "cannot use both testnet and demo mode simultaneously",
		}
	}
	if dryRun {
		return nil
	}
	if config.APIKey == "" {
		return &ExchangeError{
			Code:    "MISSING_API_KEY",
			Message: "bybit api key is required",
			Details: "set BYBIT_API_KEY environment variable or provide in config",
		}
	}
	if config.APISecret == "" {
		return &ExchangeError{
			Code:    "MISSING_API_SECRET",
			Message: "bybit api secret is required",
			Details: "set BYBIT_API_SECRET environment variable or provide in config",
		}
	}
	return nil
}

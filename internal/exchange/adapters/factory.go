package adapters

import (
	"fmt"
	"strings"

	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange"
	"github.com/ducminhle1904/crypto-futures-bot/internal/exchange/paper"
)

// CreateExchange builds the venue named in config. With DryRun set, or for the
// "paper" venue, live Bybit market data feeds a simulated account.
func CreateExchange(config exchange.ExchangeConfig) (exchange.FuturesExchange, error) {
	if err := exchange.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch strings.ToLower(strings.TrimSpace(config.Name)) {
	case "bybit":
		live := NewBybitAdapter(config.Bybit)
		if config.DryRun {
			return paper.New(live, config.Paper), nil
		}
		return live, nil
	case "paper":
		// public endpoints only, no credentials needed
		return paper.New(NewBybitAdapter(&exchange.BybitConfig{}), config.Paper), nil
	default:
		return nil, fmt.Errorf("unsupported exchange %q", config.Name)
	}
}

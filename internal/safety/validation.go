package safety

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,20}(USDT|USDC|USD|PERP)$`)

// ValidationResult represents the result of a validation check
type ValidationResult struct {
	Valid   bool
	Message string
	Code    string
}

// Err converts a failed result into an error, nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Code, r.Message)
}

func ok() ValidationResult { return ValidationResult{Valid: true} }

func fail(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidatePrice rejects prices that cannot come from a healthy market feed.
func ValidatePrice(price float64, symbol string) ValidationResult {
	switch {
	case math.IsNaN(price) || math.IsInf(price, 0):
		return fail("INVALID_PRICE_NAN", "price for %s is not a number", symbol)
	case price <= 0:
		return fail("INVALID_PRICE_NEGATIVE", "price %.8f for %s must be positive", price, symbol)
	case price > 1e10:
		return fail("PRICE_OUT_OF_BOUNDS", "price %.8f for %s exceeds reasonable bounds", price, symbol)
	}
	return ok()
}

// ValidateQuantity rejects non-positive or non-finite order sizes.
func ValidateQuantity(qty float64, symbol string) ValidationResult {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return fail("INVALID_QTY_NAN", "quantity for %s is not a number", symbol)
	}
	if qty <= 0 {
		return fail("INVALID_QTY", "quantity %.8f for %s must be positive", qty, symbol)
	}
	return ok()
}

// ValidateSymbol checks the linear-contract naming used by the exchange.
func ValidateSymbol(symbol string) ValidationResult {
	if symbol == "" {
		return fail("EMPTY_SYMBOL", "symbol is empty")
	}
	if symbol != strings.ToUpper(symbol) || !symbolPattern.MatchString(symbol) {
		return fail("INVALID_SYMBOL", "symbol %q is not a linear contract name", symbol)
	}
	return ok()
}

// ValidateOrder runs the pre-trade checks for a market order.
func ValidateOrder(symbol string, price, qty float64) error {
	for _, r := range []ValidationResult{ValidateSymbol(symbol), ValidatePrice(price, symbol), ValidateQuantity(qty, symbol)} {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}

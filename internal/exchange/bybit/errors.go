package bybit

import (
	"errors"
	"fmt"
)

// BybitError represents a Bybit API error with additional context
type BybitError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *BybitError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Bybit API error %d: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("Bybit API error %d: %s", e.Code, e.Message)
}

// Common Bybit error codes
const (
	ErrCodeInvalidAPIKey        = 10003
	ErrCodeInvalidSignature     = 10004
	ErrCodePermissionDenied     = 10005
	ErrCodeRateLimitExceeded    = 10006
	ErrCodeServerTimeout        = 10000
	ErrCodeServerError          = 10016
	ErrCodeOrderNotFound        = 110001
	ErrCodeInsufficientBalance  = 110007
	ErrCodeSymbolNotFound       = 110009
	ErrCodeInvalidQuantity      = 110020
	ErrCodeLeverageNotModified  = 110043
	ErrCodeTradingStopUnchanged = 34040
	ErrCodeReduceOnlyNoPosition = 110017
)

func asBybitError(err error) (*BybitError, bool) {
	var be *BybitError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	be, ok := asBybitError(err)
	if !ok {
		return false
	}
	switch be.Code {
	case ErrCodeRateLimitExceeded, ErrCodeServerTimeout, ErrCodeServerError:
		return true
	}
	return false
}

// IsAuthenticationError checks if the error is related to authentication
func IsAuthenticationError(err error) bool {
	be, ok := asBybitError(err)
	if !ok {
		return false
	}
	switch be.Code {
	case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodePermissionDenied:
		return true
	}
	return false
}

// IsInsufficientBalanceError checks if the error is due to insufficient balance
func IsInsufficientBalanceError(err error) bool {
	be, ok := asBybitError(err)
	return ok && be.Code == ErrCodeInsufficientBalance
}

// IsNoopError reports errors Bybit returns when a setting already has the requested value.
func IsNoopError(err error) bool {
	be, ok := asBybitError(err)
	return ok && (be.Code == ErrCodeLeverageNotModified || be.Code == ErrCodeTradingStopUnchanged)
}

// IsNoPositionError reports a reduce-only order against a flat position.
func IsNoPositionError(err error) bool {
	be, ok := asBybitError(err)
	return ok && be.Code == ErrCodeReduceOnlyNoPosition
}

// NewBybitError creates a new BybitError
func NewBybitError(code int, message string, details ...string) *BybitError {
	err := &BybitError{Code: code, Message: message}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// ParseAPIError extracts error information from the API response
func ParseAPIError(retCode int, retMsg string) error {
	if retCode == 0 {
		return nil
	}
	return NewBybitError(retCode, retMsg)
}

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	// Errors that should stop the bot
	ErrorCategoryFatal         ErrorCategory = "FATAL"
	ErrorCategoryExchange      ErrorCategory = "EXCHANGE"
	ErrorCategoryCredentials   ErrorCategory = "CREDENTIALS"
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"

	// Errors scoped to one operation
	ErrorCategoryNetwork    ErrorCategory = "NETWORK"
	ErrorCategoryTimeout    ErrorCategory = "TIMEOUT"
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
	ErrorCategoryOrder      ErrorCategory = "ORDER"
	ErrorCategoryPosition   ErrorCategory = "POSITION"
	ErrorCategoryStrategy   ErrorCategory = "STRATEGY"

	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
)

// BotError represents a categorized error with context
type BotError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Context    map[string]interface{}
	Retryable  bool
}

func (e *BotError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *BotError) Unwrap() error {
	return e.Underlying
}

// IsRetryable returns whether this error can be retried
func (e *BotError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal returns whether this error should stop the bot
func (e *BotError) IsFatal() bool {
	return e.Category == ErrorCategoryFatal ||
		e.Category == ErrorCategoryCredentials ||
		e.Category == ErrorCategoryConfiguration
}

// NewBotError creates a new categorized bot error
func NewBotError(category ErrorCategory, component, operation, message string) *BotError {
	return &BotError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Retryable: isRetryableCategory(category),
	}
}

// WrapError wraps an existing error with bot error context
func WrapError(err error, category ErrorCategory, component, operation string) *BotError {
	if err == nil {
		return nil
	}
	return &BotError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
		Context:    make(map[string]interface{}),
		Retryable:  isRetryableCategory(category),
	}
}

// WithContext adds context information to the error
func (e *BotError) WithContext(key string, value interface{}) *BotError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRetryable sets the retryable flag
func (e *BotError) WithRetryable(retryable bool) *BotError {
	e.Retryable = retryable
	return e
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryTemporary, ErrorCategoryRateLimit, ErrorCategoryExchange:
		return true
	default:
		return false
	}
}

// temporary is implemented by transport errors that know whether a retry can help,
// e.g. exchange.ExchangeError.
type temporary interface {
	Temporary() bool
}

// CategorizeError attempts to categorize a generic error
func CategorizeError(err error, component, operation string) *BotError {
	if err == nil {
		return nil
	}

	var botErr *BotError
	if stderrors.As(err, &botErr) {
		return botErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrorCategoryTimeout, component, operation)
	}
	if stderrors.Is(err, context.Canceled) {
		return WrapError(err, ErrorCategoryTemporary, component, operation).WithRetryable(false)
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "api secret") ||
		strings.Contains(errMsg, "authentication") || strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "invalid signature"):
		return WrapError(err, ErrorCategoryCredentials, component, operation)
	case strings.Contains(errMsg, "rate limit") || strings.Contains(errMsg, "too many requests"):
		return WrapError(err, ErrorCategoryRateLimit, component, operation)
	case strings.Contains(errMsg, "insufficient") || strings.Contains(errMsg, "balance"):
		return WrapError(err, ErrorCategoryOrder, component, operation).WithRetryable(false)
	}

	var tmp temporary
	if stderrors.As(err, &tmp) {
		return WrapError(err, ErrorCategoryExchange, component, operation).WithRetryable(tmp.Temporary())
	}

	switch {
	case strings.Contains(errMsg, "timeout"):
		return WrapError(err, ErrorCategoryTimeout, component, operation)
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "dns") || strings.Contains(errMsg, "dial") || strings.Contains(errMsg, "eof"):
		return WrapError(err, ErrorCategoryNetwork, component, operation)
	case strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "constraint") ||
		strings.Contains(errMsg, "minimum") || strings.Contains(errMsg, "maximum"):
		return WrapError(err, ErrorCategoryValidation, component, operation)
	}

	return WrapError(err, ErrorCategoryTemporary, component, operation)
}

// IsRetryable reports whether err is worth retrying once categorized.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return CategorizeError(err, "", "").Retryable
}

func NewNetworkError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryNetwork, component, operation)
}

func NewValidationError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryValidation, component, operation, message)
}

func NewConfigurationError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryConfiguration, component, operation, message)
}

func NewCredentialsError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryCredentials, component, operation, message)
}

func NewOrderError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryOrder, component, operation)
}

func NewPositionError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryPosition, component, operation)
}

func NewStrategyError(component, operation string, err error) *BotError {
	return WrapError(err, ErrorCategoryStrategy, component, operation)
}

func NewFatalError(component, operation, message string) *BotError {
	return NewBotError(ErrorCategoryFatal, component, operation, message)
}

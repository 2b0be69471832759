package recovery

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ducminhle1904/crypto-futures-bot/internal/errors"
	"github.com/ducminhle1904/crypto-futures-bot/internal/safety"
)

// RetryConfig controls exponential backoff for one class of calls.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig suits REST calls to the exchange.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  20 * time.Second,
	}
}

// RecoveryHandler retries retryable failures and reports every categorized error.
type RecoveryHandler struct {
	config  RetryConfig
	log     zerolog.Logger
	onError func(*errors.BotError)
}

// NewRecoveryHandler creates a new recovery handler
func NewRecoveryHandler(config RetryConfig, log zerolog.Logger) *RecoveryHandler {
	def := DefaultRetryConfig()
	if config.InitialInterval <= 0 {
		config.InitialInterval = def.InitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = def.MaxInterval
	}
	if config.MaxElapsedTime <= 0 {
		config.MaxElapsedTime = def.MaxElapsedTime
	}
	return &RecoveryHandler{config: config, log: log.With().Str("component", "recovery").Logger()}
}

// OnError registers a hook called for every failed attempt, e.g. to count errors by category.
func (rh *RecoveryHandler) OnError(fn func(*errors.BotError)) {
	rh.onError = fn
}

func (rh *RecoveryHandler) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = rh.config.InitialInterval
	exp.MaxInterval = rh.config.MaxInterval
	exp.MaxElapsedTime = rh.config.MaxElapsedTime

	var b backoff.BackOff = exp
	if rh.config.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, rh.config.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Execute runs fn and retries it while the failure is categorized as retryable.
// The returned error is the last failure as a *errors.BotError.
func (rh *RecoveryHandler) Execute(ctx context.Context, component, operation string, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		botErr := errors.CategorizeError(err, component, operation)
		if rh.onError != nil {
			rh.onError(botErr)
		}
		if !botErr.Retryable || stderrors.Is(err, safety.ErrCircuitOpen) || ctx.Err() != nil {
			return backoff.Permanent(botErr)
		}
		return botErr
	}

	notify := func(err error, wait time.Duration) {
		rh.log.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("retrying after failure")
	}

	err := backoff.RetryNotify(op, rh.newBackOff(ctx), notify)
	if err == nil {
		return nil
	}
	var botErr *errors.BotError
	if stderrors.As(err, &botErr) {
		return botErr
	}
	return errors.CategorizeError(err, component, operation)
}

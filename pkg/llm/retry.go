package llm

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/logger"
)

// RetryConfig controls how transient provider errors are retried
type RetryConfig struct {
	Attempts     int    `mapstructure:"attempts"`
	InitialDelay int    `mapstructure:"initial_delay_ms"`
	MaxDelay     int    `mapstructure:"max_delay_ms"`
	BackoffType  string `mapstructure:"backoff_type"` // "fixed" or "exponential"
}

// DefaultRetryConfig is used when no retry attempts are configured
var DefaultRetryConfig = RetryConfig{
	Attempts:     3,
	InitialDelay: 1000,
	MaxDelay:     10000,
	BackoffType:  "exponential",
}

// executeWithRetry runs operation, retrying errors accepted by retryable.
func executeWithRetry(ctx context.Context, cfg RetryConfig, provider string, retryable func(error) bool, operation func() error) error {
	if cfg.Attempts <= 1 {
		return operation()
	}

	initialDelay := time.Duration(cfg.InitialDelay) * time.Millisecond
	maxDelay := time.Duration(cfg.MaxDelay) * time.Millisecond

	var delayType retry.DelayTypeFunc
	switch cfg.BackoffType {
	case "fixed":
		delayType = retry.FixedDelay
	default:
		delayType = retry.BackOffDelay
	}

	var originalErrors []error
	err := retry.Do(
		func() error {
			err := operation()
			if err != nil {
				originalErrors = append(originalErrors, err)
			}
			return err
		},
		retry.RetryIf(retryable),
		retry.Attempts(uint(cfg.Attempts)),
		retry.Delay(initialDelay),
		retry.DelayType(delayType),
		retry.MaxDelay(maxDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).
				WithField("provider", provider).
				WithField("attempt", n+1).
				WithField("max_attempts", cfg.Attempts).
				Warn("retrying provider call")
		}),
	)
	if err != nil && len(originalErrors) > 1 {
		return errors.Wrapf(err, "%s call failed after %d attempts", provider, len(originalErrors))
	}
	return err
}

package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// RetryConfig controls how the client retries transient bridge failures
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig retries a few times within a couple of seconds, so a
// pass does not fail while the bridge is still starting.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// errTransient marks a failure worth retrying
var errTransient = errors.New("transient bridge failure")

func transientStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// withRetry runs fn until it succeeds, fails with a non-transient error,
// or the retries run out.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, errTransient) {
			return err
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vietddude/nftscan/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for interactive queries.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFailover:
		return "failover"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var rangeTooLargePatterns = []string{
	"block range",
	"range is too large",
	"range too large",
	"more than 10000 results",
	"query returned more than",
	"log response size exceeded",
	"response size should not greater than",
}

// IsRangeTooLarge reports whether a provider rejected an eth_getLogs request
// because of its block span or result count. Narrowing the range, not
// retrying it, is the remedy.
func IsRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, p := range rangeTooLargePatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// Fatal (Code or Request issues)
	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionFatal
	}
	if strings.Contains(sLower, "execution reverted") || IsRangeTooLarge(err) {
		return ActionFatal
	}

	// Failover (Provider specific issues)
	if errors.Is(err, provider.ErrThrottled) ||
		strings.Contains(s, "429") || strings.Contains(sLower, "too many requests") ||
		strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "quota") || strings.Contains(sLower, "plan limit") ||
		strings.Contains(sLower, "unauthorized") ||
		strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "count exceeded") {
		return ActionFailover
	}

	// Default to Retry (Network, 5xx, etc)
	return ActionRetry
}

// CallWithRetry executes an RPC call with exponential backoff.
func CallWithRetry(
	ctx context.Context,
	p provider.Provider,
	method string,
	params []any,
	config RetryConfig,
) (any, error) {
	return withRetry(ctx, config, func() (any, error) {
		return p.Call(ctx, method, params)
	})
}

// BatchCallWithRetry executes a batch with exponential backoff. Only
// whole-batch failures are retried; per-item errors are part of the result.
func BatchCallWithRetry(
	ctx context.Context,
	p provider.Provider,
	requests []provider.BatchRequest,
	config RetryConfig,
) ([]provider.BatchResponse, error) {
	return withRetry(ctx, config, func() ([]provider.BatchResponse, error) {
		return p.BatchCall(ctx, requests)
	})
}

// CallWithRetryAndFailover tries each provider in router order with retry.
func CallWithRetryAndFailover(
	ctx context.Context,
	router Router,
	chainID string,
	method string,
	params []any,
	config RetryConfig,
) (any, error) {
	return withFailover(ctx, router, chainID, func(p provider.Provider) (any, error) {
		return CallWithRetry(ctx, p, method, params, config)
	})
}

// BatchCallWithRetryAndFailover sends the whole batch to one provider at a
// time, moving to the next provider on whole-batch failure.
func BatchCallWithRetryAndFailover(
	ctx context.Context,
	router Router,
	chainID string,
	requests []provider.BatchRequest,
	config RetryConfig,
) ([]provider.BatchResponse, error) {
	return withFailover(ctx, router, chainID, func(p provider.Provider) ([]provider.BatchResponse, error) {
		return BatchCallWithRetry(ctx, p, requests, config)
	})
}

func withRetry[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(config.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Fatal and failover errors are returned immediately; the caller
		// decides whether another provider should see the request.
		if action := ClassifyError(err); action != ActionRetry {
			return zero, err
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(Backoff(attempt, config)):
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func withFailover[T any](
	ctx context.Context,
	router Router,
	chainID string,
	fn func(p provider.Provider) (T, error),
) (T, error) {
	var zero T

	providers := router.GetAllProviders(chainID)
	if len(providers) == 0 {
		return zero, fmt.Errorf("no providers for chain %s", chainID)
	}

	var lastErr error
	for _, p := range providers {
		start := time.Now()
		result, err := fn(p)
		if err == nil {
			router.RecordSuccess(p.GetName(), time.Since(start))
			return result, nil
		}

		lastErr = err

		// Fatal errors describe the request, not the provider
		if ClassifyError(err) == ActionFatal {
			return zero, fmt.Errorf("fatal error from provider %s: %w", p.GetName(), err)
		}
		router.RecordFailure(p.GetName(), err)

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all providers failed: %w", lastErr)
}

// Backoff returns the delay before retry number attempt+1.
func Backoff(attempt int, config RetryConfig) time.Duration {
	multiple := config.BackoffMultiple
	if multiple <= 0 {
		multiple = 2.0
	}
	delay := float64(config.InitialDelay) * math.Pow(multiple, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

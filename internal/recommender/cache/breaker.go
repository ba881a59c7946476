package cache

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/common/metrics"
)

const breakerName = "recommendation-cache"

// callerDoneError wraps an error returned after the caller's context ended.
type callerDoneError struct {
	err error
}

func (e callerDoneError) Error() string { return e.err.Error() }

func (e callerDoneError) Unwrap() error { return e.err }

// newBreaker opens after `failures` consecutive backend errors and probes
// again after openTimeout. A cache miss or a caller's own cancellation is
// not a failure.
func newBreaker(failures uint32, openTimeout time.Duration, log logger.Logger) *gobreaker.CircuitBreaker[interface{}] {
	if failures == 0 {
		failures = 5
	}
	if openTimeout <= 0 {
		openTimeout = 10 * time.Second
	}

	metrics.CacheBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var done callerDoneError
			return err == nil || errors.Is(err, redis.Nil) || errors.As(err, &done)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("cache circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.CacheBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

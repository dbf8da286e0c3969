// Package breaker puts a circuit breaker in front of the third-party HTTP services
// so a dead upstream fails requests fast instead of tying up workers.
package breaker

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"tourdoc/apperr"
	"tourdoc/logging"
	"tourdoc/metrics"
)

type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New returns a breaker that opens after 5 consecutive failures and probes again
// after a minute. Caller-side errors (validation) do not count as failures.
func New(name string) *Breaker {
	metrics.BreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperr.Is(err, apperr.KindValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("service", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &Breaker{name: name, cb: cb}
}

// Do runs fn through b. A rejected call (open circuit) is reported as a remote
// service failure.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RemoteCalls.WithLabelValues(b.name, "rejected").Inc()
			return zero, apperr.Remote(b.name, err, "%s is temporarily unavailable", b.name)
		}
		metrics.RemoteCalls.WithLabelValues(b.name, "failure").Inc()
		return zero, err
	}
	metrics.RemoteCalls.WithLabelValues(b.name, "success").Inc()
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

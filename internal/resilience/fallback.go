package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every provider in a [FallbackGroup] either
// failed or was skipped because its breaker is open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is applied to the circuit breaker created for each
// provider registered in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// backend is one registered provider together with its breaker.
type backend[T any] struct {
	label   string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary provider and any number of fallbacks of
// the same type, each guarded by its own [CircuitBreaker]. Calls walk the
// providers in registration order until one succeeds; open breakers are
// skipped without touching the provider.
//
// Register all providers before the first call. Execution itself is safe
// for concurrent use.
type FallbackGroup[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first provider.
// Use [FallbackGroup.AddFallback] for the rest.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback registers another provider. Fallbacks are tried in the
// order they were added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.backends = append(fg.backends, backend[T]{
		label:   name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn against each provider until one succeeds. When all of
// them fail, the per-provider errors are joined under [ErrAllFailed].
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. It is a package-level function because methods cannot introduce
// their own type parameters.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var errs []error
	for i := range fg.backends {
		b := &fg.backends[i]

		var result R
		err := b.breaker.Execute(func() (execErr error) {
			result, execErr = fn(b.value)
			return execErr
		})
		if err == nil {
			return result, nil
		}
		noteFailure(b.label, err)
		errs = append(errs, fmt.Errorf("%s: %w", b.label, err))
	}

	var zero R
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

func noteFailure(label string, err error) {
	if errors.Is(err, ErrCircuitOpen) {
		slog.Debug("provider skipped, breaker open", "provider", label)
		return
	}
	slog.Warn("provider failed, trying next", "provider", label, "error", err)
}

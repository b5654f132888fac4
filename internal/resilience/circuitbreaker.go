// Package resilience keeps transcription running when a backend starts
// failing. [CircuitBreaker] is a three-state breaker that stops calls to
// an unhealthy dependency and probes it back into service after a cooling
// period. [FallbackGroup] lines up interchangeable providers behind
// per-provider breakers, and [FallbackTranscriber] packages that failover
// as a plain [stt.Transcriber] for the pipeline.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls: either the reset timeout has not elapsed yet, or the
// half-open probe budget is already spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call. This is the healthy state.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after
	// too many consecutive failures, left once the reset timeout elapses.
	StateOpen

	// StateHalfOpen admits a limited number of probe calls. Successful
	// probes close the breaker, a single failed probe re-opens it.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

// String returns the human-readable name of the state.
func (s State) String() string {
	if s < StateClosed || s > StateHalfOpen {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is the cooling period before a tripped breaker starts
	// probing again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax caps the probe calls admitted per half-open round.
	// Default: 3.
	HalfOpenMax int
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return cfg
}

// CircuitBreaker implements the closed, open, half-open breaker pattern
// in front of a single backend.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu         sync.Mutex
	state      State
	failures   int       // consecutive failures while closed
	trippedAt  time.Time // refreshed every time the breaker opens
	probes     int       // calls admitted in the current half-open round
	probeFails int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero config fields take
// the documented defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg = cfg.withDefaults()
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn unless the breaker refuses the call, in which case
// [ErrCircuitOpen] is returned and fn is never invoked. The outcome of an
// admitted call feeds the breaker's failure accounting.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed, moving the breaker from open
// to half-open once the reset timeout has elapsed. probe reports whether
// the call counts against the half-open budget.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.trippedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeFails = 0, 0
		slog.Info("circuit breaker probing backend", "name", cb.name)
	}
	if cb.state != StateHalfOpen {
		return false, nil
	}
	if cb.probes >= cb.halfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.probes++
	return true, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, callErr error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case callErr == nil && probe:
		if cb.probes-cb.probeFails >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failures, cb.probes, cb.probeFails = 0, 0, 0
			slog.Info("circuit breaker closed, backend recovered", "name", cb.name)
		}
	case callErr == nil:
		cb.failures = 0
	case probe:
		// One failed probe is enough to re-open for a full timeout.
		cb.probeFails++
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		cb.trippedAt = time.Now()
		slog.Warn("circuit breaker reopened, probe failed", "name", cb.name)
	default:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.trippedAt = time.Now()
			slog.Warn("circuit breaker opened",
				"name", cb.name, "failures", cb.failures)
		}
	}
}

// State returns the breaker's current mode. A tripped breaker whose reset
// timeout has elapsed reports [StateHalfOpen] even though the stored state
// only changes on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.trippedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes, cb.probeFails = 0, 0
	slog.Info("circuit breaker reset", "name", cb.name)
}

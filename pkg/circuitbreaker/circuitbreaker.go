// Package circuitbreaker guards calls to flaky external collaborators,
// primarily the rate-limited identity provider: after repeated failures
// the breaker opens and callers fail immediately instead of stalling on a
// sick upstream.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a request without running it.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // failing fast
	StateHalfOpen              // probing for recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes in half-open before closing
	Timeout          time.Duration // open duration before probing
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	config Config

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	stateChanged time.Time
}

// New creates a new circuit breaker with the given configuration
func New(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config:       config,
		state:        StateClosed,
		stateChanged: time.Now(),
	}
}

// Execute runs fn through the breaker. When the breaker is open, fn is
// not called and ErrOpen is returned.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return fmt.Errorf("%w, request rejected", ErrOpen)
	}

	err := fn()
	cb.record(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.stateChanged) < cb.config.Timeout {
			return false
		}
		cb.transition(StateHalfOpen)
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) transition(next State) {
	if cb.state == next {
		return
	}
	cb.state = next
	cb.stateChanged = time.Now()
	cb.successes = 0
}

package torerr

import (
	"sync"
	"time"
)

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	// BreakerClosed is normal operation.
	BreakerClosed CircuitBreakerState = iota
	// BreakerOpen fails every request fast.
	BreakerOpen
	// BreakerHalfOpen allows one probe request through.
	BreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes one CircuitBreaker.
type CircuitBreakerConfig struct {
	MaxFailures int
	Timeout     time.Duration
}

// DefaultCircuitBreakerConfig opens after 5 consecutive dial failures and
// probes again after 30s.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{MaxFailures: 5, Timeout: 30 * time.Second}
}

// CircuitBreaker guards repeated dials to one relay identity: once a relay
// has failed MaxFailures dials in a row the breaker opens and further
// Before calls fail fast (returning a retryable OnionDialFailed error saying
// the breaker is open) until Timeout elapses, at which point one probe is
// let through (half-open). This is separate from the flow-control circuit
// of the onion protocol itself; "circuit" here is the fault-tolerance
// pattern.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      *CircuitBreakerConfig
	state    CircuitBreakerState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker constructs a closed breaker.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed}
}

// Before reports whether a dial attempt should proceed, returning an error
// if the breaker is open and the timeout has not yet elapsed.
func (cb *CircuitBreaker) Before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.openedAt) < cb.cfg.Timeout {
			return NewRetryable(CategoryOnionDialFailed, SeverityMedium,
				"circuit breaker open for this relay, retry later")
		}
		cb.state = BreakerHalfOpen
		return nil
	default:
		return nil
	}
}

// After records the outcome of a dial attempt gated by Before.
func (cb *CircuitBreaker) After(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failures = 0
		cb.state = BreakerClosed
		return
	}

	switch cb.state {
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.openedAt = time.Now()
	default:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.state = BreakerOpen
			cb.openedAt = time.Now()
		}
	}
}

// State reports the breaker's current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

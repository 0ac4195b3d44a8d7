// Package resilience classifies failures from the services reportflow
// talks to and wraps calls to them in retry and circuit-breaker policies.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the observable condition of a CircuitBreaker.
type CircuitState int

const (
	// CircuitClosed passes calls through and counts failures.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects every call until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe call through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned for calls rejected without being attempted.
var ErrCircuitOpen = eris.New("circuit open")

// CircuitBreakerConfig tunes a CircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before allowing
	// a probe.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count against the threshold.
	// Nil counts every non-nil error.
	ShouldTrip func(err error) bool

	// OnStateChange observes every transition.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after five straight failures and probes
// again after thirty seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker guards one downstream service. After FailureThreshold
// consecutive failures it fails fast with ErrCircuitOpen, then probes the
// service with one call per ResetTimeout window until a probe succeeds.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewCircuitBreaker builds a closed breaker, filling unset config fields
// from DefaultCircuitBreakerConfig.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is rejecting calls. fn's error is
// returned as-is so callers keep their own error chains; ErrCircuitOpen
// is returned for calls that never ran.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.observe(err)
	return err
}

// State reports the breaker's current state. An open breaker whose reset
// timeout has elapsed reports half-open.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

// admit decides whether a call may proceed, moving the breaker to
// half-open when the reset window has passed. Only one probe may be in
// flight at a time; concurrent calls during a probe are rejected.
func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.shift(CircuitHalfOpen)
		b.probing = true
		return nil
	case CircuitHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// observe records the outcome of an admitted call.
func (b *CircuitBreaker) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil
	if b.cfg.ShouldTrip != nil {
		failed = failed && b.cfg.ShouldTrip(err)
	}

	switch b.state {
	case CircuitClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.shift(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.probing = false
		if failed {
			// Failed probe restarts the reset window.
			b.openedAt = b.now()
			b.shift(CircuitOpen)
			return
		}
		b.failures = 0
		b.shift(CircuitClosed)
	}
}

func (b *CircuitBreaker) shift(to CircuitState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

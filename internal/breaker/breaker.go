package breaker

import (
	"sync"
	"time"
)

// State is the availability state of one tool's circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes a CircuitBreaker.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open successes before closing
	Timeout          time.Duration // open cool-down before probing
}

// DefaultConfig returns the standard breaker tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// circuit holds one tool's state. Per-tool locking: a flapping tool does
// not serialize checks for healthy ones.
type circuit struct {
	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	lastFailure  time.Time
}

// CircuitBreaker tracks per-tool availability from execution outcomes
// reported by whoever actually ran the tool. IsOpen performs the lazy
// OPEN→HALF_OPEN transition when the cool-down has elapsed.
type CircuitBreaker struct {
	cfg Config

	mu       sync.Mutex
	circuits map[string]*circuit

	now func() time.Time
}

// New creates a breaker with the given config. Zero-value fields fall
// back to defaults.
func New(cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &CircuitBreaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

func (cb *CircuitBreaker) circuitFor(toolName string) *circuit {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c, ok := cb.circuits[toolName]
	if !ok {
		c = &circuit{state: StateClosed}
		cb.circuits[toolName] = c
	}
	return c
}

// IsOpen reports whether calls to the tool should be blocked. If the
// circuit is OPEN and the cool-down has elapsed, it first transitions to
// HALF_OPEN so the next call probes the tool.
func (cb *CircuitBreaker) IsOpen(toolName string) bool {
	c := cb.circuitFor(toolName)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateOpen {
		elapsed := cb.now().Sub(c.lastFailure)
		if c.lastFailure.IsZero() || elapsed >= cb.cfg.Timeout {
			c.state = StateHalfOpen
			c.successCount = 0
		}
	}
	return c.state == StateOpen
}

// RecordSuccess reports a successful execution of the tool.
func (cb *CircuitBreaker) RecordSuccess(toolName string) {
	c := cb.circuitFor(toolName)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateHalfOpen:
		c.successCount++
		if c.successCount >= cb.cfg.SuccessThreshold {
			c.state = StateClosed
			c.failureCount = 0
			c.successCount = 0
		}
	case StateClosed:
		c.failureCount = 0
	}
}

// RecordFailure reports a failed execution of the tool.
func (cb *CircuitBreaker) RecordFailure(toolName string) {
	c := cb.circuitFor(toolName)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastFailure = cb.now()

	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.successCount = 0
	case StateClosed:
		c.failureCount++
		if c.failureCount >= cb.cfg.FailureThreshold {
			c.state = StateOpen
		}
	}
}

// StateOf returns the tool's current circuit state without triggering
// the lazy half-open transition.
func (cb *CircuitBreaker) StateOf(toolName string) State {
	c := cb.circuitFor(toolName)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset discards the circuit for a tool, returning it to CLOSED on next
// use. For tests and operator intervention.
func (cb *CircuitBreaker) Reset(toolName string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, toolName)
}

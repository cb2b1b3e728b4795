// Package circuitbreaker guards the service's upstream collaborators (block
// explorer, chat-completion API) against cascading failures. When an upstream
// keeps failing the breaker opens and callers fail fast to their fallback
// paths instead of stacking up timeouts.
package circuitbreaker

import (
	"errors"
	"log"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, requests pass through
	StateOpen                  // Failure threshold exceeded, requests blocked
	StateHalfOpen              // Testing if the upstream recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting the upstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Counts holds request/response counts for the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

func (c *Counts) onSuccess() {
	c.Requests++
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.Requests++
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() { *c = Counts{} }

// Config holds circuit breaker thresholds.
type Config struct {
	Name string

	// FailureThreshold is the number of consecutive failures that trips the
	// breaker open.
	FailureThreshold uint32

	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration

	// HalfOpenSuccesses is how many consecutive probe successes close the
	// breaker again.
	HalfOpenSuccesses uint32
}

// DefaultConfig returns thresholds suited to slow external HTTP APIs.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		FailureThreshold:  3,
		Cooldown:          30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	logger   *log.Logger
}

// New creates a circuit breaker with the given config, filling zero fields
// from DefaultConfig.
func New(cfg Config) *CircuitBreaker {
	def := DefaultConfig(cfg.Name)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenSuccesses == 0 {
		cfg.HalfOpenSuccesses = def.HalfOpenSuccesses
	}
	return &CircuitBreaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: log.New(log.Writer(), "[CircuitBreaker] ", log.LstdFlags),
	}
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// State returns the current state, accounting for cooldown expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(time.Now())
}

// Counts returns a copy of the current window counts.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.currentState(time.Now()) == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.counts.onSuccess()
	} else {
		cb.counts.onFailure()
	}

	switch cb.currentState(time.Now()) {
	case StateClosed:
		if cb.counts.ConsecutiveFailures >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		if !success {
			cb.setState(StateOpen)
		} else if cb.counts.ConsecutiveSuccesses >= cb.cfg.HalfOpenSuccesses {
			cb.setState(StateClosed)
		}
	}
}

// currentState transitions OPEN -> HALF_OPEN once the cooldown has elapsed.
// Caller must hold cb.mu.
func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && now.Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.state = StateHalfOpen
		cb.counts.clear()
	}
	return cb.state
}

// setState records a transition. Caller must hold cb.mu.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	if next == StateOpen {
		cb.openedAt = time.Now()
	}
	cb.counts.clear()
	cb.logger.Printf("%s: %s -> %s", cb.cfg.Name, prev, next)
}

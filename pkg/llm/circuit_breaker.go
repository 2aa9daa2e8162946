package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/apperrors"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit is operational and requests flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped due to failures and requests are blocked.
	CircuitOpen
	// CircuitHalfOpen means one probe request is testing whether the provider recovered.
	CircuitHalfOpen
)

// String returns a human-readable string for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive upstream failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before a probe is let through.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig returns the defaults used when config leaves them unset.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker trips open after N consecutive failures and lets a single
// probe through once the reset window has elapsed.
type CircuitBreaker struct {
	mu               sync.RWMutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	lastFailure      time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.ResetAfter <= 0 {
		config.ResetAfter = defaults.ResetAfter
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow returns nil if a request may proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		since := cb.now().Sub(cb.lastFailure)
		if since > cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("circuit breaker open: vision provider appears to be down (failed %d times, last failure %v ago)",
			cb.consecutiveFails, since.Round(time.Second))
	case CircuitHalfOpen:
		return fmt.Errorf("circuit breaker half-open: testing if vision provider has recovered")
	default:
		return fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure increments the failure count and trips the circuit if threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}
	if cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// ReleaseHalfOpen returns a half-open circuit to open without counting a
// failure, so the next Allow lets another trial call through.
func (cb *CircuitBreaker) ReleaseHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.consecutiveFails
}

// GuardedVisionClient fails fast while the provider is failing.
// It never repeats a call.
type GuardedVisionClient struct {
	inner   VisionClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedVisionClient wraps inner with a circuit breaker.
func NewGuardedVisionClient(inner VisionClient, breaker *CircuitBreaker, logger *zap.Logger) *GuardedVisionClient {
	return &GuardedVisionClient{
		inner:   inner,
		breaker: breaker,
		logger:  logger.Named("vision.breaker"),
	}
}

// Analyze implements VisionClient.
func (g *GuardedVisionClient) Analyze(ctx context.Context, instruction, imageBase64, mediaType string) (any, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, NewError(ErrorTypeCircuit, "vision provider unavailable", true, err).
			withContext(g.inner.GetModel(), g.inner.GetEndpoint())
	}

	v, err := g.inner.Analyze(ctx, instruction, imageBase64, mediaType)
	// A caller walking away says nothing about the provider.
	if errors.Is(err, context.Canceled) {
		g.breaker.ReleaseHalfOpen()
		return nil, err
	}
	if errors.Is(err, apperrors.ErrUpstream) {
		g.breaker.RecordFailure()
		if g.breaker.State() == CircuitOpen {
			g.logger.Warn("Circuit breaker open",
				zap.Int("consecutive_failures", g.breaker.ConsecutiveFailures()))
		}
		return nil, err
	}

	// Malformed replies still mean the provider answered.
	g.breaker.RecordSuccess()
	return v, err
}

// GetModel implements VisionClient.
func (g *GuardedVisionClient) GetModel() string {
	return g.inner.GetModel()
}

// GetEndpoint implements VisionClient.
func (g *GuardedVisionClient) GetEndpoint() string {
	return g.inner.GetEndpoint()
}

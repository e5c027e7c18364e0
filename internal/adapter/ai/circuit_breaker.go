package ai

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen skips calls until the recovery timeout passes.
	CircuitOpen
	// CircuitHalfOpen lets one probe through.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
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

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	Provider      string    `json:"provider"`
	State         string    `json:"state"`
	Consecutive   int       `json:"consecutiveFailures"`
	TotalRequests int       `json:"totalRequests"`
	TotalFailures int       `json:"totalFailures"`
	LastFailure   time.Time `json:"lastFailure"`
}

// CircuitBreaker tracks consecutive failures of one provider.
type CircuitBreaker struct {
	mu               sync.Mutex
	provider         string
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time

	state         CircuitState
	consecutive   int
	totalRequests int
	totalFailures int
	lastFailure   time.Time
}

// NewCircuitBreaker opens after 3 consecutive failures and probes again after 30s.
func NewCircuitBreaker(provider string) *CircuitBreaker {
	return NewCircuitBreakerWith(provider, 3, 30*time.Second, time.Now)
}

// NewCircuitBreakerWith builds a breaker with explicit thresholds and clock.
func NewCircuitBreakerWith(provider string, threshold int, recovery time.Duration, now func() time.Time) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{provider: provider, failureThreshold: threshold, recoveryTimeout: recovery, now: now}
}

// ShouldAttempt reports whether a call may go through. An open breaker whose
// recovery timeout elapsed moves to half-open and admits one probe.
func (cb *CircuitBreaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalRequests++
	cb.consecutive = 0
	if cb.state != CircuitClosed {
		slog.Info("circuit breaker closed after successful recovery", slog.String("provider", cb.provider))
	}
	cb.state = CircuitClosed
}

// RecordFailure counts a failure and opens the breaker at the threshold. A
// failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.totalRequests++
	cb.totalFailures++
	cb.consecutive++
	cb.lastFailure = cb.now()
	if cb.state == CircuitHalfOpen || cb.consecutive >= cb.failureThreshold {
		if cb.state != CircuitOpen {
			slog.Warn("circuit breaker opened",
				slog.String("provider", cb.provider),
				slog.Int("consecutive_failures", cb.consecutive),
				slog.Int("threshold", cb.failureThreshold))
		}
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		Provider:      cb.provider,
		State:         cb.state.String(),
		Consecutive:   cb.consecutive,
		TotalRequests: cb.totalRequests,
		TotalFailures: cb.totalFailures,
		LastFailure:   cb.lastFailure,
	}
}

// CircuitBreakerManager hands out one breaker per provider.
type CircuitBreakerManager struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	factory  func(provider string) *CircuitBreaker
}

// NewCircuitBreakerManager creates a manager using NewCircuitBreaker.
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return &CircuitBreakerManager{breakers: make(map[string]*CircuitBreaker), factory: NewCircuitBreaker}
}

// NewCircuitBreakerManagerWith creates a manager with a custom breaker factory.
func NewCircuitBreakerManagerWith(factory func(provider string) *CircuitBreaker) *CircuitBreakerManager {
	return &CircuitBreakerManager{breakers: make(map[string]*CircuitBreaker), factory: factory}
}

// Get returns or creates the breaker for provider.
func (m *CircuitBreakerManager) Get(provider string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[provider]; ok {
		return b
	}
	b := m.factory(provider)
	m.breakers[provider] = b
	return b
}

// AllStats returns stats for every breaker created so far.
func (m *CircuitBreakerManager) AllStats() []BreakerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BreakerStats, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Stats())
	}
	return out
}

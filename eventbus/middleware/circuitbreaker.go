package middleware

import (
	"context"
	"sync"
	"time"
)

type circuitPhase string

const (
	circuitClosed   circuitPhase = "closed"
	circuitOpen     circuitPhase = "open"
	circuitHalfOpen circuitPhase = "half-open"
)

type circuitState struct {
	phase       circuitPhase
	failures    int
	lastFailure time.Time
}

// CircuitBreakerMiddleware trips per channel after failureThreshold
// consecutive publish failures, refusing further publishes on that
// channel until resetTimeout has elapsed, then moves to half-open —
// the same closed/open/half-open state machine as the teacher's
// CircuitBreakerMiddleware, keyed by channel instead of message type.
// While half-open every publish is let through; the first one to
// complete decides the phase (success closes, failure reopens). The
// half-open phase is not limited to a single probe.
type CircuitBreakerMiddleware struct {
	failureThreshold int
	resetTimeout     time.Duration
	excluded         map[string]struct{}

	mu     sync.Mutex
	states map[string]*circuitState
}

func NewCircuitBreakerMiddleware(failureThreshold int, resetTimeout time.Duration, excludedChannels ...string) *CircuitBreakerMiddleware {
	excluded := make(map[string]struct{}, len(excludedChannels))
	for _, c := range excludedChannels {
		excluded[c] = struct{}{}
	}
	return &CircuitBreakerMiddleware{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		excluded:         excluded,
		states:           make(map[string]*circuitState),
	}
}

func (m *CircuitBreakerMiddleware) stateFor(channel string) *circuitState {
	s, ok := m.states[channel]
	if !ok {
		s = &circuitState{phase: circuitClosed}
		m.states[channel] = s
	}
	return s
}

func (m *CircuitBreakerMiddleware) Before(ctx context.Context, channel string, event any) (any, error) {
	if _, skip := m.excluded[channel]; skip {
		return event, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(channel)
	if s.phase == circuitOpen {
		if time.Since(s.lastFailure) < m.resetTimeout {
			return nil, nil
		}
		s.phase = circuitHalfOpen
	}
	return event, nil
}

func (m *CircuitBreakerMiddleware) After(ctx context.Context, channel string, event any, recipients *int, err error) (*int, error) {
	if _, skip := m.excluded[channel]; skip {
		return recipients, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(channel)
	switch {
	case err != nil:
		s.failures++
		s.lastFailure = time.Now()
		if s.phase == circuitHalfOpen || (m.failureThreshold > 0 && s.failures >= m.failureThreshold) {
			s.phase = circuitOpen
		}
	case s.phase == circuitHalfOpen:
		s.phase = circuitClosed
		s.failures = 0
	default:
		s.failures = 0
	}
	return recipients, err
}

// State reports the current phase for channel, mostly for tests and
// introspection endpoints.
func (m *CircuitBreakerMiddleware) State(channel string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[channel]; ok {
		return string(s.phase)
	}
	return string(circuitClosed)
}

// Reset clears breaker state for channel, or for every channel when
// channel is empty.
func (m *CircuitBreakerMiddleware) Reset(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel == "" {
		m.states = make(map[string]*circuitState)
		return
	}
	delete(m.states, channel)
}

var _ Middleware = (*CircuitBreakerMiddleware)(nil)

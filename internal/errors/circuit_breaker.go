package errors

import (
	"errors"
	"sync"
	"time"
)

const (
	ErrorThreshold      = 0.5
	MinRequests         = 10
	TimeoutDuration     = 30 * time.Second
	HalfOpenMaxRequests = 3
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned without calling the protected function while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrHalfOpenTooManyRequests is returned when the half-open probe budget is spent.
	ErrHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// BreakerOption customises a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithStateChange registers fn to run, outside the breaker lock, after every state change.
func WithStateChange(fn func(from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// CircuitBreaker stops calling a failing dependency once its error rate crosses ErrorThreshold and
// probes it again after the open timeout. Half-open probes are admitted up front, so concurrent
// callers never exceed HalfOpenMaxRequests.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	requests    int
	probes      int
	openedAt    time.Time
	openTimeout time.Duration
	now         func() time.Time
	onChange    func(from, to State)
}

func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:       StateClosed,
		openTimeout: TimeoutDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call runs fn unless the breaker rejects it.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from := cb.state

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.openTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.setStateLocked(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= HalfOpenMaxRequests {
			cb.mu.Unlock()
			cb.notify(from, StateHalfOpen)
			return ErrHalfOpenTooManyRequests
		}
		cb.probes++
	}

	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state

	cb.requests++
	switch {
	case err != nil && cb.state == StateHalfOpen:
		cb.setStateLocked(StateOpen)
	case err != nil:
		cb.failures++
		if cb.requests >= MinRequests && float64(cb.failures)/float64(cb.requests) >= ErrorThreshold {
			cb.setStateLocked(StateOpen)
		}
	case cb.state == StateHalfOpen && cb.requests >= HalfOpenMaxRequests:
		cb.setStateLocked(StateClosed)
	}

	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	cb.state = state
	cb.failures, cb.requests, cb.probes = 0, 0, 0
	if state == StateOpen {
		cb.openedAt = cb.now()
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// Package circuit provides a small circuit breaker for calls to a broker or
// other dependency that can go away for a while.
package circuit

import (
	"sync"
	"time"
)

type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown has elapsed.
	StateOpen
	// StateHalfOpen lets calls through to probe the dependency. The next
	// outcome closes or reopens the circuit.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// StateChange reports a transition caused by the last recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker opens after FailureThreshold consecutive failures and stays open
// for Cooldown. The first Allow after the cooldown moves it to half-open.
type Breaker struct {
	mu               sync.Mutex
	name             string
	state            State
	failures         int
	failureThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	now              func() time.Time
}

type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failures that open the circuit.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open. Default is 30s.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may go ahead.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.state = StateHalfOpen
	return true
}

func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.open()
		return StateChange{Opened: true}
	case StateClosed:
		if b.failures >= b.failureThreshold {
			b.open()
			return StateChange{Opened: true}
		}
	}
	return StateChange{}
}

func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateClosed {
		return StateChange{}
	}
	b.state = StateClosed
	return StateChange{Closed: true}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
}

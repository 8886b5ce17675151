package circuitbreaker

import (
	"sync"
	"time"
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
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker tracks consecutive transport failures of one backend.
type Breaker struct {
	mutex     sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trialSent bool

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// New returns a closed breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a request may be sent. Once the cooldown has
// elapsed, exactly one trial request is let through.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trialSent = true
		return true
	case StateHalfOpen:
		if b.trialSent {
			return false
		}
		b.trialSent = true
		return true
	default:
		return true
	}
}

// Success records a request that reached the backend. It reports whether
// the breaker closed as a result.
func (b *Breaker) Success() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	closed := b.state != StateClosed
	b.state = StateClosed
	b.failures = 0
	b.trialSent = false
	return closed
}

// Failure records a transport failure. It reports whether the breaker
// opened as a result.
func (b *Breaker) Failure() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++

	switch {
	case b.state == StateHalfOpen:
		b.open()
		return true
	case b.state == StateClosed && b.failures >= b.threshold:
		b.open()
		return true
	default:
		return false
	}
}

// Cancel returns the trial slot of a request that ended without an outcome,
// such as one abandoned by its client.
func (b *Breaker) Cancel() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == StateHalfOpen {
		b.trialSent = false
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.trialSent = false
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

package resilience

import (
	"sync"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker counts consecutive failures and trips open when they reach a
// threshold. Unlike a time-based breaker there is no half-open probing and
// no automatic recovery: the open state is sticky until an explicit Reset,
// or until a success is recorded by a caller that chose to run anyway.
type Breaker struct {
	mu          sync.Mutex
	maxFailures int
	consecutive int
	state       State
}

// New creates a breaker that trips after maxFailures consecutive failures.
func New(maxFailures int) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Breaker{maxFailures: maxFailures, state: StateClosed}
}

// RecordSuccess clears the failure streak. A success also closes an open
// breaker: it proves the guarded operation recovered.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.consecutive = 0
	b.state = StateClosed
	b.mu.Unlock()
}

// RecordFailure increments the failure streak and reports whether the
// breaker is now open. A failure recorded against an already-open breaker
// keeps it open and reports true.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	if b.state == StateOpen {
		b.consecutive++
		b.mu.Unlock()
		return true
	}
	b.consecutive++
	if b.consecutive < b.maxFailures {
		b.mu.Unlock()
		return false
	}
	b.state = StateOpen
	b.mu.Unlock()
	return true
}

// Reset closes the breaker and clears all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.consecutive = 0
	b.state = StateClosed
	b.mu.Unlock()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

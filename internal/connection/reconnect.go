package connection

import (
	"sync"
	"time"
)

// ReconnectionState is a snapshot of the scheduler's backoff state.
type ReconnectionState struct {
	Attempts     int
	MaxAttempts  int // negative = unlimited
	CurrentDelay time.Duration
	IsScheduled  bool
}

// Scheduler arms delayed reconnection attempts with exponential backoff.
//
// Backoff state persists across Schedule calls until Reset. Cancel disarms a
// pending attempt without touching the counters.
type Scheduler struct {
	initial     time.Duration
	max         time.Duration
	multiplier  float64
	maxAttempts int

	mu       sync.Mutex
	attempts int
	current  time.Duration
	timer    *time.Timer
	epoch    uint64
}

// NewScheduler creates a scheduler. maxAttempts < 0 means unlimited.
func NewScheduler(initial, max time.Duration, multiplier float64, maxAttempts int) *Scheduler {
	if multiplier < 1 {
		multiplier = 1
	}
	if max < initial {
		max = initial
	}
	return &Scheduler{
		initial:     initial,
		max:         max,
		multiplier:  multiplier,
		maxAttempts: maxAttempts,
		current:     initial,
	}
}

// Schedule arms retry after the current backoff delay. onAttempt runs
// synchronously before the wait begins. When the attempt budget is spent,
// only onExhausted runs and Schedule returns false.
func (s *Scheduler) Schedule(retry func(), onAttempt func(attempt, maxAttempts int, delay time.Duration), onExhausted func()) bool {
	s.mu.Lock()
	if s.exhaustedLocked() {
		s.mu.Unlock()
		if onExhausted != nil {
			onExhausted()
		}
		return false
	}

	s.stopLocked()
	s.attempts++
	attempt := s.attempts
	delay := min(s.current, s.max)
	epoch := s.epoch
	s.mu.Unlock()

	if onAttempt != nil {
		onAttempt(attempt, s.maxAttempts, delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancelled or reset from inside onAttempt.
	if epoch != s.epoch {
		return false
	}

	s.timer = time.AfterFunc(delay, func() { s.fire(epoch, retry) })

	next := time.Duration(float64(s.current) * s.multiplier)
	if next > s.max || next < s.current {
		next = s.max
	}
	s.current = next
	return true
}

// Cancel disarms a pending attempt.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Reset cancels and restores the initial delay and a zero attempt count.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.attempts = 0
	s.current = s.initial
}

// Exhausted reports whether the attempt budget is spent.
func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhaustedLocked()
}

// State returns a snapshot of the backoff state.
func (s *Scheduler) State() ReconnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReconnectionState{
		Attempts:     s.attempts,
		MaxAttempts:  s.maxAttempts,
		CurrentDelay: s.current,
		IsScheduled:  s.timer != nil,
	}
}

func (s *Scheduler) fire(epoch uint64, retry func()) {
	s.mu.Lock()
	if epoch != s.epoch || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	retry()
}

func (s *Scheduler) exhaustedLocked() bool {
	return s.maxAttempts >= 0 && s.attempts >= s.maxAttempts
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
}

package bfq

import "time"

// Tunables holds the device-wide tunable attribute surface (§6). All
// durations are wall-clock; MaxBudget is in sectors and 0 means "auto",
// deriving the cap from the peak-rate estimator instead of a pinned value.
type Tunables struct {
	Quantum int // max requests dispatched per sync-queue round

	FifoExpireSync  time.Duration
	FifoExpireAsync time.Duration

	BackSeekMaxKiB    int64
	BackSeekPenalty   int64

	SliceIdle time.Duration

	MaxBudget         int64 // sectors; 0 = auto (derived from peak rate)
	UserMaxBudgetSet  bool  // true once the caller has pinned MaxBudget
	MaxBudgetAsyncRQ  int

	TimeoutSync  time.Duration
	TimeoutAsync time.Duration

	Desktop bool
}

// DefaultTunables returns the shipped default tunable surface.
func DefaultTunables() Tunables {
	return Tunables{
		Quantum:          DefaultQuantum,
		FifoExpireSync:   DefaultFifoExpireSync,
		FifoExpireAsync:  DefaultFifoExpireAsync,
		BackSeekMaxKiB:   DefaultBackSeekMaxKiB,
		BackSeekPenalty:  DefaultBackSeekPenalty,
		SliceIdle:        DefaultSliceIdle,
		MaxBudget:        0,
		MaxBudgetAsyncRQ: DefaultMaxBudgetAsyncRQ,
		TimeoutSync:      DefaultTimeoutSync,
		TimeoutAsync:     DefaultTimeoutAsync,
		Desktop:          false,
	}
}

func (t Tunables) backSeekMaxSectors() int64 {
	return kibToSectors(t.BackSeekMaxKiB)
}

func kibToSectors(kib int64) int64 { return kib * 2 }

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithTunables overrides the scheduler's starting tunables.
func WithTunables(t Tunables) Option {
	return func(s *Scheduler) { s.tunables = t }
}

// WithObserver installs a metrics Observer, replacing the default
// MetricsObserver backed by Scheduler.Metrics().
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithClock installs a clock.Clock, overriding the real wall clock. Tests
// use this to drive idle timers and timeouts deterministically.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithMaxQueues caps the number of distinct sync queues the scheduler
// will allocate, returning ErrMustAlloc from GetQueue once the cap is
// reached. 0 (the default) means unlimited.
func WithMaxQueues(n int) Option {
	return func(s *Scheduler) { s.maxQueues = n }
}

// WithBoostPredicate installs the priority-boost predicate (§4.8),
// resolving the injected-predicate open question: the caller decides when
// the process holds filesystem-exclusive resources, rather than the
// scheduler reading a global flag.
func WithBoostPredicate(p BoostPredicate) Option {
	return func(s *Scheduler) { s.boostPredicate = p }
}

package bfq

import "time"

// Budget-feedback constants (§4.5).
const (
	// Step is the sector increment/decrement applied to a queue's
	// max_budget on BUDGET_EXHAUSTED/TOO_IDLE expiration.
	Step int64 = 128

	// minActivationsForLearnedBudget is the number of budget activations
	// a queue must accumulate before its learned max_budget is trusted
	// over the safe default. The source pins this at the literal 194;
	// see DESIGN.md for why that constant is preserved rather than
	// retuned.
	minActivationsForLearnedBudget = 194
)

// Peak-rate estimator and NCQ-detection constants (§4.6).
const (
	// PeakRateSamples is the number of expiration samples the peak-rate
	// estimator must fold in before its peak is used to recompute
	// system_max_budget.
	PeakRateSamples = 32

	// minSampleDuration is the minimum served duration an expiration
	// must span before it contributes a peak-rate sample; shorter
	// activations are too noisy to trust.
	minSampleDuration = 20 * time.Millisecond

	// HWQueueThreshold is the in-driver + queued depth above which an
	// NCQ sample is taken.
	HWQueueThreshold = 4

	// HWQueueSamples is the number of qualifying samples observed before
	// hw_tag is latched.
	HWQueueSamples = 32
)

// Producer-profiling constants (§4.7).
const (
	// seekyThresholdSectors is the mean-seek-distance threshold (8 KiB,
	// in 512-byte sectors) above which a producer is classified seeky.
	seekyThresholdSectors = 8 * 1024 / 512

	// minTTMillis shortens the idle-slice timeout for a seeky producer.
	minTTMillis = 2 * time.Millisecond
)

// Default tunable values (§6), matching the source's shipped defaults.
const (
	DefaultQuantum           = 4
	DefaultBackSeekMaxKiB    = 16 * 1024
	DefaultBackSeekPenalty   = 2
	DefaultSliceIdle         = 8 * time.Millisecond
	DefaultMaxBudgetAsyncRQ  = 2
	DefaultTimeoutSync       = 125 * time.Millisecond
	DefaultTimeoutAsync      = 250 * time.Millisecond
	DefaultFifoExpireSync    = 125 * time.Millisecond
	DefaultFifoExpireAsync   = 250 * time.Millisecond
)

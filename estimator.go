package bfq

import "time"

// RateEstimator tracks the device's peak service rate from sync-queue
// expirations and derives the system-wide budget cap from it (§4.6).
type RateEstimator struct {
	peakRate    int64 // fixed-point, VTime-scaled bandwidth (sectors per usec)
	sampleCount int
}

func newRateEstimator() *RateEstimator { return &RateEstimator{} }

// samples reports how many peak-rate samples have been folded in so far,
// capped at PeakRateSamples.
func (r *RateEstimator) samples() int {
	if r.sampleCount > PeakRateSamples {
		return PeakRateSamples
	}
	return r.sampleCount
}

// observe folds in one expiration's served sectors and elapsed wall time,
// updating the peak if the sample is long enough to trust and the
// computed bandwidth exceeds the current peak. Samples shorter than
// minSampleDuration are too noisy and are discarded. The peak is the
// maximum over every sample folded in; older samples are never aged out.
func (r *RateEstimator) observe(sectors int64, elapsed time.Duration) {
	if elapsed < minSampleDuration || sectors <= 0 {
		return
	}
	usecs := elapsed.Microseconds()
	if usecs <= 0 {
		return
	}
	bw := (sectors << RateShift) / usecs
	if bw > r.peakRate {
		r.peakRate = bw
	}
	r.sampleCount++
}

// systemMaxBudget computes system_max_budget = peak_rate * 1000 *
// timeout_sync * 0.75 >> RATE_SHIFT: the sectors transferable in three
// quarters of a sync timeout at the observed peak rate.
func (r *RateEstimator) systemMaxBudget(timeoutSync time.Duration) int64 {
	if r.peakRate == 0 {
		return 0
	}
	msecs := timeoutSync.Milliseconds()
	budget := r.peakRate * msecs * 1000 * 3 / 4
	return budget >> RateShift
}

// HWTagDetector samples in-driver queue depth to decide whether the
// backing device exposes native command queueing (§4.6).
type HWTagDetector struct {
	maxInDriver int
	sampleCount int
	hwTag       bool
	latched     bool
}

func newHWTagDetector() *HWTagDetector { return &HWTagDetector{} }

// observe folds in one dispatch-time sample of in-driver + queued depth,
// only counting samples at or above HWQueueThreshold; after
// HWQueueSamples qualifying samples, hw_tag latches to whether the
// observed maximum exceeded the threshold.
func (d *HWTagDetector) observe(inDriverPlusQueued int) {
	if d.latched || inDriverPlusQueued < HWQueueThreshold {
		return
	}
	if inDriverPlusQueued > d.maxInDriver {
		d.maxInDriver = inDriverPlusQueued
	}
	d.sampleCount++
	if d.sampleCount >= HWQueueSamples {
		d.hwTag = d.maxInDriver > HWQueueThreshold
		d.latched = true
	}
}

// HWTag reports the device's currently detected NCQ status.
func (d *HWTagDetector) HWTag() bool { return d.hwTag }

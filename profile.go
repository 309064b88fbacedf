package bfq

import "time"

// Profile tracks a producer's think-time and seek-distance behaviour
// (§4.7), used to decide whether anticipatory idling is worth the
// latency it costs. Both statistics are the plain running mean
// (total/samples), per §4.7's "mean = total/samples" definition, with no
// exponential smoothing. Think-time samples are capped; seek-distance
// samples are not.
type Profile struct {
	sliceIdle time.Duration

	thinkTimeSamples uint64
	thinkTimeTotal   time.Duration

	seekSamples uint64
	seekTotal   int64

	lastEndRequest time.Time
	lastPosition   Sector
	havePosition   bool
}

func newProfile(sliceIdle time.Duration) *Profile {
	return &Profile{sliceIdle: sliceIdle}
}

// observeCompletion records the think time since the last completion
// (§4.7 "Think time"): a capped sample (2*slice_idle ceiling) accumulates
// toward the running mean = total/samples used for idle-window decisions.
func (p *Profile) observeCompletion(now time.Time) {
	if !p.lastEndRequest.IsZero() {
		sample := now.Sub(p.lastEndRequest)
		if cap := 2 * p.sliceIdle; sample > cap {
			sample = cap
		}
		p.thinkTimeSamples++
		p.thinkTimeTotal += sample
	}
	p.lastEndRequest = now
}

// thinkTimeMean is the running average think time across all samples.
func (p *Profile) thinkTimeMean() time.Duration {
	if p.thinkTimeSamples == 0 {
		return 0
	}
	return p.thinkTimeTotal / time.Duration(p.thinkTimeSamples)
}

// observeRequest records the seek distance from the last request's
// starting sector (§4.7 "Seek distance"). Per the zero-seek-samples
// design note, a request at a non-zero offset while seek_samples is
// still zero is recorded as distance 0 ("not really a seek") rather than
// the raw offset, so the very first sample can never skew the estimator.
func (p *Profile) observeRequest(sector Sector) {
	var distance int64
	if p.havePosition && p.seekSamples > 0 {
		distance = int64(sector - p.lastPosition)
		if distance < 0 {
			distance = -distance
		}
	}

	p.seekSamples++
	p.seekTotal += distance

	p.lastPosition = sector
	p.havePosition = true
}

// seekMean is the running average seek distance, in sectors, across all
// samples.
func (p *Profile) seekMean() int64 {
	if p.seekSamples == 0 {
		return 0
	}
	return p.seekTotal / int64(p.seekSamples)
}

// Seeky reports whether the producer's mean seek distance exceeds the 8
// KiB threshold.
func (p *Profile) Seeky() bool { return p.seekMean() > seekyThresholdSectors }

// earlySampling reports whether the profile has not yet accumulated
// enough samples to trust its think-time classification.
func (p *Profile) earlySampling() bool { return p.thinkTimeSamples < PeakRateSamples }

// idleWindowEligible implements §4.7's idle-window predicate: the queue
// must be sync and not IDLE-class, its producer must have live tasks,
// and either the think time is short enough (and the producer is not a
// seeky one the device's queue depth can better serve without idling) or
// the profile is still in its early-sampling grace period.
func (p *Profile) idleWindowEligible(sync bool, class IOPrioClass, producerHasLiveTasks, hwTag, desktop bool) bool {
	if !sync || class == IOPrioIdle || !producerHasLiveTasks {
		return false
	}
	if p.earlySampling() {
		return true
	}
	if p.thinkTimeMean() > p.sliceIdle {
		return false
	}
	if p.Seeky() && hwTag && !desktop {
		return false
	}
	return true
}

// idleTimeout returns the idle-slice duration to arm, shortened for a
// seeky producer so anticipatory idling doesn't cost as much latency
// when it is less likely to pay off.
func (p *Profile) idleTimeout() time.Duration {
	if p.Seeky() {
		return minTTMillis
	}
	return p.sliceIdle
}

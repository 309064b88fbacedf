package bfq

// seekInfo describes a candidate request's position relative to the head,
// for the head-biased chooser's step 3-6 ordering.
type seekInfo struct {
	distance int64
	wraps    bool
}

// seekDistanceOf computes the forward-biased seek distance from last to s,
// per §4.3 step 3: a request ahead of the head costs its plain distance; one
// behind the head but within backMaxSectors costs a penalized distance;
// one further behind "wraps" (is treated as effectively a full revolution
// away, ranked below every non-wrapping candidate).
func seekDistanceOf(last, s Sector, backMaxSectors, backPenalty int64) seekInfo {
	if s >= last {
		return seekInfo{distance: int64(s - last), wraps: false}
	}
	behind := int64(last - s)
	if behind <= backMaxSectors {
		return seekInfo{distance: behind * backPenalty, wraps: false}
	}
	return seekInfo{distance: behind, wraps: true}
}

// chooseRequest picks the better of two candidate requests given the
// device head position last, implementing the six-step total order of
// §4.3 verbatim. Either candidate may be nil, in which case the other (or
// nil, if both are) is returned.
func chooseRequest(a, b *Request, last Sector, backMaxSectors, backPenalty int64) *Request {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	if a.Sync() != b.Sync() {
		if a.Sync() {
			return a
		}
		return b
	}

	if a.Meta() != b.Meta() {
		if a.Meta() {
			return a
		}
		return b
	}

	sa := seekDistanceOf(last, a.Sector, backMaxSectors, backPenalty)
	sb := seekDistanceOf(last, b.Sector, backMaxSectors, backPenalty)

	switch {
	case !sa.wraps && !sb.wraps:
		if sa.distance != sb.distance {
			if sa.distance < sb.distance {
				return a
			}
			return b
		}
		if a.Sector >= b.Sector {
			return a
		}
		return b
	case sa.wraps != sb.wraps:
		if !sa.wraps {
			return a
		}
		return b
	default: // both wrap: shorter back seek (higher sector) wins
		if a.Sector >= b.Sector {
			return a
		}
		return b
	}
}

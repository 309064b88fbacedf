package bfq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blkiosched/bfq/backend"
	"github.com/blkiosched/bfq/internal/clock"
)

// harness bundles a scheduler, its SimDriver, and a fake clock so a
// scenario test can drive dispatch rounds deterministically.
type harness struct {
	sched  *Scheduler
	driver *SimDriver
	clk    *clock.Fake
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	mem := backend.NewMemory(64 << 20)
	driver := NewSimDriver(mem)
	clk := clock.NewFake(time.Unix(0, 0))
	sched := NewScheduler(driver, append([]Option{WithClock(clk)}, opts...)...)
	driver.Attach(sched)
	return &harness{sched: sched, driver: driver, clk: clk}
}

// round runs one dispatch/drain cycle and advances the clock by step.
func (h *harness) round(step time.Duration) int {
	n := h.sched.Dispatch(h.clk.Now())
	h.driver.Drain()
	h.clk.Advance(step)
	return n
}

func seqRequests(start Sector, count int, stride int64) []*Request {
	reqs := make([]*Request, count)
	for i := 0; i < count; i++ {
		reqs[i] = &Request{Sector: start + Sector(int64(i)*stride), Sectors: stride, Flags: ReqSync}
	}
	return reqs
}

func TestScenarioSingleSyncReaderSequential(t *testing.T) {
	h := newHarness(t)
	q, err := h.sched.GetQueue(nil, "reader", IOPrioBE, 4, true)
	require.NoError(t, err)

	for _, req := range seqRequests(0, 64, 8) {
		h.sched.InsertRequest(q, req)
	}

	var lastSector Sector = -1
	for i := 0; i < 200 && h.driver.Pending()+q.queuedSync > 0; i++ {
		h.sched.mu.Lock()
		if q.nextRQ != nil {
			assert.GreaterOrEqual(t, q.nextRQ.Sector, lastSector)
			lastSector = q.nextRQ.Sector
		}
		h.sched.mu.Unlock()
		h.round(time.Millisecond)
	}

	snap := h.sched.Metrics()
	assert.Equal(t, uint64(64), snap.Dispatches)
	assert.LessOrEqual(t, h.sched.estimator.samples(), PeakRateSamples)
}

func TestScenarioTwoEqualWeightSyncReaders(t *testing.T) {
	h := newHarness(t)
	qa, err := h.sched.GetQueue(nil, "a", IOPrioBE, 4, true)
	require.NoError(t, err)
	qb, err := h.sched.GetQueue(nil, "b", IOPrioBE, 4, true)
	require.NoError(t, err)

	for _, req := range seqRequests(0, 80, 8) {
		h.sched.InsertRequest(qa, req)
	}
	for _, req := range seqRequests(1<<20, 80, 8) {
		h.sched.InsertRequest(qb, req)
	}

	var sectorsA, sectorsB int64
	for i := 0; i < 2000; i++ {
		before := h.sched.Metrics()
		h.round(time.Millisecond)
		after := h.sched.Metrics()
		if after.Dispatches == before.Dispatches {
			continue
		}
		if h.sched.lastPosition < 1<<20 {
			sectorsA += int64(after.SectorsServed - before.SectorsServed)
		} else {
			sectorsB += int64(after.SectorsServed - before.SectorsServed)
		}
		if qa.queuedSync == 0 && qb.queuedSync == 0 {
			break
		}
	}

	total := sectorsA + sectorsB
	require.Greater(t, total, int64(0))
	ratio := float64(sectorsA) / float64(total)
	assert.InDelta(t, 0.5, ratio, 0.2, "equal-weight readers should split service roughly evenly")
}

func TestScenarioSyncReaderWithAsyncWriteBurst(t *testing.T) {
	h := newHarness(t)
	reader, err := h.sched.GetQueue(nil, "reader", IOPrioBE, 4, true)
	require.NoError(t, err)
	writer, err := h.sched.GetQueue(nil, "writer", IOPrioBE, 4, false)
	require.NoError(t, err)

	for _, req := range seqRequests(0, 16, 8) {
		h.sched.InsertRequest(reader, req)
	}
	for i := 0; i < 40; i++ {
		req := &Request{Sector: Sector(i * 8), Sectors: 8, Flags: ReqWrite}
		h.sched.InsertRequest(writer, req)
	}

	maxDispatch := h.sched.maxDispatchFor(writer)
	assert.Equal(t, h.sched.tunables.MaxBudgetAsyncRQ, maxDispatch)

	for i := 0; i < 500 && (reader.queuedSync > 0 || writer.queuedAsync > 0); i++ {
		h.round(time.Millisecond)
	}

	assert.Equal(t, 0, reader.queuedSync)
	assert.Equal(t, 0, writer.queuedAsync)
}

func TestScenarioSeekyVsSequentialProducer(t *testing.T) {
	h := newHarness(t)
	seq, err := h.sched.GetQueue(nil, "sequential", IOPrioBE, 4, true)
	require.NoError(t, err)
	seeky, err := h.sched.GetQueue(nil, "seeky", IOPrioBE, 4, true)
	require.NoError(t, err)

	for _, req := range seqRequests(0, 120, 8) {
		h.sched.InsertRequest(seq, req)
	}
	seekPositions := []Sector{0, 1 << 18, 16, 1 << 19, 32, 1 << 20, 48}
	for _, pos := range seekPositions {
		h.sched.InsertRequest(seeky, &Request{Sector: pos, Sectors: 8, Flags: ReqSync})
	}

	var seqSectors, seekySectors int64
	dispatchedToSeeky := 0
	for i := 0; i < 3000 && (seq.queuedSync > 0 || seeky.queuedSync > 0); i++ {
		activeBefore := h.sched.activeQueue
		before := h.sched.Metrics()
		h.round(time.Millisecond)
		after := h.sched.Metrics()
		delta := int64(after.SectorsServed - before.SectorsServed)
		if delta == 0 {
			continue
		}
		if activeBefore == seeky {
			seekySectors += delta
			dispatchedToSeeky++
		} else {
			seqSectors += delta
		}
	}

	total := seqSectors + seekySectors
	require.Greater(t, total, int64(0))
	assert.Greater(t, float64(seqSectors)/float64(total), 0.5, "the sequential producer should retain the majority of service")
	assert.Greater(t, dispatchedToSeeky, 0, "the seeky producer must not be starved entirely")
}

func TestScenarioWeightedGroupsThreeToOne(t *testing.T) {
	h := newHarness(t)
	heavy := h.sched.NewGroup(nil, IOPrioBE, 5) // weight 3
	light := h.sched.NewGroup(nil, IOPrioBE, 7) // weight 1

	qh, err := h.sched.GetQueue(heavy, "heavy", IOPrioBE, 4, true)
	require.NoError(t, err)
	ql, err := h.sched.GetQueue(light, "light", IOPrioBE, 4, true)
	require.NoError(t, err)

	for i := 0; i < 4000; i++ {
		h.sched.InsertRequest(qh, &Request{Sector: Sector(i * 8), Sectors: 8, Flags: ReqSync})
		h.sched.InsertRequest(ql, &Request{Sector: 1<<24 + Sector(i*8), Sectors: 8, Flags: ReqSync})
	}

	var heavySectors, lightSectors int64
	var lastVTime VTime
	monotonic := true
	for i := 0; i < 4000; i++ {
		before := h.sched.Metrics()
		activeBefore := h.sched.activeQueue
		h.round(time.Millisecond)
		after := h.sched.Metrics()
		delta := int64(after.SectorsServed - before.SectorsServed)
		if delta == 0 {
			continue
		}
		if activeBefore == qh {
			heavySectors += delta
		} else if activeBefore == ql {
			lightSectors += delta
		}
		if h.sched.rootGroup.sched.tree(IOPrioBE).vtime < lastVTime {
			monotonic = false
		}
		lastVTime = h.sched.rootGroup.sched.tree(IOPrioBE).vtime
	}

	assert.True(t, monotonic, "root vtime must advance monotonically")
	total := heavySectors + lightSectors
	if total > 0 {
		ratio := float64(heavySectors) / float64(lightSectors+1)
		assert.InDelta(t, 3.0, ratio, 0.8, "weight-3 group should receive roughly 3x the service of the weight-1 group")
	}
}

func TestScenarioIdleClassStarvationAvoidance(t *testing.T) {
	h := newHarness(t)
	idle, err := h.sched.GetQueue(nil, "scrubber", IOPrioIdle, 7, true)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		h.sched.InsertRequest(idle, &Request{Sector: Sector(i * 8), Sectors: 8, Flags: ReqSync})
	}

	rounds := 0
	for idle.queuedSync > 0 && rounds < 200 {
		n := h.round(time.Millisecond)
		if n > 0 {
			assert.LessOrEqual(t, n, 1, "an IDLE-class queue dispatches at most one request per round")
		}
		rounds++
	}
	assert.Equal(t, 0, idle.queuedSync)
}

func TestScenarioIdleClassNeverPreemptsBusyBEQueue(t *testing.T) {
	h := newHarness(t)
	be, err := h.sched.GetQueue(nil, "be", IOPrioBE, 4, true)
	require.NoError(t, err)
	idle, err := h.sched.GetQueue(nil, "idle", IOPrioIdle, 7, true)
	require.NoError(t, err)

	for _, req := range seqRequests(0, 40, 8) {
		h.sched.InsertRequest(be, req)
	}
	h.sched.InsertRequest(idle, &Request{Sector: 0, Sectors: 8, Flags: ReqSync})

	for i := 0; i < 50 && be.queuedSync > 0; i++ {
		h.sched.mu.Lock()
		if h.sched.activeQueue == idle {
			assert.Equal(t, 0, be.queuedSync, "idle class must not be selected while a BE queue is busy")
		}
		h.sched.mu.Unlock()
		h.round(time.Millisecond)
	}
	assert.Equal(t, 0, be.queuedSync)
}

func TestScenarioRoundTripInsertRemove(t *testing.T) {
	h := newHarness(t)
	q, err := h.sched.GetQueue(nil, "q", IOPrioBE, 4, true)
	require.NoError(t, err)

	req := &Request{Sector: 100, Sectors: 8, Flags: ReqSync}
	before := q.sortTree.Len()
	h.sched.InsertRequest(q, req)
	h.sched.mu.Lock()
	q.Remove(req)
	h.sched.mu.Unlock()

	assert.Equal(t, before, q.sortTree.Len())
	assert.Nil(t, req.node)
	assert.Nil(t, req.fifoElem)
	assert.Equal(t, 0, q.queuedSync)
}

func TestScenarioBudgetExhaustedRequestEventuallyDispatches(t *testing.T) {
	h := newHarness(t)
	q, err := h.sched.GetQueue(nil, "q", IOPrioBE, 4, true)
	require.NoError(t, err)
	other, err := h.sched.GetQueue(nil, "other", IOPrioBE, 4, true)
	require.NoError(t, err)

	big := &Request{Sector: 0, Sectors: 1 << 20, Flags: ReqSync}
	h.sched.InsertRequest(q, big)
	for _, req := range seqRequests(1<<30, 8, 8) {
		h.sched.InsertRequest(other, req)
	}

	dispatchedBig := false
	for i := 0; i < 5000 && !dispatchedBig; i++ {
		h.round(time.Millisecond)
		if h.driver.Pending() == 0 && q.queuedSync == 0 {
			dispatchedBig = true
		}
	}
	assert.True(t, dispatchedBig, "an oversized request must eventually dispatch despite repeated budget exhaustion")
}

package bfq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestScheduler() *Scheduler {
	return NewScheduler(nil)
}

func TestExpireReasonString(t *testing.T) {
	assert.Equal(t, "TOO_IDLE", ExpireTooIdle.String())
	assert.Equal(t, "BUDGET_TIMEOUT", ExpireBudgetTimeout.String())
	assert.Equal(t, "BUDGET_EXHAUSTED", ExpireBudgetExhausted.String())
	assert.Equal(t, "NO_MORE_REQUESTS", ExpireNoMoreRequests.String())
	assert.Equal(t, "UNKNOWN", ExpireReason(99).String())
}

func TestAdjustBudgetTooIdleShrinksTowardFloor(t *testing.T) {
	sched := newTestScheduler()
	sched.tunables.MaxBudget = 4096
	sched.tunables.UserMaxBudgetSet = true
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.maxBudget = 1000

	adjustBudget(ExpireTooIdle, q, sched)

	assert.Equal(t, int64(1000-Step), q.maxBudget)
	assert.Equal(t, uint64(1), q.budgetsAssigned)
}

func TestAdjustBudgetTooIdleNeverBelowFloor(t *testing.T) {
	sched := newTestScheduler()
	sched.tunables.MaxBudget = 4096
	sched.tunables.UserMaxBudgetSet = true
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.maxBudget = minBudget(4096)

	adjustBudget(ExpireTooIdle, q, sched)

	assert.Equal(t, minBudget(4096), q.maxBudget)
}

func TestAdjustBudgetExhaustedGrowsTowardSystemMax(t *testing.T) {
	sched := newTestScheduler()
	sched.tunables.MaxBudget = 4096
	sched.tunables.UserMaxBudgetSet = true
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.maxBudget = 1000

	adjustBudget(ExpireBudgetExhausted, q, sched)

	assert.Equal(t, int64(1000+8*Step), q.maxBudget)
}

func TestAdjustBudgetExhaustedCappedAtSystemMax(t *testing.T) {
	sched := newTestScheduler()
	sched.tunables.MaxBudget = 1050
	sched.tunables.UserMaxBudgetSet = true
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.maxBudget = 1000

	adjustBudget(ExpireBudgetExhausted, q, sched)

	assert.Equal(t, int64(1050), q.maxBudget)
}

func TestAdjustBudgetNoMoreRequestsLeavesBudgetUnchanged(t *testing.T) {
	sched := newTestScheduler()
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.maxBudget = 1000

	adjustBudget(ExpireNoMoreRequests, q, sched)

	assert.Equal(t, int64(1000), q.maxBudget)
	assert.Equal(t, uint64(1), q.budgetsAssigned)
}

func TestDefaultBudgetUsesConservativeValueBeforeLearning(t *testing.T) {
	sched := newTestScheduler()
	sched.tunables.MaxBudget = 4000
	sched.tunables.UserMaxBudgetSet = true
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.budgetsAssigned = 0

	got := defaultBudget(sched, q)

	assert.Equal(t, int64(1000), got)
}

func TestDefaultBudgetUsesLearnedValueAfterEnoughActivations(t *testing.T) {
	sched := newTestScheduler()
	sched.tunables.MaxBudget = 4000
	sched.tunables.UserMaxBudgetSet = true
	for i := 0; i < PeakRateSamples; i++ {
		sched.estimator.observe(1<<20, minSampleDuration+1)
	}
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.budgetsAssigned = minActivationsForLearnedBudget

	got := defaultBudget(sched, q)

	assert.Equal(t, int64(3000), got)
}

func TestReclassifyIfSeekyIdleRewritesReasonAndChargesFullBudget(t *testing.T) {
	sched := newTestScheduler()
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.Entity.budget = 500
	q.Entity.service = 100

	got := reclassifyIfSeekyIdle(ExpireTooIdle, q, true)

	assert.Equal(t, ExpireBudgetTimeout, got)
	assert.Equal(t, int64(500), q.Entity.service)
}

func TestReclassifyIfSeekyIdleLeavesOtherReasonsAlone(t *testing.T) {
	sched := newTestScheduler()
	q := newQueue(sched, sched.rootGroup, IOPrioBE, 4, true)
	q.Entity.budget = 500
	q.Entity.service = 100

	got := reclassifyIfSeekyIdle(ExpireTooIdle, q, false)

	assert.Equal(t, ExpireTooIdle, got)
	assert.Equal(t, int64(100), q.Entity.service)

	got = reclassifyIfSeekyIdle(ExpireBudgetExhausted, q, true)
	assert.Equal(t, ExpireBudgetExhausted, got)
}

package bfq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntity(weight uint32, budget int64) *Entity {
	return &Entity{kind: EntityQueue, weight: weight, budget: budget}
}

func TestServiceTreeActivateSetsStartFromVtime(t *testing.T) {
	st := newServiceTree(IOPrioBE)
	st.vtime = 100

	e := newTestEntity(1, 1000)
	st.activate(e)

	assert.Equal(t, VTime(100), e.start)
	assert.Equal(t, TreeActive, e.tree)
	assert.True(t, e.finish > e.start)
}

func TestServiceTreeSelectPicksSmallestEligibleFinish(t *testing.T) {
	st := newServiceTree(IOPrioBE)

	low := newTestEntity(1, 100)  // small budget -> small finish
	high := newTestEntity(1, 10000)
	st.activate(low)
	st.activate(high)

	picked := st.selectEntity()
	require.NotNil(t, picked)
	assert.Same(t, low, picked)
}

func TestServiceTreeSelectRespectsEligibility(t *testing.T) {
	st := newServiceTree(IOPrioBE)

	e := newTestEntity(1, 100)
	st.activate(e)
	// Verify the eligible path: with vtime exactly at e.start, e is
	// eligible and is picked.
	st.vtime = e.start

	picked := st.selectEntity()
	require.NotNil(t, picked)
	assert.Same(t, e, picked)
}

func TestServiceTreeExpireMovesToIdleAndPrunes(t *testing.T) {
	st := newServiceTree(IOPrioBE)
	e := newTestEntity(1, 1000)
	st.activate(e)

	picked := st.selectEntity()
	require.Same(t, e, picked)

	st.charge(e, 500)
	st.expire(e)
	assert.Equal(t, TreeIdle, e.tree)
	assert.Equal(t, 0, st.active.Len())
	assert.Equal(t, 1, st.idle.Len())

	st.vtime = e.finish + 1
	st.prune()
	assert.Equal(t, 0, st.idle.Len())
	assert.Equal(t, TreeNone, e.tree)
}

func TestServiceTreeAugmentationInvariantHoldsAcrossActivations(t *testing.T) {
	st := newServiceTree(IOPrioBE)
	entities := make([]*Entity, 0, 20)
	for i := 0; i < 20; i++ {
		e := newTestEntity(uint32(1+i%4), int64(100*(i+1)))
		st.activate(e)
		entities = append(entities, e)
	}
	assert.True(t, st.checkAugmentation())

	for i, e := range entities {
		if i%3 == 0 {
			st.charge(e, 50)
			st.expire(e)
		}
	}
	assert.True(t, st.checkAugmentation())
}

func TestServiceTreeReactivationUsesPriorFinish(t *testing.T) {
	st := newServiceTree(IOPrioBE)
	e := newTestEntity(1, 1000)
	st.activate(e)
	firstFinish := e.finish

	st.charge(e, 1000)
	st.expire(e)

	st.vtime = firstFinish - 1 // class vtime lags behind e's own finish
	st.activate(e)

	assert.Equal(t, firstFinish, e.start, "start should be max(prev finish, vtime)")
}

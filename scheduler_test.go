package bfq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetQueueReturnsSameSyncQueueForSameProducer(t *testing.T) {
	sched := newTestScheduler()

	a, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)
	b, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.EqualValues(t, 2, a.ref.Load())
}

func TestGetQueueDistinctProducersGetDistinctQueues(t *testing.T) {
	sched := newTestScheduler()

	a, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)
	b, err := sched.GetQueue(nil, "producer-2", IOPrioBE, 4, true)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
}

func TestGetQueueAsyncSharesByClassAndPriorityNotProducer(t *testing.T) {
	sched := newTestScheduler()

	a, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, false)
	require.NoError(t, err)
	b, err := sched.GetQueue(nil, "producer-2", IOPrioBE, 4, false)
	require.NoError(t, err)

	assert.Same(t, a, b, "async requests at the same class/priority share one queue regardless of producer")
}

func TestGetQueueEnforcesMaxQueuesForNewProducers(t *testing.T) {
	sched := NewScheduler(nil, WithMaxQueues(1))

	_, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)

	_, err = sched.GetQueue(nil, "producer-2", IOPrioBE, 4, true)
	assert.ErrorIs(t, err, ErrMustAlloc)

	// The existing producer can still retrieve its own queue.
	_, err = sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	assert.NoError(t, err)
}

func TestPutQueueDropsRefAndDeletesWhenIdle(t *testing.T) {
	sched := newTestScheduler()
	q, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)

	require.NoError(t, sched.PutQueue(q))

	again, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)
	assert.NotSame(t, q, again, "a fully dereferenced queue must be forgotten, not reused")
}

func TestPutQueueRefusesToFreeBusyQueue(t *testing.T) {
	sched := newTestScheduler()
	q, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)
	sched.InsertRequest(q, &Request{Sector: 0, Sectors: 8, Flags: ReqSync})

	err = sched.PutQueue(q)

	assert.Error(t, err)
	assert.EqualValues(t, 1, q.ref.Load(), "a rejected PutQueue must not have consumed the reference")
}

func TestInsertRequestAliasesSameSectorAndBypassesScheduler(t *testing.T) {
	sched := newTestScheduler()
	var dispatched *Request
	sched.driver = dispatchFunc(func(r *Request) { dispatched = r })

	q, err := sched.GetQueue(nil, "producer-1", IOPrioBE, 4, true)
	require.NoError(t, err)

	first := &Request{Sector: 100, Sectors: 8, Flags: ReqSync}
	second := &Request{Sector: 100, Sectors: 8, Flags: ReqSync}

	sched.InsertRequest(q, first)
	sched.InsertRequest(q, second)

	assert.Same(t, first, dispatched, "the alias's victim is dispatched directly, bypassing the scheduler")
	assert.Equal(t, second, first.alias)
	assert.Equal(t, 1, q.queuedSync, "only the surviving request counts toward the queue")
}

type dispatchFunc func(*Request)

func (f dispatchFunc) Dispatch(r *Request) { f(r) }

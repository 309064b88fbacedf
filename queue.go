package bfq

import (
	"container/list"
	"sync/atomic"
	"time"

	"github.com/blkiosched/bfq/internal/rbtree"
)

// Queue is a leaf Entity: a single producer's pending-request store (§3
// "Queue").
type Queue struct {
	id          int
	producerID  string

	Entity *Entity

	sortTree *rbtree.Tree[Sector, struct{}, *Request]
	fifo     *list.List // of *Request, insertion order

	nextRQ *Request

	queuedSync  int
	queuedAsync int
	dispatched  int

	maxBudget     int64
	budgetTimeout time.Time
	budgetsAssigned uint64

	busy        bool
	sync        bool
	idleWindow  bool
	waitRequest bool
	mustAlloc   bool
	budgetNew   bool
	fifoUsed    bool // this activation has already consumed its one FIFO override

	metaPending int
	pid         int
	ref         atomic.Int32

	profile *Profile

	sched *Scheduler
	group *Group
}

func newQueue(s *Scheduler, g *Group, class IOPrioClass, prio int, sync bool) *Queue {
	q := &Queue{
		sortTree:  rbtree.New[Sector, struct{}, *Request](lessSector, noAugment),
		fifo:      list.New(),
		maxBudget: s.tunables.MaxBudget,
		sync:      sync,
		sched:     s,
		group:     g,
		profile:   newProfile(s.tunables.SliceIdle),
	}
	q.Entity = newQueueEntity(q, class, prio)
	q.Entity.parent = g
	return q
}

func lessSector(a, b Sector) bool { return a < b }

var queueSeq atomic.Int64

func nextQueueID() int { return int(queueSeq.Add(1)) }

// producerKey identifies a sync queue's slot in the scheduler's lookup
// map: one sync queue per (group, producer).
type producerKey struct {
	group      *Group
	producerID string
}

// fifoExpire returns the FIFO deadline duration for this queue's
// direction class.
func (q *Queue) fifoExpire() time.Duration {
	if q.sync {
		return q.sched.tunables.FifoExpireSync
	}
	return q.sched.tunables.FifoExpireAsync
}

// Insert adds req to the queue (§4.2 "Insertion"). If req aliases an
// already-queued request at the same starting sector, the older request
// (the alias victim) is removed from the queue's pending store with the
// same accounting Remove applies, and returned as a pass-through request
// for the caller to dispatch directly, bypassing budget selection (§4.2
// "Alias handling"); req itself is still inserted below, becoming the
// queue's live record at that sector. The bool result reports whether an
// alias victim was produced.
func (q *Queue) Insert(req *Request, now time.Time) (alias *Request, aliased bool) {
	if existing := q.sortTree.Get(req.Sector); existing != nil {
		victim := existing.Value
		q.Remove(victim)
		victim.alias = req
		alias, aliased = victim, true
	}

	req.queue = q
	req.node = q.sortTree.Insert(req.Sector, req)
	req.Deadline = now.Add(q.fifoExpire())
	req.fifoElem = q.fifo.PushBack(req)

	if req.Sync() {
		q.queuedSync++
	} else {
		q.queuedAsync++
	}

	wasBusy := q.busy
	lastPos := q.sched.lastPosition
	q.updateNextRQ(lastPos)

	if !wasBusy {
		q.busy = true
		q.fifoUsed = false
		q.Entity.budget = maxInt64(q.maxBudget, req.Sectors)
		q.Entity.reconcileBoost(q.sched.boosted())
		activateEntity(q.Entity)
	} else if q.isActiveQueue() {
		// Never resize the active queue's budget mid-activation: doing
		// so would break the WF2Q+ guarantee (§4.2 "Updated next_req").
	} else {
		q.updatedNextReq()
	}

	return alias, aliased
}

// Remove deletes req from the queue (§4.2 "Removal"). If req was the
// cached candidate, next_rq is recomputed by updateNextRQ from the
// ceiling and floor of the current head position, not from the removed
// node's neighbours.
func (q *Queue) Remove(req *Request) {
	wasNext := q.nextRQ == req
	q.removeFromSortTree(req)

	if req.Sync() {
		q.queuedSync--
	} else {
		q.queuedAsync--
	}

	if wasNext {
		q.updateNextRQ(q.sched.lastPosition)
	}

	if q.queuedSync+q.queuedAsync == 0 {
		q.busy = false
	}
}

func (q *Queue) removeFromSortTree(req *Request) {
	if req.node != nil {
		q.sortTree.Delete(req.node)
		req.node = nil
	}
	if req.fifoElem != nil {
		q.fifo.Remove(req.fifoElem)
		req.fifoElem = nil
	}
}

// updateNextRQ recomputes next_rq via the head-biased chooser (§4.3),
// comparing the sort tree's ceiling and floor of the device head
// position.
func (q *Queue) updateNextRQ(lastPos Sector) {
	var ceil, floor *Request
	if n := q.sortTree.Ceiling(lastPos); n != nil {
		ceil = n.Value
	}
	if n := q.sortTree.Floor(lastPos - 1); n != nil {
		floor = n.Value
	}
	backMax := q.sched.tunables.backSeekMaxSectors()
	backPenalty := q.sched.tunables.BackSeekPenalty
	q.nextRQ = chooseRequest(ceil, floor, lastPos, backMax, backPenalty)
}

// updatedNextReq handles a next_rq change while this queue is not the
// active queue (§4.2): resize the budget to the new candidate's need and
// reactivate so finish is recomputed against the new budget.
func (q *Queue) updatedNextReq() {
	if q.nextRQ == nil {
		return
	}
	newBudget := maxInt64(q.maxBudget, q.nextRQ.Sectors)
	if newBudget == q.Entity.budget {
		return
	}
	q.Entity.budget = newBudget
	if q.Entity.tree == TreeActive {
		deactivateEntity(q.Entity)
	}
	q.Entity.reconcileBoost(q.sched.boosted())
	activateEntity(q.Entity)
}

// fifoHead returns the queue's oldest pending request, or nil if empty.
func (q *Queue) fifoHead() *Request {
	if front := q.fifo.Front(); front != nil {
		return front.Value.(*Request)
	}
	return nil
}

// pickRequest implements §4.2's "FIFO aging" + §4.4 step 1: the
// FIFO-expired head if one exists and this activation hasn't already
// used its override, else the cached next_rq.
func (q *Queue) pickRequest(now time.Time) *Request {
	if !q.fifoUsed {
		if head := q.fifoHead(); head != nil && !now.Before(head.Deadline) {
			q.fifoUsed = true
			return head
		}
	}
	return q.nextRQ
}

func (q *Queue) isActiveQueue() bool {
	return q.sched != nil && q.sched.activeQueue == q
}

// timeoutFor returns the wall-clock budget timeout for this queue's
// direction.
func (q *Queue) timeoutFor() time.Duration {
	if q.sync {
		return q.sched.tunables.TimeoutSync
	}
	return q.sched.tunables.TimeoutAsync
}

func (q *Queue) empty() bool { return q.queuedSync+q.queuedAsync == 0 }

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

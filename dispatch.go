package bfq

import "time"

// selectQueue implements §4.4 "Select active queue": validate the
// current active queue against timeout, budget, and idle-window rules,
// expiring and reselecting as needed; returns nil if no queue is ready
// (either nothing is busy, or the active queue is legitimately parked
// waiting out its idle window).
func (s *Scheduler) selectQueue(now time.Time) *Queue {
	if s.activeQueue == nil {
		return s.activateNext(now)
	}

	q := s.activeQueue
	switch {
	case !now.Before(q.budgetTimeout):
		s.expireActive(ExpireBudgetTimeout, now)
		return s.activateNext(now)
	case q.nextRQ != nil && q.nextRQ.Sectors > q.Entity.budget-q.Entity.service:
		s.expireActive(ExpireBudgetExhausted, now)
		return s.activateNext(now)
	case q.empty():
		if s.idleTimer != nil {
			return nil
		}
		s.expireActive(ExpireNoMoreRequests, now)
		return s.activateNext(now)
	default:
		return q
	}
}

// activateNext picks the next queue via the hierarchy walk and marks it
// active, arming its budget timeout from now.
func (s *Scheduler) activateNext(now time.Time) *Queue {
	q := s.rootGroup.selectQueue()
	if q == nil {
		s.activeQueue = nil
		return nil
	}
	s.activeQueue = q
	s.lastBudgetStart = now
	q.budgetTimeout = now.Add(q.timeoutFor())
	q.fifoUsed = false
	return q
}

// maxDispatchFor returns the per-round dispatch cap for q's class and
// direction (§4.4): quantum for sync, max_budget_async_rq for async, one
// for IDLE class regardless of direction.
func (s *Scheduler) maxDispatchFor(q *Queue) int {
	switch {
	case q.Entity.ioprioClass == IOPrioIdle:
		return 1
	case q.sync:
		return s.tunables.Quantum
	default:
		return s.tunables.MaxBudgetAsyncRQ
	}
}

func requestSectors(r *Request) int64 {
	if r == nil {
		return 0
	}
	return r.Sectors
}

// Dispatch drives one round of the dispatch engine (§4.4 "Dispatch
// loop"): select the active queue, hand its requests to the driver up to
// the per-round cap, and return the number dispatched. Callers typically
// call Dispatch once per Kicker.Kick notification and once more whenever
// a timer or completion callback reports scheduler state advanced.
func (s *Scheduler) Dispatch(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(now)
}

func (s *Scheduler) dispatchLocked(now time.Time) int {
	q := s.selectQueue(now)
	if q == nil {
		return 0
	}
	maxDispatch := s.maxDispatchFor(q)
	dispatched := 0

	for dispatched < maxDispatch {
		req := q.pickRequest(now)
		if req == nil {
			break
		}

		remaining := q.Entity.budget - q.Entity.service
		if req.Sectors > remaining {
			s.expireActive(ExpireBudgetExhausted, now)
			q = s.activateNext(now)
			if q == nil {
				return dispatched
			}
			maxDispatch = s.maxDispatchFor(q)
			continue
		}

		q.Remove(req)
		s.queued--
		s.chargeAndDispatch(q, req, now)
		dispatched++

		if q.empty() {
			break
		}

		// Don't let a sync queue monopolize the device while it is
		// using its idle window and an async queue still has work
		// in flight (§4.4 "Additional termination").
		if q.sync && q.idleWindow && s.rqInDriverAsync > 0 {
			break
		}
	}

	if q := s.activeQueue; q != nil && q.empty() {
		s.afterLastRequest(q, now)
	}
	return dispatched
}

// chargeAndDispatch charges sectors of service to q's entity and every
// ancestor on the path to the root, updates the in-driver counters, and
// hands req to the driver. This is always the last step of a dispatch
// round (§5 "Ordering guarantees").
func (s *Scheduler) chargeAndDispatch(q *Queue, req *Request, now time.Time) {
	chargeServiceUpChain(q.Entity, req.Sectors)
	s.markInFlight(q, req)
	s.lastPosition = req.End()
	s.observer.ObserveDispatch(req.Sectors)
	s.driver.Dispatch(req)
}

// markInFlight records req as handed to the driver: it counts toward
// q's dispatched total and the scheduler's in-driver/sync-flight
// counters, without charging any entity's service (the alias
// pass-through path in InsertRequest uses this directly, since a
// request dispatched that way never goes through budget selection).
func (s *Scheduler) markInFlight(q *Queue, req *Request) {
	q.dispatched++
	if req.Sync() {
		s.rqInDriverSync++
		s.syncFlight++
	} else {
		s.rqInDriverAsync++
	}
}

// expireActive expires the current active queue with the given reason,
// applying budget feedback, the TOO_IDLE->BUDGET_TIMEOUT reclassification
// rule, and the peak-rate sample it was a suitable candidate for, then
// deactivates (and, if new work arrived while active, reactivates) its
// entity (§4.1, §4.5).
func (s *Scheduler) expireActive(reason ExpireReason, now time.Time) {
	q := s.activeQueue
	if q == nil {
		return
	}

	elapsed := now.Sub(s.lastBudgetStart)
	// At the service rate observed so far, the budget would not have been
	// used up before the wall-clock timeout.
	wouldExceedTimeout := elapsed > 0 && q.Entity.service*int64(q.timeoutFor()) < q.Entity.budget*int64(elapsed)
	reason = reclassifyIfSeekyIdle(reason, q, reason == ExpireTooIdle && wouldExceedTimeout)

	if q.sync {
		adjustBudget(reason, q, s)
	} else {
		q.maxBudget = s.systemMaxBudget()
	}

	if q.sync {
		s.estimator.observe(q.Entity.service, elapsed)
	}

	deactivateEntity(q.Entity)
	if !q.empty() {
		q.Entity.budget = maxInt64(q.maxBudget, requestSectors(q.nextRQ))
		q.Entity.reconcileBoost(s.boosted())
		activateEntity(q.Entity)
	}

	s.observer.ObserveExpiration(reason)

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.activeQueue = nil
}

// afterLastRequest runs once q's pending-request store just emptied
// while it was the active queue: arm the idle timer if anticipatory
// idling is worth it for q's producer profile (§4.4 "Idle arming").
func (s *Scheduler) afterLastRequest(q *Queue, now time.Time) {
	if !q.sync {
		return
	}
	const producerHasLiveTasks = true // I/O-context liveness is out of scope (§1); a pinned queue is assumed live.
	eligible := q.profile.idleWindowEligible(q.sync, q.Entity.ioprioClass, producerHasLiveTasks, s.hwDetector.HWTag(), s.tunables.Desktop)
	q.idleWindow = eligible
	if !eligible {
		return
	}
	s.armIdle(q, now)
}

// armIdle schedules the idle-slice timer for q, shortened for a seeky
// producer, replacing any timer already armed.
func (s *Scheduler) armIdle(q *Queue, now time.Time) {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.lastIdlingStart = now
	timeout := q.profile.idleTimeout()
	s.idleTimer = s.clock.AfterFunc(timeout, func() {
		s.withLock(func() { s.idleTimerFired(q) })
	})
	s.observer.ObserveIdleArm()
}

// idleTimerFired runs under the scheduler lock when an armed idle timer
// expires. If the active queue changed since the timer was armed — the
// timer-vs-expiry race of §5 — it is a stale firing: just prompt a
// redispatch and do nothing else.
func (s *Scheduler) idleTimerFired(q *Queue) {
	s.idleTimer = nil
	s.observer.ObserveIdleFire()

	if s.activeQueue != q {
		s.kick()
		return
	}

	s.expireActive(ExpireTooIdle, s.clock.Now())
	s.kick()
}

// Drain forces every busy queue to flush its pending requests to the
// driver regardless of budget, resets max_budget to the system default,
// and prunes every idle tree (§4.4 "Forced dispatch").
func (s *Scheduler) Drain(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeQueue != nil {
		s.expireActive(ExpireNoMoreRequests, now)
	}

	for _, q := range s.syncQueues {
		s.flushQueue(q, now)
	}
	for _, g := range s.groups {
		s.flushGroupAsyncQueues(g, now)
	}
	s.flushGroupAsyncQueues(s.rootGroup, now)

	s.rootGroup.sched.pruneAll()
	for _, g := range s.groups {
		g.sched.pruneAll()
	}
}

func (s *Scheduler) flushGroupAsyncQueues(g *Group, now time.Time) {
	for _, q := range g.asyncQueues {
		s.flushQueue(q, now)
	}
	if g.asyncIdleQueue != nil {
		s.flushQueue(g.asyncIdleQueue, now)
	}
}

func (s *Scheduler) flushQueue(q *Queue, now time.Time) {
	for {
		req := q.pickRequest(now)
		if req == nil {
			break
		}
		q.Remove(req)
		s.queued--
		s.chargeAndDispatch(q, req, now)
	}
	q.maxBudget = s.systemMaxBudget()
	if q.Entity.isOnTree() {
		deactivateEntity(q.Entity)
	}
	if s.activeQueue == q {
		s.activeQueue = nil
	}
}

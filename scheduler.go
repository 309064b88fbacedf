package bfq

import (
	"sync"
	"time"

	"github.com/blkiosched/bfq/internal/clock"
	"github.com/blkiosched/bfq/internal/logging"
)

// Scheduler is the device-wide proportional-share request scheduler
// (§3 "Scheduler Data"). All state mutation happens with mu held; external
// collaborators (completion callbacks, timers) acquire it via withLock.
type Scheduler struct {
	mu sync.Mutex

	tunables       Tunables
	observer       Observer
	clock          Clock
	boostPredicate BoostPredicate
	maxQueues      int // 0 = unlimited

	driver  Driver
	logger  *logging.Logger
	metrics *Metrics

	rootGroup   *Group
	groups      []*Group // every group created via NewGroup, for enumeration (Drain)
	activeQueue *Queue

	syncQueues map[producerKey]*Queue

	busyQueues int
	queued     int

	rqInDriverSync  int
	rqInDriverAsync int
	syncFlight      int

	lastPosition    Sector
	lastBudgetStart time.Time
	lastIdlingStart time.Time

	estimator  *RateEstimator
	hwDetector *HWTagDetector

	idleTimer clock.Timer
}

// NewScheduler creates a Scheduler bound to driver, applying any Options
// over the shipped defaults.
func NewScheduler(driver Driver, opts ...Option) *Scheduler {
	s := &Scheduler{
		tunables:   DefaultTunables(),
		clock:      clock.New(),
		driver:     driver,
		logger:     logging.Default(),
		metrics:    NewMetrics(),
		rootGroup:  newRootGroup(),
		syncQueues: make(map[producerKey]*Queue),
		estimator:  newRateEstimator(),
		hwDetector: newHWTagDetector(),
	}
	s.observer = NewMetricsObserver(s.metrics)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RootGroup returns the device's root containment group.
func (s *Scheduler) RootGroup() *Group { return s.rootGroup }

// NewGroup creates a child group nested under parent (or the root group,
// if parent is nil), for hierarchical weighted-group scenarios (§8 seed
// scenario 5).
func (s *Scheduler) NewGroup(parent *Group, class IOPrioClass, prio int) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parent == nil {
		parent = s.rootGroup
	}
	g := newChildGroup(parent, class, prio)
	s.groups = append(s.groups, g)
	return g
}

// Metrics returns a point-in-time snapshot of the scheduler's counters.
func (s *Scheduler) Metrics() MetricsSnapshot { return s.metrics.Snapshot() }

// Tunables returns the scheduler's current tunable attribute surface.
func (s *Scheduler) Tunables() Tunables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunables
}

// SetTunables replaces the tunable attribute surface (§6). Setting
// MaxBudget to 0 switches back to auto mode; setting TimeoutSync while
// already in auto mode implicitly recomputes the system max budget on
// the next expiration, since systemMaxBudget derives from it directly.
func (s *Scheduler) SetTunables(t Tunables) error {
	if t.Quantum <= 0 {
		return NewError("SetTunables", ErrCodeInvalidTunable, "quantum must be positive")
	}
	if t.MaxBudgetAsyncRQ <= 0 {
		return NewError("SetTunables", ErrCodeInvalidTunable, "max_budget_async_rq must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.UserMaxBudgetSet = t.MaxBudget != 0
	s.tunables = t
	return nil
}

// withLock runs f with the scheduler's lock held, the single re-entry
// point every external collaborator (timers, completion callbacks) must
// go through before touching scheduler state (§5).
func (s *Scheduler) withLock(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f()
}

// systemMaxBudget returns the currently effective system-wide budget
// cap: the user-pinned value if one was set via SetTunables, otherwise
// the peak-rate estimator's derived value (falling back to a
// conservative constant until the estimator has PeakRateSamples samples).
func (s *Scheduler) systemMaxBudget() int64 {
	if s.tunables.UserMaxBudgetSet && s.tunables.MaxBudget > 0 {
		return s.tunables.MaxBudget
	}
	if s.estimator.samples() >= PeakRateSamples {
		if budget := s.estimator.systemMaxBudget(s.tunables.TimeoutSync); budget > 0 {
			return budget
		}
	}
	return int64(DefaultQuantum) * Step * 8
}

// GetQueue resolves the queue producerID should enqueue into within g
// (the root group if g is nil), creating it on first use, and pins it
// with a reference (§3 "Lifecycle"). Async requests share one queue per
// (group, priority) regardless of producerID, plus one async IDLE-class
// queue per group; RT and BE async requests at the same priority share a
// queue, which keeps the class it was created with.
//
// GetQueue returns ErrMustAlloc once the scheduler already has maxQueues
// live sync queues and producerID is not among them: callers must retry
// after a Dispatch/PutQueue cycle frees capacity, modeling allocation
// backpressure without blocking inside the lock (§5).
func (s *Scheduler) GetQueue(g *Group, producerID string, class IOPrioClass, prio int, sync bool) (*Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g == nil {
		g = s.rootGroup
	}

	if !sync {
		q := g.getAsyncQueue(s, class, prio)
		q.ref.Add(1)
		return q, nil
	}

	key := producerKey{group: g, producerID: producerID}
	if q, ok := s.syncQueues[key]; ok {
		q.ref.Add(1)
		return q, nil
	}

	if s.maxQueues > 0 && len(s.syncQueues) >= s.maxQueues {
		return nil, ErrMustAlloc
	}

	q := newQueue(s, g, class, prio, true)
	q.id = nextQueueID()
	q.producerID = producerID
	s.syncQueues[key] = q
	q.ref.Add(1)
	return q, nil
}

// PutQueue releases one reference to q. When the refcount reaches zero,
// the queue is unregistered from the scheduler's lookup table — but only
// once it satisfies the freed-queue invariant (§8 invariant 6): no
// pending requests, no tree membership, and not the active queue.
// Violating that invariant is an invariant-violation error rather than a
// silent leak, since it means a caller dropped the last reference while
// the queue still had in-flight work.
func (s *Scheduler) PutQueue(q *Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ref.Add(-1) > 0 {
		return nil
	}

	if q.busy || q.Entity.isOnTree() || q.isActiveQueue() {
		q.ref.Add(1) // undo: the queue is not actually free
		return NewQueueError("PutQueue", q.id, ErrCodeInvariantViolation, "queue freed with pending work")
	}

	if q.producerID != "" {
		delete(s.syncQueues, producerKey{group: q.group, producerID: q.producerID})
	}
	return nil
}

// InsertRequest adds req to q (§4.2). req is always inserted; if it
// starts at a sector already occupied by a pending request in q, that
// older request (the alias victim) is removed from q's pending store
// with the same accounting Remove applies, marked in-flight, and
// dispatched straight to the driver, bypassing budget selection
// entirely, per the alias-handling rule.
func (s *Scheduler) InsertRequest(q *Queue, req *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	alias, aliased := q.Insert(req, now)

	q.profile.observeRequest(req.Sector)
	s.queued++

	if aliased {
		s.queued--
		s.markInFlight(q, alias)
		s.observer.ObserveDispatch(alias.Sectors)
		s.driver.Dispatch(alias)
	}

	s.busyQueues = s.countBusyQueues()

	if s.activeQueue == q && s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
		s.kick()
	}
}

// CompleteRequest records req's completion (success or err), updating
// the producer's think-time profile, the sync in-flight counter, and the
// NCQ sample stream, then kicks the driver to attempt another dispatch.
func (s *Scheduler) CompleteRequest(req *Request, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := req.queue
	now := s.clock.Now()

	if req.Sync() {
		s.rqInDriverSync--
		s.syncFlight--
	} else {
		s.rqInDriverAsync--
	}

	if q != nil {
		q.profile.observeCompletion(now)
		q.dispatched--
	}

	s.hwDetector.observe(s.rqInDriverSync + s.rqInDriverAsync + s.queued)
	s.observer.ObserveNCQSample()

	s.kick()
}

// boosted reports whether the caller currently holds a filesystem-
// exclusive resource that idle-class producers must be boosted around
// (§4.8), via the injected predicate. No predicate means boosting is
// never requested.
func (s *Scheduler) boosted() bool {
	return s.boostPredicate != nil && s.boostPredicate()
}

// kick notifies the driver that scheduler state advanced and another
// Dispatch call may now make progress, if the driver opts into that
// optional notification.
func (s *Scheduler) kick() {
	if k, ok := s.driver.(Kicker); ok {
		k.Kick()
	}
}

func (s *Scheduler) countBusyQueues() int {
	n := 0
	for _, q := range s.syncQueues {
		if q.busy {
			n++
		}
	}
	return n
}

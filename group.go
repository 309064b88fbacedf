package bfq

// SchedData is the per-class service-tree bundle a Group owns (§3
// "Group"): one ServiceTree per I/O priority class.
type SchedData struct {
	trees [numIOPrioClasses]*ServiceTree
}

func newSchedData() *SchedData {
	return &SchedData{
		trees: [numIOPrioClasses]*ServiceTree{
			newServiceTree(IOPrioRT),
			newServiceTree(IOPrioBE),
			newServiceTree(IOPrioIdle),
		},
	}
}

func (sd *SchedData) tree(class IOPrioClass) *ServiceTree { return sd.trees[class] }

// selectEntity walks the class trees in priority order RT -> BE -> IDLE
// (§4.1 "Hierarchical recursion") and returns the first selectable
// entity found.
func (sd *SchedData) selectEntity() *Entity {
	for class := IOPrioRT; class <= IOPrioIdle; class++ {
		st := sd.trees[class]
		if st.busyCount() == 0 {
			continue
		}
		if e := st.selectEntity(); e != nil {
			return e
		}
	}
	return nil
}

func (sd *SchedData) anyBusy() bool {
	for _, st := range sd.trees {
		if st.busyCount() > 0 {
			return true
		}
	}
	return false
}

func (sd *SchedData) pruneAll() {
	for _, st := range sd.trees {
		st.prune()
	}
}

// Group is an Entity that is also an inner node: it owns the service
// trees its children activate into, plus the shared async queues every
// producer in the group writing at a given BE level funnels through.
type Group struct {
	entity *Entity // nil only for the implicit device root
	sched  *SchedData

	parentGroup *Group

	asyncQueues    map[int]*Queue // keyed by BE ioprio level
	asyncIdleQueue *Queue
}

// newRootGroup creates the device's root group. It has no entity of its
// own, since it is not itself activated into any parent.
func newRootGroup() *Group {
	return &Group{sched: newSchedData(), asyncQueues: make(map[int]*Queue)}
}

// newChildGroup creates a group nested under parent, with the given
// priority used only for the group's own entity (a group's descendants
// set their own classes independently).
func newChildGroup(parent *Group, class IOPrioClass, prio int) *Group {
	g := &Group{sched: newSchedData(), parentGroup: parent, asyncQueues: make(map[int]*Queue)}
	g.entity = newGroupEntity(g, class, prio)
	g.entity.parent = parent
	return g
}

// selectQueue recurses down from g to the leaf queue the hierarchy walk
// selects, or nil if g's subtree has no eligible work.
func (g *Group) selectQueue() *Queue {
	e := g.sched.selectEntity()
	if e == nil {
		return nil
	}
	if e.kind == EntityQueue {
		return e.queue
	}
	return e.group.selectQueue()
}

// activateEntity activates e into its parent's service tree and climbs
// the ancestor chain, activating each group's own entity in turn, until
// it reaches an ancestor that is already represented on its parent's
// tree (and therefore needs no further propagation) or the root.
func activateEntity(e *Entity) {
	for e != nil {
		parent := e.parent
		if parent == nil {
			return
		}
		if e.tree != TreeActive {
			e.applyPendingPriority()
			parent.sched.tree(e.ioprioClass).activate(e)
		}
		if parent.entity == nil {
			return
		}
		if parent.entity.tree == TreeActive {
			return
		}
		e = parent.entity
	}
}

// deactivateEntity expires e from its parent's service tree, then climbs
// the ancestor chain expiring each group's own entity in turn as long as
// the group has no other busy work left underneath it.
func deactivateEntity(e *Entity) {
	for e != nil {
		parent := e.parent
		if parent == nil {
			return
		}
		st := parent.sched.tree(e.ioprioClass)
		if e.tree == TreeActive {
			st.expire(e)
		}
		if parent.entity == nil {
			return
		}
		if parent.sched.anyBusy() {
			return
		}
		e = parent.entity
	}
}

// chargeServiceUpChain records sectors of service against e and every
// ancestor group's own entity, so an ancestor's aggregate throughput is
// reflected the next time its entity's finish is recomputed (§4.1
// "Service charged to a leaf queue is propagated to every ancestor").
func chargeServiceUpChain(e *Entity, sectors int64) {
	for e != nil {
		e.service += sectors
		parent := e.parent
		if parent == nil || parent.entity == nil {
			return
		}
		e = parent.entity
	}
}

// getAsyncQueue returns the shared async queue for the given BE priority
// level within g, creating it on first use. Each group owns one async
// queue per BE level plus one async-idle queue, shared by every producer
// in the group writing asynchronously at that priority (§3 "Group").
func (g *Group) getAsyncQueue(s *Scheduler, class IOPrioClass, prio int) *Queue {
	if class == IOPrioIdle {
		if g.asyncIdleQueue == nil {
			g.asyncIdleQueue = newQueue(s, g, class, prio, false)
		}
		return g.asyncIdleQueue
	}
	if q, ok := g.asyncQueues[prio]; ok {
		return q
	}
	q := newQueue(s, g, class, prio, false)
	g.asyncQueues[prio] = q
	return q
}

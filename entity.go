package bfq

import (
	"sync/atomic"

	"github.com/blkiosched/bfq/internal/rbtree"
)

// IOPrioClass is a request producer's I/O priority class.
type IOPrioClass int

const (
	IOPrioRT IOPrioClass = iota
	IOPrioBE
	IOPrioIdle

	numIOPrioClasses = 3
)

func (c IOPrioClass) String() string {
	switch c {
	case IOPrioRT:
		return "RT"
	case IOPrioBE:
		return "BE"
	case IOPrioIdle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// ioprioLevels bounds the BE-class priority range (0 = highest, like
// IOPRIO_BE_NR in the source this weight mapping is grounded on).
const ioprioLevels = 8

// weightForPrio maps an I/O priority class and level to a scheduling
// weight. RT and BE share a linear weight scale; IDLE always gets the
// floor weight of 1, so it never outcompetes a backlogged RT/BE sibling.
func weightForPrio(class IOPrioClass, prio int) uint32 {
	if class == IOPrioIdle {
		return 1
	}
	w := ioprioLevels - prio
	if w < 1 {
		w = 1
	}
	return uint32(w)
}

// EntityKind distinguishes a leaf queue from an inner group.
type EntityKind int

const (
	EntityQueue EntityKind = iota
	EntityGroup
)

// TreeMembership records which of a service tree's two trees, if any, an
// entity currently belongs to.
type TreeMembership int

const (
	TreeNone TreeMembership = iota
	TreeActive
	TreeIdle
)

// serviceKey is the service-tree ordering key: primarily finish time, with
// start time and a monotonic sequence number as tie-breakers so two
// entities never collide on an identical key.
type serviceKey struct {
	finish VTime
	start  VTime
	seq    uint64
}

func lessServiceKey(a, b serviceKey) bool {
	if a.finish != b.finish {
		return a.finish < b.finish
	}
	if a.start != b.start {
		return a.start < b.start
	}
	return a.seq < b.seq
}

// combineMinStart computes the min_start augmentation (§3, §4.1
// invariant 3): a node's augmentation is the minimum start time across
// itself and its subtree.
func combineMinStart(key serviceKey, _ *Entity, left, right *VTime) VTime {
	m := key.start
	if left != nil {
		m = minVTime(m, *left)
	}
	if right != nil {
		m = minVTime(m, *right)
	}
	return m
}

type entityNode = rbtree.Node[serviceKey, VTime, *Entity]

var entitySeq atomic.Uint64

func nextEntitySeq() uint64 { return entitySeq.Add(1) }

// Entity is the scheduling unit shared by leaf queues and inner groups
// (§9 "Polymorphism": a tagged variant sharing scheduling fields, rather
// than two unrelated types, since both are manipulated by the same
// service-tree code).
type Entity struct {
	kind EntityKind

	weight    uint32
	newWeight uint32
	weightSet bool

	service int64 // sectors served in the current activation
	budget  int64 // sectors granted for the current activation

	start  VTime
	finish VTime

	tree TreeMembership
	node *entityNode

	ioprioClass    IOPrioClass
	ioprio         int
	newIOPrioClass IOPrioClass
	newIOPrio      int
	prioChanged    bool

	onST bool

	boostActive   bool
	preBoostClass IOPrioClass
	preBoostPrio  int

	parent *Group // the group whose sched data this entity is (or would be) activated into

	queue *Queue // non-nil iff kind == EntityQueue
	group *Group // non-nil iff kind == EntityGroup

	activatedAt uint64 // debug aid: sequence number of the last activation
}

func newQueueEntity(q *Queue, class IOPrioClass, prio int) *Entity {
	e := &Entity{
		kind:           EntityQueue,
		ioprioClass:    class,
		ioprio:         prio,
		newIOPrioClass: class,
		newIOPrio:      prio,
		weight:         weightForPrio(class, prio),
		queue:          q,
	}
	return e
}

func newGroupEntity(g *Group, class IOPrioClass, prio int) *Entity {
	e := &Entity{
		kind:           EntityGroup,
		ioprioClass:    class,
		ioprio:         prio,
		newIOPrioClass: class,
		newIOPrio:      prio,
		weight:         weightForPrio(class, prio),
		group:          g,
	}
	return e
}

// applyPendingPriority applies a pending ioprio/class change. Per §4.8,
// changes take effect only at the next (re)activation, never while the
// entity is on a tree.
func (e *Entity) applyPendingPriority() {
	if !e.prioChanged {
		return
	}
	e.ioprioClass = e.newIOPrioClass
	e.ioprio = e.newIOPrio
	e.weight = weightForPrio(e.ioprioClass, e.ioprio)
	e.prioChanged = false
}

// isOnTree reports whether the entity currently sits on an active or idle
// tree, per the "on at most one RB-tree at a time" invariant (§3).
func (e *Entity) isOnTree() bool { return e.tree != TreeNone }

package bfq

import "github.com/blkiosched/bfq/internal/rbtree"

// ServiceTree holds the active and idle augmented trees for one I/O
// priority class within a single group's scheduler data, plus that
// class's virtual clock.
type ServiceTree struct {
	class IOPrioClass
	vtime VTime

	active *rbtree.Tree[serviceKey, VTime, *Entity]
	idle   *rbtree.Tree[serviceKey, VTime, *Entity]
}

func newServiceTree(class IOPrioClass) *ServiceTree {
	return &ServiceTree{
		class:  class,
		active: rbtree.New[serviceKey, VTime, *Entity](lessServiceKey, combineMinStart),
		idle:   rbtree.New[serviceKey, VTime, *Entity](lessServiceKey, combineMinStart),
	}
}

// activate (re)inserts e into the active tree, computing start from the
// entity's previous finish (persisted across activations) and class
// vtime, and finish from the granted budget, per §4.1's virtual time
// model.
func (st *ServiceTree) activate(e *Entity) {
	if e.tree == TreeIdle {
		st.idle.Delete(e.node)
	}

	e.start = maxVTime(e.finish, st.vtime)
	e.finish = e.start + vtimeDiv(e.budget, e.weight)
	e.service = 0

	key := serviceKey{finish: e.finish, start: e.start, seq: nextEntitySeq()}
	e.node = st.active.Insert(key, e)
	e.tree = TreeActive
	e.onST = true
	e.activatedAt = key.seq
}

// selectEntity performs the O(log N) EEVDF eligibility descent of §4.1:
// descend toward the smallest-finish node whose own start is <= vtime,
// using the left subtree's min_start augmentation to prune ineligible
// left subtrees in a single pass. If no active entity is eligible yet,
// vtime first jumps forward to the smallest start on the active tree.
func (st *ServiceTree) selectEntity() *Entity {
	if root := st.active.Root(); root != nil && root.Augment > st.vtime {
		st.vtime = root.Augment
	}
	n := st.active.Descend(func(n *entityNode) rbtree.Direction {
		if left := st.active.Left(n); left != nil && left.Augment <= st.vtime {
			return rbtree.Left
		}
		if n.Key.start <= st.vtime {
			return rbtree.Stop
		}
		return rbtree.Right
	})
	if n == nil || n.Key.start > st.vtime {
		return nil
	}
	st.vtime = maxVTime(st.vtime, n.Key.start)
	return n.Value
}

// charge records S sectors of service against e's current activation.
func (st *ServiceTree) charge(e *Entity, sectors int64) {
	e.service += sectors
}

// expire moves e from active to idle, recomputing finish from the
// sectors actually served (rather than the sectors budgeted), so the
// idle-tree entry — and the start point of e's next activation — reflect
// real occupancy.
func (st *ServiceTree) expire(e *Entity) {
	if e.tree == TreeActive {
		st.active.Delete(e.node)
	}
	e.finish = e.start + vtimeDiv(e.service, e.weight)

	key := serviceKey{finish: e.finish, start: e.start, seq: nextEntitySeq()}
	e.node = st.idle.Insert(key, e)
	e.tree = TreeIdle
}

// forget removes e from whichever tree it is on and clears its tree
// membership, without touching its finish (callers that want forgotten
// entities to not contribute to the next selection round call this only
// once service is fully accounted for).
func (st *ServiceTree) forget(e *Entity) {
	switch e.tree {
	case TreeActive:
		st.active.Delete(e.node)
	case TreeIdle:
		st.idle.Delete(e.node)
	}
	e.tree = TreeNone
	e.node = nil
	e.onST = false
}

// prune drops every idle-tree entry whose finish has fallen behind the
// class vtime ("forgotten" per §4.1). It runs on forced drain
// (Scheduler.Drain); expiration does not prune.
func (st *ServiceTree) prune() {
	for {
		n := st.idle.Min()
		if n == nil || n.Key.finish > st.vtime {
			return
		}
		st.idle.Delete(n)
		n.Value.tree = TreeNone
		n.Value.node = nil
		n.Value.onST = false
	}
}

// busyCount reports how many entities are currently eligible-or-pending
// service on the active tree.
func (st *ServiceTree) busyCount() int { return st.active.Len() }

// checkAugmentation walks every node of both trees and verifies the
// min_start augmentation invariant (§8 invariant 3). It is O(N) and meant
// for tests, not the hot path.
func (st *ServiceTree) checkAugmentation() bool {
	return checkTreeAugmentation(st.active) && checkTreeAugmentation(st.idle)
}

func checkTreeAugmentation(t *rbtree.Tree[serviceKey, VTime, *Entity]) bool {
	var walk func(n *entityNode) (VTime, bool)
	walk = func(n *entityNode) (VTime, bool) {
		if n == nil {
			return 0, true
		}
		m := n.Key.start
		ok := true
		if left := t.Left(n); left != nil {
			lm, lok := walk(left)
			if lm < m {
				m = lm
			}
			ok = ok && lok
		}
		if right := t.Right(n); right != nil {
			rm, rok := walk(right)
			if rm < m {
				m = rm
			}
			ok = ok && rok
		}
		return m, ok && n.Augment == m
	}
	_, ok := walk(t.Root())
	return ok
}

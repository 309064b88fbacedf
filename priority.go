package bfq

// IOPrioNormal is the IOPRIO_NORM cap a boosted producer's priority is
// clamped to (§4.8): boosting never grants a producer more than default
// priority within its new class.
const IOPrioNormal = 4

// BoostPredicate reports whether the caller currently holds a
// filesystem-exclusive resource that idle-class producers must not be
// allowed to block behind. The scheduler polls it per entity rather than
// reading a package-level flag, so callers control the scope and
// lifetime of the boosted state themselves.
type BoostPredicate func() bool

// SetPendingPriority records a producer priority/class change, applied at
// the entity's next (re)activation (§4.8's "changes take effect at the
// next activation" rule, shared between explicit producer-driven changes
// and the boost mechanism below).
func (e *Entity) SetPendingPriority(class IOPrioClass, prio int) {
	e.newIOPrioClass = class
	e.newIOPrio = prio
	e.prioChanged = true
}

// reconcileBoost applies or lifts the priority boost on e depending on
// boosted. Only an IDLE-class entity (one not already boosted) is
// elevated; lifting restores exactly the class/priority it held before
// boosting. A pending change a caller records while the entity is boosted
// is overwritten by that restore.
func (e *Entity) reconcileBoost(boosted bool) {
	if boosted && !e.boostActive {
		if e.effectiveIOPrioClass() != IOPrioIdle {
			return
		}
		e.preBoostClass = e.effectiveIOPrioClass()
		e.preBoostPrio = e.effectiveIOPrio()
		e.boostActive = true
		prio := e.preBoostPrio
		if prio > IOPrioNormal {
			prio = IOPrioNormal
		}
		e.SetPendingPriority(IOPrioBE, prio)
		return
	}
	if !boosted && e.boostActive {
		e.boostActive = false
		e.SetPendingPriority(e.preBoostClass, e.preBoostPrio)
	}
}

// effectiveIOPrioClass returns the class an entity will schedule under
// once any pending change applies, so boost detection sees through a
// change that hasn't taken effect yet.
func (e *Entity) effectiveIOPrioClass() IOPrioClass {
	if e.prioChanged {
		return e.newIOPrioClass
	}
	return e.ioprioClass
}

func (e *Entity) effectiveIOPrio() int {
	if e.prioChanged {
		return e.newIOPrio
	}
	return e.ioprio
}

// Package bfq implements the core of a proportional-share block I/O
// scheduler: a hierarchical, budget-driven fair queueing engine built on a
// weighted virtual-time service tree, augmented with device-aware
// heuristics (budget feedback, seek/think-time profiling, anticipatory
// idling, and peak-rate autotuning).
//
// The scheduler multiplexes a single backing device among many request
// producers, organized into queues (one per producer) and groups
// (hierarchical containment nodes). It selects which queue to serve next,
// bounds its occupancy by a learned budget and a wall-clock timeout, and
// feeds the observed outcome back into that queue's budget for the next
// activation.
//
// Driving a real device, decoding its control protocol, and resolving a
// calling task to its producer are outside this package; Driver and
// ProducerResolver exist as the seams a real integration implements.
package bfq

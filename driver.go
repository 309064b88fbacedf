package bfq

import "context"

// Driver is the block-layer collaborator the scheduler hands dispatched
// requests to and receives completions from (§6). The scheduler core
// never touches a device directly; a real binding (kernel driver,
// io_uring ring, in-memory test fixture) implements this.
type Driver interface {
	// Dispatch hands req to the block layer for submission. Dispatch
	// must not block; the driver queues req and returns.
	Dispatch(req *Request)
}

// Kicker is an optional Driver capability: a driver that can be told
// "scheduler state advanced, consider calling Dispatch again" implements
// it, so idle-timer and completion callbacks can prompt a redispatch
// without the scheduler itself running a dispatch loop on a goroutine.
type Kicker interface {
	Kick()
}

// ProducerResolver maps the context of an in-flight call (a task, a
// request source) to the producer identity the scheduler keys queues by.
// The real I/O-context / cgroup mapping this stands in for is explicitly
// out of scope (§1); callers that need one wire their own lookup into
// this seam.
type ProducerResolver interface {
	Resolve(ctx context.Context) (producerID string, group *Group)
}

package bfq

import "github.com/blkiosched/bfq/internal/clock"

// Clock is the time source the scheduler's idle timer and budget-timeout
// checks run against. It is an alias for clock.Clock so callers configuring
// a Scheduler never need to import the internal package directly.
type Clock = clock.Clock

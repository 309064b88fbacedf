package bfq

import (
	"sync"

	"github.com/blkiosched/bfq/internal/bufpool"
	"github.com/blkiosched/bfq/internal/interfaces"
	"github.com/blkiosched/bfq/internal/logging"
)

// SectorSize is the fixed logical sector size requests are denominated
// in, matching the 512-byte convention the rest of the core assumes.
const SectorSize = 512

// SimDriver is a reference Driver that services dispatched requests
// against an interfaces.Backend (§6 "A reference Driver"). It has no
// scheduling content of its own: real kernel/io_uring binding is out of
// scope, so this exists purely to drive the scenario tests and the CLI
// demo end to end against real bytes.
//
// Dispatch only records the request; Drain performs the backend I/O and
// reports completion back into the scheduler. Splitting them this way
// means a caller's Dispatch (or the InsertRequest that triggered it)
// never calls back into the scheduler while its own lock is held —
// Drain must always be called outside of any in-progress Scheduler call.
type SimDriver struct {
	mu      sync.Mutex
	backend interfaces.Backend
	sched   *Scheduler
	pending []*Request
	log     *logging.Logger
}

// NewSimDriver creates a SimDriver servicing requests against backend.
// Call Attach before any request reaches Dispatch.
func NewSimDriver(backend interfaces.Backend) *SimDriver {
	return &SimDriver{backend: backend, log: logging.Default()}
}

// Attach binds the driver to the scheduler it reports completions into.
func (d *SimDriver) Attach(s *Scheduler) { d.sched = s }

// Dispatch implements Driver: it queues req for the next Drain.
func (d *SimDriver) Dispatch(req *Request) {
	d.mu.Lock()
	d.pending = append(d.pending, req)
	d.mu.Unlock()
}

// Pending reports how many dispatched requests are waiting on Drain.
func (d *SimDriver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Drain services every request queued since the last Drain, performing
// the backend I/O and reporting completion back into the scheduler.
func (d *SimDriver) Drain() int {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, req := range batch {
		err := d.service(req)
		d.sched.CompleteRequest(req, err)
	}
	return len(batch)
}

func (d *SimDriver) service(req *Request) error {
	size := req.Sectors * SectorSize
	off := int64(req.Sector) * SectorSize

	buf := bufpool.GetBuffer(uint32(size))
	defer bufpool.PutBuffer(buf)

	var err error
	if req.Write() {
		_, err = d.backend.WriteAt(buf, off)
	} else {
		_, err = d.backend.ReadAt(buf, off)
	}
	if err != nil {
		d.log.WithQueue(req.queue.id).WithError(err).Warn("request failed")
	}
	return err
}

var _ Driver = (*SimDriver)(nil)

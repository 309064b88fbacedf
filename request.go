package bfq

import (
	"container/list"
	"time"

	"github.com/blkiosched/bfq/internal/rbtree"
)

// Sector is a 512-byte-sector logical block address.
type Sector int64

// RequestFlags classifies a request for the head-biased chooser (§4.3).
type RequestFlags uint8

const (
	// ReqSync marks a read, or an explicitly synchronous write.
	ReqSync RequestFlags = 1 << iota
	// ReqMeta marks a filesystem metadata request.
	ReqMeta
	// ReqWrite marks a write; its absence means a read.
	ReqWrite
)

// Request is a single pending or in-flight I/O request.
type Request struct {
	Sector  Sector
	Sectors int64
	Flags   RequestFlags

	Deadline time.Time

	queue *Queue

	node     *rbtree.Node[Sector, struct{}, *Request] // handle into queue.sortTree, nil when not resident
	fifoElem *list.Element                              // handle into queue.fifo, nil when not resident

	// alias is set on an already-queued request when a newer request
	// starting at the same sector displaces it; it points at that newer
	// request. The displaced request is dispatched directly, bypassing
	// budget selection (§4.2 "Alias handling").
	alias *Request
}

// Sync reports whether the request is sync-classified.
func (r *Request) Sync() bool { return r.Flags&ReqSync != 0 }

// Meta reports whether the request is a metadata request.
func (r *Request) Meta() bool { return r.Flags&ReqMeta != 0 }

// Write reports whether the request is a write; a clear ReqWrite bit
// means a read.
func (r *Request) Write() bool { return r.Flags&ReqWrite != 0 }

// End returns the sector one past the end of the request.
func (r *Request) End() Sector { return r.Sector + Sector(r.Sectors) }

func noAugment(_ Sector, _ *Request, _, _ *struct{}) struct{} { return struct{}{} }

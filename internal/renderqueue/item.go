package renderqueue

import (
	"sync"
	"time"
)

// PdfResult is what a successful render job produces.
type PdfResult struct {
	Buffer       []byte
	LastModified string // HTTP date form
}

// ProcessFunc performs the actual render. The queue calls it exactly once,
// in its own goroutine, after the item is promoted to running.
type ProcessFunc func() (*PdfResult, error)

// CancelFunc releases the item's external resources (typically by aborting
// a browser subprocess). It must be safe to call whether or not the process
// function has started or finished.
type CancelFunc func() error

// Item is a single unit of render work. Items are single-use: once
// submitted, they are never re-submitted.
type Item struct {
	JobID string

	process ProcessFunc
	cancel  CancelFunc

	cancelOnce sync.Once
	cancelErr  error

	// Timestamps recorded by the queue. addedAt is set on admission,
	// startedAt when the item is promoted to running.
	addedAt   time.Time
	startedAt time.Time

	// Settlement state, owned by the queue and guarded by its mutex.
	fut *Future
}

// NewItem builds an item around a process function and a cancel function.
// A nil cancel is allowed for work with no external resources.
func NewItem(jobID string, process ProcessFunc, cancel CancelFunc) *Item {
	return &Item{
		JobID:   jobID,
		process: process,
		cancel:  cancel,
	}
}

// Cancel releases the item's resources. Idempotent: the first call invokes
// the underlying cancel function and blocks until it resolves; later calls
// return the same result immediately.
func (it *Item) Cancel() error {
	it.cancelOnce.Do(func() {
		if it.cancel != nil {
			it.cancelErr = it.cancel()
		}
	})
	return it.cancelErr
}

// AddedAt reports when the item was admitted to the queue.
func (it *Item) AddedAt() time.Time { return it.addedAt }

// StartedAt reports when the item was promoted to running. Zero if it
// never started.
func (it *Item) StartedAt() time.Time { return it.startedAt }

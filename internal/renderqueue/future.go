package renderqueue

// Future is the result-bearing handle returned by Submit. It settles
// exactly once, either with a PdfResult or with an error from the queue's
// failure kinds (or whatever the item's process function returned).
type Future struct {
	q    *Queue
	item *Item
	done chan struct{}

	// Guarded by q.mu.
	settled    bool
	cancelling bool
	timingOut  bool
	res        *PdfResult
	err        error
}

// Done returns a channel that is closed when the future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the future settles and returns its outcome.
func (f *Future) Result() (*PdfResult, error) {
	<-f.done
	return f.res, f.err
}

// Cancel requests cancellation of the submitted item. It is safe to call
// in any state; once the item's resources have been released the future
// settles with ErrProcessingCancelled. A cancelled future never yields a
// PDF, even if the render completed just before cancellation took effect.
//
// Cancel returns without waiting for settlement; use Done to observe it.
func (f *Future) Cancel() {
	f.q.cancelItem(f.item)
}

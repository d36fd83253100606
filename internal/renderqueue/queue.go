// Package renderqueue provides a bounded FIFO queue for PDF render jobs.
// It enforces a concurrency cap on in-flight renders, rejects overflow
// synchronously, imposes independent time budgets for queue residency and
// for active rendering, and routes caller cancellation to each job's
// resource teardown.
package renderqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Config is fixed at construction.
type Config struct {
	// Concurrency is the maximum number of jobs rendering in parallel.
	// Zero means the queue admits jobs but never starts them.
	Concurrency int

	// QueueTimeout bounds how long a job may wait before starting.
	QueueTimeout time.Duration

	// ExecutionTimeout bounds how long a job may run once started.
	ExecutionTimeout time.Duration

	// MaxTaskCount bounds waiting plus running jobs; submissions beyond
	// it fail synchronously with ErrQueueFull.
	MaxTaskCount int
}

const (
	defaultQueueTimeout     = 60 * time.Second
	defaultExecutionTimeout = 90 * time.Second
)

// Queue schedules render jobs. All bookkeeping (admission, promotion,
// timer fires, settlement, cancellation) is serialized under one mutex, so
// no step ever observes a partially updated queue. The render work itself
// runs outside the lock, one goroutine per running job.
type Queue struct {
	cfg    Config
	events Events

	mu        sync.Mutex
	waiting   []*Item
	running   map[string]*Item
	timers    map[string]*time.Timer
	advancing bool
	closed    bool

	wg sync.WaitGroup
}

// New creates a queue. A nil events observer is replaced with NopEvents.
// Out-of-range configuration is clamped rather than rejected.
func New(cfg Config, events Events) *Queue {
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}
	if cfg.MaxTaskCount < 1 {
		cfg.MaxTaskCount = 1
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecutionTimeout
	}
	if events == nil {
		events = NopEvents{}
	}

	return &Queue{
		cfg:     cfg,
		events:  events,
		running: make(map[string]*Item),
		timers:  make(map[string]*time.Timer),
	}
}

// Submit offers an item to the queue and returns its future. Submit never
// blocks: if admission would exceed MaxTaskCount the future is already
// settled with ErrQueueFull. Admitted items start in FIFO order.
func (q *Queue) Submit(it *Item) *Future {
	f := &Future{q: q, item: it, done: make(chan struct{})}
	it.fut = f

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		f.settled = true
		f.err = ErrQueueClosed
		close(f.done)
		return f
	}
	if len(q.waiting)+len(q.running) >= q.cfg.MaxTaskCount {
		q.events.QueueFull(it.JobID)
		f.settled = true
		f.err = ErrQueueFull
		close(f.done)
		return f
	}

	it.addedAt = time.Now()
	q.waiting = append(q.waiting, it)
	q.timers[it.JobID] = time.AfterFunc(q.cfg.QueueTimeout, func() {
		q.onQueueTimeout(it)
	})
	q.events.QueueNew(it.JobID, it.addedAt)
	q.advanceLocked()

	return f
}

// IsQueueFull reports whether the next Submit would be rejected.
func (q *Queue) IsQueueFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)+len(q.running) >= q.cfg.MaxTaskCount
}

// CountWaiting reports the number of admitted jobs not yet started.
func (q *Queue) CountWaiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// CountRunning reports the number of jobs currently rendering.
func (q *Queue) CountRunning() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// Shutdown closes admission, cancels everything still waiting, and waits
// for running jobs to finish up to the context deadline.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	waiting := make([]*Item, len(q.waiting))
	copy(waiting, q.waiting)
	q.mu.Unlock()

	for _, it := range waiting {
		q.cancelItem(it)
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advanceLocked promotes waiting items to running while capacity allows.
// It is the single place promotion happens. The advancing flag makes it
// non-reentrant; the caller must hold q.mu.
func (q *Queue) advanceLocked() {
	if q.advancing {
		return
	}
	q.advancing = true
	defer func() { q.advancing = false }()

	for len(q.running) < q.cfg.Concurrency && len(q.waiting) > 0 {
		it := q.waiting[0]
		q.waiting[0] = nil // avoid memory leak
		q.waiting = q.waiting[1:]

		q.clearTimerLocked(it.JobID)
		q.running[it.JobID] = it
		it.startedAt = time.Now()
		q.timers[it.JobID] = time.AfterFunc(q.cfg.ExecutionTimeout, func() {
			q.onExecTimeout(it)
		})
		q.events.ProcessStarted(it.JobID, it.addedAt, it.startedAt)

		q.wg.Add(1)
		go q.runItem(it)
	}
}

// runItem drives a single job's process function and delivers its
// settlement back into the serialized bookkeeping.
func (q *Queue) runItem(it *Item) {
	defer q.wg.Done()

	res, err := it.process()

	q.mu.Lock()
	defer q.mu.Unlock()

	f := it.fut
	if f.settled || f.cancelling {
		// A timeout or cancellation already claimed this job; the
		// late result is dropped.
		return
	}
	if err != nil {
		if errors.Is(err, ErrProcessingCancelled) {
			if f.timingOut {
				// The error is fallout from the timeout's own abort;
				// the timeout path owns the settlement so the caller
				// sees ErrJobTimeout, not a cancellation.
				return
			}
			// The process bailed out on its own with no claim pending.
			// Every started job gets exactly one terminal event, so
			// account for it as an abort rather than a failure.
			q.events.ProcessAbort(it.JobID, it.addedAt, it.startedAt)
		} else {
			q.events.ProcessFailure(it.JobID, it.addedAt, it.startedAt, err)
		}
		q.settleLocked(it, nil, err)
		return
	}
	q.events.ProcessSuccess(it.JobID, it.addedAt, it.startedAt)
	q.settleLocked(it, res, nil)
}

// onQueueTimeout fires when an item has waited too long. If the item was
// already promoted or settled it is a no-op.
func (q *Queue) onQueueTimeout(it *Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f := it.fut
	if f.settled || f.cancelling || !q.inWaitingLocked(it) {
		return
	}
	q.clearTimerLocked(it.JobID)
	q.events.QueueTimeout(it.JobID, it.addedAt)
	q.settleLocked(it, nil, ErrQueueTimeout)
}

// onExecTimeout fires when a running item has exceeded its budget. The
// item's cancel is invoked before the future is rejected; if the process
// settles concurrently, the first settlement wins.
func (q *Queue) onExecTimeout(it *Item) {
	q.mu.Lock()
	f := it.fut
	if f.settled || f.cancelling {
		q.mu.Unlock()
		return
	}
	if _, ok := q.running[it.JobID]; !ok {
		q.mu.Unlock()
		return
	}
	q.clearTimerLocked(it.JobID)
	q.events.ProcessTimeout(it.JobID, it.addedAt, it.startedAt)
	f.timingOut = true
	q.mu.Unlock()

	_ = it.Cancel()

	q.mu.Lock()
	// A caller cancellation that raced in wins: the kind is always
	// ErrProcessingCancelled, never a timeout.
	if !f.cancelling {
		q.settleLocked(it, nil, ErrJobTimeout)
	}
	q.mu.Unlock()
}

// cancelItem implements caller cancellation. The queue-side bookkeeping
// (timer, set membership, abort event) happens synchronously; resource
// teardown and the final settlement happen in a goroutine so the caller
// is not held up by the browser shutting down.
func (q *Queue) cancelItem(it *Item) {
	q.mu.Lock()

	f := it.fut
	if f == nil || f.settled || f.cancelling {
		q.mu.Unlock()
		return
	}

	switch {
	case f.timingOut:
		// The execution timeout already emitted this job's terminal
		// event and is tearing it down. Only the error kind is still
		// contested, and cancellation wins it; no second event.
	case q.inWaitingLocked(it):
		q.removeWaitingLocked(it)
		q.clearTimerLocked(it.JobID)
		q.events.QueueAbort(it.JobID, it.addedAt)
	default:
		if _, ok := q.running[it.JobID]; !ok {
			q.mu.Unlock()
			return
		}
		delete(q.running, it.JobID)
		q.clearTimerLocked(it.JobID)
		q.events.ProcessAbort(it.JobID, it.addedAt, it.startedAt)
	}

	// Claim the item so a racing process settlement cannot resolve the
	// future with a PDF after cancellation was requested.
	f.cancelling = true
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		_ = it.Cancel()
		q.mu.Lock()
		q.settleLocked(it, nil, ErrProcessingCancelled)
		q.mu.Unlock()
	}()
}

// settleLocked is the single cleanup path: it records the outcome, removes
// the item from whichever set it inhabits, clears its timer, wakes the
// future, and advances the queue. Idempotent; caller must hold q.mu.
func (q *Queue) settleLocked(it *Item, res *PdfResult, err error) {
	f := it.fut
	if f == nil || f.settled {
		return
	}
	f.settled = true
	f.res = res
	f.err = err

	q.removeWaitingLocked(it)
	delete(q.running, it.JobID)
	q.clearTimerLocked(it.JobID)

	close(f.done)
	q.advanceLocked()
}

func (q *Queue) inWaitingLocked(it *Item) bool {
	for _, w := range q.waiting {
		if w == it {
			return true
		}
	}
	return false
}

func (q *Queue) removeWaitingLocked(it *Item) {
	for i, w := range q.waiting {
		if w == it {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

func (q *Queue) clearTimerLocked(jobID string) {
	if t, ok := q.timers[jobID]; ok {
		t.Stop()
		delete(q.timers, jobID)
	}
}

package renderqueue

import "time"

// Events receives queue lifecycle notifications, one method per event kind.
// The queue calls these synchronously from inside its own bookkeeping, so
// implementations must be fast and must not call back into the Queue.
//
// Every admitted job produces queue.new followed by at most one of
// queue.timeout or queue.abort, or process.started followed by exactly one
// of process.success, process.failure, process.abort, or process.timeout.
type Events interface {
	QueueNew(jobID string, addedAt time.Time)
	QueueFull(jobID string)
	QueueTimeout(jobID string, addedAt time.Time)
	QueueAbort(jobID string, addedAt time.Time)
	ProcessStarted(jobID string, addedAt, startedAt time.Time)
	ProcessSuccess(jobID string, addedAt, startedAt time.Time)
	ProcessFailure(jobID string, addedAt, startedAt time.Time, err error)
	ProcessAbort(jobID string, addedAt, startedAt time.Time)
	ProcessTimeout(jobID string, addedAt, startedAt time.Time)
}

// NopEvents discards all events. Useful for tests and as a default.
type NopEvents struct{}

func (NopEvents) QueueNew(string, time.Time) {}
func (NopEvents) QueueFull(string) {}
func (NopEvents) QueueTimeout(string, time.Time) {}
func (NopEvents) QueueAbort(string, time.Time) {}
func (NopEvents) ProcessStarted(string, time.Time, time.Time) {}
func (NopEvents) ProcessSuccess(string, time.Time, time.Time) {}
func (NopEvents) ProcessFailure(string, time.Time, time.Time, error) {}
func (NopEvents) ProcessAbort(string, time.Time, time.Time) {}
func (NopEvents) ProcessTimeout(string, time.Time, time.Time) {}

var _ Events = NopEvents{}
